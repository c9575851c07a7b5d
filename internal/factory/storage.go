package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/CARBONMOLECULE09/bear-code/internal/config"
	storepkg "github.com/CARBONMOLECULE09/bear-code/internal/store"
	"github.com/CARBONMOLECULE09/bear-code/internal/store/memory"
	storemongo "github.com/CARBONMOLECULE09/bear-code/internal/store/mongo"
	storepg "github.com/CARBONMOLECULE09/bear-code/internal/store/postgres"
	storesqlite "github.com/CARBONMOLECULE09/bear-code/internal/store/sqlite"
)

// NewStore returns the store.Store selected by cfg.DBDriver with its schema in place.
// Schema creation runs under the bootstrap timeout before the store is handed out,
// since ledger writes need the tables to exist.
func NewStore(ctx context.Context, cfg *config.Config, log zerolog.Logger) (storepkg.Store, error) {
	bootstrapCtx, cancel := context.WithTimeout(ctx, cfg.BootstrapTimeout())
	defer cancel()

	switch cfg.DBDriver {
	case "postgres":
		if cfg.PostgresDSN == "" {
			return nil, fmt.Errorf("BEARCODE_POSTGRES_DSN is required when DB_DRIVER=postgres")
		}
		db, err := storepg.Open(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		if err := storepg.EnsureSchema(bootstrapCtx, db); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("postgres schema: %w", err)
		}
		log.Debug().Str("driver", cfg.DBDriver).Msg("store bootstrap completed")
		return storepg.NewWithDB(db), nil

	case "sqlite":
		s, err := storesqlite.OpenStore(bootstrapCtx, cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		log.Debug().Str("driver", cfg.DBDriver).Str("path", cfg.SQLitePath).Msg("store bootstrap completed")
		return s, nil

	case "mongo":
		s, err := storemongo.Connect(bootstrapCtx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, err
		}
		// Index creation is not required for correctness; don't block startup on it.
		go func() {
			mctx, cancel := context.WithTimeout(ctx, cfg.BootstrapTimeout())
			defer cancel()
			if err := s.Migrate(mctx); err != nil {
				log.Warn().Err(err).Str("driver", cfg.DBDriver).Msg("store index migration failed")
			} else {
				log.Debug().Str("driver", cfg.DBDriver).Msg("store index migration completed")
			}
		}()
		return s, nil

	case "memory":
		log.Warn().Msg("using in-memory store; data is lost on restart")
		return memory.New(), nil

	default:
		return nil, fmt.Errorf("unknown DB_DRIVER: %s", cfg.DBDriver)
	}
}
