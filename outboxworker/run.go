package outboxworker

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/CARBONMOLECULE09/bear-code/internal/config"
	"github.com/CARBONMOLECULE09/bear-code/internal/factory"
	"github.com/CARBONMOLECULE09/bear-code/internal/logger"
	"github.com/CARBONMOLECULE09/bear-code/internal/outbox"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

// Run starts the standalone outbox worker and blocks until shutdown or error.
// It shares the record store and vector index configuration with the server.
func Run() error {
	log := logger.New("outbox-worker")

	cfg, err := config.New()
	if err != nil {
		log.Error().Err(err).Msg("config")
		return err
	}
	log = logger.WithLevel(log, cfg.LogLevel)
	if cfg.DBDriver == "memory" || cfg.VectorStore == "memory" {
		return fmt.Errorf("outbox worker needs durable stores, got db=%s vector=%s", cfg.DBDriver, cfg.VectorStore)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := factory.NewStore(ctx, cfg, log)
	if err != nil {
		log.Error().Err(err).Msg("store")
		return err
	}
	if c, ok := st.(store.Closer); ok {
		defer func() { _ = c.Close() }()
	}

	emb := factory.NewEmbeddingProvider(ctx, cfg, log)
	idx, err := factory.NewSearchIndex(ctx, cfg, emb, log)
	if err != nil {
		log.Error().Err(err).Msg("search index")
		return err
	}

	w := outbox.NewWorker(st.Outbox(), idx, outbox.Config{
		BatchSize: cfg.OutboxBatchSize,
		Interval:  cfg.OutboxInterval,
	}, log)

	log.Info().Str("db_driver", cfg.DBDriver).Int("batch_size", cfg.OutboxBatchSize).Dur("interval", cfg.OutboxInterval).Msg("outbox worker starting")
	if err := w.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("outbox worker exit")
		return err
	}
	return nil
}
