package factory

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/CARBONMOLECULE09/bear-code/internal/config"
	"github.com/CARBONMOLECULE09/bear-code/internal/searchindex"
)

// NewSearchIndex creates a search index implementation based on config, wrapped with
// the VECTOR_TIMEOUT deadline. Launches async bootstrap with short timeout; returns index
// immediately for fast startup.
func NewSearchIndex(ctx context.Context, cfg *config.Config, emb searchindex.Embeddings, log zerolog.Logger) (searchindex.Index, error) {
	switch cfg.VectorStore {
	case "memory":
		return searchindex.WithTimeout(searchindex.NewMemoryIndex(), cfg.VectorTimeout), nil
	case "weaviate":
	default:
		return nil, fmt.Errorf("unknown VECTOR_STORE: %s", cfg.VectorStore)
	}

	if cfg.WeaviateURL == "" {
		return nil, fmt.Errorf("search index URL not configured - required for service operation")
	}
	idx, err := searchindex.NewWeaviateIndex(cfg.WeaviateURL, emb)
	if err != nil {
		return nil, err
	}

	// Async bootstrap with configurable timeout; don't block startup
	go func() {
		bootstrapCtx, cancel := context.WithTimeout(ctx, cfg.BootstrapTimeout())
		defer cancel()

		if err := searchindex.BootstrapWeaviate(bootstrapCtx, cfg.WeaviateURL); err != nil {
			log.Warn().Err(err).Str("url", cfg.WeaviateURL).Msg("search index bootstrap failed")
		} else {
			log.Debug().Str("url", cfg.WeaviateURL).Msg("search index bootstrap completed")
		}
	}()

	return searchindex.WithTimeout(idx, cfg.VectorTimeout), nil
}
