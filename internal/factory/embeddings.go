package factory

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/CARBONMOLECULE09/bear-code/internal/config"
	emb "github.com/CARBONMOLECULE09/bear-code/internal/embeddings"
	"github.com/CARBONMOLECULE09/bear-code/internal/embeddings/ollama"
)

// NewEmbeddingProvider creates an embedding provider based on config.
// Launches optional async warmup; returns provider immediately for fast startup.
// The in-memory vector store ranks by terms and needs no provider; nil is returned.
func NewEmbeddingProvider(ctx context.Context, cfg *config.Config, log zerolog.Logger) emb.EmbeddingProvider {
	if cfg.VectorStore == "memory" {
		return nil
	}

	var provider emb.EmbeddingProvider
	switch cfg.EmbedProvider {
	case "", "ollama":
		provider = ollama.New(cfg.OllamaURL, cfg.EmbedModel)
	default:
		log.Warn().Str("provider", cfg.EmbedProvider).Msg("unknown embedding provider; using ollama")
		provider = ollama.New(cfg.OllamaURL, cfg.EmbedModel)
	}

	// Optional async warmup with configurable timeout; don't block startup
	go func() {
		warmupCtx, cancel := context.WithTimeout(ctx, cfg.BootstrapTimeout())
		defer cancel()

		if vec, err := provider.Embed(warmupCtx, "factory-warmup-check"); err != nil || len(vec) == 0 {
			log.Warn().Err(err).Int("vec_len", len(vec)).
				Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup failed")
		} else {
			log.Debug().Str("provider", cfg.EmbedProvider).Str("model", cfg.EmbedModel).
				Msg("embedding provider warmup completed")
		}
	}()

	return provider
}
