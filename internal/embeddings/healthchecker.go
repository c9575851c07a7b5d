package embeddings

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/CARBONMOLECULE09/bear-code/internal/health"
)

// NewProviderHealthChecker creates a checker named "embedder".
// Providers without HealthPing are probed with a short embedding.
func NewProviderHealthChecker(p EmbeddingProvider, log zerolog.Logger, probeTimeout time.Duration) *health.ProbeChecker {
	return health.NewProbeChecker("embedder", func(ctx context.Context) error {
		if pinger, ok := p.(health.HealthPinger); ok {
			return pinger.HealthPing(ctx)
		}
		vec, err := p.Embed(ctx, "health-check")
		if err != nil {
			return err
		}
		if len(vec) == 0 {
			return errors.New("empty embedding")
		}
		return nil
	}, log, probeTimeout)
}
