package searchindex

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/CARBONMOLECULE09/bear-code/internal/health"
)

// healthNamespace is described when an index has no dedicated ping.
const healthNamespace = "__health_check__"

// NewSearchIndexHealthChecker creates a checker named "vector-index".
func NewSearchIndexHealthChecker(index Index, log zerolog.Logger, probeTimeout time.Duration) *health.ProbeChecker {
	return health.NewProbeChecker("vector-index", func(ctx context.Context) error {
		if p, ok := index.(health.HealthPinger); ok {
			return p.HealthPing(ctx)
		}
		_, err := index.Describe(ctx, healthNamespace)
		return err
	}, log, probeTimeout)
}
