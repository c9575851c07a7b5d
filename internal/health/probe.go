package health

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const defaultProbeTimeout = 2 * time.Second

// HealthPinger is implemented by backends with a cheaper liveness call than a real read.
// A nil return means healthy.
type HealthPinger interface {
	HealthPing(ctx context.Context) error
}

// ProbeChecker caches the result of a periodic probe function.
// It starts unhealthy until the first successful probe.
type ProbeChecker struct {
	name         string
	probe        func(ctx context.Context) error
	healthy      atomic.Int32
	log          zerolog.Logger
	probeTimeout time.Duration
}

// NewProbeChecker creates a checker that calls probe on every tick.
func NewProbeChecker(name string, probe func(ctx context.Context) error, log zerolog.Logger, probeTimeout time.Duration) *ProbeChecker {
	if probeTimeout <= 0 {
		probeTimeout = defaultProbeTimeout
	}
	return &ProbeChecker{name: name, probe: probe, log: log, probeTimeout: probeTimeout}
}

func (c *ProbeChecker) Name() string { return c.name }

// IsHealthy returns the cached health status (non-blocking).
func (c *ProbeChecker) IsHealthy() bool { return c.healthy.Load() == 1 }

// Check runs one probe and updates the cached status.
func (c *ProbeChecker) Check(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, c.probeTimeout)
	defer cancel()

	if err := c.probe(checkCtx); err != nil {
		c.log.Error().Stack().
			Str("checker", c.name).
			Err(err).
			Msg("health check failed")
		c.healthy.Store(0)
		return false
	}
	c.healthy.Store(1)
	return true
}

// Start begins periodic health checking until ctx is canceled.
func (c *ProbeChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	c.Check(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Check(ctx)
		}
	}
}
