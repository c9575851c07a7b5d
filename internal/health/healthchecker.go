package health

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// HealthChecker is implemented by component-level checkers (store, vector index, embedder).
type HealthChecker interface {
	Name() string
	IsHealthy() bool
	Start(ctx context.Context, interval time.Duration)
}

// ServiceHealthChecker folds component checkers into one cached verdict. Billed
// operations consult it before charging, so it starts down until the first evaluation.
type ServiceHealthChecker struct {
	mu      sync.RWMutex
	healthy bool
	down    []string
	deps    []HealthChecker
	log     zerolog.Logger
}

func NewServiceHealthChecker(log zerolog.Logger, deps ...HealthChecker) *ServiceHealthChecker {
	return &ServiceHealthChecker{deps: deps, log: log.With().Str("component", "health").Logger()}
}

// IsHealthy returns the verdict of the last evaluation.
func (h *ServiceHealthChecker) IsHealthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.healthy
}

// Down lists the components that failed the last evaluation, sorted by name.
func (h *ServiceHealthChecker) Down() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]string(nil), h.down...)
}

// Components reports the live cached state of every dependency by name.
func (h *ServiceHealthChecker) Components() map[string]bool {
	out := make(map[string]bool, len(h.deps))
	for _, c := range h.deps {
		out[c.Name()] = c.IsHealthy()
	}
	return out
}

// Evaluate recomputes the verdict once and logs UP/DOWN transitions.
func (h *ServiceHealthChecker) Evaluate() bool {
	var down []string
	for _, c := range h.deps {
		if !c.IsHealthy() {
			down = append(down, c.Name())
		}
	}
	sort.Strings(down)
	ok := len(down) == 0

	h.mu.Lock()
	changed := ok != h.healthy || !equalNames(down, h.down)
	h.healthy, h.down = ok, down
	h.mu.Unlock()

	if changed {
		if ok {
			h.log.Info().Msg("service health: UP")
		} else {
			h.log.Error().Strs("down", down).Msg("service health: DOWN")
		}
	}
	return ok
}

// Start evaluates immediately and then on every tick until ctx is canceled.
func (h *ServiceHealthChecker) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	h.Evaluate()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.Evaluate()
		}
	}
}

func equalNames(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
