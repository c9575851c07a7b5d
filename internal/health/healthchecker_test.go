package health

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
)

type fakeChecker struct {
	name    string
	healthy atomic.Bool
}

func newFake(name string, up bool) *fakeChecker {
	f := &fakeChecker{name: name}
	f.healthy.Store(up)
	return f
}

func (f *fakeChecker) Name() string                         { return f.name }
func (f *fakeChecker) IsHealthy() bool                      { return f.healthy.Load() }
func (f *fakeChecker) Start(context.Context, time.Duration) {}

func TestServiceHealthChecker_StartsDown(t *testing.T) {
	svc := NewServiceHealthChecker(zerolog.Nop(), newFake("store", true))
	assert.False(t, svc.IsHealthy())
	assert.True(t, svc.Evaluate())
	assert.True(t, svc.IsHealthy())
}

func TestServiceHealthChecker_ReportsDownComponents(t *testing.T) {
	store := newFake("store", true)
	index := newFake("vector-index", false)
	emb := newFake("embedder", false)
	svc := NewServiceHealthChecker(zerolog.Nop(), store, index, emb)

	assert.False(t, svc.Evaluate())
	assert.Equal(t, []string{"embedder", "vector-index"}, svc.Down())
	assert.Equal(t, map[string]bool{"store": true, "vector-index": false, "embedder": false}, svc.Components())

	index.healthy.Store(true)
	emb.healthy.Store(true)
	assert.True(t, svc.Evaluate())
	assert.Empty(t, svc.Down())
}

func TestServiceHealthChecker_Transitions(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a := newFake("a", true)
	b := newFake("b", true)
	svc := NewServiceHealthChecker(zerolog.Nop(), a, b)
	go svc.Start(ctx, 10*time.Millisecond)

	waitTrue(t, svc.IsHealthy)

	b.healthy.Store(false)
	waitTrue(t, func() bool { return !svc.IsHealthy() })

	b.healthy.Store(true)
	waitTrue(t, svc.IsHealthy)
}

func waitTrue(t *testing.T, pred func() bool) {
	t.Helper()
	deadline := time.Now().Add(500 * time.Millisecond)
	for time.Now().Before(deadline) {
		if pred() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("condition not met before timeout")
}
