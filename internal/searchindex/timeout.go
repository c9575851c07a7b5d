package searchindex

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CARBONMOLECULE09/bear-code/internal/health"
	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

// ErrTimeout is wrapped by errors of calls that exceeded the index deadline.
var ErrTimeout = errors.New("vector index timeout")

// WithTimeout bounds every call to next by d. A non-positive d returns next unchanged.
func WithTimeout(next Index, d time.Duration) Index {
	if d <= 0 {
		return next
	}
	return &timeoutIndex{next: next, d: d}
}

type timeoutIndex struct {
	next Index
	d    time.Duration
}

func (t *timeoutIndex) wrap(op string, ctx context.Context, err error) error {
	if err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s exceeded %s: %v", ErrTimeout, op, t.d, err)
	}
	return err
}

func (t *timeoutIndex) Upsert(ctx context.Context, namespace string, entry model.VectorEntry) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.wrap("upsert", ctx, t.next.Upsert(ctx, namespace, entry))
}

func (t *timeoutIndex) Query(ctx context.Context, namespace, query string, limit int, filters map[string]interface{}) ([]model.SearchHit, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	hits, err := t.next.Query(ctx, namespace, query, limit, filters)
	return hits, t.wrap("query", ctx, err)
}

func (t *timeoutIndex) Delete(ctx context.Context, namespace, id string) error {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	return t.wrap("delete", ctx, t.next.Delete(ctx, namespace, id))
}

func (t *timeoutIndex) Describe(ctx context.Context, namespace string) (model.IndexStats, error) {
	ctx, cancel := context.WithTimeout(ctx, t.d)
	defer cancel()
	stats, err := t.next.Describe(ctx, namespace)
	return stats, t.wrap("describe", ctx, err)
}

// HealthPing forwards to the wrapped index when it supports health pings.
func (t *timeoutIndex) HealthPing(ctx context.Context) error {
	if p, ok := t.next.(health.HealthPinger); ok {
		return p.HealthPing(ctx)
	}
	return nil
}
