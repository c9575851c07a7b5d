package searchindex

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/CARBONMOLECULE09/bear-code/internal/health"
	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

func TestWithTimeout_WrapsDeadline(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := NewMockIndex(ctrl)
	inner.EXPECT().
		Query(gomock.Any(), "u1", "q", 5, gomock.Nil()).
		DoAndReturn(func(ctx context.Context, _, _ string, _ int, _ map[string]interface{}) ([]model.SearchHit, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})

	idx := WithTimeout(inner, 20*time.Millisecond)
	_, err := idx.Query(context.Background(), "u1", "q", 5, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTimeout))
}

func TestWithTimeout_PassesThrough(t *testing.T) {
	ctrl := gomock.NewController(t)
	inner := NewMockIndex(ctrl)
	boom := errors.New("boom")
	inner.EXPECT().Delete(gomock.Any(), "u1", "v1").Return(boom)
	inner.EXPECT().Upsert(gomock.Any(), "u1", gomock.Any()).Return(nil)

	idx := WithTimeout(inner, time.Second)
	assert.Same(t, boom, idx.Delete(context.Background(), "u1", "v1"))
	assert.NoError(t, idx.Upsert(context.Background(), "u1", model.VectorEntry{ID: "v1"}))

	assert.Equal(t, Index(inner), WithTimeout(inner, 0))
}

func TestWithTimeout_ForwardsHealthPing(t *testing.T) {
	idx := WithTimeout(pingIndex{pingErr: errors.New("down")}, time.Second)
	p, ok := idx.(health.HealthPinger)
	require.True(t, ok)
	assert.EqualError(t, p.HealthPing(context.Background()), "down")
}
