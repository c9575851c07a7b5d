package outbox

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/searchindex"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
	"github.com/CARBONMOLECULE09/bear-code/internal/store/memory"
)

func TestProcessOnce_AppliesDeleteAndMarksDone(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)

	require.NoError(t, s.Outbox().Enqueue(ctx, store.OpDeleteVector, "v1", map[string]interface{}{model.MetaUserID: "u1"}))
	idx.EXPECT().Delete(gomock.Any(), "u1", "v1").Return(nil)

	w := NewWorker(s.Outbox(), idx, Config{LeaseFor: time.Millisecond}, zerolog.Nop())
	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	time.Sleep(5 * time.Millisecond)
	n, err = w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestProcessOnce_FailureBacksOff(t *testing.T) {
	ctx := context.Background()
	s := memory.New()
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)

	require.NoError(t, s.Outbox().Enqueue(ctx, store.OpDeleteVector, "v1", map[string]interface{}{model.MetaUserID: "u1"}))
	require.NoError(t, s.Outbox().Enqueue(ctx, "rebuild_everything", "x", nil))
	require.NoError(t, s.Outbox().Enqueue(ctx, store.OpDeleteVector, "v2", nil))
	idx.EXPECT().Delete(gomock.Any(), "u1", "v1").Return(errors.New("unavailable")).Times(1)

	w := NewWorker(s.Outbox(), idx, Config{LeaseFor: time.Millisecond}, zerolog.Nop())
	n, err := w.ProcessOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	// Failed jobs wait out their backoff rather than the short lease.
	time.Sleep(5 * time.Millisecond)
	jobs, err := s.Outbox().Lease(ctx, 10, time.Minute)
	require.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestRun_StopsOnCancel(t *testing.T) {
	s := memory.New()
	w := NewWorker(s.Outbox(), searchindex.NewMemoryIndex(), Config{Interval: 5 * time.Millisecond}, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()
	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		assert.True(t, errors.Is(err, context.Canceled))
	case <-time.After(time.Second):
		t.Fatalf("worker did not stop")
	}
}
