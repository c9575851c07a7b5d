package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/searchindex"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

// Config controls batch size and polling cadence.
type Config struct {
	BatchSize int           // number of jobs to lease per cycle
	Interval  time.Duration // poll interval
	LeaseFor  time.Duration // how long a leased job stays hidden from other workers
}

// Worker drains the outbox and applies queued operations to the vector index.
type Worker struct {
	outbox store.Outbox
	index  searchindex.Index
	log    zerolog.Logger
	cfg    Config
}

// NewWorker constructs a Worker from dependencies.
func NewWorker(ob store.Outbox, idx searchindex.Index, cfg Config, log zerolog.Logger) *Worker {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 100
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 2 * time.Second
	}
	if cfg.LeaseFor <= 0 {
		cfg.LeaseFor = time.Minute
	}
	return &Worker{outbox: ob, index: idx, log: log, cfg: cfg}
}

// Run starts the polling loop until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	w.log.Info().Int("batch", w.cfg.BatchSize).Dur("interval", w.cfg.Interval).Msg("outbox worker starting")
	ticker := time.NewTicker(w.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("outbox worker stopping")
			return ctx.Err()
		case <-ticker.C:
			if _, err := w.ProcessOnce(ctx); err != nil {
				// per-job backoff prevents hot-looping
				w.log.Error().Err(err).Msg("outbox processOnce")
			}
		}
	}
}

// ProcessOnce leases one batch and applies it. It returns the number of jobs completed.
func (w *Worker) ProcessOnce(ctx context.Context) (int, error) {
	jobs, err := w.outbox.Lease(ctx, w.cfg.BatchSize, w.cfg.LeaseFor)
	if err != nil {
		return 0, err
	}

	var done int
	for _, j := range jobs {
		if err := w.handle(ctx, j); err != nil {
			w.log.Warn().Err(err).Str("id", j.ID).Str("op", j.Op).Int("attempts", j.Attempts+1).Msg("outbox job failed")
			if e := w.outbox.MarkFailed(ctx, j.ID); e != nil {
				w.log.Error().Err(e).Str("id", j.ID).Msg("markFailed error")
			}
			continue
		}
		if e := w.outbox.MarkDone(ctx, j.ID); e != nil {
			w.log.Error().Err(e).Str("id", j.ID).Msg("markDone error")
			continue
		}
		done++
	}
	return done, nil
}

// handle executes the outbox operation.
func (w *Worker) handle(ctx context.Context, j store.OutboxJob) error {
	switch j.Op {
	case store.OpDeleteVector:
		userID := stringField(j.Payload, model.MetaUserID)
		if userID == "" {
			return fmt.Errorf("delete_vector %s: payload missing %s", j.AggregateID, model.MetaUserID)
		}
		return w.index.Delete(ctx, userID, j.AggregateID)
	default:
		return fmt.Errorf("unknown op: %s", j.Op)
	}
}

func stringField(m map[string]interface{}, key string) string {
	if s, ok := m[key].(string); ok {
		return s
	}
	return ""
}
