package services

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/CARBONMOLECULE09/bear-code/internal/ledger"
	"github.com/CARBONMOLECULE09/bear-code/internal/searchindex"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

// Operation names written to usage records.
const (
	OpIndexCode  = "index_code"
	OpSearchCode = "search_code"
)

const (
	DefaultSearchLimit = 10
	MaxSearchLimit     = 100

	// compensationTimeout bounds cleanup that runs after the caller has gone away.
	compensationTimeout = 30 * time.Second
)

// Costs are the per-operation credit prices.
type Costs struct {
	Index  int64
	Search int64
}

// Readiness reports whether a dependency can currently be attempted.
type Readiness interface {
	IsHealthy() bool
}

// CodeService runs the billed indexing and search flows and document deletion.
type CodeService struct {
	ledger *ledger.Ledger
	store  store.Store
	idx    searchindex.Index
	ready  Readiness
	costs  Costs
	log    zerolog.Logger
}

// Option configures a CodeService.
type Option func(*CodeService)

// WithIndexReadiness makes SearchCode fail closed while r reports the index unhealthy.
func WithIndexReadiness(r Readiness) Option {
	return func(s *CodeService) { s.ready = r }
}

// NewCodeService wires the flows. idx may be nil, in which case billed index operations fail
// without charging.
func NewCodeService(l *ledger.Ledger, s store.Store, idx searchindex.Index, costs Costs, log zerolog.Logger, opts ...Option) *CodeService {
	svc := &CodeService{
		ledger: l,
		store:  s,
		idx:    idx,
		costs:  costs,
		log:    log.With().Str("component", "code_service").Logger(),
	}
	for _, o := range opts {
		o(svc)
	}
	return svc
}

func (s *CodeService) indexAvailable() bool {
	if s.idx == nil {
		return false
	}
	return s.ready == nil || s.ready.IsHealthy()
}

// detached returns a context that survives caller cancellation for compensation work.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
}
