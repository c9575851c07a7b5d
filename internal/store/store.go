package store

import (
	"context"
	"time"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
)

// Store exposes persistence operations required by services.
// Implementations live under internal/store/<driver>/ (postgres, sqlite, mongo, memory).
type Store interface {
	Accounts() Accounts
	Transactions() Transactions
	Documents() Documents
	SearchQueries() SearchQueries
	Outbox() Outbox
}

// Accounts owns balances. Apply is the only way to change a balance: it performs a
// single conditional update (for debits, predicated on balance >= amount) and appends
// the matching TransactionRecord so that neither can exist without the other.
type Accounts interface {
	Create(ctx context.Context, userID string) (*model.Account, error)
	Get(ctx context.Context, userID string) (*model.Account, error)
	Apply(ctx context.Context, m model.Mutation) (*model.TransactionRecord, error)
	Deactivate(ctx context.Context, userID string) error
}

type Transactions interface {
	List(ctx context.Context, userID string, page model.PageRequest) ([]*model.TransactionRecord, int64, error)
	SumUsage(ctx context.Context, userID string) (int64, error)
}

type Documents interface {
	Create(ctx context.Context, d *model.CodeRecord) (*model.CodeRecord, error)
	Get(ctx context.Context, userID, documentID string) (*model.CodeRecord, error)
	List(ctx context.Context, userID string, page model.PageRequest) ([]*model.CodeRecord, int64, error)
	Count(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, userID, documentID string) error
}

type SearchQueries interface {
	Create(ctx context.Context, q *model.SearchQueryLog) (*model.SearchQueryLog, error)
	List(ctx context.Context, userID string, page model.PageRequest) ([]*model.SearchQueryLog, int64, error)
	Count(ctx context.Context, userID string) (int64, error)
}

// Outbox operation names (idempotent targets).
const (
	OpDeleteVector = "delete_vector"
)

// OutboxJob is a leased outbox row.
type OutboxJob struct {
	ID          string
	Op          string
	AggregateID string
	Payload     map[string]interface{}
	Attempts    int
}

// Outbox queues index maintenance that must eventually be applied.
type Outbox interface {
	Enqueue(ctx context.Context, op, aggregateID string, payload map[string]interface{}) error
	// Lease returns up to n ready jobs and hides them from other workers for leaseFor.
	Lease(ctx context.Context, n int, leaseFor time.Duration) ([]OutboxJob, error)
	MarkDone(ctx context.Context, id string) error
	MarkFailed(ctx context.Context, id string) error
}

// Closer is optionally implemented by a Store that owns a connection.
type Closer interface {
	Close() error
}
