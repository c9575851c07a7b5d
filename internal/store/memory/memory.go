// Package memory is an in-process store used by tests and the local dev target.
package memory

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

// New returns an empty store.
func New() store.Store {
	return &memStore{
		accounts: make(map[string]*account),
		docs:     make(map[string]*model.CodeRecord),
		outbox:   make(map[int64]*outboxRow),
	}
}

type account struct {
	mu   sync.Mutex
	acc  model.Account
	logs []*model.TransactionRecord
}

type outboxRow struct {
	job       store.OutboxJob
	done      bool
	nextReady time.Time
}

type memStore struct {
	mu       sync.RWMutex // guards the maps, not account state
	accounts map[string]*account
	docs     map[string]*model.CodeRecord
	queries  []*model.SearchQueryLog
	outbox   map[int64]*outboxRow
	outboxID int64
}

func (s *memStore) Accounts() store.Accounts           { return (*accounts)(s) }
func (s *memStore) Transactions() store.Transactions   { return (*transactions)(s) }
func (s *memStore) Documents() store.Documents         { return (*documents)(s) }
func (s *memStore) SearchQueries() store.SearchQueries { return (*searchQueries)(s) }
func (s *memStore) Outbox() store.Outbox               { return (*outbox)(s) }

func (s *memStore) HealthPing(ctx context.Context) error { return ctx.Err() }

func (s *memStore) account(userID string) *account {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accounts[userID]
}

// --- Accounts ---
type accounts memStore

func (a *accounts) Create(_ context.Context, userID string) (*model.Account, error) {
	s := (*memStore)(a)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.accounts[userID]; ok {
		return nil, model.NewConflictError("userId", "account already exists")
	}
	now := time.Now().UTC()
	acc := &account{acc: model.Account{UserID: userID, Active: true, CreatedAt: now, UpdatedAt: now}}
	s.accounts[userID] = acc
	out := acc.acc
	return &out, nil
}

func (a *accounts) Get(_ context.Context, userID string) (*model.Account, error) {
	acc := (*memStore)(a).account(userID)
	if acc == nil {
		return nil, model.NewNotFoundError("account", userID)
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	out := acc.acc
	return &out, nil
}

func (a *accounts) Apply(ctx context.Context, m model.Mutation) (*model.TransactionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	acc := (*memStore)(a).account(m.UserID)
	if acc == nil {
		return nil, model.NewNotFoundError("account", m.UserID)
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()

	if m.Kind == model.KindUsage {
		if !acc.acc.Active {
			return nil, model.NewNotFoundError("account", m.UserID+" is inactive")
		}
		if acc.acc.Balance < m.Amount {
			return nil, &model.InsufficientCreditsError{Required: m.Amount, Available: acc.acc.Balance}
		}
	}

	now := time.Now().UTC()
	before := acc.acc.Balance
	acc.acc.Balance += m.Signed()
	acc.acc.Version++
	acc.acc.UpdatedAt = now

	rec := &model.TransactionRecord{
		ID:            uuid.New().String(),
		UserID:        m.UserID,
		Amount:        m.Signed(),
		Kind:          m.Kind,
		Operation:     m.Operation,
		Description:   m.Description,
		BalanceBefore: before,
		BalanceAfter:  acc.acc.Balance,
		Metadata:      copyMap(m.Metadata),
		Sequence:      acc.acc.Version,
		CreatedAt:     now,
	}
	acc.logs = append(acc.logs, rec)
	return cloneTransaction(rec), nil
}

func (a *accounts) Deactivate(_ context.Context, userID string) error {
	acc := (*memStore)(a).account(userID)
	if acc == nil {
		return model.NewNotFoundError("account", userID)
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	acc.acc.Active = false
	acc.acc.UpdatedAt = time.Now().UTC()
	return nil
}

// --- Transactions ---
type transactions memStore

func (t *transactions) List(_ context.Context, userID string, page model.PageRequest) ([]*model.TransactionRecord, int64, error) {
	acc := (*memStore)(t).account(userID)
	if acc == nil {
		return nil, 0, nil
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()

	total := len(acc.logs)
	var out []*model.TransactionRecord
	// logs are appended in sequence order; walk backwards for newest-first
	for i := total - 1 - page.Offset(); i >= 0 && len(out) < page.Limit; i-- {
		out = append(out, cloneTransaction(acc.logs[i]))
	}
	return out, int64(total), nil
}

func (t *transactions) SumUsage(_ context.Context, userID string) (int64, error) {
	acc := (*memStore)(t).account(userID)
	if acc == nil {
		return 0, nil
	}
	acc.mu.Lock()
	defer acc.mu.Unlock()
	var sum int64
	for _, r := range acc.logs {
		if r.Kind == model.KindUsage {
			sum += -r.Amount
		}
	}
	return sum, nil
}

// --- Documents ---
type documents memStore

func (d *documents) Create(ctx context.Context, rec *model.CodeRecord) (*model.CodeRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := (*memStore)(d)
	out := *cloneDocument(rec)
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	out.CreatedAt, out.UpdatedAt = now, now

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[out.ID]; ok {
		return nil, model.NewConflictError("documentId", out.ID)
	}
	s.docs[out.ID] = cloneDocument(&out)
	return &out, nil
}

func (d *documents) Get(_ context.Context, userID, documentID string) (*model.CodeRecord, error) {
	s := (*memStore)(d)
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.docs[documentID]
	if !ok || rec.UserID != userID {
		return nil, model.NewNotFoundError("document", documentID)
	}
	return cloneDocument(rec), nil
}

func (d *documents) List(_ context.Context, userID string, page model.PageRequest) ([]*model.CodeRecord, int64, error) {
	s := (*memStore)(d)
	s.mu.RLock()
	var owned []*model.CodeRecord
	for _, rec := range s.docs {
		if rec.UserID == userID {
			owned = append(owned, cloneDocument(rec))
		}
	}
	s.mu.RUnlock()

	sort.Slice(owned, func(i, j int) bool {
		if owned[i].CreatedAt.Equal(owned[j].CreatedAt) {
			return owned[i].ID > owned[j].ID
		}
		return owned[i].CreatedAt.After(owned[j].CreatedAt)
	})
	return paginate(owned, page), int64(len(owned)), nil
}

func (d *documents) Count(_ context.Context, userID string) (int64, error) {
	s := (*memStore)(d)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, rec := range s.docs {
		if rec.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (d *documents) Delete(ctx context.Context, userID, documentID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s := (*memStore)(d)
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.docs[documentID]
	if !ok || rec.UserID != userID {
		return model.NewNotFoundError("document", documentID)
	}
	delete(s.docs, documentID)
	return nil
}

// --- Search queries ---
type searchQueries memStore

func (q *searchQueries) Create(ctx context.Context, in *model.SearchQueryLog) (*model.SearchQueryLog, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := (*memStore)(q)
	out := *in
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	out.CreatedAt = time.Now().UTC()
	out.Filters = copyMap(in.Filters)
	stored := out
	stored.Filters = copyMap(out.Filters)
	s.mu.Lock()
	s.queries = append(s.queries, &stored)
	s.mu.Unlock()
	return &out, nil
}

func (q *searchQueries) List(_ context.Context, userID string, page model.PageRequest) ([]*model.SearchQueryLog, int64, error) {
	s := (*memStore)(q)
	s.mu.RLock()
	var owned []*model.SearchQueryLog
	for i := len(s.queries) - 1; i >= 0; i-- {
		if s.queries[i].UserID == userID {
			cp := *s.queries[i]
			cp.Filters = copyMap(cp.Filters)
			owned = append(owned, &cp)
		}
	}
	s.mu.RUnlock()
	return paginate(owned, page), int64(len(owned)), nil
}

func (q *searchQueries) Count(_ context.Context, userID string) (int64, error) {
	s := (*memStore)(q)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, e := range s.queries {
		if e.UserID == userID {
			n++
		}
	}
	return n, nil
}

// --- Outbox ---
type outbox memStore

func (o *outbox) Enqueue(_ context.Context, op, aggregateID string, payload map[string]interface{}) error {
	s := (*memStore)(o)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outboxID++
	s.outbox[s.outboxID] = &outboxRow{
		job: store.OutboxJob{
			ID:          strconv.FormatInt(s.outboxID, 10),
			Op:          op,
			AggregateID: aggregateID,
			Payload:     copyMap(payload),
		},
		nextReady: time.Now(),
	}
	return nil
}

func (o *outbox) Lease(_ context.Context, n int, leaseFor time.Duration) ([]store.OutboxJob, error) {
	s := (*memStore)(o)
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]int64, 0, len(s.outbox))
	for id := range s.outbox {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	now := time.Now()
	var jobs []store.OutboxJob
	for _, id := range ids {
		if len(jobs) >= n {
			break
		}
		row := s.outbox[id]
		if row.done || row.nextReady.After(now) {
			continue
		}
		row.nextReady = now.Add(leaseFor)
		job := row.job
		job.Payload = copyMap(row.job.Payload)
		jobs = append(jobs, job)
	}
	return jobs, nil
}

func (o *outbox) MarkDone(_ context.Context, id string) error {
	s := (*memStore)(o)
	s.mu.Lock()
	defer s.mu.Unlock()
	if row := s.lookupOutbox(id); row != nil {
		row.done = true
	}
	return nil
}

func (o *outbox) MarkFailed(_ context.Context, id string) error {
	s := (*memStore)(o)
	s.mu.Lock()
	defer s.mu.Unlock()
	row := s.lookupOutbox(id)
	if row == nil {
		return nil
	}
	row.job.Attempts++
	backoff := time.Duration(1<<uint(min(row.job.Attempts, 9))) * time.Second
	if backoff > 300*time.Second {
		backoff = 300 * time.Second
	}
	row.nextReady = time.Now().Add(backoff)
	return nil
}

func (s *memStore) lookupOutbox(id string) *outboxRow {
	n, err := strconv.ParseInt(id, 10, 64)
	if err != nil {
		return nil
	}
	return s.outbox[n]
}

func paginate[T any](items []T, page model.PageRequest) []T {
	off := page.Offset()
	if off >= len(items) {
		return nil
	}
	end := off + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[off:end]
}

func cloneTransaction(rec *model.TransactionRecord) *model.TransactionRecord {
	out := *rec
	out.Metadata = copyMap(rec.Metadata)
	return &out
}

// cloneDocument copies a record so callers never share Tags or Extra with the store.
func cloneDocument(rec *model.CodeRecord) *model.CodeRecord {
	out := *rec
	if rec.Metadata.Tags != nil {
		out.Metadata.Tags = append([]string(nil), rec.Metadata.Tags...)
	}
	out.Metadata.Extra = copyMap(rec.Metadata.Extra)
	return &out
}

func copyMap(in map[string]interface{}) map[string]interface{} {
	if in == nil {
		return nil
	}
	out := make(map[string]interface{}, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}
