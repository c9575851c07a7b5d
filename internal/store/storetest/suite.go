package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
)

// Run exercises the compliance suite against a store.Store implementation.
// Implementations should provide a clean, isolated store and return it from makeStore.
func Run(t *testing.T, makeStore func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("Accounts", func(t *testing.T) { testAccounts(t, makeStore(t)) })
	t.Run("LedgerHistory", func(t *testing.T) { testLedgerHistory(t, makeStore(t)) })
	t.Run("ConcurrentDebits", func(t *testing.T) { testConcurrentDebits(t, makeStore(t)) })
	t.Run("Documents", func(t *testing.T) { testDocuments(t, makeStore(t)) })
	t.Run("SearchQueries", func(t *testing.T) { testSearchQueries(t, makeStore(t)) })
	t.Run("Outbox", func(t *testing.T) { testOutbox(t, makeStore(t)) })
}

func newUser() string { return "u-" + uuid.New().String() }

func credit(userID string, amount int64) model.Mutation {
	return model.Mutation{UserID: userID, Amount: amount, Kind: model.KindPurchase, Description: "test purchase"}
}

func debit(userID string, amount int64) model.Mutation {
	return model.Mutation{UserID: userID, Amount: amount, Kind: model.KindUsage, Operation: "index_code", Description: "test usage"}
}

func testAccounts(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()

	acc, err := s.Accounts().Create(ctx, userID)
	if err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if acc.Balance != 0 || !acc.Active {
		t.Fatalf("CreateAccount: unexpected state %+v", acc)
	}
	if _, err := s.Accounts().Create(ctx, userID); !errors.Is(err, model.ErrConflict) {
		t.Fatalf("CreateAccount duplicate: want conflict, got %v", err)
	}
	if _, err := s.Accounts().Get(ctx, newUser()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetAccount unknown: want not found, got %v", err)
	}

	rec, err := s.Accounts().Apply(ctx, credit(userID, 100))
	if err != nil {
		t.Fatalf("Apply credit: %v", err)
	}
	if rec.BalanceBefore != 0 || rec.BalanceAfter != 100 || rec.Amount != 100 || rec.Sequence != 1 {
		t.Fatalf("Apply credit: unexpected record %+v", rec)
	}

	rec, err = s.Accounts().Apply(ctx, debit(userID, 30))
	if err != nil {
		t.Fatalf("Apply debit: %v", err)
	}
	if rec.BalanceBefore != 100 || rec.BalanceAfter != 70 || rec.Amount != -30 || rec.Sequence != 2 {
		t.Fatalf("Apply debit: unexpected record %+v", rec)
	}

	_, err = s.Accounts().Apply(ctx, debit(userID, 71))
	var ice *model.InsufficientCreditsError
	if !errors.As(err, &ice) {
		t.Fatalf("Apply overdraft: want insufficient credits, got %v", err)
	}
	if ice.Required != 71 || ice.Available != 70 {
		t.Fatalf("Apply overdraft: unexpected error detail %+v", ice)
	}

	got, err := s.Accounts().Get(ctx, userID)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if got.Balance != 70 || got.Version != 2 {
		t.Fatalf("GetAccount: balance=%d version=%d", got.Balance, got.Version)
	}

	if _, err := s.Accounts().Apply(ctx, debit(newUser(), 1)); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Apply unknown account: want not found, got %v", err)
	}

	if err := s.Accounts().Deactivate(ctx, userID); err != nil {
		t.Fatalf("Deactivate: %v", err)
	}
	if _, err := s.Accounts().Apply(ctx, debit(userID, 1)); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Apply on inactive account: want not found, got %v", err)
	}
	if got, err := s.Accounts().Get(ctx, userID); err != nil || got.Active || got.Balance != 70 {
		t.Fatalf("GetAccount after deactivate: got=%+v err=%v", got, err)
	}
	if err := s.Accounts().Deactivate(ctx, newUser()); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("Deactivate unknown: want not found, got %v", err)
	}
}

func testLedgerHistory(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	if _, err := s.Accounts().Create(ctx, userID); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}

	muts := []model.Mutation{
		{UserID: userID, Amount: 100, Kind: model.KindBonus, Description: "Welcome bonus credits"},
		debit(userID, 1),
		{UserID: userID, Amount: 2, Kind: model.KindUsage, Operation: "search_code", Description: "search"},
		{UserID: userID, Amount: 1, Kind: model.KindRefund, Description: "indexing failed, refund", Metadata: map[string]interface{}{"originalTransactionId": "t-1"}},
	}
	for _, m := range muts {
		if _, err := s.Accounts().Apply(ctx, m); err != nil {
			t.Fatalf("Apply %s: %v", m.Kind, err)
		}
	}

	recs, total, err := s.Transactions().List(ctx, userID, model.PageRequest{Page: 1, Limit: 3})
	if err != nil {
		t.Fatalf("ListTransactions: %v", err)
	}
	if total != 4 || len(recs) != 3 {
		t.Fatalf("ListTransactions: total=%d n=%d", total, len(recs))
	}
	if recs[0].Kind != model.KindRefund || recs[0].Sequence != 4 || recs[2].Sequence != 2 {
		t.Fatalf("ListTransactions: not newest-first: %+v", recs)
	}
	if recs[0].Metadata["originalTransactionId"] != "t-1" {
		t.Fatalf("ListTransactions: metadata lost: %+v", recs[0].Metadata)
	}
	for _, r := range recs {
		if r.BalanceAfter != r.BalanceBefore+r.Amount || r.BalanceAfter < 0 {
			t.Fatalf("ListTransactions: arithmetic broken in %+v", r)
		}
	}

	recs, _, err = s.Transactions().List(ctx, userID, model.PageRequest{Page: 2, Limit: 3})
	if err != nil || len(recs) != 1 || recs[0].Kind != model.KindBonus {
		t.Fatalf("ListTransactions page 2: n=%d err=%v", len(recs), err)
	}

	used, err := s.Transactions().SumUsage(ctx, userID)
	if err != nil || used != 3 {
		t.Fatalf("SumUsage: used=%d err=%v", used, err)
	}
}

func testConcurrentDebits(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	if _, err := s.Accounts().Create(ctx, userID); err != nil {
		t.Fatalf("CreateAccount: %v", err)
	}
	if _, err := s.Accounts().Apply(ctx, credit(userID, 100)); err != nil {
		t.Fatalf("Apply credit: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Accounts().Apply(ctx, debit(userID, 60))
		}(i)
	}
	wg.Wait()

	var ok, insufficient int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, model.ErrInsufficientCredits):
			insufficient++
		default:
			t.Fatalf("concurrent debit: unexpected error %v", err)
		}
	}
	if ok != 1 || insufficient != 1 {
		t.Fatalf("concurrent debit: ok=%d insufficient=%d", ok, insufficient)
	}
	acc, err := s.Accounts().Get(ctx, userID)
	if err != nil || acc.Balance != 40 {
		t.Fatalf("concurrent debit: balance=%v err=%v", acc, err)
	}
	_, total, err := s.Transactions().List(ctx, userID, model.PageRequest{Page: 1, Limit: 10})
	if err != nil || total != 2 {
		t.Fatalf("concurrent debit: log entries=%d err=%v", total, err)
	}
}

func testDocuments(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()
	other := newUser()

	meta := model.CodeMetadata{FileName: "main.go", Tags: []string{"cli"}, Extra: map[string]interface{}{"repo": "x"}}
	var ids []string
	for i := 0; i < 3; i++ {
		d, err := s.Documents().Create(ctx, &model.CodeRecord{
			UserID: userID, Code: "package main", Language: "go", Metadata: meta, VectorID: uuid.New().String(),
		})
		if err != nil {
			t.Fatalf("CreateDocument: %v", err)
		}
		if d.ID == "" || d.CreatedAt.IsZero() {
			t.Fatalf("CreateDocument: missing id or timestamp %+v", d)
		}
		ids = append(ids, d.ID)
		time.Sleep(2 * time.Millisecond)
	}

	got, err := s.Documents().Get(ctx, userID, ids[0])
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Metadata.FileName != "main.go" || len(got.Metadata.Tags) != 1 || got.Metadata.Extra["repo"] != "x" {
		t.Fatalf("GetDocument: metadata not preserved %+v", got.Metadata)
	}
	if _, err := s.Documents().Get(ctx, other, ids[0]); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("GetDocument foreign owner: want not found, got %v", err)
	}

	lst, total, err := s.Documents().List(ctx, userID, model.PageRequest{Page: 1, Limit: 2})
	if err != nil || total != 3 || len(lst) != 2 {
		t.Fatalf("ListDocuments: total=%d n=%d err=%v", total, len(lst), err)
	}
	if lst[0].ID != ids[2] {
		t.Fatalf("ListDocuments: want newest first, got %s", lst[0].ID)
	}

	if err := s.Documents().Delete(ctx, other, ids[0]); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("DeleteDocument foreign owner: want not found, got %v", err)
	}
	if err := s.Documents().Delete(ctx, userID, ids[0]); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}
	if err := s.Documents().Delete(ctx, userID, ids[0]); !errors.Is(err, model.ErrNotFound) {
		t.Fatalf("DeleteDocument twice: want not found, got %v", err)
	}
	if n, err := s.Documents().Count(ctx, userID); err != nil || n != 2 {
		t.Fatalf("CountDocuments: n=%d err=%v", n, err)
	}
}

func testSearchQueries(t *testing.T, s store.Store) {
	ctx := context.Background()
	userID := newUser()

	for i := 0; i < 2; i++ {
		q, err := s.SearchQueries().Create(ctx, &model.SearchQueryLog{
			UserID: userID, Query: "parse json", Filters: map[string]interface{}{"language": "go"},
			Limit: 10, ResultCount: i, CreditsUsed: 2,
		})
		if err != nil {
			t.Fatalf("CreateSearchQuery: %v", err)
		}
		if q.ID == "" {
			t.Fatalf("CreateSearchQuery: empty id")
		}
		time.Sleep(2 * time.Millisecond)
	}

	lst, total, err := s.SearchQueries().List(ctx, userID, model.PageRequest{Page: 1, Limit: 20})
	if err != nil || total != 2 || len(lst) != 2 {
		t.Fatalf("ListSearchQueries: total=%d n=%d err=%v", total, len(lst), err)
	}
	if lst[0].ResultCount != 1 || lst[0].Filters["language"] != "go" || lst[0].CreditsUsed != 2 {
		t.Fatalf("ListSearchQueries: unexpected newest entry %+v", lst[0])
	}
	if n, err := s.SearchQueries().Count(ctx, newUser()); err != nil || n != 0 {
		t.Fatalf("CountSearchQueries other user: n=%d err=%v", n, err)
	}
}

func testOutbox(t *testing.T, s store.Store) {
	ctx := context.Background()
	vectorID := uuid.New().String()
	if err := s.Outbox().Enqueue(ctx, store.OpDeleteVector, vectorID, map[string]interface{}{"userId": "u-1"}); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	jobs, err := s.Outbox().Lease(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("Lease: %v", err)
	}
	var job *store.OutboxJob
	for i := range jobs {
		if jobs[i].AggregateID == vectorID {
			job = &jobs[i]
		}
	}
	if job == nil {
		t.Fatalf("Lease: enqueued job not returned (n=%d)", len(jobs))
	}
	if job.Op != store.OpDeleteVector || job.Payload["userId"] != "u-1" {
		t.Fatalf("Lease: unexpected job %+v", job)
	}

	again, err := s.Outbox().Lease(ctx, 10, time.Minute)
	if err != nil {
		t.Fatalf("Lease again: %v", err)
	}
	for _, j := range again {
		if j.ID == job.ID {
			t.Fatalf("Lease again: leased job returned twice")
		}
	}

	if err := s.Outbox().MarkFailed(ctx, job.ID); err != nil {
		t.Fatalf("MarkFailed: %v", err)
	}
	if err := s.Outbox().MarkDone(ctx, job.ID); err != nil {
		t.Fatalf("MarkDone: %v", err)
	}
}
