package services

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/CARBONMOLECULE09/bear-code/internal/ledger"
	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/searchindex"
	"github.com/CARBONMOLECULE09/bear-code/internal/store"
	"github.com/CARBONMOLECULE09/bear-code/internal/store/memory"
)

var testCosts = Costs{Index: 1, Search: 2}

// --- Fakes ---

type failingDocs struct{ store.Documents }

func (failingDocs) Create(context.Context, *model.CodeRecord) (*model.CodeRecord, error) {
	return nil, errors.New("connection refused")
}

type undeletableDocs struct{ store.Documents }

func (undeletableDocs) Delete(context.Context, string, string) error {
	return errors.New("record store down")
}

type docsOverride struct {
	store.Store
	docs store.Documents
}

func (s docsOverride) Documents() store.Documents { return s.docs }

type refundFailingAccounts struct{ store.Accounts }

func (a refundFailingAccounts) Apply(ctx context.Context, m model.Mutation) (*model.TransactionRecord, error) {
	if m.Kind == model.KindRefund {
		return nil, errors.New("ledger write timeout")
	}
	return a.Accounts.Apply(ctx, m)
}

type accountsOverride struct {
	store.Store
	accounts store.Accounts
}

func (s accountsOverride) Accounts() store.Accounts { return s.accounts }

type staticReadiness bool

func (r staticReadiness) IsHealthy() bool { return bool(r) }

// --- Helpers ---

func fundedStore(t *testing.T, userID string, balance int64) store.Store {
	t.Helper()
	s := memory.New()
	ctx := context.Background()
	_, err := s.Accounts().Create(ctx, userID)
	require.NoError(t, err)
	if balance > 0 {
		_, err = s.Accounts().Apply(ctx, model.Mutation{UserID: userID, Amount: balance, Kind: model.KindPurchase, Description: "seed"})
		require.NoError(t, err)
	}
	return s
}

func newService(s store.Store, idx searchindex.Index, opts ...Option) *CodeService {
	return NewCodeService(ledger.New(s, zerolog.Nop(), 0), s, idx, testCosts, zerolog.Nop(), opts...)
}

func balanceOf(t *testing.T, s store.Store, userID string) int64 {
	t.Helper()
	acc, err := s.Accounts().Get(context.Background(), userID)
	require.NoError(t, err)
	return acc.Balance
}

func docCount(t *testing.T, s store.Store, userID string) int64 {
	t.Helper()
	n, err := s.Documents().Count(context.Background(), userID)
	require.NoError(t, err)
	return n
}

// --- Indexing ---

func TestIndexCode_ThenSearchFindsIt(t *testing.T) {
	ctx := context.Background()
	s := fundedStore(t, "u1", 70)
	idx := searchindex.NewMemoryIndex()
	svc := newService(s, idx)

	rec, err := svc.IndexCode(ctx, "u1", "function foo(){}", "javascript", model.CodeMetadata{})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.VectorID)
	assert.Equal(t, int64(69), balanceOf(t, s, "u1"))
	assert.True(t, idx.Has("u1", rec.VectorID))

	resp, err := svc.SearchCode(ctx, "u1", "foo", 10, nil)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, rec.ID, resp.Results[0].ID)
	assert.Equal(t, "function foo(){}", resp.Results[0].Code)
	assert.Equal(t, int64(2), resp.CreditsUsed)
	assert.Equal(t, int64(67), balanceOf(t, s, "u1"))
}

func TestIndexCode_VectorMetadataCarriesPointer(t *testing.T) {
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)
	s := fundedStore(t, "u1", 10)
	svc := newService(s, idx)

	var got model.VectorEntry
	idx.EXPECT().Upsert(gomock.Any(), "u1", gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, e model.VectorEntry) error {
			got = e
			return nil
		})

	meta := model.CodeMetadata{FileName: "a.go", Extra: map[string]interface{}{"documentId": "spoofed"}}
	rec, err := svc.IndexCode(context.Background(), "u1", "package a", "go", meta)
	require.NoError(t, err)
	assert.Equal(t, rec.VectorID, got.ID)
	assert.Equal(t, "package a", got.Text)
	assert.Equal(t, rec.ID, got.DocumentID())
	assert.Equal(t, "u1", got.Metadata[model.MetaUserID])
	assert.Equal(t, "go", got.Metadata[model.MetaLanguage])
	assert.Equal(t, "a.go", got.Metadata["fileName"])
}

func TestIndexCode_UpsertFailureCompensates(t *testing.T) {
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)
	s := fundedStore(t, "u1", 70)
	svc := newService(s, idx)

	idx.EXPECT().Upsert(gomock.Any(), "u1", gomock.Any()).Return(errors.New("weaviate 500"))
	idx.EXPECT().Delete(gomock.Any(), "u1", gomock.Any()).Return(nil)

	_, err := svc.IndexCode(context.Background(), "u1", "function foo(){}", "javascript", model.CodeMetadata{})
	require.Error(t, err)
	assert.True(t, errors.Is(err, model.ErrIndexingFailed))
	assert.Contains(t, err.Error(), "refunded")
	assert.Equal(t, int64(70), balanceOf(t, s, "u1"))
	assert.Equal(t, int64(0), docCount(t, s, "u1"))

	page, err := ledger.New(s, zerolog.Nop(), 0).History(context.Background(), "u1", model.PageRequest{})
	require.NoError(t, err)
	require.Len(t, page.Data, 3)
	assert.Equal(t, model.KindRefund, page.Data[0].Kind)
	assert.Equal(t, model.KindUsage, page.Data[1].Kind)
}

func TestIndexCode_CallerCancelStillCompensates(t *testing.T) {
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)
	s := fundedStore(t, "u1", 5)
	svc := newService(s, idx)

	ctx, cancel := context.WithCancel(context.Background())
	idx.EXPECT().Upsert(gomock.Any(), "u1", gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ string, _ model.VectorEntry) error {
			cancel()
			return ctx.Err()
		})
	idx.EXPECT().Delete(gomock.Any(), "u1", gomock.Any()).Return(nil)

	_, err := svc.IndexCode(ctx, "u1", "x := 1", "go", model.CodeMetadata{})
	assert.True(t, errors.Is(err, model.ErrIndexingFailed))
	assert.Equal(t, int64(5), balanceOf(t, s, "u1"))
	assert.Equal(t, int64(0), docCount(t, s, "u1"))
}

func TestIndexCode_RefundFailureIsLedgerInconsistency(t *testing.T) {
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)
	base := fundedStore(t, "u1", 5)
	s := accountsOverride{Store: base, accounts: refundFailingAccounts{base.Accounts()}}
	svc := newService(s, idx)

	idx.EXPECT().Upsert(gomock.Any(), "u1", gomock.Any()).Return(errors.New("boom"))
	idx.EXPECT().Delete(gomock.Any(), "u1", gomock.Any()).Return(nil)

	_, err := svc.IndexCode(context.Background(), "u1", "x := 1", "go", model.CodeMetadata{})
	var li *model.LedgerInconsistencyError
	require.True(t, errors.As(err, &li))
	assert.Equal(t, int64(1), li.Charged)
	assert.Equal(t, int64(4), balanceOf(t, s, "u1"))
}

func TestIndexCode_OrphanRecordIsLedgerInconsistency(t *testing.T) {
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)
	base := fundedStore(t, "u1", 70)
	s := docsOverride{Store: base, docs: undeletableDocs{base.Documents()}}
	svc := newService(s, idx)

	idx.EXPECT().Upsert(gomock.Any(), "u1", gomock.Any()).Return(errors.New("weaviate 500"))
	idx.EXPECT().Delete(gomock.Any(), "u1", gomock.Any()).Return(nil)

	_, err := svc.IndexCode(context.Background(), "u1", "function foo(){}", "javascript", model.CodeMetadata{})
	var li *model.LedgerInconsistencyError
	require.True(t, errors.As(err, &li))
	assert.Equal(t, int64(0), li.Charged)
	assert.Contains(t, li.Detail, "orphan record")
	assert.False(t, errors.Is(err, model.ErrIndexingFailed))

	// The refund still happened; only the record is left behind.
	assert.Equal(t, int64(70), balanceOf(t, s, "u1"))
	assert.Equal(t, int64(1), docCount(t, s, "u1"))
}

func TestIndexCode_RecordCreateFailureRefunds(t *testing.T) {
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)
	base := fundedStore(t, "u1", 5)
	s := docsOverride{Store: base, docs: failingDocs{base.Documents()}}
	svc := newService(s, idx)

	_, err := svc.IndexCode(context.Background(), "u1", "x := 1", "go", model.CodeMetadata{})
	var su *model.StoreUnavailableError
	require.True(t, errors.As(err, &su))
	assert.Equal(t, int64(1), su.Refunded)
	assert.Contains(t, err.Error(), "refunded")
	assert.Equal(t, int64(5), balanceOf(t, s, "u1"))
}

func TestIndexCode_InsufficientCreditsTouchesNothing(t *testing.T) {
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)
	s := fundedStore(t, "u1", 0)
	svc := newService(s, idx)

	_, err := svc.IndexCode(context.Background(), "u1", "x := 1", "go", model.CodeMetadata{})
	assert.True(t, errors.Is(err, model.ErrInsufficientCredits))
	assert.Equal(t, int64(0), docCount(t, s, "u1"))
}

func TestIndexCode_Validation(t *testing.T) {
	svc := newService(fundedStore(t, "u1", 5), searchindex.NewMemoryIndex())
	_, err := svc.IndexCode(context.Background(), "u1", " ", "go", model.CodeMetadata{})
	assert.True(t, model.IsValidationError(err))
	_, err = svc.IndexCode(context.Background(), "u1", "x", "", model.CodeMetadata{})
	assert.True(t, model.IsValidationError(err))
}

// --- Search ---

func TestSearchCode_ZeroHitsStillBilledAndLogged(t *testing.T) {
	ctx := context.Background()
	s := fundedStore(t, "u1", 10)
	svc := newService(s, searchindex.NewMemoryIndex())

	resp, err := svc.SearchCode(ctx, "u1", "nothing here", 0, map[string]interface{}{"language": "go"})
	require.NoError(t, err)
	assert.Empty(t, resp.Results)
	assert.Equal(t, int64(2), resp.CreditsUsed)
	assert.Equal(t, int64(8), balanceOf(t, s, "u1"))

	hist, err := svc.SearchHistory(ctx, "u1", model.PageRequest{})
	require.NoError(t, err)
	require.Len(t, hist.Data, 1)
	assert.Equal(t, DefaultSearchLimit, hist.Data[0].Limit)
	assert.Equal(t, 0, hist.Data[0].ResultCount)
	assert.Equal(t, "go", hist.Data[0].Filters["language"])
}

func TestSearchCode_DropsDanglingHits(t *testing.T) {
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)
	s := fundedStore(t, "u1", 10)
	svc := newService(s, idx)

	doc, err := s.Documents().Create(context.Background(), &model.CodeRecord{UserID: "u1", Code: "func A()", Language: "go", VectorID: "v-live"})
	require.NoError(t, err)

	idx.EXPECT().Query(gomock.Any(), "u1", "A", 5, gomock.Nil()).Return([]model.SearchHit{
		{ID: "v-gone", Score: 0.9, Metadata: map[string]interface{}{model.MetaDocumentID: "missing"}},
		{ID: "v-nometa", Score: 0.8, Metadata: map[string]interface{}{}},
		{ID: "v-live", Score: 0.7, Metadata: map[string]interface{}{model.MetaDocumentID: doc.ID}},
	}, nil)

	resp, err := svc.SearchCode(context.Background(), "u1", "A", 5, nil)
	require.NoError(t, err)
	require.Len(t, resp.Results, 1)
	assert.Equal(t, doc.ID, resp.Results[0].ID)
	assert.InDelta(t, 0.7, resp.Results[0].Score, 1e-9)

	hist, err := svc.SearchHistory(context.Background(), "u1", model.PageRequest{})
	require.NoError(t, err)
	assert.Equal(t, 1, hist.Data[0].ResultCount)
}

func TestSearchCode_FailsClosedBeforeDebit(t *testing.T) {
	s := fundedStore(t, "u1", 10)

	_, err := newService(s, nil).SearchCode(context.Background(), "u1", "q", 10, nil)
	assert.True(t, errors.Is(err, model.ErrExternalStoreUnavailable))
	assert.Contains(t, err.Error(), "no credits were charged")

	svc := newService(s, searchindex.NewMemoryIndex(), WithIndexReadiness(staticReadiness(false)))
	_, err = svc.SearchCode(context.Background(), "u1", "q", 10, nil)
	assert.True(t, errors.Is(err, model.ErrExternalStoreUnavailable))
	assert.Equal(t, int64(10), balanceOf(t, s, "u1"))
}

func TestSearchCode_QueryFailureAfterDebitReportsCharge(t *testing.T) {
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)
	s := fundedStore(t, "u1", 10)
	svc := newService(s, idx, WithIndexReadiness(staticReadiness(true)))

	idx.EXPECT().Query(gomock.Any(), "u1", "q", 10, gomock.Any()).Return(nil, errors.New("timeout"))

	_, err := svc.SearchCode(context.Background(), "u1", "q", 10, nil)
	var su *model.StoreUnavailableError
	require.True(t, errors.As(err, &su))
	assert.Equal(t, int64(2), su.Charged)
	assert.Contains(t, err.Error(), "2 credits were charged")
	assert.Equal(t, int64(8), balanceOf(t, s, "u1"))
}

func TestSearchCode_LimitBounds(t *testing.T) {
	svc := newService(fundedStore(t, "u1", 10), searchindex.NewMemoryIndex())
	_, err := svc.SearchCode(context.Background(), "u1", "q", 101, nil)
	assert.True(t, model.IsValidationError(err))
	_, err = svc.SearchCode(context.Background(), "u1", "q", -1, nil)
	assert.True(t, model.IsValidationError(err))
	_, err = svc.SearchCode(context.Background(), "u1", "", 10, nil)
	assert.True(t, model.IsValidationError(err))
}

// --- Deletion ---

func TestDeleteDocument_VectorAlreadyGone(t *testing.T) {
	ctx := context.Background()
	s := fundedStore(t, "u1", 10)
	idx := searchindex.NewMemoryIndex()
	svc := newService(s, idx)

	rec, err := svc.IndexCode(ctx, "u1", "func gone()", "go", model.CodeMetadata{})
	require.NoError(t, err)
	require.NoError(t, idx.Delete(ctx, "u1", rec.VectorID))

	require.NoError(t, svc.DeleteDocument(ctx, "u1", rec.ID))
	_, err = s.Documents().Get(ctx, "u1", rec.ID)
	assert.True(t, errors.Is(err, model.ErrNotFound))
}

func TestDeleteDocument_IndexFailureQueuesRetry(t *testing.T) {
	ctrl := gomock.NewController(t)
	idx := searchindex.NewMockIndex(ctrl)
	s := fundedStore(t, "u1", 10)
	svc := newService(s, idx)
	ctx := context.Background()

	doc, err := s.Documents().Create(ctx, &model.CodeRecord{UserID: "u1", Code: "x", Language: "go", VectorID: "v1"})
	require.NoError(t, err)
	idx.EXPECT().Delete(gomock.Any(), "u1", "v1").Return(errors.New("unreachable"))

	require.NoError(t, svc.DeleteDocument(ctx, "u1", doc.ID))
	assert.Equal(t, int64(0), docCount(t, s, "u1"))

	jobs, err := s.Outbox().Lease(ctx, 10, 0)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, store.OpDeleteVector, jobs[0].Op)
	assert.Equal(t, "v1", jobs[0].AggregateID)
	assert.Equal(t, "u1", jobs[0].Payload[model.MetaUserID])
}

func TestDeleteDocument_ForeignOrMissing(t *testing.T) {
	ctx := context.Background()
	s := fundedStore(t, "u1", 10)
	svc := newService(s, searchindex.NewMemoryIndex())

	doc, err := s.Documents().Create(ctx, &model.CodeRecord{UserID: "u1", Code: "x", Language: "go"})
	require.NoError(t, err)

	assert.True(t, errors.Is(svc.DeleteDocument(ctx, "u2", doc.ID), model.ErrNotFound))
	assert.True(t, errors.Is(svc.DeleteDocument(ctx, "u1", "nope"), model.ErrNotFound))
	assert.Equal(t, int64(1), docCount(t, s, "u1"))
}

// --- Listing and stats ---

func TestListDocumentsAndStats(t *testing.T) {
	ctx := context.Background()
	s := fundedStore(t, "u1", 10)
	svc := newService(s, searchindex.NewMemoryIndex())

	for _, code := range []string{"func a()", "func b()", "func c()"} {
		_, err := svc.IndexCode(ctx, "u1", code, "go", model.CodeMetadata{})
		require.NoError(t, err)
	}
	_, err := svc.SearchCode(ctx, "u1", "func", 10, nil)
	require.NoError(t, err)

	page, err := svc.ListDocuments(ctx, "u1", model.PageRequest{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Len(t, page.Data, 2)
	assert.Equal(t, int64(3), page.Pagination.Total)
	assert.Equal(t, int64(2), page.Pagination.TotalPages)

	stats, err := NewStatsService(s).UserStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, model.UserStats{TotalSearches: 1, TotalDocuments: 3, TotalCreditsUsed: 5}, stats)

	st, err := svc.IndexStats(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(3), st.VectorCount)
}
