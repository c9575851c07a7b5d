package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CARBONMOLECULE09/bear-code/internal/auth"
	"github.com/CARBONMOLECULE09/bear-code/internal/ledger"
	"github.com/CARBONMOLECULE09/bear-code/internal/model"
	"github.com/CARBONMOLECULE09/bear-code/internal/searchindex"
	"github.com/CARBONMOLECULE09/bear-code/internal/services"
	"github.com/CARBONMOLECULE09/bear-code/internal/store/memory"
)

type testServer struct {
	router http.Handler
	index  *searchindex.MemoryIndex
}

func newTestServer(t *testing.T, idx searchindex.Index) *testServer {
	t.Helper()
	log := zerolog.Nop()
	st := memory.New()
	l := ledger.New(st, log, 10)
	mem := searchindex.NewMemoryIndex()
	if idx == nil {
		idx = mem
	}
	code := services.NewCodeService(l, st, idx, services.Costs{Index: 1, Search: 2}, log)
	r := NewRouter(Deps{
		Ledger: l,
		Code:   code,
		Stats:  services.NewStatsService(st),
		Users:  auth.NewHeaderResolver(false),
		Health: fakeHealth{ok: true},
	})
	return &testServer{router: r, index: mem}
}

func (s *testServer) do(t *testing.T, method, path, user string, body interface{}, hdr ...string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if user != "" {
		req.Header.Set(auth.UserIDHeader, user)
	}
	for i := 0; i+1 < len(hdr); i += 2 {
		req.Header.Set(hdr[i], hdr[i+1])
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func balanceOf(t *testing.T, s *testServer, user string) int64 {
	t.Helper()
	w := s.do(t, http.MethodGet, "/api/v1/credits/balance", user, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	return decode[map[string]int64](t, w)["balance"]
}

func TestAPI_IndexSearchDeleteFlow(t *testing.T) {
	s := newTestServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/v1/accounts", "alice", nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.EqualValues(t, 10, balanceOf(t, s, "alice"))

	w = s.do(t, http.MethodPost, "/api/v1/search/index", "alice", map[string]interface{}{
		"code":     "func binarySearch(xs []int, target int) int",
		"language": "go",
		"metadata": map[string]interface{}{"fileName": "search.go", "repo": "algos"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	doc := decode[model.CodeRecord](t, w)
	assert.Equal(t, "search.go", doc.Metadata.FileName)
	assert.Equal(t, "algos", doc.Metadata.Extra["repo"])
	assert.EqualValues(t, 9, balanceOf(t, s, "alice"))

	w = s.do(t, http.MethodPost, "/api/v1/search/query", "alice", map[string]interface{}{"query": "binarySearch target"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	res := decode[services.SearchResponse](t, w)
	require.Len(t, res.Results, 1)
	assert.Equal(t, doc.ID, res.Results[0].ID)
	assert.EqualValues(t, 2, res.CreditsUsed)
	assert.EqualValues(t, 7, balanceOf(t, s, "alice"))

	w = s.do(t, http.MethodGet, "/api/v1/search/history", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	hist := decode[model.Page[*model.SearchQueryLog]](t, w)
	require.Len(t, hist.Data, 1)
	assert.Equal(t, 1, hist.Data[0].ResultCount)

	w = s.do(t, http.MethodDelete, "/api/v1/search/documents/"+doc.ID, "bob", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodDelete, "/api/v1/search/documents/"+doc.ID, "alice", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, s.index.Has("alice", doc.VectorID))

	w = s.do(t, http.MethodGet, "/api/v1/search/documents", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[model.Page[*model.CodeRecord]](t, w).Data)

	w = s.do(t, http.MethodGet, "/api/v1/users/stats", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	st := decode[model.UserStats](t, w)
	assert.EqualValues(t, 1, st.TotalSearches)
	assert.EqualValues(t, 0, st.TotalDocuments)
	assert.EqualValues(t, 3, st.TotalCreditsUsed)

	w = s.do(t, http.MethodGet, "/api/v1/credits/transactions?limit=2", "alice", nil)
	require.Equal(t, http.StatusOK, w.Code)
	txs := decode[model.Page[*model.TransactionRecord]](t, w)
	assert.Len(t, txs.Data, 2)
	assert.EqualValues(t, 3, txs.Pagination.Total)
}

func TestAPI_InsufficientCreditsIs402(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/accounts", "carol", nil).Code)

	for i := 0; i < 5; i++ {
		w := s.do(t, http.MethodPost, "/api/v1/search/query", "carol", map[string]interface{}{"query": "anything"})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}
	w := s.do(t, http.MethodPost, "/api/v1/search/query", "carol", map[string]interface{}{"query": "anything"})
	require.Equal(t, http.StatusPaymentRequired, w.Code)
	body := decode[map[string]interface{}](t, w)
	details, _ := body["details"].(map[string]interface{})
	assert.EqualValues(t, 2, details["required"])
	assert.EqualValues(t, 0, details["available"])
}

func TestAPI_ValidationAndAuth(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/accounts", "dave", nil).Code)

	assert.Equal(t, http.StatusUnauthorized, s.do(t, http.MethodGet, "/api/v1/credits/balance", "", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/search/index", "dave",
		map[string]interface{}{"code": "", "language": "go"}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/search/index", "dave",
		map[string]interface{}{"code": "x", "language": "go", "metadata": map[string]interface{}{"tags": 3}}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/search/query", "dave",
		map[string]interface{}{"query": "x", "limit": 101}).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodGet, "/api/v1/credits/history?page=0", "dave", nil).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(t, http.MethodPost, "/api/v1/credits/purchase", "dave",
		map[string]interface{}{"amount": 0, "paymentMethod": "card"}).Code)
	assert.EqualValues(t, 10, balanceOf(t, s, "dave"))
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/credits/balance", "nobody", nil).Code)
}

func TestAPI_PurchaseAndAdminCredits(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/accounts", "erin", nil).Code)

	w := s.do(t, http.MethodPost, "/api/v1/credits/purchase", "erin", map[string]interface{}{"amount": 50, "paymentMethod": "card"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 60, balanceOf(t, s, "erin"))

	bonus := map[string]interface{}{"userId": "erin", "amount": 5, "description": "promo"}
	assert.Equal(t, http.StatusForbidden, s.do(t, http.MethodPost, "/api/v1/credits/bonus", "erin", bonus).Code)
	w = s.do(t, http.MethodPost, "/api/v1/credits/bonus", "ops", bonus, auth.RoleHeader, "admin")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 65, balanceOf(t, s, "erin"))

	w = s.do(t, http.MethodPost, "/api/v1/credits/refund", "ops",
		map[string]interface{}{"userId": "erin", "amount": 3, "reason": "outage"}, auth.RoleHeader, "admin")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 68, balanceOf(t, s, "erin"))
}

func TestAPI_DeactivatedAccountCannotSpend(t *testing.T) {
	s := newTestServer(t, nil)
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/accounts", "fay", nil).Code)
	require.Equal(t, http.StatusNoContent, s.do(t, http.MethodDelete, "/api/v1/users/account", "fay", nil).Code)

	w := s.do(t, http.MethodPost, "/api/v1/search/query", "fay", map[string]interface{}{"query": "x"})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

type downIndex struct{ searchindex.Index }

func (downIndex) Upsert(context.Context, string, model.VectorEntry) error {
	return errors.New("connection refused")
}

func (downIndex) Delete(context.Context, string, string) error { return nil }

func TestAPI_IndexFailureRefundsAnd502(t *testing.T) {
	s := newTestServer(t, downIndex{})
	require.Equal(t, http.StatusCreated, s.do(t, http.MethodPost, "/api/v1/accounts", "gus", nil).Code)

	w := s.do(t, http.MethodPost, "/api/v1/search/index", "gus", map[string]interface{}{"code": "x := 1", "language": "go"})
	require.Equal(t, http.StatusBadGateway, w.Code, w.Body.String())
	assert.EqualValues(t, 10, balanceOf(t, s, "gus"))

	w = s.do(t, http.MethodGet, "/api/v1/search/documents", "gus", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decode[model.Page[*model.CodeRecord]](t, w).Data)
}

func TestAPI_UnknownRoute(t *testing.T) {
	s := newTestServer(t, nil)
	assert.Equal(t, http.StatusNotFound, s.do(t, http.MethodGet, "/api/v1/nope", "alice", nil).Code)
}
