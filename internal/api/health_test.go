package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

type fakeHealth struct {
	ok    bool
	comps map[string]bool
}

func (f fakeHealth) IsHealthy() bool             { return f.ok }
func (f fakeHealth) Components() map[string]bool { return f.comps }

func TestHealthHandler_CheckHealth(t *testing.T) {
	cases := []struct {
		name string
		h    ServiceHealth
		want string
	}{
		{"nil", nil, "unhealthy"},
		{"down", fakeHealth{ok: false, comps: map[string]bool{"store": true, "vector-index": false}}, "unhealthy"},
		{"up", fakeHealth{ok: true, comps: map[string]bool{"store": true}}, "healthy"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/health", nil)
			w := httptest.NewRecorder()
			NewHealthHandler(tc.h).CheckHealth(w, req)
			if w.Code != http.StatusOK {
				t.Fatalf("unexpected status code: %d", w.Code)
			}
			var body map[string]interface{}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("invalid json: %v", err)
			}
			if body["status"] != tc.want {
				t.Fatalf("expected %s, got %v", tc.want, body["status"])
			}
		})
	}
}
