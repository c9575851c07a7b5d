package ollama

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req embedRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		assert.Equal(t, "nomic-embed-text", req.Model)
		assert.Equal(t, "func main() {}", req.Prompt)
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float64{0.1, 0.2, 0.3}})
	}))
	defer srv.Close()

	p := New(srv.URL, "nomic-embed-text")
	vec, err := p.Embed(context.Background(), "func main() {}")
	require.NoError(t, err)
	assert.Len(t, vec, 3)
	assert.InDelta(t, 0.2, vec[1], 1e-6)
}

func TestEmbed_PullsMissingModelOnce(t *testing.T) {
	var embedCalls, pullCalls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/pull":
			pullCalls.Add(1)
			w.WriteHeader(http.StatusOK)
		case "/api/embeddings":
			if embedCalls.Add(1) == 1 {
				http.Error(w, `{"error":"model not found"}`, http.StatusNotFound)
				return
			}
			_ = json.NewEncoder(w).Encode(map[string]interface{}{"embedding": []float64{1}})
		}
	}))
	defer srv.Close()

	vec, err := New(srv.URL, "m").Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, vec)
	assert.Equal(t, int32(1), pullCalls.Load())
	assert.Equal(t, int32(2), embedCalls.Load())
}

func TestEmbed_Errors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/embeddings" {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}))
	defer srv.Close()

	p := New(srv.URL, "m")
	_, err := p.Embed(context.Background(), "x")
	assert.Error(t, err)

	_, err = p.Embed(context.Background(), "")
	assert.Error(t, err)
}

func TestHealthPing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"models": []map[string]string{{"name": "nomic-embed-text:latest"}},
		})
	}))
	defer srv.Close()

	assert.NoError(t, New(srv.URL, "nomic-embed-text").HealthPing(context.Background()))
	assert.Error(t, New(srv.URL, "mxbai-embed-large").HealthPing(context.Background()))
}

func TestNew_DefaultsScheme(t *testing.T) {
	p := New("localhost:11434", "m")
	assert.Equal(t, "http://localhost:11434", p.client.BaseURL)
	assert.Equal(t, defaultBaseURL, New("", "m").client.BaseURL)
}
