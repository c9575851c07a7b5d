//go:build e2e
// +build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
)

// env returns the value of key or the provided fallback when the env var is unset.
func env(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ping checks that a GET request to the given URL returns HTTP 200.
// It is used to quickly skip tests when the dev stack is not running.
func ping(url string) error {
	r, err := http.Get(url)
	if err != nil {
		return err
	}
	_ = r.Body.Close()
	if r.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d", r.StatusCode)
	}
	return nil
}

// apiBase returns the service base URL or skips the test when it is unreachable.
func apiBase(t *testing.T) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping in short mode")
	}
	base := env("BEARCODE_API", "http://localhost:8080") + "/api/v1"
	if err := ping(base + "/health"); err != nil {
		t.Skipf("service %s unreachable: %v", base, err)
	}
	return base
}

// newUser returns a unique user id for the run.
func newUser(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.NewString()[:8])
}

// call sends a JSON request as userID and returns the status and raw body.
func call(t *testing.T, method, url, userID string, body interface{}) (int, []byte) {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, rd)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-User-ID", userID)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer func() { _ = resp.Body.Close() }()
	data, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, data
}

// mustCall is call that fails the test on a status other than want and decodes into v.
func mustCall(t *testing.T, method, url, userID string, body interface{}, want int, v interface{}) {
	t.Helper()
	code, data := call(t, method, url, userID, body)
	if code != want {
		t.Fatalf("%s %s: want %d, got %d: %s", method, url, want, code, string(data))
	}
	if v != nil {
		if err := json.Unmarshal(data, v); err != nil {
			t.Fatalf("decode json: %v", err)
		}
	}
}

func balance(t *testing.T, base, userID string) int64 {
	t.Helper()
	var out struct {
		Balance int64 `json:"balance"`
	}
	mustCall(t, http.MethodGet, base+"/credits/balance", userID, nil, http.StatusOK, &out)
	return out.Balance
}

// eventually polls pred until it holds or the timeout elapses.
func eventually(t *testing.T, timeout time.Duration, pred func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if pred() {
			return true
		}
		time.Sleep(200 * time.Millisecond)
	}
	return false
}
