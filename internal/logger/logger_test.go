package logger

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func lastLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	line := lines[len(lines)-1]
	if line == "" {
		t.Fatalf("no output captured")
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(line), &payload); err != nil {
		t.Fatalf("invalid json log: %v\n%s", err, line)
	}
	return payload
}

func TestLogger_IncludesStackAndServiceOnError(t *testing.T) {
	var buf bytes.Buffer
	log := NewWithWriter("test-service", &buf)
	log.Error().Stack().Err(errors.New("boom")).Str("user_id", "alice").Msg("refund failed")

	payload := lastLine(t, &buf)
	if svc, ok := payload["service"].(string); !ok || svc != "test-service" {
		t.Fatalf("expected service=\"test-service\", got %v", payload["service"])
	}
	if lvl, ok := payload["level"].(string); !ok || lvl != "error" {
		t.Fatalf("expected level=\"error\", got %v", payload["level"])
	}
	if _, ok := payload["stack"]; !ok {
		t.Fatalf("expected stack field in error log: %v", payload)
	}
	if payload["error"] != "boom" {
		t.Fatalf("expected error message preserved, got %v", payload["error"])
	}
}

func TestWithStack_KeepsExistingTrace(t *testing.T) {
	orig := pkgerrors.New("already traced")
	if withStack(orig) != orig {
		t.Fatalf("expected error with stack to pass through unchanged")
	}
	plain := errors.New("plain")
	if _, ok := withStack(plain).(stackTracer); !ok {
		t.Fatalf("expected plain error to gain a stack")
	}
	if !errors.Is(withStack(plain), plain) {
		t.Fatalf("wrapped error must still match the original")
	}
}

func TestWithLevel_FiltersBelowThreshold(t *testing.T) {
	var buf bytes.Buffer
	log := WithLevel(NewWithWriter("test-service", &buf), "WARN")
	log.Info().Msg("hidden")
	log.Warn().Msg("shown")

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("info line should be filtered at warn level: %s", out)
	}
	if !strings.Contains(out, "shown") {
		t.Fatalf("warn line missing: %s", out)
	}
}

func TestWithLevel_UnknownFallsBackToInfo(t *testing.T) {
	log := WithLevel(New("test-service"), "chatty")
	if log.GetLevel() != zerolog.InfoLevel {
		t.Fatalf("expected info level, got %s", log.GetLevel())
	}
}
