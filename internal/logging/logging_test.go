package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewJSONWritesFieldsAndRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Level: "warn", Format: "json", Output: &buf})

	log.Info(context.Background(), "dropped")
	log.With(String("cell", "1")).Warn(context.Background(), "kept", Int("rnti", 5), Err(nil))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected 1 log line, got %d: %q", len(lines), buf.String())
	}
	var rec map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &rec); err != nil {
		t.Fatalf("unmarshal log line: %v", err)
	}
	if rec["msg"] != "kept" || rec["cell"] != "1" || rec["rnti"] != float64(5) {
		t.Fatalf("unexpected record: %v", rec)
	}
	if rec["error"] != "" {
		t.Fatalf("nil error should render empty, got %v", rec["error"])
	}
}

func TestEnsureEvaluationIDIsStable(t *testing.T) {
	ctx, id := EnsureEvaluationID(context.Background())
	if id == "" {
		t.Fatalf("expected generated id")
	}
	again, id2 := EnsureEvaluationID(ctx)
	if id2 != id || EvaluationIDFromContext(again) != id {
		t.Fatalf("id changed: %q -> %q", id, id2)
	}

	ctx = ContextWithEvaluationID(context.Background(), "req-1")
	if _, got := EnsureEvaluationID(ctx); got != "req-1" {
		t.Fatalf("caller id not kept, got %q", got)
	}
}

func TestLoggerFromContextFallback(t *testing.T) {
	if _, ok := LoggerFromContext(context.Background(), nil).(noopLogger); !ok {
		t.Fatalf("expected noop logger fallback")
	}
	var buf bytes.Buffer
	l := New(Config{Output: &buf})
	ctx := ContextWithLogger(context.Background(), l)
	if LoggerFromContext(ctx, Noop()) != l {
		t.Fatalf("expected logger stored on context")
	}
}
