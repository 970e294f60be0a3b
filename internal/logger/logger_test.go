package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/BaoNguyen09/repo-explainer/internal/config"
)

func TestNew(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc"}
	l, closer := New(cfg)
	defer closer.Close()
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
}

func TestNewAsync(t *testing.T) {
	cfg := config.Logging{Level: "debug", Service: "test-svc", Async: true}
	l, closer := New(cfg)
	if l == nil {
		t.Fatal("expected non-nil logger")
	}
	closer.Close()
}

func TestNewWithWriterAttributes(t *testing.T) {
	var buf bytes.Buffer
	l, closer := NewWithWriter(config.Logging{Level: "info", Service: "repo-explainer"}, &buf)
	defer closer.Close()

	ctx := WithRunID(WithRequestID(context.Background(), "req-1"), "run-1")
	l.InfoContext(ctx, "stage started", "stage", "fetching_tree")
	l.DebugContext(ctx, "suppressed")

	var rec map[string]any
	if err := json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &rec); err != nil {
		t.Fatalf("expected exactly one JSON record, got %q: %v", buf.String(), err)
	}
	for k, want := range map[string]string{
		"service":    "repo-explainer",
		"request_id": "req-1",
		"run_id":     "run-1",
		"stage":      "fetching_tree",
	} {
		if rec[k] != want {
			t.Errorf("%s = %v, want %q", k, rec[k], want)
		}
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"debug", "DEBUG"},
		{"info", "INFO"},
		{"warn", "WARN"},
		{"warning", "WARN"},
		{"error", "ERROR"},
		{"unknown", "INFO"},
		{"", "INFO"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := parseLevel(tt.input).String()
			if got != tt.want {
				t.Errorf("parseLevel(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestContextIDs(t *testing.T) {
	ctx := context.Background()

	if got := RequestID(ctx); got != "" {
		t.Errorf("expected empty request ID, got %q", got)
	}
	if got := RunID(ctx); got != "" {
		t.Errorf("expected empty run ID, got %q", got)
	}

	ctx = WithRequestID(ctx, "req-123")
	ctx = WithRunID(ctx, "run-9")
	if got := RequestID(ctx); got != "req-123" {
		t.Errorf("expected req-123, got %q", got)
	}
	if got := RunID(ctx); got != "run-9" {
		t.Errorf("expected run-9, got %q", got)
	}
}
