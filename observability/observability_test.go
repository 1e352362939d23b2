package observability

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"debug", slog.LevelDebug, false},
		{"WARN", slog.LevelWarn, false},
		{"error", slog.LevelError, false},
		{"loud", slog.LevelInfo, true},
	}
	for _, tt := range tests {
		got, err := ParseLevel(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseLevel(%q) err=%v, wantErr=%v", tt.in, err, tt.wantErr)
		}
		if got != tt.want {
			t.Errorf("ParseLevel(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestNewLogger_JSON(t *testing.T) {
	var buf bytes.Buffer
	logger, err := NewLogger("info", "json", &buf)
	if err != nil {
		t.Fatal(err)
	}
	logger.Debug("hidden")
	logger.Info("sync: processed", "new", 3)

	out := buf.String()
	if strings.Contains(out, "hidden") {
		t.Fatalf("debug line leaked at info level: %s", out)
	}
	if !strings.Contains(out, `"msg":"sync: processed"`) || !strings.Contains(out, `"new":3`) {
		t.Fatalf("unexpected json output: %s", out)
	}
}

func TestNewLogger_BadFormat(t *testing.T) {
	if _, err := NewLogger("info", "xml", nil); err == nil {
		t.Fatal("expected error for unknown format")
	}
}

func TestSpansWithoutProvider(t *testing.T) {
	// WHAT: span helpers are safe with the default no-op provider.
	// WHY: the CLI never installs an SDK; runs must not depend on one.
	ctx, run := StartRunSpan(context.Background(), "sync", "run-1")
	_, item := StartItemSpan(ctx, "source", "https://example.org/rss")
	AddVerdict(item, "new", "guid")
	AddStatusTransition(item, "new", "failed", 1)
	RecordError(item, errors.New("http 503"), "transient")
	RecordError(item, nil, "ignored")
	item.End()
	run.End()
}
