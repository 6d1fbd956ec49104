package log

import (
	"bytes"
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestLoggerFromContext(t *testing.T) {
	if LoggerFromContext(context.Background()) != slog.Default() {
		t.Fatalf("expected default logger for empty context")
	}

	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil)).With(slog.String("run", "abc"))
	ctx := ContextWithLogger(context.Background(), logger)
	LoggerFromContext(ctx).Info("hello")
	if !strings.Contains(buf.String(), "run=abc") {
		t.Errorf("expected context logger to be used, got %q", buf.String())
	}
}
