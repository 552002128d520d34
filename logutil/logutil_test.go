package logutil

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewLoggerTraceLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger(&buf, LevelTrace)

	logger.Log(t.Context(), LevelTrace, "captured", "layer", "blk.0")
	out := buf.String()
	if !strings.Contains(out, "level=TRACE") {
		t.Errorf("Ausgabe %q enthaelt kein level=TRACE", out)
	}
	if !strings.Contains(out, "logutil_test.go") {
		t.Errorf("Ausgabe %q enthaelt keinen kurzen Quellpfad", out)
	}
}

func TestTraceRespectsLevel(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	slog.SetDefault(NewLogger(&buf, slog.LevelDebug))
	Trace("hidden")
	if buf.Len() != 0 {
		t.Errorf("Trace bei DEBUG schrieb %q, erwartet nichts", buf.String())
	}

	slog.SetDefault(NewLogger(&buf, LevelTrace))
	Trace("visible", "n", 1)
	if !strings.Contains(buf.String(), "msg=visible") {
		t.Errorf("Trace bei TRACE schrieb %q", buf.String())
	}
}
