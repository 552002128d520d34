// Package logutil - Logger-Aufbau und TRACE-Level
//
// Dieses Modul enthaelt:
// - NewLogger: Text-Logger mit Quellangabe und TRACE-Level
// - LevelTrace: Zusaetzliches Level unterhalb von DEBUG
// - Trace/TraceContext: Logging auf TRACE mit korrekter Aufrufer-Position
package logutil

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"runtime"
	"time"
)

// LevelTrace liegt unterhalb von slog.LevelDebug (ATTNDISTILL_DEBUG=2)
const LevelTrace slog.Level = -8

// NewLogger erstellt einen Text-Logger fuer w mit dem gegebenen Level
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(_ []string, attr slog.Attr) slog.Attr {
			switch attr.Key {
			case slog.LevelKey:
				if attr.Value.Any().(slog.Level) == LevelTrace {
					attr.Value = slog.StringValue("TRACE")
				}
			case slog.SourceKey:
				if source, ok := attr.Value.Any().(*slog.Source); ok {
					source.File = filepath.Base(source.File)
				}
			}
			return attr
		},
	}))
}

type key string

// Trace loggt msg auf LevelTrace ueber den Default-Logger
func Trace(msg string, args ...any) {
	TraceContext(context.WithValue(context.TODO(), key("skip"), 1), msg, args...)
}

// TraceContext loggt msg auf LevelTrace mit ctx
func TraceContext(ctx context.Context, msg string, args ...any) {
	if logger := slog.Default(); logger.Enabled(ctx, LevelTrace) {
		skip, _ := ctx.Value(key("skip")).(int)
		pc, _, _, _ := runtime.Caller(1 + skip)
		record := slog.NewRecord(time.Now(), LevelTrace, msg, pc)
		record.Add(args...)
		logger.Handler().Handle(ctx, record) //nolint:errcheck
	}
}
