package common

import (
	"context"
	"log/slog"
	"sync/atomic"
)

// nopHandler is a slog.Handler that discards every record.
// Enabled reports false so callers skip formatting entirely.
type nopHandler struct{}

func (nopHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (nopHandler) Handle(context.Context, slog.Record) error { return nil }
func (nopHandler) WithAttrs([]slog.Attr) slog.Handler        { return nopHandler{} }
func (nopHandler) WithGroup(string) slog.Handler             { return nopHandler{} }

var loggerPtr atomic.Pointer[slog.Logger]

func init() {
	loggerPtr.Store(slog.New(nopHandler{}))
}

// SetLogger configures the logger shared by the engine and all of its sub-packages.
// By default nothing is logged. Passing nil restores the silent default.
//
// Log levels used by the engine:
//   - slog.LevelDebug: per-frame diagnostics (bind group rebuilds, skipped frames)
//   - slog.LevelInfo: lifecycle events (device created, surface configured, profiler stats)
//   - slog.LevelWarn: draw items dropped from a pass
//   - slog.LevelError: fatal device errors and recovered panics
//
// Parameters:
//   - l: the logger to install
func SetLogger(l *slog.Logger) {
	if l == nil {
		l = slog.New(nopHandler{})
	}
	loggerPtr.Store(l)
}

// Logger returns the logger installed with SetLogger. It is safe for concurrent use.
//
// Returns:
//   - *slog.Logger: the active logger
func Logger() *slog.Logger {
	return loggerPtr.Load()
}
