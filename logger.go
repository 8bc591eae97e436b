package filecache

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with filecache-specific helpers so that all
// components log with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithPath adds a file path field to the logger.
func (l *Logger) WithPath(path string) *Logger {
	return &Logger{
		Logger: l.Logger.With("path", path),
	}
}

// LogRemoval logs an entry leaving the cache.
func (l *Logger) LogRemoval(path string, weight int64, reason string, err error) {
	if err != nil {
		l.Warn("closing removed cache entry failed",
			"path", path,
			"weight", weight,
			"reason", reason,
			"error", err,
		)
	} else {
		l.Debug("cache entry removed",
			"path", path,
			"weight", weight,
			"reason", reason,
		)
	}
}

// LogSwitch logs a local-to-remote backing switch.
func (l *Logger) LogSwitch(name string, pos int64, err error) {
	if err != nil {
		l.Error("switch to remote backing failed",
			"file", name,
			"pos", pos,
			"error", err,
		)
	} else {
		l.Debug("switched to remote backing",
			"file", name,
			"pos", pos,
		)
	}
}

// LogFetch logs an on-demand block fetch.
func (l *Logger) LogFetch(name string, block int64, size int64, err error) {
	if err != nil {
		l.Error("block fetch failed",
			"file", name,
			"block", block,
			"error", err,
		)
	} else {
		l.Debug("block fetched",
			"file", name,
			"block", block,
			"size", size,
		)
	}
}

// LogOriginClose logs an origin handle closed while clones still hold
// references. Correct callers close clones first; the cache cleans up on
// a best-effort basis instead of failing.
func (l *Logger) LogOriginClose(path string, refCount int64) {
	l.Warn("origin input closed while still referenced",
		"path", path,
		"ref_count", refCount,
	)
}
