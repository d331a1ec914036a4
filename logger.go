package dualmat

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with dualmat-specific helpers.
// This provides structured logging with consistent field names.
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
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return NewLogger(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return NewLogger(slog.DiscardHandler)
}

// WithMatrix adds a matrix name field to the logger.
func (l *Logger) WithMatrix(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("matrix", name),
	}
}

// WithDevice adds a device name field to the logger.
func (l *Logger) WithDevice(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("device", name),
	}
}

// LogBuild logs a matrix build.
func (l *Logger) LogBuild(ctx context.Context, entries, dim int, onDevice bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "matrix build failed",
			"entries", entries,
			"dim", dim,
			"error", err,
		)
		return
	}
	if !onDevice && entries > 0 && dim > 0 {
		l.WarnContext(ctx, "matrix built host-only",
			"entries", entries,
			"dim", dim,
		)
		return
	}
	l.DebugContext(ctx, "matrix build completed",
		"entries", entries,
		"dim", dim,
	)
}

// LogSnapshot logs a matrix save.
func (l *Logger) LogSnapshot(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot saved",
			"name", name,
		)
	}
}

// LogLoad logs a matrix load.
func (l *Logger) LogLoad(ctx context.Context, name string, entries int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot load failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot loaded",
			"name", name,
			"entries", entries,
		)
	}
}
