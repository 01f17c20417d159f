package vecseg

import (
	"context"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with segment-specific helpers.
// Field names are consistent across all helpers.
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
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithField adds a field name to the logger.
func (l *Logger) WithField(field string) *Logger {
	return &Logger{
		Logger: l.Logger.With("field", field),
	}
}

// LogLoad logs a value index load.
func (l *Logger) LogLoad(ctx context.Context, field string, loaded bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index load failed",
			"field", field,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "index loaded",
			"field", field,
			"found", loaded,
		)
	}
}

// LogRemovePoint logs a point removal from a value index.
func (l *Logger) LogRemovePoint(ctx context.Context, field string, point uint32, err error) {
	if err != nil {
		l.ErrorContext(ctx, "remove point failed",
			"field", field,
			"point", point,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "point removed",
			"field", field,
			"point", point,
		)
	}
}

// LogFlush logs a flush of one component.
func (l *Logger) LogFlush(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"name", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "flushed",
			"name", name,
		)
	}
}

// LogWipe logs the removal of a component's persisted data.
func (l *Logger) LogWipe(ctx context.Context, name string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "wipe failed",
			"name", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "wiped",
			"name", name,
		)
	}
}

// LogCacheClear logs a page cache eviction. Failures are not fatal.
func (l *Logger) LogCacheClear(ctx context.Context, name string, err error) {
	if err != nil {
		l.WarnContext(ctx, "failed to clear cache",
			"name", name,
			"error", err,
		)
	}
}

// LogInsertVector logs a vector insert.
func (l *Logger) LogInsertVector(ctx context.Context, name string, point uint32, dimension int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "insert vector failed",
			"name", name,
			"point", point,
			"dimension", dimension,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "vector inserted",
			"name", name,
			"point", point,
			"dimension", dimension,
		)
	}
}
