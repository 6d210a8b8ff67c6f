package worklist

import (
	"context"
	"log/slog"
	"os"

	"github.com/hupe1980/worklist/model"
	"github.com/hupe1980/worklist/refresh"
)

// Logger wraps slog.Logger with worklist-specific context.
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
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithWorklist adds a worklist field to the logger.
func (l *Logger) WithWorklist(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("worklist", name),
	}
}

// LogLoad logs loading a work list.
func (l *Logger) LogLoad(ctx context.Context, name string, items int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "load failed",
			"worklist", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "work list loaded",
			"worklist", name,
			"items", items,
		)
	}
}

// LogQuery logs a dataset query.
func (l *Logger) LogQuery(ctx context.Context, name string, results int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "query failed",
			"worklist", name,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "query completed",
			"worklist", name,
			"results", results,
		)
	}
}

// LogRefresh logs the outcome of a refresh run.
func (l *Logger) LogRefresh(ctx context.Context, name string, stats refresh.Stats) {
	switch {
	case stats.Canceled:
		l.DebugContext(ctx, "refresh canceled",
			"worklist", name,
			"refreshed", stats.Refreshed,
			"scheduled", stats.Scheduled,
		)
	case stats.Failed > 0:
		l.WarnContext(ctx, "refresh completed with failures",
			"worklist", name,
			"scheduled", stats.Scheduled,
			"failed", stats.Failed,
			"refreshed", stats.Refreshed,
		)
	default:
		l.InfoContext(ctx, "refresh completed",
			"worklist", name,
			"refreshed", stats.Refreshed,
		)
	}
}

// LogStatus logs a status change.
func (l *Logger) LogStatus(ctx context.Context, name string, oid int64, status model.Status, err error) {
	if err != nil {
		l.ErrorContext(ctx, "status change failed",
			"worklist", name,
			"oid", oid,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "status changed",
			"worklist", name,
			"oid", oid,
			"status", status.String(),
		)
	}
}

// LogCommit logs persisting the state of a work list.
func (l *Logger) LogCommit(ctx context.Context, name string, items int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "commit failed",
			"worklist", name,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "state committed",
			"worklist", name,
			"items", items,
		)
	}
}
