package kronroe

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with kronroe-specific context.
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
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{Logger: slog.New(handler)}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{Logger: slog.New(handler)}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{Logger: slog.New(handler)}
}

// WithSubject adds a subject field to the logger.
func (l *Logger) WithSubject(subject string) *Logger {
	return &Logger{Logger: l.Logger.With("subject", subject)}
}

// WithFactID adds a fact id field to the logger.
func (l *Logger) WithFactID(id FactId) *Logger {
	return &Logger{Logger: l.Logger.With("fact_id", id.String())}
}

// WithK adds a k (result count) field to the logger.
func (l *Logger) WithK(k int) *Logger {
	return &Logger{Logger: l.Logger.With("k", k)}
}

// LogAssert logs an assert operation.
func (l *Logger) LogAssert(ctx context.Context, subject, predicate string, id FactId, err error) {
	if err != nil {
		l.ErrorContext(ctx, "assert failed",
			"subject", subject,
			"predicate", predicate,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "assert completed",
			"subject", subject,
			"predicate", predicate,
			"fact_id", id.String(),
		)
	}
}

// LogInvalidate logs an invalidate operation.
func (l *Logger) LogInvalidate(ctx context.Context, id FactId, err error) {
	if err != nil {
		l.ErrorContext(ctx, "invalidate failed", "fact_id", id.String(), "error", err)
	} else {
		l.DebugContext(ctx, "invalidate completed", "fact_id", id.String())
	}
}

// LogCorrect logs a correct operation.
func (l *Logger) LogCorrect(ctx context.Context, oldID, newID FactId, err error) {
	if err != nil {
		l.ErrorContext(ctx, "correct failed", "fact_id", oldID.String(), "error", err)
	} else {
		l.DebugContext(ctx, "correct completed",
			"fact_id", oldID.String(),
			"replacement_id", newID.String(),
		)
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, channel string, k, resultsFound int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"channel", channel,
			"k", k,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"channel", channel,
			"k", k,
			"results", resultsFound,
		)
	}
}

// LogBackup logs a backup or restore operation.
func (l *Logger) LogBackup(ctx context.Context, op, target string, err error) {
	if err != nil {
		l.ErrorContext(ctx, "backup failed", "op", op, "target", target, "error", err)
	} else {
		l.InfoContext(ctx, "backup completed", "op", op, "target", target)
	}
}

// LogRebuild logs an index cache rebuild on open.
func (l *Logger) LogRebuild(ctx context.Context, index string, entries int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "index rebuild failed", "index", index, "error", err)
	} else {
		l.InfoContext(ctx, "index rebuild completed", "index", index, "entries", entries)
	}
}
