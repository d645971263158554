package tcpool

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"
)

// Logger wraps slog.Logger with pool-specific context.
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
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// WithCache adds a cache id field to the logger.
func (l *Logger) WithCache(id int) *Logger {
	return &Logger{
		Logger: l.Logger.With("cache", id),
	}
}

// WithName adds a pool name field to the logger (useful when several
// pools share one handler).
func (l *Logger) WithName(name string) *Logger {
	return &Logger{
		Logger: l.Logger.With("pool", name),
	}
}

// LogReserve logs an arena reservation.
func (l *Logger) LogReserve(capacity uint64, heap bool, err error) {
	if err != nil {
		l.Error("arena reserve failed",
			"capacity", humanize.IBytes(capacity),
			"error", err,
		)
	} else {
		l.Info("arena reserved",
			"capacity", humanize.IBytes(capacity),
			"heap", heap,
		)
	}
}

// LogGrowth logs a chunk claimed from the arena.
func (l *Logger) LogGrowth(offset, length uint64, duration time.Duration) {
	l.Debug("arena grown",
		"offset", offset,
		"length", length,
		"duration", duration,
	)
}

// LogExhausted logs an allocation that could not be satisfied.
func (l *Logger) LogExhausted(request, committed, capacity uint64) {
	l.Warn("arena exhausted",
		"request", request,
		"committed", humanize.IBytes(committed),
		"capacity", humanize.IBytes(capacity),
	)
}

// LogCommitFailure logs a failed commit of arena pages. Fatal failures are
// logged at error level, best-effort ones at warn level.
func (l *Logger) LogCommitFailure(offset, length uint64, fatal bool, err error) {
	if fatal {
		l.Error("arena commit failed",
			"offset", offset,
			"length", humanize.IBytes(length),
			"error", err,
		)
		return
	}
	l.Warn("arena populate failed",
		"offset", offset,
		"length", humanize.IBytes(length),
		"error", err,
	)
}

// LogSlowPopulate logs a page populate call that took longer than expected.
func (l *Logger) LogSlowPopulate(length uint64, duration time.Duration) {
	l.Warn("slow populate write",
		"length", humanize.IBytes(length),
		"duration", duration,
	)
}

// LogPopulate logs a cache pre-fault operation.
func (l *Logger) LogPopulate(ctx context.Context, length uint64, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "populate failed",
			"length", humanize.IBytes(length),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "populate completed",
			"length", humanize.IBytes(length),
			"duration", duration,
		)
	}
}

// LogSnapshot logs a snapshot write or load.
func (l *Logger) LogSnapshot(ctx context.Context, op string, length uint64, codec Codec, err error) {
	if err != nil {
		l.ErrorContext(ctx, "snapshot failed",
			"op", op,
			"codec", codec.String(),
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "snapshot completed",
			"op", op,
			"codec", codec.String(),
			"length", humanize.IBytes(length),
		)
	}
}
