package fleetdb

import (
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with fleetdb-specific helpers. Managers log
// rejected operations, budget alerts and safety-score changes through it.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. If handler is nil, a
// text handler to stderr at info level is used.
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
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NoopLogger creates a Logger that discards all output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	}))}
}

// WithDriver tags the logger with a driver id.
func (l *Logger) WithDriver(id uint64) *Logger {
	return &Logger{Logger: l.Logger.With("driver_id", id)}
}

// WithTrip tags the logger with a trip id.
func (l *Logger) WithTrip(id uint64) *Logger {
	return &Logger{Logger: l.Logger.With("trip_id", id)}
}
