// Package logger provides structured logging utilities.
package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with additional context.
type Logger struct {
	*slog.Logger
}

// New creates a new logger with the specified level and format.
// Output goes to stderr so command results on stdout stay machine readable.
func New(level, format string) *Logger {
	return NewWithWriter(os.Stderr, level, format)
}

// NewWithWriter creates a logger that writes to w.
func NewWithWriter(w io.Writer, level, format string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}

	if format == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewFile creates a logger appending to the file at path, falling back to
// stderr when path is empty. The returned closer must be called on shutdown.
func NewFile(path, level, format string) (*Logger, io.Closer, error) {
	if path == "" {
		return New(level, format), nopCloser{}, nil
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening log file: %w", err)
	}

	return NewWithWriter(f, level, format), f, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// WithComponent returns a logger tagged with the pipeline component.
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.With("component", component),
	}
}

// WithRecord returns a logger with record identifier context.
func (l *Logger) WithRecord(id string) *Logger {
	return &Logger{
		Logger: l.With("record_id", id),
	}
}

// WithGroupKey returns a logger with evaluation group context.
func (l *Logger) WithGroupKey(key string) *Logger {
	return &Logger{
		Logger: l.With("group", key),
	}
}

// WithError returns a logger with error context.
func (l *Logger) WithError(err error) *Logger {
	return &Logger{
		Logger: l.With("error", err.Error()),
	}
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Default returns the default logger.
func Default() *Logger {
	return New("info", "text")
}

// Discard returns a logger that drops everything. Useful in tests.
func Discard() *Logger {
	return NewWithWriter(io.Discard, "error", "text")
}
