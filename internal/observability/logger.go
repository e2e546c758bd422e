// Package observability provides structured logging and metrics collection.
//
// Logger wraps log/slog with persona-specific context fields.
// Metrics collects orchestration statistics: runs, retries, gateway calls.
package observability

import (
	"io"
	"log/slog"
	"os"
	"sync"
)

// Logger wraps slog with persistent persona context.
type Logger struct {
	mu      sync.RWMutex
	inner   *slog.Logger
	persona string
	fields  []slog.Attr
}

// NewLogger creates a structured logger for a given persona.
// Output defaults to os.Stderr if w is nil.
func NewLogger(persona string, w io.Writer) *Logger {
	if w == nil {
		w = os.Stderr
	}
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	return &Logger{
		inner:   slog.New(handler),
		persona: persona,
	}
}

// NewLoggerWithHandler creates a logger with a custom slog handler.
func NewLoggerWithHandler(persona string, h slog.Handler) *Logger {
	return &Logger{
		inner:   slog.New(h),
		persona: persona,
	}
}

// With returns a new Logger with additional persistent fields.
func (l *Logger) With(key string, value any) *Logger {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return &Logger{
		inner:   l.inner.With(slog.Any(key, value)),
		persona: l.persona,
		fields:  append(l.fields, slog.Any(key, value)),
	}
}

// attrs prepends the persona name to the arguments.
func (l *Logger) attrs(msg string, args []any) (string, []any) {
	return msg, append([]any{slog.String("persona", l.persona)}, args...)
}

// Debug logs at DEBUG level.
func (l *Logger) Debug(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Debug(msg, args...)
}

// Info logs at INFO level.
func (l *Logger) Info(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Info(msg, args...)
}

// Warn logs at WARN level.
func (l *Logger) Warn(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Warn(msg, args...)
}

// Error logs at ERROR level.
func (l *Logger) Error(msg string, args ...any) {
	msg, args = l.attrs(msg, args)
	l.inner.Error(msg, args...)
}

// Subtask logs a subtask progress event within an orchestration run.
func (l *Logger) Subtask(taskID string, index, total int, msg string, args ...any) {
	allArgs := append([]any{
		slog.String("persona", l.persona),
		slog.String("task_id", taskID),
		slog.Int("subtask", index),
		slog.Int("total_subtasks", total),
	}, args...)
	l.inner.Info(msg, allArgs...)
}

// GatewayEvent logs a model gateway call.
func (l *Logger) GatewayEvent(operation, model string, args ...any) {
	allArgs := append([]any{
		slog.String("persona", l.persona),
		slog.String("operation", operation),
		slog.String("model", model),
	}, args...)
	l.inner.Info("gateway", allArgs...)
}

// Distill logs an experience distillation event.
func (l *Logger) Distill(taskID string, lessons int, args ...any) {
	allArgs := append([]any{
		slog.String("persona", l.persona),
		slog.String("task_id", taskID),
		slog.Int("lessons", lessons),
	}, args...)
	l.inner.Info("distill", allArgs...)
}

// Persona returns the persona name associated with this logger.
func (l *Logger) Persona() string {
	return l.persona
}
