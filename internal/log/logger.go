// Package log wraps slog with the request correlation the HTTP layer and the
// background notifier share.
package log

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

type contextKey string

var CorrelatedIDKey contextKey = "correlation_id"

const LoggerKeyForContext contextKey = "logger"

type Logger struct {
	*slog.Logger
}

func NewLoggerWithJSONOutput() *Logger {
	return NewLoggerWithJSONOutputTo(os.Stdout)
}

// NewLoggerWithJSONOutputTo writes JSON records at the level named by LOG_LEVEL (default info).
func NewLoggerWithJSONOutputTo(w io.Writer) *Logger {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: levelFromEnv()})
	return &Logger{Logger: slog.New(handler)}
}

func levelFromEnv() slog.Level {
	var level slog.Level
	switch v := strings.TrimSpace(os.Getenv("LOG_LEVEL")); strings.ToLower(v) {
	case "", "info":
		return slog.LevelInfo
	case "warning":
		return slog.LevelWarn
	default:
		if err := level.UnmarshalText([]byte(v)); err != nil {
			return slog.LevelInfo
		}
		return level
	}
}

// WithCorrelationID tags records with the request's correlation id and, when the
// context carries a sampled span, its trace and span ids.
func (l *Logger) WithCorrelationID(ctx context.Context) *Logger {
	args := []any{string(CorrelatedIDKey), GetOrGenerateCorrelationID(ctx)}

	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		args = append(args, "trace_id", sc.TraceID().String(), "span_id", sc.SpanID().String())
	}

	return l.With(args...)
}

func (l *Logger) With(args ...any) *Logger {
	return &Logger{Logger: l.Logger.With(args...)}
}

func GetOrGenerateCorrelationID(ctx context.Context) string {
	if ctx != nil {
		if id, ok := ctx.Value(CorrelatedIDKey).(string); ok && id != "" {
			return id
		}
	}
	return GenerateCorrelationID()
}

func GenerateCorrelationID() string {
	return uuid.NewString()
}

// GetLoggerInstanceFromContext returns the logger the HTTP middleware injected, or
// fallbackLogger tagged with ctx's correlation id.
func GetLoggerInstanceFromContext(ctx context.Context, fallbackLogger *Logger) *Logger {
	if ctx != nil {
		if l, ok := ctx.Value(LoggerKeyForContext).(*Logger); ok && l != nil {
			return l
		}
	}

	if fallbackLogger == nil {
		fallbackLogger = NewLoggerWithJSONOutput()
	}
	if ctx == nil {
		return fallbackLogger
	}
	return fallbackLogger.WithCorrelationID(ctx)
}
