package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Logger struct {
	*slog.Logger
}

type LogLevel string

const (
	LevelDebug LogLevel = "debug"
	LevelInfo  LogLevel = "info"
	LevelWarn  LogLevel = "warn"
	LevelError LogLevel = "error"
)

type contextKey string

const correlationIDKey contextKey = "correlation_id"

// NewLogger returns a JSON logger writing to stdout.
func NewLogger(level LogLevel) *Logger {
	return New(os.Stdout, level)
}

// New returns a JSON logger writing to w.
func New(w io.Writer, level LogLevel) *Logger {
	opts := &slog.HandlerOptions{
		Level: parseLevel(level),
	}
	return &Logger{Logger: slog.New(slog.NewJSONHandler(w, opts))}
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *Logger {
	return New(io.Discard, LevelError)
}

func parseLevel(level LogLevel) slog.Level {
	switch LogLevel(strings.ToLower(string(level))) {
	case LevelDebug:
		return slog.LevelDebug
	case LevelWarn:
		return slog.LevelWarn
	case LevelError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithCorrelationID adds a fresh correlation ID to the context unless one is present.
func WithCorrelationID(ctx context.Context) context.Context {
	if GetCorrelationID(ctx) == "" {
		return context.WithValue(ctx, correlationIDKey, uuid.New().String())
	}
	return ctx
}

// ContextWithCorrelationID stores id as the correlation ID, replacing any existing one.
func ContextWithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// GetCorrelationID retrieves the correlation ID from context
func GetCorrelationID(ctx context.Context) string {
	if correlationID, ok := ctx.Value(correlationIDKey).(string); ok {
		return correlationID
	}
	return ""
}

func withCorrelation(ctx context.Context, args []any) []any {
	if correlationID := GetCorrelationID(ctx); correlationID != "" {
		args = append(args, "correlation_id", correlationID)
	}
	return args
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.Logger.Debug(msg, withCorrelation(ctx, args)...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.Logger.Info(msg, withCorrelation(ctx, args)...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.Logger.Warn(msg, withCorrelation(ctx, args)...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.Logger.Error(msg, withCorrelation(ctx, args)...)
}

// LogLinkOperation logs a create/resolve/stats operation on a short code.
func (l *Logger) LogLinkOperation(ctx context.Context, operation, code string, success bool) {
	l.Info(ctx, "link operation",
		"operation", operation,
		"code", code,
		"success", success,
	)
}

// LogURLValidation logs the outcome of URL validation. Only the scheme is logged,
// never the full URL.
func (l *Logger) LogURLValidation(ctx context.Context, valid bool, scheme string) {
	l.Debug(ctx, "url validation",
		"valid", valid,
		"scheme", scheme,
	)
}

// LogClickFailure logs a click that could not be written to the ledger.
func (l *Logger) LogClickFailure(ctx context.Context, code string, at time.Time, attempts int, err error) {
	l.Error(ctx, "click not recorded",
		"code", code,
		"clicked_at", at.UTC().Format(time.RFC3339Nano),
		"attempts", attempts,
		"error", err,
	)
}
