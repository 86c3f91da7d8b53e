package middleware

import (
	"net/http"
	"time"

	"shortlinks/pkg/logging"

	chimw "github.com/go-chi/chi/v5/middleware"
)

const CorrelationIDHeader = "X-Correlation-ID"

// maxCorrelationIDLength caps client-supplied IDs before they reach the logs.
const maxCorrelationIDLength = 128

type RequestLogger struct {
	logger *logging.Logger
}

func NewRequestLogger(logger *logging.Logger) *RequestLogger {
	return &RequestLogger{logger: logger}
}

// Correlate attaches a correlation ID to the request context and echoes it in
// the response. A well-formed incoming X-Correlation-ID is reused.
func (m *RequestLogger) Correlate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if id := r.Header.Get(CorrelationIDHeader); id != "" && len(id) <= maxCorrelationIDLength {
			ctx = logging.ContextWithCorrelationID(ctx, id)
		} else {
			ctx = logging.WithCorrelationID(ctx)
		}
		w.Header().Set(CorrelationIDHeader, logging.GetCorrelationID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Log writes one line per request with status and latency. Query strings are
// not logged.
func (m *RequestLogger) Log(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		args := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
		}
		switch {
		case status >= 500:
			m.logger.Error(r.Context(), "request", args...)
		case status >= 400:
			m.logger.Warn(r.Context(), "request", args...)
		default:
			m.logger.Info(r.Context(), "request", args...)
		}
	})
}
