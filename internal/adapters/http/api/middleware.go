package api

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/okian/skillsync/pkg/logger"
	"github.com/okian/skillsync/pkg/metrics"
)

// MetricsMiddleware wraps a route to record request metrics under endpoint.
// A panicking handler is answered with 500 and counted instead of killing
// the connection.
func MetricsMiddleware(next http.HandlerFunc, endpoint string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		defer func() {
			if rec := recover(); rec != nil {
				metrics.RecordErrorByComponent("http", "panic")
				logger.Get().Error(r.Context(), "handler panicked",
					logger.String("endpoint", endpoint),
					logger.Any("panic", rec))
				if !wrapped.wroteHeader {
					writeError(wrapped, http.StatusInternalServerError, "internal", nil)
				}
			}

			durationMs := float64(time.Since(start).Milliseconds())
			code := strconv.Itoa(wrapped.statusCode)
			metrics.RecordHTTPRequest(endpoint, r.Method, code)
			metrics.RecordHTTPRequestDuration(endpoint, r.Method, code, durationMs)
			if wrapped.statusCode >= http.StatusBadRequest {
				metrics.RecordErrorByEndpoint(endpoint, r.Method, errorType(wrapped.statusCode))
			}
		}()

		next.ServeHTTP(wrapped, r)
	}
}

// errorType buckets a failing status for the error-rate metric.
func errorType(statusCode int) string {
	switch {
	case statusCode == http.StatusServiceUnavailable:
		return "unavailable"
	case statusCode >= http.StatusInternalServerError:
		return "server_error"
	case statusCode == http.StatusTooManyRequests:
		return "backpressure"
	case statusCode == http.StatusConflict:
		return "conflict"
	case statusCode == http.StatusForbidden:
		return "forbidden"
	case statusCode == http.StatusNotFound:
		return "not_found"
	case statusCode >= http.StatusBadRequest:
		return "client_error"
	default:
		return "unknown"
	}
}

// responseWriter remembers the status a handler chose.
type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.statusCode = code
	rw.wroteHeader = true
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("failed to write response: %w", err)
	}
	return n, nil
}
