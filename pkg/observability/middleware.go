package observability

import (
	"net/http"
	"strconv"
	"time"
)

// MetricsMiddleware wraps an HTTP handler to record request metrics.
//
// It captures:
//   - identity_requests_total (counter): per request with method, status class, and route labels
//   - identity_request_duration_seconds (histogram): request duration with method and route labels
//
// The route is the pattern ServeMux recorded on the request, so next must
// receive the request unmodified. Use MuxMetricsMiddleware when middleware
// between this one and the mux replaces the request.
func MetricsMiddleware(next http.Handler) http.Handler {
	return instrument(next, func(r *http.Request) string { return r.Pattern })
}

// MuxMetricsMiddleware is MetricsMiddleware with the route resolved from mux
// instead of the request.
func MuxMetricsMiddleware(mux *http.ServeMux, next http.Handler) http.Handler {
	return instrument(next, func(r *http.Request) string {
		_, pattern := mux.Handler(r)
		return pattern
	})
}

func instrument(next http.Handler, route func(*http.Request) string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()

		pattern := route(r)
		if pattern == "" {
			pattern = "unknown"
		}

		statusStr := strconv.Itoa(sw.status/100) + "xx"

		RequestsTotal.WithLabelValues(r.Method, statusStr, pattern).Inc()
		RequestDuration.WithLabelValues(r.Method, pattern).Observe(duration)
	})
}

// statusWriter wraps http.ResponseWriter to capture the status code.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written bool
}

// WriteHeader captures the status code and delegates to the underlying writer.
func (w *statusWriter) WriteHeader(status int) {
	if !w.written {
		w.status = status
		w.written = true
	}
	w.ResponseWriter.WriteHeader(status)
}

// Write delegates to the underlying writer and marks the status as written.
func (w *statusWriter) Write(b []byte) (int, error) {
	if !w.written {
		w.written = true
	}
	return w.ResponseWriter.Write(b)
}

// Unwrap returns the underlying ResponseWriter, enabling http.ResponseController
// and similar utilities to access the original writer.
func (w *statusWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}
