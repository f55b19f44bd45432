package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/lms-cloud/gateway/internal/logging"
	"go.uber.org/zap"
)

type dispositionKey struct{}

// dispositionHolder lets the dispatcher hand its final disposition
// back out to the exit log that wraps it.
type dispositionHolder struct{ value string }

// SetDisposition records how the pipeline finished the request
// (forwarded, rate_limited, circuit_open, ...). No-op when the request
// is not wrapped by AccessLog.
func SetDisposition(r *http.Request, disposition string) {
	if h, ok := r.Context().Value(dispositionKey{}).(*dispositionHolder); ok {
		h.value = disposition
	}
}

// statusWriter captures the response status and body size for the
// exit log. WriteHeader may never be called; the default is 200.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	n, err := w.ResponseWriter.Write(b)
	w.bytes += int64(n)
	return n, err
}

// AccessLog emits one structured line per completed request with the
// correlation ID, so entry and exit can be joined in the aggregator.
// skipPaths suppresses noise from probe endpoints.
func AccessLog(skipPaths ...string) Middleware {
	skip := make(map[string]bool, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = true
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if skip[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			start := time.Now()
			sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
			holder := &dispositionHolder{}
			r = r.WithContext(context.WithValue(r.Context(), dispositionKey{}, holder))

			logging.Info("Request received",
				zap.String("request_id", r.Header.Get(HeaderRequestID)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr),
			)

			next.ServeHTTP(sw, r)

			logging.Info("Request completed",
				zap.String("request_id", r.Header.Get(HeaderRequestID)),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", sw.status),
				zap.String("disposition", holder.value),
				zap.Int64("bytes", sw.bytes),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
