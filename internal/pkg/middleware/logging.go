package middleware

import (
	"net/http"
	"time"

	"github.com/trialmatch/trialrag/internal/pkg/logger"
)

// Logging returns middleware that logs each request at debug level, and at
// warn level when the response is a server error.
func Logging(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &statusWriter{ResponseWriter: w, status: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			attrs := []any{
				"method", r.Method,
				"path", r.URL.Path,
				"status", wrapped.status,
				"duration", time.Since(start),
			}
			if wrapped.status >= http.StatusInternalServerError {
				log.Warn("HTTP request failed", attrs...)
				return
			}
			log.Debug("HTTP request", attrs...)
		})
	}
}

// statusWriter captures the response status code.
type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
