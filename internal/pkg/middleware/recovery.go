package middleware

import (
	"net/http"

	apperrors "github.com/trialmatch/trialrag/internal/pkg/errors"
	"github.com/trialmatch/trialrag/internal/pkg/logger"
)

// Recovery returns middleware that turns a handler panic into a 500 reply.
func Recovery(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					log.Error("Panic recovered in HTTP handler",
						"error", rec,
						"method", r.Method,
						"path", r.URL.Path,
					)
					apperrors.WriteError(w, apperrors.New(apperrors.CodeInternal, "internal server error"))
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
