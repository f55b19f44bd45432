package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/lms-cloud/gateway/internal/errors"
	"github.com/lms-cloud/gateway/internal/logging"
	"go.uber.org/zap"
)

// Recovery converts a handler panic into a 500 response instead of
// tearing down the connection. The stack is logged, never sent to the
// client.
func Recovery() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logging.Error("Panic recovered",
						zap.Any("error", rec),
						zap.String("path", r.URL.Path),
						zap.String("request_id", RequestIDFromContext(r.Context())),
						zap.ByteString("stack", debug.Stack()),
					)
					errors.ErrInternal.
						WithDetails(fmt.Sprintf("panic: %v", rec)).
						WriteJSON(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}
