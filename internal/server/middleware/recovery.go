// Package middleware holds HTTP middleware for the mesosproxy server.
package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/3leaps/mesosproxy/internal/server/handlers"
)

// Recovery turns a handler panic into a 500 JSON error reply.
func Recovery(logger *zap.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				reqID := chimw.GetReqID(r.Context())
				logger.Error("Handler panic",
					zap.String("request_id", reqID),
					zap.String("path", r.URL.Path),
					zap.Any("panic", rec),
					zap.ByteString("stack", debug.Stack()))

				handlers.RespondWithError(w, http.StatusInternalServerError, handlers.ErrorBody{
					Code:      handlers.CodeInternal,
					Message:   fmt.Sprintf("panic: %v", rec),
					RequestID: reqID,
				})
			}()
			next.ServeHTTP(w, r)
		})
	}
}
