package middleware

import (
	"encoding/json"
	"net/http"

	"brkdash/pkg/logger"

	"go.uber.org/zap"
)

// Recoverer turns a panicking handler into a 500. The stack is logged, never
// sent to the client.
func Recoverer(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Log.Error("panic serving request",
				zap.String("request_id", RequestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Any("panic", rec),
				zap.Stack("stack"),
			)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusInternalServerError)
			json.NewEncoder(w).Encode(map[string]any{
				"success": false,
				"error":   "Internal server error",
			})
		}()
		next.ServeHTTP(w, r)
	})
}
