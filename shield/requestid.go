package shield

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/hazyhaar/pagesmith/idgen"
	"github.com/hazyhaar/pagesmith/kit"
)

var newRequestID = idgen.Prefixed("req_", idgen.NanoID(12))

// RequestID tags each request with an ID (kept from X-Request-ID when the
// client sent a short one), echoes it in the response and attaches a
// request-scoped logger under LoggerKey.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 64 {
			id = newRequestID()
		}
		w.Header().Set("X-Request-ID", id)

		ctx := kit.WithRequestID(kit.WithTransport(r.Context(), "http"), id)
		logger := slog.Default().With(
			"request_id", id,
			"method", r.Method,
			"path", r.URL.Path,
		)
		ctx = context.WithValue(ctx, LoggerKey, logger)
		logger.Debug("request")

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
