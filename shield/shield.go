// Package shield provides the HTTP middleware stack of the pagesmith server:
// security headers, request IDs with a per-request logger, upload size
// limits and optional Basic Auth.
//
//	r := chi.NewRouter()
//	for _, mw := range shield.DefaultStack(100 << 20) {
//	    r.Use(mw)
//	}
package shield

import (
	"context"
	"log/slog"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// GetLogger retrieves the per-request logger, or slog.Default().
func GetLogger(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(LoggerKey).(*slog.Logger); ok {
		return l
	}
	return slog.Default()
}

// DefaultStack returns SecurityHeaders → RequestID → MaxBody.
func DefaultStack(maxBody int64) []func(http.Handler) http.Handler {
	return []func(http.Handler) http.Handler{
		SecurityHeaders(DefaultHeaders()),
		RequestID,
		MaxBody(maxBody),
	}
}
