// Package kit holds the transport-agnostic endpoint type shared by the HTTP
// and MCP surfaces, and the request-scoped context values they propagate.
package kit

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// Endpoint is one operation behind a transport.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so that the first one is outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}

// Recover turns a panic inside the endpoint into an error, so one bad call
// cannot take down a long-lived server.
func Recover(logger *slog.Logger) Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next Endpoint) Endpoint {
		return func(ctx context.Context, req any) (resp any, err error) {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("kit: endpoint panic", "panic", r, "request_id", GetRequestID(ctx), "stack", string(debug.Stack()))
					resp, err = nil, fmt.Errorf("internal error: %v", r)
				}
			}()
			return next(ctx, req)
		}
	}
}
