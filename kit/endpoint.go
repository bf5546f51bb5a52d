// Package kit holds the small transport-agnostic plumbing shared by the
// twbmap tool surfaces: the Endpoint abstraction, middleware chaining, MCP
// tool registration, and context accessors.
package kit

import "context"

// Endpoint is a single request/response operation. Every twbmap tool is an
// Endpoint behind a transport-specific decode step.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour (logging,
// run-log recording, timing).
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares left to right: the first middleware is the
// outermost.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
