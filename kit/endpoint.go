// Package kit holds the transport-neutral plumbing shared by quai's HTTP
// and MCP surfaces: the Endpoint abstraction, middleware chaining, and
// typed context accessors.
package kit

import "context"

// Endpoint is the fundamental building block: a single request/response
// operation. Transports (HTTP handlers, MCP tools) decode into a typed
// request, invoke the endpoint, and encode the response.
type Endpoint func(ctx context.Context, req any) (any, error)

// Middleware wraps an Endpoint with cross-cutting behaviour.
type Middleware func(Endpoint) Endpoint

// Chain composes middlewares so the first argument is outermost:
// Chain(a, b, c)(ep) runs a's before-logic first and a's after-logic last.
func Chain(mws ...Middleware) Middleware {
	return func(next Endpoint) Endpoint {
		for i := len(mws) - 1; i >= 0; i-- {
			next = mws[i](next)
		}
		return next
	}
}
