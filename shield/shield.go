// Package shield provides reusable HTTP security middleware for the quai
// daemon. It consolidates security headers, rate limiting, body limits,
// request tracing, and HEAD method handling into a single importable package.
//
// Usage:
//
//	r := chi.NewRouter()
//	r.Use(shield.SecurityHeaders(shield.DefaultHeaders()))
//	r.Use(shield.MaxJSONBody(1 << 20))
//	r.Use(shield.TraceID)
//	r.Use(shield.NewRateLimiter(db).Middleware)
//	r.Use(shield.HeadToGet)
//
// Or apply the default stack in one call:
//
//	mws, limiter := shield.DefaultStack(db, "/healthz")
//	for _, mw := range mws {
//	    r.Use(mw)
//	}
//	limiter.StartReloader(done)
package shield

import (
	"database/sql"
	"net/http"
)

type contextKey string

// LoggerKey is the context key for the per-request structured logger.
const LoggerKey contextKey = "shield_logger"

// DefaultStack returns the standard middleware stack for the quai HTTP
// surface. Middleware is ordered: HeadToGet, SecurityHeaders, MaxJSONBody,
// TraceID, RateLimiter. excludePrefixes are path prefixes the rate limiter
// skips (health checks, SSE streams). The returned RateLimiter handle lets
// the caller start periodic rule reloads via StartReloader.
func DefaultStack(db *sql.DB, excludePrefixes ...string) ([]func(http.Handler) http.Handler, *RateLimiter) {
	rl := NewRateLimiter(db, excludePrefixes...)
	return []func(http.Handler) http.Handler{
		HeadToGet,
		SecurityHeaders(DefaultHeaders()),
		MaxJSONBody(1 << 20),
		TraceID,
		rl.Middleware,
	}, rl
}
