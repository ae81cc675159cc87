// Package server exposes a Guard over HTTP.
//
// # Routes
//
//   - POST /v1/attempt - Performs one guarded action (200 or 429)
//   - GET /v1/status - Per-window occupancy of the limiter
//   - GET /v1/decisions - Queries the decision journal
//   - POST /v1/reset - Clears the limiter's windows
//   - GET /healthz - Liveness probe
//   - GET /readyz - Readiness probe (checks the journal)
//   - GET /version - Build information
//   - GET /metrics - Prometheus metrics, when enabled
//
// When admin keys are configured (WithAdminKeys), /v1/decisions and
// /v1/reset require one as a bearer token or X-API-Key header and answer
// 401 otherwise.
//
// # Rate Limit Headers
//
// Every guarded response carries:
//
//	X-RateLimit-Limit: 3
//	X-RateLimit-Remaining: 0
//	X-RateLimit-Reset: 1763553660
//
// Rejected requests are answered with 429 Too Many Requests, a Retry-After
// header in whole seconds (rounded up) and a JSON error body:
//
//	{"error": {"message": "exceeded limit of 3 requests per 1m0s", "type": "rate_limit_exceeded"}}
//
// Middleware can also be used on its own to protect any handler:
//
//	mux.Handle("/upload", server.Middleware(guard)(uploadHandler))
//
// # Middleware Chain
//
// Requests pass through the following middleware (innermost to outermost):
//  1. Logging: Logs request/response details
//  2. RequestID: Reuses X-Request-ID or generates a UUID
//  3. Recovery: Recovers from panics and returns 500 error
//
// # Graceful Shutdown
//
// Start blocks until its context is cancelled, then drains active
// connections for up to ShutdownTimeout.
package server
