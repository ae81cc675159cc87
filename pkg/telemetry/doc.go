// Package telemetry groups the observability packages of the rate limiter.
//
// # Components
//
//   - logging: structured logging on log/slog with a runtime-adjustable level
//   - health: liveness and readiness probes
//
// Rate limiter metrics live with the limiter in pkg/limits and are exposed
// through the server's Prometheus endpoint.
package telemetry
