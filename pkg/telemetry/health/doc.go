// Package health provides liveness and readiness endpoints.
//
// Liveness reports that the process is serving. Readiness runs every
// registered check (for example a journal round trip) concurrently, each
// bounded by a timeout, and answers 503 when any of them fails.
//
//	checker := health.New(2 * time.Second)
//	checker.RegisterCheck("journal", func(ctx context.Context) error {
//	    _, err := backend.Count(ctx, storage.Filter{Limit: 1})
//	    return err
//	})
//	mux.HandleFunc("GET /healthz", checker.LivenessHandler())
//	mux.HandleFunc("GET /readyz", checker.ReadinessHandler())
package health
