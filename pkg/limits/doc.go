// Package limits admits or rejects actions against multi-window rate limits.
//
// # Overview
//
// The limits package puts a rate limiter in front of a host (an HTTP server,
// an interactive console) and makes every decision observable:
//
//   - Sliding-window admission (see the ratelimit sub-package)
//   - Unique decision ids and request correlation
//   - Prometheus metrics for checks, rejections and window occupancy
//   - An optional decision journal (see the storage sub-package)
//
// # Architecture
//
// The package is organized into sub-packages:
//
//   - ratelimit: multi-window and composite sliding-window limiters
//   - storage: decision journal backends (memory, SQLite)
//   - retention: scheduled pruning of the journal
//
// # Usage
//
//	limiter, err := ratelimit.NewLimiter([]ratelimit.Window{
//	    {Duration: time.Minute, Capacity: 3},
//	    {Duration: time.Hour, Capacity: 5},
//	})
//
//	guard, err := limits.NewGuard(limiter, limits.GuardConfig{
//	    Name:    "console",
//	    Journal: storage.NewMemoryBackend(),
//	    Metrics: limits.NewMetrics(prometheus.DefaultRegisterer, ""),
//	})
//
//	decision := guard.Check(ctx)
//	if !decision.Allowed {
//	    fmt.Printf("retry in %s\n", decision.RetryAfter)
//	}
//
// # Failure Handling
//
// Admission never depends on the journal. A failed append is logged and
// counted; the decision stands.
//
// # Thread Safety
//
// Guard is safe for concurrent use. Each Check evaluates and records
// atomically inside the limiter.
package limits
