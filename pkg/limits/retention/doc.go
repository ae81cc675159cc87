// Package retention prunes the decision journal.
//
// # Retention Policy
//
// Decision records older than MaxAge are deleted from the journal backend:
//
//   - MaxAge of zero keeps records forever (no pruning)
//   - Pruning runs on a cron schedule (standard 5-field syntax)
//   - Pruning can also be triggered manually with Prune
//
// # Basic Usage
//
//	pruner := retention.NewPruner(backend, &retention.Config{
//	    MaxAge:   7 * 24 * time.Hour,
//	    Schedule: "0 3 * * *", // Daily at 3 AM
//	})
//
//	if err := pruner.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer pruner.Stop()
//
// # Scheduling
//
// Common schedules:
//
//   - "0 3 * * *": Daily at 3 AM (default)
//   - "0 */6 * * *": Every 6 hours
//   - "*/5 * * * *": Every 5 minutes
//
// If no schedule is configured the scheduler does nothing and Start returns
// immediately without error. The scheduler stops when the context passed to
// Start is cancelled.
package retention
