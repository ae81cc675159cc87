// Package storage provides journal backends for admission decisions.
//
// # Overview
//
// The journal is an audit trail: every admission or rejection made by a
// guarded limiter can be appended as a DecisionRecord and queried later.
// Limiter state is never restored from the journal; a restarted process
// starts with empty windows.
//
//   - Memory: Bounded in-memory ring (default, no persistence)
//   - SQLite: File-based persistence, pure Go (modernc.org/sqlite) or cgo
//     (github.com/mattn/go-sqlite3) driver
//
// # Usage
//
//	backend := storage.NewMemoryBackend()
//
//	err := backend.Append(ctx, &storage.DecisionRecord{
//	    ID:        id,
//	    Limiter:   "console",
//	    Timestamp: now,
//	    Allowed:   false,
//	    RetryAfter: 42 * time.Second,
//	})
//
//	rejected := false
//	records, err := backend.Query(ctx, storage.Filter{Allowed: &rejected, Limit: 20})
//
// # Thread Safety
//
// All storage backends are thread-safe and support concurrent access
// from multiple goroutines. Locking is handled internally by each backend.
package storage
