package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver (cgo), registered as "sqlite3"
	_ "modernc.org/sqlite"          // SQLite driver (pure Go), registered as "sqlite"
)

const (
	// DriverPureGo selects modernc.org/sqlite.
	DriverPureGo = "sqlite"

	// DriverCGo selects github.com/mattn/go-sqlite3.
	DriverCGo = "sqlite3"
)

// SQLiteBackend implements Backend using SQLite for persistence.
// This backend keeps the journal across restarts and is suitable for
// single-instance deployments.
//
// SQLiteBackend uses a write-ahead log (WAL) for better concurrent performance
// and periodic checkpointing to balance write performance with durability.
type SQLiteBackend struct {
	db                 *sql.DB
	dbPath             string
	driver             string
	checkpointInterval time.Duration
	done               chan struct{}
	mu                 sync.RWMutex
	closeOnce          sync.Once

	// preparedStatements contains pre-compiled SQL statements for performance
	appendStmt  *sql.Stmt
	cleanupStmt *sql.Stmt
}

// SQLiteBackendConfig configures the SQLite backend.
type SQLiteBackendConfig struct {
	// DBPath is the path to the SQLite database file.
	DBPath string

	// Driver is the database/sql driver name: "sqlite" (pure Go) or
	// "sqlite3" (cgo).
	// Default: "sqlite"
	Driver string

	// CheckpointInterval is how often to checkpoint the WAL.
	// Default: 5 minutes
	CheckpointInterval time.Duration

	// BusyTimeout is how long to wait for locks before failing.
	// Default: 5 seconds
	BusyTimeout time.Duration
}

// NewSQLiteBackend creates a new SQLite storage backend with default settings.
func NewSQLiteBackend(dbPath string) (*SQLiteBackend, error) {
	return NewSQLiteBackendWithConfig(SQLiteBackendConfig{
		DBPath:             dbPath,
		Driver:             DriverPureGo,
		CheckpointInterval: 5 * time.Minute,
		BusyTimeout:        5 * time.Second,
	})
}

// NewSQLiteBackendWithConfig creates a new SQLite backend with custom configuration.
func NewSQLiteBackendWithConfig(cfg SQLiteBackendConfig) (*SQLiteBackend, error) {
	// Apply defaults
	if cfg.DBPath == "" {
		return nil, fmt.Errorf("db path cannot be empty")
	}
	if cfg.Driver == "" {
		cfg.Driver = DriverPureGo
	}
	if cfg.CheckpointInterval == 0 {
		cfg.CheckpointInterval = 5 * time.Minute
	}
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}

	dsn, err := buildDSN(cfg)
	if err != nil {
		return nil, err
	}

	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open(cfg.Driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite only supports single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	backend := &SQLiteBackend{
		db:                 db,
		dbPath:             cfg.DBPath,
		driver:             cfg.Driver,
		checkpointInterval: cfg.CheckpointInterval,
		done:               make(chan struct{}),
	}

	// Initialize schema
	if err := backend.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	// Prepare statements
	if err := backend.prepareStatements(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}

	// Start background checkpoint goroutine
	go backend.checkpointLoop()

	return backend, nil
}

// buildDSN renders the connection string in the dialect of the driver.
func buildDSN(cfg SQLiteBackendConfig) (string, error) {
	busyMs := int(cfg.BusyTimeout.Milliseconds())

	switch cfg.Driver {
	case DriverPureGo:
		return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)",
			cfg.DBPath, busyMs), nil
	case DriverCGo:
		return fmt.Sprintf("%s?_journal_mode=WAL&_busy_timeout=%d&_synchronous=NORMAL",
			cfg.DBPath, busyMs), nil
	default:
		return "", fmt.Errorf("unsupported sqlite driver %q (expected %q or %q)", cfg.Driver, DriverPureGo, DriverCGo)
	}
}

// initSchema creates the database schema if it doesn't exist.
func (s *SQLiteBackend) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS decisions (
		id TEXT PRIMARY KEY,
		limiter TEXT NOT NULL,
		request_id TEXT NOT NULL DEFAULT '',
		timestamp INTEGER NOT NULL,
		allowed INTEGER NOT NULL,
		retry_after_ns INTEGER NOT NULL,
		window_ns INTEGER NOT NULL,
		capacity INTEGER NOT NULL,
		remaining INTEGER NOT NULL,
		reason TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_decisions_timestamp ON decisions(timestamp);
	CREATE INDEX IF NOT EXISTS idx_decisions_limiter ON decisions(limiter, timestamp);
	`

	_, err := s.db.Exec(schema)
	return err
}

// prepareStatements prepares SQL statements for reuse.
func (s *SQLiteBackend) prepareStatements() error {
	var err error

	s.appendStmt, err = s.db.Prepare(`
		INSERT INTO decisions (id, limiter, request_id, timestamp, allowed, retry_after_ns, window_ns, capacity, remaining, reason)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare append statement: %w", err)
	}

	s.cleanupStmt, err = s.db.Prepare(`
		DELETE FROM decisions
		WHERE timestamp < ?
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare cleanup statement: %w", err)
	}

	return nil
}

// Driver returns the database/sql driver name in use.
func (s *SQLiteBackend) Driver() string {
	return s.driver
}

// Append stores a decision record.
func (s *SQLiteBackend) Append(ctx context.Context, record *DecisionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.appendStmt.ExecContext(ctx,
		record.ID,
		record.Limiter,
		record.RequestID,
		record.Timestamp.UnixNano(),
		boolToInt(record.Allowed),
		int64(record.RetryAfter),
		int64(record.Window),
		record.Capacity,
		record.Remaining,
		record.Reason,
	)
	if err != nil {
		return fmt.Errorf("failed to append decision: %w", err)
	}

	return nil
}

// Query returns matching records, newest first.
func (s *SQLiteBackend) Query(ctx context.Context, filter Filter) ([]*DecisionRecord, error) {
	where, args := filterClause(filter)
	query := `
		SELECT id, limiter, request_id, timestamp, allowed, retry_after_ns, window_ns, capacity, remaining, reason
		FROM decisions` + where + `
		ORDER BY timestamp DESC, rowid DESC
		LIMIT ?`
	args = append(args, filter.limit())

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	records := make([]*DecisionRecord, 0)
	for rows.Next() {
		var (
			r          DecisionRecord
			timestamp  int64
			allowed    int
			retryAfter int64
			window     int64
		)

		if err := rows.Scan(&r.ID, &r.Limiter, &r.RequestID, &timestamp, &allowed, &retryAfter, &window, &r.Capacity, &r.Remaining, &r.Reason); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}

		r.Timestamp = time.Unix(0, timestamp).UTC()
		r.Allowed = allowed != 0
		r.RetryAfter = time.Duration(retryAfter)
		r.Window = time.Duration(window)

		records = append(records, &r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	return records, nil
}

// Count returns the number of matching records.
func (s *SQLiteBackend) Count(ctx context.Context, filter Filter) (int, error) {
	where, args := filterClause(filter)

	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decisions`+where, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count decisions: %w", err)
	}
	return n, nil
}

// Cleanup removes records older than olderThan.
func (s *SQLiteBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.cleanupStmt.ExecContext(ctx, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("failed to cleanup: %w", err)
	}

	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return int(deleted), nil
}

// Close releases any resources held by the backend.
// Close is idempotent and safe to call multiple times.
func (s *SQLiteBackend) Close() error {
	var closeErr error

	s.closeOnce.Do(func() {
		// Signal checkpoint goroutine to stop
		close(s.done)

		// Close prepared statements
		if s.appendStmt != nil {
			s.appendStmt.Close()
		}
		if s.cleanupStmt != nil {
			s.cleanupStmt.Close()
		}

		// Close database
		if s.db != nil {
			// Run final checkpoint
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)")
			closeErr = s.db.Close()
		}
	})

	return closeErr
}

// checkpointLoop runs periodic WAL checkpoints.
func (s *SQLiteBackend) checkpointLoop() {
	ticker := time.NewTicker(s.checkpointInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			_, _ = s.db.Exec("PRAGMA wal_checkpoint(PASSIVE)")
		case <-s.done:
			return
		}
	}
}

// filterClause renders the WHERE clause for a filter.
func filterClause(filter Filter) (string, []interface{}) {
	var (
		conds []string
		args  []interface{}
	)

	if filter.Limiter != "" {
		conds = append(conds, "limiter = ?")
		args = append(args, filter.Limiter)
	}
	if filter.Allowed != nil {
		conds = append(conds, "allowed = ?")
		args = append(args, boolToInt(*filter.Allowed))
	}
	if !filter.Since.IsZero() {
		conds = append(conds, "timestamp >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if !filter.Until.IsZero() {
		conds = append(conds, "timestamp <= ?")
		args = append(args, filter.Until.UnixNano())
	}

	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
