package storage

import (
	"context"
	"errors"
	"time"
)

// Backend defines the interface for decision journal persistence.
// Implementations must be thread-safe and support concurrent access.
type Backend interface {
	// Append stores a decision record. Returns error on failure.
	Append(ctx context.Context, record *DecisionRecord) error

	// Query returns records matching the filter, newest first.
	// Returns empty slice if nothing matches. Returns error on failure.
	Query(ctx context.Context, filter Filter) ([]*DecisionRecord, error)

	// Count returns the number of records matching the filter.
	// Filter.Limit is ignored.
	Count(ctx context.Context, filter Filter) (int, error)

	// Cleanup removes records with a timestamp before olderThan.
	// Returns the number of records deleted and any error.
	Cleanup(ctx context.Context, olderThan time.Time) (int, error)

	// Close releases any resources held by the backend.
	// The backend should not be used after calling Close.
	Close() error
}

// DecisionRecord is one admission decision.
type DecisionRecord struct {
	// ID uniquely identifies the decision.
	ID string `json:"id"`

	// Limiter is the name of the limiter that decided.
	Limiter string `json:"limiter"`

	// RequestID correlates the decision with a host request, if any.
	RequestID string `json:"request_id,omitempty"`

	// Timestamp is the instant the decision was evaluated at.
	Timestamp time.Time `json:"timestamp"`

	// Allowed is the admission outcome.
	Allowed bool `json:"allowed"`

	// RetryAfter is the advisory wait for rejected decisions.
	RetryAfter time.Duration `json:"retry_after"`

	// Window is the duration of the deciding window.
	Window time.Duration `json:"window"`

	// Capacity is the capacity of the deciding window.
	Capacity int `json:"capacity"`

	// Remaining is how many slots were left in the deciding window.
	Remaining int64 `json:"remaining"`

	// Reason explains a rejection.
	Reason string `json:"reason,omitempty"`
}

// Filter selects decision records.
type Filter struct {
	// Limiter restricts results to one limiter name. Empty matches all.
	Limiter string

	// Allowed restricts results to admissions (true) or rejections (false).
	// Nil matches both.
	Allowed *bool

	// Since and Until bound the timestamp, inclusive. Zero means unbounded.
	Since time.Time
	Until time.Time

	// Limit caps the number of results. Zero means DefaultQueryLimit.
	Limit int
}

// DefaultQueryLimit is the result cap applied when Filter.Limit is zero.
const DefaultQueryLimit = 100

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultQueryLimit
	}
	return f.Limit
}

func (f Filter) matches(r *DecisionRecord) bool {
	if f.Limiter != "" && r.Limiter != f.Limiter {
		return false
	}
	if f.Allowed != nil && r.Allowed != *f.Allowed {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && r.Timestamp.After(f.Until) {
		return false
	}
	return true
}

// Error types for journal operations.
var (
	// ErrNilRecord is returned when a nil record is appended.
	ErrNilRecord = errors.New("record cannot be nil")

	// ErrMissingID is returned when a record has no ID.
	ErrMissingID = errors.New("record id cannot be empty")

	// ErrClosed is returned when a closed backend is used.
	ErrClosed = errors.New("backend is closed")
)

func validateRecord(record *DecisionRecord) error {
	if record == nil {
		return ErrNilRecord
	}
	if record.ID == "" {
		return ErrMissingID
	}
	return nil
}
