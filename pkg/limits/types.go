package limits

import (
	"errors"
	"time"

	"mercator-hq/ratelimiter/pkg/limits/ratelimit"
	"mercator-hq/ratelimiter/pkg/limits/storage"
)

// Decision is the outcome of one Guard.Check.
type Decision struct {
	// ID uniquely identifies the decision.
	ID string

	// Limiter is the name of the guard that decided.
	Limiter string

	// RequestID correlates the decision with a host request, if any.
	RequestID string

	// Timestamp is the instant the decision was evaluated at.
	Timestamp time.Time

	ratelimit.CheckResult
}

// Record converts the decision into a journal record.
func (d *Decision) Record() *storage.DecisionRecord {
	return &storage.DecisionRecord{
		ID:         d.ID,
		Limiter:    d.Limiter,
		RequestID:  d.RequestID,
		Timestamp:  d.Timestamp,
		Allowed:    d.Allowed,
		RetryAfter: d.RetryAfter,
		Window:     d.Window.Duration,
		Capacity:   d.Window.Capacity,
		Remaining:  d.Remaining,
		Reason:     d.Reason,
	}
}

// RetryAfterSeconds returns RetryAfter rounded up to whole seconds, the
// granularity of the HTTP Retry-After header.
func (d *Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	return int64((d.RetryAfter + time.Second - 1) / time.Second)
}

// Error types for guard operations.
var (
	// ErrNilAdmitter is returned when a guard is created without a limiter.
	ErrNilAdmitter = errors.New("admitter cannot be nil")

	// ErrNoJournal is returned when decisions are queried on a guard
	// without a journal.
	ErrNoJournal = errors.New("decision journal not configured")

	// ErrUnknownMode is returned for an unsupported limiter mode.
	ErrUnknownMode = errors.New("unknown limiter mode")

	// ErrUnknownBackend is returned for an unsupported journal backend.
	ErrUnknownBackend = errors.New("unknown journal backend")
)
