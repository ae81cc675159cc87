package ratelimit

import (
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
)

// Admitter is implemented by every limiter in this package.
// Hosts should depend on Admitter rather than a concrete limiter type.
type Admitter interface {
	// AllowAt decides whether an event at now is admitted.
	AllowAt(now time.Time) (bool, time.Duration)

	// Check is AllowAt with the full decision details.
	Check(now time.Time) *CheckResult

	// CheckNow is Check at an instant read from clock under the limiter's
	// lock.
	CheckNow(clock clockwork.Clock) *CheckResult

	// Status reports per-window occupancy at now.
	Status(now time.Time) []WindowStatus

	// Reset clears all recorded events.
	Reset()
}

// CheckResult contains the result of a rate limit check.
type CheckResult struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Reason explains why the request was rejected (if Allowed=false).
	Reason string

	// Window is the window that rejected the request. For an admitted
	// request it is the window with the fewest remaining slots.
	Window Window

	// WindowIndex is the position of Window in registration order.
	WindowIndex int

	// Limit is the capacity of Window.
	Limit int64

	// Remaining is how many requests remain in Window after this check.
	Remaining int64

	// Reset is when the oldest event in Window leaves it.
	Reset time.Time

	// RetryAfter suggests how long to wait before retrying.
	// Zero for admitted requests.
	RetryAfter time.Duration

	// At is the instant the decision was made at.
	At time.Time
}

// WindowStatus is a point-in-time view of one window.
type WindowStatus struct {
	Window    Window
	Used      int
	Remaining int

	// Reset is when the oldest event leaves the window.
	// Zero when the window is empty.
	Reset time.Time
}

// Configuration errors returned by the constructors.
var (
	// ErrNilLimits is returned when a nil limits mapping is supplied.
	ErrNilLimits = errors.New("limits mapping is nil")

	// ErrNoWindows is returned when no windows are configured.
	ErrNoWindows = errors.New("no windows configured")

	// ErrNegativeDuration is returned for a window with a negative duration.
	ErrNegativeDuration = errors.New("window duration is negative")

	// ErrNegativeCapacity is returned for a window with a negative capacity.
	ErrNegativeCapacity = errors.New("window capacity is negative")

	// ErrUnknownTimeUnit is returned for an unsupported time unit.
	ErrUnknownTimeUnit = errors.New("unknown time unit")

	// ErrNilLimiter is returned when a composite is given a nil component.
	ErrNilLimiter = errors.New("nil limiter")
)

// ConfigError identifies the window that failed validation.
type ConfigError struct {
	// Index is the position of the offending window.
	Index int

	// Window is the offending window.
	Window Window

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return fmt.Sprintf("window %d (%d per %s): %v", e.Index, e.Window.Capacity, e.Window.Duration, e.Err)
}

// Unwrap returns the underlying error for error wrapping.
func (e *ConfigError) Unwrap() error {
	return e.Err
}
