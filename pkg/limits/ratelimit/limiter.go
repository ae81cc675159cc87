package ratelimit

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Limiter enforces several windows on one stream of events.
//
// Windows are checked in registration order. The first full window rejects
// the request and is reported, even when a later window is also full. A
// rejected request mutates no window; an admitted request is appended to
// every window.
//
// Windows that share a duration are independent and are all enforced.
type Limiter struct {
	name    string
	windows []*slidingWindow
	clock   clockwork.Clock

	mu sync.Mutex
}

// Option configures a Limiter or Composite.
type Option func(*options)

type options struct {
	clock clockwork.Clock
	name  string
}

// WithClock sets the clock used by Allow. Defaults to the real clock.
func WithClock(clock clockwork.Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithName labels the limiter for logs and metrics.
func WithName(name string) Option {
	return func(o *options) {
		o.name = name
	}
}

func buildOptions(opts []Option) options {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.clock == nil {
		o.clock = clockwork.NewRealClock()
	}
	return o
}

// NewLimiter creates a limiter enforcing windows in the given order.
//
// Example:
//
//	limiter, err := NewLimiter([]Window{
//	    {Duration: time.Minute, Capacity: 3},
//	    {Duration: time.Hour, Capacity: 5},
//	    {Duration: 24 * time.Hour, Capacity: 9},
//	})
func NewLimiter(windows []Window, opts ...Option) (*Limiter, error) {
	if err := validateWindows(windows); err != nil {
		return nil, fmt.Errorf("invalid limiter configuration: %w", err)
	}

	o := buildOptions(opts)
	limiter := &Limiter{
		name:    o.name,
		windows: make([]*slidingWindow, len(windows)),
		clock:   o.clock,
	}
	for i, w := range windows {
		limiter.windows[i] = newSlidingWindow(w)
	}

	return limiter, nil
}

// NewLimiterFromMap creates a limiter from a duration to capacity mapping.
// Map iteration order is random, so windows are registered shortest first.
// A nil mapping is a configuration error (ErrNilLimits), and so is an empty
// one (ErrNoWindows): a limiter that admits everything is never built.
func NewLimiterFromMap(limits map[time.Duration]int, opts ...Option) (*Limiter, error) {
	if limits == nil {
		return nil, fmt.Errorf("invalid limiter configuration: %w", ErrNilLimits)
	}

	windows := make([]Window, 0, len(limits))
	for d, c := range limits {
		windows = append(windows, Window{Duration: d, Capacity: c})
	}
	sort.Slice(windows, func(i, j int) bool {
		return windows[i].Duration < windows[j].Duration
	})

	return NewLimiter(windows, opts...)
}

// Name returns the limiter label set with WithName.
func (l *Limiter) Name() string {
	return l.name
}

// Windows returns the configured windows in registration order.
func (l *Limiter) Windows() []Window {
	out := make([]Window, len(l.windows))
	for i, sw := range l.windows {
		out[i] = sw.window
	}
	return out
}

// Allow decides whether an event happening now is admitted, reading the
// time from the limiter's clock.
func (l *Limiter) Allow() (bool, time.Duration) {
	result := l.CheckNow(l.clock)
	return result.Allowed, result.RetryAfter
}

// AllowAt decides whether an event at now is admitted.
// It returns the retry-after of the first full window on rejection and
// zero on admission.
func (l *Limiter) AllowAt(now time.Time) (bool, time.Duration) {
	result := l.Check(now)
	return result.Allowed, result.RetryAfter
}

// Check decides whether an event at now is admitted and returns the details.
//
// The whole evict-check-append sequence runs under the limiter's mutex.
// Concurrent callers must pass non-decreasing instants in lock order; use
// CheckNow when the instant comes from a clock.
func (l *Limiter) Check(now time.Time) *CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.checkLocked(now)
}

// CheckNow reads the instant from clock while holding the limiter's mutex,
// so events are logged in the order they were admitted.
func (l *Limiter) CheckNow(clock clockwork.Clock) *CheckResult {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.checkLocked(clock.Now())
}

func (l *Limiter) checkLocked(now time.Time) *CheckResult {
	for i, sw := range l.windows {
		sw.evict(now)
		if sw.full() {
			retryAfter := sw.retryAfter(now)
			return &CheckResult{
				Allowed:     false,
				Reason:      fmt.Sprintf("exceeded limit of %d requests per %s", sw.window.Capacity, sw.window.Duration),
				Window:      sw.window,
				WindowIndex: i,
				Limit:       int64(sw.window.Capacity),
				Remaining:   0,
				Reset:       now.Add(retryAfter),
				RetryAfter:  retryAfter,
				At:          now,
			}
		}
	}

	for _, sw := range l.windows {
		sw.push(now)
	}

	// Report the tightest window for rate limit headers.
	tightest := 0
	for i, sw := range l.windows {
		if sw.remaining() < l.windows[tightest].remaining() {
			tightest = i
		}
	}
	sw := l.windows[tightest]

	return &CheckResult{
		Allowed:     true,
		Window:      sw.window,
		WindowIndex: tightest,
		Limit:       int64(sw.window.Capacity),
		Remaining:   int64(sw.remaining()),
		Reset:       sw.reset(),
		At:          now,
	}
}

// Status evicts expired events and reports every window's occupancy.
// It never records an event.
func (l *Limiter) Status(now time.Time) []WindowStatus {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]WindowStatus, len(l.windows))
	for i, sw := range l.windows {
		sw.evict(now)
		out[i] = sw.status()
	}
	return out
}

// Reset clears every window.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()

	for _, sw := range l.windows {
		sw.clear()
	}
}

// broadest returns the longest window duration.
func (l *Limiter) broadest() time.Duration {
	var longest time.Duration
	for _, sw := range l.windows {
		if sw.window.Duration > longest {
			longest = sw.window.Duration
		}
	}
	return longest
}
