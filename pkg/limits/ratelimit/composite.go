package ratelimit

import (
	"fmt"
	"sort"
	"time"

	"github.com/jonboulle/clockwork"
)

// Composite chains independent limiters that guard the same action.
//
// Components are ordered by their broadest window, longest first, and are
// evaluated in that order. Evaluation stops at the first rejection; later
// components are not touched. There is no rollback: components evaluated
// before the rejecting one keep their admission. Checking day before hour
// before minute means a day rejection never spends a minute slot.
type Composite struct {
	name       string
	components []*Limiter
	clock      clockwork.Clock
}

// NewComposite creates a composite from existing limiters. The limiters are
// stably sorted by broadest window, longest first, so components with equal
// windows keep the given order.
func NewComposite(limiters []*Limiter, opts ...Option) (*Composite, error) {
	if len(limiters) == 0 {
		return nil, fmt.Errorf("invalid composite configuration: %w", ErrNoWindows)
	}

	components := make([]*Limiter, len(limiters))
	for i, l := range limiters {
		if l == nil {
			return nil, fmt.Errorf("invalid composite configuration: component %d: %w", i, ErrNilLimiter)
		}
		components[i] = l
	}
	sort.SliceStable(components, func(i, j int) bool {
		return components[i].broadest() > components[j].broadest()
	})

	o := buildOptions(opts)
	return &Composite{
		name:       o.name,
		components: components,
		clock:      o.clock,
	}, nil
}

// NewCompositeFromWindows creates one single-window limiter per window and
// chains them broadest first.
func NewCompositeFromWindows(windows []Window, opts ...Option) (*Composite, error) {
	if err := validateWindows(windows); err != nil {
		return nil, fmt.Errorf("invalid composite configuration: %w", err)
	}

	limiters := make([]*Limiter, len(windows))
	for i, w := range windows {
		l, err := NewLimiter([]Window{w}, opts...)
		if err != nil {
			return nil, err
		}
		limiters[i] = l
	}

	return NewComposite(limiters, opts...)
}

// NewCompositeFromUnits creates a composite from declarative unit limits,
// e.g. {UnitDay, 9}, {UnitHour, 5}, {UnitMinute, 3}.
func NewCompositeFromUnits(units []UnitLimit, opts ...Option) (*Composite, error) {
	windows := make([]Window, len(units))
	for i, ul := range units {
		w, err := ul.Window()
		if err != nil {
			return nil, fmt.Errorf("invalid composite configuration: limit %d: %w", i, err)
		}
		windows[i] = w
	}
	return NewCompositeFromWindows(windows, opts...)
}

// Name returns the composite label set with WithName.
func (c *Composite) Name() string {
	return c.name
}

// Components returns the chained limiters in evaluation order.
func (c *Composite) Components() []*Limiter {
	out := make([]*Limiter, len(c.components))
	copy(out, c.components)
	return out
}

// Windows returns every component window in evaluation order.
func (c *Composite) Windows() []Window {
	var out []Window
	for _, l := range c.components {
		out = append(out, l.Windows()...)
	}
	return out
}

// Allow evaluates the chain at the composite's clock time.
func (c *Composite) Allow() (bool, time.Duration) {
	result := c.CheckNow(c.clock)
	return result.Allowed, result.RetryAfter
}

// AllowAt evaluates the chain at now.
func (c *Composite) AllowAt(now time.Time) (bool, time.Duration) {
	result := c.Check(now)
	return result.Allowed, result.RetryAfter
}

// Check evaluates the chain at now and returns the details of the first
// rejection, or of the tightest window when every component admits.
// WindowIndex counts windows across all components in evaluation order.
func (c *Composite) Check(now time.Time) *CheckResult {
	return c.evaluate(func(l *Limiter) *CheckResult { return l.Check(now) })
}

// CheckNow evaluates the chain, each component reading clock under its own
// lock. The result's At is the instant used by the reported component.
func (c *Composite) CheckNow(clock clockwork.Clock) *CheckResult {
	return c.evaluate(func(l *Limiter) *CheckResult { return l.CheckNow(clock) })
}

func (c *Composite) evaluate(check func(*Limiter) *CheckResult) *CheckResult {
	var tightest *CheckResult
	offset := 0

	for _, l := range c.components {
		result := check(l)
		result.WindowIndex += offset
		if !result.Allowed {
			return result
		}
		if tightest == nil || result.Remaining < tightest.Remaining {
			tightest = result
		}
		offset += len(l.windows)
	}

	return tightest
}

// Status reports every component window in evaluation order.
func (c *Composite) Status(now time.Time) []WindowStatus {
	var out []WindowStatus
	for _, l := range c.components {
		out = append(out, l.Status(now)...)
	}
	return out
}

// Reset clears every component.
func (c *Composite) Reset() {
	for _, l := range c.components {
		l.Reset()
	}
}

var (
	_ Admitter = (*Limiter)(nil)
	_ Admitter = (*Composite)(nil)
)
