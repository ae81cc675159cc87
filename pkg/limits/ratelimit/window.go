package ratelimit

import (
	"fmt"
	"strings"
	"time"
)

// Window is a single rate constraint: at most Capacity events per Duration.
type Window struct {
	Duration time.Duration
	Capacity int
}

// String renders the window as "<capacity> per <duration>".
func (w Window) String() string {
	return fmt.Sprintf("%d per %s", w.Capacity, w.Duration)
}

// Validate reports whether the window can be enforced.
// Zero durations and zero capacities are legal.
func (w Window) Validate() error {
	if w.Duration < 0 {
		return ErrNegativeDuration
	}
	if w.Capacity < 0 {
		return ErrNegativeCapacity
	}
	return nil
}

// TimeUnit names a standard window length.
type TimeUnit string

const (
	// UnitSecond is a one second window.
	UnitSecond TimeUnit = "second"

	// UnitMinute is a one minute window.
	UnitMinute TimeUnit = "minute"

	// UnitHour is a one hour window.
	UnitHour TimeUnit = "hour"

	// UnitDay is a 24 hour window.
	UnitDay TimeUnit = "day"
)

// Duration returns the length of the unit.
func (u TimeUnit) Duration() (time.Duration, error) {
	switch u {
	case UnitSecond:
		return time.Second, nil
	case UnitMinute:
		return time.Minute, nil
	case UnitHour:
		return time.Hour, nil
	case UnitDay:
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownTimeUnit, string(u))
	}
}

// ParseTimeUnit parses a unit name case-insensitively.
// Plural forms ("minutes") are accepted.
func ParseTimeUnit(s string) (TimeUnit, error) {
	u := TimeUnit(strings.TrimSuffix(strings.ToLower(strings.TrimSpace(s)), "s"))
	if _, err := u.Duration(); err != nil {
		return "", err
	}
	return u, nil
}

// UnitLimit declares Count events per Unit. It is the declarative form used
// to attach a limit to an operation.
type UnitLimit struct {
	Unit  TimeUnit
	Count int
}

// Window converts the declaration into a Window.
func (ul UnitLimit) Window() (Window, error) {
	d, err := ul.Unit.Duration()
	if err != nil {
		return Window{}, err
	}
	return Window{Duration: d, Capacity: ul.Count}, nil
}

func validateWindows(windows []Window) error {
	if len(windows) == 0 {
		return ErrNoWindows
	}
	for i, w := range windows {
		if err := w.Validate(); err != nil {
			return &ConfigError{Index: i, Window: w, Err: err}
		}
	}
	return nil
}
