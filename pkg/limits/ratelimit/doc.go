// Package ratelimit provides multi-window sliding-log rate limiting.
//
// # Overview
//
// A Limiter enforces several caps at once on a single stream of events,
// for example 3 per minute, 5 per hour and 9 per day. Every window keeps an
// ordered log of the timestamps it admitted. A request is admitted only when
// every window has room, and only then is the timestamp appended to every log:
//
//	limiter, err := ratelimit.NewLimiter([]ratelimit.Window{
//	    {Duration: time.Minute, Capacity: 3},
//	    {Duration: time.Hour, Capacity: 5},
//	    {Duration: 24 * time.Hour, Capacity: 9},
//	})
//	if err != nil {
//	    return err
//	}
//
//	if ok, retryAfter := limiter.Allow(); !ok {
//	    // Rejected, try again after retryAfter
//	}
//
// # Composite Limiters
//
// A Composite chains independent single-window limiters and evaluates them
// broadest window first. Unlike a Limiter, a Composite is not all-or-nothing:
// a component that admitted keeps its admission even when a later component
// rejects, which is why the broadest window is checked first.
//
//	composite, err := ratelimit.NewCompositeFromUnits([]ratelimit.UnitLimit{
//	    {Unit: ratelimit.UnitMinute, Count: 2},
//	    {Unit: ratelimit.UnitHour, Count: 3},
//	    {Unit: ratelimit.UnitDay, Count: 4},
//	})
//
// # Window Semantics
//
// An event recorded at t is expired at now when now.Sub(t) > duration. An
// event exactly one duration old still counts. A window with capacity zero
// never admits. A window with duration zero admits Capacity events at a
// single instant and then blocks until the clock moves.
//
// # Time
//
// Allow reads the limiter's clock (a clockwork.Clock, real by default).
// AllowAt takes the timestamp explicitly. Timestamps from time.Now carry a
// monotonic reading that Time.Sub prefers, so wall clock steps do not affect
// eviction. Timestamps without a monotonic reading are compared by wall
// clock, and a backward step makes windows under-evict.
//
// # Thread Safety
//
// Limiter holds one mutex for the whole evict-check-append sequence of a
// call, so calls are linearizable. Composite adds no locking of its own.
package ratelimit
