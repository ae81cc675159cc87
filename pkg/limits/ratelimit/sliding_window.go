package ratelimit

import (
	"time"
)

// slidingWindow is the event log of one Window.
//
// # Algorithm
//
//  1. Evict timestamps older than the window from the front of the log
//  2. Compare the remaining count against capacity
//  3. Append the new timestamp once every window of the limiter has room
//
// Timestamps are appended in call order under the limiter's mutex, and
// clock readings are taken under the same mutex, so the log is sorted and
// eviction is a prefix trim.
//
// # Memory
//
// The live events are events[head:]. Evicted slots are zeroed and the slice
// is compacted once the dead prefix dominates, so the backing array stays
// proportional to capacity.
//
// slidingWindow is not thread-safe. The owning Limiter serializes access.
type slidingWindow struct {
	window Window
	events []time.Time
	head   int
}

// compactThreshold is the minimum dead prefix before compaction is considered.
const compactThreshold = 32

func newSlidingWindow(w Window) *slidingWindow {
	prealloc := w.Capacity
	if prealloc > 64 {
		prealloc = 64
	}
	return &slidingWindow{
		window: w,
		events: make([]time.Time, 0, prealloc),
	}
}

// len returns the number of live events.
func (sw *slidingWindow) len() int {
	return len(sw.events) - sw.head
}

// oldest returns the oldest live event.
func (sw *slidingWindow) oldest() (time.Time, bool) {
	if sw.len() == 0 {
		return time.Time{}, false
	}
	return sw.events[sw.head], true
}

// evict drops every event t with now.Sub(t) > duration.
// An event exactly one duration old is kept.
func (sw *slidingWindow) evict(now time.Time) {
	for sw.head < len(sw.events) && now.Sub(sw.events[sw.head]) > sw.window.Duration {
		sw.events[sw.head] = time.Time{}
		sw.head++
	}

	switch {
	case sw.head == len(sw.events):
		sw.events = sw.events[:0]
		sw.head = 0
	case sw.head >= compactThreshold && sw.head*2 >= len(sw.events):
		n := copy(sw.events, sw.events[sw.head:])
		for i := n; i < len(sw.events); i++ {
			sw.events[i] = time.Time{}
		}
		sw.events = sw.events[:n]
		sw.head = 0
	}
}

// full reports whether the window has no room for another event.
// Must be called after evict.
func (sw *slidingWindow) full() bool {
	return sw.len() >= sw.window.Capacity
}

// retryAfter returns how long until the oldest event leaves the window.
// An empty full window (capacity zero) waits a whole duration.
func (sw *slidingWindow) retryAfter(now time.Time) time.Duration {
	oldest, ok := sw.oldest()
	if !ok {
		return sw.window.Duration
	}
	return sw.window.Duration - now.Sub(oldest)
}

// reset returns when the oldest event leaves the window, or the zero time
// when the log is empty.
func (sw *slidingWindow) reset() time.Time {
	oldest, ok := sw.oldest()
	if !ok {
		return time.Time{}
	}
	return oldest.Add(sw.window.Duration)
}

// remaining returns the free slots in the window.
func (sw *slidingWindow) remaining() int {
	r := sw.window.Capacity - sw.len()
	if r < 0 {
		return 0
	}
	return r
}

// push records an admitted event.
func (sw *slidingWindow) push(now time.Time) {
	sw.events = append(sw.events, now)
}

// clear drops every event.
func (sw *slidingWindow) clear() {
	for i := range sw.events {
		sw.events[i] = time.Time{}
	}
	sw.events = sw.events[:0]
	sw.head = 0
}

// status returns a snapshot of the window. Must be called after evict.
func (sw *slidingWindow) status() WindowStatus {
	return WindowStatus{
		Window:    sw.window,
		Used:      sw.len(),
		Remaining: sw.remaining(),
		Reset:     sw.reset(),
	}
}
