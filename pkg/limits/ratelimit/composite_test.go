package ratelimit

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
)

func TestComposite_SortsBroadestFirst(t *testing.T) {
	c, err := NewCompositeFromUnits([]UnitLimit{
		{Unit: UnitMinute, Count: 2},
		{Unit: UnitHour, Count: 3},
		{Unit: UnitDay, Count: 4},
	})
	if err != nil {
		t.Fatalf("NewCompositeFromUnits() error = %v", err)
	}

	want := []time.Duration{24 * time.Hour, time.Hour, time.Minute}
	got := c.Windows()
	if len(got) != len(want) {
		t.Fatalf("Expected %d windows, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i].Duration != want[i] {
			t.Errorf("Position %d: expected %v, got %v", i, want[i], got[i].Duration)
		}
	}
}

func TestComposite_StableForEqualWindows(t *testing.T) {
	a := mustLimiter(t, Window{Duration: time.Minute, Capacity: 1})
	b := mustLimiter(t, Window{Duration: time.Minute, Capacity: 2})
	day := mustLimiter(t, Window{Duration: 24 * time.Hour, Capacity: 3})

	c, err := NewComposite([]*Limiter{a, b, day})
	if err != nil {
		t.Fatalf("NewComposite() error = %v", err)
	}

	components := c.Components()
	if components[0] != day || components[1] != a || components[2] != b {
		t.Error("Expected day first, then equal minute windows in declaration order")
	}
}

func TestComposite_ShortCircuitOrdering(t *testing.T) {
	c, err := NewCompositeFromWindows([]Window{
		{Duration: time.Minute, Capacity: 100},
		{Duration: 24 * time.Hour, Capacity: 1},
	})
	if err != nil {
		t.Fatalf("NewCompositeFromWindows() error = %v", err)
	}
	minute := c.Components()[1]

	if ok, _ := c.AllowAt(epoch); !ok {
		t.Fatal("Expected first call to be admitted")
	}
	before := usedCounts(minute)[0]

	ok, retry := c.AllowAt(epoch.Add(time.Second))
	if ok {
		t.Fatal("Expected second call to be rejected by the day window")
	}
	if retry != 24*time.Hour-time.Second {
		t.Errorf("Expected day window retryAfter, got %v", retry)
	}
	if after := usedCounts(minute)[0]; after != before {
		t.Errorf("Minute window changed on rejection: %d -> %d", before, after)
	}
}

func TestComposite_NoRollbackOfEarlierComponents(t *testing.T) {
	day := mustLimiter(t, Window{Duration: 24 * time.Hour, Capacity: 10})
	minute := mustLimiter(t, Window{Duration: time.Minute, Capacity: 1})
	c, err := NewComposite([]*Limiter{minute, day})
	if err != nil {
		t.Fatalf("NewComposite() error = %v", err)
	}

	c.AllowAt(epoch)
	result := c.Check(epoch)
	if result.Allowed {
		t.Fatal("Expected minute window to reject")
	}
	if result.WindowIndex != 1 {
		t.Errorf("Expected flattened window index 1, got %d", result.WindowIndex)
	}

	// The day component admitted before the minute component rejected.
	if got := usedCounts(day)[0]; got != 2 {
		t.Errorf("Expected day component to hold 2 events, got %d", got)
	}
	if got := usedCounts(minute)[0]; got != 1 {
		t.Errorf("Expected minute component to hold 1 event, got %d", got)
	}
}

func TestComposite_AllAdmitReportsTightest(t *testing.T) {
	c, err := NewCompositeFromWindows([]Window{
		{Duration: time.Minute, Capacity: 2},
		{Duration: time.Hour, Capacity: 10},
	})
	if err != nil {
		t.Fatalf("NewCompositeFromWindows() error = %v", err)
	}

	result := c.Check(epoch)
	if !result.Allowed || result.RetryAfter != 0 {
		t.Fatalf("Expected admission, got %+v", result)
	}
	if result.Window.Duration != time.Minute || result.Remaining != 1 {
		t.Errorf("Expected minute window with 1 remaining, got %v with %d", result.Window, result.Remaining)
	}
	if result.WindowIndex != 1 {
		t.Errorf("Expected flattened index 1, got %d", result.WindowIndex)
	}
}

func TestComposite_Validation(t *testing.T) {
	if _, err := NewComposite(nil); !errors.Is(err, ErrNoWindows) {
		t.Errorf("Expected ErrNoWindows, got %v", err)
	}
	if _, err := NewComposite([]*Limiter{nil}); !errors.Is(err, ErrNilLimiter) {
		t.Errorf("Expected ErrNilLimiter, got %v", err)
	}
	if _, err := NewCompositeFromWindows([]Window{{Duration: time.Minute, Capacity: -1}}); !errors.Is(err, ErrNegativeCapacity) {
		t.Errorf("Expected ErrNegativeCapacity, got %v", err)
	}
	if _, err := NewCompositeFromUnits([]UnitLimit{{Unit: "fortnight", Count: 1}}); !errors.Is(err, ErrUnknownTimeUnit) {
		t.Errorf("Expected ErrUnknownTimeUnit, got %v", err)
	}
}

func TestComposite_UnitLimitsBlockEachTier(t *testing.T) {
	// Mirrors minute=2, hour=3, day=4 declarations on one operation.
	clock := clockwork.NewFakeClockAt(epoch)
	c, err := NewCompositeFromUnits([]UnitLimit{
		{Unit: UnitMinute, Count: 2},
		{Unit: UnitHour, Count: 3},
		{Unit: UnitDay, Count: 4},
	}, WithClock(clock))
	if err != nil {
		t.Fatalf("NewCompositeFromUnits() error = %v", err)
	}

	c.Allow()
	c.Allow()
	result := c.Check(clock.Now())
	if result.Allowed || result.Window.Duration != time.Minute {
		t.Fatalf("Expected minute rejection, got %+v", result)
	}

	// The rejected call above still spent a day and an hour slot.
	clock.Advance(2 * time.Minute)
	result = c.Check(clock.Now())
	if result.Allowed || result.Window.Duration != time.Hour {
		t.Fatalf("Expected hour rejection, got %+v", result)
	}

	clock.Advance(2 * time.Hour)
	result = c.Check(clock.Now())
	if result.Allowed || result.Window.Duration != 24*time.Hour {
		t.Fatalf("Expected day rejection, got %+v", result)
	}
}

func TestComposite_StatusAndReset(t *testing.T) {
	c, err := NewCompositeFromWindows([]Window{
		{Duration: time.Minute, Capacity: 2},
		{Duration: time.Hour, Capacity: 3},
	})
	if err != nil {
		t.Fatalf("NewCompositeFromWindows() error = %v", err)
	}

	c.AllowAt(epoch)
	status := c.Status(epoch)
	if len(status) != 2 {
		t.Fatalf("Expected 2 statuses, got %d", len(status))
	}
	if status[0].Window.Duration != time.Hour || status[0].Used != 1 {
		t.Errorf("Expected hour window first with 1 used, got %+v", status[0])
	}

	c.Reset()
	for _, s := range c.Status(epoch) {
		if s.Used != 0 {
			t.Errorf("Expected empty window after reset, got %+v", s)
		}
	}
}

func TestComposite_Concurrent(t *testing.T) {
	c, err := NewCompositeFromWindows([]Window{
		{Duration: time.Minute, Capacity: 25},
		{Duration: 24 * time.Hour, Capacity: 1000},
	})
	if err != nil {
		t.Fatalf("NewCompositeFromWindows() error = %v", err)
	}

	var admitted atomic.Int64
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if ok, _ := c.AllowAt(epoch); ok {
				admitted.Add(1)
			}
		}()
	}
	wg.Wait()

	if admitted.Load() != 25 {
		t.Errorf("Expected 25 admissions, got %d", admitted.Load())
	}
}

func TestComposite_AllowReadsClockUnderComponentLock(t *testing.T) {
	fake := clockwork.NewFakeClockAt(epoch)
	clock := newStallClock(fake)
	c, err := NewCompositeFromWindows([]Window{{Duration: time.Second, Capacity: 2}}, WithClock(clock))
	if err != nil {
		t.Fatalf("NewCompositeFromWindows() error = %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		c.Allow()
	}()

	<-clock.entered
	fake.Advance(500 * time.Millisecond)
	go func() {
		defer wg.Done()
		c.Allow()
	}()

	time.Sleep(20 * time.Millisecond)
	close(clock.release)
	wg.Wait()

	if ok, retryAfter := c.AllowAt(epoch.Add(1200 * time.Millisecond)); !ok || retryAfter != 0 {
		t.Errorf("Expected admission once the first event expired, got %v, %v", ok, retryAfter)
	}
}

func TestComposite_CheckNowReportsInstant(t *testing.T) {
	clock := clockwork.NewFakeClockAt(epoch)
	c, err := NewCompositeFromWindows([]Window{
		{Duration: time.Minute, Capacity: 5},
		{Duration: time.Hour, Capacity: 1},
	})
	if err != nil {
		t.Fatalf("NewCompositeFromWindows() error = %v", err)
	}

	c.CheckNow(clock)
	clock.Advance(time.Minute)
	result := c.CheckNow(clock)
	if result.Allowed {
		t.Fatal("Expected the hour component to reject")
	}
	if result.Window.Duration != time.Hour {
		t.Errorf("Expected hour window, got %v", result.Window)
	}
	if !result.At.Equal(epoch.Add(time.Minute)) {
		t.Errorf("Expected At %v, got %v", epoch.Add(time.Minute), result.At)
	}
	if result.RetryAfter != 59*time.Minute {
		t.Errorf("Expected retry after 59m, got %v", result.RetryAfter)
	}
}
