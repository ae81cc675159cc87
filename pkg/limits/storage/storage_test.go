package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"
)

var base = time.Date(2025, 11, 19, 12, 0, 0, 0, time.UTC)

func record(id string, limiter string, at time.Time, allowed bool) *DecisionRecord {
	r := &DecisionRecord{
		ID:        id,
		Limiter:   limiter,
		Timestamp: at,
		Allowed:   allowed,
		Window:    time.Minute,
		Capacity:  3,
	}
	if !allowed {
		r.RetryAfter = 30 * time.Second
		r.Reason = "exceeded limit of 3 requests per 1m0s"
	}
	return r
}

// testBackendContract exercises the behavior every Backend must share.
func testBackendContract(t *testing.T, backend Backend) {
	t.Helper()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		limiter := "console"
		if i%2 == 1 {
			limiter = "http"
		}
		r := record(fmt.Sprintf("d-%02d", i), limiter, base.Add(time.Duration(i)*time.Minute), i%3 != 0)
		if err := backend.Append(ctx, r); err != nil {
			t.Fatalf("Append %d failed: %v", i, err)
		}
	}

	// Newest first
	all, err := backend.Query(ctx, Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(all) != 10 {
		t.Fatalf("Expected 10 records, got %d", len(all))
	}
	if all[0].ID != "d-09" || all[9].ID != "d-00" {
		t.Errorf("Expected newest first, got %s ... %s", all[0].ID, all[9].ID)
	}

	// Round trip of fields
	rejected := all[9]
	if rejected.Allowed {
		t.Error("Expected d-00 to be a rejection")
	}
	if rejected.RetryAfter != 30*time.Second || rejected.Window != time.Minute || rejected.Capacity != 3 {
		t.Errorf("Unexpected fields: %+v", rejected)
	}
	if !rejected.Timestamp.Equal(base) {
		t.Errorf("Expected timestamp %v, got %v", base, rejected.Timestamp)
	}

	// Filters
	no := false
	rejections, err := backend.Query(ctx, Filter{Allowed: &no})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(rejections) != 4 {
		t.Errorf("Expected 4 rejections, got %d", len(rejections))
	}

	console, err := backend.Count(ctx, Filter{Limiter: "console"})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if console != 5 {
		t.Errorf("Expected 5 console records, got %d", console)
	}

	ranged, err := backend.Query(ctx, Filter{Since: base.Add(3 * time.Minute), Until: base.Add(5 * time.Minute)})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(ranged) != 3 {
		t.Errorf("Expected 3 records in range, got %d", len(ranged))
	}

	limited, err := backend.Query(ctx, Filter{Limit: 2})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "d-09" {
		t.Errorf("Expected the 2 newest records, got %d", len(limited))
	}

	// Cleanup
	deleted, err := backend.Cleanup(ctx, base.Add(4*time.Minute))
	if err != nil {
		t.Fatalf("Cleanup failed: %v", err)
	}
	if deleted != 4 {
		t.Errorf("Expected 4 deleted, got %d", deleted)
	}
	remaining, err := backend.Count(ctx, Filter{})
	if err != nil {
		t.Fatalf("Count failed: %v", err)
	}
	if remaining != 6 {
		t.Errorf("Expected 6 remaining, got %d", remaining)
	}

	// Validation
	if err := backend.Append(ctx, nil); !errors.Is(err, ErrNilRecord) {
		t.Errorf("Expected ErrNilRecord, got %v", err)
	}
	if err := backend.Append(ctx, &DecisionRecord{}); !errors.Is(err, ErrMissingID) {
		t.Errorf("Expected ErrMissingID, got %v", err)
	}
}

func TestMemoryBackend_Contract(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	testBackendContract(t, backend)
}

func TestMemoryBackend_EmptyQuery(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	records, err := backend.Query(context.Background(), Filter{})
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("Expected empty non-nil slice, got %v", records)
	}
}

func TestMemoryBackend_MaxEntries(t *testing.T) {
	backend := NewMemoryBackendWithConfig(MemoryBackendConfig{MaxEntries: 3})
	defer backend.Close()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		if err := backend.Append(ctx, record(fmt.Sprintf("d-%d", i), "console", base.Add(time.Duration(i)*time.Second), true)); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	if backend.Size() != 3 {
		t.Fatalf("Expected size 3, got %d", backend.Size())
	}

	records, _ := backend.Query(ctx, Filter{})
	ids := []string{records[0].ID, records[1].ID, records[2].ID}
	want := []string{"d-4", "d-3", "d-2"}
	for i := range want {
		if ids[i] != want[i] {
			t.Errorf("Expected %v, got %v", want, ids)
			break
		}
	}
}

func TestMemoryBackend_RecordsAreCopied(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	ctx := context.Background()
	r := record("d-1", "console", base, true)
	backend.Append(ctx, r)
	r.Limiter = "mutated"

	records, _ := backend.Query(ctx, Filter{})
	if records[0].Limiter != "console" {
		t.Errorf("Expected stored record to be isolated from caller, got %q", records[0].Limiter)
	}

	records[0].Limiter = "mutated"
	again, _ := backend.Query(ctx, Filter{})
	if again[0].Limiter != "console" {
		t.Errorf("Expected query results to be isolated, got %q", again[0].Limiter)
	}
}

func TestMemoryBackend_Closed(t *testing.T) {
	backend := NewMemoryBackend()
	backend.Close()

	ctx := context.Background()
	if err := backend.Append(ctx, record("d-1", "console", base, true)); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
	if _, err := backend.Query(ctx, Filter{}); !errors.Is(err, ErrClosed) {
		t.Errorf("Expected ErrClosed, got %v", err)
	}
}

func TestMemoryBackend_Concurrent(t *testing.T) {
	backend := NewMemoryBackend()
	defer backend.Close()

	ctx := context.Background()
	var wg sync.WaitGroup
	for g := 0; g < 10; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				backend.Append(ctx, record(fmt.Sprintf("d-%d-%d", g, i), "console", base, true))
				backend.Query(ctx, Filter{Limit: 5})
			}
		}(g)
	}
	wg.Wait()

	if backend.Size() != 1000 {
		t.Errorf("Expected 1000 records, got %d", backend.Size())
	}
}

func BenchmarkMemoryBackend_Append(b *testing.B) {
	backend := NewMemoryBackend()
	defer backend.Close()

	ctx := context.Background()
	r := record("d", "console", base, true)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		backend.Append(ctx, r)
	}
}
