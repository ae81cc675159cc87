package storage

import (
	"context"
	"sync"
	"time"
)

// MemoryBackend implements Backend using an in-memory ring of records.
// This is the default backend and provides fast access with no persistence.
// All data is lost when the process exits.
//
// When MaxEntries is reached the oldest record is overwritten.
//
// MemoryBackend is thread-safe and supports concurrent access using sync.RWMutex.
type MemoryBackend struct {
	// records is a ring buffer; records[start] is the oldest entry.
	records []*DecisionRecord
	start   int
	size    int

	// mu protects the ring.
	mu sync.RWMutex

	closed bool
}

// MemoryBackendConfig configures the memory backend.
type MemoryBackendConfig struct {
	// MaxEntries is the maximum number of records to keep.
	// Default: 10,000
	MaxEntries int
}

// DefaultMemoryMaxEntries is the default ring size.
const DefaultMemoryMaxEntries = 10000

// NewMemoryBackend creates a new in-memory storage backend with default settings.
func NewMemoryBackend() *MemoryBackend {
	return NewMemoryBackendWithConfig(MemoryBackendConfig{
		MaxEntries: DefaultMemoryMaxEntries,
	})
}

// NewMemoryBackendWithConfig creates a new in-memory backend with custom configuration.
func NewMemoryBackendWithConfig(cfg MemoryBackendConfig) *MemoryBackend {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultMemoryMaxEntries
	}

	return &MemoryBackend{
		records: make([]*DecisionRecord, cfg.MaxEntries),
	}
}

// Append stores a decision record, overwriting the oldest one when full.
func (m *MemoryBackend) Append(ctx context.Context, record *DecisionRecord) error {
	if err := validateRecord(record); err != nil {
		return err
	}

	stored := *record

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}

	if m.size < len(m.records) {
		m.records[(m.start+m.size)%len(m.records)] = &stored
		m.size++
		return nil
	}

	m.records[m.start] = &stored
	m.start = (m.start + 1) % len(m.records)
	return nil
}

// Query returns matching records, newest first.
func (m *MemoryBackend) Query(ctx context.Context, filter Filter) ([]*DecisionRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return nil, ErrClosed
	}

	limit := filter.limit()
	out := make([]*DecisionRecord, 0)
	for i := m.size - 1; i >= 0 && len(out) < limit; i-- {
		r := m.at(i)
		if filter.matches(r) {
			cp := *r
			out = append(out, &cp)
		}
	}

	return out, nil
}

// Count returns the number of matching records.
func (m *MemoryBackend) Count(ctx context.Context, filter Filter) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.closed {
		return 0, ErrClosed
	}

	n := 0
	for i := 0; i < m.size; i++ {
		if filter.matches(m.at(i)) {
			n++
		}
	}
	return n, nil
}

// Cleanup removes records older than olderThan.
func (m *MemoryBackend) Cleanup(ctx context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return 0, ErrClosed
	}

	kept := make([]*DecisionRecord, 0, m.size)
	for i := 0; i < m.size; i++ {
		if r := m.at(i); !r.Timestamp.Before(olderThan) {
			kept = append(kept, r)
		}
	}

	deleted := m.size - len(kept)
	for i := range m.records {
		m.records[i] = nil
	}
	copy(m.records, kept)
	m.start = 0
	m.size = len(kept)

	return deleted, nil
}

// Close releases the stored records.
func (m *MemoryBackend) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	m.records = nil
	m.start = 0
	m.size = 0
	return nil
}

// Size returns the current number of stored records.
// This is useful for monitoring and testing.
func (m *MemoryBackend) Size() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.size
}

// at returns the i-th oldest record. Caller must hold the lock.
func (m *MemoryBackend) at(i int) *DecisionRecord {
	return m.records[(m.start+i)%len(m.records)]
}
