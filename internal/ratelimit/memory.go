package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore implements an in-memory sliding window store.
type MemoryStore struct {
	entries sync.Map // map[string]*entry
	now     func() time.Time

	// For cleanup
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// entry holds the request timestamps for a single client.
type entry struct {
	mu         sync.Mutex
	timestamps []time.Time
	window     time.Duration
	removed    bool
}

// NewMemoryStore creates an in-memory store whose sweeper runs every
// sweepInterval. A non-positive interval disables the sweeper.
func NewMemoryStore(sweepInterval time.Duration) *MemoryStore {
	m := &MemoryStore{
		now:  time.Now,
		done: make(chan struct{}),
	}

	if sweepInterval > 0 {
		m.wg.Add(1)
		go m.cleanupLoop(sweepInterval)
	}

	return m
}

// Hit prunes, checks and records a request for key.
func (m *MemoryStore) Hit(ctx context.Context, key string, now time.Time, window time.Duration, limit int) (Window, error) {
	select {
	case <-ctx.Done():
		return Window{}, ctx.Err()
	default:
	}

	for {
		val, _ := m.entries.LoadOrStore(key, &entry{
			timestamps: make([]time.Time, 0, limit),
		})
		e := val.(*entry)

		e.mu.Lock()
		if e.removed {
			// Swept between load and lock; retry on a fresh entry.
			e.mu.Unlock()
			continue
		}

		e.window = window
		e.timestamps = prune(e.timestamps, now.Add(-window))

		w := Window{Count: len(e.timestamps)}
		if w.Count < limit {
			e.timestamps = insert(e.timestamps, now)
			w.Count++
			w.Admitted = true
		}
		if len(e.timestamps) > 0 {
			w.Oldest = e.timestamps[0]
		}

		e.mu.Unlock()
		return w, nil
	}
}

// Reset clears the window for key.
func (m *MemoryStore) Reset(ctx context.Context, key string) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	if val, ok := m.entries.LoadAndDelete(key); ok {
		e := val.(*entry)
		e.mu.Lock()
		e.removed = true
		e.mu.Unlock()
	}
	return nil
}

// Close stops the sweeper.
func (m *MemoryStore) Close() error {
	m.closeOnce.Do(func() {
		close(m.done)
	})
	m.wg.Wait()
	return nil
}

// Len returns the number of tracked clients.
func (m *MemoryStore) Len() int {
	n := 0
	m.entries.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// cleanupLoop periodically removes expired entries.
func (m *MemoryStore) cleanupLoop(interval time.Duration) {
	defer m.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			m.cleanup(m.now())
		}
	}
}

// cleanup removes entries with no timestamps left in their window.
func (m *MemoryStore) cleanup(now time.Time) {
	m.entries.Range(func(key, value any) bool {
		e := value.(*entry)
		e.mu.Lock()

		e.timestamps = prune(e.timestamps, now.Add(-e.window))
		if len(e.timestamps) == 0 {
			e.removed = true
			m.entries.Delete(key)
		}

		e.mu.Unlock()
		return true
	})
}

// prune drops timestamps at or before windowStart. Timestamps are ordered.
func prune(timestamps []time.Time, windowStart time.Time) []time.Time {
	i := 0
	for i < len(timestamps) && !timestamps[i].After(windowStart) {
		i++
	}
	if i == 0 {
		return timestamps
	}
	return append(timestamps[:0], timestamps[i:]...)
}

// insert adds ts keeping timestamps ordered. Callers sample the clock before
// taking the entry lock, so arrivals can be slightly out of order.
func insert(timestamps []time.Time, ts time.Time) []time.Time {
	n := len(timestamps)
	if n == 0 || !ts.Before(timestamps[n-1]) {
		return append(timestamps, ts)
	}
	i := sort.Search(n, func(i int) bool { return timestamps[i].After(ts) })
	timestamps = append(timestamps, time.Time{})
	copy(timestamps[i+1:], timestamps[i:])
	timestamps[i] = ts
	return timestamps
}
