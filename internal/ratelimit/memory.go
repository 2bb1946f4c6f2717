package ratelimit

import (
	"sync"
	"time"
)

// window is one live counter.
type window struct {
	count       int
	windowStart time.Time
	windowEnd   time.Time
}

// MemoryStore is an in-process WindowStore. Counters do not survive a restart,
// which is acceptable for rate-limit state; deployments that want persistence
// use the bbolt-backed store instead.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string]*window
}

// NewMemoryStore creates an empty in-memory window store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string]*window)}
}

var _ WindowStore = (*MemoryStore)(nil)

// Consume atomically counts one attempt against the key's window.
func (s *MemoryStore) Consume(key string, limit int, windowDur time.Duration, now time.Time) (Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.windows[key]
	if !ok || !now.Before(w.windowEnd) {
		// First attempt, or the previous window has fully elapsed.
		w = &window{count: 1, windowStart: now, windowEnd: now.Add(windowDur)}
		s.windows[key] = w
		return Result{Allowed: true, Remaining: limit - 1, ResetAt: w.windowEnd}, nil
	}

	if w.count >= limit {
		return Result{Allowed: false, Remaining: 0, ResetAt: w.windowEnd}, nil
	}

	w.count++
	return Result{Allowed: true, Remaining: limit - w.count, ResetAt: w.windowEnd}, nil
}

// Sweep drops windows that ended before now.
func (s *MemoryStore) Sweep(now time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for key, w := range s.windows {
		if !now.Before(w.windowEnd) {
			delete(s.windows, key)
			evicted++
		}
	}
	return evicted, nil
}

// Len returns the number of live windows. Used by tests and stats.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.windows)
}
