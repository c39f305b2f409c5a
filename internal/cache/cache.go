package cache

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/benbjohnson/clock"
)

// Snapshot is a lock-free, read-optimized container
// holding any immutable structure.
type Snapshot[T any] struct{ v atomic.Pointer[T] }

// Load returns the stored value, or the zero value if nothing was stored yet.
func (s *Snapshot[T]) Load() T {
	p := s.v.Load()
	if p == nil {
		var z T
		return z
	}
	return *p
}

// Store atomically swaps in the new value.
func (s *Snapshot[T]) Store(v T) {
	s.v.Store(&v)
}

// Stale holds one value for a fixed staleness window measured on clk.
type Stale[T any] struct {
	clk    clock.Clock
	window time.Duration

	mu        sync.RWMutex
	value     T
	fetchedAt time.Time
	ok        bool
}

func NewStale[T any](clk clock.Clock, window time.Duration) *Stale[T] {
	if clk == nil {
		clk = clock.New()
	}
	return &Stale[T]{clk: clk, window: window}
}

// Get returns the cached value while it is younger than the window.
func (s *Stale[T]) Get() (T, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.ok || s.clk.Since(s.fetchedAt) >= s.window {
		var z T
		return z, false
	}
	return s.value, true
}

// Set stores v, stamped with the current clock time.
func (s *Stale[T]) Set(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.value = v
	s.fetchedAt = s.clk.Now()
	s.ok = true
}

// Invalidate forces the next Get to miss.
func (s *Stale[T]) Invalidate() {
	s.mu.Lock()
	defer s.mu.Unlock()
	var z T
	s.value = z
	s.ok = false
}
