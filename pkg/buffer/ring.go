// Package buffer provides a bounded, thread-safe ring buffer used for
// the engine's append-only in-memory histories (audit records, routing
// decisions, recent events). Unlike a queue, reads never consume:
// consumers take snapshots while writers keep appending, and the oldest
// entries are dropped once capacity is reached.
package buffer

import "sync"

// Ring is a fixed-capacity ring buffer with drop-oldest overflow.
type Ring[T any] struct {
	mu      sync.RWMutex
	items   []T
	head    int // next write position
	size    int
	dropped uint64
}

// NewRing creates a ring buffer with the given capacity (minimum 1).
func NewRing[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{items: make([]T, capacity)}
}

// Append adds an item, evicting the oldest entry when full.
// Returns true if an entry was dropped to make room.
func (r *Ring[T]) Append(item T) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := r.size == len(r.items)
	r.items[r.head] = item
	r.head = (r.head + 1) % len(r.items)
	if evicted {
		r.dropped++
	} else {
		r.size++
	}
	return evicted
}

// Snapshot returns a copy of the buffered items, oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	start := (r.head - r.size + len(r.items)) % len(r.items)
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(start+i)%len(r.items)]
	}
	return out
}

// Last returns up to n of the most recent items, oldest first.
func (r *Ring[T]) Last(n int) []T {
	if n <= 0 {
		return nil
	}
	snap := r.Snapshot()
	if len(snap) > n {
		snap = snap[len(snap)-n:]
	}
	return snap
}

// Len returns the current number of buffered items.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Cap returns the buffer capacity.
func (r *Ring[T]) Cap() int {
	return len(r.items)
}

// Dropped returns the total number of entries evicted by overflow.
func (r *Ring[T]) Dropped() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.dropped
}

// Clear removes all buffered items.
func (r *Ring[T]) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	var zero T
	for i := range r.items {
		r.items[i] = zero
	}
	r.head = 0
	r.size = 0
}
