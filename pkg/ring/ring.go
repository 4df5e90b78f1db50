// Package ring provides a thread-safe fixed-capacity append ring. When the
// ring is full the oldest item is dropped to make room, so the ring always
// holds the most recent items in insertion order. Reads are snapshots:
// appending never consumes.
package ring

import (
	"sync"
)

// Ring is a bounded history of the most recent items.
type Ring[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
	size     int
	head     int // next write position
}

// New creates a ring holding at most capacity items.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Append adds item, dropping the oldest item if the ring is full.
func (r *Ring[T]) Append(item T) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[r.head] = item
	r.head = (r.head + 1) % r.capacity
	if r.size < r.capacity {
		r.size++
	}
}

// Snapshot returns the current items oldest first.
func (r *Ring[T]) Snapshot() []T {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]T, r.size)
	start := (r.head - r.size + r.capacity) % r.capacity
	for i := 0; i < r.size; i++ {
		out[i] = r.items[(start+i)%r.capacity]
	}
	return out
}

// Last returns the most recently appended item, or false if empty.
func (r *Ring[T]) Last() (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.items[(r.head-1+r.capacity)%r.capacity], true
}

// FindNewest scans newest to oldest and returns the first item for which
// match returns true, or false if none matches.
func (r *Ring[T]) FindNewest(match func(T) bool) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero T
	for i := 1; i <= r.size; i++ {
		item := r.items[(r.head-i+r.capacity)%r.capacity]
		if match(item) {
			return item, true
		}
	}
	return zero, false
}

// Len returns the number of items currently held.
func (r *Ring[T]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.size
}

// Capacity returns the maximum number of items the ring can hold.
func (r *Ring[T]) Capacity() int {
	return r.capacity // immutable, no lock needed
}

// Clear removes all items.
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
