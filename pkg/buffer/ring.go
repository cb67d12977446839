// Package buffer provides the bounded in-memory containers used by the
// telemetry pipeline: a generic ring buffer, a time-windowed variant,
// and a metrics-specialized variant.
//
// All containers here are single-owner data structures with no internal
// locking. Callers in a concurrent setting must serialize access per
// instance; the daemon keeps one instance per source id for exactly
// that reason.
package buffer

import (
	"fmt"
	"iter"
)

// Ring is a fixed-capacity circular buffer. When full, Push overwrites
// the oldest element. Iteration order is always oldest to newest.
type Ring[T any] struct {
	slots []T
	start int // index of the oldest element
	size  int

	onEvict func(T)
	onFull  func()
}

// NewRing creates a ring buffer with the given capacity.
// The capacity must be at least 1.
func NewRing[T any](capacity int) *Ring[T] {
	if capacity < 1 {
		panic(fmt.Sprintf("buffer: capacity must be at least 1, got %d", capacity))
	}
	return &Ring[T]{slots: make([]T, capacity)}
}

// OnEvict registers a hook invoked synchronously with each element
// overwritten by Push, before its slot is reused.
func (r *Ring[T]) OnEvict(fn func(T)) { r.onEvict = fn }

// OnFull registers a hook invoked synchronously the instant the buffer
// transitions from not-full to full. It fires again only after the
// buffer has left the full state (via Shift or Clear) and refills.
func (r *Ring[T]) OnFull(fn func()) { r.onFull = fn }

// Push appends an element. When the buffer is full the oldest element
// is overwritten and passed to the evict hook. Push never fails.
func (r *Ring[T]) Push(v T) {
	capacity := len(r.slots)
	if r.size == capacity {
		evicted := r.slots[r.start]
		r.slots[r.start] = v
		r.start = (r.start + 1) % capacity
		if r.onEvict != nil {
			r.onEvict(evicted)
		}
		return
	}
	r.slots[(r.start+r.size)%capacity] = v
	r.size++
	if r.size == capacity && r.onFull != nil {
		r.onFull()
	}
}

// Shift removes and returns the oldest element. The second return value
// is false when the buffer is empty.
func (r *Ring[T]) Shift() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	v := r.slots[r.start]
	r.slots[r.start] = zero // release for GC
	r.start = (r.start + 1) % len(r.slots)
	r.size--
	return v, true
}

// PeekOldest returns the oldest element without removing it.
func (r *Ring[T]) PeekOldest() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.slots[r.start], true
}

// Peek returns the newest element without removing it.
func (r *Ring[T]) Peek() (T, bool) {
	var zero T
	if r.size == 0 {
		return zero, false
	}
	return r.slots[(r.start+r.size-1)%len(r.slots)], true
}

// Len returns the current number of elements.
func (r *Ring[T]) Len() int { return r.size }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.slots) }

// Full reports whether size equals capacity.
func (r *Ring[T]) Full() bool { return r.size == len(r.slots) }

// ToSlice returns a copy of the contents, oldest to newest.
func (r *Ring[T]) ToSlice() []T {
	out := make([]T, r.size)
	for i := 0; i < r.size; i++ {
		out[i] = r.slots[(r.start+i)%len(r.slots)]
	}
	return out
}

// Recent returns up to n elements, newest to oldest.
func (r *Ring[T]) Recent(n int) []T {
	if n > r.size {
		n = r.size
	}
	if n < 0 {
		n = 0
	}
	out := make([]T, n)
	for i := 0; i < n; i++ {
		out[i] = r.slots[(r.start+r.size-1-i+len(r.slots))%len(r.slots)]
	}
	return out
}

// Range returns the elements in [start, end), indexed from the oldest
// element. Both bounds are clamped to [0, Len].
func (r *Ring[T]) Range(start, end int) []T {
	if start < 0 {
		start = 0
	}
	if end > r.size {
		end = r.size
	}
	if start >= end {
		return []T{}
	}
	out := make([]T, end-start)
	for i := start; i < end; i++ {
		out[i-start] = r.slots[(r.start+i)%len(r.slots)]
	}
	return out
}

// All iterates the contents oldest to newest. The buffer must not be
// mutated during iteration.
func (r *Ring[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for i := 0; i < r.size; i++ {
			if !yield(r.slots[(r.start+i)%len(r.slots)]) {
				return
			}
		}
	}
}

// Clear resets the buffer to empty without shrinking its capacity.
func (r *Ring[T]) Clear() {
	var zero T
	for i := range r.slots {
		r.slots[i] = zero
	}
	r.start = 0
	r.size = 0
}
