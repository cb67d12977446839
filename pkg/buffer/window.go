package buffer

import "time"

// timed pairs a value with its arrival time.
type timed[T any] struct {
	value T
	at    time.Time
}

// Window is a ring buffer whose entries also expire by age. Entries are
// assumed to arrive in non-decreasing time order; expiry relies on that
// order to evict from the front only, stopping at the first entry still
// inside the window. That keeps every operation amortized O(1) instead
// of scanning the whole buffer on each call.
type Window[T any] struct {
	ring   *Ring[timed[T]]
	maxAge time.Duration
	now    func() time.Time
}

// NewWindow creates a time-windowed buffer holding at most capacity
// entries, each retained for at most maxAge.
func NewWindow[T any](capacity int, maxAge time.Duration) *Window[T] {
	return &Window[T]{
		ring:   NewRing[timed[T]](capacity),
		maxAge: maxAge,
		now:    time.Now,
	}
}

// Add stamps the value with the current time and appends it, evicting
// any expired entries first.
func (w *Window[T]) Add(v T) {
	w.evictExpired()
	w.ring.Push(timed[T]{value: v, at: w.now()})
}

// Values returns all non-expired values, oldest to newest.
func (w *Window[T]) Values() []T {
	w.evictExpired()
	out := make([]T, 0, w.ring.Len())
	for e := range w.ring.All() {
		out = append(out, e.value)
	}
	return out
}

// InRange returns non-expired values stamped within [from, to].
func (w *Window[T]) InRange(from, to time.Time) []T {
	w.evictExpired()
	var out []T
	for e := range w.ring.All() {
		if e.at.Before(from) {
			continue
		}
		if e.at.After(to) {
			break
		}
		out = append(out, e.value)
	}
	return out
}

// Len returns the number of non-expired entries.
func (w *Window[T]) Len() int {
	w.evictExpired()
	return w.ring.Len()
}

// Clear removes all entries.
func (w *Window[T]) Clear() { w.ring.Clear() }

func (w *Window[T]) evictExpired() {
	cutoff := w.now().Add(-w.maxAge)
	for {
		oldest, ok := w.ring.PeekOldest()
		if !ok || !oldest.at.Before(cutoff) {
			return
		}
		w.ring.Shift()
	}
}
