// Package ring provides a fixed-capacity circular buffer used for register
// free lists, translation buffer slot recycling and the return stack.
package ring

import "fmt"

// Ring is a bounded FIFO/LIFO circular buffer. The zero value is not usable;
// create rings with New. A Ring is not safe for concurrent use.
type Ring[T any] struct {
	entries []T
	head    int // oldest entry
	count   int // number of valid entries
}

// New creates a ring that holds up to capacity entries.
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic(fmt.Sprintf("ring: invalid capacity %d", capacity))
	}
	return &Ring[T]{entries: make([]T, capacity)}
}

// Len returns the number of entries.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the capacity.
func (r *Ring[T]) Cap() int { return len(r.entries) }

// Empty reports whether the ring has no entries.
func (r *Ring[T]) Empty() bool { return r.count == 0 }

// Full reports whether the ring is at capacity.
func (r *Ring[T]) Full() bool { return r.count == len(r.entries) }

func (r *Ring[T]) slot(i int) int {
	return (r.head + i) % len(r.entries)
}

// PushBack appends v as the newest entry. It returns false, leaving the ring
// unchanged, when the ring is full.
func (r *Ring[T]) PushBack(v T) bool {
	if r.Full() {
		return false
	}
	r.entries[r.slot(r.count)] = v
	r.count++
	return true
}

// PushFront inserts v as the oldest entry. It returns false, leaving the
// ring unchanged, when the ring is full.
func (r *Ring[T]) PushFront(v T) bool {
	if r.Full() {
		return false
	}
	r.head = (r.head + len(r.entries) - 1) % len(r.entries)
	r.entries[r.head] = v
	r.count++
	return true
}

// PushBackOverwrite appends v, discarding the oldest entry when full. The
// discarded entry is returned with ok set.
func (r *Ring[T]) PushBackOverwrite(v T) (dropped T, ok bool) {
	if r.Full() {
		dropped, ok = r.PopFront()
	}
	r.PushBack(v)
	return dropped, ok
}

// PopFront removes and returns the oldest entry.
func (r *Ring[T]) PopFront() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	v := r.entries[r.head]
	r.entries[r.head] = zero
	r.head = r.slot(1)
	r.count--
	return v, true
}

// PopBack removes and returns the newest entry.
func (r *Ring[T]) PopBack() (T, bool) {
	var zero T
	if r.count == 0 {
		return zero, false
	}
	i := r.slot(r.count - 1)
	v := r.entries[i]
	r.entries[i] = zero
	r.count--
	return v, true
}

// Front returns the oldest entry without removing it.
func (r *Ring[T]) Front() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.entries[r.head], true
}

// Back returns the newest entry without removing it.
func (r *Ring[T]) Back() (T, bool) {
	if r.count == 0 {
		var zero T
		return zero, false
	}
	return r.entries[r.slot(r.count-1)], true
}

// At returns the i-th entry counted from the oldest. It panics if i is out of
// range.
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic(fmt.Sprintf("ring: index %d out of range [0,%d)", i, r.count))
	}
	return r.entries[r.slot(i)]
}

// Clear removes every entry.
func (r *Ring[T]) Clear() {
	clear(r.entries)
	r.head = 0
	r.count = 0
}
