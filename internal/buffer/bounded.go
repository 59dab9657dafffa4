// Package buffer provides a fixed-capacity FIFO history.
package buffer

import (
	"errors"
	"fmt"
)

const (
	// DefaultCapacity is the history size kept per capture session.
	DefaultCapacity = 100

	// MaxCapacity bounds how large a history may be sized.
	MaxCapacity = 65536
)

// ErrAllocation is returned when a buffer cannot be sized as requested.
var ErrAllocation = errors.New("buffer allocation failed")

// Bounded is a fixed-capacity ring of entries in insertion order. Pushing
// onto a full buffer evicts the oldest entry first. Not safe for concurrent
// use; owners serialize access.
type Bounded[T any] struct {
	entries []T
	head    int // index of the oldest entry
	size    int
	evicted int64
}

// New returns an empty buffer holding at most capacity entries.
func New[T any](capacity int) (*Bounded[T], error) {
	if capacity <= 0 || capacity > MaxCapacity {
		return nil, fmt.Errorf("%w: capacity %d outside 1..%d", ErrAllocation, capacity, MaxCapacity)
	}
	return &Bounded[T]{entries: make([]T, capacity)}, nil
}

// Push appends v. When the buffer is full the oldest entry is released and
// returned with evicted set.
func (b *Bounded[T]) Push(v T) (old T, evicted bool) {
	if b.size < len(b.entries) {
		b.entries[(b.head+b.size)%len(b.entries)] = v
		b.size++
		return old, false
	}
	old = b.entries[b.head]
	b.entries[b.head] = v
	b.head = (b.head + 1) % len(b.entries)
	b.evicted++
	return old, true
}

// Oldest returns the first inserted entry still held.
func (b *Bounded[T]) Oldest() (v T, ok bool) {
	if b.size == 0 {
		return v, false
	}
	return b.entries[b.head], true
}

// Newest returns the most recently inserted entry.
func (b *Bounded[T]) Newest() (v T, ok bool) {
	if b.size == 0 {
		return v, false
	}
	return b.entries[(b.head+b.size-1)%len(b.entries)], true
}

// Each calls fn for every entry, oldest first, until fn returns false.
func (b *Bounded[T]) Each(fn func(T) bool) {
	for i := 0; i < b.size; i++ {
		if !fn(b.entries[(b.head+i)%len(b.entries)]) {
			return
		}
	}
}

// All returns a copy of the entries, oldest first.
func (b *Bounded[T]) All() []T {
	out := make([]T, 0, b.size)
	b.Each(func(v T) bool {
		out = append(out, v)
		return true
	})
	return out
}

// Clear releases every entry.
func (b *Bounded[T]) Clear() {
	clear(b.entries)
	b.head = 0
	b.size = 0
}

// Len returns the number of entries held.
func (b *Bounded[T]) Len() int { return b.size }

// Cap returns the capacity.
func (b *Bounded[T]) Cap() int { return len(b.entries) }

// Evicted returns how many entries have been pushed out since creation.
func (b *Bounded[T]) Evicted() int64 { return b.evicted }
