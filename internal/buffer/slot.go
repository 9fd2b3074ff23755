// Package buffer provides the bounded drop-oldest handoff slot shared by
// the capture and captioning stages.
package buffer

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Slot is a fixed-capacity buffer with drop-oldest eviction. Put never
// blocks: inserting into a full slot evicts the oldest unconsumed item
// rather than waiting or rejecting the new one. Take never blocks: it
// reports "nothing new" instead. This is what keeps a slow consumer from
// stalling a fast producer, and vice versa.
//
// A single mutex serializes all access, so the slot is safe for one
// producer and one consumer running concurrently (or several of either).
type Slot[T any] struct {
	mu         sync.Mutex
	items      []T
	capacity   int
	writeIndex int
	count      int

	// Metrics
	totalPuts  atomic.Uint64
	totalTakes atomic.Uint64
	dropped    atomic.Uint64
}

// New creates a slot with the given capacity. Capacity below 1 is a
// configuration error and fails immediately.
func New[T any](capacity int) (*Slot[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("slot capacity must be at least 1, got %d", capacity)
	}
	return &Slot[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}, nil
}

// Put stores an item. If the slot is full the oldest unconsumed item is
// discarded to make room.
func (s *Slot[T]) Put(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items[s.writeIndex] = item
	s.writeIndex = (s.writeIndex + 1) % s.capacity

	if s.count < s.capacity {
		s.count++
	} else {
		s.dropped.Add(1)
	}
	s.totalPuts.Add(1)
}

// Take removes and returns the oldest available item. The second return
// value is false when the slot is empty.
func (s *Slot[T]) Take() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.count == 0 {
		return zero, false
	}

	idx := (s.writeIndex - s.count + s.capacity) % s.capacity
	item := s.items[idx]
	s.items[idx] = zero
	s.count--
	s.totalTakes.Add(1)
	return item, true
}

// TakeLatest removes and returns the newest available item, discarding any
// older unconsumed ones. Used by the presentation accessors, where stale
// data has no value.
func (s *Slot[T]) TakeLatest() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.count == 0 {
		return zero, false
	}

	idx := (s.writeIndex - 1 + s.capacity) % s.capacity
	item := s.items[idx]

	// Everything older is summarized by the newest.
	if s.count > 1 {
		s.dropped.Add(uint64(s.count - 1))
	}
	for i := range s.items {
		s.items[i] = zero
	}
	s.count = 0
	s.totalTakes.Add(1)
	return item, true
}

// Drain removes and discards all held items. Used at shutdown.
func (s *Slot[T]) Drain() {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	for i := range s.items {
		s.items[i] = zero
	}
	s.count = 0
	s.writeIndex = 0
}

// Len returns the number of unconsumed items currently held.
func (s *Slot[T]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.count
}

// Capacity returns the maximum number of items the slot can hold.
func (s *Slot[T]) Capacity() int {
	return s.capacity
}

// Dropped returns the total number of items evicted without being consumed.
func (s *Slot[T]) Dropped() uint64 {
	return s.dropped.Load()
}
