// queue.go: Bounded multi-producer / single-consumer FIFO
//
// The queue keeps its elements in a slot slice with one spare slot that
// separates writeIndex from readIndex, the same seam layout the ring buffer
// uses. The allocation grows on demand until MaxSize live elements fit; past
// that point the overflow policy decides between dropping the oldest unread
// element and rejecting the new one.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"sync"
	"sync/atomic"

	"github.com/agilira/hestia/internal/ringindex"
)

// OverflowPolicy selects what Push does when MaxSize elements are unread.
type OverflowPolicy int

const (
	// OverflowDropOldest silently discards the oldest unread element.
	OverflowDropOldest OverflowPolicy = iota

	// OverflowRejectNew keeps the queue untouched and makes Push return false.
	OverflowRejectNew
)

func (p OverflowPolicy) String() string {
	switch p {
	case OverflowDropOldest:
		return "drop-oldest"
	case OverflowRejectNew:
		return "reject-new"
	default:
		return "unknown"
	}
}

// QueueOption configures a Queue at construction time.
type QueueOption func(*queueOptions)

type queueOptions struct {
	policy OverflowPolicy
}

// WithOverflowPolicy sets the overflow policy (default OverflowDropOldest).
func WithOverflowPolicy(p OverflowPolicy) QueueOption {
	return func(o *queueOptions) { o.policy = p }
}

// Queue is a growable FIFO bounded by MaxSize.
//
// Push may be called from any number of goroutines. HasElement, TakeRef,
// TakeCopy and Clear belong to a single consumer: checking HasElement and
// then taking is not atomic across calls. Consumers that cannot keep that
// discipline should use TryTake.
type Queue[T any] struct {
	mu         sync.Mutex
	slots      []T
	readIndex  int // last slot handed to the consumer
	writeIndex int // last slot written by a producer
	maxSize    int
	policy     OverflowPolicy

	pushed  atomic.Int64
	dropped atomic.Int64
}

// NewQueue creates a queue with room for initialCapacity elements that grows
// up to maxSize. maxSize below 1 is raised to 1; initialCapacity is clamped
// into [1, maxSize].
func NewQueue[T any](initialCapacity, maxSize int, opts ...QueueOption) *Queue[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	if initialCapacity < 1 {
		initialCapacity = 1
	}
	if initialCapacity > maxSize {
		initialCapacity = maxSize
	}

	o := queueOptions{policy: OverflowDropOldest}
	for _, opt := range opts {
		opt(&o)
	}

	return &Queue[T]{
		slots:   make([]T, initialCapacity+1),
		maxSize: maxSize,
		policy:  o.policy,
	}
}

// Push appends v. It returns false only when the queue is full and the
// policy is OverflowRejectNew.
func (q *Queue[T]) Push(v T) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.slots)
	if ringindex.Inc(q.writeIndex, n) == q.readIndex {
		if n-1 >= q.maxSize {
			if q.policy == OverflowRejectNew {
				q.dropped.Add(1)
				return false
			}
			q.readIndex = ringindex.Inc(q.readIndex, n)
			var zero T
			q.slots[q.readIndex] = zero
			q.dropped.Add(1)
		} else {
			q.grow()
			n = len(q.slots)
		}
	}

	q.writeIndex = ringindex.Inc(q.writeIndex, n)
	q.slots[q.writeIndex] = v
	q.pushed.Add(1)
	return true
}

// grow enlarges the allocation by max(10%, 3) slots capped at maxSize and
// lays the unread elements out contiguously after slot 0. Caller holds mu.
func (q *Queue[T]) grow() {
	oldCap := len(q.slots) - 1
	newCap := max(oldCap+oldCap/10, oldCap+3)
	if newCap > q.maxSize {
		newCap = q.maxSize
	}

	count := q.lenLocked()
	grown := make([]T, newCap+1)
	for i, idx := 0, q.readIndex; i < count; i++ {
		idx = ringindex.Inc(idx, len(q.slots))
		grown[i+1] = q.slots[idx]
	}
	q.slots = grown
	q.readIndex = 0
	q.writeIndex = count
}

// HasElement reports whether an unread element is available.
func (q *Queue[T]) HasElement() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.writeIndex != q.readIndex
}

// TakeRef advances the read cursor and returns a pointer to the element.
// The pointer stays valid until the next Push or Clear. On an empty queue
// it returns nil and leaves the cursor in place.
func (q *Queue[T]) TakeRef() *T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.writeIndex == q.readIndex {
		return nil
	}
	q.readIndex = ringindex.Inc(q.readIndex, len(q.slots))
	return &q.slots[q.readIndex]
}

// TakeCopy advances the read cursor and returns a copy of the element.
// On an empty queue it returns the zero value.
func (q *Queue[T]) TakeCopy() T {
	v, _ := q.TryTake()
	return v
}

// TryTake checks and takes in one critical section.
func (q *Queue[T]) TryTake() (T, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	if q.writeIndex == q.readIndex {
		return zero, false
	}
	q.readIndex = ringindex.Inc(q.readIndex, len(q.slots))
	v := q.slots[q.readIndex]
	q.slots[q.readIndex] = zero
	return v, true
}

// Clear discards every unread element.
func (q *Queue[T]) Clear() {
	q.mu.Lock()
	defer q.mu.Unlock()

	var zero T
	for i := range q.slots {
		q.slots[i] = zero
	}
	q.readIndex = 0
	q.writeIndex = 0
}

// Len returns the number of unread elements.
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

func (q *Queue[T]) lenLocked() int {
	return ringindex.Distance(q.readIndex, q.writeIndex, len(q.slots))
}

// Cap returns the current allocation in elements.
func (q *Queue[T]) Cap() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.slots) - 1
}

// MaxSize returns the ceiling on unread elements.
func (q *Queue[T]) MaxSize() int {
	return q.maxSize
}

// Dropped returns how many elements were discarded or rejected on overflow.
func (q *Queue[T]) Dropped() int64 {
	return q.dropped.Load()
}

// Elements implements Sequencer with an oldest-first snapshot of the unread
// elements.
func (q *Queue[T]) Elements() []any {
	q.mu.Lock()
	defer q.mu.Unlock()

	count := q.lenLocked()
	out := make([]any, 0, count)
	for i, idx := 0, q.readIndex; i < count; i++ {
		idx = ringindex.Inc(idx, len(q.slots))
		out = append(out, q.slots[idx])
	}
	return out
}

// Stats returns queue counters for monitoring.
//
// Returns a map containing:
//   - items_buffered: unread elements
//   - capacity: current allocation
//   - max_size: allocation ceiling
//   - items_pushed: accepted pushes since creation
//   - items_dropped: elements lost to the overflow policy
func (q *Queue[T]) Stats() map[string]int64 {
	q.mu.Lock()
	buffered := q.lenLocked()
	capacity := len(q.slots) - 1
	q.mu.Unlock()

	return map[string]int64{
		"items_buffered": int64(buffered),
		"capacity":       int64(capacity),
		"max_size":       int64(q.maxSize),
		"items_pushed":   q.pushed.Load(),
		"items_dropped":  q.dropped.Load(),
	}
}
