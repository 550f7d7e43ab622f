// ringbuffer.go: Fixed-capacity ring buffer keeping the N most recent values
//
// The backing store holds capacity+1 cells. One cell is the seam that
// separates the newest element from the oldest; writeIndex always points at
// the newest element. Traversal from writeIndex walks backwards through memory
// (newest to oldest) and stops when it reaches the seam again.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"iter"

	"github.com/agilira/hestia/internal/ringindex"
)

// RingBuffer stores the most recent Cap() values pushed into it.
// It is not safe for concurrent use.
type RingBuffer[T any] struct {
	buf        []T
	writeIndex int
	cells      int // capacity + seam
}

// NewRingBuffer creates a ring buffer holding at most capacity elements.
// Negative capacities are treated as zero.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &RingBuffer[T]{
		buf:   make([]T, 1, capacity+1),
		cells: capacity + 1,
	}
}

// Push inserts v as the newest element, overwriting the oldest one once the
// buffer is full.
func (rb *RingBuffer[T]) Push(v T) {
	rb.writeIndex = ringindex.Inc(rb.writeIndex, rb.cells)
	if len(rb.buf) < rb.cells {
		rb.buf = append(rb.buf, v)
		return
	}
	rb.buf[rb.writeIndex] = v
}

// Resize changes the capacity to n, keeping the newest min(Len(), n) elements.
func (rb *RingBuffer[T]) Resize(n int) {
	if n < 0 {
		n = 0
	}
	size := len(rb.buf)
	seam := ringindex.Inc(rb.writeIndex, size)

	if n+1 >= size {
		// seam to the front, newest element to the back: pushes append again
		ringindex.RotateLeft(rb.buf, seam)
		rb.writeIndex = size - 1
		if cap(rb.buf) < n+1 {
			grown := make([]T, size, n+1)
			copy(grown, rb.buf)
			rb.buf = grown
		}
		rb.cells = n + 1
		return
	}

	// newest n elements first, the seam right after them
	ringindex.RotateLeft(rb.buf, seam-n)
	var zero T
	for i := n + 1; i < size; i++ {
		rb.buf[i] = zero
	}
	rb.buf = rb.buf[:n+1]
	rb.writeIndex = ringindex.Valid(n-1, n+1)
	rb.cells = n + 1
}

// Len returns the number of live elements.
func (rb *RingBuffer[T]) Len() int {
	return len(rb.buf) - 1
}

// Cap returns the maximum number of live elements.
func (rb *RingBuffer[T]) Cap() int {
	return rb.cells - 1
}

// Clear drops every element while keeping the capacity.
func (rb *RingBuffer[T]) Clear() {
	var zero T
	for i := range rb.buf {
		rb.buf[i] = zero
	}
	rb.buf = rb.buf[:1]
	rb.writeIndex = 0
}

// Newest returns the most recently pushed element.
func (rb *RingBuffer[T]) Newest() (T, bool) {
	if rb.Len() == 0 {
		var zero T
		return zero, false
	}
	return rb.buf[rb.writeIndex], true
}

// Oldest returns the oldest live element.
func (rb *RingBuffer[T]) Oldest() (T, bool) {
	if rb.Len() == 0 {
		var zero T
		return zero, false
	}
	return rb.RBegin().Value(), true
}

func (rb *RingBuffer[T]) seam() int {
	return ringindex.Inc(rb.writeIndex, len(rb.buf))
}

// Begin returns a cursor on the newest element.
func (rb *RingBuffer[T]) Begin() Cursor[T] {
	return Cursor[T]{rb: rb, index: rb.writeIndex}
}

// End returns the terminal cursor of forward traversal (the seam).
func (rb *RingBuffer[T]) End() Cursor[T] {
	return Cursor[T]{rb: rb, index: rb.seam()}
}

// RBegin returns a cursor on the oldest element.
func (rb *RingBuffer[T]) RBegin() Cursor[T] {
	return Cursor[T]{rb: rb, index: ringindex.Inc(rb.seam(), len(rb.buf))}
}

// REnd returns the terminal cursor of reverse traversal (the seam).
func (rb *RingBuffer[T]) REnd() Cursor[T] {
	return Cursor[T]{rb: rb, index: rb.seam()}
}

// All iterates newest to oldest.
func (rb *RingBuffer[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		for c, end := rb.Begin(), rb.End(); !c.Equal(end); c = c.Next() {
			if !yield(c.Value()) {
				return
			}
		}
	}
}

// Backward iterates oldest to newest.
func (rb *RingBuffer[T]) Backward() iter.Seq[T] {
	return func(yield func(T) bool) {
		for c, end := rb.RBegin(), rb.REnd(); !c.Equal(end); c = c.Prev() {
			if !yield(c.Value()) {
				return
			}
		}
	}
}

// Values returns a newest-first snapshot of the live elements.
func (rb *RingBuffer[T]) Values() []T {
	out := make([]T, 0, rb.Len())
	for v := range rb.All() {
		out = append(out, v)
	}
	return out
}

// Elements implements Sequencer so ring buffers render as sequences.
func (rb *RingBuffer[T]) Elements() []any {
	out := make([]any, 0, rb.Len())
	for v := range rb.All() {
		out = append(out, v)
	}
	return out
}

// Cursor is a position inside a RingBuffer. Next moves towards older
// elements, Prev towards newer ones. Cursors are invalidated by Push,
// Resize and Clear.
type Cursor[T any] struct {
	rb    *RingBuffer[T]
	index int
}

// Value returns the element under the cursor. Calling Value on End or REnd
// returns the seam cell, which holds no live element.
func (c Cursor[T]) Value() T {
	return c.rb.buf[c.index]
}

// Next returns the cursor one step older.
func (c Cursor[T]) Next() Cursor[T] {
	c.index = ringindex.Dec(c.index, len(c.rb.buf))
	return c
}

// Prev returns the cursor one step newer.
func (c Cursor[T]) Prev() Cursor[T] {
	c.index = ringindex.Inc(c.index, len(c.rb.buf))
	return c
}

// Equal reports whether both cursors point at the same cell of the same buffer.
func (c Cursor[T]) Equal(other Cursor[T]) bool {
	return c.rb == other.rb && c.index == other.index
}
