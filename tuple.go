// tuple.go: Fixed-arity value types and the interfaces that make a type render as a tuple, pair or sequence
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

// Tuple2 is implemented by types that render as "(a, b)".
type Tuple2 interface {
	Tuple2() (any, any)
}

// Tuple3 is implemented by types that render as "(a, b, c)".
type Tuple3 interface {
	Tuple3() (any, any, any)
}

// Tuple4 is implemented by types that render as "(a, b, c, d)".
type Tuple4 interface {
	Tuple4() (any, any, any, any)
}

// PairLike is implemented by two-element records. A slice of PairLike
// elements renders as a map.
type PairLike interface {
	PairFirst() any
	PairSecond() any
}

// Sequencer is implemented by containers that expose their elements in
// traversal order without being a slice.
type Sequencer interface {
	Elements() []any
}

// Number is the set of numeric element types accepted by the vector types.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Vec2 is a two-component vector.
type Vec2[T Number] struct {
	X, Y T
}

func (v Vec2[T]) Tuple2() (any, any) { return v.X, v.Y }

// Vec3 is a three-component vector.
type Vec3[T Number] struct {
	X, Y, Z T
}

func (v Vec3[T]) Tuple3() (any, any, any) { return v.X, v.Y, v.Z }

// Vec4 is a four-component vector.
type Vec4[T Number] struct {
	X, Y, Z, W T
}

func (v Vec4[T]) Tuple4() (any, any, any, any) { return v.X, v.Y, v.Z, v.W }

// Extent2D is a width/height pair.
type Extent2D[T Number] struct {
	Width, Height T
}

func (e Extent2D[T]) Tuple2() (any, any) { return e.Width, e.Height }

// Extent3D is a width/height/depth triple.
type Extent3D[T Number] struct {
	Width, Height, Depth T
}

func (e Extent3D[T]) Tuple3() (any, any, any) { return e.Width, e.Height, e.Depth }

// Pair is a generic two-element record.
type Pair[A, B any] struct {
	First  A
	Second B
}

// MakePair builds a Pair with inferred element types.
func MakePair[A, B any](first A, second B) Pair[A, B] {
	return Pair[A, B]{First: first, Second: second}
}

func (p Pair[A, B]) PairFirst() any  { return p.First }
func (p Pair[A, B]) PairSecond() any { return p.Second }
