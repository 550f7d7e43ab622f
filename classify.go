// classify.go: Ordered type classification deciding how a value is rendered
//
// Every type falls into exactly one Kind. The rules are tested in a fixed
// priority order and the first rule that matches wins, so a type that is
// both a Stringer and a slice is SelfDescribing. Results are cached per
// reflect.Type; the cache is dropped whenever the renderer registry changes.
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"fmt"
	"reflect"
	"sync"
)

// Kind is the rendering category of a type.
type Kind int

const (
	KindInvalid Kind = iota
	KindText
	KindNumber
	KindBool
	KindSelfDescribing
	KindOverridden
	KindTuple2
	KindTuple3
	KindTuple4
	KindPointer
	KindPair
	KindSequence
	KindMap
)

var kindNames = [...]string{
	KindInvalid:        "invalid",
	KindText:           "text",
	KindNumber:         "number",
	KindBool:           "bool",
	KindSelfDescribing: "self-describing",
	KindOverridden:     "overridden",
	KindTuple2:         "tuple2",
	KindTuple3:         "tuple3",
	KindTuple4:         "tuple4",
	KindPointer:        "pointer",
	KindPair:           "pair",
	KindSequence:       "sequence",
	KindMap:            "map",
}

func (k Kind) String() string {
	if k < 0 || int(k) >= len(kindNames) {
		return "unknown"
	}
	return kindNames[k]
}

var (
	bytesType     = reflect.TypeFor[[]byte]()
	stringerType  = reflect.TypeFor[fmt.Stringer]()
	tuple2Type    = reflect.TypeFor[Tuple2]()
	tuple3Type    = reflect.TypeFor[Tuple3]()
	tuple4Type    = reflect.TypeFor[Tuple4]()
	pairLikeType  = reflect.TypeFor[PairLike]()
	sequencerType = reflect.TypeFor[Sequencer]()
)

var (
	kindCache sync.Map // reflect.Type -> Kind
	renderers sync.Map // reflect.Type -> func(any) string
)

// RegisterRenderer installs fn as the renderer for values of exactly type T.
// Registering a type that already matches an earlier rule (text, number,
// bool, Stringer) has no effect on its classification.
func RegisterRenderer[T any](fn func(T) string) {
	renderers.Store(reflect.TypeFor[T](), func(v any) string { return fn(v.(T)) })
	kindCache.Clear()
}

// UnregisterRenderer removes the renderer registered for T, if any.
func UnregisterRenderer[T any]() {
	renderers.Delete(reflect.TypeFor[T]())
	kindCache.Clear()
}

// Classify returns the Kind of v's dynamic type. A nil interface is
// KindInvalid.
func Classify(v any) Kind {
	if v == nil {
		return KindInvalid
	}
	return ClassifyType(reflect.TypeOf(v))
}

// ClassifyType returns the Kind of t.
func ClassifyType(t reflect.Type) Kind {
	if t == nil {
		return KindInvalid
	}
	if k, ok := kindCache.Load(t); ok {
		return k.(Kind)
	}
	k := classify(t, map[reflect.Type]bool{t: true})
	kindCache.Store(t, k)
	return k
}

func classify(t reflect.Type, visiting map[reflect.Type]bool) Kind {
	// named scalars with a String method describe themselves
	describes := t.Implements(stringerType)

	switch {
	case !describes && (t.Kind() == reflect.String || t == bytesType):
		return KindText
	case !describes && isNumberKind(t.Kind()):
		return KindNumber
	case !describes && t.Kind() == reflect.Bool:
		return KindBool
	case describes:
		return KindSelfDescribing
	}

	if _, ok := renderers.Load(t); ok {
		return KindOverridden
	}

	switch {
	case t.Implements(tuple2Type):
		return KindTuple2
	case t.Implements(tuple3Type):
		return KindTuple3
	case t.Implements(tuple4Type):
		return KindTuple4
	}

	// a pointer to an unclassifiable struct may still carry Elements or
	// PairFirst/PairSecond on its method set
	switch t.Kind() {
	case reflect.Interface:
		return KindPointer
	case reflect.Pointer:
		if nestedClassifiable(t.Elem(), visiting) {
			return KindPointer
		}
	}

	if t.Implements(pairLikeType) {
		return KindPair
	}
	if t.Implements(sequencerType) {
		return KindSequence
	}

	switch t.Kind() {
	case reflect.Slice, reflect.Array:
		elem := t.Elem()
		if elem.Implements(pairLikeType) && elem.Kind() != reflect.Interface {
			return KindMap
		}
		if nestedClassifiable(elem, visiting) {
			return KindSequence
		}
	case reflect.Map:
		if nestedClassifiable(t.Key(), visiting) && nestedClassifiable(t.Elem(), visiting) {
			return KindMap
		}
	}
	return KindInvalid
}

// nestedClassifiable treats a type that is already being classified as
// classifiable, which lets recursive types such as `type Tree []Tree` resolve.
func nestedClassifiable(t reflect.Type, visiting map[reflect.Type]bool) bool {
	if k, ok := kindCache.Load(t); ok {
		return k.(Kind) != KindInvalid
	}
	if visiting[t] {
		return true
	}
	visiting[t] = true
	defer delete(visiting, t)
	return classify(t, visiting) != KindInvalid
}

func isNumberKind(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	}
	return false
}
