// render_test.go: Tests for classification and rendering
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"math"
	"reflect"
	"strings"
	"testing"
)

type celsius float64

func (c celsius) String() string { return MustRender(float64(c)) + "C" }

// describedList is both a Stringer and a slice; the Stringer rule wins.
type describedList []int

func (d describedList) String() string { return "described" }

type opaque struct{ secret int }

type tree []tree

type handle struct{ id int }

type handlePtrPair struct{ k, v string }

func (p *handlePtrPair) PairFirst() any  { return p.k }
func (p *handlePtrPair) PairSecond() any { return p.v }

func TestClassifyPriorityOrder(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  Kind
	}{
		{"string", "hi", KindText},
		{"bytes", []byte("hi"), KindText},
		{"int", 3, KindNumber},
		{"uint8", uint8(3), KindNumber},
		{"float32", float32(1.5), KindNumber},
		{"complex", complex(1, 2), KindNumber},
		{"bool", true, KindBool},
		{"stringer scalar", celsius(3), KindSelfDescribing},
		{"stringer slice", describedList{1}, KindSelfDescribing},
		{"vec2", Vec2[int]{1, 2}, KindTuple2},
		{"extent3", Extent3D[float64]{1, 2, 3}, KindTuple3},
		{"vec4", Vec4[int]{}, KindTuple4},
		{"pointer", new(int), KindPointer},
		{"pair", MakePair("a", 1), KindPair},
		{"slice", []int{1}, KindSequence},
		{"array", [2]string{}, KindSequence},
		{"any slice", []any{1, "a"}, KindSequence},
		{"ring buffer", NewRingBuffer[int](2), KindSequence},
		{"map", map[string]int{}, KindMap},
		{"pair slice", []Pair[string, int]{}, KindMap},
		{"pointer pair slice", []*handlePtrPair{}, KindMap},
		{"struct", opaque{}, KindInvalid},
		{"func", func() {}, KindInvalid},
		{"chan", make(chan int), KindInvalid},
		{"slice of structs", []opaque{}, KindInvalid},
		{"map with bad values", map[string]opaque{}, KindInvalid},
		{"recursive", tree{}, KindSequence},
		{"nil", nil, KindInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.value); got != tt.want {
				t.Errorf("Classify(%T) = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}

func TestClassifyTypeIsStable(t *testing.T) {
	typ := reflect.TypeOf(map[string][]Vec2[int]{})
	first := ClassifyType(typ)
	for i := 0; i < 5; i++ {
		if got := ClassifyType(typ); got != first {
			t.Fatalf("classification changed between calls: %v vs %v", first, got)
		}
	}
	if first != KindMap {
		t.Errorf("got %v, want map", first)
	}
}

func TestRenderScalars(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"string", "hello world", "hello world"},
		{"bytes", []byte("raw"), "raw"},
		{"int", -42, "-42"},
		{"uint64", uint64(math.MaxUint64), "18446744073709551615"},
		{"float whole", 3.0, "3"},
		{"float fraction", 0.1, "0.1"},
		{"float32", float32(0.1), "0.1"},
		{"large float", 1e21, "1e+21"},
		{"complex", complex(1, -2), "(1-2i)"},
		{"true", true, "true"},
		{"false", false, "false"},
		{"stringer", celsius(21.5), "21.5C"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.value)
			if err != nil {
				t.Fatalf("Render(%v) failed: %v", tt.value, err)
			}
			if got != tt.want {
				t.Errorf("Render(%v) = %q, want %q", tt.value, got, tt.want)
			}
		})
	}
}

func TestRenderComposites(t *testing.T) {
	x := 5
	var nilPtr *int
	tests := []struct {
		name  string
		value any
		want  string
	}{
		{"vec2", Vec2[int]{3, 4}, "(3, 4)"},
		{"vec3", Vec3[float64]{1, 2.5, 3}, "(1, 2.5, 3)"},
		{"vec4", Vec4[int]{1, 2, 3, 4}, "(1, 2, 3, 4)"},
		{"extent2d", Extent2D[uint]{640, 480}, "(640, 480)"},
		{"pair", MakePair("a", true), "(a, true)"},
		{"empty sequence", []int{}, "[]"},
		{"nil sequence", []int(nil), "[]"},
		{"sequence", []string{"a", "b"}, "[a, b]"},
		{"nested", [][]int{{1}, {2, 3}}, "[[1], [2, 3]]"},
		{"empty map", map[string]int{}, "{}"},
		{"map sorted", map[string]int{"b": 2, "a": 1, "c": 3}, "{a: 1, b: 2, c: 3}"},
		{"pair slice keeps order", []Pair[string, int]{{"z", 1}, {"a", 2}}, "{z: 1, a: 2}"},
		{"pointer", &x, "5"},
		{"nil pointer", nilPtr, "nil"},
		{"any slice", []any{1, "two", nil, Vec2[int]{3, 4}}, "[1, two, nil, (3, 4)]"},
		{"map of vectors", map[int]Vec2[int]{1: {0, 1}}, "{1: (0, 1)}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Render(tt.value)
			if err != nil {
				t.Fatalf("Render failed: %v", err)
			}
			if got != tt.want {
				t.Errorf("Render = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRenderNil(t *testing.T) {
	got, err := Render(nil)
	if err != nil || got != "nil" {
		t.Errorf("Render(nil) = %q, %v", got, err)
	}
}

func TestRenderUnclassifiable(t *testing.T) {
	_, err := Render(opaque{secret: 1})
	if !HasCode(err, ErrCodeConversionFailed) {
		t.Fatalf("expected %s, got %v", ErrCodeConversionFailed, err)
	}

	// nested failure surfaces from inside a sequence
	_, err = Render([]any{1, opaque{}})
	if !HasCode(err, ErrCodeConversionFailed) {
		t.Fatalf("expected nested failure, got %v", err)
	}

	if got := ToString(opaque{secret: 7}); got != "{7}" {
		t.Errorf("ToString fallback = %q, want {7}", got)
	}

	defer func() {
		if recover() == nil {
			t.Error("MustRender should panic for an unclassifiable value")
		}
	}()
	MustRender(opaque{})
}

func TestRenderDepthGuard(t *testing.T) {
	var deep any = 1
	for i := 0; i < maxRenderDepth+5; i++ {
		deep = []any{deep}
	}
	_, err := Render(deep)
	if !HasCode(err, ErrCodeConversionFailed) {
		t.Fatalf("expected depth failure, got %v", err)
	}
}

func TestRegisterRenderer(t *testing.T) {
	if Classify(handle{}) != KindInvalid {
		t.Fatal("handle should be unclassifiable before registration")
	}

	RegisterRenderer(func(h handle) string { return "handle#" + MustRender(h.id) })
	defer UnregisterRenderer[handle]()

	if Classify(handle{}) != KindOverridden {
		t.Fatalf("Classify after registration = %v", Classify(handle{}))
	}
	got, err := Render([]handle{{1}, {2}})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if got != "[handle#1, handle#2]" {
		t.Errorf("got %q", got)
	}

	UnregisterRenderer[handle]()
	if Classify(handle{}) != KindInvalid {
		t.Error("classification should reset after unregistering")
	}
}

func TestKindString(t *testing.T) {
	if KindMap.String() != "map" || KindTuple2.String() != "tuple2" {
		t.Error("unexpected kind names")
	}
	if !strings.Contains(Kind(99).String(), "unknown") {
		t.Error("out-of-range kind should be unknown")
	}
}
