// allowed_values_test.go - Tests for settings value restrictions
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import "testing"

func TestAllowRange(t *testing.T) {
	av := AllowRange(0, 10, 2)
	if err := av.Validate(); err != nil {
		t.Fatalf("valid range rejected: %v", err)
	}
	tests := []struct {
		value string
		want  bool
	}{
		{"0", true},
		{"4", true},
		{"8", true},
		{"5", false},
		{"10", false},
		{"-2", false},
		{"four", false},
		{" 6 ", true},
	}
	for _, tt := range tests {
		if got := av.Allows(tt.value); got != tt.want {
			t.Errorf("Allows(%q) = %v, want %v", tt.value, got, tt.want)
		}
	}

	if !av.AllowsValue(6) || av.AllowsValue(7) || !av.AllowsValue(uint8(2)) {
		t.Error("typed range checks failed")
	}
	if got := av.String(); got != "range [0, 10, 2)" {
		t.Errorf("String() = %q", got)
	}
}

func TestAllowRangeFractionalStep(t *testing.T) {
	av := AllowRange(0, 1, 0.1)
	for _, v := range []float64{0, 0.1, 0.3, 0.7, 0.9} {
		if !av.AllowsValue(v) {
			t.Errorf("%v should sit on the 0.1 grid", v)
		}
	}
	if av.AllowsValue(0.15) {
		t.Error("0.15 is off the grid")
	}

	unit := AllowRange(1, 4)
	if !unit.Allows("3") || unit.Allows("3.5") || unit.Allows("4") {
		t.Error("two-bound range should default to step 1")
	}
}

func TestAllowRangeInvalidShapes(t *testing.T) {
	tests := []struct {
		name string
		av   AllowedValues
	}{
		{"one bound", AllowRange(1)},
		{"four bounds", AllowRange(1, 2, 3, 4)},
		{"low above high", AllowRange(10, 0)},
		{"zero step", AllowRange(0, 10, 0)},
		{"negative step", AllowRange(0, 10, -1)},
		{"empty list", AllowList()},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !HasCode(tt.av.Validate(), ErrCodeInvalidSpec) {
				t.Errorf("expected %s, got %v", ErrCodeInvalidSpec, tt.av.Validate())
			}
			if tt.av.Allows("1") {
				t.Error("an invalid restriction must not allow anything")
			}
		})
	}
}

func TestAllowList(t *testing.T) {
	av := AllowList("debug", "info", "warn")
	if !av.Allows("info") || av.Allows("INFO") || av.Allows("trace") {
		t.Error("list membership is exact")
	}
	if av.Shape() != AllowedList {
		t.Error("expected list shape")
	}
	if got := av.String(); got != "list [debug, info, warn]" {
		t.Errorf("String() = %q", got)
	}
}

func TestNewAllowedValues(t *testing.T) {
	list, err := NewAllowedValues("a", "b")
	if err != nil || list.Shape() != AllowedList {
		t.Errorf("strings should make a list: %v, %v", list, err)
	}

	rng, err := NewAllowedValues(0, 10, 2)
	if err != nil || rng.Shape() != AllowedRange || !rng.Allows("4") {
		t.Errorf("numbers should make a range: %v, %v", rng, err)
	}

	mixed := [][]any{
		{},
		{"a", 1},
		{1},
		{1, 2, 3, 4},
		{1.5, true},
	}
	for _, values := range mixed {
		if _, err := NewAllowedValues(values...); !HasCode(err, ErrCodeInvalidSpec) {
			t.Errorf("NewAllowedValues(%v) = %v, want %s", values, err, ErrCodeInvalidSpec)
		}
	}
}
