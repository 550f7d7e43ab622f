// allowed_values.go: Value restrictions for settings keys
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

// AllowedShape tells how an AllowedValues restriction is expressed.
type AllowedShape int

const (
	// AllowedList accepts exactly the listed strings.
	AllowedList AllowedShape = iota
	// AllowedRange accepts numbers in [low, high) on a step grid.
	AllowedRange
)

// rangeTolerance is the relative tolerance used to decide whether a value
// sits on the step grid of a range.
const rangeTolerance = 1e-9

// AllowedValues restricts the values a settings key may take. Build it with
// AllowList, AllowRange or NewAllowedValues. A malformed restriction is only
// reported when it is installed through SettingsManager.SetAllowedValues.
type AllowedValues struct {
	shape AllowedShape
	list  []string
	low   float64
	high  float64
	step  float64
	err   error
}

// AllowList accepts exactly the given values.
func AllowList(values ...string) AllowedValues {
	av := AllowedValues{shape: AllowedList, list: append([]string(nil), values...)}
	if len(values) == 0 {
		av.err = errors.New(ErrCodeInvalidSpec, "allowed value list needs at least one element")
	}
	return av
}

// AllowRange accepts numbers in [low, high) with step 1, or in
// [low, high) on the grid low + n*step when a third bound is given.
func AllowRange(bounds ...float64) AllowedValues {
	av := AllowedValues{shape: AllowedRange, step: 1}
	switch len(bounds) {
	case 3:
		av.step = bounds[2]
		fallthrough
	case 2:
		av.low, av.high = bounds[0], bounds[1]
	default:
		av.err = errors.New(ErrCodeInvalidSpec, "allowed range needs 2 or 3 bounds").
			WithContext("bounds", len(bounds))
		return av
	}

	switch {
	case math.IsNaN(av.low) || math.IsNaN(av.high) || math.IsNaN(av.step):
		av.err = errors.New(ErrCodeInvalidSpec, "allowed range bounds must be numbers")
	case av.low > av.high:
		av.err = errors.New(ErrCodeInvalidSpec, "allowed range low bound is above high bound").
			WithContext("low", av.low).WithContext("high", av.high)
	case av.step <= 0:
		av.err = errors.New(ErrCodeInvalidSpec, "allowed range step must be positive").
			WithContext("step", av.step)
	}
	return av
}

// NewAllowedValues infers the restriction shape from untyped input: all
// strings make a list, two or three numbers make a range.
func NewAllowedValues(values ...any) (AllowedValues, error) {
	if len(values) == 0 {
		return AllowedValues{}, errors.New(ErrCodeInvalidSpec, "no allowed values given")
	}

	if strs, ok := allStrings(values); ok {
		av := AllowList(strs...)
		return av, av.err
	}

	if len(values) == 2 || len(values) == 3 {
		bounds := make([]float64, 0, len(values))
		for _, v := range values {
			f, ok := toFloat(reflect.ValueOf(v))
			if !ok {
				return AllowedValues{}, errors.New(ErrCodeInvalidSpec, "range bounds must be numbers").
					WithContext("value", ToString(v))
			}
			bounds = append(bounds, f)
		}
		av := AllowRange(bounds...)
		return av, av.err
	}

	return AllowedValues{}, errors.New(ErrCodeInvalidSpec, "allowed values are neither a string list nor a range").
		WithContext("count", len(values))
}

// Shape reports whether the restriction is a list or a range.
func (a AllowedValues) Shape() AllowedShape { return a.shape }

// Validate returns the construction error of a malformed restriction.
func (a AllowedValues) Validate() error { return a.err }

// Allows reports whether the text value passes the restriction. Range
// restrictions parse the text as a float.
func (a AllowedValues) Allows(text string) bool {
	if a.err != nil {
		return false
	}
	if a.shape == AllowedList {
		for _, v := range a.list {
			if v == text {
				return true
			}
		}
		return false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(text), 64)
	if err != nil {
		return false
	}
	return a.inRange(f)
}

// AllowsValue checks a typed value. Numbers are compared numerically
// against ranges, everything else is rendered and checked as text.
func (a AllowedValues) AllowsValue(v any) bool {
	if a.err != nil {
		return false
	}
	if a.shape == AllowedRange {
		if f, ok := toFloat(reflect.ValueOf(v)); ok {
			return a.inRange(f)
		}
	}
	text, err := Render(v)
	if err != nil {
		return false
	}
	return a.Allows(text)
}

func (a AllowedValues) inRange(f float64) bool {
	if math.IsNaN(f) || f < a.low || f >= a.high {
		return false
	}
	n := math.Round((f - a.low) / a.step)
	grid := a.low + n*a.step
	return math.Abs(grid-f) <= rangeTolerance*math.Max(1, math.Abs(f))
}

// String describes the restriction, e.g. "list [a, b]" or "range [0, 10, 2)".
func (a AllowedValues) String() string {
	if a.shape == AllowedList {
		return "list " + MustRender(a.list)
	}
	return fmt.Sprintf("range [%s, %s, %s)", ToString(a.low), ToString(a.high), ToString(a.step))
}

func allStrings(values []any) ([]string, bool) {
	out := make([]string, 0, len(values))
	for _, v := range values {
		s, ok := v.(string)
		if !ok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func toFloat(rv reflect.Value) (float64, bool) {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}
