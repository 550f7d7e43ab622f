// render.go: Text rendering driven by the classification cascade
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

// maxRenderDepth bounds recursion through self-referencing values.
const maxRenderDepth = 64

// Render returns the text form of v.
//
// Numbers use the shortest representation that parses back to the same
// value, booleans render as true/false, tuples and pairs as "(a, b)",
// sequences as "[a, b]" and maps as "{k: v}". Go maps are emitted in
// sorted key order. Nil pointers and nil interfaces render as "nil".
//
// It fails with ErrCodeConversionFailed when v, or anything nested in it,
// has no text form.
func Render(v any) (string, error) {
	var b strings.Builder
	if err := renderValue(&b, reflect.ValueOf(v), 0); err != nil {
		return "", err
	}
	return b.String(), nil
}

// MustRender is like Render but panics on failure.
func MustRender(v any) string {
	s, err := Render(v)
	if err != nil {
		panic(err)
	}
	return s
}

// ToString renders v, falling back to fmt.Sprint for values that have no
// text form.
func ToString(v any) string {
	if s, err := Render(v); err == nil {
		return s
	}
	return fmt.Sprint(v)
}

func renderValue(b *strings.Builder, rv reflect.Value, depth int) error {
	if depth > maxRenderDepth {
		return errors.New(ErrCodeConversionFailed, "value nests too deeply to render").
			WithContext("max_depth", maxRenderDepth)
	}
	if !rv.IsValid() {
		b.WriteString("nil")
		return nil
	}
	if (rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface) && rv.IsNil() {
		b.WriteString("nil")
		return nil
	}

	kind := ClassifyType(rv.Type())
	if kind == KindInvalid {
		return notRenderable(rv.Type())
	}
	if needsInterface(kind) && !rv.CanInterface() {
		return notRenderable(rv.Type())
	}

	switch kind {
	case KindText:
		if rv.Kind() == reflect.String {
			b.WriteString(rv.String())
		} else {
			b.Write(rv.Bytes())
		}
	case KindNumber:
		b.WriteString(formatNumber(rv))
	case KindBool:
		b.WriteString(strconv.FormatBool(rv.Bool()))
	case KindSelfDescribing:
		b.WriteString(rv.Interface().(fmt.Stringer).String())
	case KindOverridden:
		fn, ok := renderers.Load(rv.Type())
		if !ok {
			// unregistered after classification
			return notRenderable(rv.Type())
		}
		b.WriteString(fn.(func(any) string)(rv.Interface()))
	case KindTuple2:
		x, y := rv.Interface().(Tuple2).Tuple2()
		return renderList(b, "(", ")", depth, x, y)
	case KindTuple3:
		x, y, z := rv.Interface().(Tuple3).Tuple3()
		return renderList(b, "(", ")", depth, x, y, z)
	case KindTuple4:
		x, y, z, w := rv.Interface().(Tuple4).Tuple4()
		return renderList(b, "(", ")", depth, x, y, z, w)
	case KindPointer:
		return renderValue(b, rv.Elem(), depth+1)
	case KindPair:
		p := rv.Interface().(PairLike)
		return renderList(b, "(", ")", depth, p.PairFirst(), p.PairSecond())
	case KindSequence:
		return renderSequence(b, rv, depth)
	case KindMap:
		if rv.Kind() == reflect.Map {
			return renderGoMap(b, rv, depth)
		}
		return renderPairSlice(b, rv, depth)
	}
	return nil
}

func needsInterface(k Kind) bool {
	switch k {
	case KindSelfDescribing, KindOverridden, KindTuple2, KindTuple3, KindTuple4, KindPair:
		return true
	}
	return false
}

func notRenderable(t reflect.Type) error {
	return errors.New(ErrCodeConversionFailed, "type has no text form").
		WithContext("type", t.String())
}

func formatNumber(rv reflect.Value) string {
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10)
	case reflect.Float32:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 32)
	case reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'g', -1, 64)
	case reflect.Complex64:
		return strconv.FormatComplex(rv.Complex(), 'g', -1, 64)
	case reflect.Complex128:
		return strconv.FormatComplex(rv.Complex(), 'g', -1, 128)
	default:
		return strconv.FormatUint(rv.Uint(), 10)
	}
}

func renderList(b *strings.Builder, open, closing string, depth int, items ...any) error {
	b.WriteString(open)
	for i, item := range items {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := renderValue(b, reflect.ValueOf(item), depth+1); err != nil {
			return err
		}
	}
	b.WriteString(closing)
	return nil
}

func renderSequence(b *strings.Builder, rv reflect.Value, depth int) error {
	if rv.Type().Implements(sequencerType) && rv.CanInterface() {
		return renderList(b, "[", "]", depth, rv.Interface().(Sequencer).Elements()...)
	}
	b.WriteByte('[')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		if err := renderValue(b, rv.Index(i), depth+1); err != nil {
			return err
		}
	}
	b.WriteByte(']')
	return nil
}

func renderGoMap(b *strings.Builder, rv reflect.Value, depth int) error {
	type entry struct {
		key string
		val reflect.Value
	}
	entries := make([]entry, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		var kb strings.Builder
		if err := renderValue(&kb, iter.Key(), depth+1); err != nil {
			return err
		}
		entries = append(entries, entry{key: kb.String(), val: iter.Value()})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].key < entries[j].key })

	b.WriteByte('{')
	for i, e := range entries {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(e.key)
		b.WriteString(": ")
		if err := renderValue(b, e.val, depth+1); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}

func renderPairSlice(b *strings.Builder, rv reflect.Value, depth int) error {
	b.WriteByte('{')
	for i := 0; i < rv.Len(); i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		elem := rv.Index(i)
		if !elem.CanInterface() {
			return notRenderable(elem.Type())
		}
		if elem.Kind() == reflect.Pointer && elem.IsNil() {
			b.WriteString("nil")
			continue
		}
		p := elem.Interface().(PairLike)
		if err := renderValue(b, reflect.ValueOf(p.PairFirst()), depth+1); err != nil {
			return err
		}
		b.WriteString(": ")
		if err := renderValue(b, reflect.ValueOf(p.PairSecond()), depth+1); err != nil {
			return err
		}
	}
	b.WriteByte('}')
	return nil
}
