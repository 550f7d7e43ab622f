// parse.go: Typed parsing of text produced by Render
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"reflect"
	"strconv"
	"sync"

	"github.com/agilira/go-errors"
)

var parsers sync.Map // reflect.Type -> func(string) (any, error)

// RegisterParser installs fn as the parser for type T. Registered parsers
// take precedence over the built-in scalar parsing.
func RegisterParser[T any](fn func(string) (T, error)) {
	parsers.Store(reflect.TypeFor[T](), func(s string) (any, error) { return fn(s) })
}

// UnregisterParser removes the parser registered for T.
func UnregisterParser[T any]() {
	parsers.Delete(reflect.TypeFor[T]())
}

// Parse converts text into a T. Integer, unsigned, float, bool and string
// kinds are supported natively (named types included); other types need a
// parser installed with RegisterParser.
//
// Booleans accept true, True and 1 as true and false, False and 0 as false.
// Render never emits 1 or 0 for a bool, but Parse accepts them.
func Parse[T any](text string) (T, error) {
	var zero T
	typ := reflect.TypeFor[T]()

	if fn, ok := parsers.Load(typ); ok {
		v, err := fn.(func(string) (any, error))(text)
		if err != nil {
			if ErrorCode(err) != "" {
				return zero, err
			}
			return zero, conversionError(text, typ, err)
		}
		return v.(T), nil
	}

	out := reflect.New(typ).Elem()
	switch typ.Kind() {
	case reflect.String:
		out.SetString(text)
	case reflect.Bool:
		b, ok := parseBoolStrict(text)
		if !ok {
			return zero, conversionError(text, typ, nil)
		}
		out.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(text, 10, typ.Bits())
		if err != nil {
			return zero, conversionError(text, typ, err)
		}
		out.SetInt(n)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, err := strconv.ParseUint(text, 10, typ.Bits())
		if err != nil {
			return zero, conversionError(text, typ, err)
		}
		out.SetUint(n)
	case reflect.Float32, reflect.Float64:
		f, err := strconv.ParseFloat(text, typ.Bits())
		if err != nil {
			return zero, conversionError(text, typ, err)
		}
		out.SetFloat(f)
	default:
		return zero, errors.New(ErrCodeConversionFailed, "no parser for type").
			WithContext("type", typ.String())
	}
	return out.Interface().(T), nil
}

// ParseOr returns the parsed value, or fallback when text does not parse.
func ParseOr[T any](text string, fallback T) T {
	v, err := Parse[T](text)
	if err != nil {
		return fallback
	}
	return v
}

// ParseBoolLoose reports whether text is one of the true literals. Anything
// else, including garbage, is false.
func ParseBoolLoose(text string) bool {
	b, ok := parseBoolStrict(text)
	return ok && b
}

func parseBoolStrict(text string) (value, ok bool) {
	switch text {
	case "true", "True", "1":
		return true, true
	case "false", "False", "0":
		return false, true
	}
	return false, false
}

func conversionError(text string, typ reflect.Type, cause error) error {
	if cause != nil {
		return errors.Wrap(cause, ErrCodeConversionFailed, "cannot parse text").
			WithContext("text", text).
			WithContext("type", typ.String())
	}
	return errors.New(ErrCodeConversionFailed, "cannot parse text").
		WithContext("text", text).
		WithContext("type", typ.String())
}
