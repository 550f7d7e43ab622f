// conversion.go: Lenient conversion helpers and hex/oct/bin integer formatting
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"reflect"
	"regexp"
	"strconv"
	"strings"

	"github.com/agilira/go-errors"
)

// Integer is the set of integer types accepted by the radix helpers.
type Integer interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 | ~uintptr
}

var (
	intPattern   = regexp.MustCompile(`^\s*[+-]?(0[xX])?\d+\s*$`)
	uintPattern  = regexp.MustCompile(`^\s*\+?(0[xX])?\d+\s*$`)
	floatPattern = regexp.MustCompile(`(?i)^\s*[+-]?(((\d+\.?\d*)|(\d*\.\d+))(e[+-]?\d+)?|inf(inity)?|nan\w*|0x((\d+\.?\d*)|(\d*\.\d+))(p[+-]?\d+)?)\s*$`)
)

// IsInt reports whether s looks like a signed integer.
func IsInt(s string) bool { return intPattern.MatchString(s) }

// IsUint reports whether s looks like an unsigned integer.
func IsUint(s string) bool { return uintPattern.MatchString(s) }

// IsFloat reports whether s looks like a floating point number, including
// inf, nan and hexadecimal floats.
func IsFloat(s string) bool { return floatPattern.MatchString(s) }

// IntOr parses s as an int, returning fallback on failure.
func IntOr(s string, fallback int) int {
	return ParseOr(strings.TrimSpace(s), fallback)
}

// UintOr parses s as a uint, returning fallback on failure.
func UintOr(s string, fallback uint) uint {
	return ParseOr(strings.TrimSpace(s), fallback)
}

// DoubleOr parses s as a float64, returning fallback on failure.
func DoubleOr(s string, fallback float64) float64 {
	return ParseOr(strings.TrimSpace(s), fallback)
}

// FloatOr parses s as a float32, returning fallback on failure.
func FloatOr(s string, fallback float32) float32 {
	return ParseOr(strings.TrimSpace(s), fallback)
}

// BoolOr parses s with the strict bool literals, returning fallback for
// anything else.
func BoolOr(s string, fallback bool) bool {
	if b, ok := parseBoolStrict(s); ok {
		return b
	}
	return fallback
}

// StringOr returns s, or fallback when s is empty.
func StringOr(s, fallback string) string {
	if s == "" {
		return fallback
	}
	return s
}

// StringOrNone returns s, or "none" when s is empty.
func StringOrNone(s string) string {
	return StringOr(s, "none")
}

// SplitString splits s at every occurrence of sep. With skipEmpty set,
// empty fields (including the one after a trailing separator) are dropped.
func SplitString(s, sep string, skipEmpty bool) []string {
	var parts []string
	if sep == "" {
		parts = []string{s}
	} else {
		parts = strings.Split(s, sep)
	}
	if !skipEmpty {
		return parts
	}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseSlice parses the "[a, b, c]" form Render produces for sequences of
// scalars. Elements must not themselves contain ", ".
func ParseSlice[T any](text string) ([]T, error) {
	inner, ok := strings.CutPrefix(strings.TrimSpace(text), "[")
	if ok {
		inner, ok = strings.CutSuffix(inner, "]")
	}
	if !ok {
		return nil, errors.New(ErrCodeConversionFailed, "sequence text must be enclosed in brackets").
			WithContext("text", text)
	}

	fields := SplitString(inner, ", ", true)
	out := make([]T, 0, len(fields))
	for _, f := range fields {
		v, err := Parse[T](f)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func bitsOf[T Integer]() int {
	return reflect.TypeFor[T]().Bits()
}

// unsignedBits returns v as its two's complement bit pattern.
func unsignedBits[T Integer](v T) uint64 {
	bits := bitsOf[T]()
	u := uint64(v)
	if bits < 64 {
		u &= 1<<bits - 1
	}
	return u
}

func formatRadix(u uint64, base int, prefix string, digits int) string {
	s := strconv.FormatUint(u, base)
	if pad := digits - len(s); pad > 0 {
		s = strings.Repeat("0", pad) + s
	}
	return prefix + s
}

func firstOr(values []int, fallback int) int {
	if len(values) > 0 {
		return values[0]
	}
	return fallback
}

// ToHexString formats v as "0x" followed by at least digits hex digits.
// The default width fits the largest value of T. Negative values are
// written as their two's complement.
func ToHexString[T Integer](v T, digits ...int) string {
	return formatRadix(unsignedBits(v), 16, "0x", firstOr(digits, bitsOf[T]()/4))
}

// ToOctString formats v as "0" followed by at least digits octal digits.
func ToOctString[T Integer](v T, digits ...int) string {
	return formatRadix(unsignedBits(v), 8, "0", firstOr(digits, bitsOf[T]()/2))
}

// ToBinString formats v as "0b" followed by at least digits binary digits,
// by default one per bit of T.
func ToBinString[T Integer](v T, digits ...int) string {
	return formatRadix(unsignedBits(v), 2, "0b", firstOr(digits, bitsOf[T]()))
}

func parseRadix[T Integer](s string, base int, prefixes ...string) (T, error) {
	text := strings.TrimSpace(s)
	for _, p := range prefixes {
		if rest, ok := strings.CutPrefix(text, p); ok && rest != "" {
			text = rest
			break
		}
	}
	u, err := strconv.ParseUint(text, base, bitsOf[T]())
	if err != nil {
		return 0, errors.Wrap(err, ErrCodeConversionFailed, "cannot parse integer").
			WithContext("text", s).
			WithContext("base", base)
	}
	return T(u), nil
}

// FromHexString parses a hex string with or without the 0x prefix.
func FromHexString[T Integer](s string) (T, error) {
	return parseRadix[T](s, 16, "0x", "0X")
}

// FromOctString parses an octal string with or without the 0o or 0 prefix.
func FromOctString[T Integer](s string) (T, error) {
	return parseRadix[T](s, 8, "0o", "0O", "0")
}

// FromBinString parses a binary string with or without the 0b prefix.
func FromBinString[T Integer](s string) (T, error) {
	return parseRadix[T](s, 2, "0b", "0B")
}

func joinRange[T Integer](values []T, format func(T, ...int) string) string {
	parts := make([]string, len(values))
	for i, v := range values {
		parts[i] = format(v)
	}
	return "[ " + strings.Join(parts, ", ") + " ]"
}

func splitRange[T Integer](text string, parse func(string) (T, error)) ([]T, error) {
	inner := strings.TrimSpace(text)
	inner = strings.TrimPrefix(inner, "[")
	inner = strings.TrimSuffix(inner, "]")

	var out []T
	for _, field := range SplitString(inner, ",", true) {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		v, err := parse(field)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// ToHexStrings renders values as "[ 0x01, 0x02 ]".
func ToHexStrings[T Integer](values []T) string { return joinRange(values, ToHexString[T]) }

// ToOctStrings renders values as "[ 001, 002 ]".
func ToOctStrings[T Integer](values []T) string { return joinRange(values, ToOctString[T]) }

// ToBinStrings renders values as "[ 0b01, 0b10 ]".
func ToBinStrings[T Integer](values []T) string { return joinRange(values, ToBinString[T]) }

// FromHexStrings parses the output of ToHexStrings.
func FromHexStrings[T Integer](text string) ([]T, error) {
	return splitRange(text, FromHexString[T])
}

// FromOctStrings parses the output of ToOctStrings.
func FromOctStrings[T Integer](text string) ([]T, error) {
	return splitRange(text, FromOctString[T])
}

// FromBinStrings parses the output of ToBinStrings.
func FromBinStrings[T Integer](text string) ([]T, error) {
	return splitRange(text, FromBinString[T])
}
