// fuzz_test.go - Fuzz tests for input handling
//
// Invariants checked:
//   - ValidateSecurePath never accepts a path with a ".." element
//   - ParseKeyValue never panics and its output survives a write/read cycle
//   - Render output for integers always parses back to the same value
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

package hestia

import (
	"strings"
	"testing"
)

func FuzzValidateSecurePath(f *testing.F) {
	f.Add("config.conf")
	f.Add("app/settings.yaml")
	f.Add("../../../etc/passwd")
	f.Add("..\\..\\windows\\system32")
	f.Add("%2e%2e%2fetc%2fpasswd")
	f.Add("settings\x00.conf")
	f.Add("CON")

	f.Fuzz(func(t *testing.T, path string) {
		err := ValidateSecurePath(path)
		if err != nil {
			return
		}
		for _, part := range strings.FieldsFunc(path, func(r rune) bool { return r == '/' || r == '\\' }) {
			if part == ".." {
				t.Fatalf("traversal accepted: %q", path)
			}
		}
		if strings.ContainsRune(path, 0) {
			t.Fatalf("null byte accepted: %q", path)
		}
	})
}

func FuzzParseKeyValue(f *testing.F) {
	f.Add("a = 1\nb = 2\n")
	f.Add("# comment\nkey=value=more\n")
	f.Add("  spaced key  =  spaced value  \n")
	f.Add("no separator\n=empty key\n")

	f.Fuzz(func(t *testing.T, data string) {
		first := ParseKeyValue([]byte(data))
		second := ParseKeyValue(SerializeKeyValue(first))
		for k, v := range first {
			// keys containing '=' or starting with '#' cannot round trip
			if strings.ContainsAny(k, "=\n\r") || strings.HasPrefix(k, "#") || k == "" {
				continue
			}
			if got, ok := second[k]; ok && got != v {
				t.Fatalf("key %q: %q became %q", k, v, got)
			}
		}
	})
}

func FuzzRenderParseInt(f *testing.F) {
	f.Add(int64(0))
	f.Add(int64(-1))
	f.Add(int64(1 << 62))

	f.Fuzz(func(t *testing.T, v int64) {
		got, err := Parse[int64](MustRender(v))
		if err != nil || got != v {
			t.Fatalf("round trip %d -> %d, %v", v, got, err)
		}
	})
}
