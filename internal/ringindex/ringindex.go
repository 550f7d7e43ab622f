// ringindex.go: Wrap-around index arithmetic shared by the ring buffer and the queue
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira fragment
// SPDX-License-Identifier: MPL-2.0

// Package ringindex implements the cursor arithmetic used by hestia's
// circular containers. All functions treat n as the number of cells in the
// backing store and never return an index outside [0, n).
package ringindex

// Inc returns the index after i, wrapping to 0 past the last cell.
func Inc(i, n int) int {
	if i < n-1 {
		return i + 1
	}
	return 0
}

// Dec returns the index before i, wrapping to the last cell below 0.
func Dec(i, n int) int {
	if i > 0 {
		return i - 1
	}
	if n == 0 {
		return 0
	}
	return n - 1
}

// Valid maps any integer (including negative offsets) into [0, n).
func Valid(i, n int) int {
	if n <= 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}

// Distance returns how many Inc steps lead from "from" to "to".
func Distance(from, to, n int) int {
	return Valid(to-from, n)
}

// RotateLeft rotates s in place so that s[k] becomes s[0].
func RotateLeft[T any](s []T, k int) {
	n := len(s)
	if n == 0 {
		return
	}
	k = Valid(k, n)
	if k == 0 {
		return
	}
	reverse(s[:k])
	reverse(s[k:])
	reverse(s)
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}
