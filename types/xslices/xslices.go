// Copyright 2024-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provides missing functionality to the standard slices package.
package xslices

import (
	"fmt"
	"sort"
	"strings"

	"golang.org/x/exp/constraints"
)

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// At takes an element at the given index, where index can be negative, in which case it takes
// from the end of the slice.
func At[T any](slice []T, index int) T {
	if index < 0 {
		index = len(slice) + index
	}
	return slice[index]
}

// Last returns the last element of a slice.
func Last[T any](slice []T) T {
	return At(slice, -1)
}

// Fill creates a slice of the given size filled with the given value.
func Fill[T any](size int, value T) (slice []T) {
	slice = make([]T, size)
	for ii := range slice {
		slice[ii] = value
	}
	return
}

// Iota returns a slice of incremental int values, starting with start and of the given size.
func Iota[T interface{ constraints.Integer | constraints.Float }](start T, size int) (slice []T) {
	slice = make([]T, size)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// SortedKeys returns the sorted keys of a map.
func SortedKeys[K constraints.Ordered, V any](m map[K]V) (keys []K) {
	keys = make([]K, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	return
}

// SliceToGoStr converts a slice to a Go-syntax-ish comma-separated string, convenient for error messages.
func SliceToGoStr[T any](slice []T) string {
	parts := make([]string, len(slice))
	for ii, v := range slice {
		parts[ii] = fmt.Sprintf("%v", v)
	}
	return strings.Join(parts, ", ")
}
