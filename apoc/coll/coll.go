// Package coll provides APOC collection manipulation functions.
//
// This package implements the apoc.coll.* functions for list processing
// in Cypher queries. Inputs are the evaluator's []interface{} lists;
// non-numeric values are ignored by the numeric reducers.
package coll

import (
	"sort"
)

// Sum returns the sum of all numeric values in a list.
//
// Example:
//
//	apoc.coll.sum([1, 2, 3, 4, 5]) => 15.0
func Sum(list []interface{}) float64 {
	var sum float64
	for _, item := range list {
		if n, ok := toFloat64(item); ok {
			sum += n
		}
	}
	return sum
}

// Avg returns the average of all numeric values in a list.
func Avg(list []interface{}) float64 {
	var sum float64
	var count int
	for _, item := range list {
		if n, ok := toFloat64(item); ok {
			sum += n
			count++
		}
	}
	if count == 0 {
		return 0
	}
	return sum / float64(count)
}

// Min returns the smallest numeric value, or nil for an empty list.
func Min(list []interface{}) interface{} {
	var best float64
	found := false
	for _, item := range list {
		if n, ok := toFloat64(item); ok {
			if !found || n < best {
				best = n
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return best
}

// Max returns the largest numeric value, or nil for an empty list.
func Max(list []interface{}) interface{} {
	var best float64
	found := false
	for _, item := range list {
		if n, ok := toFloat64(item); ok {
			if !found || n > best {
				best = n
				found = true
			}
		}
	}
	if !found {
		return nil
	}
	return best
}

// Contains reports whether the list contains the value.
func Contains(list []interface{}, value interface{}, eq func(a, b interface{}) bool) bool {
	for _, item := range list {
		if eq(item, value) {
			return true
		}
	}
	return false
}

// IndexOf returns the first index of value, or -1.
func IndexOf(list []interface{}, value interface{}, eq func(a, b interface{}) bool) int {
	for i, item := range list {
		if eq(item, value) {
			return i
		}
	}
	return -1
}

// Flatten flattens one nesting level.
//
// Example:
//
//	apoc.coll.flatten([[1,2],[3],[4]]) => [1,2,3,4]
func Flatten(list []interface{}) []interface{} {
	out := make([]interface{}, 0, len(list))
	for _, item := range list {
		if inner, ok := item.([]interface{}); ok {
			out = append(out, inner...)
		} else {
			out = append(out, item)
		}
	}
	return out
}

// ToSet removes duplicates, preserving first-seen order.
func ToSet(list []interface{}, key func(v interface{}) string) []interface{} {
	seen := map[string]bool{}
	out := make([]interface{}, 0, len(list))
	for _, item := range list {
		k := key(item)
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, item)
	}
	return out
}

// Reverse returns the list in reverse order.
func Reverse(list []interface{}) []interface{} {
	out := make([]interface{}, len(list))
	for i, item := range list {
		out[len(list)-1-i] = item
	}
	return out
}

// Sort sorts by the provided comparison.
func Sort(list []interface{}, less func(a, b interface{}) bool) []interface{} {
	out := append([]interface{}{}, list...)
	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// Union merges two lists into a duplicate-free union.
func Union(a, b []interface{}, key func(v interface{}) string) []interface{} {
	return ToSet(append(append([]interface{}{}, a...), b...), key)
}

// Intersection returns elements present in both lists.
func Intersection(a, b []interface{}, key func(v interface{}) string) []interface{} {
	inB := map[string]bool{}
	for _, item := range b {
		inB[key(item)] = true
	}
	var out []interface{}
	seen := map[string]bool{}
	for _, item := range a {
		k := key(item)
		if inB[k] && !seen[k] {
			seen[k] = true
			out = append(out, item)
		}
	}
	if out == nil {
		out = []interface{}{}
	}
	return out
}

// Subtract returns elements of a absent from b.
func Subtract(a, b []interface{}, key func(v interface{}) string) []interface{} {
	inB := map[string]bool{}
	for _, item := range b {
		inB[key(item)] = true
	}
	out := []interface{}{}
	for _, item := range a {
		if !inB[key(item)] {
			out = append(out, item)
		}
	}
	return out
}

// Zip pairs elements positionally: [[a0,b0],[a1,b1],…], stopping at the
// shorter list.
func Zip(a, b []interface{}) []interface{} {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	out := make([]interface{}, n)
	for i := 0; i < n; i++ {
		out[i] = []interface{}{a[i], b[i]}
	}
	return out
}

// Pairs returns adjacent pairs: [[a0,a1],[a1,a2],…].
func Pairs(list []interface{}) []interface{} {
	if len(list) < 2 {
		return []interface{}{}
	}
	out := make([]interface{}, len(list)-1)
	for i := 0; i+1 < len(list); i++ {
		out[i] = []interface{}{list[i], list[i+1]}
	}
	return out
}

func toFloat64(v interface{}) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
