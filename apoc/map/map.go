// Package maputil provides APOC map manipulation functions.
//
// This package implements the apoc.map.* functions for working with maps
// in Cypher queries.
package maputil

import (
	"sort"
)

// FromPairs builds a map from [[key, value], …] pairs. Later pairs win.
//
// Example:
//
//	apoc.map.fromPairs([['a', 1], ['b', 2]]) => {a: 1, b: 2}
func FromPairs(pairs []interface{}) map[string]interface{} {
	out := map[string]interface{}{}
	for _, raw := range pairs {
		pair, ok := raw.([]interface{})
		if !ok || len(pair) != 2 {
			continue
		}
		key, ok := pair[0].(string)
		if !ok {
			continue
		}
		out[key] = pair[1]
	}
	return out
}

// ToPairs renders a map as [[key, value], …], key-sorted so the output is
// deterministic.
func ToPairs(m map[string]interface{}) []interface{} {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]interface{}, len(keys))
	for i, k := range keys {
		out[i] = []interface{}{k, m[k]}
	}
	return out
}

// Merge merges two maps; keys of the second win.
func Merge(a, b map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(a)+len(b))
	for k, v := range a {
		out[k] = v
	}
	for k, v := range b {
		out[k] = v
	}
	return out
}

// SetKey returns a copy with one key set.
func SetKey(m map[string]interface{}, key string, value interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	out[key] = value
	return out
}

// RemoveKey returns a copy without the key.
func RemoveKey(m map[string]interface{}, key string) map[string]interface{} {
	out := make(map[string]interface{}, len(m))
	for k, v := range m {
		if k != key {
			out[k] = v
		}
	}
	return out
}

// Clean drops nil values plus any key or value named in the removal lists.
func Clean(m map[string]interface{}, keys []string, values []interface{}) map[string]interface{} {
	dropKey := map[string]bool{}
	for _, k := range keys {
		dropKey[k] = true
	}
	out := map[string]interface{}{}
	for k, v := range m {
		if v == nil || dropKey[k] {
			continue
		}
		dropped := false
		for _, dv := range values {
			if v == dv {
				dropped = true
				break
			}
		}
		if !dropped {
			out[k] = v
		}
	}
	return out
}

// Submap extracts the named keys. Missing keys are skipped.
func Submap(m map[string]interface{}, keys []string) map[string]interface{} {
	out := map[string]interface{}{}
	for _, k := range keys {
		if v, ok := m[k]; ok {
			out[k] = v
		}
	}
	return out
}
