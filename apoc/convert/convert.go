// Package convert provides APOC type conversion functions.
//
// This package implements the apoc.convert.* functions for converting
// between value kinds in Cypher queries.
package convert

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// ToJSON renders a value as JSON text.
func ToJSON(v interface{}) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// FromJSONMap parses JSON text into a map.
func FromJSONMap(text string) (map[string]interface{}, error) {
	var out map[string]interface{}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// FromJSONList parses JSON text into a list.
func FromJSONList(text string) ([]interface{}, error) {
	var out []interface{}
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ToString renders any value as its string form; nil stays nil.
func ToString(v interface{}) interface{} {
	if v == nil {
		return nil
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

// ToInteger coerces numbers, booleans (1/0) and numeric strings to int64;
// anything else is nil.
func ToInteger(v interface{}) interface{} {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case float64:
		return int64(n)
	case bool:
		if n {
			return int64(1)
		}
		return int64(0)
	case string:
		if i, err := strconv.ParseInt(n, 10, 64); err == nil {
			return i
		}
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return int64(f)
		}
	}
	return nil
}

// ToFloat coerces numbers and numeric strings to float64; anything else
// is nil.
func ToFloat(v interface{}) interface{} {
	switch n := v.(type) {
	case float64:
		return n
	case int64:
		return float64(n)
	case int:
		return float64(n)
	case string:
		if f, err := strconv.ParseFloat(n, 64); err == nil {
			return f
		}
	}
	return nil
}

// ToBoolean coerces truthy text and numbers to bool.
func ToBoolean(v interface{}) interface{} {
	switch b := v.(type) {
	case bool:
		return b
	case string:
		if parsed, err := strconv.ParseBool(b); err == nil {
			return parsed
		}
	case int64:
		return b != 0
	case float64:
		return b != 0
	}
	return nil
}

// ToList wraps scalars in a single-element list; lists pass through.
func ToList(v interface{}) []interface{} {
	if v == nil {
		return []interface{}{}
	}
	if list, ok := v.([]interface{}); ok {
		return list
	}
	return []interface{}{v}
}
