package cypher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/orneryd/grafito/pkg/storage"
)

// Runtime values are Go natives (nil, bool, int64, float64, string, []any,
// map[string]any), storage entities (*storage.Node, *storage.Relationship),
// paths, and the storage package's temporal/spatial types.

// PathValue is a bound path: an ordered node/relationship alternation.
type PathValue struct {
	Nodes []*storage.Node
	Rels  []*storage.Relationship
}

// Len is the path length in relationships.
func (p *PathValue) Len() int { return len(p.Rels) }

// Truth is a three-valued boolean.
type Truth int

const (
	False Truth = iota
	True
	Unknown
)

// truthOf classifies a value for boolean contexts. Null is Unknown;
// non-boolean values are an execution error at the call sites that demand
// booleans, but pattern predicates funnel through here too.
func truthOf(v any) (Truth, error) {
	switch b := v.(type) {
	case nil:
		return Unknown, nil
	case bool:
		if b {
			return True, nil
		}
		return False, nil
	default:
		return False, execErrorf("expected a boolean, got %s", valueTypeName(v))
	}
}

func truthValue(t Truth) any {
	switch t {
	case True:
		return true
	case False:
		return false
	default:
		return nil
	}
}

// and3/or3/xor3/not3 implement the documented truth tables: boolean
// operators short-circuit against known values before yielding null.
func and3(a, b Truth) Truth {
	if a == False || b == False {
		return False
	}
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return True
}

func or3(a, b Truth) Truth {
	if a == True || b == True {
		return True
	}
	if a == Unknown || b == Unknown {
		return Unknown
	}
	return False
}

func xor3(a, b Truth) Truth {
	if a == Unknown || b == Unknown {
		return Unknown
	}
	if (a == True) != (b == True) {
		return True
	}
	return False
}

func not3(a Truth) Truth {
	switch a {
	case True:
		return False
	case False:
		return True
	default:
		return Unknown
	}
}

// valueEquals is Cypher `=`: null operands yield Unknown; otherwise deep
// value equality with numeric coercion. String comparison is byte-wise.
func valueEquals(a, b any) Truth {
	if a == nil || b == nil {
		return Unknown
	}
	if PropertyEqualValue(a, b) {
		return True
	}
	return False
}

// PropertyEqualValue extends storage.PropertyEqual over runtime values
// (entities compare by identity, paths element-wise).
func PropertyEqualValue(a, b any) bool {
	switch av := a.(type) {
	case *storage.Node:
		bv, ok := b.(*storage.Node)
		return ok && av.ID == bv.ID
	case *storage.Relationship:
		bv, ok := b.(*storage.Relationship)
		return ok && av.ID == bv.ID
	case *PathValue:
		bv, ok := b.(*PathValue)
		if !ok || len(av.Nodes) != len(bv.Nodes) {
			return false
		}
		for i := range av.Nodes {
			if av.Nodes[i].ID != bv.Nodes[i].ID {
				return false
			}
		}
		for i := range av.Rels {
			if av.Rels[i].ID != bv.Rels[i].ID {
				return false
			}
		}
		return true
	case []any:
		bv, ok := b.([]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for i := range av {
			if !PropertyEqualValue(av[i], bv[i]) {
				return false
			}
		}
		return true
	case map[string]any:
		bv, ok := b.(map[string]any)
		if !ok || len(av) != len(bv) {
			return false
		}
		for k, v := range av {
			bvv, ok := bv[k]
			if !ok || !PropertyEqualValue(v, bvv) {
				return false
			}
		}
		return true
	default:
		return storage.PropertyEqual(a, b)
	}
}

// compareValues orders two non-null values: -1, 0, +1. Cross-type
// comparison with ordering operators yields an error except numerics.
func compareValues(a, b any) (int, error) {
	if fa, aok := numeric(a); aok {
		if fb, bok := numeric(b); bok {
			switch {
			case fa < fb:
				return -1, nil
			case fa > fb:
				return 1, nil
			default:
				return 0, nil
			}
		}
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, execErrorf("cannot compare %s with %s", valueTypeName(a), valueTypeName(b))
		}
		return strings.Compare(av, bv), nil
	case bool:
		bv, ok := b.(bool)
		if !ok {
			return 0, execErrorf("cannot compare %s with %s", valueTypeName(a), valueTypeName(b))
		}
		switch {
		case av == bv:
			return 0, nil
		case !av:
			return -1, nil
		default:
			return 1, nil
		}
	case storage.Date:
		bv, ok := b.(storage.Date)
		if !ok {
			return 0, execErrorf("cannot compare %s with %s", valueTypeName(a), valueTypeName(b))
		}
		return av.T.Compare(bv.T), nil
	case storage.DateTime:
		bv, ok := b.(storage.DateTime)
		if !ok {
			return 0, execErrorf("cannot compare %s with %s", valueTypeName(a), valueTypeName(b))
		}
		return av.T.Compare(bv.T), nil
	case storage.LocalDateTime:
		bv, ok := b.(storage.LocalDateTime)
		if !ok {
			return 0, execErrorf("cannot compare %s with %s", valueTypeName(a), valueTypeName(b))
		}
		return av.T.Compare(bv.T), nil
	case storage.LocalTime:
		bv, ok := b.(storage.LocalTime)
		if !ok {
			return 0, execErrorf("cannot compare %s with %s", valueTypeName(a), valueTypeName(b))
		}
		return av.T.Compare(bv.T), nil
	case storage.ZonedTime:
		bv, ok := b.(storage.ZonedTime)
		if !ok {
			return 0, execErrorf("cannot compare %s with %s", valueTypeName(a), valueTypeName(b))
		}
		return av.T.Compare(bv.T), nil
	case []any:
		bv, ok := b.([]any)
		if !ok {
			return 0, execErrorf("cannot compare %s with %s", valueTypeName(a), valueTypeName(b))
		}
		for i := 0; i < len(av) && i < len(bv); i++ {
			c, err := compareValues(av[i], bv[i])
			if err != nil || c != 0 {
				return c, err
			}
		}
		return len(av) - len(bv), nil
	}
	return 0, execErrorf("cannot order values of type %s", valueTypeName(a))
}

// orderCompare is the ORDER BY collation: nulls sort last, mixed types
// sort by type name rather than erroring, so sorting never aborts a query.
func orderCompare(a, b any) int {
	if a == nil && b == nil {
		return 0
	}
	if a == nil {
		return 1
	}
	if b == nil {
		return -1
	}
	if c, err := compareValues(a, b); err == nil {
		if c < 0 {
			return -1
		}
		if c > 0 {
			return 1
		}
		return 0
	}
	return strings.Compare(valueTypeName(a), valueTypeName(b))
}

func numeric(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

func isInteger(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

func valueTypeName(v any) string {
	switch v.(type) {
	case nil:
		return "NULL"
	case bool:
		return "BOOLEAN"
	case int64, int:
		return "INTEGER"
	case float64:
		return "FLOAT"
	case string:
		return "STRING"
	case []any:
		return "LIST"
	case map[string]any:
		return "MAP"
	case *storage.Node:
		return "NODE"
	case *storage.Relationship:
		return "RELATIONSHIP"
	case *PathValue:
		return "PATH"
	case storage.Date:
		return "DATE"
	case storage.LocalTime:
		return "LOCAL TIME"
	case storage.ZonedTime:
		return "ZONED TIME"
	case storage.LocalDateTime:
		return "LOCAL DATETIME"
	case storage.DateTime:
		return "ZONED DATETIME"
	case storage.Duration:
		return "DURATION"
	case storage.Point:
		return "POINT"
	default:
		return fmt.Sprintf("%T", v)
	}
}

// valueKey renders a value as a grouping/dedup key. Equal values produce
// equal keys.
func valueKey(v any) string {
	var sb strings.Builder
	writeValueKey(&sb, v)
	return sb.String()
}

func writeValueKey(sb *strings.Builder, v any) {
	switch val := v.(type) {
	case nil:
		sb.WriteString("∅")
	case bool:
		fmt.Fprintf(sb, "b:%t", val)
	case int64:
		fmt.Fprintf(sb, "n:%v", float64(val))
	case int:
		fmt.Fprintf(sb, "n:%v", float64(val))
	case float64:
		fmt.Fprintf(sb, "n:%v", val)
	case string:
		fmt.Fprintf(sb, "s:%q", val)
	case []any:
		sb.WriteString("[")
		for _, item := range val {
			writeValueKey(sb, item)
			sb.WriteString(",")
		}
		sb.WriteString("]")
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString("{")
		for _, k := range keys {
			fmt.Fprintf(sb, "%q=", k)
			writeValueKey(sb, val[k])
			sb.WriteString(",")
		}
		sb.WriteString("}")
	case *storage.Node:
		fmt.Fprintf(sb, "node:%d", val.ID)
	case *storage.Relationship:
		fmt.Fprintf(sb, "rel:%d", val.ID)
	case *PathValue:
		sb.WriteString("path:")
		for _, n := range val.Nodes {
			fmt.Fprintf(sb, "%d-", n.ID)
		}
	default:
		fmt.Fprintf(sb, "%s:%v", valueTypeName(v), v)
	}
}
