package cypher

import (
	"math"
	"sort"
	"strings"
)

// Aggregation. Projection items containing aggregate calls are evaluated
// per group: grouping keys are the non-aggregate items, and each aggregate
// folds over the group's frames. Over an empty group every aggregate
// yields null except count (0) and collect (empty list).

var aggregateFuncs = map[string]bool{
	"count": true, "sum": true, "avg": true, "min": true, "max": true,
	"collect": true, "stddev": true, "stddevp": true,
	"percentilecont": true, "percentiledisc": true,
}

func isAggregateFunc(name string) bool {
	return aggregateFuncs[strings.ToLower(name)]
}

// containsAggregate reports whether the expression tree holds an aggregate
// call (not descending into comprehension sources, which run per-row).
func containsAggregate(expr Expr) bool {
	switch v := expr.(type) {
	case nil:
		return false
	case *FuncCall:
		if isAggregateFunc(v.Name) {
			return true
		}
		for _, arg := range v.Args {
			if containsAggregate(arg) {
				return true
			}
		}
	case *Unary:
		return containsAggregate(v.Operand)
	case *Binary:
		return containsAggregate(v.L) || containsAggregate(v.R)
	case *IsNull:
		return containsAggregate(v.Target)
	case *PropertyAccess:
		return containsAggregate(v.Target)
	case *IndexAccess:
		return containsAggregate(v.Target) || containsAggregate(v.Index)
	case *SliceAccess:
		return containsAggregate(v.Target) || containsAggregate(v.From) || containsAggregate(v.To)
	case *ListLit:
		for _, item := range v.Items {
			if containsAggregate(item) {
				return true
			}
		}
	case *MapLit:
		for _, entry := range v.Entries {
			if containsAggregate(entry.Value) {
				return true
			}
		}
	case *CaseExpr:
		if containsAggregate(v.Input) || containsAggregate(v.Else) {
			return true
		}
		for _, when := range v.Whens {
			if containsAggregate(when.Cond) || containsAggregate(when.Result) {
				return true
			}
		}
	}
	return false
}

// computeAggregate folds one aggregate call over the group's frames.
func (e *evalEnv) computeAggregate(call *FuncCall) (any, error) {
	name := strings.ToLower(call.Name)
	if call.Star {
		if name != "count" {
			return nil, execErrorf("%s(*) is not supported", call.Name)
		}
		return int64(len(e.group)), nil
	}
	if len(call.Args) == 0 {
		return nil, execErrorf("%s() requires an argument", call.Name)
	}
	var percentile float64
	if name == "percentilecont" || name == "percentiledisc" {
		if len(call.Args) != 2 {
			return nil, execErrorf("%s() expects (expression, percentile)", call.Name)
		}
	}
	var values []any
	seen := map[string]bool{}
	for _, frame := range e.group {
		rowEnv := &evalEnv{ctx: e.ctx, ex: e.ex, frame: frame}
		v, err := rowEnv.eval(call.Args[0])
		if err != nil {
			return nil, err
		}
		if name == "percentilecont" || name == "percentiledisc" {
			p, err := rowEnv.eval(call.Args[1])
			if err != nil {
				return nil, err
			}
			if f, ok := numeric(p); ok {
				percentile = f
			}
		}
		if v == nil {
			continue
		}
		if call.Distinct {
			key := valueKey(v)
			if seen[key] {
				continue
			}
			seen[key] = true
		}
		values = append(values, v)
	}
	switch name {
	case "count":
		return int64(len(values)), nil
	case "collect":
		if values == nil {
			return []any{}, nil
		}
		return values, nil
	case "sum":
		if len(values) == 0 {
			return nil, nil
		}
		return sumValues(values)
	case "avg":
		if len(values) == 0 {
			return nil, nil
		}
		total, err := floatValues(values)
		if err != nil {
			return nil, err
		}
		var sum float64
		for _, f := range total {
			sum += f
		}
		return sum / float64(len(total)), nil
	case "min":
		return extremum(values, true)
	case "max":
		return extremum(values, false)
	case "stddev":
		return stdDev(values, true)
	case "stddevp":
		return stdDev(values, false)
	case "percentilecont":
		return percentileValue(values, percentile, true)
	case "percentiledisc":
		return percentileValue(values, percentile, false)
	}
	return nil, execErrorf("unknown aggregate %s()", call.Name)
}

func sumValues(values []any) (any, error) {
	allInt := true
	var intSum int64
	var floatSum float64
	for _, v := range values {
		switch n := v.(type) {
		case int64:
			intSum += n
			floatSum += float64(n)
		case float64:
			allInt = false
			floatSum += n
		default:
			return nil, execErrorf("sum() requires numeric values, got %s", valueTypeName(v))
		}
	}
	if allInt {
		return intSum, nil
	}
	return floatSum, nil
}

func floatValues(values []any) ([]float64, error) {
	out := make([]float64, 0, len(values))
	for _, v := range values {
		f, ok := numeric(v)
		if !ok {
			return nil, execErrorf("expected numeric values, got %s", valueTypeName(v))
		}
		out = append(out, f)
	}
	return out, nil
}

func extremum(values []any, wantMin bool) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	best := values[0]
	for _, v := range values[1:] {
		c := orderCompare(v, best)
		if (wantMin && c < 0) || (!wantMin && c > 0) {
			best = v
		}
	}
	return best, nil
}

func stdDev(values []any, sample bool) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	fs, err := floatValues(values)
	if err != nil {
		return nil, err
	}
	if len(fs) == 1 {
		return 0.0, nil
	}
	var mean float64
	for _, f := range fs {
		mean += f
	}
	mean /= float64(len(fs))
	var variance float64
	for _, f := range fs {
		d := f - mean
		variance += d * d
	}
	if sample {
		variance /= float64(len(fs) - 1)
	} else {
		variance /= float64(len(fs))
	}
	return math.Sqrt(variance), nil
}

func percentileValue(values []any, p float64, continuous bool) (any, error) {
	if len(values) == 0 {
		return nil, nil
	}
	if p < 0 || p > 1 {
		return nil, execErrorf("percentile must be in [0, 1], got %v", p)
	}
	fs, err := floatValues(values)
	if err != nil {
		return nil, err
	}
	sort.Float64s(fs)
	if continuous {
		rank := p * float64(len(fs)-1)
		lo := int(math.Floor(rank))
		hi := int(math.Ceil(rank))
		if lo == hi {
			return fs[lo], nil
		}
		frac := rank - float64(lo)
		return fs[lo]*(1-frac) + fs[hi]*frac, nil
	}
	idx := int(math.Ceil(p*float64(len(fs)))) - 1
	if idx < 0 {
		idx = 0
	}
	return fs[idx], nil
}
