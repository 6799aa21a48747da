package cypher

import (
	"context"
	"math"
	"regexp"
	"strings"

	"github.com/orneryd/grafito/pkg/storage"
)

// Frame is one binding frame: an ordered map from variable names to
// values, the pipeline's unit of work.
type Frame struct {
	keys []string
	vals map[string]any
}

func newFrame() *Frame {
	return &Frame{vals: map[string]any{}}
}

func (f *Frame) clone() *Frame {
	out := &Frame{
		keys: append([]string{}, f.keys...),
		vals: make(map[string]any, len(f.vals)),
	}
	for k, v := range f.vals {
		out.vals[k] = v
	}
	return out
}

func (f *Frame) set(key string, value any) {
	if _, exists := f.vals[key]; !exists {
		f.keys = append(f.keys, key)
	}
	f.vals[key] = value
}

func (f *Frame) get(key string) (any, bool) {
	v, ok := f.vals[key]
	return v, ok
}

// evalEnv evaluates expressions against one frame. When group is set the
// environment is evaluating an aggregating projection: aggregate calls
// fold over the group's frames and frame points at the group's
// representative row.
type evalEnv struct {
	ctx   context.Context
	ex    *Executor
	frame *Frame
	group []*Frame
}

func (e *evalEnv) eval(expr Expr) (any, error) {
	switch v := expr.(type) {
	case *Literal:
		return v.Value, nil
	case *Param:
		val, ok := e.ex.params[v.Name]
		if !ok {
			return nil, execErrorf("missing parameter $%s", v.Name)
		}
		return normalizeValue(val), nil
	case *Variable:
		val, ok := e.frame.get(v.Name)
		if !ok {
			return nil, execErrorf("variable `%s` not defined", v.Name)
		}
		return val, nil
	case *PropertyAccess:
		target, err := e.eval(v.Target)
		if err != nil {
			return nil, err
		}
		return propertyOf(target, v.Key)
	case *IndexAccess:
		return e.evalIndex(v)
	case *SliceAccess:
		return e.evalSlice(v)
	case *ListLit:
		out := make([]any, len(v.Items))
		for i, item := range v.Items {
			val, err := e.eval(item)
			if err != nil {
				return nil, err
			}
			out[i] = val
		}
		return out, nil
	case *MapLit:
		out := make(map[string]any, len(v.Entries))
		for _, entry := range v.Entries {
			val, err := e.eval(entry.Value)
			if err != nil {
				return nil, err
			}
			out[entry.Key] = val
		}
		return out, nil
	case *Unary:
		return e.evalUnary(v)
	case *Binary:
		return e.evalBinary(v)
	case *IsNull:
		target, err := e.eval(v.Target)
		if err != nil {
			return nil, err
		}
		if v.Negate {
			return target != nil, nil
		}
		return target == nil, nil
	case *FuncCall:
		if isAggregateFunc(v.Name) {
			if e.group == nil {
				return nil, execErrorf("aggregate function %s() is only allowed in WITH and RETURN projections", v.Name)
			}
			return e.computeAggregate(v)
		}
		return e.callFunction(v)
	case *CaseExpr:
		return e.evalCase(v)
	case *ListComprehension:
		return e.evalListComprehension(v)
	case *QuantifiedExpr:
		return e.evalQuantifier(v)
	case *PatternComprehension:
		return e.ex.evalPatternComprehension(e.ctx, e.frame, v)
	case *PatternPredicate:
		return e.ex.evalPatternPredicate(e.ctx, e.frame, v)
	default:
		return nil, execErrorf("unsupported expression %T", expr)
	}
}

// evalBool evaluates a predicate into three-valued truth.
func (e *evalEnv) evalBool(expr Expr) (Truth, error) {
	v, err := e.eval(expr)
	if err != nil {
		return Unknown, err
	}
	return truthOf(v)
}

// propertyOf resolves .key on nodes, relationships, maps, points,
// temporal values, and broadcasts over lists. Null targets yield null.
func propertyOf(target any, key string) (any, error) {
	switch t := target.(type) {
	case nil:
		return nil, nil
	case *storage.Node:
		return t.Property(key), nil
	case *storage.Relationship:
		return t.Property(key), nil
	case map[string]any:
		return t[key], nil
	case []any:
		out := make([]any, len(t))
		for i, item := range t {
			v, err := propertyOf(item, key)
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil
	case storage.Point:
		switch key {
		case "x", "longitude":
			return t.X, nil
		case "y", "latitude":
			return t.Y, nil
		case "srid":
			return int64(t.SRID), nil
		}
		return nil, nil
	default:
		if v, ok := temporalComponent(target, key); ok {
			return v, nil
		}
		return nil, execErrorf("type %s has no properties", valueTypeName(target))
	}
}

func (e *evalEnv) evalIndex(v *IndexAccess) (any, error) {
	target, err := e.eval(v.Target)
	if err != nil {
		return nil, err
	}
	idx, err := e.eval(v.Index)
	if err != nil {
		return nil, err
	}
	if target == nil || idx == nil {
		return nil, nil
	}
	switch t := target.(type) {
	case []any:
		i, ok := isInteger(idx)
		if !ok {
			return nil, execErrorf("list index must be an integer, got %s", valueTypeName(idx))
		}
		if i < 0 {
			i += int64(len(t))
		}
		if i < 0 || i >= int64(len(t)) {
			return nil, nil
		}
		return t[i], nil
	case map[string]any:
		key, ok := idx.(string)
		if !ok {
			return nil, execErrorf("map key must be a string, got %s", valueTypeName(idx))
		}
		return t[key], nil
	case *storage.Node:
		key, ok := idx.(string)
		if !ok {
			return nil, execErrorf("property name must be a string, got %s", valueTypeName(idx))
		}
		return t.Property(key), nil
	case *storage.Relationship:
		key, ok := idx.(string)
		if !ok {
			return nil, execErrorf("property name must be a string, got %s", valueTypeName(idx))
		}
		return t.Property(key), nil
	default:
		return nil, execErrorf("cannot index a %s", valueTypeName(target))
	}
}

func (e *evalEnv) evalSlice(v *SliceAccess) (any, error) {
	target, err := e.eval(v.Target)
	if err != nil {
		return nil, err
	}
	if target == nil {
		return nil, nil
	}
	list, ok := target.([]any)
	if !ok {
		return nil, execErrorf("cannot slice a %s", valueTypeName(target))
	}
	from := int64(0)
	to := int64(len(list))
	if v.From != nil {
		fv, err := e.eval(v.From)
		if err != nil {
			return nil, err
		}
		if fv == nil {
			return nil, nil
		}
		i, ok := isInteger(fv)
		if !ok {
			return nil, execErrorf("slice bound must be an integer, got %s", valueTypeName(fv))
		}
		from = i
	}
	if v.To != nil {
		tv, err := e.eval(v.To)
		if err != nil {
			return nil, err
		}
		if tv == nil {
			return nil, nil
		}
		i, ok := isInteger(tv)
		if !ok {
			return nil, execErrorf("slice bound must be an integer, got %s", valueTypeName(tv))
		}
		to = i
	}
	n := int64(len(list))
	if from < 0 {
		from += n
	}
	if to < 0 {
		to += n
	}
	from = clampIndex(from, n)
	to = clampIndex(to, n)
	if from >= to {
		return []any{}, nil
	}
	return append([]any{}, list[from:to]...), nil
}

func clampIndex(i, n int64) int64 {
	if i < 0 {
		return 0
	}
	if i > n {
		return n
	}
	return i
}

func (e *evalEnv) evalUnary(v *Unary) (any, error) {
	operand, err := e.eval(v.Operand)
	if err != nil {
		return nil, err
	}
	switch v.Op {
	case "NOT":
		t, err := truthOf(operand)
		if err != nil {
			return nil, err
		}
		return truthValue(not3(t)), nil
	case "-":
		switch n := operand.(type) {
		case nil:
			return nil, nil
		case int64:
			return -n, nil
		case float64:
			return -n, nil
		case storage.Duration:
			return storage.Duration{Months: -n.Months, Days: -n.Days, Seconds: -n.Seconds}, nil
		}
		return nil, execErrorf("cannot negate a %s", valueTypeName(operand))
	case "+":
		switch operand.(type) {
		case nil:
			return nil, nil
		case int64, float64:
			return operand, nil
		}
		return nil, execErrorf("unary + requires a number, got %s", valueTypeName(operand))
	}
	return nil, execErrorf("unknown unary operator %q", v.Op)
}

func (e *evalEnv) evalBinary(v *Binary) (any, error) {
	switch v.Op {
	case "AND", "OR", "XOR":
		return e.evalLogical(v)
	}
	left, err := e.eval(v.L)
	if err != nil {
		return nil, err
	}
	right, err := e.eval(v.R)
	if err != nil {
		return nil, err
	}
	switch v.Op {
	case "=":
		return truthValue(equalsWithListShorthand(left, right)), nil
	case "<>":
		return truthValue(not3(equalsWithListShorthand(left, right))), nil
	case "<", "<=", ">", ">=":
		if left == nil || right == nil {
			return nil, nil
		}
		c, err := compareValues(left, right)
		if err != nil {
			return nil, err
		}
		switch v.Op {
		case "<":
			return c < 0, nil
		case "<=":
			return c <= 0, nil
		case ">":
			return c > 0, nil
		default:
			return c >= 0, nil
		}
	case "IN":
		return e.evalIn(left, right)
	case "STARTS WITH", "ENDS WITH", "CONTAINS":
		if left == nil || right == nil {
			return nil, nil
		}
		ls, lok := left.(string)
		rs, rok := right.(string)
		if !lok || !rok {
			return nil, nil
		}
		switch v.Op {
		case "STARTS WITH":
			return strings.HasPrefix(ls, rs), nil
		case "ENDS WITH":
			return strings.HasSuffix(ls, rs), nil
		default:
			return strings.Contains(ls, rs), nil
		}
	case "=~":
		if left == nil || right == nil {
			return nil, nil
		}
		ls, lok := left.(string)
		pattern, rok := right.(string)
		if !lok || !rok {
			return nil, nil
		}
		re, err := regexp.Compile("^(?:" + pattern + ")$")
		if err != nil {
			return nil, execErrorf("invalid regular expression %q: %v", pattern, err)
		}
		// Cypher regex matches the whole string.
		return re.MatchString(ls), nil
	case "+", "-", "*", "/", "%", "^":
		return arithmetic(v.Op, left, right)
	}
	return nil, execErrorf("unknown operator %q", v.Op)
}

func (e *evalEnv) evalLogical(v *Binary) (any, error) {
	lt, err := e.evalBool(v.L)
	if err != nil {
		return nil, err
	}
	// short-circuit against known truth values
	switch v.Op {
	case "AND":
		if lt == False {
			return false, nil
		}
	case "OR":
		if lt == True {
			return true, nil
		}
	}
	rt, err := e.evalBool(v.R)
	if err != nil {
		return nil, err
	}
	switch v.Op {
	case "AND":
		return truthValue(and3(lt, rt)), nil
	case "OR":
		return truthValue(or3(lt, rt)), nil
	default:
		return truthValue(xor3(lt, rt)), nil
	}
}

// equalsWithListShorthand is `=`: between a list and a scalar it tests
// membership of the scalar in the list. The shorthand does not extend to
// ordering operators.
func equalsWithListShorthand(left, right any) Truth {
	if left == nil || right == nil {
		return Unknown
	}
	llist, lIsList := left.([]any)
	_, rIsList := right.([]any)
	if lIsList && !rIsList {
		return listMembership(right, llist)
	}
	if rIsList && !lIsList {
		return listMembership(left, right.([]any))
	}
	return valueEquals(left, right)
}

// listMembership is IN semantics: a null element keeps the answer Unknown
// when no concrete match exists.
func listMembership(needle any, list []any) Truth {
	sawNull := false
	for _, item := range list {
		if item == nil {
			sawNull = true
			continue
		}
		if needle == nil {
			return Unknown
		}
		if PropertyEqualValue(needle, item) {
			return True
		}
	}
	if sawNull || needle == nil {
		return Unknown
	}
	return False
}

func (e *evalEnv) evalIn(left, right any) (any, error) {
	if right == nil {
		return nil, nil
	}
	list, ok := right.([]any)
	if !ok {
		return nil, execErrorf("IN requires a list, got %s", valueTypeName(right))
	}
	return truthValue(listMembership(left, list)), nil
}

func arithmetic(op string, left, right any) (any, error) {
	if left == nil || right == nil {
		return nil, nil
	}
	if op == "+" {
		// string and list concatenation
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
		if ll, ok := left.([]any); ok {
			if rl, ok := right.([]any); ok {
				return append(append([]any{}, ll...), rl...), nil
			}
			return append(append([]any{}, ll...), right), nil
		}
		if rl, ok := right.([]any); ok {
			return append([]any{left}, rl...), nil
		}
	}
	// temporal arithmetic delegates to the temporal helpers
	if out, handled, err := temporalArithmetic(op, left, right); handled {
		return out, err
	}
	li, lIsInt := isInteger(left)
	ri, rIsInt := isInteger(right)
	if lIsInt && rIsInt {
		switch op {
		case "+":
			return li + ri, nil
		case "-":
			return li - ri, nil
		case "*":
			return li * ri, nil
		case "/":
			if ri == 0 {
				return nil, execErrorf("division by zero")
			}
			return li / ri, nil
		case "%":
			if ri == 0 {
				return nil, execErrorf("division by zero")
			}
			return li % ri, nil
		case "^":
			return math.Pow(float64(li), float64(ri)), nil
		}
	}
	lf, lok := numeric(left)
	rf, rok := numeric(right)
	if !lok || !rok {
		return nil, execErrorf("cannot apply %q to %s and %s", op, valueTypeName(left), valueTypeName(right))
	}
	switch op {
	case "+":
		return lf + rf, nil
	case "-":
		return lf - rf, nil
	case "*":
		return lf * rf, nil
	case "/":
		if rf == 0 {
			return nil, execErrorf("division by zero")
		}
		return lf / rf, nil
	case "%":
		if rf == 0 {
			return nil, execErrorf("division by zero")
		}
		return math.Mod(lf, rf), nil
	case "^":
		return math.Pow(lf, rf), nil
	}
	return nil, execErrorf("unknown arithmetic operator %q", op)
}

func (e *evalEnv) evalCase(v *CaseExpr) (any, error) {
	if v.Input != nil {
		input, err := e.eval(v.Input)
		if err != nil {
			return nil, err
		}
		for _, when := range v.Whens {
			cond, err := e.eval(when.Cond)
			if err != nil {
				return nil, err
			}
			if valueEquals(input, cond) == True {
				return e.eval(when.Result)
			}
		}
	} else {
		for _, when := range v.Whens {
			t, err := e.evalBool(when.Cond)
			if err != nil {
				return nil, err
			}
			if t == True {
				return e.eval(when.Result)
			}
		}
	}
	if v.Else != nil {
		return e.eval(v.Else)
	}
	return nil, nil
}

func (e *evalEnv) evalListComprehension(v *ListComprehension) (any, error) {
	source, err := e.eval(v.Source)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, nil
	}
	list, ok := source.([]any)
	if !ok {
		return nil, execErrorf("list comprehension requires a list, got %s", valueTypeName(source))
	}
	inner := &evalEnv{ctx: e.ctx, ex: e.ex, frame: e.frame.clone()}
	var out []any
	for _, item := range list {
		inner.frame.set(v.Variable, item)
		if v.Where != nil {
			t, err := inner.evalBool(v.Where)
			if err != nil {
				return nil, err
			}
			if t != True {
				continue
			}
		}
		if v.Project != nil {
			projected, err := inner.eval(v.Project)
			if err != nil {
				return nil, err
			}
			out = append(out, projected)
		} else {
			out = append(out, item)
		}
	}
	if out == nil {
		out = []any{}
	}
	return out, nil
}

func (e *evalEnv) evalQuantifier(v *QuantifiedExpr) (any, error) {
	source, err := e.eval(v.Source)
	if err != nil {
		return nil, err
	}
	if source == nil {
		return nil, nil
	}
	list, ok := source.([]any)
	if !ok {
		return nil, execErrorf("%s() requires a list, got %s", v.Quantifier, valueTypeName(source))
	}
	inner := &evalEnv{ctx: e.ctx, ex: e.ex, frame: e.frame.clone()}
	matches, unknowns := 0, 0
	for _, item := range list {
		inner.frame.set(v.Variable, item)
		t := True
		if v.Where != nil {
			t, err = inner.evalBool(v.Where)
			if err != nil {
				return nil, err
			}
		}
		switch t {
		case True:
			matches++
		case Unknown:
			unknowns++
		}
	}
	switch v.Quantifier {
	case "any":
		if matches > 0 {
			return true, nil
		}
		if unknowns > 0 {
			return nil, nil
		}
		return false, nil
	case "all":
		if matches == len(list) {
			return true, nil
		}
		if matches+unknowns == len(list) {
			return nil, nil
		}
		return false, nil
	case "none":
		if matches > 0 {
			return false, nil
		}
		if unknowns > 0 {
			return nil, nil
		}
		return true, nil
	case "single":
		if unknowns > 0 {
			return nil, nil
		}
		return matches == 1, nil
	}
	return nil, execErrorf("unknown quantifier %q", v.Quantifier)
}

// normalizeValue coerces parameter input (e.g. JSON-decoded) into the
// evaluator's value domain.
func normalizeValue(v any) any {
	switch val := v.(type) {
	case int:
		return int64(val)
	case int32:
		return int64(val)
	case float32:
		return float64(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	case []string:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = item
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}
