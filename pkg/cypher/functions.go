package cypher

import (
	"math"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/orneryd/grafito/apoc/coll"
	"github.com/orneryd/grafito/apoc/convert"
	maputil "github.com/orneryd/grafito/apoc/map"
	"github.com/orneryd/grafito/apoc/text"
	"github.com/orneryd/grafito/apoc/util"
	"github.com/orneryd/grafito/pkg/storage"
)

// callFunction dispatches scalar built-ins. Aggregates never reach here;
// the projection machinery intercepts them. NULL propagates through every
// function unless noted (coalesce, exists, and apoc.convert.toList, which
// turns null into an empty list).
func (e *evalEnv) callFunction(call *FuncCall) (any, error) {
	args := make([]any, len(call.Args))
	for i, arg := range call.Args {
		v, err := e.eval(arg)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	name := strings.ToLower(call.Name)

	if v, handled, err := callTemporal(call.Name, args); handled {
		return v, err
	}
	if v, handled, err := callSpatial(call.Name, args); handled {
		return v, err
	}
	if strings.HasPrefix(name, "apoc.") {
		return callApoc(name, args)
	}

	switch name {
	case "coalesce":
		for _, arg := range args {
			if arg != nil {
				return arg, nil
			}
		}
		return nil, nil
	case "id":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case *storage.Node:
			return int64(v.ID), nil
		case *storage.Relationship:
			return int64(v.ID), nil
		}
		return nil, execErrorf("id() expects a node or relationship")
	case "labels":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case *storage.Node:
			out := make([]any, len(v.Labels))
			for i, l := range v.Labels {
				out[i] = l
			}
			return out, nil
		}
		return nil, execErrorf("labels() expects a node")
	case "type":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case *storage.Relationship:
			return v.Type, nil
		}
		return nil, execErrorf("type() expects a relationship")
	case "properties":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case *storage.Node:
			return copyMap(v.Properties), nil
		case *storage.Relationship:
			return copyMap(v.Properties), nil
		case map[string]any:
			return copyMap(v), nil
		}
		return nil, execErrorf("properties() expects a node, relationship or map")
	case "startnode":
		if rel, ok := first(args).(*storage.Relationship); ok {
			return e.ex.nodeByID(e.ctx, rel.Source)
		}
		return nil, nullOrError(first(args), "startNode() expects a relationship")
	case "endnode":
		if rel, ok := first(args).(*storage.Relationship); ok {
			return e.ex.nodeByID(e.ctx, rel.Target)
		}
		return nil, nullOrError(first(args), "endNode() expects a relationship")
	case "exists":
		return first(args) != nil, nil
	case "timestamp":
		return time.Now().UnixMilli(), nil

	// collection functions
	case "size":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case string:
			return int64(len(v)), nil
		case []any:
			return int64(len(v)), nil
		case map[string]any:
			return int64(len(v)), nil
		}
		return nil, execErrorf("size() expects a string, list or map")
	case "length":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case *PathValue:
			return int64(v.Len()), nil
		case string:
			return int64(len(v)), nil
		case []any:
			return int64(len(v)), nil
		}
		return nil, execErrorf("length() expects a path, string or list")
	case "head":
		if list, ok := asList(first(args)); ok {
			if len(list) == 0 {
				return nil, nil
			}
			return list[0], nil
		}
		return nil, nullOrError(first(args), "head() expects a list")
	case "last":
		if list, ok := asList(first(args)); ok {
			if len(list) == 0 {
				return nil, nil
			}
			return list[len(list)-1], nil
		}
		return nil, nullOrError(first(args), "last() expects a list")
	case "tail":
		if list, ok := asList(first(args)); ok {
			if len(list) == 0 {
				return []any{}, nil
			}
			return append([]any{}, list[1:]...), nil
		}
		return nil, nullOrError(first(args), "tail() expects a list")
	case "reverse":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case string:
			runes := []rune(v)
			for i, j := 0, len(runes)-1; i < j; i, j = i+1, j-1 {
				runes[i], runes[j] = runes[j], runes[i]
			}
			return string(runes), nil
		case []any:
			return coll.Reverse(v), nil
		}
		return nil, execErrorf("reverse() expects a string or list")
	case "range":
		return rangeFunc(args)
	case "keys":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case map[string]any:
			return sortedKeys(v), nil
		case *storage.Node:
			return sortedKeys(v.Properties), nil
		case *storage.Relationship:
			return sortedKeys(v.Properties), nil
		}
		return nil, execErrorf("keys() expects a map, node or relationship")
	case "values":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case map[string]any:
			out := []any{}
			for _, k := range sortedKeys(v) {
				out = append(out, v[k.(string)])
			}
			return out, nil
		}
		return nil, execErrorf("values() expects a map")

	// path functions
	case "nodes":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case *PathValue:
			out := make([]any, len(v.Nodes))
			for i, n := range v.Nodes {
				out[i] = n
			}
			return out, nil
		}
		return nil, execErrorf("nodes() expects a path")
	case "relationships":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case *PathValue:
			out := make([]any, len(v.Rels))
			for i, r := range v.Rels {
				out[i] = r
			}
			return out, nil
		}
		return nil, execErrorf("relationships() expects a path")

	// string functions
	case "tostring":
		return convert.ToString(first(args)), nil
	case "tointeger":
		return convert.ToInteger(first(args)), nil
	case "tofloat":
		return convert.ToFloat(first(args)), nil
	case "toboolean":
		return convert.ToBoolean(first(args)), nil
	case "toupper", "upper":
		return stringFunc(args, strings.ToUpper)
	case "tolower", "lower":
		return stringFunc(args, strings.ToLower)
	case "trim":
		return stringFunc(args, strings.TrimSpace)
	case "ltrim":
		return stringFunc(args, func(s string) string { return strings.TrimLeft(s, " \t\r\n") })
	case "rtrim":
		return stringFunc(args, func(s string) string { return strings.TrimRight(s, " \t\r\n") })
	case "substring":
		return substringFunc(args)
	case "left":
		return leftRight(args, true)
	case "right":
		return leftRight(args, false)
	case "split":
		if first(args) == nil || second(args) == nil {
			return nil, nil
		}
		s, sok := first(args).(string)
		sep, pok := second(args).(string)
		if !sok || !pok {
			return nil, execErrorf("split() expects (string, string)")
		}
		parts := text.Split(s, sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	case "replace":
		if err := needArgs(args, 3, "replace()"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		s, ok1 := args[0].(string)
		old, ok2 := args[1].(string)
		new_, ok3 := args[2].(string)
		if !ok1 || !ok2 || !ok3 {
			return nil, execErrorf("replace() expects three strings")
		}
		return text.Replace(s, old, new_), nil
	case "matches":
		if err := needArgs(args, 2, "matches()"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		s, ok1 := args[0].(string)
		pattern, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, execErrorf("matches() expects (string, string)")
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, execErrorf("invalid regular expression %q: %v", pattern, err)
		}
		return re.MatchString(s), nil
	case "regex":
		if err := needArgs(args, 2, "regex()"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		s, ok1 := args[0].(string)
		pattern, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, execErrorf("regex() expects (string, string)")
		}
		groups, err := text.RegexGroups(s, pattern)
		if err != nil {
			return nil, execErrorf("invalid regular expression %q: %v", pattern, err)
		}
		out := []any{}
		for _, g := range groups {
			row := make([]any, len(g))
			for i, s := range g {
				row[i] = s
			}
			out = append(out, row)
		}
		return out, nil
	case "deaccent":
		return stringFunc(args, text.Deaccent)
	case "strip_html":
		return stringFunc(args, text.StripHTML)
	case "strip_emoji":
		return stringFunc(args, text.StripEmoji)
	case "snake_case":
		return stringFunc(args, text.SnakeCase)
	case "levenshtein":
		if err := needArgs(args, 2, "levenshtein()"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		a, ok1 := args[0].(string)
		b, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, execErrorf("levenshtein() expects two strings")
		}
		return int64(text.Distance(a, b)), nil
	case "jaccard":
		if err := needArgs(args, 2, "jaccard()"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		a, ok1 := args[0].(string)
		b, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, execErrorf("jaccard() expects two strings")
		}
		return text.Jaccard(a, b), nil

	// math functions
	case "abs":
		return mathFunc(args, math.Abs, func(i int64) (int64, bool) {
			if i < 0 {
				return -i, true
			}
			return i, true
		})
	case "sign":
		if first(args) == nil {
			return nil, nil
		}
		if f, ok := numeric(first(args)); ok {
			switch {
			case f > 0:
				return int64(1), nil
			case f < 0:
				return int64(-1), nil
			default:
				return int64(0), nil
			}
		}
		return nil, execErrorf("sign() expects a number")
	case "ceil":
		return floatFunc(args, math.Ceil)
	case "floor":
		return floatFunc(args, math.Floor)
	case "round":
		return floatFunc(args, math.Round)
	case "sqrt":
		return floatFunc(args, math.Sqrt)
	case "exp":
		return floatFunc(args, math.Exp)
	case "log":
		return floatFunc(args, math.Log)
	case "log10":
		return floatFunc(args, math.Log10)
	case "sin":
		return floatFunc(args, math.Sin)
	case "cos":
		return floatFunc(args, math.Cos)
	case "tan":
		return floatFunc(args, math.Tan)
	case "pi":
		return math.Pi, nil
	case "e":
		return math.E, nil
	}
	return nil, execErrorf("unknown function %s()", call.Name)
}

// callApoc dispatches the apoc.* expression-level subset.
func callApoc(name string, args []any) (any, error) {
	switch name {
	case "apoc.text.join":
		if err := needArgs(args, 2, "apoc.text.join"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, execErrorf("apoc.text.join expects a list")
		}
		sep, ok := args[1].(string)
		if !ok {
			return nil, execErrorf("apoc.text.join expects a string delimiter")
		}
		strs := make([]string, len(list))
		for i, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, execErrorf("apoc.text.join expects a list of strings")
			}
			strs[i] = s
		}
		return text.Join(strs, sep), nil
	case "apoc.text.split":
		if err := needArgs(args, 2, "apoc.text.split"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		s, _ := args[0].(string)
		sep, _ := args[1].(string)
		parts := text.Split(s, sep)
		out := make([]any, len(parts))
		for i, p := range parts {
			out[i] = p
		}
		return out, nil
	case "apoc.text.replace":
		if err := needArgs(args, 3, "apoc.text.replace"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		s, _ := args[0].(string)
		pattern, _ := args[1].(string)
		repl, _ := args[2].(string)
		out, err := text.RegexReplace(s, pattern, repl)
		if err != nil {
			return nil, execErrorf("invalid regular expression %q: %v", pattern, err)
		}
		return out, nil
	case "apoc.text.capitalize":
		return applyString(args, text.Capitalize)
	case "apoc.text.decapitalize":
		return applyString(args, text.Decapitalize)
	case "apoc.text.camelcase":
		return applyString(args, text.CamelCase)
	case "apoc.text.uppercamelcase":
		return applyString(args, text.UpperCamelCase)
	case "apoc.text.snakecase":
		return applyString(args, text.SnakeCase)
	case "apoc.text.clean":
		return applyString(args, text.Clean)
	case "apoc.text.deaccent":
		return applyString(args, text.Deaccent)
	case "apoc.text.distance":
		if err := needArgs(args, 2, "apoc.text.distance"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		a, _ := args[0].(string)
		b, _ := args[1].(string)
		return int64(text.Distance(a, b)), nil
	case "apoc.text.jaccard":
		if err := needArgs(args, 2, "apoc.text.jaccard"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		a, _ := args[0].(string)
		b, _ := args[1].(string)
		return text.Jaccard(a, b), nil
	case "apoc.text.regexgroups":
		if err := needArgs(args, 2, "apoc.text.regexGroups"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		s, _ := args[0].(string)
		pattern, _ := args[1].(string)
		groups, err := text.RegexGroups(s, pattern)
		if err != nil {
			return nil, execErrorf("invalid regular expression %q: %v", pattern, err)
		}
		out := []any{}
		for _, g := range groups {
			row := make([]any, len(g))
			for i, s := range g {
				row[i] = s
			}
			out = append(out, row)
		}
		return out, nil

	case "apoc.map.frompairs":
		if first(args) == nil {
			return nil, nil
		}
		pairs, ok := args[0].([]any)
		if !ok {
			return nil, execErrorf("apoc.map.fromPairs expects a list of pairs")
		}
		return maputil.FromPairs(pairs), nil
	case "apoc.map.topairs":
		if m, ok := mapArg(args); ok {
			return maputil.ToPairs(m), nil
		}
		return nil, nullOrError(first(args), "apoc.map.toPairs expects a map")
	case "apoc.map.merge":
		if err := needArgs(args, 2, "apoc.map.merge"); err != nil {
			return nil, err
		}
		if anyNil(args) {
			return nil, nil
		}
		a, ok1 := args[0].(map[string]any)
		b, ok2 := args[1].(map[string]any)
		if !ok1 || !ok2 {
			return nil, execErrorf("apoc.map.merge expects two maps")
		}
		return maputil.Merge(a, b), nil
	case "apoc.map.setkey":
		if err := needArgs(args, 3, "apoc.map.setKey"); err != nil {
			return nil, err
		}
		if first(args) == nil {
			return nil, nil
		}
		m, ok1 := args[0].(map[string]any)
		key, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, execErrorf("apoc.map.setKey expects (map, string, value)")
		}
		return maputil.SetKey(m, key, args[2]), nil
	case "apoc.map.removekey":
		if err := needArgs(args, 2, "apoc.map.removeKey"); err != nil {
			return nil, err
		}
		if first(args) == nil || second(args) == nil {
			return nil, nil
		}
		m, ok1 := args[0].(map[string]any)
		key, ok2 := args[1].(string)
		if !ok1 || !ok2 {
			return nil, execErrorf("apoc.map.removeKey expects (map, string)")
		}
		return maputil.RemoveKey(m, key), nil
	case "apoc.map.clean":
		if first(args) == nil {
			return nil, nil
		}
		m, ok := args[0].(map[string]any)
		if !ok {
			return nil, execErrorf("apoc.map.clean expects (map, list, list)")
		}
		keys := stringList(argOr(args, 1))
		values, _ := argOr(args, 2).([]any)
		return maputil.Clean(m, keys, values), nil
	case "apoc.map.submap":
		if err := needArgs(args, 2, "apoc.map.submap"); err != nil {
			return nil, err
		}
		if first(args) == nil || second(args) == nil {
			return nil, nil
		}
		m, ok := args[0].(map[string]any)
		if !ok {
			return nil, execErrorf("apoc.map.submap expects (map, list)")
		}
		return maputil.Submap(m, stringList(args[1])), nil

	case "apoc.convert.tomap":
		switch v := first(args).(type) {
		case nil:
			return nil, nil
		case *storage.Node:
			return copyMap(v.Properties), nil
		case *storage.Relationship:
			return copyMap(v.Properties), nil
		case map[string]any:
			return copyMap(v), nil
		}
		return nil, execErrorf("apoc.convert.toMap expects a node, relationship or map")
	case "apoc.convert.tojson":
		if first(args) == nil {
			return nil, nil
		}
		out, err := convert.ToJSON(first(args))
		if err != nil {
			return nil, execErrorf("apoc.convert.toJson: %v", err)
		}
		return out, nil
	case "apoc.convert.fromjsonmap":
		if first(args) == nil {
			return nil, nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, execErrorf("apoc.convert.fromJsonMap expects a string")
		}
		out, err := convert.FromJSONMap(s)
		if err != nil {
			return nil, execErrorf("apoc.convert.fromJsonMap: %v", err)
		}
		return normalizeValue(out), nil
	case "apoc.convert.fromjsonlist":
		if first(args) == nil {
			return nil, nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, execErrorf("apoc.convert.fromJsonList expects a string")
		}
		out, err := convert.FromJSONList(s)
		if err != nil {
			return nil, execErrorf("apoc.convert.fromJsonList: %v", err)
		}
		return normalizeValue(out), nil
	case "apoc.convert.tolist":
		return convert.ToList(first(args)), nil

	case "apoc.coll.sum":
		if list, ok := asList(first(args)); ok {
			return coll.Sum(list), nil
		}
		return nil, nullOrError(first(args), "apoc.coll.sum expects a list")
	case "apoc.coll.avg":
		if list, ok := asList(first(args)); ok {
			return coll.Avg(list), nil
		}
		return nil, nullOrError(first(args), "apoc.coll.avg expects a list")
	case "apoc.coll.min":
		if list, ok := asList(first(args)); ok {
			return coll.Min(list), nil
		}
		return nil, nullOrError(first(args), "apoc.coll.min expects a list")
	case "apoc.coll.max":
		if list, ok := asList(first(args)); ok {
			return coll.Max(list), nil
		}
		return nil, nullOrError(first(args), "apoc.coll.max expects a list")
	case "apoc.coll.contains":
		if err := needArgs(args, 2, "apoc.coll.contains"); err != nil {
			return nil, err
		}
		if first(args) == nil {
			return nil, nil
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, execErrorf("apoc.coll.contains expects (list, value)")
		}
		return coll.Contains(list, args[1], PropertyEqualValue), nil
	case "apoc.coll.indexof":
		if err := needArgs(args, 2, "apoc.coll.indexOf"); err != nil {
			return nil, err
		}
		if first(args) == nil {
			return nil, nil
		}
		list, ok := args[0].([]any)
		if !ok {
			return nil, execErrorf("apoc.coll.indexOf expects (list, value)")
		}
		return int64(coll.IndexOf(list, args[1], PropertyEqualValue)), nil
	case "apoc.coll.flatten":
		if list, ok := asList(first(args)); ok {
			return coll.Flatten(list), nil
		}
		return nil, nullOrError(first(args), "apoc.coll.flatten expects a list")
	case "apoc.coll.toset":
		if list, ok := asList(first(args)); ok {
			return coll.ToSet(list, valueKey), nil
		}
		return nil, nullOrError(first(args), "apoc.coll.toSet expects a list")
	case "apoc.coll.sort":
		if list, ok := asList(first(args)); ok {
			return coll.Sort(list, func(a, b any) bool { return orderCompare(a, b) < 0 }), nil
		}
		return nil, nullOrError(first(args), "apoc.coll.sort expects a list")
	case "apoc.coll.reverse":
		if list, ok := asList(first(args)); ok {
			return coll.Reverse(list), nil
		}
		return nil, nullOrError(first(args), "apoc.coll.reverse expects a list")
	case "apoc.coll.union":
		a, aok := asList(first(args))
		b, bok := asList(second(args))
		if !aok || !bok {
			return nil, nullOrError(nil, "apoc.coll.union expects two lists")
		}
		return coll.Union(a, b, valueKey), nil
	case "apoc.coll.intersection":
		a, aok := asList(first(args))
		b, bok := asList(second(args))
		if !aok || !bok {
			return nil, nullOrError(nil, "apoc.coll.intersection expects two lists")
		}
		return coll.Intersection(a, b, valueKey), nil
	case "apoc.coll.subtract":
		a, aok := asList(first(args))
		b, bok := asList(second(args))
		if !aok || !bok {
			return nil, nullOrError(nil, "apoc.coll.subtract expects two lists")
		}
		return coll.Subtract(a, b, valueKey), nil
	case "apoc.coll.zip":
		a, aok := asList(first(args))
		b, bok := asList(second(args))
		if !aok || !bok {
			return nil, nullOrError(nil, "apoc.coll.zip expects two lists")
		}
		return coll.Zip(a, b), nil
	case "apoc.coll.pairs":
		if list, ok := asList(first(args)); ok {
			return coll.Pairs(list), nil
		}
		return nil, nullOrError(first(args), "apoc.coll.pairs expects a list")

	case "apoc.util.md5":
		return applyString(args, util.MD5)
	case "apoc.util.sha1":
		return applyString(args, util.SHA1)
	case "apoc.util.sha256":
		return applyString(args, util.SHA256)
	case "apoc.util.compress":
		if first(args) == nil {
			return nil, nil
		}
		s, ok := args[0].(string)
		if !ok {
			return nil, execErrorf("apoc.util.compress expects a string")
		}
		codec := ""
		if cfg, ok := argOr(args, 1).(map[string]any); ok {
			if c, ok := cfg["compression"].(string); ok {
				codec = c
			}
		}
		data, err := util.Compress(s, codec)
		if err != nil {
			return nil, execErrorf("apoc.util.compress: %v", err)
		}
		out := make([]any, len(data))
		for i, b := range data {
			out[i] = int64(b)
		}
		return out, nil
	}
	return nil, execErrorf("unknown function %s()", name)
}

// --- helpers ---

func first(args []any) any {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}

func second(args []any) any {
	if len(args) < 2 {
		return nil
	}
	return args[1]
}

func argOr(args []any, i int) any {
	if i >= len(args) {
		return nil
	}
	return args[i]
}

// needArgs enforces an exact argument count before positional access.
func needArgs(args []any, n int, name string) error {
	if len(args) != n {
		return execErrorf("%s expects %d arguments, got %d", name, n, len(args))
	}
	return nil
}

func anyNil(args []any) bool {
	for _, a := range args {
		if a == nil {
			return true
		}
	}
	return false
}

func asList(v any) ([]any, bool) {
	list, ok := v.([]any)
	return list, ok
}

func stringList(v any) []string {
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(list))
	for _, item := range list {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}

func mapArg(args []any) (map[string]any, bool) {
	m, ok := first(args).(map[string]any)
	return m, ok
}

// nullOrError returns nil when the argument is null (NULL propagation) and
// an execution error otherwise.
func nullOrError(v any, msg string) error {
	if v == nil {
		return nil
	}
	return execErrorf("%s", msg)
}

func copyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func sortedKeys(m map[string]any) []any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]any, len(keys))
	for i, k := range keys {
		out[i] = k
	}
	return out
}

func stringFunc(args []any, fn func(string) string) (any, error) {
	switch v := first(args).(type) {
	case nil:
		return nil, nil
	case string:
		return fn(v), nil
	}
	return nil, execErrorf("expected a string argument, got %s", valueTypeName(first(args)))
}

func applyString(args []any, fn func(string) string) (any, error) {
	return stringFunc(args, fn)
}

func floatFunc(args []any, fn func(float64) float64) (any, error) {
	if first(args) == nil {
		return nil, nil
	}
	if f, ok := numeric(first(args)); ok {
		return fn(f), nil
	}
	return nil, execErrorf("expected a numeric argument, got %s", valueTypeName(first(args)))
}

func mathFunc(args []any, ffn func(float64) float64, ifn func(int64) (int64, bool)) (any, error) {
	switch v := first(args).(type) {
	case nil:
		return nil, nil
	case int64:
		if out, ok := ifn(v); ok {
			return out, nil
		}
	case float64:
		return ffn(v), nil
	}
	return nil, execErrorf("expected a numeric argument, got %s", valueTypeName(first(args)))
}

func substringFunc(args []any) (any, error) {
	if first(args) == nil || second(args) == nil {
		return nil, nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, execErrorf("substring() expects a string")
	}
	start, ok := isInteger(args[1])
	if !ok {
		return nil, execErrorf("substring() start must be an integer")
	}
	runes := []rune(s)
	length := int64(len(runes)) - start
	if len(args) > 2 {
		if args[2] == nil {
			return nil, nil
		}
		l, ok := isInteger(args[2])
		if !ok {
			return nil, execErrorf("substring() length must be an integer")
		}
		if l < 0 {
			return nil, execErrorf("substring() length must be non-negative")
		}
		length = l
	}
	if start < 0 || start > int64(len(runes)) {
		return "", nil
	}
	end := start + length
	if end > int64(len(runes)) {
		end = int64(len(runes))
	}
	if end < start {
		end = start
	}
	return string(runes[start:end]), nil
}

func leftRight(args []any, left bool) (any, error) {
	if first(args) == nil || second(args) == nil {
		return nil, nil
	}
	s, ok := args[0].(string)
	if !ok {
		return nil, execErrorf("expected a string argument")
	}
	n, ok := isInteger(args[1])
	if !ok || n < 0 {
		return nil, execErrorf("expected a non-negative length")
	}
	runes := []rune(s)
	if n > int64(len(runes)) {
		n = int64(len(runes))
	}
	if left {
		return string(runes[:n]), nil
	}
	return string(runes[len(runes)-int(n):]), nil
}

func rangeFunc(args []any) (any, error) {
	if len(args) < 2 || first(args) == nil || second(args) == nil {
		return nil, nil
	}
	start, ok1 := isInteger(args[0])
	end, ok2 := isInteger(args[1])
	if !ok1 || !ok2 {
		return nil, execErrorf("range() expects integer bounds")
	}
	step := int64(1)
	if len(args) > 2 && args[2] != nil {
		s, ok := isInteger(args[2])
		if !ok {
			return nil, execErrorf("range() step must be an integer")
		}
		if s == 0 {
			return nil, execErrorf("range() step cannot be zero")
		}
		step = s
	}
	out := []any{}
	if step > 0 {
		for i := start; i <= end; i += step {
			out = append(out, i)
		}
	} else {
		for i := start; i >= end; i += step {
			out = append(out, i)
		}
	}
	return out, nil
}
