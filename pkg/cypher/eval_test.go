package cypher

import (
	"context"
	"math"
	"strings"
	"testing"

	"github.com/orneryd/grafito/pkg/storage"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	engine, err := storage.Open(storage.MemoryPath, storage.Options{})
	if err != nil {
		t.Fatalf("open storage: %v", err)
	}
	t.Cleanup(func() { engine.Close() })
	sess := engine.Session()
	t.Cleanup(func() { sess.Close() })
	return NewExecutor(sess, nil, Config{MaxHops: 5})
}

// evalOne runs RETURN <expr> and yields the single cell.
func evalOne(t *testing.T, ex *Executor, expr string) any {
	t.Helper()
	result, err := ex.Execute(context.Background(), "RETURN "+expr, nil)
	if err != nil {
		t.Fatalf("RETURN %s: %v", expr, err)
	}
	if len(result.Rows) != 1 || len(result.Rows[0]) != 1 {
		t.Fatalf("RETURN %s: result shape %dx%d", expr, len(result.Rows), len(result.Columns))
	}
	return result.Rows[0][0]
}

func evalErr(t *testing.T, ex *Executor, expr string) error {
	t.Helper()
	_, err := ex.Execute(context.Background(), "RETURN "+expr, nil)
	if err == nil {
		t.Fatalf("RETURN %s: expected error", expr)
	}
	return err
}

// Every row of the three-valued truth tables.
func TestThreeValuedLogicTruthTables(t *testing.T) {
	ex := newTestExecutor(t)
	cases := []struct {
		expr string
		want any
	}{
		{"true AND true", true}, {"true AND false", false}, {"true AND null", nil},
		{"false AND true", false}, {"false AND false", false}, {"false AND null", false},
		{"null AND true", nil}, {"null AND false", false}, {"null AND null", nil},

		{"true OR true", true}, {"true OR false", true}, {"true OR null", true},
		{"false OR true", true}, {"false OR false", false}, {"false OR null", nil},
		{"null OR true", true}, {"null OR false", nil}, {"null OR null", nil},

		{"true XOR true", false}, {"true XOR false", true}, {"true XOR null", nil},
		{"false XOR false", false}, {"null XOR true", nil}, {"null XOR null", nil},

		{"NOT true", false}, {"NOT false", true}, {"NOT null", nil},
	}
	for _, tc := range cases {
		if got := evalOne(t, ex, tc.expr); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.expr, got, tc.want)
		}
	}
}

func TestNullPropagation(t *testing.T) {
	ex := newTestExecutor(t)
	for _, expr := range []string{
		"null + 1", "1 - null", "null * null", "null < 3", "3 >= null",
		"null = null", "null <> 1", "toUpper(null)", "size(null)",
		"null IN [1, 2]", "'a' STARTS WITH null",
	} {
		if got := evalOne(t, ex, expr); got != nil {
			t.Errorf("%s = %v, want null", expr, got)
		}
	}
	// IS NULL is the exception
	if got := evalOne(t, ex, "null IS NULL"); got != true {
		t.Errorf("null IS NULL = %v", got)
	}
	if got := evalOne(t, ex, "1 IS NULL"); got != false {
		t.Errorf("1 IS NULL = %v", got)
	}
	if got := evalOne(t, ex, "1 IS NOT NULL"); got != true {
		t.Errorf("1 IS NOT NULL = %v", got)
	}
}

func TestListScalarEqualityShorthand(t *testing.T) {
	ex := newTestExecutor(t)
	if got := evalOne(t, ex, "[1, 2, 3] = 2"); got != true {
		t.Errorf("[1,2,3] = 2 -> %v", got)
	}
	if got := evalOne(t, ex, "[1, 2, 3] = 4"); got != false {
		t.Errorf("[1,2,3] = 4 -> %v", got)
	}
	if got := evalOne(t, ex, "2 = [1, 2]"); got != true {
		t.Errorf("2 = [1,2] -> %v", got)
	}
	if got := evalOne(t, ex, "[1, 2] <> 3"); got != true {
		t.Errorf("[1,2] <> 3 -> %v", got)
	}
	// the shorthand does not extend to ordering: list < scalar errors
	evalErr(t, ex, "[1, 2] < 3")
}

func TestArithmetic(t *testing.T) {
	ex := newTestExecutor(t)
	cases := []struct {
		expr string
		want any
	}{
		{"1 + 2", int64(3)},
		{"7 / 2", int64(3)},   // integer division
		{"7.0 / 2", 3.5},
		{"7 % 3", int64(1)},
		{"2 ^ 10", 1024.0},
		{"-5", int64(-5)},
		{"'ab' + 'cd'", "abcd"},
		{"1 + 2 * 3", int64(7)},
	}
	for _, tc := range cases {
		if got := evalOne(t, ex, tc.expr); got != tc.want {
			t.Errorf("%s = %v (%T), want %v", tc.expr, got, got, tc.want)
		}
	}
	evalErr(t, ex, "1 / 0")
	evalErr(t, ex, "1 % 0")
}

func TestListIndexingAndSlicing(t *testing.T) {
	ex := newTestExecutor(t)
	if got := evalOne(t, ex, "[10, 20, 30][0]"); got != int64(10) {
		t.Errorf("index 0 = %v", got)
	}
	if got := evalOne(t, ex, "[10, 20, 30][-1]"); got != int64(30) {
		t.Errorf("index -1 = %v", got)
	}
	if got := evalOne(t, ex, "[10, 20, 30][5]"); got != nil {
		t.Errorf("out of range = %v", got)
	}
	slice := evalOne(t, ex, "[1, 2, 3, 4][1..3]").([]any)
	if len(slice) != 2 || slice[0] != int64(2) || slice[1] != int64(3) {
		t.Errorf("[1..3] = %v", slice)
	}
	open := evalOne(t, ex, "[1, 2, 3][1..]").([]any)
	if len(open) != 2 {
		t.Errorf("[1..] = %v", open)
	}
	neg := evalOne(t, ex, "[1, 2, 3, 4][..-1]").([]any)
	if len(neg) != 3 {
		t.Errorf("[..-1] = %v", neg)
	}
}

func TestStringFunctions(t *testing.T) {
	ex := newTestExecutor(t)
	cases := []struct {
		expr string
		want any
	}{
		{"toUpper('abc')", "ABC"},
		{"toLower('ABC')", "abc"},
		{"trim('  x  ')", "x"},
		{"substring('hello', 1, 3)", "ell"},
		{"substring('hello', 2)", "llo"},
		{"reverse('abc')", "cba"},
		{"replace('aXbXc', 'X', '-')", "a-b-c"},
		{"deaccent('café')", "cafe"},
		{"snake_case('HelloWorld')", "hello_world"},
		{"levenshtein('kitten', 'sitting')", int64(3)},
		{"matches('abc123', '[a-z]+[0-9]+')", true},
		{"'hello' STARTS WITH 'he'", true},
		{"'hello' ENDS WITH 'lo'", true},
		{"'hello' CONTAINS 'ell'", true},
		{"'hello' =~ 'h.*o'", true},
		{"'hello' =~ 'h'", false}, // whole-string match
	}
	for _, tc := range cases {
		if got := evalOne(t, ex, tc.expr); got != tc.want {
			t.Errorf("%s = %v, want %v", tc.expr, got, tc.want)
		}
	}
	if got := evalOne(t, ex, "split('a,b', ',')").([]any); len(got) != 2 || got[0] != "a" {
		t.Errorf("split = %v", got)
	}
	evalErr(t, ex, "'x' =~ '('")            // invalid regex
	evalErr(t, ex, "substring('abc', 0, -1)") // negative length
}

func TestCollectionFunctions(t *testing.T) {
	ex := newTestExecutor(t)
	if got := evalOne(t, ex, "size([1, 2, 3])"); got != int64(3) {
		t.Errorf("size = %v", got)
	}
	if got := evalOne(t, ex, "head([1, 2])"); got != int64(1) {
		t.Errorf("head = %v", got)
	}
	if got := evalOne(t, ex, "last([1, 2])"); got != int64(2) {
		t.Errorf("last = %v", got)
	}
	if got := evalOne(t, ex, "head([])"); got != nil {
		t.Errorf("head([]) = %v", got)
	}
	tail := evalOne(t, ex, "tail([1, 2, 3])").([]any)
	if len(tail) != 2 || tail[0] != int64(2) {
		t.Errorf("tail = %v", tail)
	}
	// reverse(reverse(xs)) == xs
	if got := evalOne(t, ex, "reverse(reverse([1, 2, 3])) = [1, 2, 3]"); got != true {
		t.Errorf("reverse involution failed: %v", got)
	}
	// head(xs) + tail(xs) == xs for non-empty xs
	if got := evalOne(t, ex, "[head([7, 8, 9])] + tail([7, 8, 9]) = [7, 8, 9]"); got != true {
		t.Errorf("head+tail law failed: %v", got)
	}
	rng := evalOne(t, ex, "range(1, 5, 2)").([]any)
	if len(rng) != 3 || rng[2] != int64(5) {
		t.Errorf("range = %v", rng)
	}
	keys := evalOne(t, ex, "keys({b: 1, a: 2})").([]any)
	if len(keys) != 2 || keys[0] != "a" {
		t.Errorf("keys = %v", keys)
	}
}

func TestListComprehensionAndQuantifiers(t *testing.T) {
	ex := newTestExecutor(t)
	got := evalOne(t, ex, "[x IN [1, 2, 3, 4] WHERE x > 2 | x * 10]").([]any)
	if len(got) != 2 || got[0] != int64(30) || got[1] != int64(40) {
		t.Errorf("comprehension = %v", got)
	}
	if v := evalOne(t, ex, "any(x IN [1, 2] WHERE x > 1)"); v != true {
		t.Errorf("any = %v", v)
	}
	if v := evalOne(t, ex, "all(x IN [1, 2] WHERE x > 1)"); v != false {
		t.Errorf("all = %v", v)
	}
	if v := evalOne(t, ex, "none(x IN [1, 2] WHERE x > 5)"); v != true {
		t.Errorf("none = %v", v)
	}
	if v := evalOne(t, ex, "single(x IN [1, 2] WHERE x = 2)"); v != true {
		t.Errorf("single = %v", v)
	}
}

func TestCaseExpression(t *testing.T) {
	ex := newTestExecutor(t)
	if got := evalOne(t, ex, "CASE 2 WHEN 1 THEN 'one' WHEN 2 THEN 'two' ELSE 'many' END"); got != "two" {
		t.Errorf("simple CASE = %v", got)
	}
	if got := evalOne(t, ex, "CASE WHEN 1 > 2 THEN 'no' WHEN 2 > 1 THEN 'yes' END"); got != "yes" {
		t.Errorf("searched CASE = %v", got)
	}
	if got := evalOne(t, ex, "CASE WHEN false THEN 1 END"); got != nil {
		t.Errorf("CASE without ELSE = %v", got)
	}
}

func TestTemporalFunctions(t *testing.T) {
	ex := newTestExecutor(t)
	d := evalOne(t, ex, "date('2020-06-15')")
	date, ok := d.(storage.Date)
	if !ok || date.String() != "2020-06-15" {
		t.Fatalf("date() = %v (%T)", d, d)
	}
	if got := evalOne(t, ex, "date('2020-06-15').year"); got != int64(2020) {
		t.Errorf("year = %v", got)
	}
	if got := evalOne(t, ex, "date('2020-06-15').quarter"); got != int64(2) {
		t.Errorf("quarter = %v", got)
	}
	plus := evalOne(t, ex, "date('2020-06-15') + duration('P1M')")
	if pd, ok := plus.(storage.Date); !ok || pd.String() != "2020-07-15" {
		t.Errorf("date + duration = %v", plus)
	}
	trunc := evalOne(t, ex, "date.truncate('month', date('2020-06-15'))")
	if td, ok := trunc.(storage.Date); !ok || td.String() != "2020-06-01" {
		t.Errorf("truncate = %v", trunc)
	}
	between := evalOne(t, ex, "duration.between(localdatetime('2020-01-01T00:00:00'), localdatetime('2020-01-01T01:30:00'))")
	if dur, ok := between.(storage.Duration); !ok || dur.Seconds != 5400 {
		t.Errorf("duration.between = %v", between)
	}
	dur := evalOne(t, ex, "duration({hours: 2, minutes: 30})")
	if dd, ok := dur.(storage.Duration); !ok || dd.Seconds != 9000 {
		t.Errorf("duration map = %v", dur)
	}
}

func TestSpatialFunctions(t *testing.T) {
	ex := newTestExecutor(t)
	p := evalOne(t, ex, "point({x: 3, y: 4})")
	pt, ok := p.(storage.Point)
	if !ok || pt.SRID != storage.SRIDCartesian {
		t.Fatalf("point = %v (%T)", p, p)
	}
	if got := evalOne(t, ex, "distance(point({x: 0, y: 0}), point({x: 3, y: 4}))"); got != 5.0 {
		t.Errorf("cartesian distance = %v", got)
	}
	geo := evalOne(t, ex, "distance(point({longitude: 0, latitude: 0}), point({longitude: 1, latitude: 0}))")
	km, ok := geo.(float64)
	if !ok || math.Abs(km-111319) > 500 {
		t.Errorf("geographic distance = %v, want ~111319 m", geo)
	}
	evalErr(t, ex, "distance(point({x: 0, y: 0}), point({longitude: 1, latitude: 0}))")
	if got := evalOne(t, ex, "point({x: 1, y: 2}).x"); got != 1.0 {
		t.Errorf("point.x = %v", got)
	}
}

func TestApocFunctions(t *testing.T) {
	ex := newTestExecutor(t)
	if got := evalOne(t, ex, "apoc.text.join(['a', 'b'], '-')"); got != "a-b" {
		t.Errorf("apoc.text.join = %v", got)
	}
	if got := evalOne(t, ex, "apoc.text.camelCase('hello world')"); got != "helloWorld" {
		t.Errorf("camelCase = %v", got)
	}
	if got := evalOne(t, ex, "apoc.coll.sum([1, 2, 3])"); got != 6.0 {
		t.Errorf("apoc.coll.sum = %v", got)
	}
	if got := evalOne(t, ex, "apoc.coll.contains([1, 2], 2)"); got != true {
		t.Errorf("apoc.coll.contains = %v", got)
	}
	flat := evalOne(t, ex, "apoc.coll.flatten([[1, 2], [3]])").([]any)
	if len(flat) != 3 {
		t.Errorf("flatten = %v", flat)
	}
	// apoc.map.fromPairs(toPairs(m)) == m
	if got := evalOne(t, ex, "apoc.map.fromPairs(apoc.map.toPairs({a: 1, b: 'x'})) = {a: 1, b: 'x'}"); got != true {
		t.Errorf("fromPairs/toPairs law failed: %v", got)
	}
	m := evalOne(t, ex, "apoc.map.merge({a: 1}, {b: 2})").(map[string]any)
	if len(m) != 2 {
		t.Errorf("merge = %v", m)
	}
	if got := evalOne(t, ex, "apoc.util.sha256('abc')"); !strings.HasPrefix(got.(string), "ba7816bf") {
		t.Errorf("sha256 = %v", got)
	}
}

func TestJaccardOnBigrams(t *testing.T) {
	ex := newTestExecutor(t)
	// identical strings share every bigram
	if got := evalOne(t, ex, "jaccard('night', 'night')"); got != 1.0 {
		t.Errorf("jaccard identical = %v", got)
	}
	got := evalOne(t, ex, "jaccard('night', 'nacht')").(float64)
	if math.Abs(got-1.0/7.0) > 1e-9 {
		t.Errorf("jaccard('night','nacht') = %v, want 1/7", got)
	}
}
