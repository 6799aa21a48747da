package cypher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func run(t *testing.T, ex *Executor, query string) *Result {
	t.Helper()
	result, err := ex.Execute(context.Background(), query, nil)
	if err != nil {
		t.Fatalf("Execute(%q): %v", query, err)
	}
	return result
}

func TestCreateMatchReturnProjection(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, `CREATE (a:Person {name: 'Alice', age: 30}), (b:Person {name: 'Bob'}),
		(a)-[:KNOWS {since: 2020}]->(b)`)

	result := run(t, ex, "MATCH (p:Person)-[:KNOWS]->(q) RETURN p.name, q.name, p.age + 1")
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	row := result.Rows[0]
	if row[0] != "Alice" || row[1] != "Bob" || row[2] != int64(31) {
		t.Errorf("row = %v", row)
	}
	wantCols := []string{"p.name", "q.name", "p.age+1"}
	for i, col := range wantCols {
		if result.Columns[i] != col {
			t.Errorf("column %d = %q, want %q", i, result.Columns[i], col)
		}
	}
}

func TestUnwindWithWhereCollect(t *testing.T) {
	ex := newTestExecutor(t)
	result := run(t, ex, "UNWIND [1, 2, 3] AS x WITH x WHERE x > 1 RETURN collect(x)")
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	got, ok := result.Rows[0][0].([]any)
	if !ok || len(got) != 2 || got[0] != int64(2) || got[1] != int64(3) {
		t.Errorf("collect(x) = %v", result.Rows[0][0])
	}
}

func TestOptionalMatchBindsNulls(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, "CREATE (:Person {name: 'Loner'})")
	result := run(t, ex, "MATCH (p:Person) OPTIONAL MATCH (p)-[:KNOWS]->(q) RETURN p.name, q")
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != "Loner" || result.Rows[0][1] != nil {
		t.Errorf("row = %v", result.Rows[0])
	}
}

func TestWherePredicateNullEliminatesFrame(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, "CREATE (:Person {name: 'NoAge'})")
	result := run(t, ex, "MATCH (p:Person) WHERE p.age > 10 RETURN p.name")
	if len(result.Rows) != 0 {
		t.Errorf("null predicate kept the frame: %v", result.Rows)
	}
}

func TestMergeAtomicPattern(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, "MERGE (u:User {name: 'Ada'}) ON CREATE SET u.created = true ON MATCH SET u.matched = true")
	run(t, ex, "MERGE (u:User {name: 'Ada'}) ON CREATE SET u.created = true ON MATCH SET u.matched = true")

	result := run(t, ex, "MATCH (u:User) RETURN count(*), collect(u.created), collect(u.matched)")
	if result.Rows[0][0] != int64(1) {
		t.Fatalf("user count = %v", result.Rows[0][0])
	}
	created := result.Rows[0][1].([]any)
	matched := result.Rows[0][2].([]any)
	if len(created) != 1 || created[0] != true {
		t.Errorf("ON CREATE effects = %v", created)
	}
	if len(matched) != 1 || matched[0] != true {
		t.Errorf("ON MATCH effects = %v", matched)
	}
}

func TestSetRemoveDelete(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, "CREATE (:Person {name: 'Ann', age: 30})")

	run(t, ex, "MATCH (p:Person {name: 'Ann'}) SET p.age = 31, p:Employee")
	result := run(t, ex, "MATCH (p:Employee) RETURN p.age")
	if len(result.Rows) != 1 || result.Rows[0][0] != int64(31) {
		t.Fatalf("after SET: %v", result.Rows)
	}

	run(t, ex, "MATCH (p:Person) SET p += {city: 'Oslo'}")
	result = run(t, ex, "MATCH (p:Person) RETURN p.city")
	if result.Rows[0][0] != "Oslo" {
		t.Errorf("after SET +=: %v", result.Rows[0][0])
	}

	run(t, ex, "MATCH (p:Person) REMOVE p.age, p:Employee")
	result = run(t, ex, "MATCH (p:Person) RETURN p.age, labels(p)")
	if result.Rows[0][0] != nil {
		t.Errorf("REMOVE left property: %v", result.Rows[0][0])
	}
	labels := result.Rows[0][1].([]any)
	if len(labels) != 1 || labels[0] != "Person" {
		t.Errorf("labels after REMOVE = %v", labels)
	}

	run(t, ex, "MATCH (p:Person) DELETE p")
	result = run(t, ex, "MATCH (n) RETURN count(*)")
	if result.Rows[0][0] != int64(0) {
		t.Errorf("node count after DELETE = %v", result.Rows[0][0])
	}
}

func TestPlainDeleteOnConnectedNodeFails(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, "CREATE (a:A)-[:R]->(b:B)")

	_, err := ex.Execute(context.Background(), "MATCH (a:A) DELETE a", nil)
	if err == nil {
		t.Fatal("DELETE on connected node should fail")
	}
	// the statement rolled back whole: node still present
	result := run(t, ex, "MATCH (a:A) RETURN count(*)")
	if result.Rows[0][0] != int64(1) {
		t.Errorf("node missing after failed DELETE: %v", result.Rows[0][0])
	}

	run(t, ex, "MATCH (a:A) DETACH DELETE a")
	result = run(t, ex, "MATCH (n) RETURN count(*)")
	if result.Rows[0][0] != int64(1) {
		t.Errorf("count after DETACH DELETE = %v", result.Rows[0][0])
	}
}

func TestReturnModifiers(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, "UNWIND [3, 1, 2, 2, null] AS x CREATE (:N {v: x})")

	result := run(t, ex, "MATCH (n:N) RETURN DISTINCT n.v ORDER BY n.v")
	var got []any
	for _, row := range result.Rows {
		got = append(got, row[0])
	}
	// ascending, nulls last, deduplicated
	want := []any{int64(1), int64(2), int64(3), nil}
	if len(got) != len(want) {
		t.Fatalf("DISTINCT ORDER BY = %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("row %d = %v, want %v", i, got[i], want[i])
		}
	}

	result = run(t, ex, "MATCH (n:N) WHERE n.v IS NOT NULL RETURN n.v ORDER BY n.v DESC SKIP 1 LIMIT 2")
	if len(result.Rows) != 2 || result.Rows[0][0] != int64(2) {
		t.Errorf("SKIP/LIMIT = %v", result.Rows)
	}
}

func TestUnionDeduplicates(t *testing.T) {
	ex := newTestExecutor(t)
	result := run(t, ex, "RETURN 1 AS x UNION RETURN 1 AS x UNION RETURN 2 AS x")
	if len(result.Rows) != 2 {
		t.Errorf("UNION rows = %v", result.Rows)
	}
	result = run(t, ex, "RETURN 1 AS x UNION ALL RETURN 1 AS x")
	if len(result.Rows) != 2 {
		t.Errorf("UNION ALL rows = %v", result.Rows)
	}
	if _, err := ex.Execute(context.Background(), "RETURN 1 AS x UNION RETURN 1 AS y", nil); err == nil {
		t.Error("UNION with mismatched columns should fail")
	}
}

func TestAggregates(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, `CREATE (:P {g: 'a', v: 1}), (:P {g: 'a', v: 3}), (:P {g: 'b', v: 5}), (:P {g: 'b'})`)

	result := run(t, ex, "MATCH (p:P) RETURN p.g, count(*), count(p.v), sum(p.v), avg(p.v), min(p.v), max(p.v) ORDER BY p.g")
	if len(result.Rows) != 2 {
		t.Fatalf("groups = %d", len(result.Rows))
	}
	a := result.Rows[0]
	if a[1] != int64(2) || a[2] != int64(2) || a[3] != int64(4) || a[4] != 2.0 || a[5] != int64(1) || a[6] != int64(3) {
		t.Errorf("group a = %v", a)
	}
	b := result.Rows[1]
	// count(*) counts the null-v row; count(p.v) does not
	if b[1] != int64(2) || b[2] != int64(1) || b[3] != int64(5) {
		t.Errorf("group b = %v", b)
	}

	// empty input: count -> 0, collect -> [], sum -> null
	result = run(t, ex, "MATCH (x:Missing) RETURN count(x), collect(x), sum(x.v)")
	row := result.Rows[0]
	if row[0] != int64(0) {
		t.Errorf("count over empty = %v", row[0])
	}
	if list, ok := row[1].([]any); !ok || len(list) != 0 {
		t.Errorf("collect over empty = %v", row[1])
	}
	if row[2] != nil {
		t.Errorf("sum over empty = %v", row[2])
	}

	result = run(t, ex, "UNWIND [1, 2, 2, 3] AS x RETURN count(DISTINCT x)")
	if result.Rows[0][0] != int64(3) {
		t.Errorf("count(DISTINCT) = %v", result.Rows[0][0])
	}

	result = run(t, ex, "UNWIND [2, 4, 4, 4, 5, 5, 7, 9] AS x RETURN stdDevP(x), percentileCont(x, 0.5), percentileDisc(x, 0.5)")
	if result.Rows[0][0] != 2.0 {
		t.Errorf("stdDevP = %v", result.Rows[0][0])
	}
	if result.Rows[0][1] != 4.5 || result.Rows[0][2] != 4.0 {
		t.Errorf("percentiles = %v", result.Rows[0])
	}
}

func TestVariableLengthPatterns(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, `CREATE (a:N {name: 'a'})-[:R]->(b:N {name: 'b'})-[:R]->(c:N {name: 'c'})-[:R]->(d:N {name: 'd'})`)

	result := run(t, ex, "MATCH (a:N {name: 'a'})-[:R*2..3]->(x) RETURN x.name ORDER BY x.name")
	if len(result.Rows) != 2 || result.Rows[0][0] != "c" || result.Rows[1][0] != "d" {
		t.Errorf("*2..3 = %v", result.Rows)
	}

	// rel variable binds the relationship list
	result = run(t, ex, "MATCH (a:N {name: 'a'})-[rs:R*2..2]->(x) RETURN size(rs)")
	if len(result.Rows) != 1 || result.Rows[0][0] != int64(2) {
		t.Errorf("size(rs) = %v", result.Rows)
	}
}

// An unbounded pattern never exceeds the configured hop limit.
func TestVariableLengthHopClamp(t *testing.T) {
	ex := newTestExecutor(t) // MaxHops: 5
	run(t, ex, `CREATE (n0:C {i: 0})-[:R]->(:C {i: 1})-[:R]->(:C {i: 2})-[:R]->(:C {i: 3})-[:R]->(:C {i: 4})-[:R]->(:C {i: 5})-[:R]->(:C {i: 6})-[:R]->(:C {i: 7})`)

	result := run(t, ex, "MATCH (s:C {i: 0})-[rs:R*]->(x) RETURN max(size(rs))")
	if result.Rows[0][0] != int64(5) {
		t.Errorf("max path length = %v, want clamp 5", result.Rows[0][0])
	}

	// explicit bounds are honored exactly, even past the clamp
	result = run(t, ex, "MATCH (s:C {i: 0})-[rs:R*6..7]->(x) RETURN size(rs) ORDER BY size(rs)")
	if len(result.Rows) != 2 || result.Rows[0][0] != int64(6) || result.Rows[1][0] != int64(7) {
		t.Errorf("explicit bounds = %v", result.Rows)
	}
}

func TestShortestPathInMatch(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, `CREATE (a:V {name: 'A'})-[:KNOWS]->(b:V {name: 'B'})-[:KNOWS]->(c:V {name: 'C'})-[:KNOWS]->(a2:X)`)
	run(t, ex, "MATCH (a:V {name: 'A'}), (c:V {name: 'C'}) CREATE (a)-[:SLOW]->(c)")

	result := run(t, ex, `MATCH p = shortestPath((a:V {name: 'A'})-[:KNOWS*]->(c:V {name: 'C'})) RETURN length(p), [n IN nodes(p) | n.name]`)
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != int64(2) {
		t.Errorf("length = %v", result.Rows[0][0])
	}
	names := result.Rows[0][1].([]any)
	if len(names) != 3 || names[0] != "A" || names[2] != "C" {
		t.Errorf("nodes = %v", names)
	}
}

func TestAllShortestPathsInMatch(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, `CREATE (s:D {name: 's'}), (x:D {name: 'x'}), (y:D {name: 'y'}), (t:D {name: 't'})`)
	run(t, ex, `MATCH (s:D {name: 's'}), (x:D {name: 'x'}), (y:D {name: 'y'}), (t:D {name: 't'})
		CREATE (s)-[:E]->(x), (s)-[:E]->(y), (x)-[:E]->(t), (y)-[:E]->(t)`)

	result := run(t, ex, "MATCH p = allShortestPaths((s:D {name: 's'})-[:E*]->(t:D {name: 't'})) RETURN count(p)")
	if result.Rows[0][0] != int64(2) {
		t.Errorf("allShortestPaths count = %v", result.Rows[0][0])
	}
}

func TestPatternComprehensionAndPredicate(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, `CREATE (a:H {name: 'a'})-[:F]->(:H {name: 'b'}), (a)-[:F]->(:H {name: 'c'})`)

	result := run(t, ex, "MATCH (a:H {name: 'a'}) RETURN [(a)-[:F]->(x) | x.name]")
	names := result.Rows[0][0].([]any)
	if len(names) != 2 {
		t.Errorf("pattern comprehension = %v", names)
	}

	result = run(t, ex, "MATCH (n:H) WHERE (n)-[:F]->() RETURN n.name")
	if len(result.Rows) != 1 || result.Rows[0][0] != "a" {
		t.Errorf("pattern predicate = %v", result.Rows)
	}
}

func TestParametersAndCaseInsensitiveKeywords(t *testing.T) {
	ex := newTestExecutor(t)
	result, err := ex.Execute(context.Background(),
		"unwind $xs as x return x + $inc", map[string]any{"xs": []any{1, 2}, "inc": 10})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(result.Rows) != 2 || result.Rows[0][0] != int64(11) {
		t.Errorf("rows = %v", result.Rows)
	}
	if _, err := ex.Execute(context.Background(), "RETURN $missing", nil); err == nil {
		t.Error("missing parameter should error")
	}
}

func TestSchemaClausesThroughCypher(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, "CREATE CONSTRAINT FOR (u:User) REQUIRE u.email IS UNIQUE")
	run(t, ex, "CREATE INDEX FOR (p:Person) ON (p.name)")

	result := run(t, ex, "SHOW INDEXES")
	if len(result.Rows) != 2 {
		t.Fatalf("SHOW INDEXES rows = %v", result.Rows)
	}
	result = run(t, ex, "SHOW CONSTRAINTS")
	if len(result.Rows) != 1 {
		t.Fatalf("SHOW CONSTRAINTS rows = %v", result.Rows)
	}

	run(t, ex, "CREATE (:User {email: 'a@b'})")
	if _, err := ex.Execute(context.Background(), "CREATE (:User {email: 'a@b'})", nil); err == nil {
		t.Error("uniqueness violation should fail")
	}
	// null emails never violate uniqueness
	run(t, ex, "CREATE (:User), (:User)")

	run(t, ex, "DROP INDEX idx_node_Person_name")
	result = run(t, ex, "SHOW INDEXES")
	if len(result.Rows) != 1 {
		t.Errorf("after DROP INDEX: %v", result.Rows)
	}
}

func TestCallProcedures(t *testing.T) {
	ex := newTestExecutor(t)
	run(t, ex, "CREATE (:Person), (:Person), (:Thing)")

	result := run(t, ex, "CALL db.stats()")
	if len(result.Rows) != 1 || result.Rows[0][0] != int64(3) {
		t.Errorf("db.stats = %v", result.Rows)
	}

	result = run(t, ex, "CALL db.stats() YIELD nodes RETURN nodes")
	if result.Rows[0][0] != int64(3) {
		t.Errorf("YIELD nodes = %v", result.Rows)
	}

	if _, err := ex.Execute(context.Background(), "CALL db.stats() YIELD bogus RETURN bogus", nil); err == nil {
		t.Error("unknown YIELD column should be a parse error")
	}
	if _, err := ex.Execute(context.Background(), "CALL no.such.proc()", nil); err == nil {
		t.Error("unknown procedure should fail")
	}
}

func TestApocImportJSON(t *testing.T) {
	ex := newTestExecutor(t)
	dir := t.TempDir()
	path := filepath.Join(dir, "graph.json")
	doc := `{"nodes": [
		{"id": "n1", "labels": ["Person"], "properties": {"name": "Alice"}},
		{"id": "n2", "labels": ["Person"], "properties": {"name": "Bob"}}
	], "relationships": [
		{"label": "KNOWS", "start": {"id": "n1"}, "end": {"id": "n2"}, "properties": {"since": 2020}}
	]}`
	if err := os.WriteFile(path, []byte(doc), 0o644); err != nil {
		t.Fatal(err)
	}

	result := run(t, ex, "CALL apoc.import.json('"+path+"')")
	if result.Rows[0][0] != int64(2) || result.Rows[0][1] != int64(1) {
		t.Errorf("import counts = %v", result.Rows)
	}
	check := run(t, ex, "MATCH (:Person {name: 'Alice'})-[r:KNOWS]->(b) RETURN r.since, b.name")
	if len(check.Rows) != 1 || check.Rows[0][0] != int64(2020) {
		t.Errorf("imported graph = %v", check.Rows)
	}

	// unresolved refs fail the import and roll the statement back
	bad := filepath.Join(dir, "bad.json")
	os.WriteFile(bad, []byte(`[{"type": "relationship", "label": "X", "start": "missing", "end": "missing"}]`), 0o644)
	if _, err := ex.Execute(context.Background(), "CALL apoc.import.json('"+bad+"')", nil); err == nil {
		t.Error("unresolved refs should fail the import")
	}
}

func TestQueryAbortOnSessionClose(t *testing.T) {
	ex := newTestExecutor(t)
	ex.Session().Close()
	if _, err := ex.Execute(context.Background(), "RETURN 1", nil); err == nil {
		t.Error("closed session should abort queries")
	}
}
