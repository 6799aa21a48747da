package grafito

import (
	"bytes"
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orneryd/grafito/pkg/cypher"
	"github.com/orneryd/grafito/pkg/search"
	"github.com/orneryd/grafito/pkg/storage"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := Open(MemoryPath, nil)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestEndToEndCreateMatch(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ExecuteCypher(ctx, `CREATE (a:Person {name: 'Alice', age: 30}), (b:Person {name: 'Bob'}),
		(a)-[:KNOWS {since: 2020}]->(b)`, nil)
	require.NoError(t, err)

	result, err := db.ExecuteCypher(ctx, "MATCH (p:Person)-[:KNOWS]->(q) RETURN p.name, q.name, p.age + 1", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, []any{"Alice", "Bob", int64(31)}, result.Rows[0])
}

func TestVectorSearchScenario(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateVectorIndex(ctx, "vecs", 3, "exact", map[string]any{"metric": "l2"}))

	n1, _ := db.CreateNode(ctx, []string{"Item"}, map[string]any{"name": "n1"})
	n2, _ := db.CreateNode(ctx, []string{"Item"}, map[string]any{"name": "n2"})
	n3, _ := db.CreateNode(ctx, []string{"Item"}, map[string]any{"name": "n3"})
	require.NoError(t, db.UpsertVector(ctx, "vecs", n1.ID, []float32{1, 0, 0}))
	require.NoError(t, db.UpsertVector(ctx, "vecs", n2.ID, []float32{0, 1, 0}))
	require.NoError(t, db.UpsertVector(ctx, "vecs", n3.ID, []float32{0.9, 0.1, 0}))

	hits, err := db.SearchVector(ctx, "vecs", []float32{1, 0, 0}, 2, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, n1.ID, hits[0].Node.ID)
	assert.Equal(t, n3.ID, hits[1].Node.ID)

	// dimension mismatch surfaces as an index error
	_, err = db.SearchVector(ctx, "vecs", []float32{1, 0}, 2, SearchOptions{})
	assert.ErrorIs(t, err, search.ErrDimensionMismatch)
	err = db.UpsertVector(ctx, "vecs", n1.ID, []float32{1})
	assert.ErrorIs(t, err, search.ErrDimensionMismatch)

	// unknown index
	_, err = db.SearchVector(ctx, "nope", []float32{1, 0, 0}, 1, SearchOptions{})
	assert.ErrorIs(t, err, storage.ErrIndexUnknown)
}

func TestVectorPreFilter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateVectorIndex(ctx, "vecs", 2, "exact", map[string]any{"metric": "l2"}))
	red, _ := db.CreateNode(ctx, []string{"Item"}, map[string]any{"color": "red"})
	blue, _ := db.CreateNode(ctx, []string{"Item"}, map[string]any{"color": "blue"})
	db.UpsertVector(ctx, "vecs", red.ID, []float32{1, 0})
	db.UpsertVector(ctx, "vecs", blue.ID, []float32{0.99, 0.01})

	hits, err := db.SearchVector(ctx, "vecs", []float32{1, 0}, 1, SearchOptions{
		Labels:     []string{"Item"},
		Properties: map[string]any{"color": "blue"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, blue.ID, hits[0].Node.ID)
}

func TestVectorRerankTopOneMatchesBruteForce(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// approximate backend with rerank over stored embeddings
	require.NoError(t, db.CreateVectorIndex(ctx, "approx", 4, "hnsw", map[string]any{
		"metric": "cosine", "store_embeddings": true,
	}))
	require.NoError(t, db.CreateVectorIndex(ctx, "exact", 4, "exact", map[string]any{
		"metric": "cosine",
	}))

	vectors := [][]float32{
		{1, 0, 0, 0}, {0, 1, 0, 0}, {0.8, 0.2, 0, 0}, {0.6, 0.4, 0, 0}, {0, 0, 1, 0},
	}
	for i, vec := range vectors {
		node, err := db.CreateNode(ctx, []string{"V"}, map[string]any{"i": int64(i)})
		require.NoError(t, err)
		require.NoError(t, db.UpsertVector(ctx, "approx", node.ID, vec))
		require.NoError(t, db.UpsertVector(ctx, "exact", node.ID, vec))
	}
	query := []float32{0.95, 0.05, 0, 0}
	exact, err := db.SearchVector(ctx, "exact", query, 1, SearchOptions{})
	require.NoError(t, err)
	reranked, err := db.SearchVector(ctx, "approx", query, 1, SearchOptions{Rerank: true})
	require.NoError(t, err)
	require.Len(t, reranked, 1)
	assert.Equal(t, exact[0].Node.ID, reranked[0].Node.ID)
}

func TestRerankWithoutStoredEmbeddingsFails(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateVectorIndex(ctx, "plain", 2, "exact", nil))
	n, _ := db.CreateNode(ctx, nil, nil)
	db.UpsertVector(ctx, "plain", n.ID, []float32{1, 0})

	_, err := db.SearchVector(ctx, "plain", []float32{1, 0}, 1, SearchOptions{Rerank: true})
	var cfgErr *cypher.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestDeletedNodesAreTombstoned(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	require.NoError(t, db.CreateVectorIndex(ctx, "vecs", 2, "exact", nil))
	a, _ := db.CreateNode(ctx, nil, nil)
	b, _ := db.CreateNode(ctx, nil, nil)
	db.UpsertVector(ctx, "vecs", a.ID, []float32{1, 0})
	db.UpsertVector(ctx, "vecs", b.ID, []float32{0, 1})

	require.NoError(t, db.DeleteNode(ctx, a.ID))
	hits, err := db.SearchVector(ctx, "vecs", []float32{1, 0}, 2, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, b.ID, hits[0].Node.ID)
}

func TestEmbeddingFunctionUpserts(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	search.RegisterEmbedder("char-count", func(_ context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text)), 1}, nil
	})
	require.NoError(t, db.CreateVectorIndex(ctx, "texts", 2, "exact", map[string]any{
		"embedding_function": "char-count", "metric": "l2",
	}))
	n, _ := db.CreateNode(ctx, nil, map[string]any{"body": "hello"})
	require.NoError(t, db.UpsertText(ctx, "texts", n.ID, "hello"))

	hits, err := db.SearchVectorText(ctx, "texts", "hello", 1, SearchOptions{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, n.ID, hits[0].Node.ID)

	// an index without an embedding function rejects text upserts
	require.NoError(t, db.CreateVectorIndex(ctx, "no-embed", 2, "exact", nil))
	err = db.UpsertText(ctx, "no-embed", n.ID, "hello")
	var cfgErr *cypher.ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestVectorSearchProcedure(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.CreateVectorIndex(ctx, "vecs", 2, "exact", map[string]any{"metric": "l2"}))
	n, _ := db.CreateNode(ctx, []string{"Doc"}, map[string]any{"name": "close"})
	far, _ := db.CreateNode(ctx, []string{"Doc"}, map[string]any{"name": "far"})
	db.UpsertVector(ctx, "vecs", n.ID, []float32{1, 0})
	db.UpsertVector(ctx, "vecs", far.ID, []float32{0, 1})

	result, err := db.ExecuteCypher(ctx,
		"CALL db.vector.search('vecs', [1.0, 0.0], 1) YIELD node, score RETURN node.name, score", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "close", result.Rows[0][0])
	assert.Equal(t, 0.0, result.Rows[0][1])

	// management procedures
	_, err = db.ExecuteCypher(ctx, "CALL db.index.vector.create('more', 4, 'exact')", nil)
	require.NoError(t, err)
	_, err = db.ExecuteCypher(ctx, "CALL db.index.vector.drop('more')", nil)
	require.NoError(t, err)
}

func TestDumpRestoreRoundTrip(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	// 100 nodes, 200 relationships
	var ids []storage.NodeID
	for i := 0; i < 100; i++ {
		label := "Even"
		if i%2 == 1 {
			label = "Odd"
		}
		node, err := db.CreateNode(ctx, []string{"Entity", label}, map[string]any{"i": int64(i)})
		require.NoError(t, err)
		ids = append(ids, node.ID)
	}
	for i := 0; i < 200; i++ {
		_, err := db.CreateRelationship(ctx, ids[i%100], ids[(i*7+3)%100], "LINKS", map[string]any{"n": int64(i)})
		require.NoError(t, err)
	}

	partition := func() map[string]int64 {
		result, err := db.ExecuteCypher(ctx, "MATCH (n) RETURN labels(n), count(*)", nil)
		require.NoError(t, err)
		out := map[string]int64{}
		for _, row := range result.Rows {
			out[fmt.Sprint(row[0])] = row[1].(int64)
		}
		return out
	}
	before := partition()

	var script bytes.Buffer
	require.NoError(t, db.Dump(ctx, &script))
	require.NoError(t, db.Restore(ctx, bytes.NewReader(script.Bytes()), true))

	nodes, rels, err := db.Session().Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(100), nodes)
	assert.Equal(t, int64(200), rels)
	assert.Equal(t, before, partition())

	// no _dump_id residue
	result, err := db.ExecuteCypher(ctx, "MATCH (n) WHERE n._dump_id IS NOT NULL RETURN count(*)", nil)
	require.NoError(t, err)
	assert.Equal(t, int64(0), result.Rows[0][0])
}

func TestFulltextThroughDB(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.ConfigureFulltext(ctx, storage.FulltextConfig{
		Entity: storage.EntityNode, Property: "body",
	}))
	doc, _ := db.CreateNode(ctx, []string{"Doc"}, map[string]any{"body": "sqlite powers embedded graphs"})
	note, _ := db.CreateNode(ctx, []string{"Note"}, map[string]any{"body": "embedded notes elsewhere"})
	_, _ = db.CreateNode(ctx, []string{"Doc"}, map[string]any{"body": "unrelated content"})

	hits, err := db.SearchFulltext(ctx, "embedded", 5, storage.FulltextFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// post-hoc label and property filters
	hits, err = db.SearchFulltext(ctx, "embedded", 5, storage.FulltextFilter{
		Labels: []string{"Doc"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(doc.ID), hits[0].ID)
	hits, err = db.SearchFulltext(ctx, "embedded", 5, storage.FulltextFilter{
		Properties: map[string]any{"body": "embedded notes elsewhere"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(note.ID), hits[0].ID)

	result, err := db.ExecuteCypher(ctx,
		"CALL db.fulltext.search('embedded', 5) YIELD node, score RETURN node.body, score", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 2)
	assert.GreaterOrEqual(t, result.Rows[0][1].(float64), 0.0)

	result, err = db.ExecuteCypher(ctx,
		"CALL db.fulltext.search('embedded', 5, {labels: ['Doc']}) YIELD node RETURN node.body", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "sqlite powers embedded graphs", result.Rows[0][0])
}

func TestFulltextRelationshipsThroughDB(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.ConfigureFulltext(ctx, storage.FulltextConfig{
		Entity: storage.EntityRelationship, Property: "note",
	}))
	a, _ := db.CreateNode(ctx, nil, nil)
	b, _ := db.CreateNode(ctx, nil, nil)
	knows, err := db.CreateRelationship(ctx, a.ID, b.ID, "KNOWS", map[string]any{"note": "graph meetup"})
	require.NoError(t, err)
	_, err = db.CreateRelationship(ctx, a.ID, b.ID, "LIKES", map[string]any{"note": "graph posters"})
	require.NoError(t, err)

	hits, err := db.SearchFulltextRelationships(ctx, "graph", 5, storage.FulltextFilter{Type: "KNOWS"})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(knows.ID), hits[0].ID)

	result, err := db.ExecuteCypher(ctx,
		"CALL db.fulltext.searchRelationships('graph', 5, {type: 'KNOWS'}) YIELD relationship, score RETURN type(relationship), score", nil)
	require.NoError(t, err)
	require.Len(t, result.Rows, 1)
	assert.Equal(t, "KNOWS", result.Rows[0][0])
	assert.GreaterOrEqual(t, result.Rows[0][1].(float64), 0.0)
}

func TestTransactionRollbackDiscardsIdentifiers(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()
	sess := db.Session()

	require.NoError(t, sess.Begin(ctx))
	node, err := db.CreateNode(ctx, []string{"Ghost"}, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Rollback(ctx))

	_, err = db.GetNode(ctx, node.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestBatchImporter(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	ids, err := db.ImportNodes(ctx, []ImportNode{
		{Labels: []string{"Person"}, Properties: map[string]any{"name": "Ada"}},
		{Labels: []string{"Person"}, Properties: map[string]any{"name": "Lin"}},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)

	require.NoError(t, db.ImportRelationships(ctx, ids, []ImportRel{
		{Start: 0, End: 1, Type: "KNOWS"},
	}))
	err = db.ImportRelationships(ctx, ids, []ImportRel{{Start: 0, End: 5, Type: "KNOWS"}})
	assert.Error(t, err)

	rels, err := db.MatchRelationships(ctx, nil, nil, "KNOWS")
	require.NoError(t, err)
	assert.Len(t, rels, 1)
}

func TestQueryEquivalenceAcrossDumpRestore(t *testing.T) {
	db := openTestDB(t)
	ctx := context.Background()

	_, err := db.ExecuteCypher(ctx, `CREATE (a:City {name: 'Oslo'})-[:ROAD {km: 500}]->(b:City {name: 'Bergen'}),
		(b)-[:ROAD {km: 700}]->(:City {name: 'Trondheim'})`, nil)
	require.NoError(t, err)

	query := "MATCH (a:City)-[r:ROAD]->(b:City) RETURN a.name, r.km, b.name ORDER BY a.name"
	before, err := db.ExecuteCypher(ctx, query, nil)
	require.NoError(t, err)

	var script bytes.Buffer
	require.NoError(t, db.Dump(ctx, &script))
	require.NoError(t, db.Restore(ctx, &script, true))

	after, err := db.ExecuteCypher(ctx, query, nil)
	require.NoError(t, err)
	assert.Equal(t, before.Rows, after.Rows)
}
