package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFulltextTriggersKeepDocumentsCoherent(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	require.NoError(t, sess.ConfigureFulltext(ctx, FulltextConfig{
		Entity: EntityNode, Label: "Doc", Property: "body",
	}))

	doc, err := sess.CreateNode(ctx, []string{"Doc"}, map[string]any{
		"body": "graph databases store relationships natively",
	})
	require.NoError(t, err)
	other, err := sess.CreateNode(ctx, []string{"Doc"}, map[string]any{
		"body": "vector search finds nearest neighbors",
	})
	require.NoError(t, err)

	hits, err := sess.SearchFulltext(ctx, "relationships", 10, EntityNode, FulltextFilter{})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(doc.ID), hits[0].ID)
	assert.GreaterOrEqual(t, hits[0].Score, 0.0)

	// updates rematerialize the document
	_, err = sess.UpdateNodeProperties(ctx, doc.ID, map[string]any{
		"body": "completely different text",
	})
	require.NoError(t, err)
	hits, err = sess.SearchFulltext(ctx, "relationships", 10, EntityNode, FulltextFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)

	// deletes drop the document
	require.NoError(t, sess.DeleteNode(ctx, other.ID))
	hits, err = sess.SearchFulltext(ctx, "neighbors", 10, EntityNode, FulltextFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestFulltextLabelScopedConfig(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	require.NoError(t, sess.ConfigureFulltext(ctx, FulltextConfig{
		Entity: EntityNode, Label: "Article", Property: "title",
	}))

	_, err := sess.CreateNode(ctx, []string{"Article"}, map[string]any{"title": "quantum computing"})
	require.NoError(t, err)
	_, err = sess.CreateNode(ctx, []string{"Note"}, map[string]any{"title": "quantum kettle"})
	require.NoError(t, err)

	hits, err := sess.SearchFulltext(ctx, "quantum", 10, EntityNode, FulltextFilter{})
	require.NoError(t, err)
	// only the Article is indexed
	assert.Len(t, hits, 1)
}

func TestFulltextRebuild(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	// content created before the config exists is picked up by rebuild
	_, err := sess.CreateNode(ctx, []string{"Doc"}, map[string]any{"body": "late indexing"})
	require.NoError(t, err)
	require.NoError(t, sess.ConfigureFulltext(ctx, FulltextConfig{
		Entity: EntityNode, Property: "body",
	}))

	hits, err := sess.SearchFulltext(ctx, "indexing", 10, EntityNode, FulltextFilter{})
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestFulltextPostHocFilters(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	require.NoError(t, sess.ConfigureFulltext(ctx, FulltextConfig{
		Entity: EntityNode, Property: "body",
	}))
	article, err := sess.CreateNode(ctx, []string{"Article"}, map[string]any{
		"body": "shared keyword", "lang": "en",
	})
	require.NoError(t, err)
	_, err = sess.CreateNode(ctx, []string{"Note"}, map[string]any{
		"body": "shared keyword", "lang": "de",
	})
	require.NoError(t, err)

	// unfiltered: both documents match
	hits, err := sess.SearchFulltext(ctx, "shared", 10, EntityNode, FulltextFilter{})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	// label filter applies after scoring
	hits, err = sess.SearchFulltext(ctx, "shared", 10, EntityNode, FulltextFilter{
		Labels: []string{"Article"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(article.ID), hits[0].ID)

	// property-equality filter
	hits, err = sess.SearchFulltext(ctx, "shared", 10, EntityNode, FulltextFilter{
		Properties: map[string]any{"lang": "de"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.NotEqual(t, int64(article.ID), hits[0].ID)

	// label + property together; no match yields no hits
	hits, err = sess.SearchFulltext(ctx, "shared", 10, EntityNode, FulltextFilter{
		Labels:     []string{"Article"},
		Properties: map[string]any{"lang": "de"},
	})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

// The filter never starves the limit: rejected hits do not count against k.
func TestFulltextFilterFillsLimit(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	require.NoError(t, sess.ConfigureFulltext(ctx, FulltextConfig{
		Entity: EntityNode, Property: "body",
	}))
	for i := 0; i < 3; i++ {
		_, err := sess.CreateNode(ctx, []string{"Noise"}, map[string]any{"body": "common term"})
		require.NoError(t, err)
	}
	var want []int64
	for i := 0; i < 2; i++ {
		node, err := sess.CreateNode(ctx, []string{"Signal"}, map[string]any{"body": "common term"})
		require.NoError(t, err)
		want = append(want, int64(node.ID))
	}

	hits, err := sess.SearchFulltext(ctx, "common", 2, EntityNode, FulltextFilter{
		Labels: []string{"Signal"},
	})
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, hit := range hits {
		assert.Contains(t, want, hit.ID)
	}
}

func TestFulltextRelationshipSearch(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	require.NoError(t, sess.ConfigureFulltext(ctx, FulltextConfig{
		Entity: EntityRelationship, Property: "note",
	}))
	a, _ := sess.CreateNode(ctx, nil, nil)
	b, _ := sess.CreateNode(ctx, nil, nil)
	knows, err := sess.CreateRelationship(ctx, a.ID, b.ID, "KNOWS", map[string]any{
		"note": "met at the graph conference",
	})
	require.NoError(t, err)
	_, err = sess.CreateRelationship(ctx, a.ID, b.ID, "LIKES", map[string]any{
		"note": "likes graph posters",
	})
	require.NoError(t, err)

	hits, err := sess.SearchFulltext(ctx, "graph", 10, EntityRelationship, FulltextFilter{})
	require.NoError(t, err)
	assert.Len(t, hits, 2)

	// type filter applies post-hoc
	hits, err = sess.SearchFulltext(ctx, "graph", 10, EntityRelationship, FulltextFilter{
		Type: "KNOWS",
	})
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, int64(knows.ID), hits[0].ID)
	assert.Equal(t, EntityRelationship, hits[0].Entity)

	// deleting the relationship drops its document
	require.NoError(t, sess.DeleteRelationship(ctx, knows.ID))
	hits, err = sess.SearchFulltext(ctx, "conference", 10, EntityRelationship, FulltextFilter{})
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestDumpScriptShape(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	a, _ := sess.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Alice"})
	b, _ := sess.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Bob"})
	_, err := sess.CreateRelationship(ctx, a.ID, b.ID, "KNOWS", map[string]any{"since": int64(2020)})
	require.NoError(t, err)

	var buf testWriter
	require.NoError(t, sess.Dump(ctx, &buf))
	script := buf.String()

	assert.Contains(t, script, "CREATE (n:Person {_dump_id: 1, name: 'Alice'});")
	assert.Contains(t, script, "MATCH (a {_dump_id: 1}), (b {_dump_id: 2}) CREATE (a)-[:KNOWS {since: 2020}]->(b);")
	assert.Contains(t, script, "MATCH (n) REMOVE n._dump_id;")
}

type testWriter struct{ data []byte }

func (w *testWriter) Write(p []byte) (int, error) {
	w.data = append(w.data, p...)
	return len(p), nil
}

func (w *testWriter) String() string { return string(w.data) }
