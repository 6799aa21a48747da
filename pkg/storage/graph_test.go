package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestSession(t *testing.T) *Session {
	t.Helper()
	engine, err := Open(MemoryPath, Options{})
	require.NoError(t, err)
	t.Cleanup(func() { engine.Close() })
	sess := engine.Session()
	t.Cleanup(func() { sess.Close() })
	return sess
}

func TestCreateAndGetNode(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	node, err := sess.CreateNode(ctx, []string{"Person", "User"}, map[string]any{
		"name": "Alice", "age": int64(30),
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"Person", "User"}, node.Labels)
	assert.Equal(t, "Alice", node.Properties["name"])
	assert.Equal(t, int64(30), node.Properties["age"])
	assert.Greater(t, node.Created, 0.0)

	fetched, err := sess.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Equal(t, node.ID, fetched.ID)

	_, err = sess.GetNode(ctx, NodeID(9999))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLabelsAreASet(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	node, err := sess.CreateNode(ctx, []string{"Person"}, nil)
	require.NoError(t, err)

	require.NoError(t, sess.AddLabels(ctx, node.ID, []string{"Person", "person", "Admin"}))
	require.NoError(t, sess.AddLabels(ctx, node.ID, []string{"Admin"}))

	fetched, err := sess.GetNode(ctx, node.ID)
	require.NoError(t, err)
	// case-insensitive: "person" is the same label as "Person"
	assert.Len(t, fetched.Labels, 2)
	assert.True(t, fetched.HasLabel("admin"))

	require.NoError(t, sess.RemoveLabels(ctx, node.ID, []string{"ADMIN"}))
	fetched, err = sess.GetNode(ctx, node.ID)
	require.NoError(t, err)
	assert.Len(t, fetched.Labels, 1)
}

func TestUpdateNodePropertiesNullSemantics(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	node, err := sess.CreateNode(ctx, nil, map[string]any{"a": int64(1), "b": int64(2)})
	require.NoError(t, err)

	updated, err := sess.UpdateNodeProperties(ctx, node.ID, map[string]any{"b": nil, "c": int64(3)})
	require.NoError(t, err)
	// a null value sets the key explicitly, it does not delete it
	v, present := updated.Properties["b"]
	assert.True(t, present)
	assert.Nil(t, v)
	assert.Equal(t, int64(1), updated.Properties["a"])
	assert.Equal(t, int64(3), updated.Properties["c"])
}

func TestMatchNodesLabelAndPropertyFilters(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	alice, err := sess.CreateNode(ctx, []string{"Person", "Admin"}, map[string]any{"name": "Alice"})
	require.NoError(t, err)
	_, err = sess.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Bob"})
	require.NoError(t, err)

	people, err := sess.MatchNodes(ctx, []string{"Person"}, nil)
	require.NoError(t, err)
	assert.Len(t, people, 2)

	admins, err := sess.MatchNodes(ctx, []string{"Person", "Admin"}, nil)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, alice.ID, admins[0].ID)

	named, err := sess.MatchNodes(ctx, []string{"Person"}, map[string]any{"name": "Bob"})
	require.NoError(t, err)
	require.Len(t, named, 1)
	assert.Equal(t, "Bob", named[0].Properties["name"])
}

func TestRelationshipEndpointsMustExist(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	a, err := sess.CreateNode(ctx, nil, nil)
	require.NoError(t, err)

	_, err = sess.CreateRelationship(ctx, a.ID, NodeID(4242), "KNOWS", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = sess.CreateRelationship(ctx, a.ID, a.ID, "", nil)
	assert.Error(t, err)
}

func TestDeleteNodeCascades(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	a, _ := sess.CreateNode(ctx, nil, nil)
	b, _ := sess.CreateNode(ctx, nil, nil)
	rel, err := sess.CreateRelationship(ctx, a.ID, b.ID, "KNOWS", nil)
	require.NoError(t, err)

	require.NoError(t, sess.DeleteNode(ctx, a.ID))

	_, err = sess.GetRelationship(ctx, rel.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	rels, err := sess.AllRelationships(ctx)
	require.NoError(t, err)
	assert.Empty(t, rels)
}

func TestNeighborsDirectionsAndDedup(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	a, _ := sess.CreateNode(ctx, nil, map[string]any{"name": "a"})
	b, _ := sess.CreateNode(ctx, nil, map[string]any{"name": "b"})
	c, _ := sess.CreateNode(ctx, nil, map[string]any{"name": "c"})
	_, err := sess.CreateRelationship(ctx, a.ID, b.ID, "KNOWS", nil)
	require.NoError(t, err)
	_, err = sess.CreateRelationship(ctx, b.ID, a.ID, "KNOWS", nil)
	require.NoError(t, err)
	_, err = sess.CreateRelationship(ctx, a.ID, c.ID, "LIKES", nil)
	require.NoError(t, err)

	out, err := sess.Neighbors(ctx, a.ID, Outgoing)
	require.NoError(t, err)
	assert.Len(t, out, 2)

	in, err := sess.Neighbors(ctx, a.ID, Incoming)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, b.ID, in[0].ID)

	// b appears once in the union despite edges in both directions
	both, err := sess.Neighbors(ctx, a.ID, Both)
	require.NoError(t, err)
	assert.Len(t, both, 2)

	typed, err := sess.Neighbors(ctx, a.ID, Outgoing, "LIKES")
	require.NoError(t, err)
	require.Len(t, typed, 1)
	assert.Equal(t, c.ID, typed[0].ID)
}

func TestUniquenessConstraintAllowsNulls(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	err := sess.CreateIndex(ctx, PropertyIndex{
		Entity: EntityNode, Label: "User", Property: "email", Unique: true,
	}, false)
	require.NoError(t, err)

	_, err = sess.CreateNode(ctx, []string{"User"}, map[string]any{"email": nil})
	require.NoError(t, err)
	_, err = sess.CreateNode(ctx, []string{"User"}, map[string]any{"email": nil})
	require.NoError(t, err)

	_, err = sess.CreateNode(ctx, []string{"User"}, map[string]any{"email": "a@b"})
	require.NoError(t, err)
	_, err = sess.CreateNode(ctx, []string{"User"}, map[string]any{"email": "a@b"})
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)
	assert.Equal(t, "uniqueness", violation.Kind)
}

func TestTypeConstraintRequiresPresence(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	err := sess.CreateConstraint(ctx, Constraint{
		Kind: ConstraintType, Entity: EntityNode,
		Label: "Person", Property: "age", ValueType: "INTEGER",
	}, false)
	require.NoError(t, err)

	_, err = sess.CreateNode(ctx, []string{"Person"}, map[string]any{"age": int64(30)})
	require.NoError(t, err)

	_, err = sess.CreateNode(ctx, []string{"Person"}, nil)
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)

	_, err = sess.CreateNode(ctx, []string{"Person"}, map[string]any{"age": "thirty"})
	require.ErrorAs(t, err, &violation)
}

func TestConstraintCreationRejectsViolatingData(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	_, err := sess.CreateNode(ctx, []string{"User"}, map[string]any{"email": "dup"})
	require.NoError(t, err)
	_, err = sess.CreateNode(ctx, []string{"User"}, map[string]any{"email": "dup"})
	require.NoError(t, err)

	err = sess.CreateIndex(ctx, PropertyIndex{
		Entity: EntityNode, Label: "User", Property: "email", Unique: true,
	}, false)
	var violation *ConstraintViolationError
	require.ErrorAs(t, err, &violation)

	// the rejected constraint is not registered
	assert.Empty(t, sess.Registry().Constraints())
}

func TestIndexRegistry(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	require.NoError(t, sess.CreateIndex(ctx, PropertyIndex{
		Entity: EntityNode, Label: "Person", Property: "name",
	}, false))
	// idempotent with IF NOT EXISTS
	require.NoError(t, sess.CreateIndex(ctx, PropertyIndex{
		Entity: EntityNode, Label: "Person", Property: "name",
	}, true))
	// duplicate without IF NOT EXISTS fails
	err := sess.CreateIndex(ctx, PropertyIndex{
		Entity: EntityNode, Label: "Person", Property: "name",
	}, false)
	assert.Error(t, err)

	indexes := sess.Registry().Indexes()
	require.Len(t, indexes, 1)
	assert.Equal(t, "idx_node_Person_name", indexes[0].Name)

	require.NoError(t, sess.DropIndex(ctx, "idx_node_Person_name", false))
	assert.ErrorIs(t, sess.DropIndex(ctx, "idx_node_Person_name", false), ErrIndexUnknown)
	require.NoError(t, sess.DropIndex(ctx, "idx_node_Person_name", true))
}

func TestTransactionScopes(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()

	// rollback discards the write
	require.NoError(t, sess.Begin(ctx))
	_, err := sess.CreateNode(ctx, []string{"Temp"}, nil)
	require.NoError(t, err)
	require.NoError(t, sess.Rollback(ctx))
	nodes, err := sess.MatchNodes(ctx, []string{"Temp"}, nil)
	require.NoError(t, err)
	assert.Empty(t, nodes)

	// nested scope failure rolls back to the savepoint only
	err = sess.WithTransaction(ctx, func(ctx context.Context) error {
		if _, err := sess.CreateNode(ctx, []string{"Outer"}, nil); err != nil {
			return err
		}
		inner := sess.WithTransaction(ctx, func(ctx context.Context) error {
			if _, err := sess.CreateNode(ctx, []string{"Inner"}, nil); err != nil {
				return err
			}
			return errors.New("boom")
		})
		assert.Error(t, inner)
		return nil
	})
	require.NoError(t, err)

	outer, _ := sess.MatchNodes(ctx, []string{"Outer"}, nil)
	inner, _ := sess.MatchNodes(ctx, []string{"Inner"}, nil)
	assert.Len(t, outer, 1)
	assert.Empty(t, inner)

	// protocol misuse
	var txErr *TransactionError
	assert.ErrorAs(t, sess.Commit(ctx), &txErr)
}

func TestSessionCloseInvalidates(t *testing.T) {
	sess := openTestSession(t)
	ctx := context.Background()
	require.NoError(t, sess.Close())
	_, err := sess.CreateNode(ctx, nil, nil)
	var txErr *TransactionError
	assert.ErrorAs(t, err, &txErr)
}
