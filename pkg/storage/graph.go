package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Graph primitives. Every mutation participates in the session's open
// transaction; without one, the primitive runs in a transaction of its own
// that commits when it returns. Constraints are checked against the
// post-write state before anything lands.

// autoTx runs fn inside the open transaction, or wraps it in one.
func (s *Session) autoTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.tx != nil {
		return fn(ctx)
	}
	return s.WithTransaction(ctx, fn)
}

// CreateNode inserts a node, interning any new labels.
func (s *Session) CreateNode(ctx context.Context, labels []string, props map[string]any) (*Node, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if props == nil {
		props = map[string]any{}
	}
	var node *Node
	err := s.autoTx(ctx, func(ctx context.Context) error {
		if err := s.validateNodeWrite(ctx, 0, labels, props); err != nil {
			return err
		}
		encoded, err := EncodeProperties(props)
		if err != nil {
			return err
		}
		res, err := s.q().ExecContext(ctx,
			`INSERT INTO nodes(properties) VALUES (?)`, encoded)
		if err != nil {
			return fmt.Errorf("create node: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		if err := s.attachLabels(ctx, NodeID(id), labels); err != nil {
			return err
		}
		node, err = s.GetNode(ctx, NodeID(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// GetNode returns the node, or ErrNotFound.
func (s *Session) GetNode(ctx context.Context, id NodeID) (*Node, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	row := s.q().QueryRowContext(ctx,
		`SELECT id, created, COALESCE(uri,''), properties FROM nodes WHERE id = ?`, int64(id))
	node, err := scanNode(row)
	if err != nil {
		return nil, err
	}
	node.Labels, err = s.nodeLabels(ctx, id)
	return node, err
}

// MatchNodes returns nodes bearing every requested label whose properties
// equal the given filters. A property index on (label, property) narrows
// the candidate set in SQL; otherwise candidates come from the label join
// (or a full scan) and filters apply after decoding.
func (s *Session) MatchNodes(ctx context.Context, labels []string, props map[string]any) ([]*Node, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	query := `SELECT n.id, n.created, COALESCE(n.uri,''), n.properties FROM nodes n`
	var args []any
	var where []string
	for i, label := range labels {
		alias := fmt.Sprintf("nl%d", i)
		query += fmt.Sprintf(
			` JOIN node_labels %s ON %s.node_id = n.id JOIN labels l%d ON l%d.id = %s.label_id`,
			alias, alias, i, i, alias)
		where = append(where, fmt.Sprintf("l%d.name = ? COLLATE NOCASE", i))
		args = append(args, label)
	}
	// Push scalar equality down when an index covers it. The pushed filter
	// is re-checked after decoding, so pushdown is an optimization only.
	for prop, val := range props {
		if _, ok := s.eng.registry.indexFor(EntityNode, labels, prop); !ok {
			continue
		}
		switch val.(type) {
		case string, int64, float64, bool:
			where = append(where, "json_extract(n.properties, '$.' || ?) = ?")
			args = append(args, prop, val)
		}
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY n.id"
	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("match nodes: %w", err)
	}
	defer rows.Close()
	var out []*Node
	for rows.Next() {
		node, err := scanNodeRows(rows)
		if err != nil {
			return nil, err
		}
		if !propsMatch(node.Properties, props) {
			continue
		}
		out = append(out, node)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for _, n := range out {
		if n.Labels, err = s.nodeLabels(ctx, n.ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// UpdateNodeProperties merges props into the node's property map. A nil
// value sets the key to null explicitly; it does not delete the key.
func (s *Session) UpdateNodeProperties(ctx context.Context, id NodeID, props map[string]any) (*Node, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var node *Node
	err := s.autoTx(ctx, func(ctx context.Context) error {
		current, err := s.GetNode(ctx, id)
		if err != nil {
			return err
		}
		merged := make(map[string]any, len(current.Properties)+len(props))
		for k, v := range current.Properties {
			merged[k] = v
		}
		for k, v := range props {
			merged[k] = v
		}
		if err := s.validateNodeWrite(ctx, id, current.Labels, merged); err != nil {
			return err
		}
		encoded, err := EncodeProperties(merged)
		if err != nil {
			return err
		}
		if _, err := s.q().ExecContext(ctx,
			`UPDATE nodes SET properties = ? WHERE id = ?`, encoded, int64(id)); err != nil {
			return fmt.Errorf("update node: %w", err)
		}
		node, err = s.GetNode(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// SetNodeProperties replaces the node's property map wholesale.
func (s *Session) SetNodeProperties(ctx context.Context, id NodeID, props map[string]any) (*Node, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if props == nil {
		props = map[string]any{}
	}
	var node *Node
	err := s.autoTx(ctx, func(ctx context.Context) error {
		current, err := s.GetNode(ctx, id)
		if err != nil {
			return err
		}
		if err := s.validateNodeWrite(ctx, id, current.Labels, props); err != nil {
			return err
		}
		encoded, err := EncodeProperties(props)
		if err != nil {
			return err
		}
		if _, err := s.q().ExecContext(ctx,
			`UPDATE nodes SET properties = ? WHERE id = ?`, encoded, int64(id)); err != nil {
			return fmt.Errorf("set node properties: %w", err)
		}
		node, err = s.GetNode(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return node, nil
}

// AddLabels attaches labels to the node. Adding a label the node already
// carries is a no-op; labels form a set.
func (s *Session) AddLabels(ctx context.Context, id NodeID, labels []string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.autoTx(ctx, func(ctx context.Context) error {
		current, err := s.GetNode(ctx, id)
		if err != nil {
			return err
		}
		merged := append(append([]string{}, current.Labels...), labels...)
		if err := s.validateNodeWrite(ctx, id, merged, current.Properties); err != nil {
			return err
		}
		return s.attachLabels(ctx, id, labels)
	})
}

// RemoveLabels detaches labels; absent labels are ignored.
func (s *Session) RemoveLabels(ctx context.Context, id NodeID, labels []string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.autoTx(ctx, func(ctx context.Context) error {
		if _, err := s.GetNode(ctx, id); err != nil {
			return err
		}
		for _, label := range labels {
			if _, err := s.q().ExecContext(ctx,
				`DELETE FROM node_labels WHERE node_id = ?
				   AND label_id = (SELECT id FROM labels WHERE name = ? COLLATE NOCASE)`,
				int64(id), label); err != nil {
				return fmt.Errorf("remove label %q: %w", label, err)
			}
		}
		return s.touchNodeDocument(ctx, id)
	})
}

// DeleteNode removes the node; every incident relationship cascades away
// with it.
func (s *Session) DeleteNode(ctx context.Context, id NodeID) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.autoTx(ctx, func(ctx context.Context) error {
		res, err := s.q().ExecContext(ctx, `DELETE FROM nodes WHERE id = ?`, int64(id))
		if err != nil {
			return fmt.Errorf("delete node: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: node %d", ErrNotFound, id)
		}
		return nil
	})
}

// RelationshipCountFor returns the number of relationships incident to the
// node in either direction.
func (s *Session) RelationshipCountFor(ctx context.Context, id NodeID) (int, error) {
	if err := s.check(); err != nil {
		return 0, err
	}
	var n int
	err := s.q().QueryRowContext(ctx,
		`SELECT COUNT(*) FROM relationships WHERE source = ? OR target = ?`,
		int64(id), int64(id)).Scan(&n)
	return n, err
}

// CreateRelationship inserts a directed, typed edge. Both endpoints must
// exist.
func (s *Session) CreateRelationship(ctx context.Context, source, target NodeID, relType string, props map[string]any) (*Relationship, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if relType == "" {
		return nil, errors.New("relationship type is required")
	}
	if props == nil {
		props = map[string]any{}
	}
	var rel *Relationship
	err := s.autoTx(ctx, func(ctx context.Context) error {
		for _, end := range []NodeID{source, target} {
			if _, err := s.GetNode(ctx, end); err != nil {
				return fmt.Errorf("relationship endpoint: %w", err)
			}
		}
		if err := s.validateRelWrite(ctx, 0, relType, props); err != nil {
			return err
		}
		encoded, err := EncodeProperties(props)
		if err != nil {
			return err
		}
		res, err := s.q().ExecContext(ctx,
			`INSERT INTO relationships(source, target, type, properties) VALUES (?,?,?,?)`,
			int64(source), int64(target), relType, encoded)
		if err != nil {
			return fmt.Errorf("create relationship: %w", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return err
		}
		rel, err = s.GetRelationship(ctx, RelID(id))
		return err
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// GetRelationship returns the relationship, or ErrNotFound.
func (s *Session) GetRelationship(ctx context.Context, id RelID) (*Relationship, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	row := s.q().QueryRowContext(ctx,
		`SELECT id, source, target, type, created, COALESCE(uri,''), properties
		   FROM relationships WHERE id = ?`, int64(id))
	return scanRelationship(row)
}

// MatchRelationships filters by any combination of source, target and type.
func (s *Session) MatchRelationships(ctx context.Context, source, target *NodeID, relType string) ([]*Relationship, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	query := `SELECT id, source, target, type, created, COALESCE(uri,''), properties FROM relationships`
	var where []string
	var args []any
	if source != nil {
		where = append(where, "source = ?")
		args = append(args, int64(*source))
	}
	if target != nil {
		where = append(where, "target = ?")
		args = append(args, int64(*target))
	}
	if relType != "" {
		where = append(where, "type = ?")
		args = append(args, relType)
	}
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY id"
	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("match relationships: %w", err)
	}
	defer rows.Close()
	var out []*Relationship
	for rows.Next() {
		rel, err := scanRelationshipRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rel)
	}
	return out, rows.Err()
}

// UpdateRelationshipProperties merges props into the relationship.
func (s *Session) UpdateRelationshipProperties(ctx context.Context, id RelID, props map[string]any) (*Relationship, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	var rel *Relationship
	err := s.autoTx(ctx, func(ctx context.Context) error {
		current, err := s.GetRelationship(ctx, id)
		if err != nil {
			return err
		}
		merged := make(map[string]any, len(current.Properties)+len(props))
		for k, v := range current.Properties {
			merged[k] = v
		}
		for k, v := range props {
			merged[k] = v
		}
		if err := s.validateRelWrite(ctx, id, current.Type, merged); err != nil {
			return err
		}
		encoded, err := EncodeProperties(merged)
		if err != nil {
			return err
		}
		if _, err := s.q().ExecContext(ctx,
			`UPDATE relationships SET properties = ? WHERE id = ?`, encoded, int64(id)); err != nil {
			return fmt.Errorf("update relationship: %w", err)
		}
		rel, err = s.GetRelationship(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return rel, nil
}

// DeleteRelationship removes the relationship.
func (s *Session) DeleteRelationship(ctx context.Context, id RelID) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.autoTx(ctx, func(ctx context.Context) error {
		res, err := s.q().ExecContext(ctx, `DELETE FROM relationships WHERE id = ?`, int64(id))
		if err != nil {
			return fmt.Errorf("delete relationship: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: relationship %d", ErrNotFound, id)
		}
		return nil
	})
}

// Neighbors returns nodes adjacent to id. Both directions return the
// deduplicated union, ordered by first discovery.
func (s *Session) Neighbors(ctx context.Context, id NodeID, dir Direction, relTypes ...string) ([]*Node, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	ids, err := s.NeighborIDs(ctx, id, dir, relTypes...)
	if err != nil {
		return nil, err
	}
	out := make([]*Node, 0, len(ids))
	for _, nid := range ids {
		node, err := s.GetNode(ctx, nid)
		if err != nil {
			return nil, err
		}
		out = append(out, node)
	}
	return out, nil
}

// NeighborIDs is Neighbors without hydrating the node records; the
// traversal kernel runs on IDs only.
func (s *Session) NeighborIDs(ctx context.Context, id NodeID, dir Direction, relTypes ...string) ([]NodeID, error) {
	var clauses []string
	var args []any
	typeFilter := ""
	if len(relTypes) > 0 {
		typeFilter = " AND type IN (?" + strings.Repeat(",?", len(relTypes)-1) + ")"
	}
	if dir == Outgoing || dir == Both {
		clauses = append(clauses, `SELECT id AS rel_id, target AS nbr FROM relationships WHERE source = ?`+typeFilter)
		args = append(args, int64(id))
		for _, t := range relTypes {
			args = append(args, t)
		}
	}
	if dir == Incoming || dir == Both {
		clauses = append(clauses, `SELECT id AS rel_id, source AS nbr FROM relationships WHERE target = ?`+typeFilter)
		args = append(args, int64(id))
		for _, t := range relTypes {
			args = append(args, t)
		}
	}
	// Insertion order: neighbors surface in relationship-creation order.
	query := strings.Join(clauses, " UNION ALL ") + " ORDER BY rel_id"
	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("neighbors: %w", err)
	}
	defer rows.Close()
	seen := map[NodeID]bool{}
	var out []NodeID
	for rows.Next() {
		var relID, nbr int64
		if err := rows.Scan(&relID, &nbr); err != nil {
			return nil, err
		}
		if seen[NodeID(nbr)] {
			continue
		}
		seen[NodeID(nbr)] = true
		out = append(out, NodeID(nbr))
	}
	return out, rows.Err()
}

// AllNodes streams every node, ID order.
func (s *Session) AllNodes(ctx context.Context) ([]*Node, error) {
	return s.MatchNodes(ctx, nil, nil)
}

// AllRelationships streams every relationship, ID order.
func (s *Session) AllRelationships(ctx context.Context) ([]*Relationship, error) {
	return s.MatchRelationships(ctx, nil, nil, "")
}

// Counts returns (nodes, relationships).
func (s *Session) Counts(ctx context.Context) (int64, int64, error) {
	if err := s.check(); err != nil {
		return 0, 0, err
	}
	var nodes, rels int64
	if err := s.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM nodes`).Scan(&nodes); err != nil {
		return 0, 0, err
	}
	if err := s.q().QueryRowContext(ctx, `SELECT COUNT(*) FROM relationships`).Scan(&rels); err != nil {
		return 0, 0, err
	}
	return nodes, rels, nil
}

// LabelHistogram returns label -> node count, for db.stats.
func (s *Session) LabelHistogram(ctx context.Context) (map[string]int64, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.q().QueryContext(ctx,
		`SELECT l.name, COUNT(*) FROM labels l JOIN node_labels nl ON nl.label_id = l.id GROUP BY l.id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := map[string]int64{}
	for rows.Next() {
		var name string
		var n int64
		if err := rows.Scan(&name, &n); err != nil {
			return nil, err
		}
		out[name] = n
	}
	return out, rows.Err()
}

// SetNodeURI assigns the optional URI string.
func (s *Session) SetNodeURI(ctx context.Context, id NodeID, uri string) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.autoTx(ctx, func(ctx context.Context) error {
		res, err := s.q().ExecContext(ctx, `UPDATE nodes SET uri = ? WHERE id = ?`, uri, int64(id))
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: node %d", ErrNotFound, id)
		}
		return nil
	})
}

// --- helpers ---

func (s *Session) attachLabels(ctx context.Context, id NodeID, labels []string) error {
	for _, label := range labels {
		if label == "" {
			continue
		}
		if _, err := s.q().ExecContext(ctx,
			`INSERT OR IGNORE INTO labels(name) VALUES (?)`, label); err != nil {
			return fmt.Errorf("intern label %q: %w", label, err)
		}
		if _, err := s.q().ExecContext(ctx,
			`INSERT OR IGNORE INTO node_labels(node_id, label_id)
			 SELECT ?, id FROM labels WHERE name = ? COLLATE NOCASE`,
			int64(id), label); err != nil {
			return fmt.Errorf("attach label %q: %w", label, err)
		}
	}
	return s.touchNodeDocument(ctx, id)
}

func (s *Session) nodeLabels(ctx context.Context, id NodeID) ([]string, error) {
	rows, err := s.q().QueryContext(ctx,
		`SELECT l.name FROM labels l JOIN node_labels nl ON nl.label_id = l.id
		  WHERE nl.node_id = ? ORDER BY l.name`, int64(id))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var labels []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		labels = append(labels, name)
	}
	sort.Strings(labels)
	return labels, rows.Err()
}

type rowScanner interface{ Scan(dest ...any) error }

func scanNode(row rowScanner) (*Node, error) {
	var node Node
	var id int64
	var propText string
	err := row.Scan(&id, &node.Created, &node.URI, &propText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: node", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	node.ID = NodeID(id)
	node.Properties, err = DecodeProperties(propText)
	return &node, err
}

func scanNodeRows(rows *sql.Rows) (*Node, error) {
	return scanNode(rows)
}

func scanRelationship(row rowScanner) (*Relationship, error) {
	var rel Relationship
	var id, source, target int64
	var propText string
	err := row.Scan(&id, &source, &target, &rel.Type, &rel.Created, &rel.URI, &propText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: relationship", ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	rel.ID = RelID(id)
	rel.Source = NodeID(source)
	rel.Target = NodeID(target)
	rel.Properties, err = DecodeProperties(propText)
	return &rel, err
}

func scanRelationshipRows(rows *sql.Rows) (*Relationship, error) {
	return scanRelationship(rows)
}

func propsMatch(props, filters map[string]any) bool {
	for k, want := range filters {
		got, ok := props[k]
		if !ok || !PropertyEqual(got, want) {
			return false
		}
	}
	return true
}
