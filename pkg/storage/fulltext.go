package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Full-text search over configured (entity, label-or-type, property)
// triples. Content lives in the fts_documents FTS5 virtual table; triggers
// on nodes and relationships keep it synchronized with every mutation, and
// label changes re-touch the node (touchNodeDocument) to fire them. The triggers read fts_config at fire time, so configuring a
// new triple only requires a rebuild, not new DDL.

// A document is the space-joined text of every configured property that
// applies to the entity. The label filter is empty-string ('') for
// config rows that apply regardless of label.
const ftsTriggerDDL = `
CREATE TRIGGER IF NOT EXISTS trg_fts_nodes_ins AFTER INSERT ON nodes BEGIN
    INSERT INTO fts_documents(entity, entity_id, content)
    SELECT 'node', NEW.id,
           group_concat(json_extract(NEW.properties, '$.' || fc.property), ' ')
      FROM fts_config fc
     WHERE fc.entity = 'node'
       AND (fc.label = '' OR EXISTS (
             SELECT 1 FROM node_labels nl JOIN labels l ON l.id = nl.label_id
              WHERE nl.node_id = NEW.id AND l.name = fc.label COLLATE NOCASE))
       AND json_extract(NEW.properties, '$.' || fc.property) IS NOT NULL
    HAVING COUNT(*) > 0;
END;

CREATE TRIGGER IF NOT EXISTS trg_fts_nodes_upd AFTER UPDATE OF properties ON nodes BEGIN
    DELETE FROM fts_documents WHERE entity = 'node' AND entity_id = NEW.id;
    INSERT INTO fts_documents(entity, entity_id, content)
    SELECT 'node', NEW.id,
           group_concat(json_extract(NEW.properties, '$.' || fc.property), ' ')
      FROM fts_config fc
     WHERE fc.entity = 'node'
       AND (fc.label = '' OR EXISTS (
             SELECT 1 FROM node_labels nl JOIN labels l ON l.id = nl.label_id
              WHERE nl.node_id = NEW.id AND l.name = fc.label COLLATE NOCASE))
       AND json_extract(NEW.properties, '$.' || fc.property) IS NOT NULL
    HAVING COUNT(*) > 0;
END;

CREATE TRIGGER IF NOT EXISTS trg_fts_nodes_del AFTER DELETE ON nodes BEGIN
    DELETE FROM fts_documents WHERE entity = 'node' AND entity_id = OLD.id;
END;

CREATE TRIGGER IF NOT EXISTS trg_fts_rels_ins AFTER INSERT ON relationships BEGIN
    INSERT INTO fts_documents(entity, entity_id, content)
    SELECT 'relationship', NEW.id,
           group_concat(json_extract(NEW.properties, '$.' || fc.property), ' ')
      FROM fts_config fc
     WHERE fc.entity = 'relationship'
       AND (fc.label = '' OR fc.label = NEW.type)
       AND json_extract(NEW.properties, '$.' || fc.property) IS NOT NULL
    HAVING COUNT(*) > 0;
END;

CREATE TRIGGER IF NOT EXISTS trg_fts_rels_upd AFTER UPDATE OF properties ON relationships BEGIN
    DELETE FROM fts_documents WHERE entity = 'relationship' AND entity_id = NEW.id;
    INSERT INTO fts_documents(entity, entity_id, content)
    SELECT 'relationship', NEW.id,
           group_concat(json_extract(NEW.properties, '$.' || fc.property), ' ')
      FROM fts_config fc
     WHERE fc.entity = 'relationship'
       AND (fc.label = '' OR fc.label = NEW.type)
       AND json_extract(NEW.properties, '$.' || fc.property) IS NOT NULL
    HAVING COUNT(*) > 0;
END;

CREATE TRIGGER IF NOT EXISTS trg_fts_rels_del AFTER DELETE ON relationships BEGIN
    DELETE FROM fts_documents WHERE entity = 'relationship' AND entity_id = OLD.id;
END;
`

func (e *Engine) refreshFulltextTriggers(ctx context.Context) error {
	if _, err := e.db.ExecContext(ctx, ftsTriggerDDL); err != nil {
		return fmt.Errorf("fulltext triggers: %w", err)
	}
	return nil
}

// FulltextConfig is one configured (entity, label-or-type, property)
// triple. An empty Label applies to every label/type.
type FulltextConfig struct {
	Entity   EntityKind
	Label    string
	Property string
	Weight   float64
}

// ConfigureFulltext registers a triple and rematerializes the affected
// documents.
func (s *Session) ConfigureFulltext(ctx context.Context, cfg FulltextConfig) error {
	if err := s.check(); err != nil {
		return err
	}
	if cfg.Weight == 0 {
		cfg.Weight = 1.0
	}
	return s.autoTx(ctx, func(ctx context.Context) error {
		if _, err := s.q().ExecContext(ctx,
			`INSERT OR REPLACE INTO fts_config(entity, label, property, weight) VALUES (?,?,?,?)`,
			string(cfg.Entity), cfg.Label, cfg.Property, cfg.Weight); err != nil {
			return fmt.Errorf("configure fulltext: %w", err)
		}
		return s.rebuildFulltextLocked(ctx)
	})
}

// FulltextConfigs lists the configured triples.
func (s *Session) FulltextConfigs(ctx context.Context) ([]FulltextConfig, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	rows, err := s.q().QueryContext(ctx,
		`SELECT entity, label, property, weight FROM fts_config ORDER BY entity, label, property`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []FulltextConfig
	for rows.Next() {
		var cfg FulltextConfig
		if err := rows.Scan(&cfg.Entity, &cfg.Label, &cfg.Property, &cfg.Weight); err != nil {
			return nil, err
		}
		out = append(out, cfg)
	}
	return out, rows.Err()
}

// RebuildFulltext drops and repopulates every document from the current
// configuration.
func (s *Session) RebuildFulltext(ctx context.Context) error {
	if err := s.check(); err != nil {
		return err
	}
	return s.autoTx(ctx, s.rebuildFulltextLocked)
}

func (s *Session) rebuildFulltextLocked(ctx context.Context) error {
	if _, err := s.q().ExecContext(ctx, `DELETE FROM fts_documents`); err != nil {
		return fmt.Errorf("clear fulltext: %w", err)
	}
	// Repopulate by re-touching every row; the update triggers rebuild the
	// documents from fts_config.
	if _, err := s.q().ExecContext(ctx, `UPDATE nodes SET properties = properties`); err != nil {
		return fmt.Errorf("rebuild node documents: %w", err)
	}
	if _, err := s.q().ExecContext(ctx, `UPDATE relationships SET properties = properties`); err != nil {
		return fmt.Errorf("rebuild relationship documents: %w", err)
	}
	return nil
}

// touchNodeDocument rematerializes one node's document after a label
// change (label-scoped config can change the document without a property
// write).
func (s *Session) touchNodeDocument(ctx context.Context, id NodeID) error {
	_, err := s.q().ExecContext(ctx,
		`UPDATE nodes SET properties = properties WHERE id = ?`, int64(id))
	return err
}

// FulltextHit is one search result. Score is a non-negative similarity;
// higher is better.
type FulltextHit struct {
	Entity EntityKind
	ID     int64
	Score  float64
}

// FulltextFilter restricts hits after scoring. Labels apply to node hits
// (AND semantics), Type to relationship hits, Properties to both (exact
// equality).
type FulltextFilter struct {
	Labels     []string
	Type       string
	Properties map[string]any
}

func (f FulltextFilter) empty() bool {
	return len(f.Labels) == 0 && f.Type == "" && len(f.Properties) == 0
}

// SearchFulltext runs a BM25 match. SQLite's bm25() is smaller-is-better
// and usually negative; the negation makes it a similarity, floored at 0
// so callers can treat scores as non-negative weights. The filter is
// applied post-hoc: hits stream out in score order and ones failing the
// label/type/property checks are dropped before the limit counts.
func (s *Session) SearchFulltext(ctx context.Context, query string, limit int, entity EntityKind, filter FulltextFilter) ([]FulltextHit, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 10
	}
	sqlQuery := `SELECT entity, entity_id, bm25(fts_documents) FROM fts_documents
	              WHERE fts_documents MATCH ?`
	args := []any{ftsQuote(query)}
	if entity != "" {
		sqlQuery += ` AND entity = ?`
		args = append(args, string(entity))
	}
	sqlQuery += ` ORDER BY bm25(fts_documents)`
	// the SQL limit only applies when no post-hoc filter can reject hits
	if filter.empty() {
		sqlQuery += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.q().QueryContext(ctx, sqlQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("fulltext search: %w", err)
	}
	var scored []FulltextHit
	for rows.Next() {
		var hit FulltextHit
		var raw float64
		if err := rows.Scan(&hit.Entity, &hit.ID, &raw); err != nil {
			rows.Close()
			return nil, err
		}
		hit.Score = -raw
		if hit.Score < 0 {
			hit.Score = 0
		}
		scored = append(scored, hit)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	var out []FulltextHit
	for _, hit := range scored {
		if len(out) == limit {
			break
		}
		keep, err := s.fulltextHitMatches(ctx, hit, filter)
		if err != nil {
			return nil, err
		}
		if keep {
			out = append(out, hit)
		}
	}
	return out, nil
}

// fulltextHitMatches hydrates the hit's entity and applies the filter.
// Hits whose entity has vanished are dropped.
func (s *Session) fulltextHitMatches(ctx context.Context, hit FulltextHit, filter FulltextFilter) (bool, error) {
	if filter.empty() {
		return true, nil
	}
	switch hit.Entity {
	case EntityNode:
		if filter.Type != "" {
			return false, nil
		}
		node, err := s.GetNode(ctx, NodeID(hit.ID))
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		for _, label := range filter.Labels {
			if !node.HasLabel(label) {
				return false, nil
			}
		}
		return propsMatch(node.Properties, filter.Properties), nil
	case EntityRelationship:
		if len(filter.Labels) > 0 {
			return false, nil
		}
		rel, err := s.GetRelationship(ctx, RelID(hit.ID))
		if errors.Is(err, ErrNotFound) {
			return false, nil
		}
		if err != nil {
			return false, err
		}
		if filter.Type != "" && rel.Type != filter.Type {
			return false, nil
		}
		return propsMatch(rel.Properties, filter.Properties), nil
	default:
		return false, nil
	}
}

// ftsQuote wraps each term in double quotes so user text is matched as
// terms, never interpreted as FTS5 query syntax.
func ftsQuote(query string) string {
	terms := strings.Fields(query)
	for i, t := range terms {
		terms[i] = `"` + strings.ReplaceAll(t, `"`, `""`) + `"`
	}
	return strings.Join(terms, " ")
}
