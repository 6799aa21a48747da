// Package grafito provides the embedded Grafito database API.
//
// Grafito is a single-node property graph layered on SQLite: a directed,
// labeled, attributed multigraph with JSON-typed properties, queried
// through a Cypher-like language, programmatic graph primitives, and
// similarity search over per-node vector embeddings.
//
// Example usage:
//
//	db, err := grafito.Open("./graph.db", nil)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	// Programmatic primitives
//	alice, _ := db.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Alice"})
//	bob, _ := db.CreateNode(ctx, []string{"Person"}, map[string]any{"name": "Bob"})
//	db.CreateRelationship(ctx, alice.ID, bob.ID, "KNOWS", map[string]any{"since": 2020})
//
//	// Cypher
//	result, _ := db.ExecuteCypher(ctx,
//		"MATCH (p:Person)-[:KNOWS]->(q) RETURN p.name, q.name", nil)
//	for _, row := range result.Rows {
//		fmt.Println(row)
//	}
//
//	// Vector search
//	db.CreateVectorIndex(ctx, "people", 3, "exact", map[string]any{"metric": "l2"})
//	db.UpsertVector(ctx, "people", alice.ID, []float32{1, 0, 0})
//	hits, _ := db.SearchVector(ctx, "people", []float32{1, 0, 0}, 1, grafito.SearchOptions{})
package grafito

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/orneryd/grafito/pkg/config"
	"github.com/orneryd/grafito/pkg/cypher"
	"github.com/orneryd/grafito/pkg/storage"
)

// DB is an open Grafito database. The embedded API runs on a default
// session; callers needing isolation open their own sessions from the
// engine.
type DB struct {
	engine  *storage.Engine
	cfg     config.Config
	procs   *cypher.ProcedureRegistry
	vectors *VectorManager

	sess *storage.Session
	exec *cypher.Executor
}

// MemoryPath opens an in-memory database.
const MemoryPath = storage.MemoryPath

// Open opens (creating if needed) the database at path. A nil cfg uses
// DefaultConfig.
func Open(path string, cfg *config.Config) (*DB, error) {
	conf := config.DefaultConfig()
	if cfg != nil {
		conf = *cfg
	}
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	engine, err := storage.Open(path, storage.Options{
		JournalMode:   conf.JournalMode,
		BusyTimeoutMS: conf.BusyTimeoutMS,
	})
	if err != nil {
		return nil, err
	}
	db := &DB{
		engine: engine,
		cfg:    conf,
		procs:  cypher.NewProcedureRegistry(),
		sess:   engine.Session(),
	}
	db.exec = cypher.NewExecutor(db.sess, db.procs, cypher.Config{
		MaxHops:     conf.CypherMaxHops,
		DefaultTopK: conf.DefaultTopK,
	})
	db.vectors = newVectorManager(db)
	if err := db.vectors.loadAll(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	db.registerVectorProcedures()
	return db, nil
}

// Close releases the database.
func (db *DB) Close() error {
	if db.sess != nil {
		db.sess.Close()
	}
	return db.engine.Close()
}

// Engine exposes the storage engine, e.g. for opening extra sessions.
func (db *DB) Engine() *storage.Engine { return db.engine }

// Session is the default session the embedded API runs on.
func (db *DB) Session() *storage.Session { return db.sess }

// Config returns the open-time configuration.
func (db *DB) Config() config.Config { return db.cfg }

// Procedures exposes the procedure registry for custom registrations.
func (db *DB) Procedures() *cypher.ProcedureRegistry { return db.procs }

// ExecuteCypher parses and runs one statement on the default session.
func (db *DB) ExecuteCypher(ctx context.Context, query string, params map[string]any) (*cypher.Result, error) {
	return db.exec.Execute(ctx, query, params)
}

// WithTransaction runs fn inside a transaction scope on the default
// session; nested calls use savepoints.
func (db *DB) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return db.sess.WithTransaction(ctx, fn)
}

// --- graph primitives (delegating to the default session) ---

// CreateNode inserts a node with the given labels and properties.
func (db *DB) CreateNode(ctx context.Context, labels []string, props map[string]any) (*storage.Node, error) {
	return db.sess.CreateNode(ctx, labels, props)
}

// GetNode returns a node, or storage.ErrNotFound.
func (db *DB) GetNode(ctx context.Context, id storage.NodeID) (*storage.Node, error) {
	return db.sess.GetNode(ctx, id)
}

// MatchNodes returns nodes bearing every label whose properties equal the
// filters.
func (db *DB) MatchNodes(ctx context.Context, labels []string, props map[string]any) ([]*storage.Node, error) {
	return db.sess.MatchNodes(ctx, labels, props)
}

// UpdateNodeProperties merges props into a node; nil values set explicit
// nulls.
func (db *DB) UpdateNodeProperties(ctx context.Context, id storage.NodeID, props map[string]any) (*storage.Node, error) {
	return db.sess.UpdateNodeProperties(ctx, id, props)
}

// AddLabels attaches labels (idempotent).
func (db *DB) AddLabels(ctx context.Context, id storage.NodeID, labels []string) error {
	return db.sess.AddLabels(ctx, id, labels)
}

// RemoveLabels detaches labels (idempotent).
func (db *DB) RemoveLabels(ctx context.Context, id storage.NodeID, labels []string) error {
	return db.sess.RemoveLabels(ctx, id, labels)
}

// DeleteNode removes a node and every incident relationship.
func (db *DB) DeleteNode(ctx context.Context, id storage.NodeID) error {
	if err := db.sess.DeleteNode(ctx, id); err != nil {
		return err
	}
	db.vectors.removeNode(ctx, id)
	return nil
}

// CreateRelationship inserts a directed, typed edge between existing
// nodes.
func (db *DB) CreateRelationship(ctx context.Context, source, target storage.NodeID, relType string, props map[string]any) (*storage.Relationship, error) {
	return db.sess.CreateRelationship(ctx, source, target, relType, props)
}

// GetRelationship returns a relationship, or storage.ErrNotFound.
func (db *DB) GetRelationship(ctx context.Context, id storage.RelID) (*storage.Relationship, error) {
	return db.sess.GetRelationship(ctx, id)
}

// MatchRelationships filters by source, target and type.
func (db *DB) MatchRelationships(ctx context.Context, source, target *storage.NodeID, relType string) ([]*storage.Relationship, error) {
	return db.sess.MatchRelationships(ctx, source, target, relType)
}

// DeleteRelationship removes a relationship.
func (db *DB) DeleteRelationship(ctx context.Context, id storage.RelID) error {
	return db.sess.DeleteRelationship(ctx, id)
}

// Neighbors returns nodes adjacent to id; Both returns the deduplicated
// union.
func (db *DB) Neighbors(ctx context.Context, id storage.NodeID, dir storage.Direction, relTypes ...string) ([]*storage.Node, error) {
	return db.sess.Neighbors(ctx, id, dir, relTypes...)
}

// FindShortestPath runs a BFS between two nodes. Direction defaults to
// outgoing; pass storage.Both for bidirectional edges.
func (db *DB) FindShortestPath(ctx context.Context, source, target storage.NodeID, dir storage.Direction) (*storage.Path, error) {
	return db.sess.ShortestPath(ctx, source, target, dir, nil, db.cfg.CypherMaxHops)
}

// FindPath returns any simple path of length at most maxDepth, or nil.
// find_path(a, a, d) yields the single-node path [a].
func (db *DB) FindPath(ctx context.Context, source, target storage.NodeID, maxDepth int) (*storage.Path, error) {
	return db.sess.FindPath(ctx, source, target, storage.Outgoing, nil, maxDepth)
}

// ConfigureFulltext registers an (entity, label, property) triple for
// full-text search and rebuilds the affected documents.
func (db *DB) ConfigureFulltext(ctx context.Context, cfg storage.FulltextConfig) error {
	return db.sess.ConfigureFulltext(ctx, cfg)
}

// SearchFulltext runs a BM25 query over indexed node text. The filter's
// labels and property-equality checks apply post-hoc, after scoring.
func (db *DB) SearchFulltext(ctx context.Context, query string, k int, filter storage.FulltextFilter) ([]storage.FulltextHit, error) {
	if k <= 0 {
		k = db.cfg.DefaultTopK
	}
	return db.sess.SearchFulltext(ctx, query, k, storage.EntityNode, filter)
}

// SearchFulltextRelationships runs a BM25 query over indexed relationship
// text; the filter's Type and property checks apply post-hoc.
func (db *DB) SearchFulltextRelationships(ctx context.Context, query string, k int, filter storage.FulltextFilter) ([]storage.FulltextHit, error) {
	if k <= 0 {
		k = db.cfg.DefaultTopK
	}
	return db.sess.SearchFulltext(ctx, query, k, storage.EntityRelationship, filter)
}

// --- dump / restore ---

// Dump writes the database as a Cypher script (see storage.Session.Dump).
func (db *DB) Dump(ctx context.Context, w io.Writer) error {
	return db.sess.Dump(ctx, w)
}

// Restore executes a dump script. With clearExisting the current content
// is removed first. The whole restore is one transaction.
func (db *DB) Restore(ctx context.Context, r io.Reader, clearExisting bool) error {
	statements, err := readStatements(r)
	if err != nil {
		return err
	}
	return db.sess.WithTransaction(ctx, func(ctx context.Context) error {
		if clearExisting {
			if err := db.sess.Clear(ctx); err != nil {
				return err
			}
		}
		for _, stmt := range statements {
			if _, err := db.exec.Execute(ctx, stmt, nil); err != nil {
				return fmt.Errorf("restore statement %q: %w", truncate(stmt, 60), err)
			}
		}
		return nil
	})
}

// readStatements splits a dump script into statements. The dump format
// emits one statement per line, semicolon-terminated.
func readStatements(r io.Reader) ([]string, error) {
	var out []string
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	var pending strings.Builder
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		pending.WriteString(line)
		if strings.HasSuffix(line, ";") {
			stmt := strings.TrimSuffix(pending.String(), ";")
			pending.Reset()
			if strings.TrimSpace(stmt) != "" {
				out = append(out, stmt)
			}
		} else {
			pending.WriteString("\n")
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if rest := strings.TrimSpace(pending.String()); rest != "" {
		out = append(out, rest)
	}
	return out, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
