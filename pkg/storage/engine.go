package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Options tune the embedded store at open time.
type Options struct {
	// JournalMode is the SQLite journal mode. Defaults to WAL.
	JournalMode string
	// BusyTimeoutMS is the writer-lock wait in milliseconds. Defaults to 5000.
	BusyTimeoutMS int
}

// MemoryPath is the in-memory store sentinel.
const MemoryPath = ":memory:"

// Engine owns the embedded store connection pool and the schema registry.
// It is safe for concurrent use; writes are serialized by SQLite's writer
// lock.
type Engine struct {
	db   *sql.DB
	path string

	mu     sync.Mutex
	closed bool

	registry *Registry
}

// Open opens (creating if needed) the store at path and applies the schema.
// Pass MemoryPath for an in-memory database.
func Open(path string, opts Options) (*Engine, error) {
	if opts.JournalMode == "" {
		opts.JournalMode = "WAL"
	}
	if opts.BusyTimeoutMS == 0 {
		opts.BusyTimeoutMS = 5000
	}
	dsn := path
	if path == MemoryPath {
		// A named shared-cache memory database: every connection in this
		// pool sees one database, and separate Opens stay isolated.
		dsn = fmt.Sprintf("file:grafito-%s?mode=memory&cache=shared", uuid.NewString())
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if path == MemoryPath {
		// An in-memory database vanishes when its last connection closes.
		db.SetMaxIdleConns(1)
		db.SetMaxOpenConns(1)
	}
	ctx := context.Background()
	pragmas := []string{
		fmt.Sprintf("PRAGMA journal_mode = %s", opts.JournalMode),
		fmt.Sprintf("PRAGMA busy_timeout = %d", opts.BusyTimeoutMS),
		"PRAGMA foreign_keys = ON",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			db.Close()
			return nil, fmt.Errorf("apply %s: %w", p, err)
		}
	}
	if _, err := db.ExecContext(ctx, schemaDDL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	e := &Engine{db: db, path: path}
	e.registry = newRegistry(e)
	if err := e.registry.load(ctx); err != nil {
		db.Close()
		return nil, err
	}
	if err := e.refreshFulltextTriggers(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return e, nil
}

// Path returns the filesystem path the store was opened with.
func (e *Engine) Path() string { return e.path }

// Registry returns the property-index and constraint registry.
func (e *Engine) Registry() *Registry { return e.registry }

// Close releases the store. Open sessions fail afterwards.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil
	}
	e.closed = true
	return e.db.Close()
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

// CreateURIIndex builds a plain SQL index over the uri column of the
// given entity table. Idempotent.
func (s *Session) CreateURIIndex(ctx context.Context, kind EntityKind) error {
	if err := s.check(); err != nil {
		return err
	}
	var table string
	switch kind {
	case EntityNode:
		table = "nodes"
	case EntityRelationship:
		table = "relationships"
	default:
		return fmt.Errorf("unknown entity kind %q", kind)
	}
	_, err := s.q().ExecContext(ctx,
		fmt.Sprintf("CREATE INDEX IF NOT EXISTS idx_%s_uri ON %s(uri)", table, table))
	return err
}
