package storage

// Schema DDL. Executed idempotently at open. The relationship table carries
// ON DELETE CASCADE on both endpoints so deleting a node removes every
// incident relationship in the same statement; (source,type) and
// (target,type) indexes back the directional neighbor queries.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS nodes (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    created    REAL NOT NULL DEFAULT (julianday('now')),
    uri        TEXT,
    properties TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS labels (
    id   INTEGER PRIMARY KEY AUTOINCREMENT,
    name TEXT NOT NULL UNIQUE COLLATE NOCASE
);

CREATE TABLE IF NOT EXISTS node_labels (
    node_id  INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    label_id INTEGER NOT NULL REFERENCES labels(id) ON DELETE CASCADE,
    PRIMARY KEY (node_id, label_id)
);
CREATE INDEX IF NOT EXISTS idx_node_labels_label ON node_labels(label_id);

CREATE TABLE IF NOT EXISTS relationships (
    id         INTEGER PRIMARY KEY AUTOINCREMENT,
    source     INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    target     INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    type       TEXT NOT NULL,
    created    REAL NOT NULL DEFAULT (julianday('now')),
    uri        TEXT,
    properties TEXT NOT NULL DEFAULT '{}'
);
CREATE INDEX IF NOT EXISTS idx_rel_source_type ON relationships(source, type);
CREATE INDEX IF NOT EXISTS idx_rel_target_type ON relationships(target, type);

CREATE TABLE IF NOT EXISTS property_indexes (
    name      TEXT PRIMARY KEY,
    entity    TEXT NOT NULL CHECK (entity IN ('node','relationship')),
    label     TEXT NOT NULL,
    property  TEXT NOT NULL,
    is_unique INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS property_constraints (
    name       TEXT PRIMARY KEY,
    kind       TEXT NOT NULL CHECK (kind IN ('uniqueness','existence','type')),
    entity     TEXT NOT NULL CHECK (entity IN ('node','relationship')),
    label      TEXT NOT NULL,
    property   TEXT NOT NULL,
    value_type TEXT
);

CREATE TABLE IF NOT EXISTS vector_indexes (
    name      TEXT PRIMARY KEY,
    dimension INTEGER NOT NULL,
    backend   TEXT NOT NULL,
    method    TEXT NOT NULL DEFAULT 'flat',
    options   TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS vector_entries (
    index_name TEXT NOT NULL REFERENCES vector_indexes(name) ON DELETE CASCADE,
    node_id    INTEGER NOT NULL REFERENCES nodes(id) ON DELETE CASCADE,
    embedding  TEXT NOT NULL,
    PRIMARY KEY (index_name, node_id)
);

CREATE TABLE IF NOT EXISTS fts_config (
    entity   TEXT NOT NULL CHECK (entity IN ('node','relationship')),
    label    TEXT NOT NULL DEFAULT '',
    property TEXT NOT NULL,
    weight   REAL NOT NULL DEFAULT 1.0,
    PRIMARY KEY (entity, label, property)
);

CREATE VIRTUAL TABLE IF NOT EXISTS fts_documents USING fts5(
    entity UNINDEXED,
    entity_id UNINDEXED,
    content
);
`
