package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// EntityKind selects between node and relationship scoped schema objects.
type EntityKind string

const (
	EntityNode         EntityKind = "node"
	EntityRelationship EntityKind = "relationship"
)

// ConstraintKind is the constraint family.
type ConstraintKind string

const (
	ConstraintUniqueness ConstraintKind = "uniqueness"
	ConstraintExistence  ConstraintKind = "existence"
	ConstraintType       ConstraintKind = "type"
)

// Scalar type names recognized by type constraints.
var constraintTypes = map[string]bool{
	"STRING": true, "INTEGER": true, "FLOAT": true,
	"BOOLEAN": true, "LIST": true, "MAP": true,
}

// PropertyIndex is index metadata: which (entity, label-or-type, property)
// is indexed, and whether the index also guards uniqueness.
type PropertyIndex struct {
	Name     string
	Entity   EntityKind
	Label    string
	Property string
	Unique   bool
}

// Constraint is constraint metadata. ValueType is set for type constraints
// only.
type Constraint struct {
	Name      string
	Kind      ConstraintKind
	Entity    EntityKind
	Label     string
	Property  string
	ValueType string
}

// Registry holds property-index and constraint metadata. It is loaded at
// open, kept in memory for write-time checks, and persisted to the
// metadata tables. Reads take the shared RWMutex read lock, so they run
// concurrently with each other.
type Registry struct {
	eng *Engine

	mu          sync.RWMutex
	indexes     map[string]PropertyIndex
	constraints map[string]Constraint
}

func newRegistry(e *Engine) *Registry {
	return &Registry{
		eng:         e,
		indexes:     map[string]PropertyIndex{},
		constraints: map[string]Constraint{},
	}
}

func (r *Registry) load(ctx context.Context) error {
	rows, err := r.eng.db.QueryContext(ctx,
		`SELECT name, entity, label, property, is_unique FROM property_indexes`)
	if err != nil {
		return fmt.Errorf("load indexes: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var idx PropertyIndex
		var unique int
		if err := rows.Scan(&idx.Name, &idx.Entity, &idx.Label, &idx.Property, &unique); err != nil {
			return err
		}
		idx.Unique = unique != 0
		r.indexes[idx.Name] = idx
	}
	if err := rows.Err(); err != nil {
		return err
	}
	crows, err := r.eng.db.QueryContext(ctx,
		`SELECT name, kind, entity, label, property, COALESCE(value_type,'') FROM property_constraints`)
	if err != nil {
		return fmt.Errorf("load constraints: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var c Constraint
		if err := crows.Scan(&c.Name, &c.Kind, &c.Entity, &c.Label, &c.Property, &c.ValueType); err != nil {
			return err
		}
		r.constraints[c.Name] = c
	}
	return crows.Err()
}

// DefaultIndexName derives the deterministic auto-generated index name.
func DefaultIndexName(entity EntityKind, label, property string) string {
	return fmt.Sprintf("idx_%s_%s_%s", entity, label, property)
}

// DefaultConstraintName derives the auto-generated constraint name.
func DefaultConstraintName(kind ConstraintKind, entity EntityKind, label, property string) string {
	return fmt.Sprintf("constraint_%s_%s_%s_%s", kind, entity, label, property)
}

// CreateIndex registers a property index. An empty name gets the
// deterministic default. With ifNotExists, re-creating an identical index
// is a no-op; otherwise a duplicate name is an error. A unique index also
// registers the backing uniqueness constraint.
func (s *Session) CreateIndex(ctx context.Context, idx PropertyIndex, ifNotExists bool) error {
	if err := s.check(); err != nil {
		return err
	}
	if idx.Name == "" {
		idx.Name = DefaultIndexName(idx.Entity, idx.Label, idx.Property)
	}
	r := s.eng.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.indexes[idx.Name]; exists {
		if ifNotExists {
			return nil
		}
		return fmt.Errorf("index %q already exists", idx.Name)
	}
	if idx.Unique {
		// Uniqueness is enforced before registration: existing duplicates
		// reject the creation.
		if err := s.checkExistingUnique(ctx, idx); err != nil {
			return err
		}
	}
	if _, err := s.q().ExecContext(ctx,
		`INSERT INTO property_indexes(name, entity, label, property, is_unique) VALUES (?,?,?,?,?)`,
		idx.Name, string(idx.Entity), idx.Label, idx.Property, boolInt(idx.Unique)); err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	r.indexes[idx.Name] = idx
	if idx.Unique {
		c := Constraint{
			Name:     idx.Name,
			Kind:     ConstraintUniqueness,
			Entity:   idx.Entity,
			Label:    idx.Label,
			Property: idx.Property,
		}
		if _, err := s.q().ExecContext(ctx,
			`INSERT OR REPLACE INTO property_constraints(name, kind, entity, label, property, value_type) VALUES (?,?,?,?,?,NULL)`,
			c.Name, string(c.Kind), string(c.Entity), c.Label, c.Property); err != nil {
			return fmt.Errorf("create uniqueness constraint: %w", err)
		}
		r.constraints[c.Name] = c
	}
	return nil
}

// DropIndex removes an index (and its backing uniqueness constraint).
func (s *Session) DropIndex(ctx context.Context, name string, ifExists bool) error {
	if err := s.check(); err != nil {
		return err
	}
	r := s.eng.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	idx, ok := r.indexes[name]
	if !ok {
		if ifExists {
			return nil
		}
		return fmt.Errorf("%w: index %q", ErrIndexUnknown, name)
	}
	if _, err := s.q().ExecContext(ctx, `DELETE FROM property_indexes WHERE name = ?`, name); err != nil {
		return fmt.Errorf("drop index: %w", err)
	}
	delete(r.indexes, name)
	if idx.Unique {
		if _, err := s.q().ExecContext(ctx, `DELETE FROM property_constraints WHERE name = ?`, name); err != nil {
			return fmt.Errorf("drop uniqueness constraint: %w", err)
		}
		delete(r.constraints, name)
	}
	return nil
}

// CreateConstraint registers a constraint. Existing data is validated
// first; a violating store rejects the creation.
func (s *Session) CreateConstraint(ctx context.Context, c Constraint, ifNotExists bool) error {
	if err := s.check(); err != nil {
		return err
	}
	if c.Kind == ConstraintType {
		c.ValueType = strings.ToUpper(c.ValueType)
		if !constraintTypes[c.ValueType] {
			return fmt.Errorf("unknown constraint type %q", c.ValueType)
		}
	}
	if c.Name == "" {
		c.Name = DefaultConstraintName(c.Kind, c.Entity, c.Label, c.Property)
	}
	r := s.eng.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.constraints[c.Name]; exists {
		if ifNotExists {
			return nil
		}
		return fmt.Errorf("constraint %q already exists", c.Name)
	}
	if err := s.checkExistingAgainst(ctx, c); err != nil {
		return err
	}
	var vt any
	if c.ValueType != "" {
		vt = c.ValueType
	}
	if _, err := s.q().ExecContext(ctx,
		`INSERT INTO property_constraints(name, kind, entity, label, property, value_type) VALUES (?,?,?,?,?,?)`,
		c.Name, string(c.Kind), string(c.Entity), c.Label, c.Property, vt); err != nil {
		return fmt.Errorf("create constraint: %w", err)
	}
	r.constraints[c.Name] = c
	return nil
}

// DropConstraint removes a constraint by name.
func (s *Session) DropConstraint(ctx context.Context, name string, ifExists bool) error {
	if err := s.check(); err != nil {
		return err
	}
	r := s.eng.registry
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.constraints[name]; !ok {
		if ifExists {
			return nil
		}
		return fmt.Errorf("%w: constraint %q", ErrIndexUnknown, name)
	}
	if _, err := s.q().ExecContext(ctx, `DELETE FROM property_constraints WHERE name = ?`, name); err != nil {
		return fmt.Errorf("drop constraint: %w", err)
	}
	delete(r.constraints, name)
	// A uniqueness constraint created through a unique index keeps the
	// index row; dropping the constraint downgrades it to plain.
	if idx, ok := r.indexes[name]; ok && idx.Unique {
		idx.Unique = false
		if _, err := s.q().ExecContext(ctx, `UPDATE property_indexes SET is_unique = 0 WHERE name = ?`, name); err != nil {
			return fmt.Errorf("downgrade index: %w", err)
		}
		r.indexes[name] = idx
	}
	return nil
}

// Indexes returns SHOW INDEXES tuples, name-sorted.
func (r *Registry) Indexes() []PropertyIndex {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PropertyIndex, 0, len(r.indexes))
	for _, idx := range r.indexes {
		out = append(out, idx)
	}
	sortIndexes(out)
	return out
}

// Constraints returns SHOW CONSTRAINTS tuples, name-sorted.
func (r *Registry) Constraints() []Constraint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Constraint, 0, len(r.constraints))
	for _, c := range r.constraints {
		out = append(out, c)
	}
	sortConstraints(out)
	return out
}

// constraintsFor returns the constraints scoped to any of the given labels
// (nodes) or the type (relationships).
func (r *Registry) constraintsFor(entity EntityKind, labels []string) []Constraint {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Constraint
	for _, c := range r.constraints {
		if c.Entity != entity {
			continue
		}
		for _, l := range labels {
			if equalFold(c.Label, l) {
				out = append(out, c)
				break
			}
		}
	}
	return out
}

// indexFor finds a property index usable for an exact-match lookup.
func (r *Registry) indexFor(entity EntityKind, labels []string, property string) (PropertyIndex, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, idx := range r.indexes {
		if idx.Entity != entity || idx.Property != property {
			continue
		}
		for _, l := range labels {
			if equalFold(idx.Label, l) {
				return idx, true
			}
		}
	}
	return PropertyIndex{}, false
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func sortIndexes(xs []PropertyIndex) {
	sort.Slice(xs, func(i, j int) bool { return xs[i].Name < xs[j].Name })
}

func sortConstraints(xs []Constraint) {
	sort.Slice(xs, func(i, j int) bool { return xs[i].Name < xs[j].Name })
}
