package cypher

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/orneryd/grafito/pkg/storage"
)

// Config carries the executor's open-time knobs.
type Config struct {
	// MaxHops clamps unbounded variable-length patterns.
	MaxHops int
	// DefaultTopK is the default k for vector search procedures.
	DefaultTopK int
}

// DefaultConfig returns the standard limits.
func DefaultConfig() Config {
	return Config{MaxHops: 15, DefaultTopK: 10}
}

// Stats counts a statement's side effects.
type Stats struct {
	NodesCreated         int
	NodesDeleted         int
	RelationshipsCreated int
	RelationshipsDeleted int
	PropertiesSet        int
	LabelsAdded          int
	LabelsRemoved        int
}

// Result is a statement's output table.
type Result struct {
	Columns []string
	Rows    [][]any
	Stats   Stats
}

// Executor walks statement ASTs against a storage session. One executor
// serves one session; it is not safe for concurrent use.
type Executor struct {
	sess   *storage.Session
	procs  *ProcedureRegistry
	cfg    Config
	params map[string]any
	stats  *Stats
}

// NewExecutor builds an executor over a session. procs may be nil for a
// registry with only the built-in procedures.
func NewExecutor(sess *storage.Session, procs *ProcedureRegistry, cfg Config) *Executor {
	if procs == nil {
		procs = NewProcedureRegistry()
	}
	if cfg.MaxHops <= 0 {
		cfg.MaxHops = DefaultConfig().MaxHops
	}
	if cfg.DefaultTopK <= 0 {
		cfg.DefaultTopK = DefaultConfig().DefaultTopK
	}
	return &Executor{sess: sess, procs: procs, cfg: cfg}
}

// Session exposes the underlying storage session to procedures.
func (ex *Executor) Session() *storage.Session { return ex.sess }

// Config exposes the executor limits to procedures.
func (ex *Executor) Config() Config { return ex.cfg }

// Execute parses and runs one statement. The whole statement is atomic:
// outside an explicit transaction it runs in its own, and any error rolls
// back every write it made.
func (ex *Executor) Execute(ctx context.Context, query string, params map[string]any) (*Result, error) {
	stmt, err := Parse(query)
	if err != nil {
		return nil, err
	}
	ex.params = map[string]any{}
	for k, v := range params {
		ex.params[k] = normalizeValue(v)
	}
	var result *Result
	run := func(ctx context.Context) error {
		var err error
		result, err = ex.executeStatement(ctx, stmt)
		return err
	}
	if ex.sess.InTransaction() {
		err = run(ctx)
	} else {
		err = ex.sess.WithTransaction(ctx, run)
	}
	if err != nil {
		return nil, err
	}
	return result, nil
}

// checkAbort is consulted at clause boundaries and enumeration steps;
// closing the owning session cancels its context and aborts the query.
func (ex *Executor) checkAbort(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ex.sess.Context().Err()
}

func (ex *Executor) executeStatement(ctx context.Context, stmt *Statement) (*Result, error) {
	var combined *Result
	for i, part := range stmt.Parts {
		result, err := ex.executeSingle(ctx, part)
		if err != nil {
			return nil, err
		}
		if combined == nil {
			combined = result
			continue
		}
		if len(combined.Columns) != len(result.Columns) {
			return nil, &ParseError{Msg: "UNION requires the same column names on both sides"}
		}
		for j := range combined.Columns {
			if combined.Columns[j] != result.Columns[j] {
				return nil, &ParseError{Msg: "UNION requires the same column names on both sides"}
			}
		}
		combined.Rows = append(combined.Rows, result.Rows...)
		combined.Stats = addStats(combined.Stats, result.Stats)
		if !stmt.UnionAll[i-1] {
			combined.Rows = dedupRows(combined.Rows)
		}
	}
	return combined, nil
}

func addStats(a, b Stats) Stats {
	a.NodesCreated += b.NodesCreated
	a.NodesDeleted += b.NodesDeleted
	a.RelationshipsCreated += b.RelationshipsCreated
	a.RelationshipsDeleted += b.RelationshipsDeleted
	a.PropertiesSet += b.PropertiesSet
	a.LabelsAdded += b.LabelsAdded
	a.LabelsRemoved += b.LabelsRemoved
	return a
}

func dedupRows(rows [][]any) [][]any {
	seen := map[string]bool{}
	out := rows[:0]
	for _, row := range rows {
		key := valueKey([]any(row))
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, row)
	}
	return out
}

func (ex *Executor) executeSingle(ctx context.Context, q *SingleQuery) (*Result, error) {
	stats := Stats{}
	ex.stats = &stats
	frames := []*Frame{newFrame()}
	var result *Result
	for _, clause := range q.Clauses {
		if err := ex.checkAbort(ctx); err != nil {
			return nil, err
		}
		if result != nil {
			return nil, &ParseError{Msg: "RETURN must be the final clause"}
		}
		var err error
		switch c := clause.(type) {
		case *MatchClause:
			frames, err = ex.execMatch(ctx, c, frames)
		case *CreateClause:
			frames, err = ex.execCreate(ctx, c, frames)
		case *MergeClause:
			frames, err = ex.execMerge(ctx, c, frames)
		case *SetClause:
			err = ex.execSetItems(ctx, c.Items, frames)
		case *RemoveClause:
			err = ex.execRemove(ctx, c, frames)
		case *DeleteClause:
			frames, err = ex.execDelete(ctx, c, frames)
		case *WithClause:
			frames, err = ex.execWith(ctx, c, frames)
		case *UnwindClause:
			frames, err = ex.execUnwind(ctx, c, frames)
		case *ReturnClause:
			result, err = ex.execReturn(ctx, c, frames)
		case *CallClause:
			frames, result, err = ex.execCall(ctx, c, frames, len(q.Clauses) == 1)
		case *ShowClause:
			result, err = ex.execShow(ctx, c)
		case *CreateIndexClause:
			err = ex.execCreateIndex(ctx, c)
		case *DropIndexClause:
			err = ex.sess.DropIndex(ctx, c.Name, c.IfExists)
		case *CreateConstraintClause:
			err = ex.execCreateConstraint(ctx, c)
		case *DropConstraintClause:
			err = ex.sess.DropConstraint(ctx, c.Name, c.IfExists)
		default:
			err = execErrorf("unsupported clause %T", clause)
		}
		if err != nil {
			return nil, err
		}
	}
	if result == nil {
		result = &Result{Stats: stats}
	} else {
		result.Stats = stats
	}
	return result, nil
}

func (ex *Executor) nodeByID(ctx context.Context, id storage.NodeID) (*storage.Node, error) {
	node, err := ex.sess.GetNode(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	return node, err
}

// --- projection machinery (WITH / RETURN) ---

type projectedRow struct {
	values []any
	// orderFrame evaluates ORDER BY: the projected aliases plus (for
	// row-wise projections) the source bindings.
	orderFrame *Frame
	group      []*Frame
}

func (ex *Executor) project(ctx context.Context, proj *Projection, frames []*Frame) ([]string, []projectedRow, error) {
	items := proj.Items
	if proj.Star {
		vars := []string{}
		if len(frames) > 0 {
			vars = frames[0].keys
		}
		items = nil
		for _, name := range vars {
			items = append(items, ProjectionItem{Expr: &Variable{Name: name}, Alias: name})
		}
		items = append(items, proj.Items...)
	}
	if len(items) == 0 {
		return nil, nil, &ParseError{Msg: "projection requires at least one item"}
	}
	columns := make([]string, len(items))
	for i, item := range items {
		columns[i] = item.Alias
	}
	hasAgg := false
	for _, item := range items {
		if containsAggregate(item.Expr) {
			hasAgg = true
			break
		}
	}
	var rows []projectedRow
	if hasAgg {
		groups, order := ex.groupFrames(ctx, items, frames)
		if len(order) == 0 && allAggregates(items) {
			// aggregates over empty input produce one row
			order = []string{""}
			groups[""] = []*Frame{}
		}
		for _, key := range order {
			group := groups[key]
			rep := newFrame()
			if len(group) > 0 {
				rep = group[0]
			}
			env := &evalEnv{ctx: ctx, ex: ex, frame: rep, group: group}
			row := projectedRow{values: make([]any, len(items)), group: group}
			orderFrame := rep.clone()
			for i, item := range items {
				v, err := env.eval(item.Expr)
				if err != nil {
					return nil, nil, err
				}
				row.values[i] = v
				orderFrame.set(item.Alias, v)
			}
			row.orderFrame = orderFrame
			rows = append(rows, row)
		}
	} else {
		for _, frame := range frames {
			if err := ex.checkAbort(ctx); err != nil {
				return nil, nil, err
			}
			env := &evalEnv{ctx: ctx, ex: ex, frame: frame}
			row := projectedRow{values: make([]any, len(items))}
			orderFrame := frame.clone()
			for i, item := range items {
				v, err := env.eval(item.Expr)
				if err != nil {
					return nil, nil, err
				}
				row.values[i] = v
				orderFrame.set(item.Alias, v)
			}
			row.orderFrame = orderFrame
			rows = append(rows, row)
		}
	}
	if proj.Distinct {
		seen := map[string]bool{}
		kept := rows[:0]
		for _, row := range rows {
			key := valueKey(row.values)
			if seen[key] {
				continue
			}
			seen[key] = true
			kept = append(kept, row)
		}
		rows = kept
	}
	if len(proj.OrderBy) > 0 {
		var sortErr error
		sort.SliceStable(rows, func(i, j int) bool {
			for _, item := range proj.OrderBy {
				vi, err := ex.orderValue(ctx, item.Expr, rows[i])
				if err != nil {
					sortErr = err
					return false
				}
				vj, err := ex.orderValue(ctx, item.Expr, rows[j])
				if err != nil {
					sortErr = err
					return false
				}
				c := orderCompare(vi, vj)
				if c == 0 {
					continue
				}
				if item.Desc {
					return c > 0
				}
				return c < 0
			}
			return false
		})
		if sortErr != nil {
			return nil, nil, sortErr
		}
	}
	skip, limit, err := ex.pagination(ctx, proj)
	if err != nil {
		return nil, nil, err
	}
	if skip > 0 {
		if skip >= int64(len(rows)) {
			rows = nil
		} else {
			rows = rows[skip:]
		}
	}
	if limit >= 0 && int64(len(rows)) > limit {
		rows = rows[:limit]
	}
	return columns, rows, nil
}

func allAggregates(items []ProjectionItem) bool {
	for _, item := range items {
		if !containsAggregate(item.Expr) {
			return false
		}
	}
	return true
}

func (ex *Executor) orderValue(ctx context.Context, expr Expr, row projectedRow) (any, error) {
	env := &evalEnv{ctx: ctx, ex: ex, frame: row.orderFrame, group: row.group}
	return env.eval(expr)
}

func (ex *Executor) pagination(ctx context.Context, proj *Projection) (int64, int64, error) {
	skip := int64(0)
	limit := int64(-1)
	env := &evalEnv{ctx: ctx, ex: ex, frame: newFrame()}
	if proj.Skip != nil {
		v, err := env.eval(proj.Skip)
		if err != nil {
			return 0, 0, err
		}
		n, ok := isInteger(v)
		if !ok || n < 0 {
			return 0, 0, execErrorf("SKIP requires a non-negative integer")
		}
		skip = n
	}
	if proj.Limit != nil {
		v, err := env.eval(proj.Limit)
		if err != nil {
			return 0, 0, err
		}
		n, ok := isInteger(v)
		if !ok || n < 0 {
			return 0, 0, execErrorf("LIMIT requires a non-negative integer")
		}
		limit = n
	}
	return skip, limit, nil
}

// groupFrames buckets frames by the values of the non-aggregate items.
func (ex *Executor) groupFrames(ctx context.Context, items []ProjectionItem, frames []*Frame) (map[string][]*Frame, []string) {
	groups := map[string][]*Frame{}
	var order []string
	for _, frame := range frames {
		env := &evalEnv{ctx: ctx, ex: ex, frame: frame}
		var keyParts []string
		for _, item := range items {
			if containsAggregate(item.Expr) {
				continue
			}
			v, err := env.eval(item.Expr)
			if err != nil {
				// grouping-key errors surface during the main evaluation
				keyParts = append(keyParts, "err")
				continue
			}
			keyParts = append(keyParts, valueKey(v))
		}
		key := strings.Join(keyParts, "|")
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], frame)
	}
	return groups, order
}

func (ex *Executor) execWith(ctx context.Context, c *WithClause, frames []*Frame) ([]*Frame, error) {
	columns, rows, err := ex.project(ctx, c.Projection, frames)
	if err != nil {
		return nil, err
	}
	out := make([]*Frame, 0, len(rows))
	for _, row := range rows {
		frame := newFrame()
		for i, col := range columns {
			frame.set(col, row.values[i])
		}
		if c.Where != nil {
			env := &evalEnv{ctx: ctx, ex: ex, frame: frame, group: row.group}
			t, err := env.evalBool(c.Where)
			if err != nil {
				return nil, err
			}
			if t != True {
				continue
			}
		}
		out = append(out, frame)
	}
	return out, nil
}

func (ex *Executor) execReturn(ctx context.Context, c *ReturnClause, frames []*Frame) (*Result, error) {
	columns, rows, err := ex.project(ctx, c.Projection, frames)
	if err != nil {
		return nil, err
	}
	result := &Result{Columns: columns, Rows: make([][]any, len(rows))}
	for i, row := range rows {
		result.Rows[i] = row.values
	}
	return result, nil
}

func (ex *Executor) execUnwind(ctx context.Context, c *UnwindClause, frames []*Frame) ([]*Frame, error) {
	var out []*Frame
	for _, frame := range frames {
		env := &evalEnv{ctx: ctx, ex: ex, frame: frame}
		v, err := env.eval(c.Expr)
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		list, ok := v.([]any)
		if !ok {
			return nil, execErrorf("UNWIND requires a list, got %s", valueTypeName(v))
		}
		for _, item := range list {
			next := frame.clone()
			next.set(c.Alias, item)
			out = append(out, next)
		}
	}
	return out, nil
}

// --- mutation clauses ---

func (ex *Executor) execSetItems(ctx context.Context, items []SetItem, frames []*Frame) error {
	for _, frame := range frames {
		if err := ex.applySetItems(ctx, items, frame); err != nil {
			return err
		}
	}
	return nil
}

func (ex *Executor) applySetItems(ctx context.Context, items []SetItem, frame *Frame) error {
	env := &evalEnv{ctx: ctx, ex: ex, frame: frame}
	for _, item := range items {
		bound, ok := frame.get(item.Variable)
		if !ok {
			return execErrorf("variable `%s` not defined", item.Variable)
		}
		if bound == nil {
			continue
		}
		switch item.Kind {
		case SetProperty:
			value, err := env.eval(item.Value)
			if err != nil {
				return err
			}
			if err := ex.setEntityProps(ctx, frame, item.Variable, bound, map[string]any{item.Property: value}, false); err != nil {
				return err
			}
			ex.stats.PropertiesSet++
		case SetMergeMap:
			value, err := env.eval(item.Value)
			if err != nil {
				return err
			}
			m, err := propsFromValue(value)
			if err != nil {
				return err
			}
			if err := ex.setEntityProps(ctx, frame, item.Variable, bound, m, false); err != nil {
				return err
			}
			ex.stats.PropertiesSet += len(m)
		case SetReplaceMap:
			value, err := env.eval(item.Value)
			if err != nil {
				return err
			}
			m, err := propsFromValue(value)
			if err != nil {
				return err
			}
			if err := ex.setEntityProps(ctx, frame, item.Variable, bound, m, true); err != nil {
				return err
			}
			ex.stats.PropertiesSet += len(m)
		case SetLabels:
			node, ok := bound.(*storage.Node)
			if !ok {
				return execErrorf("labels can only be set on nodes")
			}
			if err := ex.sess.AddLabels(ctx, node.ID, item.Labels); err != nil {
				return err
			}
			ex.stats.LabelsAdded += len(item.Labels)
			fresh, err := ex.sess.GetNode(ctx, node.ID)
			if err != nil {
				return err
			}
			frame.set(item.Variable, fresh)
		}
	}
	return nil
}

func propsFromValue(v any) (map[string]any, error) {
	switch m := v.(type) {
	case nil:
		return map[string]any{}, nil
	case map[string]any:
		return m, nil
	case *storage.Node:
		return copyMap(m.Properties), nil
	case *storage.Relationship:
		return copyMap(m.Properties), nil
	default:
		return nil, execErrorf("expected a map, got %s", valueTypeName(v))
	}
}

func (ex *Executor) setEntityProps(ctx context.Context, frame *Frame, variable string, bound any, props map[string]any, replace bool) error {
	switch entity := bound.(type) {
	case *storage.Node:
		var fresh *storage.Node
		var err error
		if replace {
			fresh, err = ex.sess.SetNodeProperties(ctx, entity.ID, props)
		} else {
			fresh, err = ex.sess.UpdateNodeProperties(ctx, entity.ID, props)
		}
		if err != nil {
			return err
		}
		frame.set(variable, fresh)
		return nil
	case *storage.Relationship:
		if replace {
			current, err := ex.sess.GetRelationship(ctx, entity.ID)
			if err != nil {
				return err
			}
			cleared := make(map[string]any, len(current.Properties))
			for k := range current.Properties {
				cleared[k] = nil
			}
			for k, v := range props {
				cleared[k] = v
			}
			props = cleared
		}
		fresh, err := ex.sess.UpdateRelationshipProperties(ctx, entity.ID, props)
		if err != nil {
			return err
		}
		frame.set(variable, fresh)
		return nil
	default:
		return execErrorf("SET requires a node or relationship, got %s", valueTypeName(bound))
	}
}

func (ex *Executor) execRemove(ctx context.Context, c *RemoveClause, frames []*Frame) error {
	for _, frame := range frames {
		for _, item := range c.Items {
			bound, ok := frame.get(item.Variable)
			if !ok {
				return execErrorf("variable `%s` not defined", item.Variable)
			}
			if bound == nil {
				continue
			}
			if item.Property != "" {
				if err := ex.removeProperty(ctx, frame, item.Variable, bound, item.Property); err != nil {
					return err
				}
				continue
			}
			node, ok := bound.(*storage.Node)
			if !ok {
				return execErrorf("labels can only be removed from nodes")
			}
			if err := ex.sess.RemoveLabels(ctx, node.ID, item.Labels); err != nil {
				return err
			}
			ex.stats.LabelsRemoved += len(item.Labels)
			fresh, err := ex.sess.GetNode(ctx, node.ID)
			if err != nil {
				return err
			}
			frame.set(item.Variable, fresh)
		}
	}
	return nil
}

// removeProperty deletes the key outright, unlike SET n.p = null which
// stores an explicit null.
func (ex *Executor) removeProperty(ctx context.Context, frame *Frame, variable string, bound any, property string) error {
	switch entity := bound.(type) {
	case *storage.Node:
		props := copyMap(entity.Properties)
		delete(props, property)
		fresh, err := ex.sess.SetNodeProperties(ctx, entity.ID, props)
		if err != nil {
			return err
		}
		frame.set(variable, fresh)
		ex.stats.PropertiesSet++
		return nil
	case *storage.Relationship:
		cleared := map[string]any{property: nil}
		fresh, err := ex.sess.UpdateRelationshipProperties(ctx, entity.ID, cleared)
		if err != nil {
			return err
		}
		// drop the nulled key from the in-memory copy
		delete(fresh.Properties, property)
		frame.set(variable, fresh)
		ex.stats.PropertiesSet++
		return nil
	default:
		return execErrorf("REMOVE requires a node or relationship, got %s", valueTypeName(bound))
	}
}

func (ex *Executor) execDelete(ctx context.Context, c *DeleteClause, frames []*Frame) ([]*Frame, error) {
	deletedNodes := map[storage.NodeID]bool{}
	deletedRels := map[storage.RelID]bool{}
	for _, frame := range frames {
		env := &evalEnv{ctx: ctx, ex: ex, frame: frame}
		for _, expr := range c.Exprs {
			v, err := env.eval(expr)
			if err != nil {
				return nil, err
			}
			if err := ex.deleteValue(ctx, v, c.Detach, deletedNodes, deletedRels); err != nil {
				return nil, err
			}
		}
	}
	return frames, nil
}

func (ex *Executor) deleteValue(ctx context.Context, v any, detach bool, deletedNodes map[storage.NodeID]bool, deletedRels map[storage.RelID]bool) error {
	switch entity := v.(type) {
	case nil:
		return nil
	case *storage.Node:
		if deletedNodes[entity.ID] {
			return nil
		}
		count, err := ex.sess.RelationshipCountFor(ctx, entity.ID)
		if err != nil {
			return err
		}
		if count > 0 && !detach {
			return execErrorf("cannot delete node %d: it still has %d relationships (use DETACH DELETE)", entity.ID, count)
		}
		if err := ex.sess.DeleteNode(ctx, entity.ID); err != nil {
			return err
		}
		deletedNodes[entity.ID] = true
		ex.stats.NodesDeleted++
		ex.stats.RelationshipsDeleted += count
		return nil
	case *storage.Relationship:
		if deletedRels[entity.ID] {
			return nil
		}
		if err := ex.sess.DeleteRelationship(ctx, entity.ID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil // already cascaded away
			}
			return err
		}
		deletedRels[entity.ID] = true
		ex.stats.RelationshipsDeleted++
		return nil
	case *PathValue:
		for _, rel := range entity.Rels {
			if err := ex.deleteValue(ctx, rel, detach, deletedNodes, deletedRels); err != nil {
				return err
			}
		}
		for _, node := range entity.Nodes {
			if err := ex.deleteValue(ctx, node, detach, deletedNodes, deletedRels); err != nil {
				return err
			}
		}
		return nil
	default:
		return execErrorf("DELETE requires a node, relationship or path, got %s", valueTypeName(v))
	}
}

// --- schema clauses ---

func (ex *Executor) execCreateIndex(ctx context.Context, c *CreateIndexClause) error {
	entity := storage.EntityNode
	if c.OnRel {
		entity = storage.EntityRelationship
	}
	return ex.sess.CreateIndex(ctx, storage.PropertyIndex{
		Name:     c.Name,
		Entity:   entity,
		Label:    c.Label,
		Property: c.Property,
		Unique:   c.Unique,
	}, c.IfNotExists)
}

func (ex *Executor) execCreateConstraint(ctx context.Context, c *CreateConstraintClause) error {
	entity := storage.EntityNode
	if c.OnRel {
		entity = storage.EntityRelationship
	}
	constraint := storage.Constraint{
		Name:      c.Name,
		Kind:      storage.ConstraintKind(c.Kind),
		Entity:    entity,
		Label:     c.Label,
		Property:  c.Property,
		ValueType: c.ValueType,
	}
	if constraint.Kind == storage.ConstraintUniqueness {
		// A uniqueness constraint is backed by a unique index.
		name := constraint.Name
		if name == "" {
			name = storage.DefaultIndexName(entity, c.Label, c.Property)
		}
		return ex.sess.CreateIndex(ctx, storage.PropertyIndex{
			Name:     name,
			Entity:   entity,
			Label:    c.Label,
			Property: c.Property,
			Unique:   true,
		}, c.IfNotExists)
	}
	return ex.sess.CreateConstraint(ctx, constraint, c.IfNotExists)
}

func (ex *Executor) execShow(ctx context.Context, c *ShowClause) (*Result, error) {
	switch c.What {
	case "INDEXES":
		result := &Result{Columns: []string{"name", "entity", "label", "property", "unique", "kind"}}
		for _, idx := range ex.sess.Registry().Indexes() {
			kind := "RANGE"
			if idx.Unique {
				kind = "UNIQUE"
			}
			result.Rows = append(result.Rows, []any{
				idx.Name, string(idx.Entity), idx.Label, idx.Property, idx.Unique, kind,
			})
		}
		return result, nil
	case "CONSTRAINTS":
		result := &Result{Columns: []string{"name", "kind", "entity", "label", "property", "type"}}
		for _, con := range ex.sess.Registry().Constraints() {
			var vt any
			if con.ValueType != "" {
				vt = con.ValueType
			}
			result.Rows = append(result.Rows, []any{
				con.Name, string(con.Kind), string(con.Entity), con.Label, con.Property, vt,
			})
		}
		return result, nil
	}
	return nil, execErrorf("unknown SHOW target %q", c.What)
}

// --- CALL ---

func (ex *Executor) execCall(ctx context.Context, c *CallClause, frames []*Frame, standalone bool) ([]*Frame, *Result, error) {
	proc, err := ex.procs.Get(c.Name)
	if err != nil {
		return nil, nil, err
	}
	// validate YIELD columns against the procedure's fixed schema
	colIndex := map[string]int{}
	for i, col := range proc.Columns {
		colIndex[col] = i
	}
	yield := c.Yield
	if c.YieldAll || (standalone && len(yield) == 0) {
		yield = nil
		for _, col := range proc.Columns {
			yield = append(yield, YieldItem{Column: col, Alias: col})
		}
	}
	for _, item := range yield {
		if _, ok := colIndex[item.Column]; !ok {
			return nil, nil, &ParseError{Msg: fmt.Sprintf("unknown YIELD column %q for procedure %s", item.Column, c.Name)}
		}
	}
	var outFrames []*Frame
	for _, frame := range frames {
		env := &evalEnv{ctx: ctx, ex: ex, frame: frame}
		args := make([]any, len(c.Args))
		for i, argExpr := range c.Args {
			v, err := env.eval(argExpr)
			if err != nil {
				return nil, nil, err
			}
			args[i] = v
		}
		rows, err := proc.Call(ctx, ex, args)
		if err != nil {
			return nil, nil, err
		}
		for _, row := range rows {
			next := frame.clone()
			for _, item := range yield {
				next.set(item.Alias, row[item.Column])
			}
			if c.Where != nil {
				wenv := &evalEnv{ctx: ctx, ex: ex, frame: next}
				t, err := wenv.evalBool(c.Where)
				if err != nil {
					return nil, nil, err
				}
				if t != True {
					continue
				}
			}
			outFrames = append(outFrames, next)
		}
	}
	if standalone {
		// standalone CALL: the yielded columns are the result
		result := &Result{}
		for _, item := range yield {
			result.Columns = append(result.Columns, item.Alias)
		}
		for _, frame := range outFrames {
			row := make([]any, len(yield))
			for i, item := range yield {
				row[i], _ = frame.get(item.Alias)
			}
			result.Rows = append(result.Rows, row)
		}
		return nil, result, nil
	}
	return outFrames, nil, nil
}
