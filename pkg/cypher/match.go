package cypher

import (
	"context"

	"github.com/orneryd/grafito/pkg/storage"
)

// Pattern embedding enumeration. A partial embedding walks a pattern part
// left to right, carrying the nodes and relationship segments bound so
// far. Relationship uniqueness holds within one pattern part; node
// simplicity holds within each variable-length segment.

type embedding struct {
	nodes []*storage.Node
	// segs[i] is the relationships bound for Rels[i]; one element for a
	// fixed pattern, the walked sequence for a variable-length one.
	segs     [][]*storage.Relationship
	usedRels map[storage.RelID]bool
}

func (m *embedding) clone() *embedding {
	out := &embedding{
		nodes:    append([]*storage.Node{}, m.nodes...),
		segs:     make([][]*storage.Relationship, len(m.segs)),
		usedRels: make(map[storage.RelID]bool, len(m.usedRels)),
	}
	copy(out.segs, m.segs)
	for k, v := range m.usedRels {
		out.usedRels[k] = v
	}
	return out
}

func (ex *Executor) execMatch(ctx context.Context, c *MatchClause, frames []*Frame) ([]*Frame, error) {
	var out []*Frame
	for _, frame := range frames {
		matched, err := ex.matchParts(ctx, c.Parts, frame)
		if err != nil {
			return nil, err
		}
		if c.Where != nil {
			var kept []*Frame
			for _, f := range matched {
				env := &evalEnv{ctx: ctx, ex: ex, frame: f}
				t, err := env.evalBool(c.Where)
				if err != nil {
					return nil, err
				}
				if t == True {
					kept = append(kept, f)
				}
			}
			matched = kept
		}
		if len(matched) == 0 && c.Optional {
			// one frame with every new pattern variable bound to null
			nullFrame := frame.clone()
			for _, part := range c.Parts {
				for _, name := range part.variables() {
					if _, bound := frame.get(name); !bound {
						nullFrame.set(name, nil)
					}
				}
			}
			out = append(out, nullFrame)
			continue
		}
		out = append(out, matched...)
	}
	return out, nil
}

// variables lists every variable a pattern part can bind.
func (p *PatternPart) variables() []string {
	var names []string
	if p.Variable != "" {
		names = append(names, p.Variable)
	}
	for _, n := range p.Nodes {
		if n.Variable != "" {
			names = append(names, n.Variable)
		}
	}
	for _, r := range p.Rels {
		if r.Variable != "" {
			names = append(names, r.Variable)
		}
	}
	return names
}

// matchParts joins the comma-separated parts: each part's embeddings
// extend the frames produced by the previous parts.
func (ex *Executor) matchParts(ctx context.Context, parts []*PatternPart, frame *Frame) ([]*Frame, error) {
	frames := []*Frame{frame}
	for _, part := range parts {
		var next []*Frame
		for _, f := range frames {
			extended, err := ex.matchPart(ctx, part, f)
			if err != nil {
				return nil, err
			}
			next = append(next, extended...)
		}
		frames = next
		if len(frames) == 0 {
			return nil, nil
		}
	}
	return frames, nil
}

// matchPart enumerates one part's embeddings and binds its variables.
func (ex *Executor) matchPart(ctx context.Context, part *PatternPart, frame *Frame) ([]*Frame, error) {
	if part.Shortest != ShortestNone {
		return ex.matchShortest(ctx, part, frame)
	}
	starts, err := ex.nodeCandidates(ctx, part.Nodes[0], frame)
	if err != nil {
		return nil, err
	}
	var out []*Frame
	for _, start := range starts {
		m := &embedding{nodes: []*storage.Node{start}, usedRels: map[storage.RelID]bool{}}
		if err := ex.extend(ctx, part, frame, m, 0, &out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// extend grows the embedding across Rels[idx] and Nodes[idx+1].
func (ex *Executor) extend(ctx context.Context, part *PatternPart, frame *Frame, m *embedding, idx int, out *[]*Frame) error {
	if err := ex.checkAbort(ctx); err != nil {
		return err
	}
	if idx == len(part.Rels) {
		bound, err := ex.bindEmbedding(part, frame, m)
		if err != nil {
			return err
		}
		if bound != nil {
			*out = append(*out, bound)
		}
		return nil
	}
	rel := part.Rels[idx]
	if rel.VarLength {
		return ex.extendVarLength(ctx, part, frame, m, idx, out)
	}
	cur := m.nodes[len(m.nodes)-1]
	steps, err := ex.relSteps(ctx, cur.ID, rel)
	if err != nil {
		return err
	}
	for _, step := range steps {
		if m.usedRels[step.rel.ID] {
			continue
		}
		ok, err := ex.relMatches(ctx, rel, step.rel, frame)
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		nextNode, err := ex.nodeMatches(ctx, part.Nodes[idx+1], step.nbr, frame)
		if err != nil {
			return err
		}
		if nextNode == nil {
			continue
		}
		next := m.clone()
		next.usedRels[step.rel.ID] = true
		next.nodes = append(next.nodes, nextNode)
		next.segs = append(next.segs, []*storage.Relationship{step.rel})
		if err := ex.extend(ctx, part, frame, next, idx+1, out); err != nil {
			return err
		}
	}
	return nil
}

// extendVarLength walks simple paths of length within the segment's
// bounds. An absent upper bound clamps to the configured max hops.
func (ex *Executor) extendVarLength(ctx context.Context, part *PatternPart, frame *Frame, m *embedding, idx int, out *[]*Frame) error {
	rel := part.Rels[idx]
	minHops := 1
	if rel.MinHops != nil {
		minHops = *rel.MinHops
	}
	maxHops := ex.cfg.MaxHops
	if rel.MaxHops != nil {
		maxHops = *rel.MaxHops
	}
	start := m.nodes[len(m.nodes)-1]
	visited := map[storage.NodeID]bool{start.ID: true}

	var walk func(cur *storage.Node, seg []*storage.Relationship, depth int) error
	walk = func(cur *storage.Node, seg []*storage.Relationship, depth int) error {
		if err := ex.checkAbort(ctx); err != nil {
			return err
		}
		if depth >= minHops {
			end, err := ex.nodeMatches(ctx, part.Nodes[idx+1], cur.ID, frame)
			if err != nil {
				return err
			}
			if end != nil {
				next := m.clone()
				next.nodes = append(next.nodes, end)
				next.segs = append(next.segs, append([]*storage.Relationship{}, seg...))
				for _, r := range seg {
					next.usedRels[r.ID] = true
				}
				if err := ex.extend(ctx, part, frame, next, idx+1, out); err != nil {
					return err
				}
			}
		}
		if depth == maxHops {
			return nil
		}
		steps, err := ex.relSteps(ctx, cur.ID, rel)
		if err != nil {
			return err
		}
		for _, step := range steps {
			if visited[step.nbr] || m.usedRels[step.rel.ID] {
				continue
			}
			ok, err := ex.relMatches(ctx, rel, step.rel, frame)
			if err != nil {
				return err
			}
			if !ok {
				continue
			}
			nbr, err := ex.sess.GetNode(ctx, step.nbr)
			if err != nil {
				return err
			}
			visited[step.nbr] = true
			err = walk(nbr, append(seg, step.rel), depth+1)
			visited[step.nbr] = false
			if err != nil {
				return err
			}
		}
		return nil
	}
	return walk(start, nil, 0)
}

type relStep struct {
	rel *storage.Relationship
	nbr storage.NodeID
}

// relSteps lists candidate relationship steps from a node honoring the
// pattern's direction and types. Outgoing steps come before incoming ones,
// grouped by type in the order the pattern lists them; each group is in
// insertion order.
func (ex *Executor) relSteps(ctx context.Context, from storage.NodeID, rel *RelPattern) ([]relStep, error) {
	var out []relStep
	if rel.Direction == DirRight || rel.Direction == DirBoth {
		rels, err := ex.matchRelsByTypes(ctx, &from, nil, rel.Types)
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			out = append(out, relStep{rel: r, nbr: r.Target})
		}
	}
	if rel.Direction == DirLeft || rel.Direction == DirBoth {
		rels, err := ex.matchRelsByTypes(ctx, nil, &from, rel.Types)
		if err != nil {
			return nil, err
		}
		for _, r := range rels {
			out = append(out, relStep{rel: r, nbr: r.Source})
		}
	}
	return out, nil
}

func (ex *Executor) matchRelsByTypes(ctx context.Context, source, target *storage.NodeID, types []string) ([]*storage.Relationship, error) {
	if len(types) == 0 {
		return ex.sess.MatchRelationships(ctx, source, target, "")
	}
	var out []*storage.Relationship
	for _, t := range types {
		rels, err := ex.sess.MatchRelationships(ctx, source, target, t)
		if err != nil {
			return nil, err
		}
		out = append(out, rels...)
	}
	return out, nil
}

// relMatches applies the relationship pattern's inline property filters.
func (ex *Executor) relMatches(ctx context.Context, pattern *RelPattern, rel *storage.Relationship, frame *Frame) (bool, error) {
	if pattern.Variable != "" && !pattern.VarLength {
		if bound, ok := frame.get(pattern.Variable); ok && bound != nil {
			existing, ok := bound.(*storage.Relationship)
			if !ok || existing.ID != rel.ID {
				return false, nil
			}
		}
	}
	if len(pattern.Props) == 0 {
		return true, nil
	}
	env := &evalEnv{ctx: ctx, ex: ex, frame: frame}
	for key, expr := range pattern.Props {
		want, err := env.eval(expr)
		if err != nil {
			return false, err
		}
		got, ok := rel.Properties[key]
		if !ok || valueEquals(got, want) != True {
			return false, nil
		}
	}
	return true, nil
}

// nodeCandidates resolves the start node pattern: a bound variable pins
// the candidate, otherwise the storage layer matches labels and literal
// property filters.
func (ex *Executor) nodeCandidates(ctx context.Context, pattern *NodePattern, frame *Frame) ([]*storage.Node, error) {
	if pattern.Variable != "" {
		if bound, ok := frame.get(pattern.Variable); ok {
			if bound == nil {
				return nil, nil
			}
			node, ok := bound.(*storage.Node)
			if !ok {
				return nil, execErrorf("variable `%s` is already bound to a %s", pattern.Variable, valueTypeName(bound))
			}
			matched, err := ex.nodeMatches(ctx, pattern, node.ID, frame)
			if err != nil || matched == nil {
				return nil, err
			}
			return []*storage.Node{matched}, nil
		}
	}
	props, err := ex.evalPropFilters(ctx, pattern.Props, frame)
	if err != nil {
		return nil, err
	}
	return ex.sess.MatchNodes(ctx, pattern.Labels, props)
}

func (ex *Executor) evalPropFilters(ctx context.Context, props map[string]Expr, frame *Frame) (map[string]any, error) {
	if len(props) == 0 {
		return nil, nil
	}
	env := &evalEnv{ctx: ctx, ex: ex, frame: frame}
	out := make(map[string]any, len(props))
	for key, expr := range props {
		v, err := env.eval(expr)
		if err != nil {
			return nil, err
		}
		out[key] = v
	}
	return out, nil
}

// nodeMatches checks one node against a node pattern (labels, inline
// props, bound variable) and returns the hydrated node, or nil.
func (ex *Executor) nodeMatches(ctx context.Context, pattern *NodePattern, id storage.NodeID, frame *Frame) (*storage.Node, error) {
	if pattern.Variable != "" {
		if bound, ok := frame.get(pattern.Variable); ok && bound != nil {
			existing, ok := bound.(*storage.Node)
			if !ok {
				return nil, execErrorf("variable `%s` is already bound to a %s", pattern.Variable, valueTypeName(bound))
			}
			if existing.ID != id {
				return nil, nil
			}
		}
	}
	node, err := ex.sess.GetNode(ctx, id)
	if err != nil {
		return nil, err
	}
	for _, label := range pattern.Labels {
		if !node.HasLabel(label) {
			return nil, nil
		}
	}
	if len(pattern.Props) > 0 {
		props, err := ex.evalPropFilters(ctx, pattern.Props, frame)
		if err != nil {
			return nil, err
		}
		for key, want := range props {
			got, ok := node.Properties[key]
			if !ok || valueEquals(got, want) != True {
				return nil, nil
			}
		}
	}
	return node, nil
}

// bindEmbedding turns a completed embedding into a frame.
func (ex *Executor) bindEmbedding(part *PatternPart, frame *Frame, m *embedding) (*Frame, error) {
	out := frame.clone()
	for i, node := range m.nodes {
		name := part.Nodes[i].Variable
		if name != "" {
			out.set(name, node)
		}
	}
	for i, seg := range m.segs {
		rel := part.Rels[i]
		if rel.Variable == "" {
			continue
		}
		if rel.VarLength {
			list := make([]any, len(seg))
			for j, r := range seg {
				list[j] = r
			}
			out.set(rel.Variable, list)
		} else {
			out.set(rel.Variable, seg[0])
		}
	}
	if part.Variable != "" {
		path := &PathValue{Nodes: append([]*storage.Node{}, m.nodes...)}
		for _, seg := range m.segs {
			path.Rels = append(path.Rels, seg...)
		}
		out.set(part.Variable, path)
	}
	return out, nil
}

// --- shortestPath / allShortestPaths ---

func (ex *Executor) matchShortest(ctx context.Context, part *PatternPart, frame *Frame) ([]*Frame, error) {
	rel := part.Rels[0]
	dir := storage.Both
	switch rel.Direction {
	case DirRight:
		dir = storage.Outgoing
	case DirLeft:
		dir = storage.Incoming
	}
	maxHops := ex.cfg.MaxHops
	if rel.MaxHops != nil {
		maxHops = *rel.MaxHops
	}
	starts, err := ex.nodeCandidates(ctx, part.Nodes[0], frame)
	if err != nil {
		return nil, err
	}
	ends, err := ex.nodeCandidates(ctx, part.Nodes[1], frame)
	if err != nil {
		return nil, err
	}
	var out []*Frame
	for _, start := range starts {
		for _, end := range ends {
			if err := ex.checkAbort(ctx); err != nil {
				return nil, err
			}
			if part.Shortest == ShortestSingle {
				path, err := ex.sess.ShortestPath(ctx, start.ID, end.ID, dir, rel.Types, maxHops)
				if err != nil {
					return nil, err
				}
				if path == nil {
					continue
				}
				bound, err := ex.bindStoragePath(ctx, part, frame, *path)
				if err != nil {
					return nil, err
				}
				out = append(out, bound)
				continue
			}
			paths, err := ex.sess.AllShortestPaths(ctx, start.ID, end.ID, dir, rel.Types, maxHops)
			if err != nil {
				return nil, err
			}
			for _, path := range paths {
				bound, err := ex.bindStoragePath(ctx, part, frame, path)
				if err != nil {
					return nil, err
				}
				out = append(out, bound)
			}
		}
	}
	return out, nil
}

func (ex *Executor) bindStoragePath(ctx context.Context, part *PatternPart, frame *Frame, path storage.Path) (*Frame, error) {
	value := &PathValue{}
	for _, id := range path.Nodes {
		node, err := ex.sess.GetNode(ctx, id)
		if err != nil {
			return nil, err
		}
		value.Nodes = append(value.Nodes, node)
	}
	for _, id := range path.Rels {
		rel, err := ex.sess.GetRelationship(ctx, id)
		if err != nil {
			return nil, err
		}
		value.Rels = append(value.Rels, rel)
	}
	out := frame.clone()
	if part.Variable != "" {
		out.set(part.Variable, value)
	}
	if name := part.Nodes[0].Variable; name != "" {
		out.set(name, value.Nodes[0])
	}
	if name := part.Nodes[1].Variable; name != "" {
		out.set(name, value.Nodes[len(value.Nodes)-1])
	}
	if name := part.Rels[0].Variable; name != "" {
		list := make([]any, len(value.Rels))
		for i, r := range value.Rels {
			list[i] = r
		}
		out.set(name, list)
	}
	return out, nil
}

// --- CREATE / MERGE ---

func (ex *Executor) execCreate(ctx context.Context, c *CreateClause, frames []*Frame) ([]*Frame, error) {
	var out []*Frame
	for _, frame := range frames {
		next := frame.clone()
		for _, part := range c.Parts {
			if err := ex.createPart(ctx, part, next); err != nil {
				return nil, err
			}
		}
		out = append(out, next)
	}
	return out, nil
}

// createPart creates the pattern's entities into the frame. Bound node
// variables are reused; every relationship is created fresh.
func (ex *Executor) createPart(ctx context.Context, part *PatternPart, frame *Frame) error {
	env := &evalEnv{ctx: ctx, ex: ex, frame: frame}
	nodes := make([]*storage.Node, len(part.Nodes))
	for i, np := range part.Nodes {
		if np.Variable != "" {
			if bound, ok := frame.get(np.Variable); ok {
				node, ok := bound.(*storage.Node)
				if !ok {
					return execErrorf("variable `%s` is already bound to a %s", np.Variable, valueTypeName(bound))
				}
				if len(np.Labels) > 0 || len(np.Props) > 0 {
					return execErrorf("cannot add labels or properties to the bound variable `%s` in CREATE", np.Variable)
				}
				nodes[i] = node
				continue
			}
		}
		props := map[string]any{}
		for key, expr := range np.Props {
			v, err := env.eval(expr)
			if err != nil {
				return err
			}
			props[key] = v
		}
		node, err := ex.sess.CreateNode(ctx, np.Labels, props)
		if err != nil {
			return err
		}
		ex.stats.NodesCreated++
		nodes[i] = node
		if np.Variable != "" {
			frame.set(np.Variable, node)
		}
	}
	var pathRels []*storage.Relationship
	for i, rp := range part.Rels {
		if rp.VarLength {
			return execErrorf("variable-length relationships cannot be created")
		}
		if len(rp.Types) != 1 {
			return execErrorf("CREATE requires exactly one relationship type")
		}
		var src, tgt *storage.Node
		switch rp.Direction {
		case DirRight:
			src, tgt = nodes[i], nodes[i+1]
		case DirLeft:
			src, tgt = nodes[i+1], nodes[i]
		default:
			return execErrorf("CREATE requires a directed relationship")
		}
		props := map[string]any{}
		for key, expr := range rp.Props {
			v, err := env.eval(expr)
			if err != nil {
				return err
			}
			props[key] = v
		}
		rel, err := ex.sess.CreateRelationship(ctx, src.ID, tgt.ID, rp.Types[0], props)
		if err != nil {
			return err
		}
		ex.stats.RelationshipsCreated++
		pathRels = append(pathRels, rel)
		if rp.Variable != "" {
			frame.set(rp.Variable, rel)
		}
	}
	if part.Variable != "" {
		frame.set(part.Variable, &PathValue{Nodes: nodes, Rels: pathRels})
	}
	return nil
}

// execMerge treats the pattern atomically: match the whole pattern, and
// only when no embedding exists create every element of it.
func (ex *Executor) execMerge(ctx context.Context, c *MergeClause, frames []*Frame) ([]*Frame, error) {
	var out []*Frame
	for _, frame := range frames {
		matched, err := ex.matchPart(ctx, c.Part, frame)
		if err != nil {
			return nil, err
		}
		if len(matched) > 0 {
			for _, f := range matched {
				if err := ex.applySetItems(ctx, c.OnMatch, f); err != nil {
					return nil, err
				}
				out = append(out, f)
			}
			continue
		}
		created := frame.clone()
		if err := ex.createPart(ctx, c.Part, created); err != nil {
			return nil, err
		}
		if err := ex.applySetItems(ctx, c.OnCreate, created); err != nil {
			return nil, err
		}
		out = append(out, created)
	}
	return out, nil
}

// --- pattern expressions ---

func (ex *Executor) evalPatternComprehension(ctx context.Context, frame *Frame, pc *PatternComprehension) (any, error) {
	matched, err := ex.matchPart(ctx, pc.Part, frame)
	if err != nil {
		return nil, err
	}
	out := []any{}
	for _, f := range matched {
		env := &evalEnv{ctx: ctx, ex: ex, frame: f}
		if pc.Where != nil {
			t, err := env.evalBool(pc.Where)
			if err != nil {
				return nil, err
			}
			if t != True {
				continue
			}
		}
		v, err := env.eval(pc.Project)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func (ex *Executor) evalPatternPredicate(ctx context.Context, frame *Frame, pp *PatternPredicate) (any, error) {
	matched, err := ex.matchPart(ctx, pp.Part, frame)
	if err != nil {
		return nil, err
	}
	return len(matched) > 0, nil
}
