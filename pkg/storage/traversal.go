package storage

import (
	"context"
	"fmt"
	"strings"
)

// Traversal kernel: BFS shortest path, DFS bounded search, and simple-path
// enumeration for variable-length patterns. Everything runs on IDs through
// the directional relationship indexes; callers hydrate nodes afterwards.

// Path is an alternation of nodes and the relationships between them;
// len(Rels) == len(Nodes)-1.
type Path struct {
	Nodes []NodeID
	Rels  []RelID
}

// Len is the path length in relationships.
func (p Path) Len() int { return len(p.Rels) }

type edgeStep struct {
	rel RelID
	nbr NodeID
}

// incidentEdges lists (relationship, neighbor) steps from id honoring
// direction and optional type filters, in relationship-insertion order.
// Unlike NeighborIDs it keeps duplicates: parallel edges are distinct
// steps.
func (s *Session) incidentEdges(ctx context.Context, id NodeID, dir Direction, relTypes []string) ([]edgeStep, error) {
	var clauses []string
	var args []any
	typeFilter := ""
	if len(relTypes) > 0 {
		typeFilter = " AND type IN (?" + strings.Repeat(",?", len(relTypes)-1) + ")"
	}
	if dir == Outgoing || dir == Both {
		clauses = append(clauses, `SELECT id, target FROM relationships WHERE source = ?`+typeFilter)
		args = append(args, int64(id))
		for _, t := range relTypes {
			args = append(args, t)
		}
	}
	if dir == Incoming || dir == Both {
		clauses = append(clauses, `SELECT id, source FROM relationships WHERE target = ?`+typeFilter)
		args = append(args, int64(id))
		for _, t := range relTypes {
			args = append(args, t)
		}
	}
	query := strings.Join(clauses, " UNION ALL ") + " ORDER BY id"
	rows, err := s.q().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("incident edges: %w", err)
	}
	defer rows.Close()
	var out []edgeStep
	for rows.Next() {
		var rel, nbr int64
		if err := rows.Scan(&rel, &nbr); err != nil {
			return nil, err
		}
		out = append(out, edgeStep{rel: RelID(rel), nbr: NodeID(nbr)})
	}
	return out, rows.Err()
}

// ShortestPath runs a BFS frontier expansion from source to target and
// returns one minimum-length path, or nil when unreachable. Ties break by
// discovery order: the first parent to reach a node wins. source == target
// yields the single-node path.
func (s *Session) ShortestPath(ctx context.Context, source, target NodeID, dir Direction, relTypes []string, maxDepth int) (*Path, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if _, err := s.GetNode(ctx, source); err != nil {
		return nil, err
	}
	if _, err := s.GetNode(ctx, target); err != nil {
		return nil, err
	}
	if source == target {
		return &Path{Nodes: []NodeID{source}}, nil
	}
	parents := map[NodeID]parentLink{source: {node: source}}
	frontier := []NodeID{source}
	for depth := 0; len(frontier) > 0 && (maxDepth <= 0 || depth < maxDepth); depth++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var next []NodeID
		for _, cur := range frontier {
			steps, err := s.incidentEdges(ctx, cur, dir, relTypes)
			if err != nil {
				return nil, err
			}
			for _, step := range steps {
				if _, seen := parents[step.nbr]; seen {
					continue
				}
				parents[step.nbr] = parentLink{node: cur, rel: step.rel}
				if step.nbr == target {
					return buildPath(parents, source, target), nil
				}
				next = append(next, step.nbr)
			}
		}
		frontier = next
	}
	return nil, nil
}

type parentLink struct {
	node NodeID
	rel  RelID
}

func buildPath(parents map[NodeID]parentLink, source, target NodeID) *Path {
	var nodes []NodeID
	var rels []RelID
	for cur := target; ; {
		nodes = append(nodes, cur)
		if cur == source {
			break
		}
		link := parents[cur]
		rels = append(rels, link.rel)
		cur = link.node
	}
	// Reverse into source..target order.
	for i, j := 0, len(nodes)-1; i < j; i, j = i+1, j-1 {
		nodes[i], nodes[j] = nodes[j], nodes[i]
	}
	for i, j := 0, len(rels)-1; i < j; i, j = i+1, j-1 {
		rels[i], rels[j] = rels[j], rels[i]
	}
	return &Path{Nodes: nodes, Rels: rels}
}

// AllShortestPaths returns every minimum-length path between source and
// target (same length, possibly many), or nil when unreachable.
func (s *Session) AllShortestPaths(ctx context.Context, source, target NodeID, dir Direction, relTypes []string, maxDepth int) ([]Path, error) {
	shortest, err := s.ShortestPath(ctx, source, target, dir, relTypes, maxDepth)
	if err != nil || shortest == nil {
		return nil, err
	}
	n := shortest.Len()
	// Enumerate simple paths of exactly the minimum length.
	return s.SimplePaths(ctx, source, target, dir, relTypes, n, n, 0)
}

// FindPath runs a depth-first search for any simple path of length at most
// maxDepth, enumerating neighbors in insertion order. source == target
// returns the length-0 path [source].
func (s *Session) FindPath(ctx context.Context, source, target NodeID, dir Direction, relTypes []string, maxDepth int) (*Path, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if _, err := s.GetNode(ctx, source); err != nil {
		return nil, err
	}
	if _, err := s.GetNode(ctx, target); err != nil {
		return nil, err
	}
	paths, err := s.SimplePaths(ctx, source, target, dir, relTypes, 0, maxDepth, 1)
	if err != nil {
		return nil, err
	}
	if len(paths) == 0 {
		return nil, nil
	}
	return &paths[0], nil
}

// SimplePaths enumerates simple paths (no node revisited within a path)
// from source to target whose length lies in [minLen, maxLen]. limit 0
// means unbounded. Enumeration is depth-first in neighbor-insertion order,
// so results are deterministic.
func (s *Session) SimplePaths(ctx context.Context, source, target NodeID, dir Direction, relTypes []string, minLen, maxLen, limit int) ([]Path, error) {
	if err := s.check(); err != nil {
		return nil, err
	}
	if maxLen < minLen {
		return nil, nil
	}
	var out []Path
	visited := map[NodeID]bool{source: true}
	nodes := []NodeID{source}
	rels := []RelID{}

	var walk func() error
	walk = func() error {
		if err := ctx.Err(); err != nil {
			return err
		}
		depth := len(rels)
		cur := nodes[len(nodes)-1]
		if cur == target && depth >= minLen {
			out = append(out, Path{
				Nodes: append([]NodeID{}, nodes...),
				Rels:  append([]RelID{}, rels...),
			})
			if limit > 0 && len(out) >= limit {
				return errStopEnumeration
			}
		}
		if depth == maxLen {
			return nil
		}
		steps, err := s.incidentEdges(ctx, cur, dir, relTypes)
		if err != nil {
			return err
		}
		for _, step := range steps {
			if visited[step.nbr] {
				continue
			}
			visited[step.nbr] = true
			nodes = append(nodes, step.nbr)
			rels = append(rels, step.rel)
			err := walk()
			nodes = nodes[:len(nodes)-1]
			rels = rels[:len(rels)-1]
			visited[step.nbr] = false
			if err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(); err != nil && err != errStopEnumeration {
		return nil, err
	}
	return out, nil
}

// errStopEnumeration is the internal break signal for bounded enumeration.
var errStopEnumeration = fmt.Errorf("enumeration stopped")
