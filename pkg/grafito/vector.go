package grafito

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/orneryd/grafito/pkg/cypher"
	"github.com/orneryd/grafito/pkg/search"
	"github.com/orneryd/grafito/pkg/storage"
)

// VectorManager owns the in-process ANN structures behind the persisted
// vector-index metadata and implements the hybrid search pipeline:
// over-pull from the backend, intersect with label/property pre-filters,
// rerank, trim to k.
type VectorManager struct {
	db *DB

	mu      sync.Mutex
	indexes map[string]*vectorIndex
}

type vectorIndex struct {
	meta    storage.VectorIndexMeta
	backend search.Backend

	space           string
	storeEmbeddings bool
	defaultK        int
	multiplier      int
	embedder        string
	persistPath     string
}

// SearchOptions tune one vector search.
type SearchOptions struct {
	// Labels pre-filters candidates to nodes bearing every label.
	Labels []string
	// Properties pre-filters candidates by exact property equality.
	Properties map[string]any
	// Rerank enables the post-rerank stage; without Reranker the default
	// identity reranker runs over stored vectors.
	Rerank bool
	// Reranker names a registered reranker.
	Reranker string
	// CandidateMultiplier scales the over-pull (default 3).
	CandidateMultiplier int
}

// VectorHit is one search result; Score is a distance, smaller is better.
type VectorHit struct {
	Node  *storage.Node
	Score float64
}

func newVectorManager(db *DB) *VectorManager {
	return &VectorManager{db: db, indexes: map[string]*vectorIndex{}}
}

// loadAll rebuilds every registered index at open: from its persisted
// snapshot when one exists, otherwise from the stored embeddings.
func (vm *VectorManager) loadAll(ctx context.Context) error {
	metas, err := vm.db.sess.ListVectorIndexMeta(ctx)
	if err != nil {
		return err
	}
	for _, meta := range metas {
		idx, err := vm.buildIndex(meta)
		if err != nil {
			return err
		}
		loaded := false
		if idx.persistPath != "" {
			if err := idx.backend.Load(idx.persistPath); err == nil {
				loaded = true
			}
		}
		if !loaded && idx.storeEmbeddings {
			entries, err := vm.db.sess.VectorEntries(ctx, meta.Name)
			if err != nil {
				return err
			}
			for id, vec := range entries {
				if err := idx.backend.Add(int64(id), vec); err != nil {
					return err
				}
			}
		}
		vm.indexes[meta.Name] = idx
	}
	return nil
}

func (vm *VectorManager) buildIndex(meta storage.VectorIndexMeta) (*vectorIndex, error) {
	idx := &vectorIndex{
		meta:       meta,
		space:      search.SpaceCosine,
		defaultK:   vm.db.cfg.DefaultTopK,
		multiplier: 3,
	}
	for key, raw := range meta.Options {
		switch strings.ToLower(key) {
		case "metric", "space":
			s, ok := raw.(string)
			if !ok {
				return nil, &cypher.ConfigurationError{Msg: "vector option metric must be a string"}
			}
			idx.space = strings.ToLower(s)
		case "store_embeddings":
			b, ok := raw.(bool)
			if !ok {
				return nil, &cypher.ConfigurationError{Msg: "vector option store_embeddings must be a boolean"}
			}
			idx.storeEmbeddings = b
		case "default_k":
			if n, ok := asInt(raw); ok && n > 0 {
				idx.defaultK = n
			}
		case "candidate_multiplier":
			if n, ok := asInt(raw); ok && n > 0 {
				idx.multiplier = n
			}
		case "embedding_function":
			s, ok := raw.(string)
			if !ok {
				return nil, &cypher.ConfigurationError{Msg: "vector option embedding_function must be a string"}
			}
			idx.embedder = s
		case "persist_path":
			s, ok := raw.(string)
			if !ok {
				return nil, &cypher.ConfigurationError{Msg: "vector option persist_path must be a string"}
			}
			idx.persistPath = s
		}
	}
	backend, err := search.NewBackend(meta.Backend, meta.Dimension, idx.space, meta.Options)
	if err != nil {
		return nil, err
	}
	supported := false
	for _, space := range backend.Spaces() {
		if space == idx.space {
			supported = true
			break
		}
	}
	if !supported {
		return nil, &cypher.ConfigurationError{
			Msg: fmt.Sprintf("backend %q does not support distance space %q", meta.Backend, idx.space),
		}
	}
	idx.backend = backend
	return idx, nil
}

func asInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	default:
		return 0, false
	}
}

func (vm *VectorManager) get(name string) (*vectorIndex, error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	idx, ok := vm.indexes[name]
	if !ok {
		return nil, fmt.Errorf("%w: vector index %q", storage.ErrIndexUnknown, name)
	}
	return idx, nil
}

// removeNode drops a deleted node from every index so searches never
// surface dangling ids.
func (vm *VectorManager) removeNode(ctx context.Context, id storage.NodeID) {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	for _, idx := range vm.indexes {
		idx.backend.Remove(int64(id))
	}
}

// CreateVectorIndex registers a named ANN index. Recognized options:
// metric (l2|ip|cosine), store_embeddings, default_k,
// candidate_multiplier, embedding_function, persist_path, plus
// backend-specific tuning (m, ef_construction, ef_search for hnsw).
func (db *DB) CreateVectorIndex(ctx context.Context, name string, dimension int, backend string, options map[string]any) error {
	if name == "" || dimension <= 0 {
		return &cypher.ConfigurationError{Msg: "vector index requires a name and a positive dimension"}
	}
	if backend == "" {
		backend = "exact"
	}
	meta := storage.VectorIndexMeta{
		Name: name, Dimension: dimension, Backend: backend,
		Method: backend, Options: options,
	}
	vm := db.vectors
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, exists := vm.indexes[name]; exists {
		return fmt.Errorf("vector index %q already exists", name)
	}
	idx, err := vm.buildIndex(meta)
	if err != nil {
		return err
	}
	if err := db.sess.CreateVectorIndexMeta(ctx, meta); err != nil {
		return err
	}
	vm.indexes[name] = idx
	return nil
}

// DropVectorIndex removes the index, its metadata and stored embeddings.
func (db *DB) DropVectorIndex(ctx context.Context, name string) error {
	vm := db.vectors
	vm.mu.Lock()
	defer vm.mu.Unlock()
	if _, ok := vm.indexes[name]; !ok {
		return fmt.Errorf("%w: vector index %q", storage.ErrIndexUnknown, name)
	}
	if err := db.sess.DropVectorIndexMeta(ctx, name); err != nil {
		return err
	}
	delete(vm.indexes, name)
	return nil
}

// ListVectorIndexes returns the registered index metadata.
func (db *DB) ListVectorIndexes(ctx context.Context) ([]storage.VectorIndexMeta, error) {
	return db.sess.ListVectorIndexMeta(ctx)
}

// UpsertVector adds or replaces a node's embedding in the index. The
// node must exist; the write shares the active transaction.
func (db *DB) UpsertVector(ctx context.Context, index string, id storage.NodeID, vec []float32) error {
	idx, err := db.vectors.get(index)
	if err != nil {
		return err
	}
	if len(vec) != idx.meta.Dimension {
		return fmt.Errorf("%w: got %d, index %q is %d",
			search.ErrDimensionMismatch, len(vec), index, idx.meta.Dimension)
	}
	if _, err := db.sess.GetNode(ctx, id); err != nil {
		return err
	}
	if idx.storeEmbeddings {
		if err := db.sess.UpsertVectorEntry(ctx, index, id, vec); err != nil {
			return err
		}
	}
	if err := idx.backend.Add(int64(id), vec); err != nil {
		return err
	}
	if idx.persistPath != "" {
		return idx.backend.Persist(idx.persistPath)
	}
	return nil
}

// UpsertText embeds the text with the index's embedding function and
// upserts the vector. A missing association is a ConfigurationError.
func (db *DB) UpsertText(ctx context.Context, index string, id storage.NodeID, textContent string) error {
	idx, err := db.vectors.get(index)
	if err != nil {
		return err
	}
	if idx.embedder == "" {
		return &cypher.ConfigurationError{
			Msg: fmt.Sprintf("vector index %q has no embedding function", index),
		}
	}
	embed, err := search.GetEmbedder(idx.embedder)
	if err != nil {
		return &cypher.ConfigurationError{Msg: err.Error()}
	}
	vec, err := embed(ctx, textContent)
	if err != nil {
		return err
	}
	return db.UpsertVector(ctx, index, id, vec)
}

// RemoveVector deletes a node's entry from the index.
func (db *DB) RemoveVector(ctx context.Context, index string, id storage.NodeID) error {
	idx, err := db.vectors.get(index)
	if err != nil {
		return err
	}
	if idx.storeEmbeddings {
		if err := db.sess.DeleteVectorEntry(ctx, index, id); err != nil {
			return err
		}
	}
	return idx.backend.Remove(int64(id))
}

// SearchVector runs the hybrid pipeline and returns up to k hits.
func (db *DB) SearchVector(ctx context.Context, index string, query []float32, k int, opts SearchOptions) ([]VectorHit, error) {
	idx, err := db.vectors.get(index)
	if err != nil {
		return nil, err
	}
	if len(query) != idx.meta.Dimension {
		return nil, fmt.Errorf("%w: got %d, index %q is %d",
			search.ErrDimensionMismatch, len(query), index, idx.meta.Dimension)
	}
	if k <= 0 {
		k = idx.defaultK
	}
	multiplier := idx.multiplier
	if opts.CandidateMultiplier > 0 {
		multiplier = opts.CandidateMultiplier
	}
	filtered := len(opts.Labels) > 0 || len(opts.Properties) > 0
	pull := k
	if filtered || opts.Rerank || opts.Reranker != "" {
		pull = k * multiplier
	}

	// pre-filter: resolve the allowed id set before asking the backend so
	// backends with pushdown can skip rejected ids during traversal
	var allowed map[int64]bool
	if filtered {
		nodes, err := db.sess.MatchNodes(ctx, opts.Labels, opts.Properties)
		if err != nil {
			return nil, err
		}
		allowed = make(map[int64]bool, len(nodes))
		for _, node := range nodes {
			allowed[int64(node.ID)] = true
		}
	}
	var filter search.Filter
	if allowed != nil {
		filter = func(id int64) bool { return allowed[id] }
	}
	results, err := idx.backend.Search(query, pull, filter)
	if err != nil {
		return nil, err
	}

	// hydrate and tombstone-skip deleted nodes
	type liveHit struct {
		result search.Result
		node   *storage.Node
	}
	var live []liveHit
	for _, r := range results {
		// post-filter: authoritative for backends that ignore the pushdown
		if allowed != nil && !allowed[r.ID] {
			continue
		}
		node, err := db.sess.GetNode(ctx, storage.NodeID(r.ID))
		if errors.Is(err, storage.ErrNotFound) {
			idx.backend.Remove(r.ID)
			continue
		}
		if err != nil {
			return nil, err
		}
		live = append(live, liveHit{result: r, node: node})
	}

	if opts.Rerank || opts.Reranker != "" {
		name := opts.Reranker
		if name == "" {
			name = "identity"
			if !idx.storeEmbeddings {
				return nil, &cypher.ConfigurationError{
					Msg: fmt.Sprintf("rerank on %q requires store_embeddings", index),
				}
			}
		}
		reranker, err := search.GetReranker(name)
		if err != nil {
			return nil, &cypher.ConfigurationError{Msg: err.Error()}
		}
		var stored map[storage.NodeID][]float32
		if idx.storeEmbeddings {
			stored, err = db.sess.VectorEntries(ctx, index)
			if err != nil {
				return nil, err
			}
		}
		candidates := make([]search.Candidate, len(live))
		byID := make(map[int64]*storage.Node, len(live))
		for i, hit := range live {
			candidates[i] = search.Candidate{
				ID:     hit.result.ID,
				Score:  hit.result.Score,
				Vector: stored[storage.NodeID(hit.result.ID)],
				Node:   hit.node.Properties,
			}
			byID[hit.result.ID] = hit.node
		}
		reranked := reranker(query, candidates)
		out := make([]VectorHit, 0, k)
		for _, r := range reranked {
			node, ok := byID[r.ID]
			if !ok {
				continue
			}
			out = append(out, VectorHit{Node: node, Score: r.Score})
			if len(out) == k {
				break
			}
		}
		return out, nil
	}

	out := make([]VectorHit, 0, k)
	for _, hit := range live {
		out = append(out, VectorHit{Node: hit.node, Score: hit.result.Score})
		if len(out) == k {
			break
		}
	}
	return out, nil
}

// SearchVectorText embeds the query text and searches.
func (db *DB) SearchVectorText(ctx context.Context, index, query string, k int, opts SearchOptions) ([]VectorHit, error) {
	idx, err := db.vectors.get(index)
	if err != nil {
		return nil, err
	}
	if idx.embedder == "" {
		return nil, &cypher.ConfigurationError{
			Msg: fmt.Sprintf("vector index %q has no embedding function", index),
		}
	}
	embed, err := search.GetEmbedder(idx.embedder)
	if err != nil {
		return nil, &cypher.ConfigurationError{Msg: err.Error()}
	}
	vec, err := embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return db.SearchVector(ctx, index, vec, k, opts)
}

// --- Cypher procedures over the vector subsystem ---

func (db *DB) registerVectorProcedures() {
	db.procs.Register(&cypher.Procedure{
		Name:    "db.vector.search",
		Columns: []string{"node", "score"},
		Call: func(ctx context.Context, ex *cypher.Executor, args []any) ([]map[string]any, error) {
			if len(args) < 2 {
				return nil, &cypher.ConfigurationError{Msg: "db.vector.search expects (index, query, k?, options?)"}
			}
			index, ok := args[0].(string)
			if !ok {
				return nil, &cypher.ConfigurationError{Msg: "db.vector.search index must be a string"}
			}
			k := 0
			if len(args) > 2 && args[2] != nil {
				n, ok := asInt(args[2])
				if !ok || n <= 0 {
					return nil, &cypher.ConfigurationError{Msg: "db.vector.search k must be a positive integer"}
				}
				k = n
			}
			opts := SearchOptions{}
			if len(args) > 3 && args[3] != nil {
				m, ok := args[3].(map[string]any)
				if !ok {
					return nil, &cypher.ConfigurationError{Msg: "db.vector.search options must be a map"}
				}
				var err error
				opts, err = parseSearchOptions(m)
				if err != nil {
					return nil, err
				}
			}
			var hits []VectorHit
			var err error
			switch q := args[1].(type) {
			case string:
				hits, err = db.SearchVectorText(ctx, index, q, k, opts)
			case []any:
				vec := make([]float32, len(q))
				for i, item := range q {
					f, ok := asFloat(item)
					if !ok {
						return nil, &cypher.ConfigurationError{Msg: "query vector must be numeric"}
					}
					vec[i] = float32(f)
				}
				hits, err = db.SearchVector(ctx, index, vec, k, opts)
			default:
				return nil, &cypher.ConfigurationError{Msg: "db.vector.search query must be a vector or text"}
			}
			if err != nil {
				return nil, err
			}
			rows := make([]map[string]any, len(hits))
			for i, hit := range hits {
				rows[i] = map[string]any{"node": hit.Node, "score": hit.Score}
			}
			return rows, nil
		},
	})
	db.procs.Register(&cypher.Procedure{
		Name:    "db.index.vector.create",
		Columns: []string{"name", "dimension", "backend"},
		Call: func(ctx context.Context, ex *cypher.Executor, args []any) ([]map[string]any, error) {
			if len(args) < 2 {
				return nil, &cypher.ConfigurationError{Msg: "db.index.vector.create expects (name, dimension, backend?, options?)"}
			}
			name, ok := args[0].(string)
			if !ok {
				return nil, &cypher.ConfigurationError{Msg: "index name must be a string"}
			}
			dim, ok := asInt(args[1])
			if !ok {
				return nil, &cypher.ConfigurationError{Msg: "dimension must be an integer"}
			}
			backend := "exact"
			if len(args) > 2 && args[2] != nil {
				if s, ok := args[2].(string); ok {
					backend = s
				}
			}
			var options map[string]any
			if len(args) > 3 && args[3] != nil {
				options, _ = args[3].(map[string]any)
			}
			if err := db.CreateVectorIndex(ctx, name, dim, backend, options); err != nil {
				return nil, err
			}
			return []map[string]any{{
				"name": name, "dimension": int64(dim), "backend": backend,
			}}, nil
		},
	})
	db.procs.Register(&cypher.Procedure{
		Name:    "db.index.vector.drop",
		Columns: []string{"name", "dropped"},
		Call: func(ctx context.Context, ex *cypher.Executor, args []any) ([]map[string]any, error) {
			if len(args) < 1 {
				return nil, &cypher.ConfigurationError{Msg: "db.index.vector.drop expects (name)"}
			}
			name, ok := args[0].(string)
			if !ok {
				return nil, &cypher.ConfigurationError{Msg: "index name must be a string"}
			}
			if err := db.DropVectorIndex(ctx, name); err != nil {
				return nil, err
			}
			return []map[string]any{{"name": name, "dropped": true}}, nil
		},
	})
}

func parseSearchOptions(m map[string]any) (SearchOptions, error) {
	opts := SearchOptions{}
	for key, raw := range m {
		switch strings.ToLower(key) {
		case "labels":
			list, ok := raw.([]any)
			if !ok {
				return opts, &cypher.ConfigurationError{Msg: "option labels must be a list"}
			}
			for _, item := range list {
				s, ok := item.(string)
				if !ok {
					return opts, &cypher.ConfigurationError{Msg: "option labels must contain strings"}
				}
				opts.Labels = append(opts.Labels, s)
			}
		case "properties":
			props, ok := raw.(map[string]any)
			if !ok {
				return opts, &cypher.ConfigurationError{Msg: "option properties must be a map"}
			}
			opts.Properties = props
		case "rerank":
			b, ok := raw.(bool)
			if !ok {
				return opts, &cypher.ConfigurationError{Msg: "option rerank must be a boolean"}
			}
			opts.Rerank = b
		case "reranker":
			s, ok := raw.(string)
			if !ok {
				return opts, &cypher.ConfigurationError{Msg: "option reranker must be a string"}
			}
			opts.Reranker = s
		case "candidate_multiplier":
			n, ok := asInt(raw)
			if !ok || n <= 0 {
				return opts, &cypher.ConfigurationError{Msg: "option candidate_multiplier must be a positive integer"}
			}
			opts.CandidateMultiplier = n
		default:
			return opts, &cypher.ConfigurationError{Msg: fmt.Sprintf("unknown search option %q", key)}
		}
	}
	return opts, nil
}

func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}
