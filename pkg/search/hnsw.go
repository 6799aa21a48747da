package search

import (
	"container/heap"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"sort"
	"sync"
)

func init() {
	RegisterBackend("hnsw", func(dim int, space string, options map[string]any) (Backend, error) {
		cfg := DefaultHNSWConfig()
		if m, ok := intOption(options, "m"); ok {
			cfg.M = m
			cfg.LevelMultiplier = 1.0 / math.Log(float64(m))
		}
		if ef, ok := intOption(options, "ef_construction"); ok {
			cfg.EfConstruction = ef
		}
		if ef, ok := intOption(options, "ef_search"); ok {
			cfg.EfSearch = ef
		}
		return NewHNSW(dim, space, cfg)
	})
}

func intOption(options map[string]any, key string) (int, bool) {
	switch v := options[key].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

// HNSWConfig tunes the hierarchical graph.
type HNSWConfig struct {
	M               int     // max connections per node per layer
	EfConstruction  int     // candidate list size during construction
	EfSearch        int     // candidate list size during search
	LevelMultiplier float64 // 1/ln(M)
}

// DefaultHNSWConfig returns the standard parameters.
func DefaultHNSWConfig() HNSWConfig {
	return HNSWConfig{
		M:               16,
		EfConstruction:  200,
		EfSearch:        100,
		LevelMultiplier: 1.0 / math.Log(16.0),
	}
}

type hnswNode struct {
	id        int64
	vector    []float32
	level     int
	neighbors [][]int64
}

// HNSW is an approximate backend over a hierarchical small-world graph.
// Search cost is logarithmic in the index size; recall depends on
// EfSearch. Filters are applied to the base-layer candidate list after the
// sweep, so filtered searches stay approximate but never return rejected ids.
type HNSW struct {
	config HNSWConfig
	dims   int
	space  string

	mu         sync.RWMutex
	nodes      map[int64]*hnswNode
	entryPoint int64
	hasEntry   bool
	maxLevel   int
	rng        *rand.Rand
}

// NewHNSW builds an HNSW backend.
func NewHNSW(dim int, space string, cfg HNSWConfig) (*HNSW, error) {
	switch space {
	case SpaceL2, SpaceIP, SpaceCosine:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpace, space)
	}
	if cfg.M == 0 {
		cfg = DefaultHNSWConfig()
	}
	return &HNSW{
		config: cfg,
		dims:   dim,
		space:  space,
		nodes:  map[int64]*hnswNode{},
		rng:    rand.New(rand.NewSource(1)),
	}, nil
}

func (h *HNSW) Spaces() []string { return []string{SpaceL2, SpaceIP, SpaceCosine} }

func (h *HNSW) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.nodes)
}

func (h *HNSW) dist(a, b []float32) float64 { return Distance(h.space, a, b) }

// Add inserts a vector, replacing any existing entry for the id.
func (h *HNSW) Add(id int64, vec []float32) error {
	if len(vec) != h.dims {
		return fmt.Errorf("%w: got %d, index is %d", ErrDimensionMismatch, len(vec), h.dims)
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.nodes[id]; exists {
		h.removeLocked(id)
	}
	level := h.randomLevel()
	node := &hnswNode{
		id:        id,
		vector:    append([]float32{}, vec...),
		level:     level,
		neighbors: make([][]int64, level+1),
	}
	for i := range node.neighbors {
		node.neighbors[i] = make([]int64, 0, h.config.M)
	}
	h.nodes[id] = node

	if !h.hasEntry {
		h.entryPoint = id
		h.hasEntry = true
		h.maxLevel = level
		return nil
	}

	ep := h.entryPoint
	epLevel := h.nodes[ep].level
	for l := epLevel; l > level; l-- {
		ep = h.greedyClosest(vec, ep, l)
	}
	for l := min(level, epLevel); l >= 0; l-- {
		candidates := h.searchLayer(vec, ep, h.config.EfConstruction, l)
		neighbors := h.selectNeighbors(vec, candidates, h.config.M)
		node.neighbors[l] = neighbors
		for _, nbrID := range neighbors {
			nbr := h.nodes[nbrID]
			if len(nbr.neighbors) <= l {
				continue
			}
			if len(nbr.neighbors[l]) < h.config.M {
				nbr.neighbors[l] = append(nbr.neighbors[l], id)
			} else {
				all := append(append([]int64{}, nbr.neighbors[l]...), id)
				nbr.neighbors[l] = h.selectNeighbors(nbr.vector, all, h.config.M)
			}
		}
		if len(candidates) > 0 {
			ep = candidates[0]
		}
	}
	if level > h.maxLevel {
		h.entryPoint = id
		h.maxLevel = level
	}
	return nil
}

// Remove deletes a vector and unlinks it from its neighbors.
func (h *HNSW) Remove(id int64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeLocked(id)
	return nil
}

func (h *HNSW) removeLocked(id int64) {
	node, exists := h.nodes[id]
	if !exists {
		return
	}
	for l := 0; l <= node.level; l++ {
		for _, nbrID := range node.neighbors[l] {
			nbr, ok := h.nodes[nbrID]
			if !ok || len(nbr.neighbors) <= l {
				continue
			}
			kept := nbr.neighbors[l][:0]
			for _, nid := range nbr.neighbors[l] {
				if nid != id {
					kept = append(kept, nid)
				}
			}
			nbr.neighbors[l] = kept
		}
	}
	delete(h.nodes, id)
	if h.hasEntry && h.entryPoint == id {
		h.hasEntry = false
		h.maxLevel = 0
		for nid, n := range h.nodes {
			if !h.hasEntry || n.level > h.maxLevel {
				h.entryPoint = nid
				h.hasEntry = true
				h.maxLevel = n.level
			}
		}
	}
}

// Search returns up to k approximate nearest ids by distance.
func (h *HNSW) Search(vec []float32, k int, filter Filter) ([]Result, error) {
	if len(vec) != h.dims {
		return nil, fmt.Errorf("%w: got %d, index is %d", ErrDimensionMismatch, len(vec), h.dims)
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	if !h.hasEntry {
		return nil, nil
	}
	ep := h.entryPoint
	for l := h.maxLevel; l > 0; l-- {
		ep = h.greedyClosest(vec, ep, l)
	}
	ef := h.config.EfSearch
	if ef < k {
		ef = k
	}
	candidates := h.searchLayer(vec, ep, ef, 0)
	results := make([]Result, 0, k)
	for _, id := range candidates {
		if filter != nil && !filter(id) {
			continue
		}
		results = append(results, Result{ID: id, Score: h.dist(vec, h.nodes[id].vector)})
		if len(results) >= k {
			break
		}
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	return results, nil
}

func (h *HNSW) greedyClosest(query []float32, entry int64, level int) int64 {
	current := entry
	currentDist := h.dist(query, h.nodes[current].vector)
	for {
		changed := false
		for _, nbrID := range h.nodes[current].neighbors[level] {
			nbr, ok := h.nodes[nbrID]
			if !ok {
				continue
			}
			if d := h.dist(query, nbr.vector); d < currentDist {
				current, currentDist = nbrID, d
				changed = true
			}
		}
		if !changed {
			return current
		}
	}
}

func (h *HNSW) searchLayer(query []float32, entry int64, ef, level int) []int64 {
	visited := map[int64]bool{entry: true}
	entryDist := h.dist(query, h.nodes[entry].vector)

	candidates := &distHeap{}
	results := &distHeap{}
	heap.Push(candidates, distItem{id: entry, dist: entryDist, isMax: false})
	heap.Push(results, distItem{id: entry, dist: entryDist, isMax: true})

	for candidates.Len() > 0 {
		closest := heap.Pop(candidates).(distItem)
		if results.Len() >= ef && closest.dist > (*results)[0].dist {
			break
		}
		node := h.nodes[closest.id]
		if len(node.neighbors) <= level {
			continue
		}
		for _, nbrID := range node.neighbors[level] {
			if visited[nbrID] {
				continue
			}
			visited[nbrID] = true
			nbr, ok := h.nodes[nbrID]
			if !ok {
				continue
			}
			d := h.dist(query, nbr.vector)
			if results.Len() < ef || d < (*results)[0].dist {
				heap.Push(candidates, distItem{id: nbrID, dist: d, isMax: false})
				heap.Push(results, distItem{id: nbrID, dist: d, isMax: true})
				if results.Len() > ef {
					heap.Pop(results)
				}
			}
		}
	}
	out := make([]int64, results.Len())
	for i := results.Len() - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(distItem).id
	}
	return out
}

func (h *HNSW) selectNeighbors(query []float32, candidates []int64, m int) []int64 {
	if len(candidates) <= m {
		return append([]int64{}, candidates...)
	}
	type distNode struct {
		id   int64
		dist float64
	}
	dists := make([]distNode, len(candidates))
	for i, cid := range candidates {
		dists[i] = distNode{id: cid, dist: h.dist(query, h.nodes[cid].vector)}
	}
	sort.Slice(dists, func(i, j int) bool { return dists[i].dist < dists[j].dist })
	out := make([]int64, m)
	for i := 0; i < m; i++ {
		out[i] = dists[i].id
	}
	return out
}

func (h *HNSW) randomLevel() int {
	r := h.rng.Float64()
	for r == 0 {
		r = h.rng.Float64()
	}
	return int(-math.Log(r) * h.config.LevelMultiplier)
}

type hnswPersist struct {
	Dims  int    `json:"dims"`
	Space string `json:"space"`
	M     int    `json:"m"`
	EfC   int    `json:"ef_construction"`
	EfS   int    `json:"ef_search"`
	Items map[int64][]float32
}

// Persist snapshots the stored vectors; the graph is rebuilt on Load.
func (h *HNSW) Persist(path string) error {
	h.mu.RLock()
	snapshot := hnswPersist{
		Dims: h.dims, Space: h.space,
		M: h.config.M, EfC: h.config.EfConstruction, EfS: h.config.EfSearch,
		Items: make(map[int64][]float32, len(h.nodes)),
	}
	for id, node := range h.nodes {
		snapshot.Items[id] = node.vector
	}
	h.mu.RUnlock()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load rebuilds the index from a persisted snapshot.
func (h *HNSW) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snapshot hnswPersist
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("load hnsw index: %w", err)
	}
	cfg := HNSWConfig{
		M: snapshot.M, EfConstruction: snapshot.EfC, EfSearch: snapshot.EfS,
	}
	if cfg.M == 0 {
		cfg = DefaultHNSWConfig()
	} else {
		cfg.LevelMultiplier = 1.0 / math.Log(float64(cfg.M))
	}
	fresh, err := NewHNSW(snapshot.Dims, snapshot.Space, cfg)
	if err != nil {
		return err
	}
	ids := make([]int64, 0, len(snapshot.Items))
	for id := range snapshot.Items {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	for _, id := range ids {
		if err := fresh.Add(id, snapshot.Items[id]); err != nil {
			return err
		}
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.config = fresh.config
	h.dims = fresh.dims
	h.space = fresh.space
	h.nodes = fresh.nodes
	h.entryPoint = fresh.entryPoint
	h.hasEntry = fresh.hasEntry
	h.maxLevel = fresh.maxLevel
	return nil
}

type distItem struct {
	id    int64
	dist  float64
	isMax bool
}

type distHeap []distItem

func (dh distHeap) Len() int { return len(dh) }
func (dh distHeap) Less(i, j int) bool {
	if dh[i].isMax {
		return dh[i].dist > dh[j].dist
	}
	return dh[i].dist < dh[j].dist
}
func (dh distHeap) Swap(i, j int)  { dh[i], dh[j] = dh[j], dh[i] }
func (dh *distHeap) Push(x any)    { *dh = append(*dh, x.(distItem)) }
func (dh *distHeap) Pop() any {
	old := *dh
	n := len(old)
	x := old[n-1]
	*dh = old[:n-1]
	return x
}
