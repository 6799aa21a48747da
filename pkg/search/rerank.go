package search

import (
	"fmt"
	"sort"
	"sync"
)

// Candidate is one over-pulled hit handed to a reranker: the backend's
// distance plus the stored vector and (when available) the node's property
// map for content-aware rerankers.
type Candidate struct {
	ID     int64
	Vector []float32
	Score  float64
	Node   map[string]any
}

// Reranker reorders candidates for a query. The returned slice defines the
// final order; the caller trims to k.
type Reranker func(query []float32, candidates []Candidate) []Result

var (
	rerankersMu sync.RWMutex
	rerankers   = map[string]Reranker{}
)

// RegisterReranker installs a reranker under a name.
func RegisterReranker(name string, fn Reranker) {
	rerankersMu.Lock()
	defer rerankersMu.Unlock()
	rerankers[name] = fn
}

// GetReranker resolves a reranker by name.
func GetReranker(name string) (Reranker, error) {
	rerankersMu.RLock()
	defer rerankersMu.RUnlock()
	fn, ok := rerankers[name]
	if !ok {
		return nil, fmt.Errorf("unknown reranker %q", name)
	}
	return fn, nil
}

// IdentityReranker rescores candidates by exact cosine distance against
// their stored vectors. It is the default when rerank is requested without
// naming a reranker, and requires stored embeddings.
func IdentityReranker(query []float32, candidates []Candidate) []Result {
	out := make([]Result, 0, len(candidates))
	for _, c := range candidates {
		score := c.Score
		if len(c.Vector) == len(query) && len(query) > 0 {
			score = Distance(SpaceCosine, query, c.Vector)
		}
		out = append(out, Result{ID: c.ID, Score: score})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score < out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func init() {
	RegisterReranker("identity", IdentityReranker)
}
