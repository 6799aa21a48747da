package search

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"sync"
)

func init() {
	RegisterBackend("exact", func(dim int, space string, _ map[string]any) (Backend, error) {
		return NewBruteForce(dim, space)
	})
}

// BruteForce is the exact reference backend: a linear scan over every
// stored vector. It supports every distance space, honors filter pushdown,
// and is the correctness baseline approximate backends are tested against.
type BruteForce struct {
	space string
	dims  int

	mu      sync.RWMutex
	vectors map[int64][]float32
}

// NewBruteForce builds the exact backend.
func NewBruteForce(dim int, space string) (*BruteForce, error) {
	switch space {
	case SpaceL2, SpaceIP, SpaceCosine:
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSpace, space)
	}
	return &BruteForce{dims: dim, space: space, vectors: map[int64][]float32{}}, nil
}

func (b *BruteForce) Spaces() []string { return []string{SpaceL2, SpaceIP, SpaceCosine} }

func (b *BruteForce) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.vectors)
}

// Add inserts or replaces a vector.
func (b *BruteForce) Add(id int64, vec []float32) error {
	if len(vec) != b.dims {
		return fmt.Errorf("%w: got %d, index is %d", ErrDimensionMismatch, len(vec), b.dims)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.vectors[id] = append([]float32{}, vec...)
	return nil
}

// Remove deletes a vector; removing an absent id is a no-op.
func (b *BruteForce) Remove(id int64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.vectors, id)
	return nil
}

// Search returns the k nearest ids by distance, ties broken by id.
func (b *BruteForce) Search(vec []float32, k int, filter Filter) ([]Result, error) {
	if len(vec) != b.dims {
		return nil, fmt.Errorf("%w: got %d, index is %d", ErrDimensionMismatch, len(vec), b.dims)
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	results := make([]Result, 0, len(b.vectors))
	for id, stored := range b.vectors {
		if filter != nil && !filter(id) {
			continue
		}
		results = append(results, Result{ID: id, Score: Distance(b.space, vec, stored)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score < results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

type brutePersist struct {
	Dims    int                 `json:"dims"`
	Space   string              `json:"space"`
	Vectors map[int64][]float32 `json:"vectors"`
}

// Persist writes the index to path as JSON.
func (b *BruteForce) Persist(path string) error {
	b.mu.RLock()
	snapshot := brutePersist{Dims: b.dims, Space: b.space, Vectors: make(map[int64][]float32, len(b.vectors))}
	for id, vec := range b.vectors {
		snapshot.Vectors[id] = vec
	}
	b.mu.RUnlock()
	data, err := json.Marshal(snapshot)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// Load replaces the index contents from a persisted file.
func (b *BruteForce) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var snapshot brutePersist
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return fmt.Errorf("load vector index: %w", err)
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.dims = snapshot.Dims
	b.space = snapshot.Space
	b.vectors = snapshot.Vectors
	if b.vectors == nil {
		b.vectors = map[int64][]float32{}
	}
	return nil
}
