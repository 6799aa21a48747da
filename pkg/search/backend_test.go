package search

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
)

func TestBruteForceReturnsKSmallestWithIDTieBreak(t *testing.T) {
	b, err := NewBruteForce(3, SpaceL2)
	if err != nil {
		t.Fatal(err)
	}
	vectors := map[int64][]float32{
		1: {1, 0, 0},
		2: {0, 1, 0},
		3: {0.9, 0.1, 0},
		4: {1, 0, 0}, // exact duplicate of 1: tie broken by id
	}
	for id, vec := range vectors {
		if err := b.Add(id, vec); err != nil {
			t.Fatal(err)
		}
	}
	results, err := b.Search([]float32{1, 0, 0}, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 3 {
		t.Fatalf("results = %v", results)
	}
	if results[0].ID != 1 || results[1].ID != 4 {
		t.Errorf("tie break order = %d, %d; want 1, 4", results[0].ID, results[1].ID)
	}
	if results[2].ID != 3 {
		t.Errorf("third = %d, want 3", results[2].ID)
	}
	if results[0].Score != 0 {
		t.Errorf("exact match distance = %v", results[0].Score)
	}
}

func TestBruteForceSpacesAndFilters(t *testing.T) {
	b, _ := NewBruteForce(2, SpaceCosine)
	b.Add(1, []float32{1, 0})
	b.Add(2, []float32{0, 1})
	b.Add(3, []float32{1, 1})

	results, err := b.Search([]float32{1, 0}, 3, func(id int64) bool { return id != 1 })
	if err != nil {
		t.Fatal(err)
	}
	for _, r := range results {
		if r.ID == 1 {
			t.Error("filtered id surfaced")
		}
	}
	if results[0].ID != 3 {
		t.Errorf("closest unfiltered = %d", results[0].ID)
	}

	if _, err := b.Search([]float32{1}, 1, nil); !errors.Is(err, ErrDimensionMismatch) {
		t.Errorf("dimension mismatch error = %v", err)
	}
	if _, err := NewBruteForce(2, "hamming"); !errors.Is(err, ErrUnknownSpace) {
		t.Errorf("unknown space error = %v", err)
	}
}

func TestBruteForcePersistLoad(t *testing.T) {
	b, _ := NewBruteForce(2, SpaceL2)
	b.Add(1, []float32{1, 2})
	b.Add(2, []float32{3, 4})
	path := filepath.Join(t.TempDir(), "index.json")
	if err := b.Persist(path); err != nil {
		t.Fatal(err)
	}
	fresh, _ := NewBruteForce(0, SpaceL2)
	if err := fresh.Load(path); err != nil {
		t.Fatal(err)
	}
	if fresh.Size() != 2 {
		t.Errorf("size after load = %d", fresh.Size())
	}
	results, err := fresh.Search([]float32{1, 2}, 1, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != 1 {
		t.Errorf("search after load = %v", results)
	}
}

func TestDistanceMetrics(t *testing.T) {
	a := []float32{1, 0}
	b := []float32{0, 1}
	if d := Distance(SpaceL2, a, b); math.Abs(d-math.Sqrt2) > 1e-9 {
		t.Errorf("l2 = %v", d)
	}
	if d := Distance(SpaceIP, a, a); d != -1 {
		t.Errorf("ip = %v", d)
	}
	if d := Distance(SpaceCosine, a, b); math.Abs(d-1) > 1e-9 {
		t.Errorf("cosine orthogonal = %v", d)
	}
	if d := Distance(SpaceCosine, a, a); math.Abs(d) > 1e-9 {
		t.Errorf("cosine identical = %v", d)
	}
}

func TestRegistry(t *testing.T) {
	for _, tag := range []string{"exact", "hnsw"} {
		b, err := NewBackend(tag, 4, SpaceL2, nil)
		if err != nil {
			t.Errorf("NewBackend(%q): %v", tag, err)
			continue
		}
		if b.Size() != 0 {
			t.Errorf("fresh %q backend non-empty", tag)
		}
	}
	if _, err := NewBackend("nope", 4, SpaceL2, nil); !errors.Is(err, ErrUnknownBackend) {
		t.Errorf("unknown backend error = %v", err)
	}
}

func TestHNSWAgreesWithBruteForceOnSmallSets(t *testing.T) {
	brute, _ := NewBruteForce(4, SpaceCosine)
	hnsw, err := NewHNSW(4, SpaceCosine, DefaultHNSWConfig())
	if err != nil {
		t.Fatal(err)
	}
	vectors := [][]float32{
		{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1},
		{0.9, 0.1, 0, 0}, {0.5, 0.5, 0, 0}, {0.1, 0.9, 0, 0},
	}
	for i, vec := range vectors {
		id := int64(i + 1)
		brute.Add(id, vec)
		if err := hnsw.Add(id, vec); err != nil {
			t.Fatal(err)
		}
	}
	query := []float32{1, 0.05, 0, 0}
	want, _ := brute.Search(query, 3, nil)
	got, err := hnsw.Search(query, 3, nil)
	if err != nil {
		t.Fatal(err)
	}
	// on a set this small the candidate pool is saturated: exact agreement
	if len(got) != len(want) {
		t.Fatalf("hnsw = %v, brute = %v", got, want)
	}
	for i := range want {
		if got[i].ID != want[i].ID {
			t.Errorf("rank %d: hnsw %d, brute %d", i, got[i].ID, want[i].ID)
		}
	}
}

func TestHNSWRemove(t *testing.T) {
	hnsw, _ := NewHNSW(2, SpaceL2, DefaultHNSWConfig())
	hnsw.Add(1, []float32{0, 0})
	hnsw.Add(2, []float32{1, 1})
	hnsw.Remove(1)
	if hnsw.Size() != 1 {
		t.Fatalf("size = %d", hnsw.Size())
	}
	results, err := hnsw.Search([]float32{0, 0}, 2, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != 2 {
		t.Errorf("results after remove = %v", results)
	}
}

func TestHNSWPersistLoad(t *testing.T) {
	hnsw, _ := NewHNSW(2, SpaceL2, DefaultHNSWConfig())
	for i := int64(1); i <= 5; i++ {
		hnsw.Add(i, []float32{float32(i), 0})
	}
	path := filepath.Join(t.TempDir(), "hnsw.json")
	if err := hnsw.Persist(path); err != nil {
		t.Fatal(err)
	}
	fresh, _ := NewHNSW(2, SpaceL2, DefaultHNSWConfig())
	if err := fresh.Load(path); err != nil {
		t.Fatal(err)
	}
	if fresh.Size() != 5 {
		t.Fatalf("size after load = %d", fresh.Size())
	}
	results, _ := fresh.Search([]float32{1, 0}, 1, nil)
	if len(results) != 1 || results[0].ID != 1 {
		t.Errorf("search after load = %v", results)
	}
}

func TestIdentityReranker(t *testing.T) {
	query := []float32{1, 0}
	candidates := []Candidate{
		{ID: 1, Vector: []float32{0, 1}, Score: 0.1},  // backend liked it, vector says no
		{ID: 2, Vector: []float32{1, 0}, Score: 0.9},  // backend disliked it, vector says yes
	}
	out := IdentityReranker(query, candidates)
	if out[0].ID != 2 || out[1].ID != 1 {
		t.Errorf("reranked order = %v", out)
	}

	if _, err := GetReranker("identity"); err != nil {
		t.Errorf("identity reranker not registered: %v", err)
	}
	if _, err := GetReranker("nope"); err == nil {
		t.Error("unknown reranker should error")
	}
}

func TestEmbedderRegistry(t *testing.T) {
	RegisterEmbedder("test-static", func(_ context.Context, text string) ([]float32, error) {
		return []float32{float32(len(text))}, nil
	})
	fn, err := GetEmbedder("test-static")
	if err != nil {
		t.Fatal(err)
	}
	vec, err := fn(context.Background(), "abc")
	if err != nil || len(vec) != 1 || vec[0] != 3 {
		t.Errorf("embedder = %v, %v", vec, err)
	}
	if _, err := GetEmbedder("missing"); err == nil {
		t.Error("unknown embedder should error")
	}
}
