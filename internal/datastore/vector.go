package datastore

import (
	"context"
	"math"
	"strconv"
	"sync"

	"github.com/coder/hnsw"

	"github.com/amanmcp-labs/memoryd/internal/errs"
)

// vectorHit is one nearest-neighbor result.
type vectorHit struct {
	ID    string
	Score float32
}

// vectorIndex wraps coder/hnsw for one embedding space (memories or code),
// adapted from the teacher's internal/store/hnsw.go HNSWStore: lazy
// deletion (orphaning mappings rather than mutating the graph, since
// coder/hnsw has known issues deleting its last node), cosine-normalized
// vectors, string<->uint64 ID mapping.
type vectorIndex struct {
	mu         sync.RWMutex
	graph      *hnsw.Graph[uint64]
	dimensions int

	idMap   map[string]uint64
	keyMap  map[uint64]string
	nextKey uint64
}

func newVectorIndex(dimensions int) *vectorIndex {
	g := hnsw.NewGraph[uint64]()
	g.Distance = hnsw.CosineDistance
	g.M = 32
	g.EfSearch = 64
	g.Ml = 0.25

	return &vectorIndex{
		graph:      g,
		dimensions: dimensions,
		idMap:      make(map[string]uint64),
		keyMap:     make(map[uint64]string),
	}
}

func (v *vectorIndex) Add(ctx context.Context, id string, vec []float32) error {
	if len(vec) != v.dimensions {
		return errs.New(errs.InvalidInput, "vector dimension mismatch", nil).
			WithDetail("expected", strconv.Itoa(v.dimensions)).WithDetail("got", strconv.Itoa(len(vec)))
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if existing, ok := v.idMap[id]; ok {
		delete(v.keyMap, existing)
		delete(v.idMap, id)
	}

	key := v.nextKey
	v.nextKey++

	normalized := make([]float32, len(vec))
	copy(normalized, vec)
	normalizeInPlace(normalized)

	v.graph.Add(hnsw.MakeNode(key, normalized))
	v.idMap[id] = key
	v.keyMap[key] = id
	return nil
}

func (v *vectorIndex) Delete(id string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if key, ok := v.idMap[id]; ok {
		delete(v.keyMap, key)
		delete(v.idMap, id)
	}
}

func (v *vectorIndex) Search(ctx context.Context, query []float32, k int) ([]vectorHit, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	if len(query) != v.dimensions {
		return nil, errs.New(errs.InvalidInput, "query vector dimension mismatch", nil).
			WithDetail("expected", strconv.Itoa(v.dimensions)).WithDetail("got", strconv.Itoa(len(query)))
	}
	if v.graph.Len() == 0 {
		return nil, nil
	}

	normalized := make([]float32, len(query))
	copy(normalized, query)
	normalizeInPlace(normalized)

	nodes := v.graph.Search(normalized, k)
	out := make([]vectorHit, 0, len(nodes))
	for _, n := range nodes {
		id, ok := v.keyMap[n.Key]
		if !ok {
			continue // orphaned by lazy deletion
		}
		distance := v.graph.Distance(normalized, n.Value)
		out = append(out, vectorHit{ID: id, Score: 1 - distance/2})
	}
	return out, nil
}

func (v *vectorIndex) Count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return len(v.idMap)
}

func (v *vectorIndex) Dimensions() int {
	return v.dimensions
}

func normalizeInPlace(vec []float32) {
	var sumSquares float64
	for _, x := range vec {
		sumSquares += float64(x) * float64(x)
	}
	if sumSquares == 0 {
		return
	}
	inv := float32(1.0 / math.Sqrt(sumSquares))
	for i := range vec {
		vec[i] *= inv
	}
}
