// Package retrieval implements hybrid memory recall (spec.md §4.13): query
// embedding, concurrent vector and BM25 search, knowledge-graph PPR over
// the subgraph touched by those results, and Reciprocal Rank Fusion across
// all three signals.
package retrieval

import (
	"context"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/amanmcp-labs/memoryd/internal/fusion"
	"github.com/amanmcp-labs/memoryd/internal/graphcore"
	"github.com/amanmcp-labs/memoryd/internal/types"
)

// DefaultWeights are the recall fusion weights from spec.md §4.13.
var DefaultWeights = Weights{Vector: 0.40, BM25: 0.15, PPR: 0.45}

// Weights controls each source's contribution to the fused ranking.
type Weights struct {
	Vector float64
	BM25   float64
	PPR    float64
}

// oversampleFactor is how many more candidates than k are requested from
// each source before fusion narrows back down (spec.md §4.13 step 2: 3k).
const oversampleFactor = 3

// maxPPRSeeds bounds how many union IDs seed the PPR walk (spec.md §4.13
// step 4: "seed with up to 20").
const maxPPRSeeds = 20

// MemoryHit is one result returned by a single-source search.
type MemoryHit struct {
	ID      string
	Content string
	Kind    types.MemoryKind
	Score   float64
}

// ScoredMemory is one fused recall result (spec.md §4.13 step 6).
type ScoredMemory struct {
	ID       string
	Content  string
	Kind     types.MemoryKind
	Combined float64
	Vector   float64
	BM25     float64
	PPR      float64
}

// VectorStore performs cosine-similarity search over memory embeddings.
type VectorStore interface {
	VectorSearchMemories(ctx context.Context, embedding []float32, k int) ([]MemoryHit, error)
}

// LexicalStore performs BM25 search over memory content.
type LexicalStore interface {
	BM25SearchMemories(ctx context.Context, query string, k int) ([]MemoryHit, error)
}

// GraphStore supplies the entity/relation subgraph touching a set of
// record IDs, used to seed the PPR walk.
type GraphStore interface {
	Subgraph(ctx context.Context, ids []string) (*graphcore.Graph, error)
}

// Embedder embeds free text for vector search.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Recaller orchestrates hybrid recall over the three sources.
type Recaller struct {
	vector   VectorStore
	lexical  LexicalStore
	graph    GraphStore
	embedder Embedder
}

// New constructs a Recaller. graph may be nil, in which case recall
// degrades to vector+BM25 fusion with no PPR contribution.
func New(vector VectorStore, lexical LexicalStore, graph GraphStore, embedder Embedder) *Recaller {
	return &Recaller{vector: vector, lexical: lexical, graph: graph, embedder: embedder}
}

// Recall runs the full hybrid pipeline (spec.md §4.13) and returns at most
// k fused ScoredMemory results.
func (r *Recaller) Recall(ctx context.Context, query string, k int, weights Weights) ([]ScoredMemory, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	vecHits, bm25Hits, err := r.searchSources(ctx, query, embedding, k*oversampleFactor)
	if err != nil {
		return nil, err
	}

	union := unionIDs(vecHits, bm25Hits)

	pprRanked, pprScores := r.runPPR(ctx, union)

	sources := []fusion.Source{
		{Name: "vector", Weight: weights.Vector, Items: toRanked(vecHits)},
		{Name: "bm25", Weight: weights.BM25, Items: toRanked(bm25Hits)},
		{Name: "ppr", Weight: weights.PPR, Items: pprRanked},
	}

	fused := fusion.Truncate(fusion.RRF(sources, fusion.DefaultK), k)

	contentByID := make(map[string]MemoryHit, len(vecHits)+len(bm25Hits))
	for _, h := range bm25Hits {
		contentByID[h.ID] = h
	}
	for _, h := range vecHits {
		contentByID[h.ID] = h // vector's copy takes precedence (spec.md §4.13 step 6)
	}

	out := make([]ScoredMemory, 0, len(fused))
	for _, f := range fused {
		hit := contentByID[f.ID]
		out = append(out, ScoredMemory{
			ID:       f.ID,
			Content:  hit.Content,
			Kind:     hit.Kind,
			Combined: f.RRFScore,
			Vector:   f.PerSource["vector"].Score,
			BM25:     f.PerSource["bm25"].Score,
			PPR:      pprScores[f.ID],
		})
	}
	return out, nil
}

// Search is the vector-only degenerate projection of Recall (spec.md
// §4.13: "search/search_text = degenerate single-source projections").
func (r *Recaller) Search(ctx context.Context, query string, k int) ([]ScoredMemory, error) {
	embedding, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	hits, err := r.vector.VectorSearchMemories(ctx, embedding, k)
	if err != nil {
		return nil, err
	}
	return singleSourceResults(hits, k), nil
}

// SearchText is the BM25-only degenerate projection of Recall.
func (r *Recaller) SearchText(ctx context.Context, query string, k int) ([]ScoredMemory, error) {
	hits, err := r.lexical.BM25SearchMemories(ctx, query, k)
	if err != nil {
		return nil, err
	}
	return singleSourceResults(hits, k), nil
}

func singleSourceResults(hits []MemoryHit, k int) []ScoredMemory {
	out := make([]ScoredMemory, 0, len(hits))
	for _, h := range hits {
		out = append(out, ScoredMemory{ID: h.ID, Content: h.Content, Kind: h.Kind, Combined: h.Score, Vector: h.Score, BM25: h.Score})
	}
	if len(out) > k {
		out = out[:k]
	}
	return out
}

// searchSources issues vector and BM25 search concurrently, matching the
// teacher's errgroup-based parallelSearch pattern.
func (r *Recaller) searchSources(ctx context.Context, query string, embedding []float32, limit int) ([]MemoryHit, []MemoryHit, error) {
	g, gctx := errgroup.WithContext(ctx)

	var vecHits, bm25Hits []MemoryHit

	g.Go(func() error {
		hits, err := r.vector.VectorSearchMemories(gctx, embedding, limit)
		if err != nil {
			return err
		}
		vecHits = hits
		return nil
	})

	g.Go(func() error {
		hits, err := r.lexical.BM25SearchMemories(gctx, query, limit)
		if err != nil {
			return err
		}
		bm25Hits = hits
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return vecHits, bm25Hits, nil
}

// runPPR builds the subgraph touching union, runs PPR seeded on up to
// maxPPRSeeds of those IDs, applies hub dampening, and returns both the
// ranked source list (for fusion) and the raw per-ID score map (to report
// back on ScoredMemory.PPR). If no GraphStore is configured, or the
// subgraph is empty, PPR contributes nothing.
func (r *Recaller) runPPR(ctx context.Context, union []string) ([]fusion.Ranked, map[string]float64) {
	if r.graph == nil || len(union) == 0 {
		return nil, map[string]float64{}
	}

	g, err := r.graph.Subgraph(ctx, union)
	if err != nil || g == nil {
		return nil, map[string]float64{}
	}

	seeds := make([]string, 0, maxPPRSeeds)
	present := make(map[string]bool)
	for _, id := range union {
		if _, ok := g.Out[id]; ok {
			present[id] = true
		}
	}
	for _, id := range union {
		if len(seeds) >= maxPPRSeeds {
			break
		}
		if present[id] {
			seeds = append(seeds, id)
		}
	}

	scores := graphcore.PersonalizedPageRank(g, seeds)
	graphcore.HubDampen(g, scores)

	ranked := make([]fusion.Ranked, 0, len(scores))
	for id, s := range scores {
		ranked = append(ranked, fusion.Ranked{ID: id, Score: s})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].ID < ranked[j].ID
	})

	return ranked, scores
}

func toRanked(hits []MemoryHit) []fusion.Ranked {
	out := make([]fusion.Ranked, len(hits))
	for i, h := range hits {
		out[i] = fusion.Ranked{ID: h.ID, Score: h.Score}
	}
	return out
}

func unionIDs(lists ...[]MemoryHit) []string {
	seen := make(map[string]bool)
	var out []string
	for _, list := range lists {
		for _, h := range list {
			if !seen[h.ID] {
				seen[h.ID] = true
				out = append(out, h.ID)
			}
		}
	}
	return out
}
