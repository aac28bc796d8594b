package retrieval

import (
	"context"

	"github.com/amanmcp-labs/memoryd/internal/fusion"
)

// CodeHit is one code-search result (vector or BM25) over indexed chunks.
type CodeHit struct {
	ID        string
	FilePath  string
	Content   string
	Language  string
	StartLine int
	EndLine   int
	Score     float64
}

// ScoredCode is one fused search_code result.
type ScoredCode struct {
	CodeHit
	Combined float64
	Vector   float64
	BM25     float64
}

// CodeVectorStore performs cosine-similarity search over code chunk embeddings.
type CodeVectorStore interface {
	VectorSearchCode(ctx context.Context, embedding []float32, projectID string, k int) ([]CodeHit, error)
}

// CodeLexicalStore performs BM25 search over code chunk content.
type CodeLexicalStore interface {
	BM25SearchCode(ctx context.Context, query, projectID string, k int) ([]CodeHit, error)
}

// CodeSearcher fuses vector and BM25 results over the code index (spec.md
// §4.9's vector_search_code/bm25_search_code, combined the same way
// Recaller fuses memory search: RRF over both sources).
type CodeSearcher struct {
	vector   CodeVectorStore
	lexical  CodeLexicalStore
	embedder Embedder
}

// NewCodeSearcher constructs a CodeSearcher.
func NewCodeSearcher(vector CodeVectorStore, lexical CodeLexicalStore, embedder Embedder) *CodeSearcher {
	return &CodeSearcher{vector: vector, lexical: lexical, embedder: embedder}
}

// Search embeds query, runs vector search and then BM25 search over
// projectID (all projects if empty), and fuses the results with RRF.
func (c *CodeSearcher) Search(ctx context.Context, query, projectID string, k int) ([]ScoredCode, error) {
	embedding, err := c.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	vecHits, err := c.vector.VectorSearchCode(ctx, embedding, projectID, k*oversampleFactor)
	if err != nil {
		return nil, err
	}
	bm25Hits, err := c.lexical.BM25SearchCode(ctx, query, projectID, k*oversampleFactor)
	if err != nil {
		return nil, err
	}

	// No graph signal exists over code chunks, so the two sources are
	// weighted equally (spec.md §4.5's two-source RRF example: w_vec = w_bm25 = 0.5).
	sources := []fusion.Source{
		{Name: "vector", Weight: 0.5, Items: toCodeRanked(vecHits)},
		{Name: "bm25", Weight: 0.5, Items: toCodeRanked(bm25Hits)},
	}
	fused := fusion.Truncate(fusion.RRF(sources, fusion.DefaultK), k)

	byID := make(map[string]CodeHit, len(vecHits)+len(bm25Hits))
	for _, h := range bm25Hits {
		byID[h.ID] = h
	}
	for _, h := range vecHits {
		byID[h.ID] = h
	}

	out := make([]ScoredCode, 0, len(fused))
	for _, f := range fused {
		out = append(out, ScoredCode{
			CodeHit:  byID[f.ID],
			Combined: f.RRFScore,
			Vector:   f.PerSource["vector"].Score,
			BM25:     f.PerSource["bm25"].Score,
		})
	}
	return out, nil
}

func toCodeRanked(hits []CodeHit) []fusion.Ranked {
	out := make([]fusion.Ranked, len(hits))
	for i, h := range hits {
		out[i] = fusion.Ranked{ID: h.ID, Score: h.Score}
	}
	return out
}
