package datastore

import (
	"context"
	"strings"
	"sync"

	"github.com/blevesearch/bleve/v2"
)

// textHit is one BM25 search result.
type textHit struct {
	ID    string
	Score float64
}

// textDoc is the document shape indexed in Bleve: Content drives BM25
// matching, ValidUntilNanos gates bitemporal validity (spec.md §4.9's
// vector_search/bm25_search predicate: "valid_until none or >now"). Records
// with no expiry are stored with validUntilSentinel so a single numeric
// range query serves both cases, adapted from the teacher's BleveBM25Index
// (internal/store/bm25.go), which used a single Content field without a
// validity predicate since its domain (code chunks) has none.
type textDoc struct {
	Content         string `json:"content"`
	ValidUntilNanos int64  `json:"valid_until_nanos"`
}

// validUntilSentinel marks "never expires" so it always satisfies a
// "valid_until > asOf" range query.
const validUntilSentinel = int64(1) << 62

// textIndex wraps an in-memory Bleve index for one document space (memory
// content or code chunk content).
type textIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

func newTextIndex() (*textIndex, error) {
	m := bleve.NewIndexMapping()
	idx, err := bleve.NewMemOnly(m)
	if err != nil {
		return nil, err
	}
	return &textIndex{index: idx}, nil
}

// Put indexes or replaces a document. validUntilNanos is 0 for "never
// expires" (stored as the sentinel) or a Unix-nanosecond expiry.
func (t *textIndex) Put(id, content string, validUntilNanos int64) error {
	if validUntilNanos == 0 {
		validUntilNanos = validUntilSentinel
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index.Index(id, textDoc{Content: content, ValidUntilNanos: validUntilNanos})
}

func (t *textIndex) Delete(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.index.Delete(id)
}

// Search returns the top-k matches, optionally restricted to documents
// valid as of asOfNanos (pass 0 to skip the validity filter entirely, used
// by the code-chunk index which carries no bitemporal data).
func (t *textIndex) Search(ctx context.Context, query string, k int, asOfNanos int64) ([]textHit, error) {
	if strings.TrimSpace(query) == "" {
		return nil, nil
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	match := bleve.NewMatchQuery(query)
	match.SetField("content")

	var q bleve.Query = match
	if asOfNanos > 0 {
		min := float64(asOfNanos)
		rng := bleve.NewNumericRangeInclusiveQuery(&min, nil, boolPtr(false), nil)
		rng.SetField("valid_until_nanos")
		q = bleve.NewConjunctionQuery(match, rng)
	}

	req := bleve.NewSearchRequest(q)
	req.Size = k

	result, err := t.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, err
	}

	out := make([]textHit, 0, len(result.Hits))
	for _, hit := range result.Hits {
		out = append(out, textHit{ID: hit.ID, Score: hit.Score})
	}
	return out, nil
}

func boolPtr(b bool) *bool { return &b }
