package fusion

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRRF_CombinesTwoSources(t *testing.T) {
	sources := []Source{
		{Name: "vec", Weight: 0.4, Items: []Ranked{{ID: "a", Score: 0.9}, {ID: "b", Score: 0.5}}},
		{Name: "bm25", Weight: 0.15, Items: []Ranked{{ID: "b", Score: 3.0}, {ID: "a", Score: 1.0}}},
	}

	results := RRF(sources, 60)
	require.Len(t, results, 2)
	assert.InDelta(t, 1.0, results[0].RRFScore, 1e-9, "top result normalized to 1.0")

	for _, r := range results {
		assert.True(t, r.InAllLists)
	}
}

func TestRRF_MissingFromOneSourceStillRanked(t *testing.T) {
	sources := []Source{
		{Name: "vec", Weight: 1.0, Items: []Ranked{{ID: "only-vec", Score: 1.0}}},
		{Name: "bm25", Weight: 1.0, Items: []Ranked{{ID: "only-bm25", Score: 1.0}}},
	}
	results := RRF(sources, 60)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.False(t, r.InAllLists)
	}
}

func TestRRF_TieBreaksByIDAscending(t *testing.T) {
	sources := []Source{
		{Name: "vec", Weight: 1.0, Items: []Ranked{{ID: "zzz", Score: 1.0}}},
		{Name: "bm25", Weight: 1.0, Items: []Ranked{{ID: "aaa", Score: 1.0}}},
	}
	results := RRF(sources, 60)
	require.Len(t, results, 2)
	assert.Equal(t, "aaa", results[0].ID)
}

func TestTruncate(t *testing.T) {
	results := []Fused{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	assert.Len(t, Truncate(results, 2), 2)
	assert.Len(t, Truncate(results, 10), 3)
}

func TestRRF_SingleSourceIsDegenerate(t *testing.T) {
	sources := []Source{
		{Name: "vec", Weight: 1.0, Items: []Ranked{{ID: "a", Score: 1.0}, {ID: "b", Score: 0.5}}},
	}
	results := RRF(sources, 60)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.False(t, results[0].InAllLists, "InAllLists is meaningless with one source")
}
