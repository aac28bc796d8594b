// Package fusion implements Reciprocal Rank Fusion (spec.md §4.13 step 5)
// over an arbitrary number of ranked source lists (vector, BM25, PPR, or a
// degenerate single source), generalizing the two-source RRF the hybrid
// recall pipeline's predecessor used.
package fusion

import "sort"

// DefaultK is the RRF smoothing constant (spec.md §4.13, §4.5 nomenclature).
const DefaultK = 60

// Ranked is one entry in a source's ranked result list.
type Ranked struct {
	ID    string
	Score float64
}

// Source is one ranked list contributing to the fusion, carrying its own
// weight and the per-source score so a Fused result can report it back.
type Source struct {
	Name   string
	Weight float64
	Items  []Ranked
}

// Fused is one result after RRF combination across all sources.
type Fused struct {
	ID          string
	RRFScore    float64
	InAllLists  bool
	PerSource   map[string]SourceHit
}

// SourceHit records a single source's contribution to a Fused result.
type SourceHit struct {
	Score float64
	Rank  int // 1-indexed; 0 if absent from this source
}

// RRF computes Reciprocal Rank Fusion over sources. Per spec.md §4.13/§4.5,
// each source's rank is 0-based in the original contribution formula
// `w_src / (K + r + 1)`; this package takes 0-based r directly (Items[0] is
// rank 0) so callers don't need to adjust. Entries absent from a source
// contribute nothing from that source (no penalty term), matching spec.md
// §4.13's fusion step, which only sums contributions from lists an ID
// actually appears in.
func RRF(sources []Source, k int) []Fused {
	if k <= 0 {
		k = DefaultK
	}

	results := make(map[string]*Fused)
	get := func(id string) *Fused {
		if f, ok := results[id]; ok {
			return f
		}
		f := &Fused{ID: id, PerSource: make(map[string]SourceHit)}
		results[id] = f
		return f
	}

	for _, src := range sources {
		for rank, item := range src.Items {
			f := get(item.ID)
			f.RRFScore += src.Weight / float64(k+rank+1)
			f.PerSource[src.Name] = SourceHit{Score: item.Score, Rank: rank + 1}
		}
	}

	for _, f := range results {
		f.InAllLists = len(f.PerSource) == len(sources) && len(sources) > 1
	}

	out := toSortedSlice(results)
	normalize(out)
	return out
}

func toSortedSlice(m map[string]*Fused) []Fused {
	out := make([]Fused, 0, len(m))
	for _, f := range m {
		out = append(out, *f)
	}
	sort.Slice(out, func(i, j int) bool {
		return compare(out[i], out[j])
	})
	return out
}

// compare orders by RRF score desc, then in-all-lists first, then ID asc —
// the same tie-break ladder as the two-source predecessor, generalized from
// "in both lists" to "in all lists" and dropping the BM25-specific
// tie-break (no single source is privileged when fusing 3 sources).
func compare(a, b Fused) bool {
	if a.RRFScore != b.RRFScore {
		return a.RRFScore > b.RRFScore
	}
	if a.InAllLists != b.InAllLists {
		return a.InAllLists
	}
	return a.ID < b.ID
}

func normalize(results []Fused) {
	if len(results) == 0 {
		return
	}
	max := results[0].RRFScore
	if max == 0 {
		return
	}
	for i := range results {
		results[i].RRFScore /= max
	}
}

// Truncate returns at most k results.
func Truncate(results []Fused, k int) []Fused {
	if k >= 0 && len(results) > k {
		return results[:k]
	}
	return results
}
