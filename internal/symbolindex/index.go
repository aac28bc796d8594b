// Package symbolindex is the in-memory name->candidates multimap used to
// resolve code references to their defining symbol (spec.md §4.7).
package symbolindex

import (
	"path/filepath"
	"sync"
)

// Ref is one candidate definition site for a name.
type Ref struct {
	Name     string
	FilePath string
	Line     int
}

// Index is a concurrency-safe name -> []Ref multimap, built once per project
// for incremental updates and incrementally during a full index.
type Index struct {
	mu      sync.RWMutex
	byName  map[string][]Ref
}

// New constructs an empty Index.
func New() *Index {
	return &Index{byName: make(map[string][]Ref)}
}

// Add registers a candidate definition.
func (idx *Index) Add(ref Ref) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.byName[ref.Name] = append(idx.byName[ref.Name], ref)
}

// RemoveFile drops every candidate previously added for filePath, used when
// re-indexing a changed or deleted file.
func (idx *Index) RemoveFile(filePath string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for name, refs := range idx.byName {
		kept := refs[:0]
		for _, r := range refs {
			if r.FilePath != filePath {
				kept = append(kept, r)
			}
		}
		if len(kept) == 0 {
			delete(idx.byName, name)
		} else {
			idx.byName[name] = kept
		}
	}
}

// Resolve returns the single best candidate for name given the calling
// file, or ok=false if name has no candidates. Scoring (spec.md §4.7):
// +100 same file, +50 same parent directory, +0 otherwise; ties broken by
// iteration order, which is stable within a single process run because Go
// map iteration order is randomized per-run but Add's append preserves
// insertion order within a name's slice — we iterate the slice, not the map,
// so ties resolve to first-inserted.
func (idx *Index) Resolve(name string, callerFile string) (Ref, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates := idx.byName[name]
	if len(candidates) == 0 {
		return Ref{}, false
	}

	best := candidates[0]
	bestScore := score(best, callerFile)
	for _, c := range candidates[1:] {
		if s := score(c, callerFile); s > bestScore {
			best, bestScore = c, s
		}
	}
	return best, true
}

func score(ref Ref, callerFile string) int {
	if ref.FilePath == callerFile {
		return 100
	}
	if filepath.Dir(ref.FilePath) == filepath.Dir(callerFile) {
		return 50
	}
	return 0
}
