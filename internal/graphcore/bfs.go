package graphcore

import "context"

// Direction selects which edges bounded BFS follows.
type Direction int

const (
	Outgoing Direction = iota
	Incoming
	Both
)

// MaxEntitiesPerLevel and MaxTotalEntities bound bounded BFS (spec.md
// §4.12): a level wider than MaxEntitiesPerLevel has its excess deferred
// rather than explored, and traversal stops outright once MaxTotalEntities
// distinct entities have been collected.
const (
	MaxEntitiesPerLevel = 100
	MaxTotalEntities    = 1000
)

// NeighborFetcher batch-resolves the neighbors of a set of IDs in the given
// direction in one call, letting a store-backed caller issue a single
// batched query per level instead of one per node.
type NeighborFetcher func(ctx context.Context, ids []string, dir Direction) (map[string][]string, error)

// BFSResult reports a bounded traversal's outcome.
type BFSResult struct {
	Entities      []string
	Truncated     bool
	DepthReached  int
	DeferredCount int
}

// BoundedBFS explores outward from start up to maxDepth hops, subject to
// MaxEntitiesPerLevel and MaxTotalEntities. Entities are deduplicated by ID
// across the whole traversal, not just within a level.
func BoundedBFS(ctx context.Context, start string, maxDepth int, dir Direction, fetch NeighborFetcher) (BFSResult, error) {
	result := BFSResult{Entities: []string{start}}
	visited := map[string]bool{start: true}
	frontier := []string{start}

	for depth := 1; depth <= maxDepth; depth++ {
		if len(frontier) == 0 {
			break
		}

		take := frontier
		if len(take) > MaxEntitiesPerLevel {
			result.DeferredCount += len(take) - MaxEntitiesPerLevel
			result.Truncated = true
			take = take[:MaxEntitiesPerLevel]
		}

		neighbors, err := fetch(ctx, take, dir)
		if err != nil {
			return result, err
		}

		var next []string
		capped := false
		for _, id := range take {
			for _, n := range neighbors[id] {
				if visited[n] {
					continue
				}
				if len(result.Entities) >= MaxTotalEntities {
					result.Truncated = true
					capped = true
					break
				}
				visited[n] = true
				result.Entities = append(result.Entities, n)
				next = append(next, n)
			}
			if capped {
				break
			}
		}

		result.DepthReached = depth
		if capped {
			break
		}
		frontier = next
	}

	return result, nil
}
