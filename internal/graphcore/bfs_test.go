package graphcore

import (
	"context"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// linearFetcher simulates a small chain graph: start -> a -> b -> c.
func linearFetcher(adj map[string][]string) NeighborFetcher {
	return func(ctx context.Context, ids []string, dir Direction) (map[string][]string, error) {
		out := make(map[string][]string)
		for _, id := range ids {
			out[id] = adj[id]
		}
		return out, nil
	}
}

func TestBoundedBFS_RespectsMaxDepth(t *testing.T) {
	adj := map[string][]string{
		"start": {"a"},
		"a":     {"b"},
		"b":     {"c"},
	}
	result, err := BoundedBFS(context.Background(), "start", 2, Outgoing, linearFetcher(adj))
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"start", "a", "b"}, result.Entities)
	assert.Equal(t, 2, result.DepthReached)
	assert.False(t, result.Truncated)
}

func TestBoundedBFS_DedupesAcrossLevels(t *testing.T) {
	adj := map[string][]string{
		"start": {"a", "b"},
		"a":     {"shared"},
		"b":     {"shared"},
	}
	result, err := BoundedBFS(context.Background(), "start", 2, Outgoing, linearFetcher(adj))
	require.NoError(t, err)

	count := 0
	for _, e := range result.Entities {
		if e == "shared" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestBoundedBFS_DefersExcessPerLevel(t *testing.T) {
	wide := make([]string, 0, MaxEntitiesPerLevel+10)
	adj := map[string][]string{}
	for i := 0; i < MaxEntitiesPerLevel+10; i++ {
		wide = append(wide, "a"+strconv.Itoa(i))
	}
	adj["start"] = wide

	// Depth 2 so the 110-wide level 1 is itself the frontier being expanded.
	result, err := BoundedBFS(context.Background(), "start", 2, Outgoing, linearFetcher(adj))
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.Equal(t, 10, result.DeferredCount)
	assert.Len(t, result.Entities, MaxEntitiesPerLevel+10+1) // every discovered neighbor, +1 for start
}

func TestBoundedBFS_StopsAtGlobalCap(t *testing.T) {
	adj := map[string][]string{}
	wide := make([]string, 0, MaxTotalEntities+50)
	for i := 0; i < MaxTotalEntities+50; i++ {
		wide = append(wide, "n"+strconv.Itoa(i))
	}
	adj["start"] = wide

	result, err := BoundedBFS(context.Background(), "start", 1, Outgoing, linearFetcher(adj))
	require.NoError(t, err)
	assert.True(t, result.Truncated)
	assert.LessOrEqual(t, len(result.Entities), MaxTotalEntities)
}
