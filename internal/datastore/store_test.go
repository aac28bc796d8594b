package datastore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanmcp-labs/memoryd/internal/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "store.db")
	s, err := Open(context.Background(), path, 3, "test-model")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestStore_SaveMemory_IndexesVectorAndText(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveMemory(ctx, &types.Memory{
		ID: "m1", Content: "grape jelly recipe", Kind: types.KindSemantic,
		EventTime: now, IngestionTime: now, ValidFrom: now,
		EmbeddingState: types.EmbeddingReady, Embedding: []float32{1, 0, 0},
	}))

	vecHits, err := s.VectorSearchMemories(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	require.Len(t, vecHits, 1)
	assert.Equal(t, "m1", vecHits[0].ID)

	bmHits, err := s.BM25SearchMemories(ctx, "jelly", 5)
	require.NoError(t, err)
	require.Len(t, bmHits, 1)
	assert.Equal(t, "m1", bmHits[0].ID)
}

func TestStore_DeleteMemory_RemovesFromAllIndexes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.SaveMemory(ctx, &types.Memory{
		ID: "m1", Content: "temporary note", Kind: types.KindEpisodic,
		EventTime: now, IngestionTime: now, ValidFrom: now,
		EmbeddingState: types.EmbeddingReady, Embedding: []float32{1, 0, 0},
	}))

	require.NoError(t, s.DeleteMemory(ctx, "m1"))

	_, err := s.GetMemory(ctx, "m1")
	assert.Error(t, err)

	vecHits, err := s.VectorSearchMemories(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, vecHits)

	bmHits, err := s.BM25SearchMemories(ctx, "temporary", 5)
	require.NoError(t, err)
	assert.Empty(t, bmHits)
}

func TestStore_Subgraph_JoinsThroughEntityID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveEntity(ctx, &types.Entity{ID: "e1", Name: "alice", EntityType: "person", CreatedAt: now}))
	require.NoError(t, s.SaveEntity(ctx, &types.Entity{ID: "e2", Name: "bob", EntityType: "person", CreatedAt: now}))
	require.NoError(t, s.SaveRelation(ctx, &types.Relation{ID: "r1", FromEntity: "e1", ToEntity: "e2", RelationType: "knows", Weight: 1, ValidFrom: now}))

	require.NoError(t, s.SaveMemory(ctx, &types.Memory{
		ID: "m1", Content: "alice knows bob", Kind: types.KindSemantic,
		EventTime: now, IngestionTime: now, ValidFrom: now, EntityID: "e1",
	}))

	g, err := s.Subgraph(ctx, []string{"m1"})
	require.NoError(t, err)
	assert.Contains(t, g.Nodes(), "e1")
	assert.Contains(t, g.Nodes(), "e2")
	assert.Equal(t, 1.0, g.Out["e1"]["e2"])
}

func TestStore_Subgraph_NoEntityLinkReturnsEmptyGraph(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.SaveMemory(ctx, &types.Memory{
		ID: "m1", Content: "unlinked", Kind: types.KindSemantic,
		EventTime: now, IngestionTime: now, ValidFrom: now,
	}))

	g, err := s.Subgraph(ctx, []string{"m1"})
	require.NoError(t, err)
	assert.Empty(t, g.Nodes())
}

func TestStore_GetRelated_BoundedBFS(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveEntity(ctx, &types.Entity{ID: id, Name: id, EntityType: "thing", CreatedAt: now}))
	}
	require.NoError(t, s.SaveRelation(ctx, &types.Relation{ID: "r1", FromEntity: "a", ToEntity: "b", RelationType: "rel", Weight: 1, ValidFrom: now}))
	require.NoError(t, s.SaveRelation(ctx, &types.Relation{ID: "r2", FromEntity: "b", ToEntity: "c", RelationType: "rel", Weight: 1, ValidFrom: now}))

	result, err := s.GetRelated(ctx, "a", 2, types.DirectionOutgoing)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, result.Entities)
	assert.Equal(t, 2, result.DepthReached)
}

func TestStore_CodeSearch_ScopedByProject(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveCodeChunk(ctx, &types.CodeChunk{
		ID: "c1", FilePath: "a.go", Content: "func Handle(w http.ResponseWriter) {}", Language: "go",
		ProjectID: "proj-a", IndexedAt: now, Embedding: []float32{1, 0, 0},
	}))
	require.NoError(t, s.SaveCodeChunk(ctx, &types.CodeChunk{
		ID: "c2", FilePath: "b.go", Content: "func Handle(w http.ResponseWriter) {}", Language: "go",
		ProjectID: "proj-b", IndexedAt: now, Embedding: []float32{1, 0, 0},
	}))

	hits, err := s.VectorSearchCode(ctx, []float32{1, 0, 0}, "proj-a", 5)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "c1", hits[0].ID)

	bmHits, err := s.BM25SearchCode(ctx, "Handle", "proj-b", 5)
	require.NoError(t, err)
	require.Len(t, bmHits, 1)
	assert.Equal(t, "c2", bmHits[0].ID)
}

func TestStore_DimensionMismatch_MarksEmbeddingsStale(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.db")
	ctx := context.Background()

	s1, err := Open(ctx, path, 3, "model-v1")
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, s1.SaveMemory(ctx, &types.Memory{
		ID: "m1", Content: "fact", Kind: types.KindSemantic, EventTime: now, IngestionTime: now,
		ValidFrom: now, EmbeddingState: types.EmbeddingReady, Embedding: []float32{1, 2, 3},
	}))
	require.NoError(t, s1.Close())

	s2, err := Open(ctx, path, 4, "model-v2")
	require.NoError(t, err)
	defer s2.Close()

	got, err := s2.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, types.EmbeddingStale, got.EmbeddingState)
}

func TestStore_ResetDB_ClearsIndexesAndTables(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.SaveMemory(ctx, &types.Memory{
		ID: "m1", Content: "fact", Kind: types.KindSemantic, EventTime: now, IngestionTime: now,
		ValidFrom: now, EmbeddingState: types.EmbeddingReady, Embedding: []float32{1, 0, 0},
	}))

	require.NoError(t, s.ResetDB(ctx))

	_, err := s.GetMemory(ctx, "m1")
	assert.Error(t, err)
	vecHits, err := s.VectorSearchMemories(ctx, []float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, vecHits)
}
