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

func newTestSQLite(t *testing.T) *sqliteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := openSQLite(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLite_SaveAndGetMemory(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	now := time.Now().UTC().Round(time.Nanosecond)
	m := &types.Memory{
		ID: "mem-1", Content: "the sky is blue", Kind: types.KindSemantic, UserID: "u1",
		Metadata: map[string]any{"source": "chat"}, EventTime: now, IngestionTime: now,
		ValidFrom: now, Importance: 0.8, ContentHash: "h1", EmbeddingState: types.EmbeddingReady,
		Embedding: []float32{0.1, 0.2, 0.3},
	}
	require.NoError(t, s.SaveMemory(ctx, m))

	got, err := s.GetMemory(ctx, "mem-1")
	require.NoError(t, err)
	assert.Equal(t, m.Content, got.Content)
	assert.Equal(t, m.Kind, got.Kind)
	assert.Equal(t, m.Metadata["source"], got.Metadata["source"])
	assert.InDeltaSlice(t, []float64{0.1, 0.2, 0.3}, toFloat64s(got.Embedding), 1e-6)
	assert.Equal(t, m.EventTime.UnixNano(), got.EventTime.UnixNano())
}

func toFloat64s(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func TestSQLite_GetMemory_NotFound(t *testing.T) {
	s := newTestSQLite(t)
	_, err := s.GetMemory(context.Background(), "missing")
	assert.Error(t, err)
}

func TestSQLite_GetValidAt_FiltersByBitemporalWindow(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	base := time.Now().UTC()

	expired := base.Add(-time.Hour)
	require.NoError(t, s.SaveMemory(ctx, &types.Memory{
		ID: "expired", Content: "old", Kind: types.KindEpisodic,
		EventTime: base, IngestionTime: base, ValidFrom: base.Add(-2 * time.Hour), ValidUntil: &expired,
	}))
	require.NoError(t, s.SaveMemory(ctx, &types.Memory{
		ID: "current", Content: "new", Kind: types.KindEpisodic,
		EventTime: base, IngestionTime: base, ValidFrom: base.Add(-time.Minute),
	}))

	valid, err := s.GetValid(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, valid, 1)
	assert.Equal(t, "current", valid[0].ID)

	asOfPast, err := s.GetValidAt(ctx, base.Add(-90*time.Minute), "", 10)
	require.NoError(t, err)
	require.Len(t, asOfPast, 1)
	assert.Equal(t, "expired", asOfPast[0].ID)
}

func TestSQLite_Invalidate_SetsValidUntilOnce(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.SaveMemory(ctx, &types.Memory{
		ID: "m1", Content: "fact", Kind: types.KindSemantic,
		EventTime: now, IngestionTime: now, ValidFrom: now,
	}))

	require.NoError(t, s.Invalidate(ctx, "m1", "superseded"))
	got, err := s.GetMemory(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got.ValidUntil)
	assert.Equal(t, "superseded", got.InvalidationReason)

	firstUntil := *got.ValidUntil
	time.Sleep(time.Millisecond)
	require.NoError(t, s.Invalidate(ctx, "m1", "again")) // no-op: already invalidated
	got2, err := s.GetMemory(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, firstUntil, *got2.ValidUntil)
	assert.Equal(t, "superseded", got2.InvalidationReason)
}

func TestSQLite_BatchUpdateMemoryEmbeddings(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()
	for _, id := range []string{"a", "b"} {
		require.NoError(t, s.SaveMemory(ctx, &types.Memory{
			ID: id, Content: id, Kind: types.KindSemantic, EventTime: now, IngestionTime: now, ValidFrom: now,
		}))
	}

	require.NoError(t, s.BatchUpdateMemoryEmbeddings(ctx, []string{"a", "b"},
		[][]float32{{1, 2}, {3, 4}}))

	a, err := s.GetMemory(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, types.EmbeddingReady, a.EmbeddingState)
	assert.Equal(t, []float32{1, 2}, a.Embedding)
}

func TestSQLite_RelationsAndSubgraph(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, s.SaveEntity(ctx, &types.Entity{ID: id, Name: id, EntityType: "thing", CreatedAt: now}))
	}
	require.NoError(t, s.SaveRelation(ctx, &types.Relation{ID: "r1", FromEntity: "a", ToEntity: "b", RelationType: "relates", Weight: 1, ValidFrom: now}))
	require.NoError(t, s.SaveRelation(ctx, &types.Relation{ID: "r2", FromEntity: "b", ToEntity: "c", RelationType: "relates", Weight: 1, ValidFrom: now}))

	edges, err := s.subgraphEdges(ctx, []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, edges, 1)
	assert.Equal(t, "r1", edges[0].ID)

	neighbors, err := s.neighborsOf(ctx, []string{"a"}, relationOutgoing)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, neighbors["a"])
}

func TestSQLite_CodeChunkAndSymbolLifecycle(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveCodeChunk(ctx, &types.CodeChunk{
		ID: "chunk-1", FilePath: "a.go", Content: "func A() {}", Language: "go",
		StartLine: 1, EndLine: 3, ChunkType: types.ChunkFunction, ProjectID: "proj", IndexedAt: now,
	}))
	chunks, err := s.ChunksByProject(ctx, "proj")
	require.NoError(t, err)
	require.Len(t, chunks, 1)

	require.NoError(t, s.SaveCodeSymbol(ctx, &types.CodeSymbol{
		ID: "sym-1", Name: "A", SymbolType: types.SymbolFunction, FilePath: "a.go", ProjectID: "proj",
	}))
	require.NoError(t, s.SaveCodeSymbol(ctx, &types.CodeSymbol{
		ID: "sym-2", Name: "A", SymbolType: types.SymbolFunction, FilePath: "b.go", ProjectID: "proj",
	}))

	exact, err := s.FindSymbolByNameWithContext(ctx, "proj", "A", "a.go")
	require.NoError(t, err)
	assert.Equal(t, "sym-1", exact.ID)

	require.NoError(t, s.DeleteCodeChunksForFile(ctx, "proj", "a.go"))
	chunks, err = s.ChunksByProject(ctx, "proj")
	require.NoError(t, err)
	assert.Len(t, chunks, 0)
}

func TestSQLite_IndexStatusAndCompletionCounts(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, s.SaveIndexStatus(ctx, &types.IndexStatus{
		ProjectID: "proj", State: types.IndexStateIndexing, TotalFiles: 2, StartedAt: now,
	}))
	require.NoError(t, s.SaveCodeChunk(ctx, &types.CodeChunk{
		ID: "c1", FilePath: "a.go", Content: "x", Language: "go", ProjectID: "proj", IndexedAt: now,
		Embedding: []float32{1, 2},
	}))
	require.NoError(t, s.SaveCodeChunk(ctx, &types.CodeChunk{
		ID: "c2", FilePath: "b.go", Content: "y", Language: "go", ProjectID: "proj", IndexedAt: now,
	}))

	embeddedChunks, embeddedSymbols, err := s.CompletionCounts(ctx, "proj")
	require.NoError(t, err)
	assert.Equal(t, 1, embeddedChunks)
	assert.Equal(t, 0, embeddedSymbols)

	projects, err := s.ListProjects(ctx)
	require.NoError(t, err)
	require.Len(t, projects, 1)
	assert.Equal(t, "proj", projects[0].ProjectID)
}

func TestSQLite_StateRoundTrip(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()

	_, ok, err := s.GetState(ctx, stateKeyVectorDimension)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SetState(ctx, stateKeyVectorDimension, "768"))
	value, ok, err := s.GetState(ctx, stateKeyVectorDimension)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "768", value)
}

func TestSQLite_ResetDB_ClearsAllTables(t *testing.T) {
	s := newTestSQLite(t)
	ctx := context.Background()
	now := time.Now().UTC()
	require.NoError(t, s.SaveMemory(ctx, &types.Memory{
		ID: "m1", Content: "x", Kind: types.KindEpisodic, EventTime: now, IngestionTime: now, ValidFrom: now,
	}))

	require.NoError(t, s.ResetDB(ctx))
	_, err := s.GetMemory(ctx, "m1")
	assert.Error(t, err)
}
