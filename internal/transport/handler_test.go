package transport

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanmcp-labs/memoryd/internal/cache"
	"github.com/amanmcp-labs/memoryd/internal/codeparse"
	"github.com/amanmcp-labs/memoryd/internal/datastore"
	"github.com/amanmcp-labs/memoryd/internal/embedding"
	"github.com/amanmcp-labs/memoryd/internal/embedsvc"
	"github.com/amanmcp-labs/memoryd/internal/equeue"
	"github.com/amanmcp-labs/memoryd/internal/errs"
	"github.com/amanmcp-labs/memoryd/internal/indexer"
	"github.com/amanmcp-labs/memoryd/internal/retrieval"
	"github.com/amanmcp-labs/memoryd/internal/scan"
)

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	ctx := context.Background()

	store, err := datastore.Open(ctx, filepath.Join(t.TempDir(), "store.db"), 768, "mock")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	c, err := cache.Open(filepath.Join(t.TempDir(), "cache.db"), 100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	svc := embedsvc.New("mock", func() (embedding.Engine, error) {
		return embedding.NewMockEngine(embedding.Models["mock"]), nil
	}, nil, c)
	svc.StartLoading()
	require.Eventually(t, svc.IsReady, time.Second, time.Millisecond)
	t.Cleanup(func() { _ = svc.Close() })

	queue := equeue.New(100)

	recaller := retrieval.New(store, store, store, svc)
	codeSearcher := retrieval.NewCodeSearcher(store, store, svc)

	scanner, err := scan.New()
	require.NoError(t, err)
	parser := codeparse.NewParser()
	t.Cleanup(parser.Close)
	ix := indexer.New(store, scanner, parser, queue, nil)

	return NewHandler(store, recaller, codeSearcher, svc, queue, ix, nil, "mock", nil)
}

func call(t *testing.T, h *Handler, method string, params map[string]any) (any, error) {
	t.Helper()
	return h.Dispatch(context.Background(), method, params)
}

func TestHandler_StoreAndGetMemory(t *testing.T) {
	h := newTestHandler(t)

	res, err := call(t, h, MethodStoreMemory, map[string]any{"content": "the sky is blue"})
	require.NoError(t, err)
	id := res.(map[string]string)["id"]
	assert.NotEmpty(t, id)

	got, err := call(t, h, MethodGetMemory, map[string]any{"id": id})
	require.NoError(t, err)
	view := got.(MemoryView)
	assert.Equal(t, "the sky is blue", view.Content)
	assert.Equal(t, "ready", view.EmbeddingState)
}

func TestHandler_GetMemory_NotFound(t *testing.T) {
	h := newTestHandler(t)
	_, err := call(t, h, MethodGetMemory, map[string]any{"id": "memory:missing"})
	require.Error(t, err)
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
}

func TestHandler_StoreMemory_RejectsEmptyContent(t *testing.T) {
	h := newTestHandler(t)
	_, err := call(t, h, MethodStoreMemory, map[string]any{"content": ""})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidInput, errs.CodeOf(err))
}

func TestHandler_UpdateMemory_ReEmbedsOnContentChange(t *testing.T) {
	h := newTestHandler(t)
	res, _ := call(t, h, MethodStoreMemory, map[string]any{"content": "first version"})
	id := res.(map[string]string)["id"]

	newContent := "second version"
	updated, err := call(t, h, MethodUpdateMemory, map[string]any{"id": id, "content": newContent})
	require.NoError(t, err)
	assert.Equal(t, newContent, updated.(MemoryView).Content)
}

func TestHandler_DeleteMemory(t *testing.T) {
	h := newTestHandler(t)
	res, _ := call(t, h, MethodStoreMemory, map[string]any{"content": "ephemeral"})
	id := res.(map[string]string)["id"]

	_, err := call(t, h, MethodDeleteMemory, map[string]any{"id": id})
	require.NoError(t, err)

	_, err = call(t, h, MethodGetMemory, map[string]any{"id": id})
	assert.Equal(t, errs.NotFound, errs.CodeOf(err))
}

func TestHandler_ListMemories_RespectsLimitAndOffset(t *testing.T) {
	h := newTestHandler(t)
	for i := 0; i < 5; i++ {
		_, err := call(t, h, MethodStoreMemory, map[string]any{"content": "memory item"})
		require.NoError(t, err)
	}

	page1, err := call(t, h, MethodListMemories, map[string]any{"limit": 2, "offset": 0})
	require.NoError(t, err)
	assert.Len(t, page1.([]MemoryView), 2)

	page2, err := call(t, h, MethodListMemories, map[string]any{"limit": 2, "offset": 2})
	require.NoError(t, err)
	assert.Len(t, page2.([]MemoryView), 2)
}

func TestHandler_Search_FindsStoredMemory(t *testing.T) {
	h := newTestHandler(t)
	_, err := call(t, h, MethodStoreMemory, map[string]any{"content": "paris is the capital of france"})
	require.NoError(t, err)

	res, err := call(t, h, MethodSearch, map[string]any{"query": "paris is the capital of france", "limit": 5})
	require.NoError(t, err)
	hits := res.([]ScoredMemoryView)
	require.NotEmpty(t, hits)
	assert.Equal(t, "paris is the capital of france", hits[0].Content)
}

func TestHandler_Recall_FusesResults(t *testing.T) {
	h := newTestHandler(t)
	_, err := call(t, h, MethodStoreMemory, map[string]any{"content": "gophers love go"})
	require.NoError(t, err)

	res, err := call(t, h, MethodRecall, map[string]any{"query": "gophers love go", "limit": 5})
	require.NoError(t, err)
	assert.NotEmpty(t, res.([]ScoredMemoryView))
}

func TestHandler_CreateEntityRelationAndGetRelated(t *testing.T) {
	h := newTestHandler(t)

	aRes, err := call(t, h, MethodCreateEntity, map[string]any{"name": "Alice", "entity_type": "person"})
	require.NoError(t, err)
	a := aRes.(EntityView)

	bRes, err := call(t, h, MethodCreateEntity, map[string]any{"name": "Bob", "entity_type": "person"})
	require.NoError(t, err)
	b := bRes.(EntityView)

	_, err = call(t, h, MethodCreateRelation, map[string]any{
		"from_entity": a.ID, "to_entity": b.ID, "relation_type": "knows",
	})
	require.NoError(t, err)

	res, err := call(t, h, MethodGetRelated, map[string]any{"entity_id": a.ID, "depth": 2})
	require.NoError(t, err)
	m := res.(map[string]any)
	assert.Contains(t, m["entities"], b.ID)
}

func TestHandler_ResetAllMemory_RefusesWithoutConfirm(t *testing.T) {
	h := newTestHandler(t)
	_, err := call(t, h, MethodResetAllMemory, map[string]any{"confirm": false})
	require.Error(t, err)
	assert.Equal(t, errs.InvalidInput, errs.CodeOf(err))
}

func TestHandler_ResetAllMemory_SucceedsWithConfirm(t *testing.T) {
	h := newTestHandler(t)
	_, err := call(t, h, MethodResetAllMemory, map[string]any{"confirm": true})
	require.NoError(t, err)
}

func TestHandler_GetStatus(t *testing.T) {
	h := newTestHandler(t)
	res, err := call(t, h, MethodGetStatus, nil)
	require.NoError(t, err)
	status := res.(StatusView)
	assert.True(t, status.Running)
	assert.Equal(t, "ready", status.EmbedderStatus)
}

func TestHandler_Dispatch_UnknownMethod(t *testing.T) {
	h := newTestHandler(t)
	_, err := call(t, h, "not_a_real_method", nil)
	require.Error(t, err)
	assert.Equal(t, errs.InvalidInput, errs.CodeOf(err))
}

func TestHandler_Invalidate(t *testing.T) {
	h := newTestHandler(t)
	res, _ := call(t, h, MethodStoreMemory, map[string]any{"content": "to be invalidated"})
	id := res.(map[string]string)["id"]

	_, err := call(t, h, MethodInvalidate, map[string]any{"id": id, "reason": "superseded"})
	require.NoError(t, err)

	got, err := call(t, h, MethodGetMemory, map[string]any{"id": id})
	require.NoError(t, err)
	assert.NotNil(t, got.(MemoryView).ValidUntil)
}
