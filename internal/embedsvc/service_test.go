package embedsvc

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amanmcp-labs/memoryd/internal/cache"
	"github.com/amanmcp-labs/memoryd/internal/embedding"
	"github.com/amanmcp-labs/memoryd/internal/errs"
	"github.com/amanmcp-labs/memoryd/internal/hashutil"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	c, err := cache.Open(filepath.Join(t.TempDir(), "c.bolt"), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return New("mock", func() (embedding.Engine, error) {
		return embedding.NewEngine("mock")
	}, nil, c)
}

func TestService_NotReadyUntilLoaded(t *testing.T) {
	s := newTestService(t)
	assert.False(t, s.IsReady())

	_, err := s.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.Equal(t, errs.EmbeddingNotReady, errs.CodeOf(err))
}

func TestService_BecomesReadyAfterStartLoading(t *testing.T) {
	s := newTestService(t)
	s.StartLoading()

	require.Eventually(t, s.IsReady, 2*time.Second, 5*time.Millisecond)

	vec, err := s.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.NotEmpty(t, vec)
}

func TestService_CacheHitReturnsEvenWhenNotReady(t *testing.T) {
	c, err := cache.Open(filepath.Join(t.TempDir(), "c.bolt"), 10)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	s := New("mock", func() (embedding.Engine, error) {
		return embedding.NewEngine("mock")
	}, nil, c)

	// Pre-populate the cache under the model name the service will use once ready.
	engine, _ := embedding.NewEngine("mock")
	vec, _ := engine.Embed(context.Background(), "hello")
	require.NoError(t, c.Put(hashutil.EmbeddingCacheKey("hello", "mock"), vec))

	got, err := s.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, vec, got)
}
