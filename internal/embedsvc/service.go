// Package embedsvc owns the lazily-constructed embedding Engine and its
// loading state machine (spec.md §4.3), gating Embed calls on readiness and
// consulting the L1/L2 cache before ever touching the engine.
package embedsvc

import (
	"context"
	"sync"
	"time"

	"github.com/amanmcp-labs/memoryd/internal/cache"
	"github.com/amanmcp-labs/memoryd/internal/embedding"
	"github.com/amanmcp-labs/memoryd/internal/errs"
	"github.com/amanmcp-labs/memoryd/internal/hashutil"
)

// Phase names the loading sub-step reported while the service is Loading.
type Phase string

const (
	PhaseStarting         Phase = "starting"
	PhaseCleaningCache    Phase = "cleaning_cache"
	PhaseFetchingConfig   Phase = "fetching_config"
	PhaseFetchingTokenizer Phase = "fetching_tokenizer"
	PhaseFetchingWeights  Phase = "fetching_weights"
	PhaseVerifyingWeights Phase = "verifying_weights"
	PhaseLoadingModel     Phase = "loading_model"
	PhaseWarmingUp        Phase = "warming_up"
)

// Status is the current life-cycle state of the embedding service.
type Status int

const (
	StatusLoading Status = iota
	StatusReady
	StatusError
)

// LoadingInfo describes progress while Status == StatusLoading.
type LoadingInfo struct {
	Phase    Phase
	Elapsed  time.Duration
	ETA      *time.Duration
	Cached   bool
	Progress *float64
}

// CacheCleaner sweeps the on-disk model cache directory before a model load
// (spec.md §4.10); implemented by the modelcache package.
type CacheCleaner interface {
	Clean() error
}

// Service owns one Engine instance, loaded lazily and in the background.
type Service struct {
	mu         sync.RWMutex
	status     Status
	loading    LoadingInfo
	errMessage string
	startedAt  time.Time

	modelName string
	engine    embedding.Engine
	modelFn   func() (embedding.Engine, error)
	cleaner   CacheCleaner
	cache     *cache.Cache
}

// New constructs a Service that will build its engine by calling modelFn
// once start_loading runs. modelName is known upfront (it drives the cache
// key even before the engine has finished loading); cleaner may be nil to
// skip cache cleanup (e.g. for the mock model in tests).
func New(modelName string, modelFn func() (embedding.Engine, error), cleaner CacheCleaner, c *cache.Cache) *Service {
	return &Service{
		status:    StatusLoading,
		loading:   LoadingInfo{Phase: PhaseStarting},
		modelName: modelName,
		modelFn:   modelFn,
		cleaner:   cleaner,
		cache:     c,
	}
}

// StartLoading spawns a background goroutine that cleans the model cache
// then constructs the engine, transitioning to Ready or Error. It returns
// immediately (spec.md §4.3).
func (s *Service) StartLoading() {
	s.mu.Lock()
	s.startedAt = time.Now()
	s.setPhase(PhaseStarting)
	s.mu.Unlock()

	go s.load()
}

func (s *Service) load() {
	if s.cleaner != nil {
		s.mu.Lock()
		s.setPhase(PhaseCleaningCache)
		s.mu.Unlock()
		if err := s.cleaner.Clean(); err != nil {
			// Cache cleanup errors are non-fatal (spec.md §4.10); continue loading.
			_ = err
		}
	}

	s.mu.Lock()
	s.setPhase(PhaseLoadingModel)
	s.mu.Unlock()

	engine, err := s.modelFn()

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.status = StatusError
		s.errMessage = err.Error()
		return
	}
	s.engine = engine
	s.status = StatusReady
}

func (s *Service) setPhase(p Phase) {
	s.loading = LoadingInfo{Phase: p, Elapsed: time.Since(s.startedAt)}
}

// IsReady reports whether Status == StatusReady.
func (s *Service) IsReady() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status == StatusReady
}

// StatusSnapshot returns the current status, loading info (if loading), and
// error message (if errored).
func (s *Service) StatusSnapshot() (Status, LoadingInfo, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status, s.loading, s.errMessage
}

// Embed computes (or retrieves from cache) the embedding for text.
// 1. Consult the cache; return on hit.
// 2. If not Ready, return errs.EmbeddingNotReady.
// 3. Otherwise call the engine, cache the result, and return it.
func (s *Service) Embed(ctx context.Context, text string) ([]float32, error) {
	s.mu.RLock()
	engine := s.engine
	status := s.status
	s.mu.RUnlock()

	key := hashutil.EmbeddingCacheKey(text, s.modelName)

	if vec, ok := s.cache.Get(key); ok {
		return vec, nil
	}

	if status != StatusReady {
		return nil, errs.New(errs.EmbeddingNotReady, "embedding service not ready", nil)
	}

	vec, err := engine.Embed(ctx, text)
	if err != nil {
		return nil, errs.Wrap(errs.Embedding, err)
	}
	if err := s.cache.Put(key, vec); err != nil {
		return vec, nil // cache write failure must not fail the embed call
	}
	return vec, nil
}

// Close releases the underlying engine, if constructed.
func (s *Service) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.engine != nil {
		return s.engine.Close()
	}
	return nil
}
