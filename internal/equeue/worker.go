package equeue

import (
	"context"
	"log/slog"
	"time"

	"github.com/amanmcp-labs/memoryd/internal/cache"
	"github.com/amanmcp-labs/memoryd/internal/embedding"
	"github.com/amanmcp-labs/memoryd/internal/errs"
	"github.com/amanmcp-labs/memoryd/internal/hashutil"
)

// Writeback persists a computed embedding onto a chunk or symbol record.
// Failures are logged by the worker but not retried (spec.md §4.5 leaves
// straggler cleanup to the completion monitor).
type Writeback interface {
	WriteEmbedding(ctx context.Context, target Target, vector []float32) error
}

// WorkerConfig tunes the worker's batching behavior.
type WorkerConfig struct {
	BatchSize     int
	FlushDeadline time.Duration
	RetryBackoff  time.Duration
}

// DefaultWorkerConfig returns spec.md §4.5's defaults.
func DefaultWorkerConfig() WorkerConfig {
	return WorkerConfig{
		BatchSize:     DefaultBatchSize,
		FlushDeadline: DefaultFlushDeadline,
		RetryBackoff:  DefaultRetryBackoff,
	}
}

// Worker is the single logical consumer draining a Queue.
type Worker struct {
	queue     *Queue
	cache     *cache.Cache
	engine    embedding.Engine
	writeback Writeback
	cfg       WorkerConfig
	log       *slog.Logger

	done chan struct{}
}

// NewWorker constructs a Worker over queue, using cache for hit/miss lookups,
// engine for inference, and writeback for targeted result persistence.
func NewWorker(queue *Queue, c *cache.Cache, engine embedding.Engine, wb Writeback, cfg WorkerConfig, log *slog.Logger) *Worker {
	if log == nil {
		log = slog.Default()
	}
	return &Worker{
		queue:     queue,
		cache:     c,
		engine:    engine,
		writeback: wb,
		cfg:       cfg,
		log:       log,
		done:      make(chan struct{}),
	}
}

// Run drains the queue until ctx is cancelled or the queue is closed and
// drained, honoring the phased-shutdown contract: it finishes its current
// batch before returning (spec.md §5's drain_queues phase).
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	for {
		batch := w.queue.TakeBatch(ctx, w.cfg.BatchSize, w.cfg.FlushDeadline)
		if len(batch) == 0 {
			if ctx.Err() != nil {
				return
			}
			w.queue.mu.Lock()
			drained := w.queue.closed && w.queue.items.Len() == 0
			w.queue.mu.Unlock()
			if drained {
				return
			}
			continue
		}
		w.processBatch(ctx, batch)
	}
}

// Done reports when Run has returned.
func (w *Worker) Done() <-chan struct{} { return w.done }

func (w *Worker) processBatch(ctx context.Context, batch []Request) {
	vectors := make([][]float32, len(batch))
	missIdx := make([]int, 0, len(batch))
	missTexts := make([]string, 0, len(batch))
	hashes := make([]string, len(batch))

	for i, req := range batch {
		h := hashutil.EmbeddingCacheKey(req.Text, w.engine.ModelName())
		hashes[i] = h
		if vec, ok := w.cache.Get(h); ok {
			vectors[i] = vec
			continue
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, req.Text)
	}

	if len(missTexts) > 0 {
		if !w.engine.Available(ctx) {
			w.queue.PushFront(batch)
			select {
			case <-time.After(w.cfg.RetryBackoff):
			case <-ctx.Done():
			}
			return
		}

		results, err := w.engine.EmbedBatch(ctx, missTexts)
		if err != nil {
			w.log.Error("embedding batch failed, dropping batch", "error", err, "batch_size", len(batch))
			w.queue.addFailed(int64(len(batch)))
			w.respondAll(batch, nil, errs.Wrap(errs.Embedding, err))
			return
		}
		for j, idx := range missIdx {
			vectors[idx] = results[j]
			if err := w.cache.Put(hashes[idx], results[j]); err != nil {
				w.log.Warn("embedding cache write failed", "error", err)
			}
		}
	}

	w.queue.addProcessed(int64(len(batch)))
	for i, req := range batch {
		vec := vectors[i]
		if req.Responder != nil {
			select {
			case req.Responder <- Result{Vector: vec}:
			default:
			}
		}
		if req.Target != nil {
			go func(target Target, v []float32) {
				if err := w.writeback.WriteEmbedding(context.Background(), target, v); err != nil {
					w.log.Error("embedding writeback failed", "error", err, "table", target.Table, "id", target.ID)
				}
			}(*req.Target, vec)
		}
	}
}

func (w *Worker) respondAll(batch []Request, vec []float32, err error) {
	for _, req := range batch {
		if req.Responder == nil {
			continue
		}
		select {
		case req.Responder <- Result{Vector: vec, Err: err}:
		default:
		}
	}
}
