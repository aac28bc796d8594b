package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/amanmcp-labs/memoryd/internal/cache"
	"github.com/amanmcp-labs/memoryd/internal/codeparse"
	"github.com/amanmcp-labs/memoryd/internal/config"
	"github.com/amanmcp-labs/memoryd/internal/datastore"
	"github.com/amanmcp-labs/memoryd/internal/embedding"
	"github.com/amanmcp-labs/memoryd/internal/embedsvc"
	"github.com/amanmcp-labs/memoryd/internal/equeue"
	"github.com/amanmcp-labs/memoryd/internal/hashutil"
	"github.com/amanmcp-labs/memoryd/internal/indexer"
	"github.com/amanmcp-labs/memoryd/internal/modelcache"
	"github.com/amanmcp-labs/memoryd/internal/retrieval"
	"github.com/amanmcp-labs/memoryd/internal/scan"
)

// projectIDFor derives the stable project ID for path the same way
// internal/transport's index_project handler does (spec.md §6), so a
// project indexed via the CLI and one indexed via the protocol share the
// same ID when given the same path string.
func projectIDFor(path string) string {
	return hashutil.SymbolID16("project", path)
}

// app bundles the fully wired component stack shared by every subcommand:
// one datastore, one embedding cache/service/queue/worker, and the
// retrieval and indexing layers built over them.
type app struct {
	cfg          *config.Config
	store        *datastore.Store
	cache        *cache.Cache
	embedder     *embedsvc.Service
	queue        *equeue.Queue
	worker       *equeue.Worker
	recaller     *retrieval.Recaller
	codeSearcher *retrieval.CodeSearcher
	scanner      *scan.Scanner
	parser       *codeparse.Parser
	indexer      *indexer.Indexer

	workerCancel context.CancelFunc
	workerDone   <-chan struct{}
}

// loadConfig resolves the effective configuration for the current working
// directory, applying --data-dir/--model overrides (spec.md §6).
func loadConfig() (*config.Config, error) {
	dir, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to resolve working directory: %w", err)
	}
	cfg, err := config.Load(dir)
	if err != nil {
		return nil, err
	}
	if flagDataDir != "" {
		cfg.DataDir = flagDataDir
	}
	if flagModel != "" {
		cfg.Model = flagModel
	}
	return cfg, nil
}

// newApp wires the full component stack for cfg. Callers must call close()
// when finished with it.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	info, ok := embedding.Models[cfg.Model]
	if !ok {
		return nil, fmt.Errorf("unrecognized embedding model %q", cfg.Model)
	}
	dim := info.BaseDim
	if cfg.MRLDim > 0 {
		dim = cfg.MRLDim
	}

	store, err := datastore.Open(ctx, filepath.Join(cfg.DataDir, "store.db"), dim, cfg.Model)
	if err != nil {
		return nil, fmt.Errorf("failed to open datastore: %w", err)
	}

	c, err := cache.Open(filepath.Join(cfg.DataDir, "cache.db"), cfg.CacheSize)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	engine, err := embedding.NewEngine(cfg.Model)
	if err != nil {
		_ = store.Close()
		_ = c.Close()
		return nil, fmt.Errorf("failed to construct embedding engine: %w", err)
	}

	cleaner := modelcache.New(filepath.Join(cfg.DataDir, "models"))
	svc := embedsvc.New(cfg.Model, func() (embedding.Engine, error) { return engine, nil }, cleaner, c)
	svc.StartLoading()

	queue := equeue.New(equeue.DefaultCapacity)
	wb := indexer.NewWriteback(store)
	worker := equeue.NewWorker(queue, c, engine, wb, equeue.WorkerConfig{
		BatchSize:     cfg.BatchSize,
		FlushDeadline: equeue.DefaultFlushDeadline,
		RetryBackoff:  equeue.DefaultRetryBackoff,
	}, nil)

	// The worker outlives any single command's context so it can drain
	// whatever was enqueued; close() stops it by cancelling workerCtx and
	// closing the queue, which together unblock its drain loop.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	go worker.Run(workerCtx)

	recaller := retrieval.New(store, store, store, svc)
	codeSearcher := retrieval.NewCodeSearcher(store, store, svc)

	scanner, err := scan.New()
	if err != nil {
		queue.Close()
		_ = store.Close()
		_ = c.Close()
		return nil, fmt.Errorf("failed to build file scanner: %w", err)
	}
	parser := codeparse.NewParser()
	ix := indexer.New(store, scanner, parser, queue, nil)

	return &app{
		cfg:          cfg,
		store:        store,
		cache:        c,
		embedder:     svc,
		queue:        queue,
		worker:       worker,
		recaller:     recaller,
		codeSearcher: codeSearcher,
		scanner:      scanner,
		parser:       parser,
		indexer:      ix,
		workerCancel: workerCancel,
		workerDone:   worker.Done(),
	}, nil
}

// close drains the embedding queue and releases every resource newApp
// opened, in reverse dependency order.
func (a *app) close() {
	a.workerCancel()
	a.queue.Close()
	<-a.workerDone
	a.parser.Close()
	_ = a.embedder.Close()
	_ = a.cache.Close()
	_ = a.store.Close()
}
