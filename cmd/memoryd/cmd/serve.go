package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/amanmcp-labs/memoryd/internal/lifecycle"
	"github.com/amanmcp-labs/memoryd/internal/logging"
	"github.com/amanmcp-labs/memoryd/internal/transport"
	"github.com/amanmcp-labs/memoryd/internal/watch"
)

// shutdownGrace is the total budget for the drain/flush/force_stop phases
// once a shutdown signal arrives (spec.md §5/§6).
const shutdownGrace = 2 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the stdio protocol server",
		Long: `serve starts the line-delimited JSON-RPC-like protocol server over
stdin/stdout (spec.md §6). Nothing but protocol responses is ever written
to stdout; diagnostics go to the log file so the protocol stream stays clean.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

func runServe(ctx context.Context) error {
	cleanup, err := logging.SetupStdioMode()
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	defer cleanup()
	log := slog.Default()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}

	registry := lifecycle.NewRegistry(log)
	registry.Register(&queueComponent{queue: a.queue, cancel: a.workerCancel, done: a.workerDone}, lifecycle.First)
	registry.Register(&storeComponent{store: a.store}, lifecycle.Last)

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	root, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to resolve working directory: %w", err)
	}
	if watcher, werr := watch.New(root, a.scanner, incrementalCallback(log, a, root), log); werr != nil {
		log.Warn("failed to start file watcher", "error", werr)
	} else {
		registry.Register(watcherComponent{}, lifecycle.Normal)
		go func() {
			if err := watcher.Start(sigCtx); err != nil {
				log.Warn("file watcher stopped", "error", err)
			}
		}()
	}

	handler := transport.NewHandler(a.store, a.recaller, a.codeSearcher, a.embedder, a.queue, a.indexer, registry, cfg.Model, log)
	server := transport.NewServer(handler, log)

	runErr := server.Run(sigCtx, os.Stdin, os.Stdout)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownGrace)
	registry.Shutdown(shutdownCtx, shutdownGrace)
	shutdownCancel()

	a.parser.Close()
	_ = a.embedder.Close()
	_ = a.cache.Close()

	return runErr
}

// incrementalCallback builds the debounced file-change handler the watcher
// feeds into the incremental indexer (spec.md §4.8).
func incrementalCallback(log *slog.Logger, a *app, root string) func(paths []string) {
	projectID := projectIDFor(root)
	return func(paths []string) {
		ctx, cancel := context.WithTimeout(context.Background(), time.Duration(a.cfg.TimeoutMS)*time.Millisecond)
		defer cancel()
		if err := a.indexer.Incremental(ctx, projectID, root, paths); err != nil {
			log.Warn("incremental reindex failed", "error", err, "project_id", projectID)
		}
	}
}
