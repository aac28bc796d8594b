package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/amanmcp-labs/memoryd/internal/types"
)

func newIndexCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "index [path]",
		Short: "Index a directory for hybrid code search",
		Long: `index scans path (default: the current directory), chunks its code,
generates embeddings, and builds the vector/BM25/symbol indices hybrid
search draws on (spec.md §4.6-§4.9).

Without --force, a project already fully indexed is skipped; pass --force
to rebuild it from scratch.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "."
			if len(args) > 0 {
				path = args[0]
			}
			return runIndex(cmd.Context(), cmd, path, force)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Reindex even if a completed index already exists")
	return cmd
}

func runIndex(ctx context.Context, cmd *cobra.Command, path string, force bool) error {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve path: %w", err)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return fmt.Errorf("failed to access path: %w", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", absPath)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	projectID := projectIDFor(absPath)

	if !force {
		if existing, err := a.store.GetIndexStatus(ctx, projectID); err == nil && existing.State == types.IndexStateCompleted {
			fmt.Fprintf(cmd.OutOrStdout(), "project already indexed (%d files, %d chunks) — pass --force to rebuild\n",
				existing.TotalFiles, existing.TotalChunks)
			return nil
		}
	}

	start := time.Now()
	fmt.Fprintf(cmd.OutOrStdout(), "indexing %s...\n", absPath)
	if err := a.indexer.FullIndex(ctx, projectID, absPath); err != nil {
		return fmt.Errorf("indexing failed: %w", err)
	}

	status, err := a.store.GetIndexStatus(ctx, projectID)
	if err != nil {
		return fmt.Errorf("failed to read index status: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "indexed %d files, %d chunks, %d symbols in %s\n",
		status.TotalFiles, status.TotalChunks, status.TotalSymbols, time.Since(start).Round(time.Millisecond))
	return nil
}
