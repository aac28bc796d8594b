package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/amanmcp-labs/memoryd/internal/retrieval"
)

func newSearchCmd() *cobra.Command {
	var (
		limit     int
		projectID string
		codeOnly  bool
	)

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search memories and indexed code",
		Long: `search runs hybrid recall over stored memories (vector + BM25 + PPR,
spec.md §4.13) and, with --project, over an indexed project's code
(vector + BM25, spec.md §4.5).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			query := strings.Join(args, " ")
			return runSearch(cmd.Context(), cmd, query, limit, projectID, codeOnly)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "Maximum number of results")
	cmd.Flags().StringVar(&projectID, "project", "", "Restrict to an indexed project's code (project ID from 'memoryd index')")
	cmd.Flags().BoolVar(&codeOnly, "code", false, "Search code only, skip memory recall")

	return cmd
}

func runSearch(ctx context.Context, cmd *cobra.Command, query string, limit int, projectID string, codeOnly bool) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	out := cmd.OutOrStdout()

	if codeOnly && projectID == "" {
		return fmt.Errorf("--code requires --project")
	}
	if projectID != "" {
		hits, err := a.codeSearcher.Search(ctx, query, projectID, limit)
		if err != nil {
			return fmt.Errorf("code search failed: %w", err)
		}
		if len(hits) == 0 {
			fmt.Fprintln(out, "no code results")
		} else {
			printCodeHits(out, hits)
		}
		if codeOnly {
			return nil
		}
	}

	results, err := a.recaller.Recall(ctx, query, limit, retrieval.DefaultWeights)
	if err != nil {
		return fmt.Errorf("recall failed: %w", err)
	}
	if len(results) == 0 {
		fmt.Fprintln(out, "no results")
		return nil
	}
	printMemoryHits(out, results)
	return nil
}

func printMemoryHits(out io.Writer, results []retrieval.ScoredMemory) {
	for i, r := range results {
		content := r.Content
		if len(content) > 120 {
			content = content[:117] + "..."
		}
		fmt.Fprintf(out, "%2d. [%.4f] (%s) %s\n", i+1, r.Combined, r.Kind, content)
	}
}

func printCodeHits(out io.Writer, hits []retrieval.ScoredCode) {
	for i, h := range hits {
		fmt.Fprintf(out, "%2d. [%.4f] %s:%d-%d\n", i+1, h.Combined, h.FilePath, h.StartLine, h.EndLine)
	}
}
