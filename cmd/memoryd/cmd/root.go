// Package cmd provides the memoryd CLI: serve, index, search, and status.
package cmd

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/amanmcp-labs/memoryd/internal/logging"
)

var (
	flagDataDir string
	flagModel   string
	flagDebug   bool

	debugCleanup func()
)

// NewRootCmd builds the memoryd root command.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memoryd",
		Short: "Embedded hybrid memory and code retrieval server",
		Long: `memoryd stores bitemporal memories and an indexed codebase, and
serves hybrid (vector + BM25 + graph) recall over both.

Run 'memoryd serve' to start the stdio protocol server, or use the index,
search, and status subcommands to operate on a project directly.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&flagDataDir, "data-dir", "", "Override the data directory (default: project/user config)")
	cmd.PersistentFlags().StringVar(&flagModel, "model", "", "Override the embedding model")
	cmd.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging to the log directory")

	cmd.PersistentPreRunE = setupLogging
	cmd.PersistentPostRunE = teardownLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newIndexCmd())
	cmd.AddCommand(newSearchCmd())
	cmd.AddCommand(newStatusCmd())

	return cmd
}

// Execute runs the root command.
func Execute() error {
	return NewRootCmd().Execute()
}

func setupLogging(cmd *cobra.Command, _ []string) error {
	// serve owns its own stdio-safe logging setup (stdout is reserved for
	// the protocol stream); every other subcommand logs to file/stderr.
	if cmd.Name() == "serve" {
		return nil
	}

	logCfg := logging.DefaultConfig()
	if flagDebug {
		logCfg = logging.DebugConfig()
	}
	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		return fmt.Errorf("failed to set up logging: %w", err)
	}
	debugCleanup = cleanup
	slog.SetDefault(logger)
	return nil
}

func teardownLogging(_ *cobra.Command, _ []string) error {
	if debugCleanup != nil {
		debugCleanup()
		debugCleanup = nil
	}
	return nil
}
