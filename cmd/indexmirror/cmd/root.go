// Package cmd provides the CLI commands for indexmirror.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/meridianhq/indexmirror/internal/config"
	"github.com/meridianhq/indexmirror/internal/logging"
	"github.com/meridianhq/indexmirror/pkg/version"
)

var (
	configPath string
	debugMode  bool

	cfg            *config.Config
	loggingCleanup func()
)

// NewRootCmd creates the root command for the indexmirror CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "indexmirror",
		Short: "Keep search indexes converged with a content database",
		Long: `indexmirror maintains one search index per owner, incrementally
synchronized with a content database. Watermarks persisted per owner
make every pass resumable: a crash or failed pass re-covers its window
on the next run instead of losing changes.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("indexmirror version {{.Version}}\n")

	cmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default: indexmirror.yaml)")
	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging")

	cmd.PersistentPreRunE = setupRuntime
	cmd.PersistentPostRun = teardownRuntime

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newWatchCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// setupRuntime loads configuration and initializes logging before any
// subcommand runs.
func setupRuntime(_ *cobra.Command, _ []string) error {
	loaded, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	cfg = loaded

	level := cfg.Logging.Level
	if debugMode {
		level = "debug"
	}

	cleanup, err := logging.Setup(logging.Config{
		Level:    level,
		FilePath: cfg.Logging.File,
	})
	if err != nil {
		return fmt.Errorf("initialize logging: %w", err)
	}
	loggingCleanup = cleanup
	return nil
}

func teardownRuntime(_ *cobra.Command, _ []string) {
	if loggingCleanup != nil {
		loggingCleanup()
		loggingCleanup = nil
	}
}

// Execute runs the root command.
func Execute() error {
	root := NewRootCmd()
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		return err
	}
	return nil
}
