package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"field-sync-service/internal/config"
	"field-sync-service/internal/logger"
)

var version = "dev"

var flagConfigPath string

// cfg is loaded by the root PersistentPreRunE before any subcommand runs.
var cfg *config.Config

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	serve := newServeCmd()

	cmd := &cobra.Command{
		Use:           "field-sync",
		Short:         "Offline-first sync service for field client records",
		Version:       version,
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			loaded, err := config.LoadConfig(flagConfigPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			if err := logger.InitLogger(loaded.Logging); err != nil {
				return fmt.Errorf("failed to init logger: %w", err)
			}
			cfg = loaded
			return nil
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			logger.Sync()
		},
		// Running without a subcommand serves.
		RunE: serve.RunE,
	}

	cmd.PersistentFlags().StringVar(&flagConfigPath, "config", "config.yaml", "config file path")

	cmd.AddCommand(serve)
	cmd.AddCommand(newPendingCmd())
	cmd.AddCommand(newPurgeCmd())

	return cmd
}
