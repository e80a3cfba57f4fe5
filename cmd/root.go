// Package cmd defines and implements the CLI commands for the shelfwatch
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shelfwatch/crawler/internal/config"
	"github.com/shelfwatch/crawler/internal/logging"
	"github.com/shelfwatch/crawler/internal/store"
)

var cfgFile string

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "shelfwatch",
		Short: "A resumable price-catalog crawler for grocery outlets.",
		Long: `shelfwatch crawls an upstream grocery catalog API outlet by outlet and
category by category, recording a timestamped price snapshot for every
product it sees. Crawls are checkpointed per (outlet, category) work item
and can be resumed after an interruption without redoing finished items.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./shelfwatch.yaml)")

	cmd.AddCommand(newCrawlCmd())
	cmd.AddCommand(newExportCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newCheckpointCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the root logger shared by every
// subcommand.
func setup() (config.Config, *zap.Logger, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		return config.Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, logger, nil
}

// openStore opens the price-history database and applies migrations.
func openStore(cmd *cobra.Command, cfg config.Config, logger *zap.Logger) (*store.Store, error) {
	st, err := store.Open(cfg.Storage.Path, logger)
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(cmd.Context()); err != nil {
		_ = st.Close()
		return nil, err
	}
	return st, nil
}
