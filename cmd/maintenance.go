package cmd

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Creates or updates the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			st, err := openStore(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			logger.Info("schema up to date", zap.String("path", cfg.Storage.Path))
			return nil
		},
	}
}

func newCheckpointCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "checkpoint",
		Short: "Compacts the write-ahead log",
		Long: `Runs a truncating WAL checkpoint against the price-history database and
reports how many log pages were processed and moved back into the main file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			st, err := openStore(cmd, cfg, logger)
			if err != nil {
				return err
			}
			defer func() { _ = st.Close() }()

			result, err := st.Checkpoint(cmd.Context())
			if err != nil {
				return err
			}
			logger.Info("wal checkpoint",
				zap.Bool("busy", result.Busy),
				zap.Int("log_pages", result.LogPages),
				zap.Int("moved_pages", result.MovedPages),
			)
			return nil
		},
	}
}
