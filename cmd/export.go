package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/shelfwatch/crawler/internal/export"
)

type exportFlags struct {
	format   string
	output   string
	category string
	product  string
	outlet   string
}

func newExportCmd() *cobra.Command {
	flags := &exportFlags{}
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Exports price data as CSV or JSON",
		Long: `Without --product, exports the latest observed price per product,
optionally filtered by top-level category. With --product, exports that
product's full snapshot history, optionally filtered by outlet.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runExport(cmd, flags)
		},
	}

	cmd.Flags().StringVar(&flags.format, "format", "csv", "output format: csv or json")
	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file (default stdout)")
	cmd.Flags().StringVar(&flags.category, "category", "", "filter latest prices to one top-level category")
	cmd.Flags().StringVar(&flags.product, "product", "", "export one product's price history instead")
	cmd.Flags().StringVar(&flags.outlet, "outlet", "", "with --product, restrict history to one outlet")
	return cmd
}

func runExport(cmd *cobra.Command, flags *exportFlags) error {
	format, err := export.ParseFormat(flags.format)
	if err != nil {
		return err
	}
	if flags.outlet != "" && flags.product == "" {
		return errors.New("--outlet requires --product")
	}

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

	var out io.Writer = os.Stdout
	if flags.output != "" {
		f, err := os.Create(flags.output)
		if err != nil {
			return fmt.Errorf("create output file: %w", err)
		}
		defer func() { _ = f.Close() }()
		out = f
	}

	if flags.product != "" {
		history, err := st.ProductHistory(cmd.Context(), flags.product, flags.outlet)
		if err != nil {
			return err
		}
		return export.History(out, format, history)
	}

	rows, err := st.LatestPrices(cmd.Context(), flags.category)
	if err != nil {
		return err
	}
	return export.LatestPrices(out, format, rows)
}
