package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"orderbook-watcher/internal/app"
)

var (
	exportMarket    string
	exportFrom      string
	exportTo        string
	exportCSV       string
	exportPNG       string
	exportMaxPoints int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the order imbalance series as CSV and/or PNG",
	RunE: func(cmd *cobra.Command, args []string) error {
		if exportCSV == "" && exportPNG == "" {
			return fmt.Errorf("at least one of --csv or --png must be provided")
		}

		opts := app.ExportOptions{
			Market:    exportMarket,
			CSVPath:   exportCSV,
			PNGPath:   exportPNG,
			MaxPoints: exportMaxPoints,
		}

		if exportFrom != "" {
			from, err := parseTime(exportFrom)
			if err != nil {
				return err
			}
			opts.From = &from
		}
		if exportTo != "" {
			to, err := parseTime(exportTo)
			if err != nil {
				return err
			}
			opts.To = &to
		}

		return getApp().Export(cmd.Context(), opts)
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportMarket, "market", "", "Market symbol, e.g. BTCUSDT")
	exportCmd.Flags().StringVar(&exportFrom, "from", "", "Range start (RFC3339 or YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportTo, "to", "", "Range end (RFC3339 or YYYY-MM-DD)")
	exportCmd.Flags().StringVar(&exportCSV, "csv", "", "CSV output path")
	exportCmd.Flags().StringVar(&exportPNG, "png", "", "PNG output path")
	exportCmd.Flags().IntVar(&exportMaxPoints, "max-points", 0, "Maximum data points to export (0 uses config default)")
}
