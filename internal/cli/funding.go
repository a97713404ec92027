package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"orderbook-watcher/internal/app"
)

var (
	fundingMarket string
	fundingFrom   string
	fundingTo     string
)

var fundingCmd = &cobra.Command{
	Use:   "funding",
	Short: "Fetch and store funding rate history for a market",
	RunE: func(cmd *cobra.Command, args []string) error {
		if fundingMarket == "" {
			return fmt.Errorf("--market is required")
		}

		from, err := parseTime(fundingFrom)
		if err != nil {
			return err
		}
		to, err := parseTime(fundingTo)
		if err != nil {
			return err
		}

		opts := app.FundingOptions{
			Market: fundingMarket,
			From:   from,
			To:     to,
		}

		return getApp().IngestFunding(cmd.Context(), opts)
	},
}

func init() {
	fundingCmd.Flags().StringVar(&fundingMarket, "market", "", "Market symbol, e.g. BTCUSDT")
	fundingCmd.Flags().StringVar(&fundingFrom, "from", "", "Range start (RFC3339 or YYYY-MM-DD)")
	fundingCmd.Flags().StringVar(&fundingTo, "to", "", "Range end (RFC3339 or YYYY-MM-DD)")
}
