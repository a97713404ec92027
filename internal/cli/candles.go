package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"orderbook-watcher/internal/app"
)

var (
	candlesMarket     string
	candlesResolution string
	candlesFrom       string
	candlesTo         string
)

var candlesCmd = &cobra.Command{
	Use:   "candles",
	Short: "Fetch and store kline history for a market",
	RunE: func(cmd *cobra.Command, args []string) error {
		if candlesMarket == "" {
			return fmt.Errorf("--market is required")
		}

		from, err := parseTime(candlesFrom)
		if err != nil {
			return err
		}
		to, err := parseTime(candlesTo)
		if err != nil {
			return err
		}

		opts := app.CandlesOptions{
			Market:     candlesMarket,
			Resolution: candlesResolution,
			From:       from,
			To:         to,
		}

		return getApp().IngestCandles(cmd.Context(), opts)
	},
}

func init() {
	candlesCmd.Flags().StringVar(&candlesMarket, "market", "", "Market symbol, e.g. BTCUSDT")
	candlesCmd.Flags().StringVar(&candlesResolution, "resolution", "1h", "Kline resolution, e.g. 1m, 1h, 1d")
	candlesCmd.Flags().StringVar(&candlesFrom, "from", "", "Range start (RFC3339 or YYYY-MM-DD)")
	candlesCmd.Flags().StringVar(&candlesTo, "to", "", "Range end (RFC3339 or YYYY-MM-DD)")
}
