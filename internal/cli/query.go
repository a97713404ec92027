package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"orderbook-watcher/internal/app"
)

var (
	queryKind       string
	queryMarket     string
	queryFrom       string
	queryTo         string
	queryPeriod     int
	queryResolution string
)

var queryCmd = &cobra.Command{
	Use:   "query",
	Short: "Print stored series for a market and time range as JSON",
	RunE: func(cmd *cobra.Command, args []string) error {
		if queryMarket == "" {
			return fmt.Errorf("--market is required")
		}

		from, err := parseTime(queryFrom)
		if err != nil {
			return err
		}
		to, err := parseTime(queryTo)
		if err != nil {
			return err
		}

		opts := app.QueryOptions{
			Kind:       queryKind,
			Market:     queryMarket,
			From:       from,
			To:         to,
			Period:     queryPeriod,
			Resolution: queryResolution,
		}

		return getApp().Query(cmd.Context(), opts)
	},
}

func init() {
	queryCmd.Flags().StringVar(&queryKind, "kind", "orderbook", "Series to query: orderbook, imbalance, candles or funding")
	queryCmd.Flags().StringVar(&queryMarket, "market", "", "Market symbol, e.g. BTCUSDT")
	queryCmd.Flags().StringVar(&queryFrom, "from", "", "Range start (RFC3339 or YYYY-MM-DD)")
	queryCmd.Flags().StringVar(&queryTo, "to", "", "Range end (RFC3339 or YYYY-MM-DD)")
	queryCmd.Flags().IntVar(&queryPeriod, "period", 30, "Down-sampling period in seconds (orderbook/imbalance)")
	queryCmd.Flags().StringVar(&queryResolution, "resolution", "1h", "Candle resolution (candles only)")
}
