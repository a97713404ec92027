package app

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"orderbook-watcher/internal/storage"
)

type candleLister interface {
	ListCandles(ctx context.Context, market, resolution string, from, to time.Time) ([]storage.CandleRow, error)
}

type fundingLister interface {
	ListFundingRates(ctx context.Context, market string, from, to time.Time) ([]storage.FundingRateRow, error)
}

// Query prints stored series for a market and closed time range as JSON.
// Order book and imbalance queries down-sample by modular filtering on epoch
// seconds; candle and funding queries return every row in range.
func (a *App) Query(ctx context.Context, opts QueryOptions) error {
	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	var payload any
	switch opts.Kind {
	case "orderbook":
		payload, err = store.OrderBookPage(ctx, opts.Market, opts.From, opts.To, opts.Period)
	case "imbalance":
		payload, err = store.ImbalancePage(ctx, opts.Market, opts.From, opts.To, opts.Period)
	case "candles":
		payload, err = a.queryCandles(ctx, store, opts)
	case "funding":
		payload, err = a.queryFunding(ctx, store, opts)
	default:
		return fmt.Errorf("unknown query kind %q (want orderbook, imbalance, candles or funding)", opts.Kind)
	}
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(payload)
}

func (a *App) queryCandles(ctx context.Context, store candleLister, opts QueryOptions) (any, error) {
	rows, err := store.ListCandles(ctx, opts.Market, opts.Resolution, opts.From, opts.To)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any{
			"date":        row.Bucket.UTC().Format(time.RFC3339),
			"market":      row.Market,
			"resolution":  row.Resolution,
			"open":        row.Open,
			"high":        row.High,
			"low":         row.Low,
			"close":       row.Close,
			"volume":      row.Volume,
			"trade_count": row.TradeCount,
		})
	}
	return out, nil
}

func (a *App) queryFunding(ctx context.Context, store fundingLister, opts QueryOptions) (any, error) {
	rows, err := store.ListFundingRates(ctx, opts.Market, opts.From, opts.To)
	if err != nil {
		return nil, err
	}

	out := make([]map[string]any, 0, len(rows))
	for _, row := range rows {
		out = append(out, map[string]any{
			"date":         row.Bucket.UTC().Format(time.RFC3339),
			"market":       row.Market,
			"funding_rate": row.Rate,
		})
	}
	return out, nil
}
