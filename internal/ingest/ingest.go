package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orderbook-watcher/internal/exchange"
	"orderbook-watcher/internal/storage"
)

// CandleIngestor pulls kline history from the exchange and upserts it in
// chunked multi-row statements.
type CandleIngestor struct {
	fetcher   exchange.CandleFetcher
	store     storage.SeriesStore
	chunkSize int
	logger    zerolog.Logger
}

// NewCandleIngestor constructs a candle connector.
func NewCandleIngestor(fetcher exchange.CandleFetcher, store storage.SeriesStore, chunkSize int, logger zerolog.Logger) *CandleIngestor {
	return &CandleIngestor{
		fetcher:   fetcher,
		store:     store,
		chunkSize: chunkSize,
		logger:    logger.With().Str("component", "candle_ingest").Logger(),
	}
}

// Ingest fetches candles for market/resolution within [from, to] and persists
// them, returning the number of rows written.
func (c *CandleIngestor) Ingest(ctx context.Context, market, resolution string, from, to time.Time) (int, error) {
	candles, err := c.fetcher.FetchCandles(ctx, market, resolution, from, to)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		c.logger.Info().Str("market", market).Str("resolution", resolution).Msg("no candles in range")
		return 0, nil
	}

	updated := time.Now().UTC()
	rows := make([]storage.CandleRow, 0, len(candles))
	for _, candle := range candles {
		rows = append(rows, storage.CandleRow{
			Bucket:              candle.OpenTime,
			UpdatedAt:           updated,
			Market:              candle.Market,
			Resolution:          candle.Resolution,
			Open:                candle.Open,
			High:                candle.High,
			Low:                 candle.Low,
			Close:               candle.Close,
			Volume:              candle.Volume,
			QuoteVolume:         candle.QuoteVolume,
			TradeCount:          candle.TradeCount,
			TakerBuyVolume:      candle.TakerBuyVolume,
			TakerBuyQuoteVolume: candle.TakerBuyQuoteVolume,
		})
	}

	if err := c.store.UpsertCandles(ctx, rows, c.chunkSize); err != nil {
		return 0, fmt.Errorf("persist candles %s %s: %w", market, resolution, err)
	}

	c.logger.Info().Str("market", market).Str("resolution", resolution).Int("rows", len(rows)).Msg("candles ingested")
	return len(rows), nil
}

// FundingIngestor pulls funding-rate history from the exchange and upserts it
// in chunked multi-row statements.
type FundingIngestor struct {
	fetcher   exchange.FundingFetcher
	store     storage.SeriesStore
	chunkSize int
	logger    zerolog.Logger
}

// NewFundingIngestor constructs a funding-rate connector.
func NewFundingIngestor(fetcher exchange.FundingFetcher, store storage.SeriesStore, chunkSize int, logger zerolog.Logger) *FundingIngestor {
	return &FundingIngestor{
		fetcher:   fetcher,
		store:     store,
		chunkSize: chunkSize,
		logger:    logger.With().Str("component", "funding_ingest").Logger(),
	}
}

// Ingest fetches funding rates for market within [from, to] and persists them,
// returning the number of rows written.
func (f *FundingIngestor) Ingest(ctx context.Context, market string, from, to time.Time) (int, error) {
	rates, err := f.fetcher.FetchFundingRates(ctx, market, from, to)
	if err != nil {
		return 0, err
	}
	if len(rates) == 0 {
		f.logger.Info().Str("market", market).Msg("no funding rates in range")
		return 0, nil
	}

	rows := make([]storage.FundingRateRow, 0, len(rates))
	for _, rate := range rates {
		rows = append(rows, storage.FundingRateRow{
			Bucket: rate.Time,
			Market: rate.Market,
			Rate:   rate.Rate,
		})
	}

	if err := f.store.UpsertFundingRates(ctx, rows, f.chunkSize); err != nil {
		return 0, fmt.Errorf("persist funding rates %s: %w", market, err)
	}

	f.logger.Info().Str("market", market).Int("rows", len(rows)).Msg("funding rates ingested")
	return len(rows), nil
}
