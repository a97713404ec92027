package app

import (
	"context"
	"errors"

	"orderbook-watcher/internal/ingest"
)

// IngestCandles runs the candle connector for a market and closed range.
func (a *App) IngestCandles(ctx context.Context, opts CandlesOptions) error {
	if !opts.From.Before(opts.To) {
		return errors.New("candle range is empty; check --from/--to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	ingestor := ingest.NewCandleIngestor(a.newExchange(), store, a.Config.Ingest.ChunkSize, a.Logger)
	rows, err := ingestor.Ingest(ctx, opts.Market, opts.Resolution, opts.From, opts.To)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("rows", rows).Msg("candle ingest finished")
	return nil
}

// IngestFunding runs the funding-rate connector for a market and closed range.
func (a *App) IngestFunding(ctx context.Context, opts FundingOptions) error {
	if !opts.From.Before(opts.To) {
		return errors.New("funding range is empty; check --from/--to")
	}

	store, closeStore, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := store.EnsureSchema(ctx); err != nil {
		return err
	}

	ingestor := ingest.NewFundingIngestor(a.newExchange(), store, a.Config.Ingest.ChunkSize, a.Logger)
	rows, err := ingestor.Ingest(ctx, opts.Market, opts.From, opts.To)
	if err != nil {
		return err
	}

	a.Logger.Info().Int("rows", rows).Msg("funding ingest finished")
	return nil
}
