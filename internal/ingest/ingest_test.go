package ingest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"orderbook-watcher/internal/exchange"
	"orderbook-watcher/internal/storage"
)

type stubSeries struct {
	candles []exchange.Candle
	rates   []exchange.FundingRate
	err     error
}

func (s *stubSeries) FetchCandles(ctx context.Context, market, resolution string, from, to time.Time) ([]exchange.Candle, error) {
	return s.candles, s.err
}

func (s *stubSeries) FetchFundingRates(ctx context.Context, market string, from, to time.Time) ([]exchange.FundingRate, error) {
	return s.rates, s.err
}

type recordingStore struct {
	candleRows  []storage.CandleRow
	fundingRows []storage.FundingRateRow
	chunkSize   int
	err         error
}

func (r *recordingStore) UpsertCandles(ctx context.Context, rows []storage.CandleRow, chunkSize int) error {
	r.candleRows = rows
	r.chunkSize = chunkSize
	return r.err
}

func (r *recordingStore) UpsertFundingRates(ctx context.Context, rows []storage.FundingRateRow, chunkSize int) error {
	r.fundingRows = rows
	r.chunkSize = chunkSize
	return r.err
}

func TestCandleIngest(t *testing.T) {
	open := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	fetcher := &stubSeries{candles: []exchange.Candle{{
		OpenTime:   open,
		Market:     "BTCUSDT",
		Resolution: "1m",
		Open:       decimal.NewFromInt(100),
		Close:      decimal.NewFromInt(103),
		TradeCount: 42,
	}}}
	store := &recordingStore{}

	ingestor := NewCandleIngestor(fetcher, store, 500, zerolog.Nop())
	n, err := ingestor.Ingest(context.Background(), "BTCUSDT", "1m", open, open.Add(time.Minute))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if n != 1 {
		t.Fatalf("want 1 row written, got %d", n)
	}
	if store.chunkSize != 500 {
		t.Fatalf("chunk size %d, want 500", store.chunkSize)
	}

	row := store.candleRows[0]
	if !row.Bucket.Equal(open) || row.Market != "BTCUSDT" || row.Resolution != "1m" {
		t.Fatalf("unexpected row identity: %+v", row)
	}
	if row.UpdatedAt.IsZero() {
		t.Fatal("updated_at must be stamped")
	}
	if row.Close.String() != "103" || row.TradeCount != 42 {
		t.Fatalf("unexpected row values: %+v", row)
	}
}

func TestCandleIngestEmptyRange(t *testing.T) {
	store := &recordingStore{}
	ingestor := NewCandleIngestor(&stubSeries{}, store, 500, zerolog.Nop())

	n, err := ingestor.Ingest(context.Background(), "BTCUSDT", "1m", time.Now(), time.Now())
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if n != 0 || store.candleRows != nil {
		t.Fatal("empty range must not touch the store")
	}
}

func TestCandleIngestPropagatesFetchError(t *testing.T) {
	ingestor := NewCandleIngestor(&stubSeries{err: errors.New("boom")}, &recordingStore{}, 500, zerolog.Nop())
	if _, err := ingestor.Ingest(context.Background(), "BTCUSDT", "1m", time.Now(), time.Now()); err == nil {
		t.Fatal("expected a fetch error")
	}
}

func TestFundingIngest(t *testing.T) {
	at := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	fetcher := &stubSeries{rates: []exchange.FundingRate{
		{Time: at, Market: "BTCUSDT", Rate: decimal.RequireFromString("0.0001")},
		{Time: at.Add(8 * time.Hour), Market: "BTCUSDT", Rate: decimal.RequireFromString("-0.0002")},
	}}
	store := &recordingStore{}

	ingestor := NewFundingIngestor(fetcher, store, 250, zerolog.Nop())
	n, err := ingestor.Ingest(context.Background(), "BTCUSDT", at, at.Add(16*time.Hour))
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if n != 2 || len(store.fundingRows) != 2 {
		t.Fatalf("want 2 rows written, got %d", n)
	}
	if store.chunkSize != 250 {
		t.Fatalf("chunk size %d, want 250", store.chunkSize)
	}
	if store.fundingRows[1].Rate.String() != "-0.0002" {
		t.Fatalf("unexpected rate: %+v", store.fundingRows[1])
	}
}

func TestFundingIngestPersistError(t *testing.T) {
	at := time.Now().UTC()
	fetcher := &stubSeries{rates: []exchange.FundingRate{{Time: at, Market: "BTCUSDT", Rate: decimal.Zero}}}
	store := &recordingStore{err: errors.New("db down")}

	ingestor := NewFundingIngestor(fetcher, store, 0, zerolog.Nop())
	if _, err := ingestor.Ingest(context.Background(), "BTCUSDT", at, at); err == nil {
		t.Fatal("expected a persist error")
	}
}
