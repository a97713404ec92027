package storage

import (
	"context"
	"fmt"
)

// The schema is fixed: market is a column, never part of a table name, and
// every statement in the package binds values by position.
const schemaSQL = `
CREATE TABLE IF NOT EXISTS book_snapshots (
    id          BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
    bucket_ts   TIMESTAMPTZ NOT NULL,
    market      TEXT NOT NULL,
    bid_prices  DOUBLE PRECISION[] NOT NULL,
    bid_volumes DOUBLE PRECISION[] NOT NULL,
    ask_prices  DOUBLE PRECISION[] NOT NULL,
    ask_volumes DOUBLE PRECISION[] NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    UNIQUE (bucket_ts, market)
);

CREATE TABLE IF NOT EXISTS order_imbalance (
    id        BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
    bucket_ts TIMESTAMPTZ NOT NULL,
    market    TEXT NOT NULL,
    bid_value NUMERIC NOT NULL,
    ask_value NUMERIC NOT NULL,
    UNIQUE (bucket_ts, market)
);

CREATE TABLE IF NOT EXISTS candles (
    id                     BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
    bucket_ts              TIMESTAMPTZ NOT NULL,
    updated_at             TIMESTAMPTZ NOT NULL,
    market                 TEXT NOT NULL,
    resolution             TEXT NOT NULL,
    open_price             DOUBLE PRECISION NOT NULL,
    high_price             DOUBLE PRECISION NOT NULL,
    low_price              DOUBLE PRECISION NOT NULL,
    close_price            DOUBLE PRECISION NOT NULL,
    volume                 DOUBLE PRECISION NOT NULL,
    quote_volume           DOUBLE PRECISION NOT NULL,
    trade_count            BIGINT NOT NULL,
    taker_buy_volume       DOUBLE PRECISION NOT NULL,
    taker_buy_quote_volume DOUBLE PRECISION NOT NULL,
    UNIQUE (bucket_ts, market, resolution)
);

CREATE INDEX IF NOT EXISTS idx_candles_bucket_market ON candles (bucket_ts, market);

CREATE TABLE IF NOT EXISTS funding_rates (
    id           BIGINT PRIMARY KEY GENERATED ALWAYS AS IDENTITY,
    bucket_ts    TIMESTAMPTZ NOT NULL,
    market       TEXT NOT NULL,
    funding_rate NUMERIC NOT NULL,
    UNIQUE (bucket_ts, market)
);
`

// EnsureSchema creates all tables and indexes if they do not yet exist.
// A failure here is fatal to the caller: the sampling loop never starts
// against a store it could not prepare.
func (s *Store) EnsureSchema(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}
