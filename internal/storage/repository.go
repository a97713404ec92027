package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const (
	upsertBookSnapshotSQL = `INSERT INTO book_snapshots (
        bucket_ts,
        market,
        bid_prices,
        bid_volumes,
        ask_prices,
        ask_volumes
    ) VALUES (
        $1,$2,$3,$4,$5,$6
    )
    ON CONFLICT (bucket_ts, market) DO UPDATE
    SET
        bid_prices  = EXCLUDED.bid_prices,
        bid_volumes = EXCLUDED.bid_volumes,
        ask_prices  = EXCLUDED.ask_prices,
        ask_volumes = EXCLUDED.ask_volumes;`

	upsertImbalanceSQL = `INSERT INTO order_imbalance (
        bucket_ts,
        market,
        bid_value,
        ask_value
    ) VALUES (
        $1,$2,$3,$4
    )
    ON CONFLICT (bucket_ts, market) DO UPDATE
    SET bid_value = EXCLUDED.bid_value,
        ask_value = EXCLUDED.ask_value;`

	bookPageSQL = `SELECT
        bucket_ts,
        bid_prices,
        bid_volumes,
        ask_prices,
        ask_volumes
    FROM book_snapshots
    WHERE market = $1
      AND bucket_ts >= $2
      AND bucket_ts <= $3
      AND (EXTRACT(EPOCH FROM bucket_ts)::bigint % $4) = 0
    ORDER BY bucket_ts;`

	imbalancePageSQL = `SELECT
        bucket_ts,
        bid_value::text,
        ask_value::text
    FROM order_imbalance
    WHERE market = $1
      AND bucket_ts >= $2
      AND bucket_ts <= $3
      AND (EXTRACT(EPOCH FROM bucket_ts)::bigint % $4) = 0
    ORDER BY bucket_ts;`

	listRecentImbalanceSQL = `SELECT
        bucket_ts,
        market,
        bid_value::text,
        ask_value::text
    FROM order_imbalance
    ORDER BY bucket_ts DESC
    LIMIT $1;`

	listImbalanceBetweenSQL = `SELECT
        bucket_ts,
        market,
        bid_value::text,
        ask_value::text
    FROM order_imbalance
    WHERE market = $1
      AND bucket_ts >= $2
      AND bucket_ts <= $3
    ORDER BY bucket_ts;`

	listCandlesSQL = `SELECT
        bucket_ts,
        updated_at,
        market,
        resolution,
        open_price,
        high_price,
        low_price,
        close_price,
        volume,
        quote_volume,
        trade_count,
        taker_buy_volume,
        taker_buy_quote_volume
    FROM candles
    WHERE market = $1
      AND resolution = $2
      AND bucket_ts >= $3
      AND bucket_ts <= $4
    ORDER BY bucket_ts;`

	listFundingRatesSQL = `SELECT
        bucket_ts,
        market,
        funding_rate::text
    FROM funding_rates
    WHERE market = $1
      AND bucket_ts >= $2
      AND bucket_ts <= $3
    ORDER BY bucket_ts;`

	listSampledMarketsSQL = `SELECT
        market,
        min(bucket_ts),
        max(bucket_ts),
        count(*)
    FROM book_snapshots
    GROUP BY market
    ORDER BY market;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

var (
	candleColumns = []string{
		"bucket_ts", "updated_at", "market", "resolution",
		"open_price", "high_price", "low_price", "close_price",
		"volume", "quote_volume", "trade_count",
		"taker_buy_volume", "taker_buy_quote_volume",
	}
	candleConflictSQL = `ON CONFLICT (bucket_ts, market, resolution) DO UPDATE
    SET (updated_at, open_price, high_price, low_price, close_price, volume,
         quote_volume, trade_count, taker_buy_volume, taker_buy_quote_volume)
      = (EXCLUDED.updated_at, EXCLUDED.open_price, EXCLUDED.high_price,
         EXCLUDED.low_price, EXCLUDED.close_price, EXCLUDED.volume,
         EXCLUDED.quote_volume, EXCLUDED.trade_count,
         EXCLUDED.taker_buy_volume, EXCLUDED.taker_buy_quote_volume);`

	fundingColumns     = []string{"bucket_ts", "market", "funding_rate"}
	fundingConflictSQL = `ON CONFLICT (bucket_ts, market) DO UPDATE
    SET funding_rate = EXCLUDED.funding_rate;`
)

// SampleStore persists the per-tick sample batch.
type SampleStore interface {
	UpsertBookSnapshots(ctx context.Context, snapshots []BookSnapshot) error
	UpsertImbalanceSamples(ctx context.Context, samples []ImbalanceSample) error
}

// SeriesStore persists candle and funding-rate history.
type SeriesStore interface {
	UpsertCandles(ctx context.Context, rows []CandleRow, chunkSize int) error
	UpsertFundingRates(ctx context.Context, rows []FundingRateRow, chunkSize int) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store aggregates access to all time-series tables.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// UpsertBookSnapshots writes one statement per market row, failing fast on the
// first error so the remainder of the batch is abandoned for this tick.
func (s *Store) UpsertBookSnapshots(ctx context.Context, snapshots []BookSnapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, snapshot := range snapshots {
		_, execErr := pool.Exec(ctx, upsertBookSnapshotSQL,
			snapshot.Bucket,
			snapshot.Market,
			snapshot.BidPrices,
			snapshot.BidVolumes,
			snapshot.AskPrices,
			snapshot.AskVolumes,
		)
		if execErr != nil {
			return fmt.Errorf("upsert book snapshot %s: %w", snapshot.Market, execErr)
		}
	}
	return nil
}

// UpsertImbalanceSamples writes one statement per market row, failing fast.
func (s *Store) UpsertImbalanceSamples(ctx context.Context, samples []ImbalanceSample) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, sample := range samples {
		_, execErr := pool.Exec(ctx, upsertImbalanceSQL,
			sample.Bucket,
			sample.Market,
			sample.BidValue.String(),
			sample.AskValue.String(),
		)
		if execErr != nil {
			return fmt.Errorf("upsert order imbalance %s: %w", sample.Market, execErr)
		}
	}
	return nil
}

// UpsertCandles writes multi-row statements, chunked to bound statement size.
func (s *Store) UpsertCandles(ctx context.Context, rows []CandleRow, chunkSize int) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, batch := range chunkRows(rows, chunkSize) {
		args := make([]any, 0, len(batch)*len(candleColumns))
		for _, row := range batch {
			args = append(args,
				row.Bucket,
				row.UpdatedAt,
				row.Market,
				row.Resolution,
				row.Open.InexactFloat64(),
				row.High.InexactFloat64(),
				row.Low.InexactFloat64(),
				row.Close.InexactFloat64(),
				row.Volume.InexactFloat64(),
				row.QuoteVolume.InexactFloat64(),
				row.TradeCount,
				row.TakerBuyVolume.InexactFloat64(),
				row.TakerBuyQuoteVolume.InexactFloat64(),
			)
		}

		sql := multiRowInsertSQL("candles", candleColumns, len(batch), candleConflictSQL)
		if _, execErr := pool.Exec(ctx, sql, args...); execErr != nil {
			return fmt.Errorf("upsert candles chunk of %d: %w", len(batch), execErr)
		}
	}
	return nil
}

// UpsertFundingRates writes multi-row statements, chunked to bound statement size.
func (s *Store) UpsertFundingRates(ctx context.Context, rows []FundingRateRow, chunkSize int) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	for _, batch := range chunkRows(rows, chunkSize) {
		args := make([]any, 0, len(batch)*len(fundingColumns))
		for _, row := range batch {
			args = append(args, row.Bucket, row.Market, row.Rate.String())
		}

		sql := multiRowInsertSQL("funding_rates", fundingColumns, len(batch), fundingConflictSQL)
		if _, execErr := pool.Exec(ctx, sql, args...); execErr != nil {
			return fmt.Errorf("upsert funding rates chunk of %d: %w", len(batch), execErr)
		}
	}
	return nil
}

// OrderBookPage returns one object per stored timestamp within [from, to]
// whose epoch seconds divide evenly by period, re-emitting the fixed-width
// levels under bid_price_1..ask_volume_N keys.
func (s *Store) OrderBookPage(ctx context.Context, market string, from, to time.Time, period int) (map[string]map[string]float64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if period <= 0 {
		return nil, fmt.Errorf("period must be greater than zero")
	}

	rows, queryErr := pool.Query(ctx, bookPageSQL, market, from, to, period)
	if queryErr != nil {
		return nil, fmt.Errorf("query book page: %w", queryErr)
	}
	defer rows.Close()

	page := make(map[string]map[string]float64)
	for rows.Next() {
		snapshot := BookSnapshot{Market: market}
		if err := rows.Scan(
			&snapshot.Bucket,
			&snapshot.BidPrices,
			&snapshot.BidVolumes,
			&snapshot.AskPrices,
			&snapshot.AskVolumes,
		); err != nil {
			return nil, err
		}
		page[pageKey(snapshot.Bucket)] = snapshot.Fields()
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return page, nil
}

// ImbalancePoint is one read-side imbalance observation.
type ImbalancePoint struct {
	BidValue decimal.Decimal `json:"order_imbalance_bid"`
	AskValue decimal.Decimal `json:"order_imbalance_ask"`
}

// ImbalancePage returns one object per stored timestamp within [from, to]
// whose epoch seconds divide evenly by period.
func (s *Store) ImbalancePage(ctx context.Context, market string, from, to time.Time, period int) (map[string]ImbalancePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	if period <= 0 {
		return nil, fmt.Errorf("period must be greater than zero")
	}

	rows, queryErr := pool.Query(ctx, imbalancePageSQL, market, from, to, period)
	if queryErr != nil {
		return nil, fmt.Errorf("query imbalance page: %w", queryErr)
	}
	defer rows.Close()

	page := make(map[string]ImbalancePoint)
	for rows.Next() {
		var bucket time.Time
		var bidStr, askStr string
		if err := rows.Scan(&bucket, &bidStr, &askStr); err != nil {
			return nil, err
		}
		point, convErr := parseImbalancePoint(bidStr, askStr)
		if convErr != nil {
			return nil, convErr
		}
		page[pageKey(bucket)] = point
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return page, nil
}

// ListRecentImbalance lists the most recent imbalance samples across markets.
func (s *Store) ListRecentImbalance(ctx context.Context, limit int) ([]ImbalanceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentImbalanceSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent imbalance: %w", queryErr)
	}
	defer rows.Close()

	return scanImbalanceSamples(rows.Next, rows.Scan, rows.Err)
}

// ListImbalanceBetween lists imbalance samples for a market within [from, to].
func (s *Store) ListImbalanceBetween(ctx context.Context, market string, from, to time.Time) ([]ImbalanceSample, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listImbalanceBetweenSQL, market, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list imbalance between: %w", queryErr)
	}
	defer rows.Close()

	return scanImbalanceSamples(rows.Next, rows.Scan, rows.Err)
}

// ListCandles lists candle rows for a market and resolution within [from, to].
func (s *Store) ListCandles(ctx context.Context, market, resolution string, from, to time.Time) ([]CandleRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listCandlesSQL, market, resolution, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list candles: %w", queryErr)
	}
	defer rows.Close()

	candles := make([]CandleRow, 0)
	for rows.Next() {
		var row CandleRow
		var open, high, low, closePrice, volume, quoteVolume, takerBuy, takerBuyQuote float64
		if err := rows.Scan(
			&row.Bucket,
			&row.UpdatedAt,
			&row.Market,
			&row.Resolution,
			&open,
			&high,
			&low,
			&closePrice,
			&volume,
			&quoteVolume,
			&row.TradeCount,
			&takerBuy,
			&takerBuyQuote,
		); err != nil {
			return nil, err
		}
		row.Open = decimal.NewFromFloat(open)
		row.High = decimal.NewFromFloat(high)
		row.Low = decimal.NewFromFloat(low)
		row.Close = decimal.NewFromFloat(closePrice)
		row.Volume = decimal.NewFromFloat(volume)
		row.QuoteVolume = decimal.NewFromFloat(quoteVolume)
		row.TakerBuyVolume = decimal.NewFromFloat(takerBuy)
		row.TakerBuyQuoteVolume = decimal.NewFromFloat(takerBuyQuote)
		candles = append(candles, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return candles, nil
}

// ListFundingRates lists funding rates for a market within [from, to].
func (s *Store) ListFundingRates(ctx context.Context, market string, from, to time.Time) ([]FundingRateRow, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listFundingRatesSQL, market, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list funding rates: %w", queryErr)
	}
	defer rows.Close()

	rates := make([]FundingRateRow, 0)
	for rows.Next() {
		var row FundingRateRow
		var rateStr string
		if err := rows.Scan(&row.Bucket, &row.Market, &rateStr); err != nil {
			return nil, err
		}
		rate, convErr := decimal.NewFromString(rateStr)
		if convErr != nil {
			return nil, fmt.Errorf("parse funding rate: %w", convErr)
		}
		row.Rate = rate
		rates = append(rates, row)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rates, nil
}

// MarketInfo summarises stored coverage for one market.
type MarketInfo struct {
	Market      string
	FirstBucket time.Time
	LastBucket  time.Time
	Rows        int64
}

// ListSampledMarkets reports every market present in book_snapshots with its
// stored range and row count.
func (s *Store) ListSampledMarkets(ctx context.Context) ([]MarketInfo, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSampledMarketsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list sampled markets: %w", queryErr)
	}
	defer rows.Close()

	infos := make([]MarketInfo, 0)
	for rows.Next() {
		var info MarketInfo
		if err := rows.Scan(&info.Market, &info.FirstBucket, &info.LastBucket, &info.Rows); err != nil {
			return nil, err
		}
		infos = append(infos, info)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return infos, nil
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		// Best effort: releasing the session connection drops the lock anyway.
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

// Fields flattens the fixed-width levels into the flat key space the read
// side has always exposed: bid_price_1..ask_volume_N, one-based from the best
// level.
func (b BookSnapshot) Fields() map[string]float64 {
	fields := make(map[string]float64, 4*len(b.BidPrices))
	for i := range b.BidPrices {
		fields[fmt.Sprintf("bid_price_%d", i+1)] = b.BidPrices[i]
		fields[fmt.Sprintf("bid_volume_%d", i+1)] = b.BidVolumes[i]
	}
	for i := range b.AskPrices {
		fields[fmt.Sprintf("ask_price_%d", i+1)] = b.AskPrices[i]
		fields[fmt.Sprintf("ask_volume_%d", i+1)] = b.AskVolumes[i]
	}
	return fields
}

func scanImbalanceSamples(next func() bool, scan func(...any) error, rowsErr func() error) ([]ImbalanceSample, error) {
	samples := make([]ImbalanceSample, 0)
	for next() {
		var sample ImbalanceSample
		var bidStr, askStr string
		if err := scan(&sample.Bucket, &sample.Market, &bidStr, &askStr); err != nil {
			return nil, err
		}
		point, convErr := parseImbalancePoint(bidStr, askStr)
		if convErr != nil {
			return nil, convErr
		}
		sample.BidValue = point.BidValue
		sample.AskValue = point.AskValue
		samples = append(samples, sample)
	}
	if err := rowsErr(); err != nil {
		return nil, err
	}
	return samples, nil
}

func parseImbalancePoint(bidStr, askStr string) (ImbalancePoint, error) {
	bid, err := decimal.NewFromString(bidStr)
	if err != nil {
		return ImbalancePoint{}, fmt.Errorf("parse bid value: %w", err)
	}
	ask, err := decimal.NewFromString(askStr)
	if err != nil {
		return ImbalancePoint{}, fmt.Errorf("parse ask value: %w", err)
	}
	return ImbalancePoint{BidValue: bid, AskValue: ask}, nil
}

func pageKey(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05-07")
}

// chunkRows splits rows into batches of at most size; size <= 0 keeps
// everything in a single batch.
func chunkRows[T any](rows []T, size int) [][]T {
	if len(rows) == 0 {
		return nil
	}
	if size <= 0 || size >= len(rows) {
		return [][]T{rows}
	}
	chunks := make([][]T, 0, (len(rows)+size-1)/size)
	for start := 0; start < len(rows); start += size {
		end := start + size
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}

// multiRowInsertSQL builds an INSERT over fixed column names with positional
// placeholders for rowCount rows. Identifiers are package constants; only
// values are bound.
func multiRowInsertSQL(table string, columns []string, rowCount int, conflictSQL string) string {
	var builder strings.Builder
	builder.WriteString("INSERT INTO ")
	builder.WriteString(table)
	builder.WriteString(" (")
	builder.WriteString(strings.Join(columns, ", "))
	builder.WriteString(") VALUES ")

	arg := 1
	for row := 0; row < rowCount; row++ {
		if row > 0 {
			builder.WriteString(", ")
		}
		builder.WriteString("(")
		for col := range columns {
			if col > 0 {
				builder.WriteString(",")
			}
			fmt.Fprintf(&builder, "$%d", arg)
			arg++
		}
		builder.WriteString(")")
	}

	builder.WriteString(" ")
	builder.WriteString(conflictSQL)
	return builder.String()
}

var (
	_ SampleStore    = (*Store)(nil)
	_ SeriesStore    = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
