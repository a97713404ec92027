package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// BookDepth is the stored order book width per side.
const BookDepth = 20

// BookSnapshot is one fixed-width order book row. Every level slice always
// holds exactly BookDepth entries; levels the exchange did not return are
// zero-filled so the row width never varies.
type BookSnapshot struct {
	Bucket     time.Time
	Market     string
	BidPrices  []float64
	BidVolumes []float64
	AskPrices  []float64
	AskVolumes []float64
}

// NewBookSnapshot returns a zero-filled snapshot for a market and tick.
func NewBookSnapshot(bucket time.Time, market string) BookSnapshot {
	return BookSnapshot{
		Bucket:     bucket,
		Market:     market,
		BidPrices:  make([]float64, BookDepth),
		BidVolumes: make([]float64, BookDepth),
		AskPrices:  make([]float64, BookDepth),
		AskVolumes: make([]float64, BookDepth),
	}
}

// ImbalanceSample is the aggregate notional value of each book side at a tick,
// computed over the full returned depth rather than the stored width.
type ImbalanceSample struct {
	Bucket   time.Time
	Market   string
	BidValue decimal.Decimal
	AskValue decimal.Decimal
}

// CandleRow is one persisted kline bar.
type CandleRow struct {
	Bucket              time.Time
	UpdatedAt           time.Time
	Market              string
	Resolution          string
	Open                decimal.Decimal
	High                decimal.Decimal
	Low                 decimal.Decimal
	Close               decimal.Decimal
	Volume              decimal.Decimal
	QuoteVolume         decimal.Decimal
	TradeCount          int64
	TakerBuyVolume      decimal.Decimal
	TakerBuyQuoteVolume decimal.Decimal
}

// FundingRateRow is one persisted funding rate observation.
type FundingRateRow struct {
	Bucket time.Time
	Market string
	Rate   decimal.Decimal
}

// SampleBatch carries every row produced by one tick. It is created fresh at
// the top of the tick, populated by the concurrent per-market fetches, handed
// to the store once, and discarded.
type SampleBatch struct {
	Target     time.Time
	Snapshots  []BookSnapshot
	Imbalances []ImbalanceSample
}
