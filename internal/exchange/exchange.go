package exchange

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Level is one resting price level of an order book side.
type Level struct {
	Price  decimal.Decimal
	Volume decimal.Decimal
}

// OrderBook is a raw depth snapshot as returned by the exchange,
// bids and asks ordered best to worst.
type OrderBook struct {
	Market       string
	LastUpdateID int64
	Bids         []Level
	Asks         []Level
}

// Candle is one kline bar.
type Candle struct {
	OpenTime            time.Time
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

// FundingRate is one historical funding rate observation.
type FundingRate struct {
	Time   time.Time
	Market string
	Rate   decimal.Decimal
}

// BookFetcher retrieves depth snapshots.
type BookFetcher interface {
	FetchOrderBook(ctx context.Context, market string) (OrderBook, error)
}

// MarketLister enumerates tradable markets.
type MarketLister interface {
	ListMarkets(ctx context.Context) ([]string, error)
}

// CandleFetcher retrieves kline history for a closed time range.
type CandleFetcher interface {
	FetchCandles(ctx context.Context, market, resolution string, from, to time.Time) ([]Candle, error)
}

// FundingFetcher retrieves funding rate history for a closed time range.
type FundingFetcher interface {
	FetchFundingRates(ctx context.Context, market string, from, to time.Time) ([]FundingRate, error)
}
