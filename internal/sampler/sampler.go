package sampler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"orderbook-watcher/internal/exchange"
	"orderbook-watcher/internal/storage"
)

// Sampler reduces one market's raw order book into a fixed-width snapshot row
// and, when requested, an order imbalance row.
type Sampler struct {
	fetcher exchange.BookFetcher
	depth   int
	logger  zerolog.Logger
}

// New constructs a Sampler storing depth levels per side.
func New(fetcher exchange.BookFetcher, depth int, logger zerolog.Logger) *Sampler {
	if depth <= 0 {
		depth = storage.BookDepth
	}
	return &Sampler{
		fetcher: fetcher,
		depth:   depth,
		logger:  logger.With().Str("component", "sampler").Logger(),
	}
}

// Sample fetches one order book snapshot for market and reduces it. Both rows
// are stamped with the aligned target, not the fetch instant. The imbalance is
// computed from the raw response before padding, over every level the exchange
// returned rather than only the stored width.
func (s *Sampler) Sample(ctx context.Context, market string, target time.Time, withImbalance bool) (storage.BookSnapshot, *storage.ImbalanceSample, error) {
	book, err := s.fetcher.FetchOrderBook(ctx, market)
	if err != nil {
		return storage.BookSnapshot{}, nil, err
	}

	var imbalance *storage.ImbalanceSample
	if withImbalance {
		imbalance = &storage.ImbalanceSample{
			Bucket:   target,
			Market:   market,
			BidValue: notionalValue(book.Bids),
			AskValue: notionalValue(book.Asks),
		}
	}

	return s.snapshot(book, market, target), imbalance, nil
}

// snapshot pads or caps the book to exactly depth levels per side. Levels are
// consumed in exchange order; missing levels stay (0, 0).
func (s *Sampler) snapshot(book exchange.OrderBook, market string, target time.Time) storage.BookSnapshot {
	row := storage.BookSnapshot{
		Bucket:     target,
		Market:     market,
		BidPrices:  make([]float64, s.depth),
		BidVolumes: make([]float64, s.depth),
		AskPrices:  make([]float64, s.depth),
		AskVolumes: make([]float64, s.depth),
	}

	for i := 0; i < s.depth && i < len(book.Bids); i++ {
		row.BidPrices[i] = book.Bids[i].Price.InexactFloat64()
		row.BidVolumes[i] = book.Bids[i].Volume.InexactFloat64()
	}
	for i := 0; i < s.depth && i < len(book.Asks); i++ {
		row.AskPrices[i] = book.Asks[i].Price.InexactFloat64()
		row.AskVolumes[i] = book.Asks[i].Volume.InexactFloat64()
	}

	return row
}

func notionalValue(levels []exchange.Level) decimal.Decimal {
	total := decimal.Zero
	for _, level := range levels {
		total = total.Add(level.Price.Mul(level.Volume))
	}
	return total
}
