package exchange

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/adshao/go-binance/v2/futures"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// Binance accepts depth snapshot limits of 5, 10, 20, 50, 100, 500 or 1000.
// The full returned depth feeds the imbalance metric, so fetch well past the
// stored width.
const defaultFetchLimit = 500

// BinanceOptions parameterise the futures REST client.
type BinanceOptions struct {
	BaseURL    string
	APIKey     string
	APISecret  string
	Timeout    time.Duration
	UseTestnet bool
	FetchLimit int
}

// Binance wraps the go-binance USD-M futures client.
type Binance struct {
	client     *futures.Client
	fetchLimit int
	logger     zerolog.Logger
}

// NewBinance constructs a Binance exchange client.
func NewBinance(opts BinanceOptions, logger zerolog.Logger) *Binance {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	futures.UseTestnet = opts.UseTestnet

	client := futures.NewClient(opts.APIKey, opts.APISecret)
	client.HTTPClient = &http.Client{Timeout: timeout}
	if opts.BaseURL != "" {
		client.SetApiEndpoint(opts.BaseURL)
	}

	fetchLimit := opts.FetchLimit
	if fetchLimit <= 0 {
		fetchLimit = defaultFetchLimit
	}

	return &Binance{
		client:     client,
		fetchLimit: fetchLimit,
		logger:     logger.With().Str("component", "binance").Logger(),
	}
}

// FetchOrderBook retrieves one depth snapshot for a market.
func (b *Binance) FetchOrderBook(ctx context.Context, market string) (OrderBook, error) {
	res, err := b.client.NewDepthService().
		Symbol(market).
		Limit(b.fetchLimit).
		Do(ctx)
	if err != nil {
		return OrderBook{}, fmt.Errorf("fetch order book %s: %w", market, err)
	}

	book := OrderBook{
		Market:       market,
		LastUpdateID: res.LastUpdateID,
		Bids:         make([]Level, 0, len(res.Bids)),
		Asks:         make([]Level, 0, len(res.Asks)),
	}

	for _, bid := range res.Bids {
		level, err := parseLevel(bid.Price, bid.Quantity)
		if err != nil {
			return OrderBook{}, fmt.Errorf("parse bid level %s: %w", market, err)
		}
		book.Bids = append(book.Bids, level)
	}
	for _, ask := range res.Asks {
		level, err := parseLevel(ask.Price, ask.Quantity)
		if err != nil {
			return OrderBook{}, fmt.Errorf("parse ask level %s: %w", market, err)
		}
		book.Asks = append(book.Asks, level)
	}

	return book, nil
}

// ListMarkets returns every symbol known to the exchange.
func (b *Binance) ListMarkets(ctx context.Context) ([]string, error) {
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch exchange info: %w", err)
	}

	markets := make([]string, 0, len(info.Symbols))
	for _, symbol := range info.Symbols {
		markets = append(markets, symbol.Symbol)
	}
	return markets, nil
}

// FetchCandles retrieves klines for a market and resolution within [from, to].
func (b *Binance) FetchCandles(ctx context.Context, market, resolution string, from, to time.Time) ([]Candle, error) {
	klines, err := b.client.NewKlinesService().
		Symbol(market).
		Interval(resolution).
		StartTime(from.UnixMilli()).
		EndTime(to.UnixMilli()).
		Limit(1500).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch candles %s %s: %w", market, resolution, err)
	}

	candles := make([]Candle, 0, len(klines))
	for _, k := range klines {
		candle, err := convertKline(market, resolution, k)
		if err != nil {
			return nil, fmt.Errorf("parse candle %s %s: %w", market, resolution, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// FetchFundingRates retrieves funding rate history for a market within [from, to].
func (b *Binance) FetchFundingRates(ctx context.Context, market string, from, to time.Time) ([]FundingRate, error) {
	rows, err := b.client.NewFundingRateService().
		Symbol(market).
		StartTime(from.UnixMilli()).
		EndTime(to.UnixMilli()).
		Limit(1000).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch funding rates %s: %w", market, err)
	}

	rates := make([]FundingRate, 0, len(rows))
	for _, row := range rows {
		rate, err := decimal.NewFromString(row.FundingRate)
		if err != nil {
			return nil, fmt.Errorf("parse funding rate %s: %w", market, err)
		}
		rates = append(rates, FundingRate{
			Time:   time.UnixMilli(row.FundingTime).UTC(),
			Market: row.Symbol,
			Rate:   rate,
		})
	}
	return rates, nil
}

func parseLevel(price, volume string) (Level, error) {
	p, err := decimal.NewFromString(price)
	if err != nil {
		return Level{}, err
	}
	v, err := decimal.NewFromString(volume)
	if err != nil {
		return Level{}, err
	}
	return Level{Price: p, Volume: v}, nil
}

func convertKline(market, resolution string, k *futures.Kline) (Candle, error) {
	open, err := decimal.NewFromString(k.Open)
	if err != nil {
		return Candle{}, err
	}
	high, err := decimal.NewFromString(k.High)
	if err != nil {
		return Candle{}, err
	}
	low, err := decimal.NewFromString(k.Low)
	if err != nil {
		return Candle{}, err
	}
	closePrice, err := decimal.NewFromString(k.Close)
	if err != nil {
		return Candle{}, err
	}
	volume, err := decimal.NewFromString(k.Volume)
	if err != nil {
		return Candle{}, err
	}
	quoteVolume, err := decimal.NewFromString(k.QuoteAssetVolume)
	if err != nil {
		return Candle{}, err
	}
	takerBuy, err := decimal.NewFromString(k.TakerBuyBaseAssetVolume)
	if err != nil {
		return Candle{}, err
	}
	takerBuyQuote, err := decimal.NewFromString(k.TakerBuyQuoteAssetVolume)
	if err != nil {
		return Candle{}, err
	}

	return Candle{
		OpenTime:            time.UnixMilli(k.OpenTime).UTC(),
		Market:              market,
		Resolution:          resolution,
		Open:                open,
		High:                high,
		Low:                 low,
		Close:               closePrice,
		Volume:              volume,
		QuoteVolume:         quoteVolume,
		TradeCount:          k.TradeNum,
		TakerBuyVolume:      takerBuy,
		TakerBuyQuoteVolume: takerBuyQuote,
	}, nil
}

var (
	_ BookFetcher    = (*Binance)(nil)
	_ MarketLister   = (*Binance)(nil)
	_ CandleFetcher  = (*Binance)(nil)
	_ FundingFetcher = (*Binance)(nil)
)
