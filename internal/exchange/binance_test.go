package exchange

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestBinance(t *testing.T, handler http.Handler) *Binance {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewBinance(BinanceOptions{
		BaseURL: srv.URL,
		Timeout: 2 * time.Second,
	}, zerolog.Nop())
}

func TestFetchOrderBook(t *testing.T) {
	var gotSymbol, gotLimit string
	client := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/depth" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		gotSymbol = r.URL.Query().Get("symbol")
		gotLimit = r.URL.Query().Get("limit")

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{
            "lastUpdateId": 160,
            "E": 1000000,
            "T": 1000000,
            "bids": [["100.5","1.2"],["100.4","0.8"]],
            "asks": [["100.6","2.5"]]
        }`))
	}))

	book, err := client.FetchOrderBook(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}

	if gotSymbol != "BTCUSDT" {
		t.Fatalf("requested symbol %q, want BTCUSDT", gotSymbol)
	}
	if gotLimit != "500" {
		t.Fatalf("requested limit %q, want 500", gotLimit)
	}

	if book.Market != "BTCUSDT" || book.LastUpdateID != 160 {
		t.Fatalf("unexpected book header: %+v", book)
	}
	if len(book.Bids) != 2 || len(book.Asks) != 1 {
		t.Fatalf("want 2 bids / 1 ask, got %d / %d", len(book.Bids), len(book.Asks))
	}
	if book.Bids[0].Price.String() != "100.5" || book.Bids[0].Volume.String() != "1.2" {
		t.Fatalf("best bid parsed as %+v", book.Bids[0])
	}
	if book.Asks[0].Price.String() != "100.6" {
		t.Fatalf("best ask parsed as %+v", book.Asks[0])
	}
}

func TestFetchOrderBookCustomLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("limit"); got != "50" {
			t.Errorf("requested limit %q, want 50", got)
		}
		w.Write([]byte(`{"lastUpdateId":1,"bids":[],"asks":[]}`))
	}))
	defer srv.Close()

	client := NewBinance(BinanceOptions{BaseURL: srv.URL, FetchLimit: 50}, zerolog.Nop())
	if _, err := client.FetchOrderBook(context.Background(), "ETHUSDT"); err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
}

func TestFetchOrderBookRejectsBadLevel(t *testing.T) {
	client := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"lastUpdateId":1,"bids":[["not-a-price","1"]],"asks":[]}`))
	}))

	if _, err := client.FetchOrderBook(context.Background(), "BTCUSDT"); err == nil {
		t.Fatal("expected an error for an unparseable price level")
	}
}

func TestListMarkets(t *testing.T) {
	client := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/exchangeInfo" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`{"symbols":[{"symbol":"BTCUSDT"},{"symbol":"ETHUSDT"}]}`))
	}))

	markets, err := client.ListMarkets(context.Background())
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if len(markets) != 2 || markets[0] != "BTCUSDT" || markets[1] != "ETHUSDT" {
		t.Fatalf("unexpected market list %v", markets)
	}
}

func TestFetchCandles(t *testing.T) {
	client := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/klines" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("interval"); got != "1m" {
			t.Errorf("requested interval %q, want 1m", got)
		}
		w.Write([]byte(`[
            [1700000000000,"100","105","99","103","12.5",1700000059999,"1287.5",42,"7.5","772.5","0"]
        ]`))
	}))

	from := time.UnixMilli(1700000000000)
	to := from.Add(time.Minute)
	candles, err := client.FetchCandles(context.Background(), "BTCUSDT", "1m", from, to)
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(candles) != 1 {
		t.Fatalf("want 1 candle, got %d", len(candles))
	}

	candle := candles[0]
	if !candle.OpenTime.Equal(from.UTC()) {
		t.Fatalf("open time %v, want %v", candle.OpenTime, from.UTC())
	}
	if candle.Market != "BTCUSDT" || candle.Resolution != "1m" {
		t.Fatalf("unexpected candle identity: %+v", candle)
	}
	if candle.Open.String() != "100" || candle.Close.String() != "103" {
		t.Fatalf("unexpected OHLC: %+v", candle)
	}
	if candle.TradeCount != 42 {
		t.Fatalf("trade count %d, want 42", candle.TradeCount)
	}
	if candle.TakerBuyQuoteVolume.String() != "772.5" {
		t.Fatalf("taker buy quote volume %s, want 772.5", candle.TakerBuyQuoteVolume)
	}
}

func TestFetchFundingRates(t *testing.T) {
	client := newTestBinance(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/fapi/v1/fundingRate" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Write([]byte(`[
            {"symbol":"BTCUSDT","fundingTime":1700000000000,"fundingRate":"0.0001"},
            {"symbol":"BTCUSDT","fundingTime":1700028800000,"fundingRate":"-0.0002"}
        ]`))
	}))

	from := time.UnixMilli(1700000000000)
	rates, err := client.FetchFundingRates(context.Background(), "BTCUSDT", from, from.Add(9*time.Hour))
	if err != nil {
		t.Fatalf("fetch failed: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("want 2 rates, got %d", len(rates))
	}
	if rates[0].Rate.String() != "0.0001" || rates[1].Rate.String() != "-0.0002" {
		t.Fatalf("unexpected rates: %+v", rates)
	}
	if !rates[0].Time.Equal(from.UTC()) {
		t.Fatalf("funding time %v, want %v", rates[0].Time, from.UTC())
	}
}
