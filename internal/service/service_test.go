package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"orderbook-watcher/internal/config"
	"orderbook-watcher/internal/exchange"
	"orderbook-watcher/internal/sampler"
	"orderbook-watcher/internal/storage"
)

func testConfig(markets []string, alternate bool) *config.Config {
	return &config.Config{
		Sampler: config.SamplerConfig{
			Interval: 10 * time.Second,
			Depth:    20,
			Markets:  markets,
			Imbalance: config.ImbalanceConfig{
				Enabled:   true,
				Alternate: alternate,
			},
		},
		Alerting: config.AlertingConfig{Cooldown: time.Minute},
	}
}

type memStore struct {
	mu             sync.Mutex
	snapshotTicks  [][]storage.BookSnapshot
	imbalanceTicks [][]storage.ImbalanceSample
	failSnapshots  bool
}

func (m *memStore) UpsertBookSnapshots(ctx context.Context, snapshots []storage.BookSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSnapshots {
		return errors.New("write refused")
	}
	m.snapshotTicks = append(m.snapshotTicks, snapshots)
	return nil
}

func (m *memStore) UpsertImbalanceSamples(ctx context.Context, samples []storage.ImbalanceSample) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.imbalanceTicks = append(m.imbalanceTicks, samples)
	return nil
}

type fixedLister struct {
	markets []string
	err     error
}

func (f *fixedLister) ListMarkets(ctx context.Context) ([]string, error) {
	return f.markets, f.err
}

// instantScheduler fires a fixed number of ticks back to back, then reports
// cancellation the way a stopped context would.
type instantScheduler struct {
	interval  time.Duration
	remaining int
}

func (s *instantScheduler) Next(now time.Time) time.Time {
	return now.Truncate(s.interval).Add(s.interval)
}

func (s *instantScheduler) Wait(ctx context.Context, target time.Time) error {
	if s.remaining == 0 {
		return context.Canceled
	}
	s.remaining--
	return nil
}

type mapFetcher struct {
	books map[string]exchange.OrderBook
	errs  map[string]error
}

func (f *mapFetcher) FetchOrderBook(ctx context.Context, market string) (exchange.OrderBook, error) {
	if err, ok := f.errs[market]; ok {
		return exchange.OrderBook{}, err
	}
	return f.books[market], nil
}

func lv(price, volume int64) exchange.Level {
	return exchange.Level{Price: decimal.NewFromInt(price), Volume: decimal.NewFromInt(volume)}
}

func newCollector(fetcher exchange.BookFetcher, markets []string) *sampler.Coordinator {
	return sampler.NewCoordinator(sampler.New(fetcher, 20, zerolog.Nop()), markets, zerolog.Nop())
}

func defaultBooks(markets ...string) map[string]exchange.OrderBook {
	books := make(map[string]exchange.OrderBook, len(markets))
	for _, market := range markets {
		books[market] = exchange.OrderBook{
			Market: market,
			Bids:   []exchange.Level{lv(100, 1)},
			Asks:   []exchange.Level{lv(110, 1)},
		}
	}
	return books
}

func TestRunRejectsUnknownMarket(t *testing.T) {
	markets := []string{"BTCUSDT", "DOGEMOON"}
	cfg := testConfig(markets, true)
	store := &memStore{}
	collector := newCollector(&mapFetcher{books: defaultBooks(markets...)}, markets)
	sched := &instantScheduler{interval: cfg.Sampler.Interval, remaining: 1}
	lister := &fixedLister{markets: []string{"BTCUSDT", "ETHUSDT"}}

	svc := New(cfg, sched, collector, lister, store, nil, zerolog.Nop())
	err := svc.Run(context.Background())
	if !errors.Is(err, ErrUnknownMarket) {
		t.Fatalf("expected ErrUnknownMarket, got %v", err)
	}
	if len(store.snapshotTicks) != 0 {
		t.Fatal("loop must not start with an invalid market set")
	}
}

func TestRunFailsWhenMarketListUnavailable(t *testing.T) {
	markets := []string{"BTCUSDT"}
	cfg := testConfig(markets, true)
	svc := New(cfg, &instantScheduler{interval: cfg.Sampler.Interval}, newCollector(&mapFetcher{}, markets), &fixedLister{err: errors.New("boom")}, &memStore{}, nil, zerolog.Nop())

	if err := svc.Run(context.Background()); err == nil {
		t.Fatal("expected a fatal error when the market list cannot be fetched")
	}
}

func TestImbalanceAlternation(t *testing.T) {
	markets := []string{"BTCUSDT"}
	cfg := testConfig(markets, true)
	store := &memStore{}
	collector := newCollector(&mapFetcher{books: defaultBooks(markets...)}, markets)
	sched := &instantScheduler{interval: cfg.Sampler.Interval, remaining: 4}
	lister := &fixedLister{markets: markets}

	svc := New(cfg, sched, collector, lister, store, nil, zerolog.Nop())
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(store.snapshotTicks) != 4 {
		t.Fatalf("want 4 snapshot ticks, got %d", len(store.snapshotTicks))
	}
	// Starting state saves: ticks 1 and 3 persist imbalance, 2 and 4 do not.
	if len(store.imbalanceTicks) != 2 {
		t.Fatalf("want 2 imbalance ticks with alternation on, got %d", len(store.imbalanceTicks))
	}
}

func TestImbalanceEveryTickWithoutAlternation(t *testing.T) {
	markets := []string{"BTCUSDT"}
	cfg := testConfig(markets, false)
	store := &memStore{}
	collector := newCollector(&mapFetcher{books: defaultBooks(markets...)}, markets)
	sched := &instantScheduler{interval: cfg.Sampler.Interval, remaining: 3}

	svc := New(cfg, sched, collector, &fixedLister{markets: markets}, store, nil, zerolog.Nop())
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("run failed: %v", err)
	}

	if len(store.imbalanceTicks) != 3 {
		t.Fatalf("want imbalance on every tick, got %d of 3", len(store.imbalanceTicks))
	}
}

func TestProcessTickPartialFailure(t *testing.T) {
	markets := []string{"M1", "M2"}
	cfg := testConfig(markets, true)
	store := &memStore{}

	fetcher := &mapFetcher{
		books: map[string]exchange.OrderBook{
			"M1": {
				Market: "M1",
				Bids:   []exchange.Level{lv(100, 1), lv(99, 2), lv(98, 3)},
				Asks:   []exchange.Level{lv(101, 1), lv(102, 2)},
			},
		},
		errs: map[string]error{"M2": errors.New("request timed out")},
	}
	collector := newCollector(fetcher, markets)

	svc := New(cfg, &instantScheduler{interval: cfg.Sampler.Interval}, collector, &fixedLister{markets: markets}, store, nil, zerolog.Nop())

	target := time.Unix(1000, 0).UTC()
	svc.ProcessTick(context.Background(), target, true)

	if len(store.snapshotTicks) != 1 {
		t.Fatalf("want 1 snapshot tick, got %d", len(store.snapshotTicks))
	}
	snapshots := store.snapshotTicks[0]
	if len(snapshots) != 1 || snapshots[0].Market != "M1" {
		t.Fatalf("only M1 should be persisted, got %+v", snapshots)
	}

	snapshot := snapshots[0]
	if !snapshot.Bucket.Equal(target) {
		t.Fatalf("snapshot stamped %v, want %v", snapshot.Bucket, target)
	}
	for i := 0; i < 3; i++ {
		if snapshot.BidPrices[i] == 0 {
			t.Fatalf("real bid level %d must be non-zero", i)
		}
	}
	for i := 3; i < 20; i++ {
		if snapshot.BidPrices[i] != 0 || snapshot.BidVolumes[i] != 0 {
			t.Fatalf("bid level %d must be zero filled", i)
		}
	}
	for i := 2; i < 20; i++ {
		if snapshot.AskPrices[i] != 0 || snapshot.AskVolumes[i] != 0 {
			t.Fatalf("ask level %d must be zero filled", i)
		}
	}

	if len(store.imbalanceTicks) != 1 || len(store.imbalanceTicks[0]) != 1 {
		t.Fatalf("imbalance should be persisted for M1 only: %+v", store.imbalanceTicks)
	}
	if store.imbalanceTicks[0][0].Market != "M1" {
		t.Fatalf("imbalance persisted for %s, want M1", store.imbalanceTicks[0][0].Market)
	}
}

func TestPersistFailureIsSoft(t *testing.T) {
	markets := []string{"BTCUSDT"}
	cfg := testConfig(markets, true)
	store := &memStore{failSnapshots: true}
	collector := newCollector(&mapFetcher{books: defaultBooks(markets...)}, markets)
	sched := &instantScheduler{interval: cfg.Sampler.Interval, remaining: 2}

	svc := New(cfg, sched, collector, &fixedLister{markets: markets}, store, nil, zerolog.Nop())
	if err := svc.Run(context.Background()); err != nil {
		t.Fatalf("persist failures must not terminate the loop: %v", err)
	}
}
