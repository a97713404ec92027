package sampler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"orderbook-watcher/internal/exchange"
)

func booksFor(markets ...string) map[string]exchange.OrderBook {
	books := make(map[string]exchange.OrderBook, len(markets))
	for _, market := range markets {
		books[market] = exchange.OrderBook{
			Market: market,
			Bids:   []exchange.Level{level(100, 1)},
			Asks:   []exchange.Level{level(110, 1)},
		}
	}
	return books
}

func TestCollectAllMarkets(t *testing.T) {
	markets := []string{"M1", "M2", "M3"}
	fetcher := &stubFetcher{books: booksFor(markets...)}

	c := NewCoordinator(New(fetcher, 20, zerolog.Nop()), markets, zerolog.Nop())
	batch := c.Collect(context.Background(), time.Unix(1000, 0), true)

	if len(batch.Snapshots) != 3 {
		t.Fatalf("want 3 snapshots, got %d", len(batch.Snapshots))
	}
	if len(batch.Imbalances) != 3 {
		t.Fatalf("want 3 imbalance samples, got %d", len(batch.Imbalances))
	}
}

func TestCollectPartialFailureIsolation(t *testing.T) {
	markets := []string{"A", "B", "C"}
	fetcher := &stubFetcher{
		books: booksFor("A", "C"),
		errs:  map[string]error{"B": errors.New("timeout")},
	}

	c := NewCoordinator(New(fetcher, 20, zerolog.Nop()), markets, zerolog.Nop())
	batch := c.Collect(context.Background(), time.Unix(1000, 0), true)

	if len(batch.Snapshots) != 2 {
		t.Fatalf("want 2 snapshots, got %d", len(batch.Snapshots))
	}
	got := map[string]bool{}
	for _, snapshot := range batch.Snapshots {
		got[snapshot.Market] = true
	}
	if !got["A"] || !got["C"] || got["B"] {
		t.Fatalf("wrong markets in batch: %v", got)
	}
}

func TestCollectWithoutImbalance(t *testing.T) {
	markets := []string{"M1", "M2"}
	fetcher := &stubFetcher{books: booksFor(markets...)}

	c := NewCoordinator(New(fetcher, 20, zerolog.Nop()), markets, zerolog.Nop())
	batch := c.Collect(context.Background(), time.Unix(1000, 0), false)

	if len(batch.Snapshots) != 2 {
		t.Fatalf("want 2 snapshots, got %d", len(batch.Snapshots))
	}
	if len(batch.Imbalances) != 0 {
		t.Fatalf("imbalance rows on a non-imbalance tick: %d", len(batch.Imbalances))
	}
}

func TestCollectSlotIsolation(t *testing.T) {
	// Many concurrent markets; every slot must carry its own market's
	// snapshot exactly once.
	markets := make([]string, 64)
	for i := range markets {
		markets[i] = fmt.Sprintf("MKT%02d", i)
	}
	fetcher := &stubFetcher{books: booksFor(markets...)}

	c := NewCoordinator(New(fetcher, 20, zerolog.Nop()), markets, zerolog.Nop())
	batch := c.Collect(context.Background(), time.Unix(1000, 0), false)

	if len(batch.Snapshots) != len(markets) {
		t.Fatalf("want %d snapshots, got %d", len(markets), len(batch.Snapshots))
	}
	seen := map[string]int{}
	for _, snapshot := range batch.Snapshots {
		seen[snapshot.Market]++
	}
	for _, market := range markets {
		if seen[market] != 1 {
			t.Fatalf("market %s appears %d times", market, seen[market])
		}
	}
}
