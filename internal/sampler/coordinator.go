package sampler

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"orderbook-watcher/internal/storage"
)

// BookSampler samples one market for one tick.
type BookSampler interface {
	Sample(ctx context.Context, market string, target time.Time, withImbalance bool) (storage.BookSnapshot, *storage.ImbalanceSample, error)
}

// Coordinator fans one sample call per market out in parallel at each tick and
// joins before returning, so a tick costs roughly the slowest single fetch.
type Coordinator struct {
	sampler BookSampler
	markets []string
	logger  zerolog.Logger
}

// NewCoordinator constructs a Coordinator over a fixed market set.
func NewCoordinator(sampler BookSampler, markets []string, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		sampler: sampler,
		markets: markets,
		logger:  logger.With().Str("component", "coordinator").Logger(),
	}
}

type sampleResult struct {
	snapshot  storage.BookSnapshot
	imbalance *storage.ImbalanceSample
	err       error
}

// Collect samples every configured market concurrently for the given target.
// Each goroutine writes only its own result slot; no slot is shared. A failed
// market is logged and omitted from the batch; the next aligned tick is its
// retry mechanism.
func (c *Coordinator) Collect(ctx context.Context, target time.Time, withImbalance bool) storage.SampleBatch {
	results := make([]sampleResult, len(c.markets))

	var wg sync.WaitGroup
	for i, market := range c.markets {
		wg.Add(1)
		go func(slot int, market string) {
			defer wg.Done()
			snapshot, imbalance, err := c.sampler.Sample(ctx, market, target, withImbalance)
			results[slot] = sampleResult{snapshot: snapshot, imbalance: imbalance, err: err}
		}(i, market)
	}
	wg.Wait()

	batch := storage.SampleBatch{Target: target}
	for i, result := range results {
		if result.err != nil {
			c.logger.Error().Err(result.err).
				Str("market", c.markets[i]).
				Time("target", target).
				Msg("unable to sample market")
			continue
		}
		batch.Snapshots = append(batch.Snapshots, result.snapshot)
		if result.imbalance != nil {
			batch.Imbalances = append(batch.Imbalances, *result.imbalance)
		}
	}

	return batch
}
