package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"orderbook-watcher/internal/alerting"
	"orderbook-watcher/internal/config"
	"orderbook-watcher/internal/exchange"
	"orderbook-watcher/internal/storage"
)

// ErrUnknownMarket marks a configured market the exchange does not list.
// It is fatal: the loop never starts against an invalid market set.
var ErrUnknownMarket = errors.New("unknown market")

// TickScheduler owns target computation and the armed wait between ticks.
type TickScheduler interface {
	Next(now time.Time) time.Time
	Wait(ctx context.Context, target time.Time) error
}

// BatchCollector produces the sample batch for one tick.
type BatchCollector interface {
	Collect(ctx context.Context, target time.Time, withImbalance bool) storage.SampleBatch
}

// scheduleState is owned exclusively by Run and mutated only between ticks,
// never concurrently with the fan-out phase.
type scheduleState struct {
	target        time.Time
	nextTarget    time.Time
	saveImbalance bool
}

// Service drives the sampling loop: wait for an aligned target, fan out one
// fetch per market, persist the batch, repeat until cancelled.
type Service struct {
	scheduler TickScheduler
	collector BatchCollector
	lister    exchange.MarketLister
	store     storage.SampleStore
	notifier  alerting.Notifier
	logger    zerolog.Logger

	markets          []string
	imbalanceEnabled bool
	alternate        bool
	startupDelay     time.Duration
	alertCooldown    time.Duration
	lastAlert        time.Time

	locker  storage.AdvisoryLocker
	lockKey int64
}

// New constructs the sampling service.
func New(cfg *config.Config, sched TickScheduler, collector BatchCollector, lister exchange.MarketLister, store storage.SampleStore, notifier alerting.Notifier, logger zerolog.Logger) *Service {
	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Service{
		scheduler:        sched,
		collector:        collector,
		lister:           lister,
		store:            store,
		notifier:         notifier,
		logger:           logger.With().Str("component", "service").Logger(),
		markets:          cfg.Sampler.Markets,
		imbalanceEnabled: cfg.Sampler.Imbalance.Enabled,
		alternate:        cfg.Sampler.Imbalance.Alternate,
		startupDelay:     cfg.Sampler.StartupDelay,
		alertCooldown:    cfg.Alerting.Cooldown,
		locker:           locker,
		lockKey:          cfg.Sampler.AdvisoryLockKey,
	}
}

// Run validates configuration, syncs to the first aligned target, then loops
// until ctx is cancelled. Cancellation is observed only during the armed wait,
// so an in-flight tick always finishes persisting before Run returns.
func (s *Service) Run(ctx context.Context) error {
	if s.scheduler == nil {
		return fmt.Errorf("scheduler not configured")
	}

	if err := s.validateMarkets(ctx); err != nil {
		return err
	}
	s.logger.Info().Strs("markets", s.markets).Msg("all markets are valid")

	unlock, proceed, err := s.acquireLock(ctx)
	if err != nil {
		return err
	}
	if !proceed {
		return fmt.Errorf("sampling lock held by another instance")
	}
	if unlock != nil {
		defer unlock()
	}

	if s.startupDelay > 0 {
		timer := time.NewTimer(s.startupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}

	state := scheduleState{saveImbalance: true}
	state.target = s.scheduler.Next(time.Now())
	s.logger.Info().Time("target", state.target).Msg("syncing to first target")

	for {
		if err := s.scheduler.Wait(ctx, state.target); err != nil {
			s.logger.Info().Msg("stop signal received; loop ended")
			return nil
		}

		// The successor is computed before any fetch work so slow ticks
		// shrink the next wait window instead of shifting the grid.
		state.nextTarget = s.scheduler.Next(time.Now())

		withImbalance := s.imbalanceEnabled && state.saveImbalance
		s.ProcessTick(ctx, state.target, withImbalance)

		if s.alternate {
			state.saveImbalance = !state.saveImbalance
		}
		state.target = state.nextTarget
	}
}

// ProcessTick samples every market for one aligned target and persists the
// batch. Fetch and persist failures are soft: they are logged (and alerted,
// with cooldown) and the loop moves on to the next tick.
func (s *Service) ProcessTick(ctx context.Context, target time.Time, withImbalance bool) {
	fetchStart := time.Now()
	batch := s.collector.Collect(ctx, target, withImbalance)
	s.logger.Info().
		Time("target", target).
		Int("markets", len(batch.Snapshots)).
		Dur("fetch", time.Since(fetchStart)).
		Msg("tick sampled")

	if len(batch.Snapshots) == 0 {
		s.alert(target, "no market produced a snapshot this tick")
		return
	}

	saveStart := time.Now()
	if err := s.store.UpsertBookSnapshots(ctx, batch.Snapshots); err != nil {
		s.logger.Error().Err(err).Time("target", target).Msg("unable to save order book data")
		s.alert(target, fmt.Sprintf("order book persist failed: %v", err))
	}

	if withImbalance && len(batch.Imbalances) > 0 {
		if err := s.store.UpsertImbalanceSamples(ctx, batch.Imbalances); err != nil {
			s.logger.Error().Err(err).Time("target", target).Msg("unable to save order imbalance data")
			s.alert(target, fmt.Sprintf("order imbalance persist failed: %v", err))
		}
	}

	s.logger.Info().
		Time("target", target).
		Dur("save", time.Since(saveStart)).
		Msg("tick persisted")
}

func (s *Service) validateMarkets(ctx context.Context) error {
	if s.lister == nil {
		return fmt.Errorf("market lister not configured")
	}

	listed, err := s.lister.ListMarkets(ctx)
	if err != nil {
		return fmt.Errorf("list exchange markets: %w", err)
	}

	known := make(map[string]struct{}, len(listed))
	for _, market := range listed {
		known[market] = struct{}{}
	}

	for _, market := range s.markets {
		if _, ok := known[market]; !ok {
			return fmt.Errorf("%w: %s", ErrUnknownMarket, market)
		}
	}
	return nil
}

func (s *Service) acquireLock(ctx context.Context) (func(), bool, error) {
	if s.lockKey == 0 || s.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := s.locker.TryAdvisoryLock(ctx, s.lockKey)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}

func (s *Service) alert(target time.Time, reason string) {
	if s.notifier == nil {
		return
	}
	if s.alertCooldown > 0 && time.Since(s.lastAlert) < s.alertCooldown {
		return
	}
	s.lastAlert = time.Now()

	note := alerting.Notification{Target: target, Reason: reason}
	if err := s.notifier.Notify(context.Background(), note); err != nil {
		s.logger.Error().Err(err).Time("target", target).Msg("failed to dispatch alert")
	}
}
