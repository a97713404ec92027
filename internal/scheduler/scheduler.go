package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Aligner computes sampling instants locked to the Unix-epoch grid: every
// target's epoch seconds are an exact multiple of the interval, independent
// of process start time.
type Aligner struct {
	interval time.Duration
}

// NewAligner constructs an Aligner for a whole-second cadence. Sub-second or
// fractional intervals cannot land on the epoch-second grid and are rejected.
func NewAligner(interval time.Duration) Aligner {
	if interval < time.Second || interval%time.Second != 0 {
		panic("aligner interval must be a positive whole number of seconds")
	}
	return Aligner{interval: interval}
}

// Interval returns the cadence of the grid.
func (a Aligner) Interval() time.Duration {
	return a.interval
}

// Next returns the smallest grid instant strictly after now. A now that lands
// exactly on the grid still advances to the following instant, so a target
// never fires twice.
func (a Aligner) Next(now time.Time) time.Time {
	step := int64(a.interval / time.Second)
	sec := now.Unix()
	return time.Unix(sec-sec%step+step, 0).UTC()
}

// Options tune scheduler behaviour.
type Options struct {
	Interval time.Duration
	// PollEvery bounds how often the armed wait rechecks the clock and the
	// cancellation signal. Defaults to 100ms.
	PollEvery time.Duration
}

// Scheduler owns the armed wait between ticks.
type Scheduler struct {
	aligner   Aligner
	pollEvery time.Duration
	logger    zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	pollEvery := opts.PollEvery
	if pollEvery <= 0 {
		pollEvery = 100 * time.Millisecond
	}
	return &Scheduler{
		aligner:   NewAligner(opts.Interval),
		pollEvery: pollEvery,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Next returns the first grid instant strictly after now.
func (s *Scheduler) Next(now time.Time) time.Time {
	return s.aligner.Next(now)
}

// Wait blocks until the wall clock reaches target or ctx is cancelled. The
// wait is a coarse sleep-and-recheck rather than a single timer, so
// cancellation is observed promptly and a target already in the past returns
// immediately (a slow tick is never queued, only discovered late).
func (s *Scheduler) Wait(ctx context.Context, target time.Time) error {
	if !time.Now().Before(target) {
		return ctx.Err()
	}

	s.logger.Debug().Time("target", target).Msg("waiting for next target")

	ticker := time.NewTicker(s.pollEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if !time.Now().Before(target) {
				return nil
			}
		}
	}
}
