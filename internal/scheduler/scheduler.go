// Package scheduler drives the periodic collection loop. Ticks align to the
// interval boundary so an hourly job fires just after the market publishes a
// new settlement hour.
package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Job runs once per tick. The tick argument is the interval boundary that
// triggered the run.
type Job func(ctx context.Context, tick time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	Align        bool
	StartupDelay time.Duration
}

// Scheduler invokes a collection job on a fixed cadence.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking job once per interval until ctx is cancelled. Job
// errors are logged and the loop continues; a failed collection retries
// naturally on the next tick.
func (s *Scheduler) Run(ctx context.Context, job Job) error {
	if err := s.sleep(ctx, s.opts.StartupDelay); err != nil {
		return err
	}

	for {
		tick := s.next(time.Now().UTC())
		s.logger.Debug().Time("tick", tick).Msg("waiting for next tick")
		if err := s.sleep(ctx, time.Until(tick)); err != nil {
			return err
		}

		s.logger.Info().Time("tick", tick).Msg("executing collection tick")
		if err := job(ctx, tick); err != nil {
			s.logger.Error().Err(err).Time("tick", tick).Msg("collection tick failed")
		}
	}
}

func (s *Scheduler) next(now time.Time) time.Time {
	if !s.opts.Align {
		return now.Add(s.opts.Interval)
	}
	return now.Truncate(s.opts.Interval).Add(s.opts.Interval)
}

func (s *Scheduler) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
