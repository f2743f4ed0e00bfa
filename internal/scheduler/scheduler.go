package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
)

// JobFunc is one schedulable unit of work.
type JobFunc func(ctx context.Context) error

// Scheduler drives cron-scheduled jobs until its context is cancelled.
type Scheduler struct {
	cron    *cron.Cron
	logger  zerolog.Logger
	baseCtx context.Context
}

// New constructs a scheduler. Schedules use six-field cron expressions
// (seconds included).
func New(logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(cron.WithSeconds()),
		logger: logger.With().Str("component", "scheduler").Logger(),
	}
}

// Add registers a named job on the given cron spec.
func (s *Scheduler) Add(name, spec string, job JobFunc) error {
	_, err := s.cron.AddFunc(spec, func() {
		ctx := s.baseCtx
		if ctx == nil {
			ctx = context.Background()
		}
		if ctx.Err() != nil {
			return
		}

		started := time.Now()
		s.logger.Info().Str("job", name).Msg("job started")
		if err := job(ctx); err != nil {
			s.logger.Error().Err(err).Str("job", name).Dur("elapsed", time.Since(started)).Msg("job failed")
			return
		}
		s.logger.Info().Str("job", name).Dur("elapsed", time.Since(started)).Msg("job finished")
	})
	if err != nil {
		return fmt.Errorf("schedule job %s: %w", name, err)
	}
	s.logger.Info().Str("job", name).Str("schedule", spec).Msg("job registered")
	return nil
}

// Run blocks until ctx is cancelled, then waits for in-flight jobs to drain.
func (s *Scheduler) Run(ctx context.Context) error {
	s.baseCtx = ctx
	s.cron.Start()
	<-ctx.Done()

	stopped := s.cron.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(30 * time.Second):
		s.logger.Warn().Msg("timed out waiting for running jobs to finish")
	}
	return ctx.Err()
}
