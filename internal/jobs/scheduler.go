package jobs

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// PassRunner runs one full pipeline pass.
type PassRunner interface {
	RunPass(ctx context.Context) error
}

// Scheduler runs a pass when started and then once per interval until its
// context ends. Passes never overlap: a pass that outlasts the interval
// delays the next tick instead of stacking.
type Scheduler struct {
	runner   PassRunner
	interval time.Duration
	logger   *zerolog.Logger
	passes   int
}

func NewScheduler(runner PassRunner, interval time.Duration, logger *zerolog.Logger) *Scheduler {
	return &Scheduler{runner: runner, interval: interval, logger: logger}
}

// Start blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Msg("scheduler started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.pass(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info().Int("passes", s.passes).Msg("scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}

func (s *Scheduler) pass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	s.passes++
	start := time.Now()

	err := s.runner.RunPass(ctx)

	event := s.logger.Info()
	if err != nil {
		event = s.logger.Error().Err(err)
	}
	event.Int("pass", s.passes).Dur("duration", time.Since(start)).Msg("pipeline pass finished")
}

// Passes reports how many passes have started. It is only safe to call once
// Start has returned.
func (s *Scheduler) Passes() int {
	return s.passes
}
