package usecase

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"VeilleScanner/internal/ports"
)

// Scheduler wires the cron driver with the pipeline use case.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger

	// running prevents overlapping runs when a cycle outlasts the interval.
	running sync.Mutex
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logger}
}

// Start registers the pipeline with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	return s.driver.Start(ctx, func(trigger time.Time) {
		s.trigger(ctx, trigger)
	})
}

func (s *Scheduler) trigger(ctx context.Context, at time.Time) {
	if !s.running.TryLock() {
		if s.logger != nil {
			s.logger.Warn("previous run still in progress, skipping trigger", "trigger", at)
		}
		return
	}
	defer s.running.Unlock()

	result, err := s.pipeline.Run(ctx)
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.Error("scheduled run failed", "trigger", at, "run_id", result.RunID, "error", err)
		return
	}
	s.logger.Info("scheduled run done", "trigger", at, "run_id", result.RunID, "collected", result.Collected)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
