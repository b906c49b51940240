package usecase

import (
	"context"
	"log/slog"
	"time"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
)

// RunnerFactory builds a fresh runner per run; writers are single-use.
type RunnerFactory func() (*Runner, error)

// Scheduler wires a periodic driver with the ingestion runner.
type Scheduler struct {
	driver    ports.Scheduler
	newRunner RunnerFactory
	logger    *slog.Logger
	onDone    func(domain.RunSummary, error)
}

// NewScheduler returns a helper to start/stop recurring runs.
func NewScheduler(driver ports.Scheduler, newRunner RunnerFactory, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, newRunner: newRunner, logger: logger}
}

// OnRunDone registers a callback invoked after every scheduled run.
func (s *Scheduler) OnRunDone(fn func(domain.RunSummary, error)) {
	s.onDone = fn
}

// Start registers the runner with the provided scheduler.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.newRunner == nil {
		return nil
	}

	job := func(ctx context.Context, trigger time.Time) {
		if ctx.Err() != nil {
			return
		}
		summary, err := s.runOnce(ctx)
		if s.onDone != nil {
			s.onDone(summary, err)
		}
		if s.logger == nil {
			return
		}
		if err != nil {
			s.logger.Error("scheduled run failed", "trigger", trigger, "run_id", summary.RunID, "error", err)
			return
		}
		s.logger.Info("scheduled run done", "trigger", trigger, "run_id", summary.RunID, "persisted", summary.Persisted)
	}

	return s.driver.Start(ctx, job)
}

func (s *Scheduler) runOnce(ctx context.Context) (domain.RunSummary, error) {
	runner, err := s.newRunner()
	if err != nil {
		return domain.RunSummary{}, err
	}
	return runner.Run(ctx)
}

// Stop gracefully tears down the underlying scheduler.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
