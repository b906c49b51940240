package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
	"GameHarvester/internal/retry"
)

const defaultWorkers = 8

// ItemProcessor turns one id into a terminal outcome.
type ItemProcessor interface {
	Process(ctx context.Context, id domain.ItemID) domain.Outcome
}

// OutcomeObserver sees every terminal outcome (metrics).
type OutcomeObserver interface {
	ObserveOutcome(outcome domain.Outcome)
}

// RunnerConfig holds the knobs of a single ingestion run.
type RunnerConfig struct {
	Workers       int
	Delay         time.Duration
	Limit         int
	ProgressEvery int
	SourceRetry   retry.Policy
}

// RunnerDeps wires collaborators into the runner. Manifests, Notifier and
// Observer are optional.
type RunnerDeps struct {
	Source        ports.IDSource
	Processor     ItemProcessor
	Writer        Writer
	Manifests     ports.ManifestStore
	Notifier      ports.Notifier
	ProgressSinks []ports.ProgressSink
	Observer      OutcomeObserver
	Logger        *slog.Logger
	Now           func() time.Time
	NewRunID      func() string
}

// Runner drives one ingestion run: enumerate ids, fan them out to a bounded
// worker pool, hand persisted records to the writer, and report.
type Runner struct {
	cfg  RunnerConfig
	deps RunnerDeps
}

// NewRunner validates deps and applies defaults.
func NewRunner(cfg RunnerConfig, deps RunnerDeps) (*Runner, error) {
	if deps.Source == nil {
		return nil, errors.New("runner: id source is required")
	}
	if deps.Processor == nil {
		return nil, errors.New("runner: item processor is required")
	}
	if deps.Writer == nil {
		return nil, errors.New("runner: writer is required")
	}
	if cfg.Workers <= 0 {
		cfg.Workers = defaultWorkers
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.NewRunID == nil {
		deps.NewRunID = func() string { return deps.Now().UTC().Format("20060102T150405") }
	}
	if deps.Logger == nil {
		deps.Logger = slog.New(slog.DiscardHandler)
	}
	return &Runner{cfg: cfg, deps: deps}, nil
}

// Run executes one run. Cancelling ctx stops drawing new ids; items already
// in flight finish and the final flush still happens. The returned error is
// non-nil only for fatal conditions (source or storage unavailable); the
// summary is always populated.
func (r *Runner) Run(ctx context.Context) (domain.RunSummary, error) {
	runID := r.deps.NewRunID()
	logger := r.deps.Logger.With("run_id", runID)
	report := NewRunReport(runID, r.deps.Now())

	logger.Info("run started", "source", r.deps.Source.Name(), "workers", r.cfg.Workers, "limit", r.cfg.Limit)

	ids, err := retry.Do(ctx, r.cfg.SourceRetry, func(ctx context.Context) ([]domain.ItemID, error) {
		return r.deps.Source.Enumerate(ctx, r.cfg.Limit)
	})
	if err != nil {
		fatal := fmt.Errorf("enumerate %s: %w: %w", r.deps.Source.Name(), domain.ErrSourceUnavailable, err)
		summary := report.Summary(r.deps.Now())
		summary.FatalError = fatal.Error()
		logger.Error("run aborted", "error", fatal)
		return summary, fatal
	}
	report.SetPending(ids)
	logger.Info("ids enumerated", "count", len(ids))

	monitor := NewProgressMonitor(runID, len(ids), r.cfg.ProgressEvery, r.deps.ProgressSinks...)

	workCtx := context.WithoutCancel(ctx)
	group, groupCtx := errgroup.WithContext(workCtx)
	group.SetLimit(r.cfg.Workers)

	var interrupted atomic.Bool
	for _, id := range ids {
		if ctx.Err() != nil {
			interrupted.Store(true)
			break
		}
		if groupCtx.Err() != nil {
			break
		}

		group.Go(func() error {
			if ctx.Err() != nil {
				interrupted.Store(true)
				return nil
			}
			if groupCtx.Err() != nil {
				return nil
			}

			outcome, fatal := r.processItem(groupCtx, id)
			report.Record(outcome)
			monitor.OnItemProcessed(outcome)
			if r.deps.Observer != nil {
				r.deps.Observer.ObserveOutcome(outcome)
			}
			if fatal != nil {
				return fatal
			}

			r.pause(ctx, groupCtx)
			return nil
		})
	}

	fatal := group.Wait()
	if closeErr := r.deps.Writer.Close(workCtx); fatal == nil {
		fatal = closeErr
	}
	report.MarkLost(r.deps.Writer.Lost(), fatal)
	monitor.Close()

	finished := r.deps.Now()
	summary := report.Summary(finished)
	summary.Writer = r.deps.Writer.Stats()
	summary.Interrupted = interrupted.Load()
	if fatal != nil {
		summary.FatalError = fatal.Error()
	}

	if r.deps.Manifests != nil {
		key, mErr := r.deps.Manifests.Write(workCtx, report.Manifest(finished))
		if mErr != nil {
			logger.Error("write failure manifest", "error", mErr)
		} else {
			summary.ManifestKey = key
		}
	}

	r.logSummary(logger, summary)

	if r.deps.Notifier != nil {
		if nErr := r.deps.Notifier.PublishSummary(workCtx, summary); nErr != nil {
			logger.Warn("publish summary", "error", nErr)
		}
	}

	return summary, fatal
}

// processItem runs the pipeline and hands a persisted record to the writer.
// Per-record write failures are folded into the outcome; only a fatal
// storage error is returned.
func (r *Runner) processItem(ctx context.Context, id domain.ItemID) (domain.Outcome, error) {
	outcome := r.deps.Processor.Process(ctx, id)
	persisted, ok := outcome.(domain.Persisted)
	if !ok {
		return outcome, nil
	}

	err := r.deps.Writer.Submit(ctx, persisted.Record)
	if err == nil {
		return outcome, nil
	}

	var itemErr *ItemWriteError
	if errors.As(err, &itemErr) {
		return domain.Failed{Failure: domain.Failure{
			ItemID:   id,
			Kind:     domain.KindStorageUnavailable,
			Detail:   itemErr.Error(),
			Attempts: itemErr.Attempts,
			Stage:    domain.StageStorage,
		}}, nil
	}
	return outcome, err
}

func (r *Runner) pause(signal, group context.Context) {
	if r.cfg.Delay <= 0 {
		return
	}
	timer := time.NewTimer(r.cfg.Delay)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-signal.Done():
	case <-group.Done():
	}
}

func (r *Runner) logSummary(logger *slog.Logger, s domain.RunSummary) {
	level := slog.LevelInfo
	if s.FatalError != "" {
		level = slog.LevelError
	}
	logger.Log(context.Background(), level, "run finished",
		"enumerated", s.Enumerated,
		"processed", s.Processed,
		"persisted", s.Persisted,
		"filtered", s.Filtered,
		"failed", s.Failed,
		"success_rate", fmt.Sprintf("%.2f%%", s.SuccessRate*100),
		"batches", s.Writer.Batches,
		"records_written", s.Writer.RecordsWritten,
		"records_lost", s.Writer.RecordsLost,
		"interrupted", s.Interrupted,
		"not_started", s.NotStarted,
		"manifest", s.ManifestKey,
		"elapsed", s.Elapsed.Round(time.Millisecond),
	)
	for kind, n := range s.FailedBy {
		logger.Info("failures by kind", "kind", kind, "count", n)
	}
}
