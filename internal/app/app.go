package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"GameHarvester/internal/config"
	"GameHarvester/internal/domain"
	"GameHarvester/internal/idsource"
	"GameHarvester/internal/infrastructure/manifest"
	"GameHarvester/internal/infrastructure/metrics"
	"GameHarvester/internal/infrastructure/parser"
	"GameHarvester/internal/infrastructure/runlock"
	"GameHarvester/internal/infrastructure/scheduler"
	"GameHarvester/internal/infrastructure/steamapi"
	"GameHarvester/internal/infrastructure/storage"
	"GameHarvester/internal/infrastructure/telegram"
	"GameHarvester/internal/infrastructure/throttle"
	"GameHarvester/internal/logging"
	"GameHarvester/internal/ports"
	"GameHarvester/internal/retry"
	"GameHarvester/internal/usecase"
)

const resumeLatest = "latest"

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg       config.Config
	logger    *slog.Logger
	repo      *storage.SQLRepository
	manifests *manifest.BlobStore
	metrics   *metrics.Metrics
	client    *http.Client
	registry  *idsource.Registry
	notifier  ports.Notifier
}

// New opens storage and the manifest bucket and registers the id sources.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	repo, err := storage.Open(ctx, cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, err
	}

	manifests, err := openManifests(ctx, cfg.Manifest)
	if err != nil {
		_ = repo.Close()
		return nil, err
	}

	a := &Application{
		cfg:       cfg,
		logger:    baseLogger,
		repo:      repo,
		manifests: manifests,
		metrics:   metrics.New(),
		client:    throttle.NewClient(cfg.Ingest.RequestTimeout, cfg.Steam.RequestsPerSecond, cfg.Steam.Burst),
	}

	if tg := cfg.Notifications.Telegram; tg.Enabled() {
		a.notifier = telegram.NewNotifier(tg.BotToken, tg.ChatID).WithBaseURL(tg.APIURL)
	}

	if err := a.registerSources(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func openManifests(ctx context.Context, cfg config.ManifestConfig) (*manifest.BlobStore, error) {
	if cfg.BucketURL != "" {
		return manifest.Open(ctx, cfg.BucketURL, cfg.Prefix, cfg.Compress)
	}
	return manifest.OpenDir(cfg.Dir, cfg.Prefix, cfg.Compress)
}

func (a *Application) registerSources(ctx context.Context) error {
	a.registry = idsource.NewRegistry()
	a.registry.Register(steamapi.NewAppListSource(a.client, a.cfg.Steam.AppListURL, a.component("source.applist")))
	a.registry.Register(steamapi.NewSteamSpySource(a.client, a.steamSpyOptions(), a.component("source.steamspy")))
	a.registry.Register(idsource.NewMissingTagsSource(a.repo))

	ids := make([]domain.ItemID, 0, len(a.cfg.Ingest.IDs))
	for _, id := range a.cfg.Ingest.IDs {
		ids = append(ids, domain.ItemID(id))
	}
	a.registry.Register(idsource.NewStaticSource(ids))

	key := a.cfg.Ingest.ResumeManifest
	if key == resumeLatest {
		latest, err := a.manifests.Latest(ctx)
		if err != nil {
			return err
		}
		if latest == "" {
			return errors.New("resume: no failure manifest found")
		}
		key = latest
	}
	a.registry.Register(idsource.NewManifestSource(a.manifests, key))
	return nil
}

func (a *Application) steamSpyOptions() steamapi.SteamSpyOptions {
	spy := a.cfg.Steam.SteamSpy
	opts := steamapi.SteamSpyOptions{
		Endpoint:   spy.URL,
		ReviewsURL: a.cfg.Steam.ReviewsURL,
		Requests:   spy.Requests,
		PerRequest: spy.PerRequest,
	}
	if spy.CheckReviews {
		opts.MinimumReviews = a.cfg.Ingest.MinimumReviews
	}
	return opts
}

// Source resolves the configured id sources; a resume manifest overrides them.
func (a *Application) Source() ports.IDSource {
	names := a.cfg.Ingest.SourceNames()
	if a.cfg.Ingest.ResumeManifest != "" {
		names = []string{"manifest"}
	}
	return idsource.NewCompositeSource(a.registry, names, a.component("source"))
}

func (a *Application) retryPolicy() retry.Policy {
	in := a.cfg.Ingest
	retryLog := a.component("retry")
	return retry.Policy{
		MaxRetries:  in.MaxRetries,
		BaseDelay:   in.BaseDelay,
		Factor:      in.BackoffFactor,
		MaxDelay:    in.MaxDelay,
		CallTimeout: in.RequestTimeout,
		OnRetry: func(attempt int, kind domain.ErrorKind, delay time.Duration, err error) {
			a.metrics.ObserveRetry(attempt, kind, delay, err)
			retryLog.Debug("retry scheduled", "attempt", attempt, "kind", kind, "delay", delay, "error", err)
		},
	}
}

// NewRunner assembles a runner with a fresh writer.
func (a *Application) NewRunner() (*usecase.Runner, error) {
	in := a.cfg.Ingest
	policy := a.retryPolicy()

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Enrichment:     parser.NewStoreCrawler(a.client, a.cfg.Steam.StoreURL, a.component("crawler")),
		Structured:     steamapi.NewClient(a.client, steamapi.Options{BaseURL: a.cfg.Steam.APIURL, Country: a.cfg.Steam.Country, Language: a.cfg.Steam.Language}, a.component("steamapi")),
		Retry:          policy,
		MinimumReviews: in.MinimumReviews,
		Logger:         a.component("pipeline"),
	})

	writerCfg := usecase.WriterConfig{
		BatchSize:     in.BatchSize,
		FlushAttempts: in.FlushAttempts,
		RetryDelay:    in.FlushRetryDelay,
		Observer:      a.metrics,
		Logger:        a.component("writer"),
	}
	var writer usecase.Writer
	if in.UseBatch {
		writer = usecase.NewBatchWriter(a.repo, writerCfg)
	} else {
		writer = usecase.NewRecordWriter(a.repo, writerCfg)
	}

	return usecase.NewRunner(
		usecase.RunnerConfig{
			Workers:       in.Workers,
			Delay:         in.Delay,
			Limit:         in.Limit,
			ProgressEvery: in.ProgressEvery,
			SourceRetry:   policy,
		},
		usecase.RunnerDeps{
			Source:    a.Source(),
			Processor: pipeline,
			Writer:    writer,
			Manifests: a.manifests,
			Notifier:  a.notifier,
			ProgressSinks: []ports.ProgressSink{
				usecase.NewLogProgressSink(a.component("progress")),
				a.metrics,
			},
			Observer: a.metrics,
			Logger:   a.component("runner"),
			NewRunID: uuid.NewString,
		},
	)
}

// Run performs one ingestion run, or keeps running on the configured
// interval until ctx is cancelled. The lock file keeps a second process
// off the same store.
func (a *Application) Run(ctx context.Context) (domain.RunSummary, error) {
	lock := runlock.New(a.cfg.LockFile)
	if err := lock.Acquire(); err != nil {
		return domain.RunSummary{}, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			a.logger.Warn("release lock", "error", err)
		}
	}()

	if addr := a.cfg.Metrics.Address; addr != "" {
		metricsCtx, stopMetrics := context.WithCancel(ctx)
		defer stopMetrics()
		go func() {
			if err := a.metrics.Serve(metricsCtx, addr, a.component("metrics")); err != nil {
				a.logger.Error("metrics server stopped", "error", err)
			}
		}()
	}

	if a.cfg.Ingest.Every <= 0 {
		runner, err := a.NewRunner()
		if err != nil {
			return domain.RunSummary{}, err
		}
		return runner.Run(ctx)
	}

	return a.runEvery(ctx)
}

func (a *Application) runEvery(ctx context.Context) (domain.RunSummary, error) {
	driver := scheduler.NewIntervalScheduler(a.cfg.Ingest.Every)
	sched := usecase.NewScheduler(driver, a.NewRunner, a.component("scheduler"))

	var (
		last    domain.RunSummary
		lastErr error
	)
	sched.OnRunDone(func(summary domain.RunSummary, err error) {
		last, lastErr = summary, err
	})

	if err := sched.Start(ctx); err != nil {
		return domain.RunSummary{}, err
	}
	a.logger.Info("scheduler started", "every", a.cfg.Ingest.Every)

	<-driver.Done()
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := sched.Stop(stopCtx); err != nil {
		a.logger.Warn("stop scheduler", "error", err)
	}
	return last, lastErr
}

// Catalog exposes read queries over the stored games.
func (a *Application) Catalog() ports.CatalogReader {
	return a.repo
}

// Close releases storage and the manifest bucket.
func (a *Application) Close() error {
	var errs []error
	if a.manifests != nil {
		errs = append(errs, a.manifests.Close())
	}
	if a.repo != nil {
		errs = append(errs, a.repo.Close())
	}
	return errors.Join(errs...)
}

func (a *Application) component(name string) *slog.Logger {
	return a.logger.With("component", name)
}
