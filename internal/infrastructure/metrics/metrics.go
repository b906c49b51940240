// Package metrics exposes ingestion counters for Prometheus.
package metrics

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
)

const namespace = "gameharvester"

// Metrics holds the collectors of one process.
type Metrics struct {
	registry *prometheus.Registry

	// Outcomes
	ItemsPersisted prometheus.Counter
	ItemsFiltered  *prometheus.CounterVec
	ItemsFailed    *prometheus.CounterVec

	// Retries
	RetryAttempts *prometheus.CounterVec

	// Writer
	FlushDuration *prometheus.HistogramVec
	FlushRecords  prometheus.Histogram

	// Progress
	RunTotal       prometheus.Gauge
	RunProcessed   prometheus.Gauge
	RunSuccessRate prometheus.Gauge
	ItemsPerSecond prometheus.Gauge
}

var _ ports.ProgressSink = (*Metrics)(nil)

// New builds the collectors on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		ItemsPersisted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_persisted_total",
			Help:      "Items that passed both gates and reached the writer",
		}),
		ItemsFiltered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_filtered_total",
			Help:      "Items excluded by a gate",
		}, []string{"reason"}),
		ItemsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "items_failed_total",
			Help:      "Items that ended in a failure",
		}, []string{"kind", "stage"}),
		RetryAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retry_attempts_total",
			Help:      "Retries scheduled by the backoff policy",
		}, []string{"kind"}),
		FlushDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_duration_seconds",
			Help:      "Time spent writing one batch including retries",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}, []string{"result"}),
		FlushRecords: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "flush_records",
			Help:      "Records per flushed batch",
			Buckets:   prometheus.LinearBuckets(10, 10, 10),
		}),
		RunTotal: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_items_total",
			Help:      "Items enumerated for the current run",
		}),
		RunProcessed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_items_processed",
			Help:      "Items finished in the current run",
		}),
		RunSuccessRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_success_rate",
			Help:      "Persisted share of processed items in the current run",
		}),
		ItemsPerSecond: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_items_per_second",
			Help:      "Throughput of the current run",
		}),
	}

	reg.MustRegister(
		m.ItemsPersisted, m.ItemsFiltered, m.ItemsFailed,
		m.RetryAttempts,
		m.FlushDuration, m.FlushRecords,
		m.RunTotal, m.RunProcessed, m.RunSuccessRate, m.ItemsPerSecond,
	)
	return m
}

// Registry exposes the underlying registry (tests, custom handlers).
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveOutcome counts a terminal item outcome.
func (m *Metrics) ObserveOutcome(outcome domain.Outcome) {
	switch o := outcome.(type) {
	case domain.Persisted:
		m.ItemsPersisted.Inc()
	case domain.Filtered:
		m.ItemsFiltered.WithLabelValues(o.Reason).Inc()
	case domain.Failed:
		m.ItemsFailed.WithLabelValues(string(o.Failure.Kind), string(o.Failure.Stage)).Inc()
	}
}

// ObserveRetry matches retry.Policy.OnRetry.
func (m *Metrics) ObserveRetry(_ int, kind domain.ErrorKind, _ time.Duration, _ error) {
	m.RetryAttempts.WithLabelValues(string(kind)).Inc()
}

// ObserveFlush records one batch write.
func (m *Metrics) ObserveFlush(records int, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.FlushDuration.WithLabelValues(result).Observe(elapsed.Seconds())
	m.FlushRecords.Observe(float64(records))
}

// Emit mirrors a progress snapshot into gauges.
func (m *Metrics) Emit(snap domain.ProgressSnapshot) {
	m.RunTotal.Set(float64(snap.Total))
	m.RunProcessed.Set(float64(snap.Processed))
	m.RunSuccessRate.Set(snap.SuccessRate)
	m.ItemsPerSecond.Set(snap.PerSecond)
}

// Handler serves the registry in the exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *slog.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	errCh := make(chan error, 1)
	go func() {
		if logger != nil {
			logger.Info("metrics server listening", "addr", addr)
		}
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
