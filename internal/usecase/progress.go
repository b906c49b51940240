package usecase

import (
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
)

const (
	defaultProgressEvery  = 1000
	progressBufferedItems = 16
)

// ProgressMonitor counts completed items and hands a snapshot to its sinks
// every N items. Emission is fire-and-forget: when the sinks fall behind,
// snapshots are dropped instead of stalling workers.
type ProgressMonitor struct {
	runID   string
	every   int64
	total   int
	started time.Time
	now     func() time.Time
	sinks   []ports.ProgressSink

	processed atomic.Int64
	persisted atomic.Int64
	filtered  atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64

	queue chan domain.ProgressSnapshot
	done  chan struct{}
	once  sync.Once
}

// NewProgressMonitor starts the delivery goroutine. Call Close to stop it.
func NewProgressMonitor(runID string, total, every int, sinks ...ports.ProgressSink) *ProgressMonitor {
	if every <= 0 {
		every = defaultProgressEvery
	}
	m := &ProgressMonitor{
		runID:   runID,
		every:   int64(every),
		total:   total,
		started: time.Now(),
		now:     time.Now,
		sinks:   sinks,
		queue:   make(chan domain.ProgressSnapshot, progressBufferedItems),
		done:    make(chan struct{}),
	}
	go m.deliver()
	return m
}

// OnItemProcessed is called once per completed item, never after Close.
func (m *ProgressMonitor) OnItemProcessed(outcome domain.Outcome) {
	switch outcome.(type) {
	case domain.Persisted:
		m.persisted.Add(1)
	case domain.Filtered:
		m.filtered.Add(1)
	case domain.Failed:
		m.failed.Add(1)
	}

	n := m.processed.Add(1)
	if n%m.every != 0 {
		return
	}

	select {
	case m.queue <- m.Snapshot():
	default:
		m.dropped.Add(1)
	}
}

// Snapshot returns the current cumulative view.
func (m *ProgressMonitor) Snapshot() domain.ProgressSnapshot {
	now := m.now()
	elapsed := now.Sub(m.started)
	processed := int(m.processed.Load())
	persisted := int(m.persisted.Load())

	snap := domain.ProgressSnapshot{
		RunID:       m.runID,
		Total:       m.total,
		Processed:   processed,
		Persisted:   persisted,
		Filtered:    int(m.filtered.Load()),
		Failed:      int(m.failed.Load()),
		SuccessRate: successRate(persisted, processed),
		Elapsed:     elapsed,
		At:          now,
	}
	if secs := elapsed.Seconds(); secs > 0 {
		snap.PerSecond = float64(processed) / secs
	}
	return snap
}

// Dropped reports how many snapshots were discarded.
func (m *ProgressMonitor) Dropped() int64 {
	return m.dropped.Load()
}

// Close drains queued snapshots and stops delivery.
func (m *ProgressMonitor) Close() {
	m.once.Do(func() {
		close(m.queue)
		<-m.done
	})
}

func (m *ProgressMonitor) deliver() {
	defer close(m.done)
	for snap := range m.queue {
		for _, sink := range m.sinks {
			sink.Emit(snap)
		}
	}
}

// LogProgressSink writes snapshots to a structured logger.
type LogProgressSink struct {
	logger *slog.Logger
}

var _ ports.ProgressSink = (*LogProgressSink)(nil)

// NewLogProgressSink wraps logger.
func NewLogProgressSink(logger *slog.Logger) *LogProgressSink {
	return &LogProgressSink{logger: logger}
}

// Emit logs one progress line.
func (s *LogProgressSink) Emit(snap domain.ProgressSnapshot) {
	if s.logger == nil {
		return
	}
	s.logger.Info("progress",
		"run_id", snap.RunID,
		"processed", snap.Processed,
		"total", snap.Total,
		"persisted", snap.Persisted,
		"filtered", snap.Filtered,
		"failed", snap.Failed,
		"success_rate", snap.SuccessRate,
		"items_per_sec", snap.PerSecond,
		"elapsed", snap.Elapsed.Round(time.Second),
	)
}
