package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
	"GameHarvester/internal/retry"
)

const (
	defaultBatchSize     = 100
	defaultFlushAttempts = 3
)

// Writer accepts validated records and persists them.
type Writer interface {
	Submit(ctx context.Context, record domain.MergedGameRecord) error
	Close(ctx context.Context) error
	Stats() domain.WriterStats
	// Lost lists records that were accepted but never reached storage.
	Lost() []domain.ItemID
}

// FlushObserver is notified after every flush attempt sequence.
type FlushObserver interface {
	ObserveFlush(records int, elapsed time.Duration, err error)
}

// WriterConfig tunes both writer modes.
type WriterConfig struct {
	BatchSize     int
	FlushAttempts int
	RetryDelay    time.Duration
	Sleep         func(ctx context.Context, d time.Duration) error
	Observer      FlushObserver
	Logger        *slog.Logger
}

func (c WriterConfig) policy(onRetry func()) retry.Policy {
	attempts := c.FlushAttempts
	if attempts <= 0 {
		attempts = defaultFlushAttempts
	}
	return retry.Policy{
		MaxRetries: attempts - 1,
		BaseDelay:  c.RetryDelay,
		Factor:     2,
		MaxDelay:   30 * time.Second,
		Sleep:      c.Sleep,
		Classify: func(error) domain.ErrorKind {
			return domain.KindStorageUnavailable
		},
		OnRetry: func(int, domain.ErrorKind, time.Duration, error) {
			if onRetry != nil {
				onRetry()
			}
		},
	}
}

// ItemWriteError reports a per-record write failure. It is never fatal.
type ItemWriteError struct {
	ItemID   domain.ItemID
	Attempts int
	Err      error
}

func (e *ItemWriteError) Error() string {
	return fmt.Sprintf("write item %d: %v", e.ItemID, e.Err)
}

func (e *ItemWriteError) Unwrap() error {
	return e.Err
}

// BatchWriter accumulates records and upserts them in fixed-size
// transactional batches. The accumulator is guarded by a single mutex and
// flushes happen while it is held, so batches reach storage in submit order.
type BatchWriter struct {
	repo     ports.GameRepository
	size     int
	policy   retry.Policy
	observer FlushObserver
	logger   *slog.Logger

	mu      sync.Mutex
	pending []domain.MergedGameRecord
	fatal   error
	lost    []domain.ItemID
	stats   domain.WriterStats
}

var _ Writer = (*BatchWriter)(nil)

// NewBatchWriter builds a batch-mode writer.
func NewBatchWriter(repo ports.GameRepository, cfg WriterConfig) *BatchWriter {
	size := cfg.BatchSize
	if size <= 0 {
		size = defaultBatchSize
	}
	w := &BatchWriter{
		repo:     repo,
		size:     size,
		observer: cfg.Observer,
		logger:   cfg.Logger,
		pending:  make([]domain.MergedGameRecord, 0, size),
	}
	w.policy = cfg.policy(func() { w.stats.FlushRetries++ })
	return w
}

// Submit appends record and flushes once the batch is full. A non-nil error
// means storage is gone and the run must stop.
func (w *BatchWriter) Submit(ctx context.Context, record domain.MergedGameRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fatal != nil {
		w.stats.RecordsLost++
		w.lost = append(w.lost, record.ItemID)
		return w.fatal
	}

	w.pending = append(w.pending, record)
	if len(w.pending) < w.size {
		return nil
	}
	return w.flushLocked(ctx)
}

// Flush writes whatever is pending.
func (w *BatchWriter) Flush(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.fatal != nil {
		return w.fatal
	}
	return w.flushLocked(ctx)
}

// Close performs the final partial flush.
func (w *BatchWriter) Close(ctx context.Context) error {
	return w.Flush(ctx)
}

// Pending reports how many records wait for the next flush.
func (w *BatchWriter) Pending() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.pending)
}

// Stats returns a copy of the writer counters.
func (w *BatchWriter) Stats() domain.WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Lost returns the ids of records dropped by a failed flush.
func (w *BatchWriter) Lost() []domain.ItemID {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]domain.ItemID(nil), w.lost...)
}

func (w *BatchWriter) flushLocked(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}

	batch := w.pending
	w.pending = make([]domain.MergedGameRecord, 0, w.size)

	started := time.Now()
	_, err := retry.Do(ctx, w.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.repo.UpsertBatch(ctx, batch)
	})
	if w.observer != nil {
		w.observer.ObserveFlush(len(batch), time.Since(started), err)
	}

	if err != nil {
		w.stats.RecordsLost += len(batch)
		for _, r := range batch {
			w.lost = append(w.lost, r.ItemID)
		}
		w.fatal = fmt.Errorf("flush %d records after %d attempt(s): %w: %w",
			len(batch), retry.Attempts(err), domain.ErrStorageUnavailable, errors.Unwrap(err))
		w.log(slog.LevelError, "batch flush failed", "records", len(batch), "error", err)
		return w.fatal
	}

	w.stats.Batches++
	w.stats.RecordsWritten += len(batch)
	w.log(slog.LevelDebug, "batch flushed", "records", len(batch), "elapsed", time.Since(started))
	return nil
}

func (w *BatchWriter) log(level slog.Level, msg string, args ...interface{}) {
	if w.logger != nil {
		w.logger.Log(context.Background(), level, msg, args...)
	}
}

// RecordWriter upserts every record on its own. A failing record is
// reported as an ItemWriteError and does not affect its siblings.
type RecordWriter struct {
	repo     ports.GameRepository
	policy   retry.Policy
	observer FlushObserver
	logger   *slog.Logger

	mu    sync.Mutex
	stats domain.WriterStats
}

var _ Writer = (*RecordWriter)(nil)

// NewRecordWriter builds a per-record writer.
func NewRecordWriter(repo ports.GameRepository, cfg WriterConfig) *RecordWriter {
	w := &RecordWriter{repo: repo, observer: cfg.Observer, logger: cfg.Logger}
	w.policy = cfg.policy(func() {
		w.mu.Lock()
		w.stats.FlushRetries++
		w.mu.Unlock()
	})
	return w
}

// Submit writes record immediately.
func (w *RecordWriter) Submit(ctx context.Context, record domain.MergedGameRecord) error {
	started := time.Now()
	_, err := retry.Do(ctx, w.policy, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.repo.UpsertBatch(ctx, []domain.MergedGameRecord{record})
	})
	if w.observer != nil {
		w.observer.ObserveFlush(1, time.Since(started), err)
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if err != nil {
		w.stats.RecordsLost++
		if w.logger != nil {
			w.logger.Warn("record write failed", "item_id", record.ItemID, "error", err)
		}
		return &ItemWriteError{ItemID: record.ItemID, Attempts: retry.Attempts(err), Err: errors.Unwrap(err)}
	}
	w.stats.Batches++
	w.stats.RecordsWritten++
	return nil
}

// Close is a no-op; nothing is buffered.
func (w *RecordWriter) Close(context.Context) error {
	return nil
}

// Lost is always empty: failed records surface through ItemWriteError.
func (w *RecordWriter) Lost() []domain.ItemID {
	return nil
}

// Stats returns a copy of the writer counters.
func (w *RecordWriter) Stats() domain.WriterStats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}
