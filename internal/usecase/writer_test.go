package usecase

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GameHarvester/internal/domain"
)

var errDatabaseDown = errors.New("database down")

func records(from, to int) []domain.MergedGameRecord {
	out := make([]domain.MergedGameRecord, 0, to-from+1)
	for i := from; i <= to; i++ {
		out = append(out, domain.MergedGameRecord{ItemID: domain.ItemID(i), Title: "Game", ItemType: "game"})
	}
	return out
}

func TestBatchWriterFlushesExactlyOnceAtBatchSize(t *testing.T) {
	t.Parallel()

	repo := &memoryRepository{}
	w := NewBatchWriter(repo, WriterConfig{BatchSize: 100, Sleep: noSleep})
	ctx := context.Background()

	for _, r := range records(1, 100) {
		require.NoError(t, w.Submit(ctx, r))
	}
	assert.Len(t, repo.snapshot(), 1)
	assert.Zero(t, w.Pending())

	require.NoError(t, w.Close(ctx))
	assert.Len(t, repo.snapshot(), 1, "close with nothing pending must not flush")
	assert.Equal(t, domain.WriterStats{Batches: 1, RecordsWritten: 100}, w.Stats())
}

func TestBatchWriterFinalPartialFlush(t *testing.T) {
	t.Parallel()

	repo := &memoryRepository{}
	w := NewBatchWriter(repo, WriterConfig{BatchSize: 100, Sleep: noSleep})
	ctx := context.Background()

	for _, r := range records(1, 101) {
		require.NoError(t, w.Submit(ctx, r))
	}
	assert.Equal(t, 1, w.Pending())
	require.NoError(t, w.Close(ctx))

	batches := repo.snapshot()
	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 100)
	assert.Len(t, batches[1], 1)
	assert.Equal(t, domain.ItemID(101), batches[1][0].ItemID)
}

func TestBatchWriterPreservesSubmitOrder(t *testing.T) {
	t.Parallel()

	repo := &memoryRepository{}
	w := NewBatchWriter(repo, WriterConfig{BatchSize: 3, Sleep: noSleep})
	ctx := context.Background()

	for _, r := range records(1, 7) {
		require.NoError(t, w.Submit(ctx, r))
	}
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, []domain.ItemID{1, 2, 3, 4, 5, 6, 7}, repo.persistedIDs())
}

func TestBatchWriterRetriesTransientFlushFailure(t *testing.T) {
	t.Parallel()

	repo := &memoryRepository{failFirst: 2, err: errDatabaseDown}
	w := NewBatchWriter(repo, WriterConfig{BatchSize: 2, Sleep: noSleep, RetryDelay: 1})
	ctx := context.Background()

	for _, r := range records(1, 2) {
		require.NoError(t, w.Submit(ctx, r))
	}
	assert.Len(t, repo.snapshot(), 1)
	assert.Equal(t, 2, w.Stats().FlushRetries)
}

func TestBatchWriterStorageUnavailableAfterThreeFailures(t *testing.T) {
	t.Parallel()

	repo := &memoryRepository{failAfter: 2, err: errDatabaseDown}
	w := NewBatchWriter(repo, WriterConfig{BatchSize: 2, FlushAttempts: 3, Sleep: noSleep})
	ctx := context.Background()

	for _, r := range records(1, 4) {
		require.NoError(t, w.Submit(ctx, r))
	}

	require.NoError(t, w.Submit(ctx, records(5, 5)[0]))
	err := w.Submit(ctx, records(6, 6)[0])
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.ErrorIs(t, err, errDatabaseDown)

	// Earlier batches survive.
	assert.Equal(t, []domain.ItemID{1, 2, 3, 4}, repo.persistedIDs())
	assert.Equal(t, 2+3, repo.calls)

	// The failure is sticky.
	err = w.Submit(ctx, records(7, 7)[0])
	assert.ErrorIs(t, err, domain.ErrStorageUnavailable)
	assert.ErrorIs(t, w.Close(ctx), domain.ErrStorageUnavailable)

	stats := w.Stats()
	assert.Equal(t, 2, stats.Batches)
	assert.Equal(t, 4, stats.RecordsWritten)
	assert.Equal(t, 3, stats.RecordsLost)
	assert.Equal(t, []domain.ItemID{5, 6, 7}, w.Lost())
}

func TestBatchWriterConcurrentSubmitNeverLosesRecords(t *testing.T) {
	t.Parallel()

	repo := &memoryRepository{}
	w := NewBatchWriter(repo, WriterConfig{BatchSize: 7, Sleep: noSleep})
	ctx := context.Background()

	var wg sync.WaitGroup
	for _, r := range records(1, 500) {
		wg.Add(1)
		go func(rec domain.MergedGameRecord) {
			defer wg.Done()
			assert.NoError(t, w.Submit(ctx, rec))
		}(r)
	}
	wg.Wait()
	require.NoError(t, w.Close(ctx))

	seen := map[domain.ItemID]int{}
	for _, id := range repo.persistedIDs() {
		seen[id]++
	}
	assert.Len(t, seen, 500)
	for id, n := range seen {
		assert.Equal(t, 1, n, "item %d written %d times", id, n)
	}
	for _, batch := range repo.snapshot()[:len(repo.snapshot())-1] {
		assert.Len(t, batch, 7)
	}
}

func TestRecordWriterIsolatesFailures(t *testing.T) {
	t.Parallel()

	repo := &memoryRepository{failIDs: map[domain.ItemID]bool{2: true}, err: errDatabaseDown}
	w := NewRecordWriter(repo, WriterConfig{FlushAttempts: 3, Sleep: noSleep})
	ctx := context.Background()

	require.NoError(t, w.Submit(ctx, records(1, 1)[0]))

	err := w.Submit(ctx, records(2, 2)[0])
	var itemErr *ItemWriteError
	require.ErrorAs(t, err, &itemErr)
	assert.Equal(t, domain.ItemID(2), itemErr.ItemID)
	assert.Equal(t, 3, itemErr.Attempts)
	assert.ErrorIs(t, err, errDatabaseDown)

	require.NoError(t, w.Submit(ctx, records(3, 3)[0]))
	require.NoError(t, w.Close(ctx))

	assert.Equal(t, []domain.ItemID{1, 3}, repo.persistedIDs())
	assert.Equal(t, domain.WriterStats{Batches: 2, RecordsWritten: 2, RecordsLost: 1, FlushRetries: 2}, w.Stats())
	assert.Empty(t, w.Lost())
}
