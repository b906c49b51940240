package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/retry"
)

// twiceDriver fires the job twice synchronously from Start.
type twiceDriver struct {
	stopped bool
}

func (d *twiceDriver) Start(ctx context.Context, job func(context.Context, time.Time)) error {
	job(ctx, time.Now())
	job(ctx, time.Now())
	return nil
}

func (d *twiceDriver) Stop(context.Context) error {
	d.stopped = true
	return nil
}

func TestSchedulerBuildsFreshRunnerPerTick(t *testing.T) {
	t.Parallel()

	f := newRunFixture()
	f.enrichment.withReviews(1, 500)
	f.structured.withType(1, "game", "One")

	built := 0
	factory := func() (*Runner, error) {
		built++
		return NewRunner(
			RunnerConfig{Workers: 1, SourceRetry: retry.Policy{Sleep: noSleep}},
			RunnerDeps{
				Source:    staticIDs{ids: []domain.ItemID{1}},
				Processor: newTestPipeline(f.enrichment, f.structured),
				Writer:    NewBatchWriter(f.repo, WriterConfig{BatchSize: 10, Sleep: noSleep}),
			},
		)
	}

	driver := &twiceDriver{}
	s := NewScheduler(driver, factory, nil)

	var summaries []domain.RunSummary
	s.OnRunDone(func(summary domain.RunSummary, err error) {
		assert.NoError(t, err)
		summaries = append(summaries, summary)
	})

	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))

	assert.Equal(t, 2, built)
	require.Len(t, summaries, 2)
	assert.Equal(t, 1, summaries[1].Persisted)
	assert.Len(t, f.repo.snapshot(), 2)
	assert.True(t, driver.stopped)
}

func TestSchedulerWithoutDriverIsNoop(t *testing.T) {
	t.Parallel()

	s := NewScheduler(nil, nil, nil)
	assert.NoError(t, s.Start(context.Background()))
	assert.NoError(t, s.Stop(context.Background()))
}
