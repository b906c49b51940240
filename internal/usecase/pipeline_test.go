package usecase

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/infrastructure/parser"
	"GameHarvester/internal/retry"
)

func newTestPipeline(enrichment *fakeEnrichment, structured *fakeStructured) *Pipeline {
	return NewPipeline(PipelineDeps{
		Enrichment:     enrichment,
		Structured:     structured,
		MinimumReviews: 100,
		Retry:          retry.Policy{MaxRetries: 3, BaseDelay: time.Millisecond, Sleep: noSleep},
		Now:            func() time.Time { return time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
}

func TestPipelinePersistsPopularGame(t *testing.T) {
	t.Parallel()

	enrichment := newFakeEnrichment().withReviews(1091500, 500000, "Open World", "RPG", "Open World")
	structured := newFakeStructured().withType(1091500, "game", "Cyberpunk 2077")

	outcome := newTestPipeline(enrichment, structured).Process(context.Background(), 1091500)

	persisted, ok := outcome.(domain.Persisted)
	require.True(t, ok, "expected Persisted, got %T", outcome)

	rec := persisted.Record
	assert.Equal(t, domain.ItemID(1091500), rec.ItemID)
	assert.Equal(t, "Cyberpunk 2077", rec.Title)
	assert.Equal(t, []string{"Open World", "RPG"}, rec.Tags)
	assert.Equal(t, []string{"RPG", "Action"}, rec.Genres)
	require.NotNil(t, rec.Publisher)
	assert.Equal(t, "Studio, Label", *rec.Publisher)
	require.NotNil(t, rec.ReleaseDate)
	assert.Equal(t, "2020-12-09", rec.ReleaseDate.Format("2006-01-02"))
	require.NotNil(t, rec.Reviews)
	assert.Equal(t, 500000, *rec.Reviews.TotalReviewCount)
	assert.Nil(t, rec.Pricing)
	assert.Equal(t, 1, structured.callsFor(1091500))
}

func TestPipelineFiltersLowReviewCountWithoutStructuredCall(t *testing.T) {
	t.Parallel()

	enrichment := newFakeEnrichment().withReviews(42, 12)
	structured := newFakeStructured()

	outcome := newTestPipeline(enrichment, structured).Process(context.Background(), 42)

	assert.Equal(t, domain.Filtered{ItemID: 42, Reason: domain.ReasonLowReviewCount}, outcome)
	assert.Equal(t, 0, structured.callsFor(42))
}

func TestPipelineReviewGateIsInclusive(t *testing.T) {
	t.Parallel()

	enrichment := newFakeEnrichment().withReviews(7, 100)
	structured := newFakeStructured().withType(7, "game", "Exactly Enough")

	outcome := newTestPipeline(enrichment, structured).Process(context.Background(), 7)

	assert.IsType(t, domain.Persisted{}, outcome)
}

func TestPipelineUnknownReviewCountPassesGate(t *testing.T) {
	t.Parallel()

	enrichment := newFakeEnrichment()
	structured := newFakeStructured().withType(8, "game", "No Review Block")

	outcome := newTestPipeline(enrichment, structured).Process(context.Background(), 8)

	assert.IsType(t, domain.Persisted{}, outcome)
	assert.Equal(t, 1, structured.callsFor(8))
}

func TestPipelineFiltersStorePageWithFewReviews(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html><body>
<div class="apphub_AppName">Tiny Game</div>
<span class="game_review_summary not_enough_reviews">3 user reviews</span>
</body></html>`)
	}))
	defer server.Close()

	structured := newFakeStructured().withType(42, "game", "Tiny Game")
	pipeline := NewPipeline(PipelineDeps{
		Enrichment:     parser.NewStoreCrawler(server.Client(), server.URL, nil),
		Structured:     structured,
		MinimumReviews: 100,
		Retry:          retry.Policy{MaxRetries: 1, BaseDelay: time.Millisecond, Sleep: noSleep},
	})

	outcome := pipeline.Process(context.Background(), 42)

	assert.Equal(t, domain.Filtered{ItemID: 42, Reason: domain.ReasonLowReviewCount}, outcome)
	assert.Equal(t, 0, structured.callsFor(42))
}

func TestPipelineFailsOnNotFoundWithSingleCall(t *testing.T) {
	t.Parallel()

	enrichment := newFakeEnrichment()
	enrichment.errs[99] = domain.StatusError(http.StatusNotFound, 0, "no such app")
	structured := newFakeStructured()

	outcome := newTestPipeline(enrichment, structured).Process(context.Background(), 99)

	failed, ok := outcome.(domain.Failed)
	require.True(t, ok, "expected Failed, got %T", outcome)
	assert.Equal(t, domain.KindHTTP, failed.Failure.Kind)
	assert.Equal(t, http.StatusNotFound, failed.Failure.StatusCode)
	assert.Equal(t, 1, failed.Failure.Attempts)
	assert.Equal(t, domain.StageEnrichment, failed.Failure.Stage)
	assert.Equal(t, 1, enrichment.callsFor(99))
	assert.Equal(t, 0, structured.callsFor(99))
}

func TestPipelineFiltersWrongItemType(t *testing.T) {
	t.Parallel()

	for _, itemType := range []string{"dlc", "demo", "music", "video"} {
		t.Run(itemType, func(t *testing.T) {
			enrichment := newFakeEnrichment().withReviews(5, 1000)
			structured := newFakeStructured().withType(5, itemType, "Add-on")

			outcome := newTestPipeline(enrichment, structured).Process(context.Background(), 5)

			assert.Equal(t, domain.Filtered{ItemID: 5, Reason: domain.ReasonWrongItemType}, outcome)
		})
	}
}

func TestPipelineStructuredFailureAfterRetries(t *testing.T) {
	t.Parallel()

	enrichment := newFakeEnrichment().withReviews(11, 5000)
	structured := newFakeStructured()
	structured.errs[11] = domain.StatusError(http.StatusTooManyRequests, 0, "throttled")

	outcome := newTestPipeline(enrichment, structured).Process(context.Background(), 11)

	failed, ok := outcome.(domain.Failed)
	require.True(t, ok)
	assert.Equal(t, domain.KindRateLimit, failed.Failure.Kind)
	assert.Equal(t, domain.StageStructured, failed.Failure.Stage)
	assert.Equal(t, 4, failed.Failure.Attempts)
	assert.Equal(t, 4, structured.callsFor(11))
}
