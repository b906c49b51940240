package main

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"GameHarvester/internal/domain"
)

func TestRenderSummary(t *testing.T) {
	summary := domain.RunSummary{
		RunID:       "run-1",
		Elapsed:     1500 * time.Millisecond,
		Enumerated:  10,
		Processed:   10,
		Persisted:   6,
		Filtered:    3,
		Failed:      1,
		FilteredBy:  map[string]int{domain.ReasonWrongItemType: 1, domain.ReasonLowReviewCount: 2},
		FailedBy:    map[domain.ErrorKind]int{domain.KindRateLimit: 1},
		SuccessRate: 0.6,
		ManifestKey: "failed_items_20250301T123000Z_run-1.json",
	}

	out := renderSummary(summary, false)
	assert.True(t, strings.HasPrefix(out, "Run run-1 finished in 1.5s"))
	assert.Contains(t, out, "60.0%")
	assert.Contains(t, out, "Failed: rate_limit_exceeded")
	assert.Contains(t, out, "Failure manifest: failed_items_20250301T123000Z_run-1.json")
	assert.NotContains(t, out, ansiGreen)
	assert.Less(t, strings.Index(out, "Filtered: "+domain.ReasonLowReviewCount), strings.Index(out, "Filtered: "+domain.ReasonWrongItemType))
}

func TestRenderSummaryStatus(t *testing.T) {
	interrupted := renderSummary(domain.RunSummary{RunID: "r", Interrupted: true, NotStarted: 4}, true)
	assert.True(t, strings.HasPrefix(interrupted, ansiYellow+"Run r interrupted"))
	assert.Contains(t, interrupted, "Not started")

	failed := renderSummary(domain.RunSummary{RunID: "r", FatalError: "storage down"}, false)
	assert.Contains(t, failed, "Run r failed")
	assert.Contains(t, failed, "Error: storage down")
}

func TestRenderGame(t *testing.T) {
	summary := "Very Positive"
	count, percent, discount := 500, 90, 50
	current, original := "$9.99", "$19.99"
	release := time.Date(2020, 12, 9, 0, 0, 0, 0, time.UTC)

	out := renderGame(domain.MergedGameRecord{
		ItemID:      10,
		Title:       "Ten",
		ItemType:    "game",
		ReleaseDate: &release,
		Genres:      []string{"Action", "RPG"},
		Pricing:     &domain.Pricing{CurrentPrice: &current, OriginalPrice: &original, DiscountPercent: &discount},
		Reviews: &domain.Reviews{ReviewStats: domain.ReviewStats{
			AllSummary:         &summary,
			TotalReviewCount:   &count,
			AllPositivePercent: &percent,
		}},
	})
	assert.Contains(t, out, "2020-12-09")
	assert.Contains(t, out, "Action, RPG")
	assert.Contains(t, out, "$9.99 (-50% from $19.99)")
	assert.Contains(t, out, "Very Positive, 500 reviews, 90% positive")
}

func TestRenderListings(t *testing.T) {
	dev := "Valve"
	count, percent := 2000000, 81

	out := renderListings([]domain.GameListing{
		{ItemID: 570, Title: "Dota 2", Developer: &dev, IsFree: true, TotalReviewCount: &count, AllPositivePercent: &percent},
	})
	assert.Contains(t, out, "Dota 2")
	assert.Contains(t, out, "Free")
	assert.Contains(t, out, "2000000")
	assert.Contains(t, out, "81%")

	assert.Equal(t, "No games match.", renderListings(nil))
}

func TestRenderStats(t *testing.T) {
	out := renderStats(domain.CatalogStats{
		TotalGames:    3,
		PopularGenres: []domain.NamedCount{{Name: "Action", Count: 3}},
	})
	assert.Contains(t, out, "Games")
	assert.Contains(t, out, "Action")
	assert.NotContains(t, out, "Tag")
}
