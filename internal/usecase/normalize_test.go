package usecase

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GameHarvester/internal/domain"
)

func TestParseReleaseDate(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"9 Dec, 2020":            "2020-12-09",
		"Mar 25, 2015":           "2015-03-25",
		"25 March, 2015":         "2015-03-25",
		"2015-03-25":             "2015-03-25",
		"2015.03.25":             "2015-03-25",
		"2015년 03월 25일":          "2015-03-25",
		"Released 3rd Feb, 2019": "2019-02-03",
	}
	for input, want := range cases {
		got := ParseReleaseDate(input)
		require.NotNil(t, got, input)
		assert.Equal(t, want, got.Format("2006-01-02"), input)
	}

	assert.Nil(t, ParseReleaseDate(""))
	assert.Nil(t, ParseReleaseDate("Coming soon"))
	assert.Nil(t, ParseReleaseDate("To be announced"))
}

func TestMergeKeepsAbsenceAsNil(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC)
	rec := Merge(domain.RawEnrichment{ItemID: 3}, domain.StructuredRecord{ItemID: 3, Type: " Game ", Name: " Title "}, now)

	assert.Equal(t, "game", rec.ItemType)
	assert.Equal(t, "Title", rec.Title)
	assert.Nil(t, rec.Description)
	assert.Nil(t, rec.Developer)
	assert.Nil(t, rec.ReleaseDate)
	assert.Nil(t, rec.Pricing)
	assert.Nil(t, rec.Reviews)
	assert.Nil(t, rec.Tags)
	assert.Equal(t, now, rec.CrawledAt)
	assert.Equal(t, now, rec.DetailsUpdatedAt)
}

func TestMergePricing(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()
	price := &domain.PriceSnapshot{CurrentPrice: strPtr(" $9.99 "), OriginalPrice: strPtr("$19.99"), DiscountPercent: intPtr(50)}
	rec := Merge(domain.RawEnrichment{ItemID: 4, Price: price, FetchedAt: now}, domain.StructuredRecord{ItemID: 4, Type: "game"}, now)

	require.NotNil(t, rec.Pricing)
	assert.Equal(t, "$9.99", *rec.Pricing.CurrentPrice)
	assert.Equal(t, 50, *rec.Pricing.DiscountPercent)
	assert.False(t, rec.Pricing.IsFree)

	free := Merge(domain.RawEnrichment{ItemID: 5}, domain.StructuredRecord{ItemID: 5, Type: "game", IsFree: true}, now)
	require.NotNil(t, free.Pricing)
	assert.True(t, free.Pricing.IsFree)
	assert.Nil(t, free.Pricing.CurrentPrice)
}

func TestMergeFallsBackToPageTitleAndAboutText(t *testing.T) {
	t.Parallel()

	rec := Merge(
		domain.RawEnrichment{ItemID: 6, Title: "Store Title"},
		domain.StructuredRecord{ItemID: 6, Type: "game", AboutTheGame: "About text"},
		time.Now(),
	)

	assert.Equal(t, "Store Title", rec.Title)
	require.NotNil(t, rec.DetailedDescription)
	assert.Equal(t, "About text", *rec.DetailedDescription)
}
