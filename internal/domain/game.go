package domain

import (
	"strconv"
	"time"
)

// ItemID is the catalog identifier of a single store item (Steam app id).
type ItemID int64

func (id ItemID) String() string {
	return strconv.FormatInt(int64(id), 10)
}

// ReviewStats captures the user review block of a store page.
// Nil fields mean the page did not expose the value.
type ReviewStats struct {
	RecentSummary         *string
	RecentCount           *int
	RecentPositivePercent *int
	AllSummary            *string
	TotalReviewCount      *int
	AllPositivePercent    *int
}

// PriceSnapshot holds the localized purchase block as displayed.
type PriceSnapshot struct {
	CurrentPrice    *string
	OriginalPrice   *string
	DiscountPercent *int
	IsFree          bool
}

// RawEnrichment is the result of crawling the human-facing store page.
type RawEnrichment struct {
	ItemID    ItemID
	Title     string
	Tags      []string
	Reviews   *ReviewStats
	Price     *PriceSnapshot
	FetchedAt time.Time
}

// TotalReviews returns the all-time review count when the page exposed it.
func (e RawEnrichment) TotalReviews() (int, bool) {
	if e.Reviews == nil || e.Reviews.TotalReviewCount == nil {
		return 0, false
	}
	return *e.Reviews.TotalReviewCount, true
}

// StructuredRecord is the app details payload of the structured API.
type StructuredRecord struct {
	ItemID                  ItemID
	Type                    string
	Name                    string
	ShortDescription        string
	DetailedDescription     string
	AboutTheGame            string
	ReleaseDate             string
	ComingSoon              bool
	Developers              []string
	Publishers              []string
	HeaderImage             string
	RequirementsMinimum     string
	RequirementsRecommended string
	MetacriticScore         *int
	Genres                  []string
	IsFree                  bool
	FetchedAt               time.Time
}

// Pricing is the persisted price row of a game.
type Pricing struct {
	CurrentPrice    *string
	OriginalPrice   *string
	DiscountPercent *int
	IsFree          bool
	UpdatedAt       time.Time
}

// Reviews is the persisted review row of a game.
type Reviews struct {
	ReviewStats
	UpdatedAt time.Time
}

// MergedGameRecord is the union of both acquisition passes, ready to persist.
type MergedGameRecord struct {
	ItemID                  ItemID
	Title                   string
	ItemType                string
	Description             *string
	DetailedDescription     *string
	ReleaseDate             *time.Time
	ReleaseDateText         *string
	ComingSoon              bool
	Developer               *string
	Publisher               *string
	HeaderImageURL          *string
	RequirementsMinimum     *string
	RequirementsRecommended *string
	MetacriticScore         *int
	Tags                    []string
	Genres                  []string
	Pricing                 *Pricing
	Reviews                 *Reviews
	CrawledAt               time.Time
	DetailsUpdatedAt        time.Time
}

// NamedCount pairs a label with its frequency.
type NamedCount struct {
	Name  string
	Count int
}

// CatalogStats summarizes what the store currently holds.
type CatalogStats struct {
	TotalGames      int
	FreeGames       int
	TotalDevelopers int
	PricedGames     int
	ReviewedGames   int
	PopularTags     []NamedCount
	PopularGenres   []NamedCount
}

// ListingOrder selects how catalog searches are sorted.
type ListingOrder string

const (
	OrderByID       ListingOrder = "id"
	OrderByReviews  ListingOrder = "reviews"
	OrderByDiscount ListingOrder = "discount"
	OrderByRating   ListingOrder = "rating"
)

// GameQuery filters catalog searches. Zero fields do not filter; every tag
// and genre listed must be present.
type GameQuery struct {
	Title       string
	Developer   string
	Tags        []string
	Genres      []string
	FreeOnly    bool
	MinDiscount int
	MinPositive int
	OrderBy     ListingOrder
	Limit       int
}

// GameListing is one row of a catalog search.
type GameListing struct {
	ItemID             ItemID
	Title              string
	Developer          *string
	CurrentPrice       *string
	DiscountPercent    *int
	IsFree             bool
	TotalReviewCount   *int
	AllPositivePercent *int
}
