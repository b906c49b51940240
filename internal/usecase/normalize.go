package usecase

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"GameHarvester/internal/domain"
)

var releaseDateLayouts = []string{
	"2 Jan, 2006",
	"Jan 2, 2006",
	"2 January, 2006",
	"January 2, 2006",
	"2 Jan 2006",
	"Jan 2 2006",
	"2006-01-02",
	"2006년 1월 2일",
	"2006.01.02",
	"01/02/2006",
	"02/01/2006",
}

var (
	looseDateExpr = regexp.MustCompile(`(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+),?\s+(\d{4})`)
	monthPrefixes = map[string]time.Month{
		"jan": time.January, "feb": time.February, "mar": time.March, "apr": time.April,
		"may": time.May, "jun": time.June, "jul": time.July, "aug": time.August,
		"sep": time.September, "oct": time.October, "nov": time.November, "dec": time.December,
	}
)

// ParseReleaseDate understands the date formats the store renders. It returns
// nil for placeholders such as "Coming soon" or "To be announced".
func ParseReleaseDate(text string) *time.Time {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	for _, layout := range releaseDateLayouts {
		if parsed, err := time.Parse(layout, text); err == nil {
			return &parsed
		}
	}

	match := looseDateExpr.FindStringSubmatch(text)
	if match == nil || len(match[2]) < 3 {
		return nil
	}
	month, ok := monthPrefixes[strings.ToLower(match[2][:3])]
	if !ok {
		return nil
	}
	day, _ := strconv.Atoi(match[1])
	year, _ := strconv.Atoi(match[3])
	parsed := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	if parsed.Day() != day {
		return nil
	}
	return &parsed
}

// Merge combines both acquisition passes into a persistable record.
func Merge(enrichment domain.RawEnrichment, structured domain.StructuredRecord, now time.Time) domain.MergedGameRecord {
	title := strings.TrimSpace(structured.Name)
	if title == "" {
		title = strings.TrimSpace(enrichment.Title)
	}

	detailed := optional(structured.DetailedDescription)
	if detailed == nil {
		detailed = optional(structured.AboutTheGame)
	}

	record := domain.MergedGameRecord{
		ItemID:                  structured.ItemID,
		Title:                   title,
		ItemType:                normalizeType(structured.Type),
		Description:             optional(structured.ShortDescription),
		DetailedDescription:     detailed,
		ReleaseDate:             ParseReleaseDate(structured.ReleaseDate),
		ReleaseDateText:         optional(structured.ReleaseDate),
		ComingSoon:              structured.ComingSoon,
		Developer:               optional(joinNames(structured.Developers)),
		Publisher:               optional(joinNames(structured.Publishers)),
		HeaderImageURL:          optional(structured.HeaderImage),
		RequirementsMinimum:     optional(structured.RequirementsMinimum),
		RequirementsRecommended: optional(structured.RequirementsRecommended),
		MetacriticScore:         structured.MetacriticScore,
		Tags:                    dedupe(enrichment.Tags),
		Genres:                  dedupe(structured.Genres),
		CrawledAt:               enrichment.FetchedAt,
		DetailsUpdatedAt:        structured.FetchedAt,
	}
	if record.ItemID == 0 {
		record.ItemID = enrichment.ItemID
	}
	if record.CrawledAt.IsZero() {
		record.CrawledAt = now
	}
	if record.DetailsUpdatedAt.IsZero() {
		record.DetailsUpdatedAt = now
	}

	switch {
	case enrichment.Price != nil:
		record.Pricing = &domain.Pricing{
			CurrentPrice:    trimmed(enrichment.Price.CurrentPrice),
			OriginalPrice:   trimmed(enrichment.Price.OriginalPrice),
			DiscountPercent: enrichment.Price.DiscountPercent,
			IsFree:          enrichment.Price.IsFree || structured.IsFree,
			UpdatedAt:       record.CrawledAt,
		}
	case structured.IsFree:
		record.Pricing = &domain.Pricing{IsFree: true, UpdatedAt: record.DetailsUpdatedAt}
	}

	if enrichment.Reviews != nil {
		record.Reviews = &domain.Reviews{ReviewStats: *enrichment.Reviews, UpdatedAt: record.CrawledAt}
	}

	return record
}

func normalizeType(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}

func joinNames(names []string) string {
	return strings.Join(dedupe(names), ", ")
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}

func trimmed(value *string) *string {
	if value == nil {
		return nil
	}
	return optional(*value)
}
