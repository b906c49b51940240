package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"GameHarvester/internal/domain"
)

const (
	ansiReset  = "\x1b[0m"
	ansiRed    = "\x1b[31m"
	ansiGreen  = "\x1b[32m"
	ansiYellow = "\x1b[33m"
)

var keyValueAligns = []columnAlignment{alignLeft, alignRight}

func runStatus(s domain.RunSummary) (string, string) {
	switch {
	case s.FatalError != "":
		return "failed", ansiRed
	case s.Interrupted:
		return "interrupted", ansiYellow
	default:
		return "finished", ansiGreen
	}
}

func renderSummary(s domain.RunSummary, colorize bool) string {
	status, color := runStatus(s)
	headline := fmt.Sprintf("Run %s %s in %s", s.RunID, status, s.Elapsed.Round(time.Millisecond))
	if colorize {
		headline = color + headline + ansiReset
	}

	rows := [][]string{
		{"Enumerated", strconv.Itoa(s.Enumerated)},
		{"Processed", strconv.Itoa(s.Processed)},
		{"Persisted", strconv.Itoa(s.Persisted)},
		{"Filtered", strconv.Itoa(s.Filtered)},
		{"Failed", strconv.Itoa(s.Failed)},
		{"Success rate", fmt.Sprintf("%.1f%%", s.SuccessRate*100)},
		{"Batches", strconv.Itoa(s.Writer.Batches)},
	}
	if s.NotStarted > 0 {
		rows = append(rows, []string{"Not started", strconv.Itoa(s.NotStarted)})
	}
	for _, reason := range sortedKeys(s.FilteredBy) {
		rows = append(rows, []string{"Filtered: " + reason, strconv.Itoa(s.FilteredBy[reason])})
	}
	kinds := make(map[string]int, len(s.FailedBy))
	for kind, n := range s.FailedBy {
		kinds[string(kind)] = n
	}
	for _, kind := range sortedKeys(kinds) {
		rows = append(rows, []string{"Failed: " + kind, strconv.Itoa(kinds[kind])})
	}

	var b strings.Builder
	b.WriteString(headline)
	b.WriteString("\n")
	b.WriteString(renderTable([]string{"Metric", "Value"}, rows, keyValueAligns))
	if s.ManifestKey != "" {
		b.WriteString("\nFailure manifest: ")
		b.WriteString(s.ManifestKey)
	}
	if s.FatalError != "" {
		b.WriteString("\nError: ")
		b.WriteString(s.FatalError)
	}
	return b.String()
}

func renderStats(stats domain.CatalogStats) string {
	var b strings.Builder
	b.WriteString(renderTable([]string{"Catalog", "Count"}, [][]string{
		{"Games", strconv.Itoa(stats.TotalGames)},
		{"Free games", strconv.Itoa(stats.FreeGames)},
		{"Developers", strconv.Itoa(stats.TotalDevelopers)},
		{"With price", strconv.Itoa(stats.PricedGames)},
		{"With reviews", strconv.Itoa(stats.ReviewedGames)},
	}, keyValueAligns))
	if len(stats.PopularGenres) > 0 {
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Genre", "Games"}, namedCountRows(stats.PopularGenres), keyValueAligns))
	}
	if len(stats.PopularTags) > 0 {
		b.WriteString("\n")
		b.WriteString(renderTable([]string{"Tag", "Games"}, namedCountRows(stats.PopularTags), keyValueAligns))
	}
	return b.String()
}

func renderGame(g domain.MergedGameRecord) string {
	rows := [][]string{
		{"App ID", strconv.FormatInt(int64(g.ItemID), 10)},
		{"Title", g.Title},
		{"Type", g.ItemType},
		{"Developer", deref(g.Developer)},
		{"Publisher", deref(g.Publisher)},
		{"Release date", releaseDate(g)},
		{"Metacritic", derefInt(g.MetacriticScore)},
		{"Genres", strings.Join(g.Genres, ", ")},
		{"Tags", strings.Join(g.Tags, ", ")},
	}
	if p := g.Pricing; p != nil {
		price := deref(p.CurrentPrice)
		if p.IsFree {
			price = "Free"
		}
		if p.DiscountPercent != nil {
			price = fmt.Sprintf("%s (-%d%% from %s)", price, *p.DiscountPercent, deref(p.OriginalPrice))
		}
		rows = append(rows, []string{"Price", price})
	}
	if r := g.Reviews; r != nil {
		rows = append(rows,
			[]string{"Reviews", reviewLine(r.AllSummary, r.TotalReviewCount, r.AllPositivePercent)},
			[]string{"Recent reviews", reviewLine(r.RecentSummary, r.RecentCount, r.RecentPositivePercent)},
		)
	}
	rows = append(rows, []string{"Crawled", g.CrawledAt.UTC().Format(time.RFC3339)})
	return renderTable([]string{"Field", "Value"}, rows, nil)
}

func renderListings(games []domain.GameListing) string {
	if len(games) == 0 {
		return "No games match."
	}
	rows := make([][]string, 0, len(games))
	for _, g := range games {
		price := deref(g.CurrentPrice)
		if g.IsFree {
			price = "Free"
		}
		discount := "-"
		if g.DiscountPercent != nil {
			discount = fmt.Sprintf("-%d%%", *g.DiscountPercent)
		}
		positive := "-"
		if g.AllPositivePercent != nil {
			positive = fmt.Sprintf("%d%%", *g.AllPositivePercent)
		}
		rows = append(rows, []string{
			strconv.FormatInt(int64(g.ItemID), 10),
			g.Title,
			deref(g.Developer),
			price,
			discount,
			derefInt(g.TotalReviewCount),
			positive,
		})
	}
	return renderTable(
		[]string{"App ID", "Title", "Developer", "Price", "Discount", "Reviews", "Positive"},
		rows,
		[]columnAlignment{alignRight, alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight},
	)
}

func releaseDate(g domain.MergedGameRecord) string {
	switch {
	case g.ReleaseDate != nil:
		return g.ReleaseDate.Format("2006-01-02")
	case g.ReleaseDateText != nil:
		return *g.ReleaseDateText
	case g.ComingSoon:
		return "coming soon"
	}
	return "-"
}

func reviewLine(summary *string, count, percent *int) string {
	if summary == nil && count == nil {
		return "-"
	}
	var parts []string
	if summary != nil {
		parts = append(parts, *summary)
	}
	if count != nil {
		parts = append(parts, fmt.Sprintf("%d reviews", *count))
	}
	if percent != nil {
		parts = append(parts, fmt.Sprintf("%d%% positive", *percent))
	}
	return strings.Join(parts, ", ")
}

func namedCountRows(counts []domain.NamedCount) [][]string {
	rows := make([][]string, 0, len(counts))
	for _, c := range counts {
		rows = append(rows, []string{c.Name, strconv.Itoa(c.Count)})
	}
	return rows
}

func sortedKeys(m map[string]int) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func deref(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func derefInt(n *int) string {
	if n == nil {
		return "-"
	}
	return strconv.Itoa(*n)
}
