// Package parser scrapes the HTML store pages for enrichment data.
package parser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
	"GameHarvester/internal/retry"
)

const (
	DefaultStoreURL = "https://store.steampowered.com"
	maxTagLength    = 30
)

var (
	titleSelectors = []string{".apphub_AppName", "h1.pageheader", ".game_title h1"}
	tagSelectors   = []string{"a.app_tag", ".popular_tags a"}

	reviewCountExpr   = regexp.MustCompile(`\((\d{1,3}(?:,\d{3})*)\)`)
	reviewPercentExpr = regexp.MustCompile(`(\d+)%\s+of\s+the\s+[\d,]+`)
	reviewDescExpr    = regexp.MustCompile(`(\d+)%\s+of\s+the\s+([\d,]+)\s+user\s+reviews`)
	fewReviewsExpr    = regexp.MustCompile(`(?i)(\d[\d,]*)\s+user\s+reviews?\b`)
	discountExpr      = regexp.MustCompile(`-(\d+)%`)

	ageGateCookies = []*http.Cookie{
		{Name: "birthtime", Value: "1"},
		{Name: "mature_content", Value: "1"},
		{Name: "lastagecheckage", Value: "1-January-1970"},
	}
)

// StoreCrawler scrapes the public store page of an item for the data the
// structured API does not expose: user tags, review statistics and the
// localized price block.
type StoreCrawler struct {
	client  *http.Client
	baseURL string
	logger  *slog.Logger
	now     func() time.Time
}

var _ ports.EnrichmentFetcher = (*StoreCrawler)(nil)

// NewStoreCrawler wires an HTTP client; baseURL defaults to the public store.
func NewStoreCrawler(client *http.Client, baseURL string, logger *slog.Logger) *StoreCrawler {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if baseURL == "" {
		baseURL = DefaultStoreURL
	}
	return &StoreCrawler{
		client:  client,
		baseURL: strings.TrimSuffix(baseURL, "/"),
		logger:  logger,
		now:     time.Now,
	}
}

// FetchEnrichment downloads the store page of id, passing the age gate when
// one is shown, and extracts tags, reviews and pricing.
func (s *StoreCrawler) FetchEnrichment(ctx context.Context, id domain.ItemID) (domain.RawEnrichment, error) {
	pageURL := fmt.Sprintf("%s/app/%d/", s.baseURL, id)

	doc, finalURL, err := s.fetchDocument(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return domain.RawEnrichment{}, err
	}

	if isAgeGate(doc, finalURL) {
		s.debug("age gate detected", "item_id", id, "url", finalURL)
		form := url.Values{}
		form.Set("snr", "1_agecheck_agecheck__age-gate")
		form.Set("ageDay", "1")
		form.Set("ageMonth", "January")
		form.Set("ageYear", "1990")

		doc, finalURL, err = s.fetchDocument(ctx, http.MethodPost, finalURL, form)
		if err != nil {
			return domain.RawEnrichment{}, err
		}
		if isAgeGate(doc, finalURL) {
			return domain.RawEnrichment{}, &domain.FetchError{Kind: domain.KindAgeVerification, Message: "age gate persisted after verification"}
		}
	}

	title := extractTitle(doc)
	if title == "" {
		return domain.RawEnrichment{}, &domain.FetchError{Kind: domain.KindInvalidPage, Message: "store page has no title"}
	}

	return domain.RawEnrichment{
		ItemID:    id,
		Title:     title,
		Tags:      extractTags(doc),
		Reviews:   extractReviews(doc),
		Price:     extractPrice(doc),
		FetchedAt: s.now().UTC(),
	}, nil
}

func (s *StoreCrawler) fetchDocument(ctx context.Context, method, pageURL string, form url.Values) (*goquery.Document, string, error) {
	var body *strings.Reader
	if form != nil {
		body = strings.NewReader(form.Encode())
	} else {
		body = strings.NewReader("")
	}

	req, err := http.NewRequestWithContext(ctx, method, pageURL, body)
	if err != nil {
		return nil, "", fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (compatible; GameHarvester/1.0)")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	if form != nil {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	for _, c := range ageGateCookies {
		req.AddCookie(c)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("request store page: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		retryAfter := retry.ParseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, "", domain.StatusError(resp.StatusCode, retryAfter, "store returned "+resp.Status)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("parse document: %w", err)
	}

	return doc, resp.Request.URL.String(), nil
}

func isAgeGate(doc *goquery.Document, finalURL string) bool {
	if strings.Contains(finalURL, "agecheck") {
		return true
	}
	return doc.Find("#app_agegate, .agegate_birthday_selector, #agecheck_form").Length() > 0
}

func extractTitle(doc *goquery.Document) string {
	for _, selector := range titleSelectors {
		if title := strings.TrimSpace(doc.Find(selector).First().Text()); title != "" {
			return title
		}
	}
	return ""
}

// extractTags takes the first selector that yields anything.
func extractTags(doc *goquery.Document) []string {
	for _, selector := range tagSelectors {
		found := doc.Find(selector)
		if found.Length() == 0 {
			continue
		}

		var tags []string
		seen := map[string]struct{}{}
		found.Each(func(_ int, sel *goquery.Selection) {
			tag := strings.TrimSpace(sel.Text())
			if tag == "" || tag == "+" || len(tag) >= maxTagLength {
				return
			}
			if _, ok := seen[tag]; ok {
				return
			}
			seen[tag] = struct{}{}
			tags = append(tags, tag)
		})
		return tags
	}
	return nil
}

func extractReviews(doc *goquery.Document) *domain.ReviewStats {
	stats := &domain.ReviewStats{}
	found := false

	summaries := doc.Find(".game_review_summary")
	switch {
	case summaries.Length() >= 2:
		stats.RecentSummary = textPtr(summaries.Eq(0).Text())
		stats.AllSummary = textPtr(summaries.Eq(1).Text())
	case summaries.Length() == 1:
		stats.AllSummary = textPtr(summaries.Eq(0).Text())
	}
	if stats.RecentSummary != nil || stats.AllSummary != nil {
		found = true
	}

	doc.Find(".user_reviews_summary_row").Each(func(_ int, row *goquery.Selection) {
		text := row.Text()
		if tip, ok := row.Attr("data-tooltip-html"); ok {
			text += " " + tip
		}

		var count, percent **int
		switch {
		case strings.Contains(text, "Recent Reviews"):
			count, percent = &stats.RecentCount, &stats.RecentPositivePercent
		case strings.Contains(text, "All Reviews"):
			count, percent = &stats.TotalReviewCount, &stats.AllPositivePercent
		default:
			return
		}
		found = true

		if m := reviewCountExpr.FindStringSubmatch(text); m != nil {
			*count = atoiPtr(m[1])
		} else if m := fewReviewsExpr.FindStringSubmatch(text); m != nil {
			*count = atoiPtr(m[1])
		}
		if m := reviewPercentExpr.FindStringSubmatch(text); m != nil {
			*percent = atoiPtr(m[1])
		}
	})

	if stats.TotalReviewCount == nil {
		doc.Find(".responsive_reviewdesc").EachWithBreak(func(_ int, sel *goquery.Selection) bool {
			m := reviewDescExpr.FindStringSubmatch(sel.Text())
			if m == nil {
				return true
			}
			stats.AllPositivePercent = atoiPtr(m[1])
			stats.TotalReviewCount = atoiPtr(m[2])
			found = true
			return false
		})
	}

	// Below ten reviews the summary states the count ("3 user reviews").
	if stats.TotalReviewCount == nil && stats.AllSummary != nil {
		if m := fewReviewsExpr.FindStringSubmatch(*stats.AllSummary); m != nil {
			stats.TotalReviewCount = atoiPtr(m[1])
		} else if strings.EqualFold(*stats.AllSummary, "No user reviews") {
			zero := 0
			stats.TotalReviewCount = &zero
		}
	}

	if !found {
		return nil
	}
	return stats
}

func extractPrice(doc *goquery.Document) *domain.PriceSnapshot {
	price := &domain.PriceSnapshot{}

	purchase := doc.Find(".game_purchase_price")
	isFree := false
	purchase.EachWithBreak(func(_ int, sel *goquery.Selection) bool {
		if strings.Contains(strings.ToLower(sel.Text()), "free") {
			isFree = true
			return false
		}
		return true
	})
	if isFree {
		free := "Free"
		price.IsFree = true
		price.CurrentPrice = &free
		return price
	}

	for _, selector := range []string{".game_purchase_price", ".discount_final_price"} {
		text := strings.TrimSpace(doc.Find(selector).First().Text())
		if text != "" && text != "--" {
			price.CurrentPrice = &text
			break
		}
	}
	price.OriginalPrice = textPtr(doc.Find(".discount_original_price").First().Text())
	if m := discountExpr.FindStringSubmatch(doc.Find(".discount_pct").First().Text()); m != nil {
		price.DiscountPercent = atoiPtr(m[1])
	}

	if price.CurrentPrice == nil && price.OriginalPrice == nil && price.DiscountPercent == nil {
		return nil
	}
	return price
}

func textPtr(text string) *string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	return &text
}

func atoiPtr(digits string) *int {
	n, err := strconv.Atoi(strings.ReplaceAll(digits, ",", ""))
	if err != nil {
		return nil
	}
	return &n
}

func (s *StoreCrawler) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
