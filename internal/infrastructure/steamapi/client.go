// Package steamapi talks to the structured Steam endpoints: the app list and
// the per-app details API.
package steamapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
	"GameHarvester/internal/retry"
)

const (
	DefaultStoreAPIURL = "https://store.steampowered.com/api"
	userAgent          = "GameHarvester/1.0"
)

// Client fetches app details from the store API.
type Client struct {
	client   *http.Client
	baseURL  string
	country  string
	language string
	logger   *slog.Logger
	now      func() time.Time
}

var _ ports.StructuredFetcher = (*Client)(nil)

// Options tweak the request locale.
type Options struct {
	BaseURL  string
	Country  string
	Language string
}

// NewClient wires an HTTP client; zero options fall back to the public store API in English/US.
func NewClient(client *http.Client, opts Options, logger *slog.Logger) *Client {
	if client == nil {
		client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultStoreAPIURL
	}
	if opts.Country == "" {
		opts.Country = "us"
	}
	if opts.Language == "" {
		opts.Language = "english"
	}
	return &Client{
		client:   client,
		baseURL:  strings.TrimSuffix(opts.BaseURL, "/"),
		country:  opts.Country,
		language: opts.Language,
		logger:   logger,
		now:      time.Now,
	}
}

type appDetailsEnvelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
}

type appDetails struct {
	Type                string          `json:"type"`
	Name                string          `json:"name"`
	IsFree              bool            `json:"is_free"`
	ShortDescription    string          `json:"short_description"`
	DetailedDescription string          `json:"detailed_description"`
	AboutTheGame        string          `json:"about_the_game"`
	HeaderImage         string          `json:"header_image"`
	Developers          []string        `json:"developers"`
	Publishers          []string        `json:"publishers"`
	PCRequirements      json.RawMessage `json:"pc_requirements"`
	ReleaseDate         struct {
		ComingSoon bool   `json:"coming_soon"`
		Date       string `json:"date"`
	} `json:"release_date"`
	Metacritic *struct {
		Score int `json:"score"`
	} `json:"metacritic"`
	Genres []struct {
		Description string `json:"description"`
	} `json:"genres"`
}

type requirements struct {
	Minimum     string `json:"minimum"`
	Recommended string `json:"recommended"`
}

// FetchStructured requests appdetails for id. Steam answers throttling with
// 403 as often as 429, so both classify as rate limiting.
func (c *Client) FetchStructured(ctx context.Context, id domain.ItemID) (domain.StructuredRecord, error) {
	endpoint, err := c.detailsURL(id)
	if err != nil {
		return domain.StructuredRecord{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.StructuredRecord{}, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return domain.StructuredRecord{}, fmt.Errorf("request appdetails %d: %w", id, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.StructuredRecord{}, responseError(resp, "appdetails")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.StructuredRecord{}, fmt.Errorf("read appdetails %d: %w", id, err)
	}

	var envelope map[string]appDetailsEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return domain.StructuredRecord{}, &domain.FetchError{Kind: domain.KindInvalidPage, Message: fmt.Sprintf("decode appdetails: %v", err)}
	}

	entry, ok := envelope[id.String()]
	if !ok || !entry.Success || len(entry.Data) == 0 {
		return domain.StructuredRecord{}, &domain.FetchError{Kind: domain.KindInvalidPage, Message: "appdetails reported no data"}
	}

	var details appDetails
	if err := json.Unmarshal(entry.Data, &details); err != nil {
		return domain.StructuredRecord{}, &domain.FetchError{Kind: domain.KindInvalidPage, Message: fmt.Sprintf("decode app data: %v", err)}
	}

	c.debug("appdetails fetched", "item_id", id, "type", details.Type)
	return c.toRecord(id, details), nil
}

func (c *Client) detailsURL(id domain.ItemID) (string, error) {
	parsed, err := url.Parse(c.baseURL + "/appdetails")
	if err != nil {
		return "", fmt.Errorf("invalid store api url %s: %w", c.baseURL, err)
	}
	query := parsed.Query()
	query.Set("appids", id.String())
	query.Set("cc", c.country)
	query.Set("l", c.language)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func (c *Client) toRecord(id domain.ItemID, d appDetails) domain.StructuredRecord {
	record := domain.StructuredRecord{
		ItemID:              id,
		Type:                d.Type,
		Name:                d.Name,
		ShortDescription:    d.ShortDescription,
		DetailedDescription: htmlToText(d.DetailedDescription),
		AboutTheGame:        htmlToText(d.AboutTheGame),
		ReleaseDate:         d.ReleaseDate.Date,
		ComingSoon:          d.ReleaseDate.ComingSoon,
		Developers:          d.Developers,
		Publishers:          d.Publishers,
		HeaderImage:         d.HeaderImage,
		IsFree:              d.IsFree,
		FetchedAt:           c.now().UTC(),
	}
	if d.Metacritic != nil && d.Metacritic.Score > 0 {
		score := d.Metacritic.Score
		record.MetacriticScore = &score
	}
	for _, g := range d.Genres {
		record.Genres = append(record.Genres, g.Description)
	}

	// An item without requirements sends an empty array instead of an object.
	if trimmed := bytes.TrimSpace(d.PCRequirements); len(trimmed) > 0 && trimmed[0] == '{' {
		var reqs requirements
		if err := json.Unmarshal(trimmed, &reqs); err == nil {
			record.RequirementsMinimum = htmlToText(reqs.Minimum)
			record.RequirementsRecommended = htmlToText(reqs.Recommended)
		}
	}
	return record
}

// htmlToText flattens an HTML fragment into newline separated text.
func htmlToText(fragment string) string {
	if !strings.Contains(fragment, "<") {
		return strings.TrimSpace(fragment)
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return strings.TrimSpace(fragment)
	}
	doc.Find("br").ReplaceWithHtml("\n")
	doc.Find("li, p, div, h1, h2, h3, h4, h5, h6").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml("\n")
	})

	lines := strings.Split(doc.Text(), "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

func responseError(resp *http.Response, what string) *domain.FetchError {
	retryAfter := retry.ParseRetryAfter(resp.Header.Get("Retry-After"))
	if resp.StatusCode == http.StatusForbidden {
		return &domain.FetchError{
			Kind:       domain.KindRateLimit,
			StatusCode: resp.StatusCode,
			RetryAfter: retryAfter,
			Message:    what + " returned " + resp.Status,
		}
	}
	return domain.StatusError(resp.StatusCode, retryAfter, what+" returned "+resp.Status)
}

func (c *Client) debug(msg string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debug(msg, args...)
	}
}
