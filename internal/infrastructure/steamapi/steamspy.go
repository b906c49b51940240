package steamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/idsource"
	"GameHarvester/internal/ports"
)

const (
	DefaultSteamSpyURL = "https://steamspy.com/api.php"
	DefaultReviewsURL  = "https://store.steampowered.com/appreviews"
)

// DefaultSteamSpyRequests are the SteamSpy charts merged by default.
var DefaultSteamSpyRequests = []string{"top100owned", "top100in2weeks", "top100forever"}

// SteamSpyOptions configures the popular-games source. A request is a chart
// name ("top100owned") or a genre listing ("genre:Action"). PerRequest caps
// how many apps each request contributes, busiest first; 0 keeps all.
// MinimumReviews > 0 checks every candidate against the review API.
type SteamSpyOptions struct {
	Endpoint       string
	ReviewsURL     string
	Requests       []string
	PerRequest     int
	MinimumReviews int
}

// SteamSpySource enumerates popular app ids from SteamSpy charts.
type SteamSpySource struct {
	client *http.Client
	opts   SteamSpyOptions
	logger *slog.Logger
}

var _ ports.IDSource = (*SteamSpySource)(nil)

// NewSteamSpySource fills unset options with the public endpoints and charts.
func NewSteamSpySource(client *http.Client, opts SteamSpyOptions, logger *slog.Logger) *SteamSpySource {
	if client == nil {
		client = &http.Client{Timeout: time.Minute}
	}
	if strings.TrimSpace(opts.Endpoint) == "" {
		opts.Endpoint = DefaultSteamSpyURL
	}
	if strings.TrimSpace(opts.ReviewsURL) == "" {
		opts.ReviewsURL = DefaultReviewsURL
	}
	opts.ReviewsURL = strings.TrimSuffix(opts.ReviewsURL, "/")
	if len(opts.Requests) == 0 {
		opts.Requests = DefaultSteamSpyRequests
	}
	return &SteamSpySource{client: client, opts: opts, logger: logger}
}

// Name identifies the source inside the registry.
func (s *SteamSpySource) Name() string {
	return "steamspy"
}

type steamSpyApp struct {
	AppID int64 `json:"appid"`
	CCU   int64 `json:"ccu"`
}

// Enumerate merges the configured charts and, when enabled, drops apps the
// review API reports below the minimum.
func (s *SteamSpySource) Enumerate(ctx context.Context, limit int) ([]domain.ItemID, error) {
	var ids []domain.ItemID
	for _, request := range s.opts.Requests {
		apps, err := s.chart(ctx, request)
		if err != nil {
			return nil, err
		}
		for _, app := range apps {
			ids = append(ids, domain.ItemID(app.AppID))
		}
		s.debug("steamspy chart fetched", "request", request, "apps", len(apps))
	}
	ids = idsource.Normalize(ids, 0)

	if s.opts.MinimumReviews > 0 {
		kept := ids[:0]
		for _, id := range ids {
			total, err := s.totalReviews(ctx, id)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				// The pipeline gates on reviews again; keep what could not be checked.
				s.debug("review check failed", "item_id", id, "error", err)
				kept = append(kept, id)
				continue
			}
			if total >= s.opts.MinimumReviews {
				kept = append(kept, id)
			}
		}
		s.debug("review check done", "candidates", len(ids), "kept", len(kept))
		ids = kept
	}

	return idsource.Normalize(ids, limit), nil
}

func (s *SteamSpySource) chart(ctx context.Context, request string) ([]steamSpyApp, error) {
	params := url.Values{}
	if genre, ok := strings.CutPrefix(request, "genre:"); ok {
		params.Set("request", "genre")
		params.Set("genre", genre)
	} else {
		params.Set("request", request)
	}

	var payload map[string]steamSpyApp
	if err := s.getJSON(ctx, s.opts.Endpoint+"?"+params.Encode(), "steamspy "+request, &payload); err != nil {
		return nil, err
	}

	apps := make([]steamSpyApp, 0, len(payload))
	for _, app := range payload {
		if app.AppID > 0 {
			apps = append(apps, app)
		}
	}
	sort.Slice(apps, func(i, j int) bool {
		if apps[i].CCU != apps[j].CCU {
			return apps[i].CCU > apps[j].CCU
		}
		return apps[i].AppID < apps[j].AppID
	})
	if s.opts.PerRequest > 0 && len(apps) > s.opts.PerRequest {
		apps = apps[:s.opts.PerRequest]
	}
	return apps, nil
}

type appReviewsResponse struct {
	Success      int `json:"success"`
	QuerySummary struct {
		TotalReviews int `json:"total_reviews"`
	} `json:"query_summary"`
}

func (s *SteamSpySource) totalReviews(ctx context.Context, id domain.ItemID) (int, error) {
	params := url.Values{}
	params.Set("json", "1")
	params.Set("language", "all")
	params.Set("filter", "recent")
	params.Set("num_per_page", "1")

	var payload appReviewsResponse
	endpoint := fmt.Sprintf("%s/%d?%s", s.opts.ReviewsURL, id, params.Encode())
	if err := s.getJSON(ctx, endpoint, "app reviews", &payload); err != nil {
		return 0, err
	}
	if payload.Success != 1 {
		return 0, &domain.FetchError{Kind: domain.KindInvalidPage, Message: fmt.Sprintf("app reviews %d: unsuccessful response", id)}
	}
	return payload.QuerySummary.TotalReviews, nil
}

func (s *SteamSpySource) getJSON(ctx context.Context, endpoint, what string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", what, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return responseError(resp, what)
	}
	if err := json.NewDecoder(resp.Body).Decode(dest); err != nil {
		return fmt.Errorf("decode %s: %w", what, err)
	}
	return nil
}

func (s *SteamSpySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
