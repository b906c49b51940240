package steamapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/idsource"
	"GameHarvester/internal/ports"
)

const DefaultAppListURL = "https://api.steampowered.com/ISteamApps/GetAppList/v0002/"

// AppListSource enumerates every app id known to the platform.
type AppListSource struct {
	client   *http.Client
	endpoint string
	logger   *slog.Logger
}

var _ ports.IDSource = (*AppListSource)(nil)

// NewAppListSource builds the remote listing source; endpoint defaults to the public GetAppList.
func NewAppListSource(client *http.Client, endpoint string, logger *slog.Logger) *AppListSource {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	if strings.TrimSpace(endpoint) == "" {
		endpoint = DefaultAppListURL
	}
	return &AppListSource{client: client, endpoint: endpoint, logger: logger}
}

// Name identifies the source inside the registry.
func (s *AppListSource) Name() string {
	return "applist"
}

type appListResponse struct {
	AppList struct {
		Apps []struct {
			AppID int64  `json:"appid"`
			Name  string `json:"name"`
		} `json:"apps"`
	} `json:"applist"`
}

// Enumerate downloads the listing and returns its distinct ids in ascending order.
func (s *AppListSource) Enumerate(ctx context.Context, limit int) ([]domain.ItemID, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request app list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, responseError(resp, "app list")
	}

	var payload appListResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode app list: %w", err)
	}

	ids := make([]domain.ItemID, 0, len(payload.AppList.Apps))
	for _, app := range payload.AppList.Apps {
		ids = append(ids, domain.ItemID(app.AppID))
	}
	normalized := idsource.Normalize(ids, limit)

	if s.logger != nil {
		s.logger.Debug("app list fetched", "listed", len(ids), "distinct", len(normalized))
	}
	return normalized, nil
}
