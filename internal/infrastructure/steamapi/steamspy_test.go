package steamapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/retry"
)

type steamSpyServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []string
}

func newSteamSpyServer(t *testing.T, reviews map[string]int) *steamSpyServer {
	t.Helper()
	s := &steamSpyServer{}
	mux := http.NewServeMux()
	mux.HandleFunc("/api.php", func(w http.ResponseWriter, r *http.Request) {
		request := r.URL.Query().Get("request")
		s.mu.Lock()
		s.requests = append(s.requests, request+"/"+r.URL.Query().Get("genre"))
		s.mu.Unlock()
		switch request {
		case "top100owned":
			_, _ = io.WriteString(w, `{"570":{"appid":570,"name":"Dota 2","ccu":600000},"730":{"appid":730,"name":"CS","ccu":900000}}`)
		case "top100in2weeks":
			_, _ = io.WriteString(w, `{"730":{"appid":730,"ccu":900000},"1091500":{"appid":1091500,"ccu":20000}}`)
		case "genre":
			_, _ = io.WriteString(w, `{"10":{"appid":10,"ccu":5},"20":{"appid":20,"ccu":50},"30":{"appid":30,"ccu":500}}`)
		default:
			w.WriteHeader(http.StatusBadRequest)
		}
	})
	mux.HandleFunc("/appreviews/", func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimPrefix(r.URL.Path, "/appreviews/")
		assert.Equal(t, "all", r.URL.Query().Get("language"))
		total, ok := reviews[id]
		if !ok {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = fmt.Fprintf(w, `{"success":1,"query_summary":{"total_reviews":%d}}`, total)
	})
	s.Server = httptest.NewServer(mux)
	t.Cleanup(s.Close)
	return s
}

func (s *steamSpyServer) seen() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.requests...)
}

func TestSteamSpySourceMergesCharts(t *testing.T) {
	t.Parallel()

	server := newSteamSpyServer(t, nil)
	src := NewSteamSpySource(server.Client(), SteamSpyOptions{
		Endpoint: server.URL + "/api.php",
		Requests: []string{"top100owned", "top100in2weeks"},
	}, nil)
	assert.Equal(t, "steamspy", src.Name())

	ids, err := src.Enumerate(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{570, 730, 1091500}, ids)

	limited, err := src.Enumerate(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{570, 730}, limited)
}

func TestSteamSpySourceGenreRequestKeepsBusiest(t *testing.T) {
	t.Parallel()

	server := newSteamSpyServer(t, nil)
	src := NewSteamSpySource(server.Client(), SteamSpyOptions{
		Endpoint:   server.URL + "/api.php",
		Requests:   []string{"genre:Action"},
		PerRequest: 2,
	}, nil)

	ids, err := src.Enumerate(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{20, 30}, ids)
	assert.Equal(t, []string{"genre/Action"}, server.seen())
}

func TestSteamSpySourceChecksReviewCounts(t *testing.T) {
	t.Parallel()

	// 1091500 has no review fixture: the check fails and the id is kept.
	server := newSteamSpyServer(t, map[string]int{"570": 150, "730": 99})
	src := NewSteamSpySource(server.Client(), SteamSpyOptions{
		Endpoint:       server.URL + "/api.php",
		ReviewsURL:     server.URL + "/appreviews/",
		Requests:       []string{"top100owned", "top100in2weeks"},
		MinimumReviews: 100,
	}, nil)

	ids, err := src.Enumerate(context.Background(), 0)
	require.NoError(t, err)
	assert.Equal(t, []domain.ItemID{570, 1091500}, ids)
}

func TestSteamSpySourceChartError(t *testing.T) {
	t.Parallel()

	server := newSteamSpyServer(t, nil)
	_, err := NewSteamSpySource(server.Client(), SteamSpyOptions{
		Endpoint: server.URL + "/api.php",
		Requests: []string{"bogus"},
	}, nil).Enumerate(context.Background(), 0)
	require.Error(t, err)
	assert.Equal(t, domain.KindHTTP, retry.Classify(err))
}
