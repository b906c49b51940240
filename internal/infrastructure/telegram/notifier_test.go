package telegram

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"GameHarvester/internal/domain"
)

func sampleSummary() domain.RunSummary {
	return domain.RunSummary{
		RunID:       "run-7",
		Elapsed:     90 * time.Second,
		Enumerated:  3,
		Processed:   3,
		Persisted:   1,
		Filtered:    1,
		Failed:      1,
		FailedBy:    map[domain.ErrorKind]int{domain.KindRateLimit: 1},
		SuccessRate: 1.0 / 3,
		ManifestKey: "failed_items_20250301T000000Z_run-7.json",
	}
}

func TestPublishSummary(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "chat", r.PostForm.Get("chat_id"))
		assert.Contains(t, r.PostForm.Get("text"), "Persisted: 1")
		assert.Contains(t, r.PostForm.Get("text"), "`rate_limit_exceeded`: 1")
		assert.Equal(t, "Markdown", r.PostForm.Get("parse_mode"))
	}))
	defer server.Close()

	n := NewNotifier("TOKEN", "chat").WithBaseURL(server.URL)
	require.NoError(t, n.PublishSummary(context.Background(), sampleSummary()))
}

func TestPublishSummaryErrors(t *testing.T) {
	t.Parallel()

	assert.Error(t, NewNotifier("", "").PublishSummary(context.Background(), sampleSummary()))

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	err := NewNotifier("TOKEN", "chat").WithBaseURL(server.URL).PublishSummary(context.Background(), sampleSummary())
	assert.ErrorContains(t, err, "401")
}

func TestFormatSummaryStatus(t *testing.T) {
	t.Parallel()

	s := sampleSummary()
	assert.Contains(t, FormatSummary(s), "harvest finished")

	s.Interrupted = true
	s.NotStarted = 4
	text := FormatSummary(s)
	assert.Contains(t, text, "harvest interrupted")
	assert.Contains(t, text, "Not started: 4")

	s.FatalError = "storage unavailable"
	assert.Contains(t, FormatSummary(s), "harvest failed")
}

func TestFormatSummaryKeepsMarkdownBalanced(t *testing.T) {
	t.Parallel()

	s := sampleSummary()
	s.FailedBy = map[domain.ErrorKind]int{
		domain.KindStorageUnavailable: 4,
		domain.KindHTTP:               1,
		domain.KindInvalidPage:        2,
		domain.KindTransient:          3,
	}
	s.FatalError = "flush failed: write `games`: storage_unavailable"

	text := FormatSummary(s)
	assert.Contains(t, text, "- `storage_unavailable`: 4")

	// Outside code spans legacy Markdown treats _ and * as entity markers.
	spans := strings.Split(text, "`")
	require.Equal(t, 1, len(spans)%2, "unbalanced code spans in %q", text)
	for i := 0; i < len(spans); i += 2 {
		assert.Zero(t, strings.Count(spans[i], "_"), "bare underscore in %q", spans[i])
		assert.Zero(t, strings.Count(spans[i], "*")%2, "unpaired asterisk in %q", spans[i])
	}
}
