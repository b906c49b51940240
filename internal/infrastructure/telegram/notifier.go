// Package telegram posts run summaries to a chat through the Bot API.
package telegram

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"GameHarvester/internal/domain"
	"GameHarvester/internal/ports"
)

const defaultAPIURL = "https://api.telegram.org"

// Notifier sends run summaries to a Telegram chat via bot API.
type Notifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
}

var _ ports.Notifier = (*Notifier)(nil)

// NewNotifier registers bot token and chat identifier.
func NewNotifier(botToken, chatID string) *Notifier {
	return &Notifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  defaultAPIURL,
		client:   &http.Client{Timeout: 5 * time.Second},
	}
}

// WithBaseURL points the notifier at another Bot API host.
func (n *Notifier) WithBaseURL(baseURL string) *Notifier {
	if baseURL != "" {
		n.baseURL = strings.TrimSuffix(baseURL, "/")
	}
	return n
}

// PublishSummary posts a Markdown summary of a finished run.
func (n *Notifier) PublishSummary(ctx context.Context, summary domain.RunSummary) error {
	if n.botToken == "" || n.chatID == "" || n.client == nil {
		return fmt.Errorf("telegram notifier misconfigured")
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	form := url.Values{}
	form.Set("chat_id", n.chatID)
	form.Set("text", FormatSummary(summary))
	form.Set("parse_mode", "Markdown")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("telegram error: %s", resp.Status)
	}

	return nil
}

// FormatSummary renders the message body.
func FormatSummary(s domain.RunSummary) string {
	var b strings.Builder

	status := "finished"
	switch {
	case s.FatalError != "":
		status = "failed"
	case s.Interrupted:
		status = "interrupted"
	}
	fmt.Fprintf(&b, "*Game harvest %s*\n", status)
	fmt.Fprintf(&b, "Run %s in %s\n\n", code(s.RunID), s.Elapsed.Round(time.Second))
	fmt.Fprintf(&b, "Enumerated: %d\nProcessed: %d\nPersisted: %d\nFiltered: %d\nFailed: %d\n",
		s.Enumerated, s.Processed, s.Persisted, s.Filtered, s.Failed)
	fmt.Fprintf(&b, "Success rate: %.1f%%\n", s.SuccessRate*100)

	if len(s.FailedBy) > 0 {
		kinds := make([]string, 0, len(s.FailedBy))
		for kind := range s.FailedBy {
			kinds = append(kinds, string(kind))
		}
		sort.Strings(kinds)
		b.WriteString("\nFailures:\n")
		for _, kind := range kinds {
			fmt.Fprintf(&b, "- %s: %d\n", code(kind), s.FailedBy[domain.ErrorKind(kind)])
		}
	}
	if s.NotStarted > 0 {
		fmt.Fprintf(&b, "\nNot started: %d\n", s.NotStarted)
	}
	if s.ManifestKey != "" {
		fmt.Fprintf(&b, "Manifest: %s\n", code(s.ManifestKey))
	}
	if s.FatalError != "" {
		fmt.Fprintf(&b, "Error: %s\n", code(s.FatalError))
	}
	return b.String()
}

// code wraps free text in a Markdown code span. Legacy Markdown has no
// escapes inside spans, so backticks are dropped.
func code(value string) string {
	return "`" + strings.ReplaceAll(value, "`", "'") + "`"
}
