// internal/delivery/slack.go
package delivery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ErrNoWebhook is returned when Slack delivery is attempted without a URL.
var ErrNoWebhook = errors.New("slack webhook url is not set")

// Slack posts messages to a Slack incoming webhook.
type Slack struct {
	url    string
	client *http.Client
}

// NewSlack creates a Slack notifier. A non-positive timeout defaults to 10s.
func NewSlack(webhookURL string, timeout time.Duration) *Slack {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Slack{
		url:    webhookURL,
		client: &http.Client{Timeout: timeout},
	}
}

// Notify posts {"text": text} and returns the trimmed response body.
func (s *Slack) Notify(ctx context.Context, text string) (string, error) {
	if s.url == "" {
		return "", ErrNoWebhook
	}
	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create slack request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack webhook: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	text = strings.TrimSpace(string(respBody))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("slack webhook failed: %d %s", resp.StatusCode, text)
	}
	return text, nil
}

// Handler adapts s to a registry Handler; the target is ignored.
func (s *Slack) Handler() Handler {
	return func(ctx context.Context, _ string, message string) (string, error) {
		return s.Notify(ctx, message)
	}
}
