package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/tollgate/tollgate/internal/domain"
)

// WebhookSink POSTs the event as JSON with a rendered text field.
type WebhookSink struct {
	name   string
	url    string
	client *http.Client
}

type webhookPayload struct {
	domain.Event
	Text string `json:"text"`
}

func NewWebhookSink(name, url string, client *http.Client) *WebhookSink {
	if client == nil {
		client = http.DefaultClient
	}
	return &WebhookSink{name: name, url: url, client: client}
}

func (s *WebhookSink) Name() string { return s.name }

func (s *WebhookSink) Deliver(ctx context.Context, e domain.Event) error {
	body, err := json.Marshal(webhookPayload{Event: e, Text: Text(e)})
	if err != nil {
		return fmt.Errorf("encoding event: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "tollgate")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", s.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook %s returned %s", s.name, resp.Status)
	}
	return nil
}
