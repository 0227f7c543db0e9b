package publisher

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Webhook POSTs {"key","text","final"} as JSON.
type Webhook struct {
	url string
	hc  *http.Client
}

type webhookPayload struct {
	Key   string `json:"key,omitempty"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// NewWebhook creates a webhook publisher with the given request timeout.
func NewWebhook(url string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{url: url, hc: &http.Client{Timeout: timeout}}
}

// PublishSummary implements Publisher.
func (p *Webhook) PublishSummary(ctx context.Context, text string) error {
	return p.post(ctx, webhookPayload{Text: text, Final: true})
}

// UpdateSummary implements Publisher.
func (p *Webhook) UpdateSummary(ctx context.Context, key, text string) error {
	return p.post(ctx, webhookPayload{Key: key, Text: text})
}

func (p *Webhook) post(ctx context.Context, payload webhookPayload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("%w: encode payload: %w", ErrDelivery, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: create request: %w", ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.hc.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrDelivery, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: webhook returned status %d", ErrDelivery, resp.StatusCode)
	}
	return nil
}
