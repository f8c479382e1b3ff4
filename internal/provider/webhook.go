package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/notifyhub/notification-scheduler/internal/domain"
)

// WebhookTransport delivers batches by POSTing them to a per-lane URL.
// URLs are injected from config so tests can point to a local mock.
type WebhookTransport struct {
	urls       map[domain.Lane]string
	httpClient *http.Client
}

func NewWebhookTransport(priorityURL, regularURL string, timeout time.Duration) *WebhookTransport {
	return &WebhookTransport{
		urls: map[domain.Lane]string{
			domain.LanePriority: priorityURL,
			domain.LaneRegular:  regularURL,
		},
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Send posts the batch and treats any 2xx response as accepted.
func (p *WebhookTransport) Send(ctx context.Context, batch domain.Batch) error {
	url, ok := p.urls[batch.Lane]
	if !ok || url == "" {
		return fmt.Errorf("no webhook configured for %s lane", batch.Lane)
	}

	body, err := json.Marshal(SendRequest{
		Lane:    batch.Lane,
		Ordered: batch.Ordered,
		Entries: batch.Entries,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("unexpected webhook status: %d", resp.StatusCode)
	}
	return nil
}

// compile-time check that WebhookTransport implements Transport
var _ Transport = (*WebhookTransport)(nil)
