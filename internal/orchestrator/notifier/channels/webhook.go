package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/taskforge/orchestrator/internal/domain/notification"
	"github.com/taskforge/orchestrator/internal/platform/httpx"
)

// WebhookChannel POSTs the notification JSON to a configured outbound URL
// (§4.7). There is no per-user recipient resolution; the URL is the
// recipient.
type WebhookChannel struct {
	url    string
	client *http.Client
}

func NewWebhookChannel(url string) *WebhookChannel {
	return &WebhookChannel{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (c *WebhookChannel) Name() string { return "webhook" }

func (c *WebhookChannel) Deliver(ctx context.Context, n *notification.Notification, _ []uuid.UUID) error {
	if c.url == "" {
		return fmt.Errorf("webhook channel: no URL configured")
	}
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		if httpx.IsRetryableHTTPStatus(resp.StatusCode) {
			return fmt.Errorf("webhook delivery failed with retryable status %d", resp.StatusCode)
		}
		return fmt.Errorf("webhook delivery failed with status %d", resp.StatusCode)
	}
	return nil
}
