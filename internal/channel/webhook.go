package channel

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/rnovak/newswatch/internal/bus"
	"github.com/rnovak/newswatch/internal/config"
)

const webhookChannelName = "webhook"

// WebhookChannel posts rendered items as JSON to an incoming-webhook URL,
// covering chat platforms without a dedicated connector. Delivery only; the
// platform side cannot issue commands.
type WebhookChannel struct {
	BaseChannel
	url        string
	httpClient *http.Client
}

func NewWebhookChannel(cfg config.WebhookConfig, b *bus.MessageBus) (*WebhookChannel, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, fmt.Errorf("webhook url is required")
	}
	return &WebhookChannel{
		BaseChannel: NewBaseChannel(webhookChannelName, b),
		url:         cfg.URL,
		httpClient:  &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (w *WebhookChannel) Start(ctx context.Context) error {
	log.Printf("[webhook] configured")
	return nil
}

func (w *WebhookChannel) Send(msg bus.OutboundMessage) error {
	payload, err := json.Marshal(map[string]string{"text": msg.Content})
	if err != nil {
		return fmt.Errorf("marshal webhook payload: %w", err)
	}

	req, err := http.NewRequest(http.MethodPost, w.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("post webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 200))
		return fmt.Errorf("webhook http %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

func (w *WebhookChannel) Stop() error {
	return nil
}
