package feishu

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"order-bridge/internal/domain"
	"order-bridge/internal/domain/ports/adapter"
)

var _ adapter.Alerter = (*WebhookAlerter)(nil)

// WebhookAlerter posts plain-text messages to a Feishu custom bot webhook.
type WebhookAlerter struct {
	url    string
	client *http.Client
}

func NewWebhookAlerter(url string) *WebhookAlerter {
	return &WebhookAlerter{url: url, client: &http.Client{Timeout: 10 * time.Second}}
}

func (a *WebhookAlerter) Name() string { return "feishu_webhook" }

func (a *WebhookAlerter) Alert(ctx context.Context, text string) error {
	body, _ := json.Marshal(map[string]any{
		"msg_type": "text",
		"content":  map[string]string{"text": text},
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: webhook: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode >= 300 {
		return &domain.HTTPError{Op: "webhook", StatusCode: resp.StatusCode, Msg: string(raw)}
	}
	// The bot endpoint answers 200 with a non-zero code for bad payloads or signatures.
	var out apiHead
	if json.Unmarshal(raw, &out) == nil && out.Code != 0 {
		return &domain.HTTPError{Op: "webhook", StatusCode: resp.StatusCode, Code: out.Code, Msg: out.Msg}
	}
	return nil
}
