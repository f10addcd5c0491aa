package notify

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/timmy/examforge/internal/domain"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body when a secret is configured.
const SignatureHeader = "X-Examforge-Signature"

// WebhookConfig holds configuration for webhook delivery.
type WebhookConfig struct {
	Secret  string
	Timeout time.Duration
	Retries int
}

// WebhookNotifier posts the event as JSON to the requested URL.
type WebhookNotifier struct {
	client *resty.Client
	secret string
}

// NewWebhookNotifier creates a WebhookNotifier.
func NewWebhookNotifier(cfg *WebhookConfig) *WebhookNotifier {
	client := resty.New()
	client.SetHeader("Content-Type", "application/json")
	client.SetHeader("User-Agent", "examforge-webhook")

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client.SetTimeout(timeout)
	if cfg.Retries > 0 {
		client.SetRetryCount(cfg.Retries)
		client.SetRetryWaitTime(500 * time.Millisecond)
		client.AddRetryCondition(func(r *resty.Response, err error) bool {
			return err != nil || r.StatusCode() >= 500
		})
	}

	return &WebhookNotifier{client: client, secret: cfg.Secret}
}

func (n *WebhookNotifier) Name() string { return "webhook" }

// Notify posts ev to opts.WebhookURL.
func (n *WebhookNotifier) Notify(ctx context.Context, ev *Event, opts domain.NotificationOptions) error {
	if opts.WebhookURL == "" {
		return nil
	}

	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	req := n.client.R().SetContext(ctx).SetBody(body)
	if n.secret != "" {
		req.SetHeader(SignatureHeader, Sign(n.secret, body))
	}

	resp, err := req.Post(opts.WebhookURL)
	if err != nil {
		return fmt.Errorf("failed to call webhook: %w", err)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode())
	}
	return nil
}

// Sign returns the "sha256=<hex>" signature of body.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
