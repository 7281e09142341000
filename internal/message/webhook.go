// internal/message/webhook.go
//
// JSON webhook delivery with retries (hashicorp/go-retryablehttp).
//
// Context
//   The relay can mirror each accepted submission to an external endpoint,
//   typically a CRM intake or a chat channel.  Connection errors and 5xx
//   answers are retried with exponential backoff; a 4xx is final.
//
//------------------------------------------------------------------------------

package message

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	retryablehttp "github.com/hashicorp/go-retryablehttp"
	"go.uber.org/zap"
)

// WebhookSender posts JSON payloads to one URL.
type WebhookSender struct {
	url    string
	client *retryablehttp.Client
}

// WebhookOption tunes a WebhookSender.
type WebhookOption func(*retryablehttp.Client)

// WithRetry sets the retry budget and the backoff bounds.
func WithRetry(max int, waitMin, waitMax time.Duration) WebhookOption {
	return func(c *retryablehttp.Client) {
		c.RetryMax = max
		c.RetryWaitMin = waitMin
		c.RetryWaitMax = waitMax
	}
}

// WithTimeout bounds each attempt.
func WithTimeout(d time.Duration) WebhookOption {
	return func(c *retryablehttp.Client) { c.HTTPClient.Timeout = d }
}

// NewWebhookSender returns a sender for url.  log receives retry notices.
func NewWebhookSender(url string, log *zap.SugaredLogger, opts ...WebhookOption) *WebhookSender {
	c := retryablehttp.NewClient()
	c.RetryMax = 3
	c.HTTPClient.Timeout = 10 * time.Second
	if log != nil {
		c.Logger = zapLeveled{log}
	} else {
		c.Logger = nil
	}
	for _, o := range opts {
		o(c)
	}
	return &WebhookSender{url: url, client: c}
}

// URL returns the target endpoint.
func (s *WebhookSender) URL() string { return s.url }

// Post marshals payload and delivers it.  Any non-2xx final answer is an
// error.
func (s *WebhookSender) Post(ctx context.Context, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("webhook marshal: %w", err)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodPost, s.url, body)
	if err != nil {
		return fmt.Errorf("webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("webhook post: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 64<<10))

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return fmt.Errorf("webhook post: unexpected status %d", res.StatusCode)
	}
	return nil
}

// zapLeveled adapts a sugared logger to retryablehttp.LeveledLogger.
type zapLeveled struct{ l *zap.SugaredLogger }

func (z zapLeveled) Error(msg string, kv ...interface{}) { z.l.Errorw(msg, kv...) }
func (z zapLeveled) Info(msg string, kv ...interface{})  { z.l.Infow(msg, kv...) }
func (z zapLeveled) Debug(msg string, kv ...interface{}) { z.l.Debugw(msg, kv...) }
func (z zapLeveled) Warn(msg string, kv ...interface{})  { z.l.Warnw(msg, kv...) }
