package notifications

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// WebhookSender POSTs messages as JSON to an HTTP endpoint. It serves the
// webhook channel directly and the sms and push channels when a provider
// exposes an HTTP gateway.
//
// If Address looks like an absolute URL it is used as the endpoint,
// otherwise the message is sent to the configured endpoint.
type WebhookSender struct {
	client     *http.Client
	endpoint   string
	secret     string
	maxRetries int
	backoff    time.Duration
	maxBackoff time.Duration
	headers    map[string]string
}

// WebhookOption configures a WebhookSender.
type WebhookOption func(*WebhookSender)

// WithWebhookClient sets the HTTP client. Default has a 30s timeout.
func WithWebhookClient(c *http.Client) WebhookOption {
	return func(w *WebhookSender) {
		w.client = c
	}
}

// WithWebhookEndpoint sets the URL used when the address is not a URL.
func WithWebhookEndpoint(url string) WebhookOption {
	return func(w *WebhookSender) {
		w.endpoint = url
	}
}

// WithWebhookSecret enables HMAC-SHA256 request signing.
func WithWebhookSecret(secret string) WebhookOption {
	return func(w *WebhookSender) {
		w.secret = secret
	}
}

// WithWebhookRetries sets retry count and the initial backoff interval.
func WithWebhookRetries(maxRetries int, backoff time.Duration) WebhookOption {
	return func(w *WebhookSender) {
		w.maxRetries = max(maxRetries, 0)
		if backoff > 0 {
			w.backoff = backoff
		}
	}
}

// WithWebhookHeader adds a static header to every request.
func WithWebhookHeader(key, value string) WebhookOption {
	return func(w *WebhookSender) {
		w.headers[key] = value
	}
}

// NewWebhookSender creates an HTTP sender.
func NewWebhookSender(opts ...WebhookOption) *WebhookSender {
	w := &WebhookSender{
		client:     &http.Client{Timeout: 30 * time.Second},
		maxRetries: 3,
		backoff:    time.Second,
		maxBackoff: 30 * time.Second,
		headers:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type webhookPayload struct {
	ID          string    `json:"id"`
	Event       string    `json:"event"`
	Channel     Channel   `json:"channel"`
	RecipientID string    `json:"recipient_id"`
	TenantID    string    `json:"tenant_id,omitempty"`
	Address     string    `json:"address"`
	Title       string    `json:"title,omitempty"`
	Text        string    `json:"text,omitempty"`
	HTML        string    `json:"html,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// permanentError stops the retry loop.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

func (w *WebhookSender) Deliver(ctx context.Context, msg Message) (DeliveryResult, error) {
	url := w.endpoint
	if isURL(msg.Address) {
		url = msg.Address
	}
	if url == "" {
		return DeliveryResult{}, fmt.Errorf("%w: no webhook endpoint", ErrNoAddress)
	}

	body, err := json.Marshal(webhookPayload{
		ID:          msg.NotificationID,
		Event:       msg.EventKey,
		Channel:     msg.Channel,
		RecipientID: msg.RecipientID,
		TenantID:    msg.TenantID,
		Address:     msg.Address,
		Title:       msg.Content.Title,
		Text:        msg.Content.Text,
		HTML:        msg.Content.HTML,
		SentAt:      time.Now().UTC(),
	})
	if err != nil {
		return DeliveryResult{}, fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return DeliveryResult{}, ctx.Err()
			case <-time.After(w.interval(attempt)):
			}
		}

		status, err := w.post(ctx, url, body)
		if err == nil {
			return DeliveryResult{
				Status:     StatusDelivered,
				ProviderID: strconv.Itoa(status),
				At:         time.Now(),
			}, nil
		}
		lastErr = err
		var perm permanentError
		if errors.As(err, &perm) {
			break
		}
	}
	return DeliveryResult{}, lastErr
}

func (w *WebhookSender) post(ctx context.Context, url string, body []byte) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return 0, permanentError{fmt.Errorf("failed to create request: %w", err)}
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}
	if w.secret != "" {
		ts := strconv.FormatInt(time.Now().Unix(), 10)
		req.Header.Set("X-Webhook-Timestamp", ts)
		req.Header.Set("X-Webhook-Signature", SignWebhook(w.secret, ts, body))
	}

	resp, err := w.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return 0, permanentError{ctx.Err()}
		}
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return resp.StatusCode, nil
	case resp.StatusCode == http.StatusRequestTimeout, resp.StatusCode == http.StatusTooManyRequests:
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return resp.StatusCode, permanentError{fmt.Errorf("webhook returned status %d", resp.StatusCode)}
	default:
		return resp.StatusCode, fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}
}

func (w *WebhookSender) interval(attempt int) time.Duration {
	d := time.Duration(float64(w.backoff) * math.Pow(2, float64(attempt-1)))
	return min(d, w.maxBackoff)
}

// SignWebhook returns hex(HMAC-SHA256(secret, timestamp + "." + body)).
func SignWebhook(secret, timestamp string, body []byte) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(timestamp))
	h.Write([]byte("."))
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
