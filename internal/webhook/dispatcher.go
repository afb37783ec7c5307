// Package webhook delivers signed job callbacks to client-supplied URLs.
package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nikhilbhutani/whisperapi/internal/metrics"
)

const (
	EventJobCompleted = "transcription.job.completed"
	EventJobFailed    = "transcription.job.failed"
)

type Dispatcher struct {
	httpClient *http.Client
	secret     string
	metrics    *metrics.Metrics
}

type Delivery struct {
	ID      string
	URL     string
	Event   string
	Payload []byte
}

func NewDispatcher(secret string, timeout time.Duration) *Dispatcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Dispatcher{
		httpClient: &http.Client{Timeout: timeout},
		secret:     secret,
		metrics:    metrics.DefaultMetrics,
	}
}

// Deliver posts the payload once. Any non-2xx answer is an error so the caller can retry.
func (d *Dispatcher) Deliver(ctx context.Context, req Delivery) error {
	err := d.deliver(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
	}
	d.metrics.WebhookDelivery.WithLabelValues(status).Inc()
	return err
}

func (d *Dispatcher) deliver(ctx context.Context, req Delivery) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.URL, bytes.NewReader(req.Payload))
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("X-Webhook-Event", req.Event)
	httpReq.Header.Set("X-Webhook-ID", req.ID)
	if d.secret != "" {
		httpReq.Header.Set("X-Webhook-Signature", Sign(req.Payload, d.secret))
	}

	resp, err := d.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("deliver webhook: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("webhook received non-success response", "status", resp.StatusCode, "id", req.ID, "event", req.Event)
		return fmt.Errorf("webhook returned status %d", resp.StatusCode)
	}

	slog.Info("webhook delivered", "id", req.ID, "event", req.Event, "status", resp.StatusCode)
	return nil
}

// Sign returns the X-Webhook-Signature value for payload.
func Sign(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}

// Verify checks a signature produced by Sign in constant time.
func Verify(payload []byte, secret, signature string) bool {
	return hmac.Equal([]byte(Sign(payload, secret)), []byte(signature))
}
