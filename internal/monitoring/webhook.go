package monitoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// maxErrorBody caps how much of a failed response is quoted in the error
const maxErrorBody = 4 << 10

// WebhookNotifier posts notifications to an HTTP endpoint
type WebhookNotifier struct {
	logger     *logrus.Logger
	httpClient *http.Client
	url        string
	token      string
	secret     string
	attempts   int
	retryDelay time.Duration
}

// WebhookConfig holds configuration for the webhook notifier
type WebhookConfig struct {
	URL           string        `json:"url"`
	Token         string        `json:"token"`
	SigningSecret string        `json:"-"`
	Timeout       time.Duration `json:"timeout"`
	RetryAttempts int           `json:"retryAttempts"`
	RetryDelay    time.Duration `json:"retryDelay"`
}

// DefaultWebhookConfig returns default configuration
func DefaultWebhookConfig() WebhookConfig {
	return WebhookConfig{
		Timeout:       10 * time.Second,
		RetryAttempts: 3,
		RetryDelay:    2 * time.Second,
	}
}

// NewWebhookNotifier creates a new webhook notifier
func NewWebhookNotifier(logger *logrus.Logger, config WebhookConfig) *WebhookNotifier {
	attempts := config.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	return &WebhookNotifier{
		logger:     logger,
		url:        config.URL,
		token:      config.Token,
		secret:     config.SigningSecret,
		attempts:   attempts,
		retryDelay: config.RetryDelay,
		httpClient: &http.Client{
			Timeout: config.Timeout,
		},
	}
}

// Send posts the notification as JSON
func (w *WebhookNotifier) Send(ctx context.Context, n Notification) error {
	payload := map[string]interface{}{
		"alertId":      n.AlertID,
		"type":         string(n.Kind),
		"severity":     string(n.Severity),
		"message":      n.Message,
		"timestamp":    n.Timestamp.Format(time.RFC3339),
		"deviceId":     n.DeviceID,
		"deviceKind":   string(n.DeviceKind),
		"deviceName":   n.DeviceName,
		"customerId":   n.CustomerID,
		"customerName": n.CustomerName,
		"recipient":    n.Recipient,
	}
	if n.Downtime > 0 {
		payload["downtimeSeconds"] = int64(n.Downtime.Seconds())
	}

	if err := w.sendRequest(ctx, payload); err != nil {
		return fmt.Errorf("failed to deliver webhook notification: %w", err)
	}

	w.logger.WithFields(logrus.Fields{
		"alert_id": n.AlertID,
		"type":     n.Kind,
	}).Debug("Notification delivered to webhook")
	return nil
}

// sendRequest posts the payload, retrying on transport errors and 5xx
func (w *WebhookNotifier) sendRequest(ctx context.Context, payload interface{}) error {
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt < w.attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Duration(attempt) * w.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(jsonData))
		if err != nil {
			return fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		if w.token != "" {
			req.Header.Set("Authorization", "Bearer "+w.token)
		}
		if w.secret != "" {
			ts := time.Now().Unix()
			req.Header.Set(HeaderWebhookTimestamp, strconv.FormatInt(ts, 10))
			req.Header.Set(HeaderWebhookSignature, SignPayload(w.secret, jsonData, ts))
		}

		resp, err := w.httpClient.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("HTTP request failed: %w", err)
			w.logger.WithError(err).WithField("attempt", attempt+1).Warn("Webhook request failed, retrying")
			continue
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			resp.Body.Close()
			return nil
		}

		var errorBody bytes.Buffer
		errorBody.ReadFrom(io.LimitReader(resp.Body, maxErrorBody))
		resp.Body.Close()

		lastErr = fmt.Errorf("HTTP request failed with status %d: %s", resp.StatusCode, errorBody.String())

		// Client errors are not retried
		if resp.StatusCode >= 400 && resp.StatusCode < 500 {
			break
		}

		w.logger.WithField("status_code", resp.StatusCode).WithField("attempt", attempt+1).Warn("Webhook request failed, retrying")
	}

	return lastErr
}
