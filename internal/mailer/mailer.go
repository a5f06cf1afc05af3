// Package mailer delivers transactional email through an HTTP JSON endpoint.
// Delivery is load-bearing for registration and password reset: a failed send
// is a hard error, never silently swallowed.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ErrDeliveryFailed is returned when the endpoint rejects or fails a send.
var ErrDeliveryFailed = errors.New("email delivery failed")

// Message is one outbound email.
type Message struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	HTML    string `json:"html,omitempty"`
	Text    string `json:"text,omitempty"`
}

// Mailer sends a single message. Implementations must treat a nil error as a
// confirmed hand-off to the provider.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// NoOp discards every message. Used when no mailer is configured; flows that
// require delivery confirmation should not be wired with it.
type NoOp struct{}

func (NoOp) Send(context.Context, Message) error { return nil }

// HTTPMailer posts messages as JSON to a transactional email endpoint and
// expects a {"success": bool} response body.
type HTTPMailer struct {
	endpoint string
	apiKey   string
	client   *http.Client
	logger   *zap.Logger
}

type httpResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

func NewHTTP(endpoint, apiKey string, logger *zap.Logger) *HTTPMailer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HTTPMailer{
		endpoint: endpoint,
		apiKey:   apiKey,
		client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
	}
}

func (m *HTTPMailer) Send(ctx context.Context, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if m.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+m.apiKey)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDeliveryFailed, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	if err != nil {
		return fmt.Errorf("%w: read response: %v", ErrDeliveryFailed, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		m.logger.Warn("mail endpoint rejected send",
			zap.Int("status", resp.StatusCode),
			zap.String("to", msg.To))
		return fmt.Errorf("%w: status %d", ErrDeliveryFailed, resp.StatusCode)
	}
	var parsed httpResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return fmt.Errorf("%w: decode response: %v", ErrDeliveryFailed, err)
	}
	if !parsed.Success {
		if parsed.Error != "" {
			return fmt.Errorf("%w: %s", ErrDeliveryFailed, parsed.Error)
		}
		return ErrDeliveryFailed
	}
	return nil
}
