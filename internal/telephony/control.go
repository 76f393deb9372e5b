package telephony

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// RESTControl manipulates live calls through the provider's REST API.
type RESTControl struct {
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *slog.Logger
}

// NewRESTControl creates a call-control client for the provider API at
// baseURL.
func NewRESTControl(baseURL, apiKey string, logger *slog.Logger) *RESTControl {
	return &RESTControl{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
		logger:  logger.With("subsystem", "call-control"),
	}
}

// Transfer asks the provider to bridge the call to target.
func (c *RESTControl) Transfer(ctx context.Context, callID, target string) error {
	return c.post(ctx, callID, "transfer", map[string]string{"target": target})
}

// Hangup asks the provider to end the call.
func (c *RESTControl) Hangup(ctx context.Context, callID string) error {
	return c.post(ctx, callID, "hangup", nil)
}

func (c *RESTControl) post(ctx context.Context, callID, action string, payload any) error {
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			return fmt.Errorf("encoding %s request: %w", action, err)
		}
	}

	url := fmt.Sprintf("%s/calls/%s/%s", c.baseURL, callID, action)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return fmt.Errorf("building %s request: %w", action, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("%s call %s: %w", action, callID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%s call %s: provider returned %d", action, callID, resp.StatusCode)
	}

	c.logger.Debug("call control action accepted", "call_id", callID, "action", action)
	return nil
}

// NoopControl is the call-control fallback when no provider API is
// configured. Transfers fail so the session can apologize instead of
// silently dropping the caller; hangups rely on the provider tearing the
// call down when the media stream closes.
type NoopControl struct {
	Logger *slog.Logger
}

func (n *NoopControl) Transfer(ctx context.Context, callID, target string) error {
	return fmt.Errorf("call control not configured; cannot transfer call %s", callID)
}

func (n *NoopControl) Hangup(ctx context.Context, callID string) error {
	if n.Logger != nil {
		n.Logger.Debug("call control not configured; relying on stream close", "call_id", callID)
	}
	return nil
}
