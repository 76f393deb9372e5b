package crm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/voxbridge/voxbridge/internal/database/models"
)

// WebhookClient posts leads as JSON to a configured CRM webhook endpoint.
type WebhookClient struct {
	url    string
	secret string
	client *http.Client
}

// NewWebhookClient creates a webhook CRM client. secret, when set, is sent
// as a bearer token.
func NewWebhookClient(url, secret string) *WebhookClient {
	return &WebhookClient{
		url:    url,
		secret: secret,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type leadPayload struct {
	LeadID    int64     `json:"lead_id"`
	OrgID     int64     `json:"org_id"`
	CallID    string    `json:"call_id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	Urgency   string    `json:"urgency"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *WebhookClient) SyncLead(ctx context.Context, lead models.Lead) error {
	body, err := json.Marshal(leadPayload{
		LeadID:    lead.ID,
		OrgID:     lead.OrgID,
		CallID:    lead.CallID,
		Name:      lead.Name,
		Phone:     lead.Phone,
		Email:     lead.Email,
		Reason:    lead.Reason,
		Urgency:   lead.Urgency,
		CreatedAt: lead.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("encoding lead: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set("Authorization", "Bearer "+c.secret)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting lead: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("crm webhook returned %d", resp.StatusCode)
	}
	return nil
}
