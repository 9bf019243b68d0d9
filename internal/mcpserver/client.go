package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Config holds the configuration for connecting to the Proptor platform.
type Config struct {
	APIURL string // Base URL, e.g. "http://localhost:8080"
	APIKey string // API key, e.g. "pk_..."
}

// ProptorClient is a pure HTTP client for the Proptor platform API.
type ProptorClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewProptorClient creates a new client for the Proptor platform.
func NewProptorClient(cfg Config) *ProptorClient {
	return &ProptorClient{
		cfg: cfg,
		httpClient: &http.Client{
			// Bulk risk runs are synchronous and paced per contact, so this
			// is deliberately generous.
			Timeout: 5 * time.Minute,
		},
	}
}

// apiError represents an error response from the platform.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the platform and returns the response body.
func (c *ProptorClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// RunRiskAnalysis starts a synchronous risk pass over all active contacts.
func (c *ProptorClient) RunRiskAnalysis(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodPost, "/v1/risk/run", nil, nil)
}

// ListRiskMetrics returns the agent's risk metrics, highest score first.
func (c *ProptorClient) ListRiskMetrics(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/risk/metrics", nil, nil)
}

// GetRiskSummary returns the aggregate risk numbers for the dashboard.
func (c *ProptorClient) GetRiskSummary(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/risk/summary", nil, nil)
}

// GetFunnel returns per-stage counts over the agent's active contacts.
func (c *ProptorClient) GetFunnel(ctx context.Context) (json.RawMessage, error) {
	return c.doRequest(ctx, http.MethodGet, "/v1/contacts/funnel", nil, nil)
}

// ListAlerts returns the agent's risk alerts, newest first.
func (c *ProptorClient) ListAlerts(ctx context.Context, includeResolved bool) (json.RawMessage, error) {
	q := url.Values{}
	if includeResolved {
		q.Set("includeResolved", "true")
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/risk/alerts", q, nil)
}

// ResolveAlert marks an alert as resolved.
func (c *ProptorClient) ResolveAlert(ctx context.Context, alertID string) (json.RawMessage, error) {
	path := "/v1/risk/alerts/" + alertID + "/resolve"
	return c.doRequest(ctx, http.MethodPost, path, nil, nil)
}

// LogRecoveryAction records a recovery action for a contact.
func (c *ProptorClient) LogRecoveryAction(ctx context.Context, contactID, actionType, notes, alertID string) (json.RawMessage, error) {
	body := map[string]string{
		"contactId":  contactID,
		"actionType": actionType,
	}
	if notes != "" {
		body["notes"] = notes
	}
	if alertID != "" {
		body["alertId"] = alertID
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/actions", nil, body)
}

// AddContact creates a new contact.
func (c *ProptorClient) AddContact(ctx context.Context, name, email, phone, stage string) (json.RawMessage, error) {
	body := map[string]string{"name": name}
	if email != "" {
		body["email"] = email
	}
	if phone != "" {
		body["phone"] = phone
	}
	if stage != "" {
		body["stage"] = stage
	}
	return c.doRequest(ctx, http.MethodPost, "/v1/contacts", nil, body)
}

// UpdateContactStage moves a contact to a new funnel stage.
func (c *ProptorClient) UpdateContactStage(ctx context.Context, contactID, stage string) (json.RawMessage, error) {
	path := "/v1/contacts/" + contactID + "/stage"
	return c.doRequest(ctx, http.MethodPost, path, nil, map[string]string{"stage": stage})
}
