package risk

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/proptor/proptor/internal/circuitbreaker"
)

// Result is what the external calculator returns for one contact.
// The core treats it as opaque: values are stored and surfaced, never
// recomputed here.
type Result struct {
	RiskScore            int      `json:"risk_score"`
	RiskFactors          []string `json:"risk_factors"`
	Recommendations      []string `json:"recommendations"`
	LastContactDays      int      `json:"last_contact_days"`
	InteractionFrequency float64  `json:"interaction_frequency"`
	EngagementScore      int      `json:"engagement_score"`
}

// Calculator computes a risk result for a contact.
//
// A nil Result with a nil error means the calculator had insufficient
// history to score the contact; callers skip the contact without treating
// it as a failure. Errors are contained by callers: the contact is skipped
// and the pass continues.
type Calculator interface {
	Calculate(ctx context.Context, userID, contactID string) (*Result, error)
}

// ErrCalculatorUnavailable is returned when the scoring endpoint's circuit
// is open and calls are being shed.
var ErrCalculatorUnavailable = errors.New("risk calculator unavailable")

// HTTPCalculator calls a remote scoring endpoint.
type HTTPCalculator struct {
	url        string
	httpClient *http.Client
	breaker    *circuitbreaker.Breaker
}

// NewHTTPCalculator creates a calculator client for the given endpoint.
// Repeated endpoint failures trip a circuit so a down calculator fails
// fast instead of stalling every contact in a bulk pass for 30s.
func NewHTTPCalculator(url string) *HTTPCalculator {
	return &HTTPCalculator{
		url: url,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

type calculateRequest struct {
	UserID    string `json:"user_id"`
	ContactID string `json:"contact_id"`
}

// Calculate posts the contact reference to the scoring endpoint.
// A 204 or empty body means insufficient history: (nil, nil).
func (c *HTTPCalculator) Calculate(ctx context.Context, userID, contactID string) (*Result, error) {
	if !c.breaker.Allow(c.url) {
		return nil, ErrCalculatorUnavailable
	}

	body, err := json.Marshal(calculateRequest{UserID: userID, ContactID: contactID})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.breaker.RecordFailure(c.url)
		return nil, fmt.Errorf("calculator request failed: %w", err)
	}
	defer resp.Body.Close()

	// Only transport errors and 5xx trip the circuit; a 4xx means the
	// endpoint is up and rejecting this particular contact.
	if resp.StatusCode >= 500 {
		c.breaker.RecordFailure(c.url)
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("calculator error (%d): %s", resp.StatusCode, string(data))
	}
	c.breaker.RecordSuccess(c.url)

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode >= 400 {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("calculator error (%d): %s", resp.StatusCode, string(data))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read calculator response: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, nil
	}

	var result Result
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("decode calculator response: %w", err)
	}

	if result.RiskScore < 0 || result.RiskScore > 100 {
		return nil, fmt.Errorf("calculator returned score out of range: %d", result.RiskScore)
	}

	return &result, nil
}
