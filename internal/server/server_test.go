package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/proptor/proptor/internal/config"
	"github.com/proptor/proptor/internal/risk"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubCalculator implements risk.Calculator for testing
type stubCalculator struct {
	score int
}

func (s *stubCalculator) Calculate(ctx context.Context, userID, contactID string) (*risk.Result, error) {
	return &risk.Result{
		RiskScore:       s.score,
		LastContactDays: 14,
		EngagementScore: 40,
		RiskFactors:     []string{"no recent contact"},
		Recommendations: []string{"schedule a follow-up call"},
	}, nil
}

// testConfig returns a minimal config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:               "0",
		Env:                "development",
		LogLevel:           "error",
		RiskCalculatorURL:  "http://calculator.invalid/score",
		RiskAlertThreshold: 70,
		RiskHighThreshold:  80,
		RiskPaceMS:         1,
	}
}

// newTestServer creates an in-memory server with a stub calculator
func newTestServer(t *testing.T, score int) *Server {
	t.Helper()
	s, err := New(testConfig(), WithCalculator(&stubCalculator{score: score}))
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

// signup creates a user through the API and returns their API key
func signup(t *testing.T, s *Server, email string) string {
	t.Helper()

	body := fmt.Sprintf(`{"email":%q,"name":"Test Agent"}`, email)
	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/v1/auth/signup", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Fatalf("Signup failed: %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse signup response: %v", err)
	}
	key, _ := resp["apiKey"].(string)
	if key == "" {
		t.Fatal("Expected apiKey in signup response")
	}
	return key
}

// doJSON performs an authenticated request and decodes the JSON response
func doJSON(t *testing.T, s *Server, apiKey, method, path, body string) (int, map[string]interface{}) {
	t.Helper()

	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}

	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Authorization", "Bearer "+apiKey)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	s.router.ServeHTTP(w, req)

	var resp map[string]interface{}
	if len(w.Body.Bytes()) > 0 {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("Failed to parse response from %s %s: %v", method, path, err)
		}
	}
	return w.Code, resp
}

// ---------------------------------------------------------------------------
// Health endpoint tests
// ---------------------------------------------------------------------------

func TestHealthEndpoint(t *testing.T) {
	s := newTestServer(t, 50)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]interface{}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}

	if resp["status"] != "healthy" {
		t.Errorf("Expected status 'healthy', got %v", resp["status"])
	}
}

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t, 50)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/live", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessEndpoint(t *testing.T) {
	s := newTestServer(t, 50)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/health/ready", nil)
	s.router.ServeHTTP(w, req)

	// Server hasn't called Run() so ready is false
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503 (not ready), got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Route registration tests
// ---------------------------------------------------------------------------

func TestRiskRoutesRegistered(t *testing.T) {
	s := newTestServer(t, 50)

	routes := s.router.Routes()
	riskRoutes := map[string]bool{
		"POST:/v1/risk/run":                false,
		"GET:/v1/risk/status":              false,
		"GET:/v1/risk/metrics":             false,
		"GET:/v1/risk/metrics/:id":         false,
		"GET:/v1/risk/summary":             false,
		"GET:/v1/risk/alerts":              false,
		"POST:/v1/risk/alerts/:id/read":    false,
		"POST:/v1/risk/alerts/:id/resolve": false,
	}

	for _, route := range routes {
		key := route.Method + ":" + route.Path
		if _, ok := riskRoutes[key]; ok {
			riskRoutes[key] = true
		}
	}

	for route, found := range riskRoutes {
		if !found {
			t.Errorf("Risk route %s not registered", route)
		}
	}
}

func TestCoreRoutesRegistered(t *testing.T) {
	s := newTestServer(t, 50)

	routes := s.router.Routes()
	expected := []string{
		"GET:/health",
		"GET:/health/live",
		"GET:/health/ready",
		"GET:/ws",
		"POST:/v1/auth/signup",
		"POST:/v1/contacts",
		"GET:/v1/contacts/funnel",
		"POST:/v1/actions",
		"GET:/v1/notifications",
		"POST:/v1/webhooks",
		"GET:/v1/admin/ws/stats",
		"GET:/v1/admin/risk/runs/:id",
	}

	routeSet := make(map[string]bool)
	for _, route := range routes {
		routeSet[route.Method+":"+route.Path] = true
	}

	for _, e := range expected {
		if !routeSet[e] {
			t.Errorf("Core route %s not registered", e)
		}
	}
}

// ---------------------------------------------------------------------------
// Dashboard page test
// ---------------------------------------------------------------------------

func TestDashboardEndpoint(t *testing.T) {
	s := newTestServer(t, 50)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected 200 for dashboard, got %d", w.Code)
	}

	if !strings.Contains(w.Header().Get("Content-Type"), "text/html") {
		t.Errorf("Expected HTML content type, got %q", w.Header().Get("Content-Type"))
	}
}

// ---------------------------------------------------------------------------
// Auth tests
// ---------------------------------------------------------------------------

func TestSignupReturnsAPIKey(t *testing.T) {
	s := newTestServer(t, 50)
	key := signup(t, s, "agent@example.com")

	if !strings.HasPrefix(key, "pk_") {
		t.Errorf("Expected pk_ prefixed key, got %q", key)
	}
}

func TestProtectedRoutesRequireAuth(t *testing.T) {
	s := newTestServer(t, 50)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/contacts", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 without API key, got %d", w.Code)
	}
}

func TestWebSocketRequiresAuth(t *testing.T) {
	s := newTestServer(t, 50)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/ws", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("Expected 401 for unauthenticated websocket, got %d", w.Code)
	}
}

// ---------------------------------------------------------------------------
// End-to-end risk flow
// ---------------------------------------------------------------------------

func TestRiskFlowEndToEnd(t *testing.T) {
	s := newTestServer(t, 85)
	key := signup(t, s, "closer@example.com")

	// Create a contact
	code, resp := doJSON(t, s, key, "POST", "/v1/contacts", `{"name":"Dana Buyer","email":"dana@example.com"}`)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 creating contact, got %d: %v", code, resp)
	}

	// Run the analysis
	code, resp = doJSON(t, s, key, "POST", "/v1/risk/run", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 from risk run, got %d: %v", code, resp)
	}
	run := resp["run"].(map[string]interface{})
	if run["successCount"].(float64) != 1 {
		t.Errorf("Expected 1 contact scored, got %v", run["successCount"])
	}
	if run["alertsCreated"].(float64) != 1 {
		t.Errorf("Expected 1 alert for score 85, got %v", run["alertsCreated"])
	}

	// Metrics are visible with the contact name joined in
	code, resp = doJSON(t, s, key, "GET", "/v1/risk/metrics", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 listing metrics, got %d", code)
	}
	metrics := resp["metrics"].([]interface{})
	if len(metrics) != 1 {
		t.Fatalf("Expected 1 metric, got %d", len(metrics))
	}
	m := metrics[0].(map[string]interface{})
	if m["contactName"] != "Dana Buyer" {
		t.Errorf("Expected contact name on metric, got %v", m["contactName"])
	}
	if m["riskScore"].(float64) != 85 {
		t.Errorf("Expected score 85, got %v", m["riskScore"])
	}

	// Summary reflects the scored contact
	code, resp = doJSON(t, s, key, "GET", "/v1/risk/summary", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 from summary, got %d", code)
	}
	summary := resp["summary"].(map[string]interface{})
	if summary["highRiskCount"].(float64) != 1 {
		t.Errorf("Expected 1 high risk contact, got %v", summary["highRiskCount"])
	}

	// The alert is high_risk and resolvable
	code, resp = doJSON(t, s, key, "GET", "/v1/risk/alerts", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 listing alerts, got %d", code)
	}
	alerts := resp["alerts"].([]interface{})
	if len(alerts) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts))
	}
	alert := alerts[0].(map[string]interface{})
	if alert["alertType"] != "high_risk" {
		t.Errorf("Expected high_risk alert, got %v", alert["alertType"])
	}

	alertID := alert["id"].(string)
	code, resp = doJSON(t, s, key, "POST", "/v1/risk/alerts/"+alertID+"/resolve", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 resolving alert, got %d: %v", code, resp)
	}
	resolved := resp["alert"].(map[string]interface{})
	if resolved["isResolved"] != true {
		t.Error("Expected alert to be resolved")
	}

	// Resolved alerts drop out of the default list
	code, resp = doJSON(t, s, key, "GET", "/v1/risk/alerts", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 listing alerts, got %d", code)
	}
	if len(resp["alerts"].([]interface{})) != 0 {
		t.Error("Expected resolved alert to be excluded by default")
	}

	// The run completion landed in the notification feed
	code, resp = doJSON(t, s, key, "GET", "/v1/notifications", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 listing notifications, got %d", code)
	}
	if len(resp["notifications"].([]interface{})) == 0 {
		t.Error("Expected a run-complete notification")
	}
}

func TestRiskRunBelowThresholdCreatesNoAlert(t *testing.T) {
	s := newTestServer(t, 50)
	key := signup(t, s, "steady@example.com")

	code, _ := doJSON(t, s, key, "POST", "/v1/contacts", `{"name":"Quiet Buyer"}`)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 creating contact, got %d", code)
	}

	code, resp := doJSON(t, s, key, "POST", "/v1/risk/run", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 from risk run, got %d", code)
	}
	run := resp["run"].(map[string]interface{})
	if run["alertsCreated"].(float64) != 0 {
		t.Errorf("Expected no alerts for score 50, got %v", run["alertsCreated"])
	}
}

// ---------------------------------------------------------------------------
// Recovery action flow
// ---------------------------------------------------------------------------

func TestRecoveryActionFlow(t *testing.T) {
	s := newTestServer(t, 85)
	key := signup(t, s, "recover@example.com")

	code, resp := doJSON(t, s, key, "POST", "/v1/contacts", `{"name":"Hesitant Buyer"}`)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 creating contact, got %d", code)
	}
	contactID := resp["contact"].(map[string]interface{})["id"].(string)

	body := fmt.Sprintf(`{"contactId":%q,"actionType":"priority_call","notes":"Call before Friday"}`, contactID)
	code, resp = doJSON(t, s, key, "POST", "/v1/actions", body)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 logging action, got %d: %v", code, resp)
	}
	action := resp["action"].(map[string]interface{})
	if action["outcome"] != "pending" {
		t.Errorf("Expected pending outcome, got %v", action["outcome"])
	}

	actionID := action["id"].(string)
	code, resp = doJSON(t, s, key, "POST", "/v1/actions/"+actionID+"/outcome", `{"outcome":"successful"}`)
	if code != http.StatusOK {
		t.Fatalf("Expected 200 setting outcome, got %d: %v", code, resp)
	}
	if resp["action"].(map[string]interface{})["outcome"] != "successful" {
		t.Errorf("Expected successful outcome, got %v", resp["action"])
	}

	// Logging the action lands a message in the notification feed.
	code, resp = doJSON(t, s, key, "GET", "/v1/notifications", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 listing notifications, got %d", code)
	}
	found := false
	for _, raw := range resp["notifications"].([]interface{}) {
		msg := raw.(map[string]interface{})["message"].(string)
		if strings.Contains(msg, "priority_call") {
			found = true
		}
	}
	if !found {
		t.Error("Expected a notification naming the logged action")
	}
}

// ---------------------------------------------------------------------------
// User isolation
// ---------------------------------------------------------------------------

func TestUsersCannotSeeEachOthersData(t *testing.T) {
	s := newTestServer(t, 85)
	keyA := signup(t, s, "a@example.com")
	keyB := signup(t, s, "b@example.com")

	code, _ := doJSON(t, s, keyA, "POST", "/v1/contacts", `{"name":"A's Buyer"}`)
	if code != http.StatusCreated {
		t.Fatalf("Expected 201 creating contact, got %d", code)
	}

	code, resp := doJSON(t, s, keyB, "GET", "/v1/contacts", "")
	if code != http.StatusOK {
		t.Fatalf("Expected 200 listing contacts, got %d", code)
	}
	if len(resp["contacts"].([]interface{})) != 0 {
		t.Error("User B should not see user A's contacts")
	}
}

// ---------------------------------------------------------------------------
// 404 test
// ---------------------------------------------------------------------------

func TestNotFoundRoute(t *testing.T) {
	s := newTestServer(t, 50)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/v1/nonexistent", nil)
	s.router.ServeHTTP(w, req)

	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
