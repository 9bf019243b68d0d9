package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL: ts.URL,
		APIKey: "pk_test_key",
	}
	client := NewProptorClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_AuthHeader(t *testing.T) {
	var gotAuth string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewProptorClient(Config{APIURL: ts.URL, APIKey: "pk_secret123"})
	_, err := client.GetRiskSummary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Bearer pk_secret123", gotAuth)
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "unauthorized",
			"message": "Invalid API key",
		})
	}))
	defer ts.Close()

	client := NewProptorClient(Config{APIURL: ts.URL, APIKey: "bad"})
	_, err := client.GetRiskSummary(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Invalid API key")
	assert.Contains(t, err.Error(), "401")
}

func TestClient_ListAlerts_QueryParam(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"alerts":[],"count":0}`))
	}))
	defer ts.Close()

	client := NewProptorClient(Config{APIURL: ts.URL, APIKey: "pk_x"})
	_, err := client.ListAlerts(context.Background(), true)
	require.NoError(t, err)
	assert.Equal(t, "includeResolved=true", gotQuery)

	_, err = client.ListAlerts(context.Background(), false)
	require.NoError(t, err)
	assert.Equal(t, "", gotQuery)
}

// ============================================================
// run_risk_analysis
// ============================================================

func TestHandleRunRiskAnalysis_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/v1/risk/run", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"run": map[string]any{
				"total": 3, "successCount": 2, "alertsCreated": 1, "skipped": 1,
			},
		})
	}))
	defer cleanup()

	result, err := h.HandleRunRiskAnalysis(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Scored: 2")
	assert.Contains(t, text, "Alerts created: 1")
	assert.Contains(t, text, "Skipped")
	assert.Contains(t, text, "list_alerts")
}

func TestHandleRunRiskAnalysis_Conflict(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "run_in_progress",
			"message": "A risk analysis run is already in progress",
		})
	}))
	defer cleanup()

	result, err := h.HandleRunRiskAnalysis(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "already in progress")
}

// ============================================================
// list_at_risk_contacts
// ============================================================

func riskMetricsServer() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"metrics": []map[string]any{
				{
					"contactId": "con_aaa", "contactName": "Dana Buyer", "contactStage": "negotiation",
					"riskScore": 85, "lastContactDays": 21,
					"riskFactors":     []string{"no contact in 3 weeks"},
					"recommendations": []string{"call immediately"},
				},
				{
					"contactId": "con_bbb", "contactName": "Sam Seller", "contactStage": "contacted",
					"riskScore": 40, "lastContactDays": 3,
				},
			},
			"count": 2,
		})
	})
}

func TestHandleListAtRiskContacts_All(t *testing.T) {
	h, cleanup := newTestSetup(riskMetricsServer())
	defer cleanup()

	result, err := h.HandleListAtRiskContacts(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Dana Buyer")
	assert.Contains(t, text, "Sam Seller")
	assert.Contains(t, text, "risk 85")
	assert.Contains(t, text, "no contact in 3 weeks")
	assert.Contains(t, text, "call immediately")
}

func TestHandleListAtRiskContacts_MinScoreFilter(t *testing.T) {
	h, cleanup := newTestSetup(riskMetricsServer())
	defer cleanup()

	result, err := h.HandleListAtRiskContacts(context.Background(), makeRequest(map[string]any{
		"min_score": 70,
	}))
	require.NoError(t, err)

	text := resultText(t, result)
	assert.Contains(t, text, "Dana Buyer")
	assert.NotContains(t, text, "Sam Seller")
}

func TestHandleListAtRiskContacts_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"metrics":[],"count":0}`))
	}))
	defer cleanup()

	result, err := h.HandleListAtRiskContacts(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "run_risk_analysis")
}

// ============================================================
// get_pipeline_summary
// ============================================================

func TestHandleGetPipelineSummary(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/risk/summary":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"summary": map[string]any{
					"contactCount": 10, "averageScore": 52.5,
					"atRiskCount": 3, "highRiskCount": 1, "unresolvedAlerts": 2,
				},
			})
		case "/v1/contacts/funnel":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"funnel": []map[string]any{
					{"stage": "new_lead", "count": 4},
					{"stage": "negotiation", "count": 2},
				},
			})
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer cleanup()

	result, err := h.HandleGetPipelineSummary(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "new_lead")
	assert.Contains(t, text, "52.5")
	assert.Contains(t, text, "Unresolved alerts: 2")
}

// ============================================================
// list_alerts / resolve_alert
// ============================================================

func TestHandleListAlerts(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"alerts": []map[string]any{
				{
					"id": "alert_one", "contactId": "con_aaa", "contactName": "Dana Buyer",
					"alertType": "high_risk", "riskScore": 85,
					"alertMessage": "Dana Buyer shows a high risk of losing the deal (risk score 85). Immediate action recommended.",
				},
			},
			"count": 1,
		})
	}))
	defer cleanup()

	result, err := h.HandleListAlerts(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "high_risk")
	assert.Contains(t, text, "alert_one")
	assert.Contains(t, text, "Immediate action recommended")
}

func TestHandleResolveAlert_RequiresID(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request should be made without alert_id")
	}))
	defer cleanup()

	result, err := h.HandleResolveAlert(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "alert_id is required")
}

func TestHandleResolveAlert_Success(t *testing.T) {
	var gotPath string
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewEncoder(w).Encode(map[string]any{
			"alert": map[string]any{"id": "alert_one", "isResolved": true},
		})
	}))
	defer cleanup()

	result, err := h.HandleResolveAlert(context.Background(), makeRequest(map[string]any{
		"alert_id": "alert_one",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "/v1/risk/alerts/alert_one/resolve", gotPath)
	assert.Contains(t, resultText(t, result), "resolved")
}

// ============================================================
// log_recovery_action
// ============================================================

func TestHandleLogRecoveryAction_Success(t *testing.T) {
	var gotBody map[string]any
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/actions", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"action": map[string]any{"id": "act_one", "outcome": "pending"},
		})
	}))
	defer cleanup()

	result, err := h.HandleLogRecoveryAction(context.Background(), makeRequest(map[string]any{
		"contact_id":  "con_aaa",
		"action_type": "priority_call",
		"notes":       "Call before Friday",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "con_aaa", gotBody["contactId"])
	assert.Equal(t, "priority_call", gotBody["actionType"])
	assert.Equal(t, "Call before Friday", gotBody["notes"])
	assert.Contains(t, resultText(t, result), "act_one")
}

func TestHandleLogRecoveryAction_DiscountCode(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"action": map[string]any{"id": "act_two", "discountCode": "STAYAB12CD34"},
		})
	}))
	defer cleanup()

	result, err := h.HandleLogRecoveryAction(context.Background(), makeRequest(map[string]any{
		"contact_id":  "con_aaa",
		"action_type": "discount_offer",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "STAYAB12CD34")
}

func TestHandleLogRecoveryAction_RequiresFields(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("No request should be made without required fields")
	}))
	defer cleanup()

	result, err := h.HandleLogRecoveryAction(context.Background(), makeRequest(map[string]any{
		"action_type": "priority_call",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "contact_id is required")

	result, err = h.HandleLogRecoveryAction(context.Background(), makeRequest(map[string]any{
		"contact_id": "con_aaa",
	}))
	require.NoError(t, err)
	require.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "action_type is required")
}

// ============================================================
// add_contact / update_contact_stage
// ============================================================

func TestHandleAddContact(t *testing.T) {
	var gotBody map[string]any
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/contacts", r.URL.Path)
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"contact": map[string]any{"id": "con_new", "stage": "new_lead"},
		})
	}))
	defer cleanup()

	result, err := h.HandleAddContact(context.Background(), makeRequest(map[string]any{
		"name":  "Robin Renter",
		"email": "robin@example.com",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, "Robin Renter", gotBody["name"])
	assert.Equal(t, "robin@example.com", gotBody["email"])
	text := resultText(t, result)
	assert.Contains(t, text, "con_new")
	assert.Contains(t, text, "new_lead")
}

func TestHandleUpdateContactStage(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"contact": map[string]any{"id": "con_aaa", "stage": "offer_made"},
		})
	}))
	defer cleanup()

	result, err := h.HandleUpdateContactStage(context.Background(), makeRequest(map[string]any{
		"contact_id": "con_aaa",
		"stage":      "offer_made",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)
	assert.Equal(t, "/v1/contacts/con_aaa/stage", gotPath)
	assert.Equal(t, "offer_made", gotBody["stage"])
	assert.Contains(t, resultText(t, result), "offer_made")
}
