package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *ProptorClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *ProptorClient) *Handlers {
	return &Handlers{client: client}
}

// HandleRunRiskAnalysis runs a bulk risk pass and reports the summary.
func (h *Handlers) HandleRunRiskAnalysis(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	raw, err := h.client.RunRiskAnalysis(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Risk analysis failed: %v", err)), nil
	}

	var resp struct {
		Run struct {
			Total         int `json:"total"`
			SuccessCount  int `json:"successCount"`
			AlertsCreated int `json:"alertsCreated"`
			Skipped       int `json:"skipped"`
		} `json:"run"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse run summary: %v", err)), nil
	}

	var sb strings.Builder
	sb.WriteString("Risk analysis complete.\n")
	fmt.Fprintf(&sb, "  Contacts considered: %d\n", resp.Run.Total)
	fmt.Fprintf(&sb, "  Scored: %d\n", resp.Run.SuccessCount)
	fmt.Fprintf(&sb, "  Alerts created: %d\n", resp.Run.AlertsCreated)
	if resp.Run.Skipped > 0 {
		fmt.Fprintf(&sb, "  Skipped (no data or calculator error): %d\n", resp.Run.Skipped)
	}
	if resp.Run.AlertsCreated > 0 {
		sb.WriteString("\nUse list_alerts to see which deals need attention.")
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// metricInfo is the slice of a risk metric the tool output needs.
type metricInfo struct {
	ContactID       string   `json:"contactId"`
	ContactName     string   `json:"contactName"`
	ContactStage    string   `json:"contactStage"`
	RiskScore       int      `json:"riskScore"`
	LastContactDays int      `json:"lastContactDays"`
	RiskFactors     []string `json:"riskFactors"`
	Recommendations []string `json:"recommendations"`
}

// HandleListAtRiskContacts lists contacts ranked by risk score.
func (h *Handlers) HandleListAtRiskContacts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minScore := req.GetInt("min_score", 0)

	raw, err := h.client.ListRiskMetrics(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list risk metrics: %v", err)), nil
	}

	var resp struct {
		Metrics []metricInfo `json:"metrics"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse metrics: %v", err)), nil
	}

	var kept []metricInfo
	for _, m := range resp.Metrics {
		if m.RiskScore >= minScore {
			kept = append(kept, m)
		}
	}

	if len(kept) == 0 {
		return mcp.NewToolResultText("No contacts match. Run run_risk_analysis first if no contacts have been scored yet."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d contact(s), highest risk first:\n\n", len(kept))
	for i, m := range kept {
		name := m.ContactName
		if name == "" {
			name = m.ContactID
		}
		fmt.Fprintf(&sb, "%d. %s — risk %d\n", i+1, name, m.RiskScore)
		fmt.Fprintf(&sb, "   ID: %s | Stage: %s | Last contact: %d days ago\n", m.ContactID, m.ContactStage, m.LastContactDays)
		if len(m.RiskFactors) > 0 {
			fmt.Fprintf(&sb, "   Factors: %s\n", strings.Join(m.RiskFactors, "; "))
		}
		if len(m.Recommendations) > 0 {
			fmt.Fprintf(&sb, "   Suggested: %s\n", m.Recommendations[0])
		}
		if i < len(kept)-1 {
			sb.WriteString("\n")
		}
	}
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleGetPipelineSummary combines funnel counts with the risk summary.
func (h *Handlers) HandleGetPipelineSummary(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	summaryRaw, err := h.client.GetRiskSummary(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get risk summary: %v", err)), nil
	}
	funnelRaw, err := h.client.GetFunnel(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get funnel: %v", err)), nil
	}

	var summaryResp struct {
		Summary struct {
			ContactCount     int     `json:"contactCount"`
			AverageScore     float64 `json:"averageScore"`
			AtRiskCount      int     `json:"atRiskCount"`
			HighRiskCount    int     `json:"highRiskCount"`
			UnresolvedAlerts int     `json:"unresolvedAlerts"`
		} `json:"summary"`
	}
	if err := json.Unmarshal(summaryRaw, &summaryResp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse summary: %v", err)), nil
	}

	var funnelResp struct {
		Funnel []struct {
			Stage string `json:"stage"`
			Count int    `json:"count"`
		} `json:"funnel"`
	}
	if err := json.Unmarshal(funnelRaw, &funnelResp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse funnel: %v", err)), nil
	}

	s := summaryResp.Summary
	var sb strings.Builder
	sb.WriteString("Pipeline summary:\n")
	for _, f := range funnelResp.Funnel {
		fmt.Fprintf(&sb, "  %-18s %d\n", f.Stage, f.Count)
	}
	sb.WriteString("\nRisk:\n")
	fmt.Fprintf(&sb, "  Contacts scored:   %d\n", s.ContactCount)
	fmt.Fprintf(&sb, "  Average score:     %.1f\n", s.AverageScore)
	fmt.Fprintf(&sb, "  At risk:           %d\n", s.AtRiskCount)
	fmt.Fprintf(&sb, "  High risk:         %d\n", s.HighRiskCount)
	fmt.Fprintf(&sb, "  Unresolved alerts: %d\n", s.UnresolvedAlerts)
	return mcp.NewToolResultText(sb.String()), nil
}

// alertInfo is the slice of an alert the tool output needs.
type alertInfo struct {
	ID          string `json:"id"`
	ContactID   string `json:"contactId"`
	ContactName string `json:"contactName"`
	AlertType   string `json:"alertType"`
	Message     string `json:"alertMessage"`
	RiskScore   int    `json:"riskScore"`
	IsResolved  bool   `json:"isResolved"`
	CreatedAt   string `json:"createdAt"`
}

// HandleListAlerts lists risk alerts.
func (h *Handlers) HandleListAlerts(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	includeResolved := req.GetBool("include_resolved", false)

	raw, err := h.client.ListAlerts(ctx, includeResolved)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list alerts: %v", err)), nil
	}

	var resp struct {
		Alerts []alertInfo `json:"alerts"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse alerts: %v", err)), nil
	}

	if len(resp.Alerts) == 0 {
		return mcp.NewToolResultText("No alerts. Run run_risk_analysis to refresh scores."), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "%d alert(s), newest first:\n\n", len(resp.Alerts))
	for i, a := range resp.Alerts {
		status := ""
		if a.IsResolved {
			status = " [resolved]"
		}
		fmt.Fprintf(&sb, "%d. [%s]%s %s\n", i+1, a.AlertType, status, a.Message)
		fmt.Fprintf(&sb, "   Alert ID: %s | Contact ID: %s | Score: %d\n", a.ID, a.ContactID, a.RiskScore)
	}
	sb.WriteString("\nUse log_recovery_action to record how you follow up, and resolve_alert when handled.")
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleResolveAlert marks an alert resolved.
func (h *Handlers) HandleResolveAlert(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	alertID := req.GetString("alert_id", "")
	if alertID == "" {
		return mcp.NewToolResultError("alert_id is required"), nil
	}

	_, err := h.client.ResolveAlert(ctx, alertID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to resolve alert: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Alert %s resolved.", alertID)), nil
}

// HandleLogRecoveryAction records a recovery action.
func (h *Handlers) HandleLogRecoveryAction(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contactID := req.GetString("contact_id", "")
	if contactID == "" {
		return mcp.NewToolResultError("contact_id is required"), nil
	}
	actionType := req.GetString("action_type", "")
	if actionType == "" {
		return mcp.NewToolResultError("action_type is required"), nil
	}
	notes := req.GetString("notes", "")
	alertID := req.GetString("alert_id", "")

	raw, err := h.client.LogRecoveryAction(ctx, contactID, actionType, notes, alertID)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to log action: %v", err)), nil
	}

	var resp struct {
		Action struct {
			ID           string `json:"id"`
			DiscountCode string `json:"discountCode"`
		} `json:"action"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse action: %v", err)), nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Recovery action logged (%s).\n", actionType)
	fmt.Fprintf(&sb, "  Action ID: %s\n", resp.Action.ID)
	if resp.Action.DiscountCode != "" {
		fmt.Fprintf(&sb, "  Discount code: %s — share it with the contact\n", resp.Action.DiscountCode)
	}
	sb.WriteString("  Outcome is pending; record it later via the API once you know how it went.")
	return mcp.NewToolResultText(sb.String()), nil
}

// HandleAddContact creates a contact.
func (h *Handlers) HandleAddContact(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name := req.GetString("name", "")
	if name == "" {
		return mcp.NewToolResultError("name is required"), nil
	}
	email := req.GetString("email", "")
	phone := req.GetString("phone", "")
	stage := req.GetString("stage", "")

	raw, err := h.client.AddContact(ctx, name, email, phone, stage)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to add contact: %v", err)), nil
	}

	var resp struct {
		Contact struct {
			ID    string `json:"id"`
			Stage string `json:"stage"`
		} `json:"contact"`
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse contact: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf(
		"Contact %q added.\n  ID: %s\n  Stage: %s",
		name, resp.Contact.ID, resp.Contact.Stage)), nil
}

// HandleUpdateContactStage moves a contact to a new stage.
func (h *Handlers) HandleUpdateContactStage(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	contactID := req.GetString("contact_id", "")
	if contactID == "" {
		return mcp.NewToolResultError("contact_id is required"), nil
	}
	stage := req.GetString("stage", "")
	if stage == "" {
		return mcp.NewToolResultError("stage is required"), nil
	}

	_, err := h.client.UpdateContactStage(ctx, contactID, stage)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to update stage: %v", err)), nil
	}

	return mcp.NewToolResultText(fmt.Sprintf("Contact %s moved to %s.", contactID, stage)), nil
}
