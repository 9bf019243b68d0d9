package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the Proptor MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolRunRiskAnalysis = mcp.NewTool("run_risk_analysis",
	mcp.WithDescription(
		"Run a risk analysis pass over all of the agent's active contacts. "+
			"Each contact is scored 0-100 by the risk calculator; contacts at or above "+
			"the alert threshold generate risk alerts. Returns the run summary. "+
			"This can take a while for large contact books."),
)

var ToolListAtRiskContacts = mcp.NewTool("list_at_risk_contacts",
	mcp.WithDescription(
		"List the agent's contacts ranked by deal risk, highest first. "+
			"Shows each contact's risk score, sales stage, days since last contact, "+
			"and the top risk factors. Use this to decide who needs attention today."),
	mcp.WithNumber("min_score",
		mcp.Description("Only return contacts with a risk score at or above this value (default 0)")),
)

var ToolGetPipelineSummary = mcp.NewTool("get_pipeline_summary",
	mcp.WithDescription(
		"Get a summary of the agent's sales pipeline: per-stage funnel counts plus "+
			"aggregate risk numbers (average score, contacts at risk, unresolved alerts)."),
)

var ToolListAlerts = mcp.NewTool("list_alerts",
	mcp.WithDescription(
		"List risk alerts for the agent's contacts, newest first. "+
			"Alerts are either high_risk (deal likely to be lost, act now) or "+
			"stage_stagnation (deal stalled in its stage, needs a follow-up)."),
	mcp.WithBoolean("include_resolved",
		mcp.Description("Include alerts that have already been resolved (default false)")),
)

var ToolResolveAlert = mcp.NewTool("resolve_alert",
	mcp.WithDescription(
		"Mark a risk alert as resolved after the underlying concern has been handled. "+
			"Resolved alerts drop out of the default alert list."),
	mcp.WithString("alert_id",
		mcp.Required(),
		mcp.Description("The alert ID (e.g. 'alert_...') from list_alerts")),
)

var ToolLogRecoveryAction = mcp.NewTool("log_recovery_action",
	mcp.WithDescription(
		"Record a recovery action taken for an at-risk contact: a priority call, "+
			"a discount offer, an alternative property proposal, an escalation, or a "+
			"follow-up email. Discount offers may attach a generated discount code."),
	mcp.WithString("contact_id",
		mcp.Required(),
		mcp.Description("The contact ID (e.g. 'con_...')")),
	mcp.WithString("action_type",
		mcp.Required(),
		mcp.Description("The kind of action taken"),
		mcp.Enum("priority_call", "discount_offer", "alternative_proposal", "escalation", "follow_up_email")),
	mcp.WithString("notes",
		mcp.Description("Free-text notes about the action")),
	mcp.WithString("alert_id",
		mcp.Description("The alert that prompted this action, if any")),
)

var ToolAddContact = mcp.NewTool("add_contact",
	mcp.WithDescription(
		"Add a new contact to the agent's book. New contacts start in the "+
			"new_lead stage unless another stage is given."),
	mcp.WithString("name",
		mcp.Required(),
		mcp.Description("The contact's full name")),
	mcp.WithString("email",
		mcp.Description("The contact's email address")),
	mcp.WithString("phone",
		mcp.Description("The contact's phone number")),
	mcp.WithString("stage",
		mcp.Description("Initial sales stage"),
		mcp.Enum("new_lead", "contacted", "viewing_scheduled", "offer_made", "negotiation", "closed_won", "closed_lost")),
)

var ToolUpdateContactStage = mcp.NewTool("update_contact_stage",
	mcp.WithDescription(
		"Move a contact to a different sales funnel stage, for example after a "+
			"viewing is booked or an offer comes in."),
	mcp.WithString("contact_id",
		mcp.Required(),
		mcp.Description("The contact ID (e.g. 'con_...')")),
	mcp.WithString("stage",
		mcp.Required(),
		mcp.Description("The new sales stage"),
		mcp.Enum("new_lead", "contacted", "viewing_scheduled", "offer_made", "negotiation", "closed_won", "closed_lost")),
)
