package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all Proptor tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("proptor", "1.0.0")
	client := NewProptorClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolRunRiskAnalysis, h.HandleRunRiskAnalysis)
	s.AddTool(ToolListAtRiskContacts, h.HandleListAtRiskContacts)
	s.AddTool(ToolGetPipelineSummary, h.HandleGetPipelineSummary)
	s.AddTool(ToolListAlerts, h.HandleListAlerts)
	s.AddTool(ToolResolveAlert, h.HandleResolveAlert)
	s.AddTool(ToolLogRecoveryAction, h.HandleLogRecoveryAction)
	s.AddTool(ToolAddContact, h.HandleAddContact)
	s.AddTool(ToolUpdateContactStage, h.HandleUpdateContactStage)

	return s
}
