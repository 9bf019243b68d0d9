package admin

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// Handler provides admin HTTP endpoints.
type Handler struct {
	hub  HubStats
	runs RunStateReader
}

// NewHandler creates a new admin handler.
func NewHandler(hub HubStats, runs RunStateReader) *Handler {
	return &Handler{hub: hub, runs: runs}
}

// RegisterRoutes sets up the admin routes. The caller is responsible for
// wrapping the group in admin auth.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/ws/stats", h.WSStats)
	r.GET("/risk/runs/:id", h.RunState)
}

// WSStats handles GET /v1/admin/ws/stats
func (h *Handler) WSStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.hub.Stats())
}

// RunState handles GET /v1/admin/risk/runs/:id
//
// The id is a user ID; the response reports whether that user's bulk
// analysis pass is idle, running, or failed its last attempt.
func (h *Handler) RunState(c *gin.Context) {
	userID := c.Param("id")
	c.JSON(http.StatusOK, gin.H{
		"userId": userID,
		"state":  h.runs.State(userID),
	})
}
