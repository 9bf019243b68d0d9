package risk

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proptor/proptor/internal/auth"
)

// Handler provides HTTP endpoints for risk analysis.
type Handler struct {
	service *Service
	runner  *Runner
}

// NewHandler creates a new risk handler.
func NewHandler(service *Service, runner *Runner) *Handler {
	return &Handler{service: service, runner: runner}
}

// RegisterProtectedRoutes sets up the risk routes. Everything here reads or
// writes user-scoped data, so nothing is public.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/risk/run", h.Run)
	r.GET("/risk/status", h.Status)
	r.GET("/risk/metrics", h.ListMetrics)
	r.GET("/risk/metrics/:id", h.GetMetric)
	r.GET("/risk/summary", h.Summary)
	r.GET("/risk/alerts", h.ListAlerts)
	r.POST("/risk/alerts/:id/read", h.MarkRead)
	r.POST("/risk/alerts/:id/resolve", h.Resolve)
}

// Run handles POST /v1/risk/run. The pass executes synchronously; the
// response carries the full run summary. A run already in flight for the
// same user yields 409.
func (h *Handler) Run(c *gin.Context) {
	userID := auth.UserID(c)

	summary, err := h.runner.Run(c.Request.Context(), userID)
	if err != nil {
		if errors.Is(err, ErrRunInProgress) {
			c.JSON(http.StatusConflict, gin.H{
				"error":   "run_in_progress",
				"message": "A risk analysis run is already in progress",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "run_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"run": summary})
}

// Status handles GET /v1/risk/status
func (h *Handler) Status(c *gin.Context) {
	userID := auth.UserID(c)
	c.JSON(http.StatusOK, gin.H{"state": h.runner.State(userID)})
}

// ListMetrics handles GET /v1/risk/metrics
func (h *Handler) ListMetrics(c *gin.Context) {
	userID := auth.UserID(c)

	list, err := h.service.ListMetrics(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"metrics": list, "count": len(list)})
}

// GetMetric handles GET /v1/risk/metrics/:id where :id is the contact ID.
func (h *Handler) GetMetric(c *gin.Context) {
	userID := auth.UserID(c)
	contactID := c.Param("id")

	m, err := h.service.GetMetric(c.Request.Context(), userID, contactID)
	if err != nil {
		if errors.Is(err, ErrMetricNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "No risk metric for this contact"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"metric": m})
}

// Summary handles GET /v1/risk/summary
func (h *Handler) Summary(c *gin.Context) {
	userID := auth.UserID(c)

	sum, err := h.service.Summary(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"summary": sum})
}

// ListAlerts handles GET /v1/risk/alerts
func (h *Handler) ListAlerts(c *gin.Context) {
	userID := auth.UserID(c)
	includeResolved := c.Query("includeResolved") == "true"

	list, err := h.service.ListAlerts(c.Request.Context(), userID, includeResolved)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alerts": list, "count": len(list)})
}

// MarkRead handles POST /v1/risk/alerts/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	h.updateAlert(c, h.service.MarkRead)
}

// Resolve handles POST /v1/risk/alerts/:id/resolve
func (h *Handler) Resolve(c *gin.Context) {
	h.updateAlert(c, h.service.Resolve)
}

func (h *Handler) updateAlert(c *gin.Context, fn func(ctx context.Context, userID, alertID string) (*Alert, error)) {
	userID := auth.UserID(c)
	id := c.Param("id")

	a, err := fn(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrAlertNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Alert not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"alert": a})
}
