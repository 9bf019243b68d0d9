package actions

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proptor/proptor/internal/auth"
	"github.com/proptor/proptor/internal/validation"
)

// Handler provides HTTP endpoints for the recovery action log.
type Handler struct {
	service *Service
}

// NewHandler creates a new actions handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up the action routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/actions", h.Log)
	r.GET("/actions", h.List)
	r.GET("/actions/:id", h.Get)
	r.POST("/actions/:id/outcome", h.SetOutcome)
}

// Log handles POST /v1/actions
func (h *Handler) Log(c *gin.Context) {
	userID := auth.UserID(c)

	var req LogActionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	req.Notes = validation.SanitizeString(req.Notes, 2000)
	if errs := validation.Validate(
		validation.Required("contactId", req.ContactID),
		validation.ValidActionType("actionType", req.ActionType),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": errs})
		return
	}

	action, err := h.service.Log(c.Request.Context(), userID, req)
	if err != nil {
		switch {
		case errors.Is(err, ErrInvalidType):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_action_type", "message": err.Error()})
		case errors.Is(err, ErrInvalidOutcome):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_outcome", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "log_failed", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusCreated, gin.H{"action": action})
}

// Get handles GET /v1/actions/:id
func (h *Handler) Get(c *gin.Context) {
	userID := auth.UserID(c)
	id := c.Param("id")

	action, err := h.service.Get(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrActionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Action not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"action": action})
}

// List handles GET /v1/actions with optional ?contactId= filter.
func (h *Handler) List(c *gin.Context) {
	userID := auth.UserID(c)
	contactID := c.Query("contactId")

	list, err := h.service.List(c.Request.Context(), userID, contactID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"actions": list, "count": len(list)})
}

// SetOutcome handles POST /v1/actions/:id/outcome
func (h *Handler) SetOutcome(c *gin.Context) {
	userID := auth.UserID(c)
	id := c.Param("id")

	var req SetOutcomeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	action, err := h.service.SetOutcome(c.Request.Context(), userID, id, Outcome(req.Outcome))
	if err != nil {
		switch {
		case errors.Is(err, ErrActionNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Action not found"})
		case errors.Is(err, ErrInvalidOutcome):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_outcome", "message": err.Error()})
		case errors.Is(err, ErrOutcomeFinal):
			c.JSON(http.StatusConflict, gin.H{"error": "outcome_final", "message": "Outcome has already been recorded"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"action": action})
}
