package contacts

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/proptor/proptor/internal/auth"
	"github.com/proptor/proptor/internal/validation"
)

// Handler provides HTTP endpoints for the contact book.
type Handler struct {
	service *Service
}

// NewHandler creates a new contacts handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// RegisterProtectedRoutes sets up contact routes. All contact data is
// user-scoped, so nothing here is public.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.POST("/contacts", h.Create)
	r.GET("/contacts", h.List)
	r.GET("/contacts/funnel", h.Funnel)
	r.GET("/contacts/:id", h.Get)
	r.POST("/contacts/:id/stage", h.UpdateStage)
	r.DELETE("/contacts/:id", h.Deactivate)
}

// Create handles POST /v1/contacts
func (h *Handler) Create(c *gin.Context) {
	userID := auth.UserID(c)

	var req CreateContactRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "invalid_request",
			"message": "Invalid request body",
		})
		return
	}

	req.Name = validation.SanitizeString(req.Name, 255)
	if errs := validation.Validate(
		validation.Required("name", req.Name),
		validation.ValidStage("stage", req.Stage),
		validation.MaxLength("email", req.Email, 254),
		validation.MaxLength("phone", req.Phone, 32),
	); len(errs) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "validation_failed", "details": errs})
		return
	}

	contact, err := h.service.Create(c.Request.Context(), userID, req)
	if err != nil {
		if errors.Is(err, ErrInvalidStage) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_stage", "message": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "message": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, gin.H{"contact": contact})
}

// Get handles GET /v1/contacts/:id
func (h *Handler) Get(c *gin.Context) {
	userID := auth.UserID(c)
	id := c.Param("id")

	contact, err := h.service.Get(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrContactNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contact": contact})
}

// List handles GET /v1/contacts
func (h *Handler) List(c *gin.Context) {
	userID := auth.UserID(c)
	includeInactive := c.Query("includeInactive") == "true"

	list, err := h.service.List(c.Request.Context(), userID, includeInactive)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contacts": list, "count": len(list)})
}

// UpdateStage handles POST /v1/contacts/:id/stage
func (h *Handler) UpdateStage(c *gin.Context) {
	userID := auth.UserID(c)
	id := c.Param("id")

	var req UpdateStageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	contact, err := h.service.UpdateStage(c.Request.Context(), userID, id, Stage(req.Stage))
	if err != nil {
		switch {
		case errors.Is(err, ErrContactNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Contact not found"})
		case errors.Is(err, ErrInvalidStage):
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_stage", "message": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"contact": contact})
}

// Deactivate handles DELETE /v1/contacts/:id
func (h *Handler) Deactivate(c *gin.Context) {
	userID := auth.UserID(c)
	id := c.Param("id")

	contact, err := h.service.Deactivate(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrContactNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Contact not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"contact": contact})
}

// Funnel handles GET /v1/contacts/funnel
func (h *Handler) Funnel(c *gin.Context) {
	userID := auth.UserID(c)

	counts, err := h.service.FunnelCounts(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"funnel": counts})
}
