package notify

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/proptor/proptor/internal/auth"
	"github.com/proptor/proptor/internal/idgen"
	"github.com/proptor/proptor/internal/pagination"
	"github.com/proptor/proptor/internal/security"
)

// Handler provides HTTP endpoints for the notification feed and webhook
// subscriptions.
type Handler struct {
	service *Service
	subs    SubscriptionStore
}

// NewHandler creates a new notify handler.
func NewHandler(service *Service, subs SubscriptionStore) *Handler {
	return &Handler{service: service, subs: subs}
}

// RegisterProtectedRoutes sets up the notification routes.
func (h *Handler) RegisterProtectedRoutes(r *gin.RouterGroup) {
	r.GET("/notifications", h.List)
	r.POST("/notifications/:id/read", h.MarkRead)

	r.POST("/webhooks", h.CreateWebhook)
	r.GET("/webhooks", h.ListWebhooks)
	r.DELETE("/webhooks/:id", h.DeleteWebhook)
}

// List handles GET /v1/notifications
func (h *Handler) List(c *gin.Context) {
	userID := auth.UserID(c)
	unreadOnly := c.Query("unreadOnly") == "true"

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 200 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "limit must be between 1 and 200"})
			return
		}
		limit = n
	}

	cursor, err := pagination.Decode(c.Query("cursor"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_cursor", "message": "Invalid cursor"})
		return
	}

	list, err := h.service.List(c.Request.Context(), userID, unreadOnly)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	// The store returns newest first; resume after the cursor position.
	if cursor != nil {
		resume := len(list)
		for i, n := range list {
			if n.ID == cursor.ID {
				resume = i + 1
				break
			}
			if n.CreatedAt.Before(cursor.CreatedAt) {
				resume = i
				break
			}
		}
		list = list[resume:]
	}
	if len(list) > limit+1 {
		list = list[:limit+1]
	}

	page, next, hasMore := pagination.ComputePage(list, limit, func(n *Notification) (time.Time, string) {
		return n.CreatedAt, n.ID
	})

	c.JSON(http.StatusOK, gin.H{
		"notifications": page,
		"count":         len(page),
		"nextCursor":    next,
		"hasMore":       hasMore,
	})
}

// MarkRead handles POST /v1/notifications/:id/read
func (h *Handler) MarkRead(c *gin.Context) {
	userID := auth.UserID(c)
	id := c.Param("id")

	n, err := h.service.MarkRead(c.Request.Context(), userID, id)
	if err != nil {
		if errors.Is(err, ErrNotificationNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Notification not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal_error", "message": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{"notification": n})
}

// CreateWebhookRequest is the payload for registering a webhook endpoint.
type CreateWebhookRequest struct {
	URL    string   `json:"url" binding:"required"`
	Events []string `json:"events"`
}

// CreateWebhook handles POST /v1/webhooks
func (h *Handler) CreateWebhook(c *gin.Context) {
	userID := auth.UserID(c)

	var req CreateWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request", "message": "Invalid request body"})
		return
	}

	if err := security.ValidateEndpointURL(req.URL); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_url", "message": err.Error()})
		return
	}

	events := make([]EventType, len(req.Events))
	for i, e := range req.Events {
		events[i] = EventType(e)
	}

	secret := idgen.Hex(32)
	sub := &Subscription{
		ID:        idgen.WithPrefix("wh_"),
		UserID:    userID,
		URL:       req.URL,
		Secret:    secret,
		Events:    events,
		Active:    true,
		CreatedAt: time.Now(),
	}

	if err := h.subs.Create(c.Request.Context(), sub); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "create_failed", "message": "Failed to create webhook"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"webhook": sub,
		"secret":  secret, // shown once
		"usage": gin.H{
			"signature": "Verify with HMAC-SHA256(payload, secret)",
			"header":    "X-Proptor-Signature",
		},
	})
}

// ListWebhooks handles GET /v1/webhooks
func (h *Handler) ListWebhooks(c *gin.Context) {
	userID := auth.UserID(c)

	subs, err := h.subs.ListByUser(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list_failed", "message": "Failed to list webhooks"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"webhooks": subs, "count": len(subs)})
}

// DeleteWebhook handles DELETE /v1/webhooks/:id
func (h *Handler) DeleteWebhook(c *gin.Context) {
	userID := auth.UserID(c)
	id := c.Param("id")

	sub, err := h.subs.Get(c.Request.Context(), id)
	if err != nil || sub.UserID != userID {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found", "message": "Webhook not found"})
		return
	}

	if err := h.subs.Delete(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "delete_failed", "message": "Failed to delete webhook"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}
