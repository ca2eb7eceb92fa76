package handler

import (
	"net/http"

	"fundledger/internal/service"

	"github.com/gin-gonic/gin"
)

// WebhookHandler is the admin surface for outbound event subscriptions.
type WebhookHandler struct {
	webhookSvc *service.WebhookService
}

func NewWebhookHandler(webhookSvc *service.WebhookService) *WebhookHandler {
	return &WebhookHandler{webhookSvc: webhookSvc}
}

func (h *WebhookHandler) Create(c *gin.Context) {
	var body struct {
		Name       string   `json:"name"`
		URL        string   `json:"url"`
		Secret     string   `json:"secret"`
		EventTypes []string `json:"event_types"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	sub, err := h.webhookSvc.Create(c.Request.Context(), service.SubscriptionRequest{
		Name:       body.Name,
		URL:        body.URL,
		Secret:     body.Secret,
		EventTypes: body.EventTypes,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, sub)
}

func (h *WebhookHandler) List(c *gin.Context) {
	list, err := h.webhookSvc.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"webhooks": list})
}

// SetActive pauses or resumes deliveries.
// PATCH /admin/webhooks/:id  { "is_active": false }
func (h *WebhookHandler) SetActive(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	var body struct {
		IsActive *bool `json:"is_active"`
	}
	if err := c.ShouldBindJSON(&body); err != nil || body.IsActive == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "is_active required"})
		return
	}
	sub, err := h.webhookSvc.SetActive(c.Request.Context(), id, *body.IsActive)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, sub)
}

func (h *WebhookHandler) Delete(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.webhookSvc.Delete(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
