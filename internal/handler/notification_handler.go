package handler

import (
	"net/http"

	"fundledger/internal/middleware"
	"fundledger/internal/service"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifSvc *service.NotificationService
}

func NewNotificationHandler(notifSvc *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifSvc: notifSvc}
}

func (h *NotificationHandler) List(c *gin.Context) {
	donorID := middleware.GetActorID(c)
	limit, offset := pagination(c)
	list, err := h.notifSvc.List(donorID, limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	unread, _ := h.notifSvc.UnreadCount(donorID)
	c.JSON(http.StatusOK, gin.H{"notifications": list, "unread": unread})
}

func (h *NotificationHandler) MarkRead(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if err := h.notifSvc.MarkRead(id, middleware.GetActorID(c)); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "update failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
