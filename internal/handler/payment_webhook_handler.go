package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"

	"fundledger/config"
	"fundledger/internal/domain"
	"fundledger/internal/service"

	"github.com/gin-gonic/gin"
)

const HeaderWebhookSignature = "X-Webhook-Signature"

type PaymentWebhookHandler struct {
	ledgerSvc *service.LedgerService
	cfg       *config.Config
}

func NewPaymentWebhookHandler(ledgerSvc *service.LedgerService, cfg *config.Config) *PaymentWebhookHandler {
	return &PaymentWebhookHandler{ledgerSvc: ledgerSvc, cfg: cfg}
}

// Handle settles a pending donation from the payment provider's callback.
// Expects JSON { "reference": "...", "status": "COMPLETED" | "FAILED" } and,
// when a secret is configured, a hex HMAC-SHA256 in X-Webhook-Signature.
// Unknown references and other statuses are acknowledged and ignored.
func (h *PaymentWebhookHandler) Handle(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, 1<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid body"})
		return
	}
	if h.cfg.Payment.WebhookSecret != "" {
		if !service.VerifySignature(h.cfg.Payment.WebhookSecret, body, c.GetHeader(HeaderWebhookSignature)) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid signature"})
			return
		}
	}
	var payload struct {
		Reference string `json:"reference"`
		Status    string `json:"status"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if payload.Reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "reference required"})
		return
	}
	var succeeded bool
	switch strings.ToUpper(payload.Status) {
	case "COMPLETED", "SUCCEEDED", "CAPTURED":
		succeeded = true
	case "FAILED", "DECLINED", "CANCELLED":
	default:
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	d, err := h.ledgerSvc.SettlePayment(c.Request.Context(), payload.Reference, succeeded)
	if errors.Is(err, domain.ErrNotFound) {
		log.Printf("[payment] callback for unknown reference %s", payload.Reference)
		c.JSON(http.StatusOK, gin.H{"received": true})
		return
	}
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true, "donation_id": d.ID, "status": d.Status})
}
