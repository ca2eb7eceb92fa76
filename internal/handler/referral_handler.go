package handler

import (
	"net/http"

	"fundledger/internal/middleware"
	"fundledger/internal/service"

	"github.com/gin-gonic/gin"
)

type ReferralHandler struct {
	referralSvc *service.ReferralService
}

func NewReferralHandler(referralSvc *service.ReferralService) *ReferralHandler {
	return &ReferralHandler{referralSvc: referralSvc}
}

// Claim records that the caller was referred by referrer_id. A donor can be
// referred once; repeating the same claim is harmless.
// POST /me/referral
func (h *ReferralHandler) Claim(c *gin.Context) {
	var body struct {
		ReferrerID string `json:"referrer_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	ref, err := h.referralSvc.RecordReferral(c.Request.Context(), body.ReferrerID, middleware.GetActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, ref)
}

// ListMine returns the donors the caller has referred.
// GET /me/referrals
func (h *ReferralHandler) ListMine(c *gin.Context) {
	limit, offset := pagination(c)
	list, err := h.referralSvc.ListByReferrer(c.Request.Context(), middleware.GetActorID(c), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not list referrals"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"referrals": list, "total": len(list)})
}
