package handler

import (
	"net/http"

	"fundledger/internal/domain"
	"fundledger/internal/middleware"
	"fundledger/internal/service"

	"github.com/gin-gonic/gin"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type DonationHandler struct {
	ledgerSvc *service.LedgerService
}

func NewDonationHandler(ledgerSvc *service.LedgerService) *DonationHandler {
	return &DonationHandler{ledgerSvc: ledgerSvc}
}

type donationBody struct {
	DonorID          string `json:"donor_id"` // required on /donations; ADMIN only on /donations/pending
	AmountCents      int64  `json:"amount_cents"`
	ProjectID        *uint  `json:"project_id"`
	Recurring        bool   `json:"recurring"`
	PaymentReference string `json:"payment_reference"`
}

// request binds the body. For Record the donor comes from donor_id; for Open
// it is the caller unless an ADMIN names someone else.
func (h *DonationHandler) request(c *gin.Context, donorFromBody bool) (service.DonationRequest, bool) {
	var body donationBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return service.DonationRequest{}, false
	}
	donor := middleware.GetActorID(c)
	switch {
	case donorFromBody:
		if body.DonorID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "donor_id required"})
			return service.DonationRequest{}, false
		}
		donor = body.DonorID
	case body.DonorID != "" && middleware.GetRole(c) == domain.RoleAdmin:
		donor = body.DonorID
	}
	return service.DonationRequest{
		DonorID:        donor,
		AmountCents:    body.AmountCents,
		ProjectID:      body.ProjectID,
		Recurring:      body.Recurring,
		IdempotencyKey: c.GetHeader(HeaderIdempotencyKey),
		PaymentRef:     body.PaymentReference,
	}, true
}

// Record captures a donation the payment collaborator has already
// authorized, so it is limited to PAYMENT and ADMIN callers and needs an
// explicit donor_id. Resending the same Idempotency-Key returns the original.
// Donors go through /donations/pending and the payment webhook instead.
// POST /donations
func (h *DonationHandler) Record(c *gin.Context) {
	req, ok := h.request(c, true)
	if !ok {
		return
	}
	d, err := h.ledgerSvc.RecordDonation(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

// Open registers a pending donation to be settled by the payment webhook.
// POST /donations/pending
func (h *DonationHandler) Open(c *gin.Context) {
	req, ok := h.request(c, false)
	if !ok {
		return
	}
	d, err := h.ledgerSvc.OpenDonation(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusAccepted, d)
}

// Get returns one donation; donors only see their own.
func (h *DonationHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	d, err := h.ledgerSvc.GetDonation(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	if d.DonorID != middleware.GetActorID(c) && middleware.GetRole(c) != domain.RoleAdmin {
		respondError(c, domain.NotFound("donation", id))
		return
	}
	c.JSON(http.StatusOK, d)
}

// ListMine lists the caller's donations, newest first.
// GET /me/donations
func (h *DonationHandler) ListMine(c *gin.Context) {
	limit, offset := pagination(c)
	list, err := h.ledgerSvc.ListDonations(c.Request.Context(), middleware.GetActorID(c), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"donations": list})
}
