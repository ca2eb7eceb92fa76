package handler

import (
	"net/http"
	"strconv"

	"fundledger/internal/middleware"
	"fundledger/internal/repository"
	"fundledger/internal/service"

	"github.com/gin-gonic/gin"
)

type MilestoneHandler struct {
	ledgerSvc *service.LedgerService
	auditRepo *repository.AuditLogRepository
}

func NewMilestoneHandler(ledgerSvc *service.LedgerService, auditRepo *repository.AuditLogRepository) *MilestoneHandler {
	return &MilestoneHandler{ledgerSvc: ledgerSvc, auditRepo: auditRepo}
}

func actor(c *gin.Context) service.Actor {
	return service.Actor{
		ID:        middleware.GetActorID(c),
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}
}

// Approve moves a pending milestone to Approved once every earlier one is approved.
// POST /milestones/:id/approve
func (h *MilestoneHandler) Approve(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	st, err := h.ledgerSvc.ApproveMilestone(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Release pays out an approved milestone.
// POST /milestones/:id/release
func (h *MilestoneHandler) Release(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	st, err := h.ledgerSvc.ReleaseMilestone(c.Request.Context(), id, actor(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Audit lists who approved or released a milestone.
// GET /admin/milestones/:id/audit
func (h *MilestoneHandler) Audit(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	limit, _ := pagination(c)
	list, err := h.auditRepo.ListByResource("milestone", strconv.FormatUint(uint64(id), 10), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"audit": list})
}
