package handler

import (
	"net/http"
	"strconv"

	"fundledger/internal/middleware"
	"fundledger/internal/service"

	"github.com/gin-gonic/gin"
)

type ProgressHandler struct {
	progressSvc     *service.ProgressService
	leaderboardSize int
}

func NewProgressHandler(progressSvc *service.ProgressService, leaderboardSize int) *ProgressHandler {
	return &ProgressHandler{progressSvc: progressSvc, leaderboardSize: leaderboardSize}
}

// Donor returns badges and rank for any donor.
// GET /donors/:id/progress
func (h *ProgressHandler) Donor(c *gin.Context) {
	h.respond(c, c.Param("id"))
}

// GET /me/progress
func (h *ProgressHandler) Me(c *gin.Context) {
	h.respond(c, middleware.GetActorID(c))
}

func (h *ProgressHandler) respond(c *gin.Context, donorID string) {
	prog, err := h.progressSvc.GetDonorProgress(c.Request.Context(), donorID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, prog)
}

// Leaderboard returns the top donors; ?limit caps at the configured size.
// GET /leaderboard
func (h *ProgressHandler) Leaderboard(c *gin.Context) {
	limit := h.leaderboardSize
	if n, err := strconv.Atoi(c.Query("limit")); err == nil && n > 0 && n < limit {
		limit = n
	}
	rows, err := h.progressSvc.Leaderboard(c.Request.Context(), limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": rows})
}
