package handler

import (
	"net/http"

	"fundledger/internal/domain"
	"fundledger/internal/ledger"
	"fundledger/internal/repository"
	"fundledger/internal/service"

	"github.com/gin-gonic/gin"
)

type ProjectHandler struct {
	ledgerSvc  *service.LedgerService
	outboxRepo *repository.OutboxRepository
}

func NewProjectHandler(ledgerSvc *service.LedgerService, outboxRepo *repository.OutboxRepository) *ProjectHandler {
	return &ProjectHandler{ledgerSvc: ledgerSvc, outboxRepo: outboxRepo}
}

type createProjectBody struct {
	Name       string         `json:"name"`
	Country    string         `json:"country"`
	GoalCents  int64          `json:"goal_cents"`
	Categories []ledger.Share `json:"categories"`
	Milestones []struct {
		Title         string `json:"title"`
		Sequence      int    `json:"sequence"`
		RequiredCents int64  `json:"required_cents"`
	} `json:"milestones"`
}

// Create registers a project with its categories and milestones.
// POST /admin/projects
func (h *ProjectHandler) Create(c *gin.Context) {
	var body createProjectBody
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	req := service.ProjectRequest{
		Name:       body.Name,
		Country:    body.Country,
		GoalCents:  body.GoalCents,
		Categories: body.Categories,
	}
	for _, m := range body.Milestones {
		req.Milestones = append(req.Milestones, service.MilestoneRequest{Title: m.Title, Sequence: m.Sequence, RequiredCents: m.RequiredCents})
	}
	p, err := h.ledgerSvc.CreateProject(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *ProjectHandler) List(c *gin.Context) {
	limit, offset := pagination(c)
	list, err := h.ledgerSvc.ListProjects(c.Request.Context(), c.Query("status"), limit, offset)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"projects": list})
}

func (h *ProjectHandler) Get(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.ledgerSvc.GetProject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// State is the ledger fold for one project.
// GET /projects/:id/state
func (h *ProjectHandler) State(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	st, err := h.ledgerSvc.GetProjectState(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// Events returns the most recent committed events for a project.
// GET /projects/:id/events
func (h *ProjectHandler) Events(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	if _, err := h.ledgerSvc.GetProject(c.Request.Context(), id); err != nil {
		respondError(c, err)
		return
	}
	limit, _ := pagination(c)
	rows, err := h.outboxRepo.ListRecent(&id, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	events := make([]domain.Event, 0, len(rows))
	for _, row := range rows {
		events = append(events, service.ToEvent(row))
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// Close stops the project accepting designated donations.
// POST /admin/projects/:id/close
func (h *ProjectHandler) Close(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}
	p, err := h.ledgerSvc.CloseProject(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// Pool is the undesignated pool split by category.
// GET /pool
func (h *ProjectHandler) Pool(c *gin.Context) {
	st, err := h.ledgerSvc.GetPoolState(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}
