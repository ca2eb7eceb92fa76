package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"fundledger/internal/domain"
	"fundledger/internal/ledger"
	"fundledger/internal/models"
	"fundledger/internal/repository"
)

// LedgerService is the write path: every operation plans against a fresh
// fold inside LedgerRepository.Commit and publishes events only after the
// commit succeeds.
type LedgerService struct {
	ledgerRepo   *repository.LedgerRepository
	projectRepo  *repository.ProjectRepository
	donationRepo *repository.DonationRepository
	bus          *EventBus
	allocator    ledger.Allocator
}

func NewLedgerService(
	ledgerRepo *repository.LedgerRepository,
	projectRepo *repository.ProjectRepository,
	donationRepo *repository.DonationRepository,
	bus *EventBus,
	poolShares []ledger.Share,
) *LedgerService {
	return &LedgerService{
		ledgerRepo:   ledgerRepo,
		projectRepo:  projectRepo,
		donationRepo: donationRepo,
		bus:          bus,
		allocator:    ledger.Allocator{PoolShares: poolShares},
	}
}

type DonationRequest struct {
	DonorID        string
	AmountCents    int64
	ProjectID      *uint
	Recurring      bool
	IdempotencyKey string
	PaymentRef     string
}

// Actor identifies who asked for a privileged change, for the audit log.
type Actor struct {
	ID        string
	IP        string
	UserAgent string
}

// RecordDonation captures an already-authorized donation: the donation row,
// its DonationCaptured entry with allocations, and the event are committed
// together. A repeated idempotency key returns the original donation.
func (s *LedgerService) RecordDonation(ctx context.Context, req DonationRequest) (*models.Donation, error) {
	return s.createDonation(ctx, req, domain.DonationCaptured)
}

// OpenDonation registers a donation waiting for the payment provider. It is
// captured or failed later by SettlePayment using PaymentRef.
func (s *LedgerService) OpenDonation(ctx context.Context, req DonationRequest) (*models.Donation, error) {
	if strings.TrimSpace(req.PaymentRef) == "" {
		return nil, domain.Invalid("payment_reference", "required")
	}
	return s.createDonation(ctx, req, domain.DonationPending)
}

func (s *LedgerService) createDonation(ctx context.Context, req DonationRequest, status domain.DonationStatus) (*models.Donation, error) {
	req.DonorID = strings.TrimSpace(req.DonorID)
	if req.DonorID == "" {
		return nil, domain.Invalid("donor_id", "required")
	}
	if req.AmountCents > domain.MaxAmountCents {
		return nil, &domain.InvalidDonationError{ProjectID: req.ProjectID, Reason: fmt.Sprintf("amount exceeds %d", domain.MaxAmountCents)}
	}
	if req.IdempotencyKey != "" {
		if d, err := s.replay(req); d != nil || err != nil {
			return d, err
		}
	}

	var donation *models.Donation
	events, err := s.ledgerRepo.Commit(ctx, req.ProjectID, func(lt *repository.LedgerTx) error {
		var terms *ledger.ProjectTerms
		if p := lt.Project(); p != nil {
			terms = p.Terms()
		}
		plan, err := s.allocator.Allocate(req.AmountCents, req.ProjectID, terms)
		if err != nil {
			return err
		}
		d := &models.Donation{
			DonorID:     req.DonorID,
			AmountCents: req.AmountCents,
			ProjectID:   req.ProjectID,
			Recurring:   req.Recurring,
			Status:      status,
		}
		if req.IdempotencyKey != "" {
			d.IdempotencyKey = &req.IdempotencyKey
		}
		if req.PaymentRef != "" {
			d.PaymentRef = &req.PaymentRef
		}
		if status == domain.DonationCaptured {
			now := time.Now().UTC()
			d.CapturedAt = &now
		}
		if err := lt.CreateDonation(d); err != nil {
			return err
		}
		if status == domain.DonationCaptured {
			if _, err := capture(lt, d, plan); err != nil {
				return err
			}
		}
		donation = d
		return nil
	})
	if err != nil {
		var nf *domain.NotFoundError
		if errors.As(err, &nf) && nf.Entity == "project" {
			return nil, &domain.InvalidDonationError{ProjectID: req.ProjectID, Reason: "unknown project"}
		}
		if req.IdempotencyKey != "" {
			// Lost a race on the unique key: the winner's row is the answer.
			if d, rerr := s.replay(req); d != nil || rerr != nil {
				return d, rerr
			}
		}
		return nil, err
	}
	s.bus.Publish(events)
	if status == domain.DonationCaptured {
		log.Printf("[ledger] donation %d captured: %d cents from %s", donation.ID, donation.AmountCents, donation.DonorID)
	}
	return donation, nil
}

// replay returns the donation already recorded under req's idempotency key.
func (s *LedgerService) replay(req DonationRequest) (*models.Donation, error) {
	d, err := s.donationRepo.GetByIdempotencyKey(req.IdempotencyKey)
	if err != nil || d == nil {
		return nil, err
	}
	if !d.SamePayload(req.DonorID, req.AmountCents, req.ProjectID, req.Recurring) {
		return nil, domain.Invalid("idempotency_key", "already used for a different donation")
	}
	return d, nil
}

// SettlePayment applies the provider's verdict to a Pending donation.
// Settling a donation that is no longer Pending changes nothing.
func (s *LedgerService) SettlePayment(ctx context.Context, paymentRef string, succeeded bool) (*models.Donation, error) {
	d, err := s.donationRepo.GetByPaymentRef(paymentRef)
	if err != nil {
		return nil, err
	}
	if d.Status != domain.DonationPending {
		return d, nil
	}
	var settled *models.Donation
	events, err := s.ledgerRepo.Commit(ctx, d.ProjectID, func(lt *repository.LedgerTx) error {
		cur, err := lt.Donation(d.ID)
		if err != nil {
			return err
		}
		settled = cur
		if cur.Status != domain.DonationPending {
			return nil
		}
		if !succeeded {
			return lt.SettleDonation(cur, domain.DonationFailed)
		}
		// The donation was accepted while the project was open; a later
		// close does not void an authorized payment.
		var terms *ledger.ProjectTerms
		if p := lt.Project(); p != nil {
			terms = p.Terms()
			terms.Status = domain.ProjectStatusOpen
		}
		plan, err := s.allocator.Allocate(cur.AmountCents, cur.ProjectID, terms)
		if err != nil {
			return err
		}
		if err := lt.SettleDonation(cur, domain.DonationCaptured); err != nil {
			return err
		}
		_, err = capture(lt, cur, plan)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.bus.Publish(events)
	log.Printf("[ledger] payment %s settled: donation %d is %s", paymentRef, settled.ID, settled.Status)
	return settled, nil
}

func capture(lt *repository.LedgerTx, d *models.Donation, plan ledger.AllocationPlan) (uint, error) {
	e := &models.LedgerEntry{
		Type:        domain.EntryDonationCaptured,
		RefID:       d.ID,
		ProjectID:   d.ProjectID,
		DonorID:     d.DonorID,
		AmountCents: d.AmountCents,
	}
	for _, c := range plan.Categories {
		e.Allocations = append(e.Allocations, models.EntryAllocation{Category: c.Category, AmountCents: c.AmountCents})
	}
	entryID, err := lt.Append(e)
	if err != nil {
		return 0, err
	}
	err = lt.Emit(domain.EventDonationCaptured, d.ProjectID, domain.DonationCapturedData{
		DonationID:  d.ID,
		DonorID:     d.DonorID,
		AmountCents: d.AmountCents,
		ProjectID:   d.ProjectID,
		Recurring:   d.Recurring,
		EntryID:     entryID,
	})
	return entryID, err
}

type ProjectRequest struct {
	Name       string
	Country    string
	GoalCents  int64
	Categories []ledger.Share
	Milestones []MilestoneRequest
}

type MilestoneRequest struct {
	Title         string
	Sequence      int
	RequiredCents int64
}

func (s *LedgerService) CreateProject(ctx context.Context, req ProjectRequest) (*models.Project, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.Name == "" {
		return nil, domain.Invalid("name", "required")
	}
	if req.GoalCents <= 0 || req.GoalCents > domain.MaxAmountCents {
		return nil, domain.Invalid("goal_cents", "must be between 1 and %d", domain.MaxAmountCents)
	}
	if err := ledger.ValidateShares(req.Categories); err != nil {
		return nil, err
	}
	p := &models.Project{
		Name:      req.Name,
		Country:   strings.ToUpper(strings.TrimSpace(req.Country)),
		GoalCents: req.GoalCents,
		Status:    domain.ProjectStatusOpen,
	}
	for i, c := range req.Categories {
		p.Categories = append(p.Categories, models.FundCategory{Position: i, Name: strings.TrimSpace(c.Name), Percentage: c.Percentage})
	}
	seen := make(map[int]bool, len(req.Milestones))
	for _, m := range req.Milestones {
		if strings.TrimSpace(m.Title) == "" {
			return nil, domain.Invalid("milestones.title", "required")
		}
		if m.Sequence <= 0 {
			return nil, domain.Invalid("milestones.sequence", "must be positive, got %d", m.Sequence)
		}
		if seen[m.Sequence] {
			return nil, domain.Invalid("milestones.sequence", "sequence %d used twice", m.Sequence)
		}
		seen[m.Sequence] = true
		if m.RequiredCents <= 0 || m.RequiredCents > domain.MaxAmountCents {
			return nil, domain.Invalid("milestones.required_cents", "must be between 1 and %d", domain.MaxAmountCents)
		}
		p.Milestones = append(p.Milestones, models.Milestone{
			Title:         strings.TrimSpace(m.Title),
			Sequence:      m.Sequence,
			RequiredCents: m.RequiredCents,
			Status:        domain.MilestonePending,
		})
	}
	if err := s.projectRepo.Create(p); err != nil {
		return nil, err
	}
	log.Printf("[ledger] project %d created: %s (%d categories, %d milestones)", p.ID, p.Name, len(p.Categories), len(p.Milestones))
	return s.projectRepo.GetByID(p.ID)
}

// CloseProject stops new designated donations. Closing twice is a no-op.
func (s *LedgerService) CloseProject(ctx context.Context, projectID uint) (*models.Project, error) {
	_, err := s.ledgerRepo.Commit(ctx, &projectID, func(lt *repository.LedgerTx) error {
		if lt.Project().Status == domain.ProjectStatusClosed {
			return nil
		}
		return lt.SetProjectStatus(domain.ProjectStatusClosed)
	})
	if err != nil {
		return nil, err
	}
	return s.projectRepo.GetByID(projectID)
}

func (s *LedgerService) GetProject(ctx context.Context, projectID uint) (*models.Project, error) {
	return s.projectRepo.GetByID(projectID)
}

func (s *LedgerService) ListProjects(ctx context.Context, status string, limit, offset int) ([]models.Project, error) {
	return s.projectRepo.List(status, limit, offset)
}

func (s *LedgerService) GetProjectState(ctx context.Context, projectID uint) (ledger.ProjectState, error) {
	return s.ledgerRepo.Snapshot(ctx, projectID)
}

func (s *LedgerService) GetPoolState(ctx context.Context) (ledger.PoolState, error) {
	return s.ledgerRepo.PoolSnapshot(ctx, s.allocator.PoolShares)
}

func (s *LedgerService) GetDonation(ctx context.Context, id uint) (*models.Donation, error) {
	return s.donationRepo.GetByID(id)
}

func (s *LedgerService) ListDonations(ctx context.Context, donorID string, limit, offset int) ([]models.Donation, error) {
	return s.donationRepo.ListByDonor(donorID, limit, offset)
}

// ApproveMilestone moves a Pending milestone to Approved.
func (s *LedgerService) ApproveMilestone(ctx context.Context, milestoneID uint, approver Actor) (ledger.MilestoneState, error) {
	if strings.TrimSpace(approver.ID) == "" {
		return ledger.MilestoneState{}, domain.Invalid("approver_id", "required")
	}
	return s.transition(ctx, milestoneID, approver, domain.EntryMilestoneApproved)
}

// ReleaseMilestone pays out an Approved milestone once funds cover it.
func (s *LedgerService) ReleaseMilestone(ctx context.Context, milestoneID uint, actor Actor) (ledger.MilestoneState, error) {
	return s.transition(ctx, milestoneID, actor, domain.EntryMilestoneReleased)
}

func (s *LedgerService) transition(ctx context.Context, milestoneID uint, actor Actor, kind domain.EntryType) (ledger.MilestoneState, error) {
	m, err := s.projectRepo.GetMilestone(milestoneID)
	if err != nil {
		return ledger.MilestoneState{}, err
	}
	projectID := m.ProjectID

	var result ledger.MilestoneState
	var noop bool
	events, err := s.ledgerRepo.Commit(ctx, &projectID, func(lt *repository.LedgerTx) error {
		st, err := lt.Snapshot()
		if err != nil {
			return err
		}
		var tr ledger.Transition
		if kind == domain.EntryMilestoneApproved {
			tr, err = ledger.PlanApproval(st, milestoneID)
		} else {
			tr, err = ledger.PlanRelease(st, milestoneID)
		}
		if err != nil {
			return err
		}
		if tr.NoOp {
			noop = true
			result = *st.Milestone(milestoneID)
			return nil
		}
		entryID, err := lt.Append(&models.LedgerEntry{
			Type:        kind,
			RefID:       milestoneID,
			ProjectID:   &projectID,
			AmountCents: tr.AmountCents,
		})
		if err != nil {
			return err
		}
		if err := lt.ApplyTransition(tr, actor.ID); err != nil {
			return err
		}
		action, eventType := "milestone_approved", domain.EventMilestoneApproved
		if kind == domain.EntryMilestoneReleased {
			action, eventType = "milestone_released", domain.EventMilestoneReleased
		}
		meta, err := json.Marshal(map[string]interface{}{"project_id": projectID, "amount_cents": tr.AmountCents, "entry_id": entryID})
		if err != nil {
			return err
		}
		if err := lt.Audit(&models.AuditLog{
			ActorID:    actor.ID,
			Action:     action,
			Resource:   "milestone",
			ResourceID: strconv.FormatUint(uint64(milestoneID), 10),
			IP:         actor.IP,
			UserAgent:  actor.UserAgent,
			Metadata:   string(meta),
		}); err != nil {
			return err
		}
		if err := lt.Emit(eventType, &projectID, domain.MilestoneEventData{
			MilestoneID: milestoneID,
			ProjectID:   projectID,
			Title:       m.Title,
			Sequence:    m.Sequence,
			AmountCents: tr.AmountCents,
			ApproverID:  actor.ID,
			EntryID:     entryID,
		}); err != nil {
			return err
		}
		after, err := lt.Snapshot()
		if err != nil {
			return err
		}
		result = *after.Milestone(milestoneID)
		return nil
	})
	if err != nil {
		return ledger.MilestoneState{}, err
	}
	if !noop {
		s.bus.Publish(events)
		log.Printf("[ledger] milestone %d of project %d is now %s", milestoneID, projectID, result.Status)
	}
	return result, nil
}

// VerifyReport is the outcome of replaying every project's history.
type VerifyReport struct {
	Projects int      `json:"projects"`
	Entries  int      `json:"entries"`
	Problems []string `json:"problems"`
}

func (r *VerifyReport) OK() bool { return len(r.Problems) == 0 }

// Verify replays each project twice and checks that both folds agree, that
// the books reconcile, and that stored milestone rows match the fold.
func (s *LedgerService) Verify(ctx context.Context) (*VerifyReport, error) {
	ids, err := s.projectRepo.IDs()
	if err != nil {
		return nil, err
	}
	rep := &VerifyReport{Projects: len(ids)}
	for _, id := range ids {
		first, err := s.ledgerRepo.Snapshot(ctx, id)
		if err != nil {
			rep.Problems = append(rep.Problems, fmt.Sprintf("project %d: %v", id, err))
			continue
		}
		second, err := s.ledgerRepo.Snapshot(ctx, id)
		if err != nil {
			rep.Problems = append(rep.Problems, fmt.Sprintf("project %d: %v", id, err))
			continue
		}
		rows, err := s.ledgerRepo.Entries(ctx, &id)
		if err != nil {
			return nil, err
		}
		rep.Entries += len(rows)
		a, err := json.Marshal(first)
		if err != nil {
			return nil, err
		}
		b, err := json.Marshal(second)
		if err != nil {
			return nil, err
		}
		if string(a) != string(b) {
			rep.Problems = append(rep.Problems, fmt.Sprintf("project %d: replay is not deterministic", id))
		}
		if first.ReleasedCents > first.RaisedCents {
			rep.Problems = append(rep.Problems, fmt.Sprintf("project %d: released %d exceeds raised %d", id, first.ReleasedCents, first.RaisedCents))
		}
		var allocated int64
		for _, c := range first.Categories {
			allocated += c.AmountCents
		}
		if allocated != first.RaisedCents {
			rep.Problems = append(rep.Problems, fmt.Sprintf("project %d: categories hold %d, raised %d", id, allocated, first.RaisedCents))
		}
		p, err := s.projectRepo.GetByID(id)
		if err != nil {
			return nil, err
		}
		for _, m := range p.Milestones {
			ms := first.Milestone(m.ID)
			if ms == nil || ms.Status != m.Status || ms.ReleasedCents != m.ReleasedCents {
				rep.Problems = append(rep.Problems, fmt.Sprintf("project %d: milestone %d row is %s but ledger says otherwise", id, m.ID, m.Status))
			}
		}
	}
	return rep, nil
}
