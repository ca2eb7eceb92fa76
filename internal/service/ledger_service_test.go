package service

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"fundledger/config"
	"fundledger/internal/database"
	"fundledger/internal/domain"
	"fundledger/internal/ledger"
	"fundledger/internal/models"
	"fundledger/internal/repository"

	"gorm.io/gorm"
)

type harness struct {
	db        *gorm.DB
	ledger    *LedgerService
	progress  *ProgressService
	referrals *ReferralService
	notifs    *NotificationService
	bus       *EventBus
	outbox    *repository.OutboxRepository

	mu   sync.Mutex
	seen []domain.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, err := database.NewDB(&config.DatabaseConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "svc.db"), ConnMaxLifetime: time.Hour})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})

	h := &harness{db: db}
	ledgerRepo := repository.NewLedgerRepository(db)
	donationRepo := repository.NewDonationRepository(db)
	referralRepo := repository.NewReferralRepository(db)
	h.outbox = repository.NewOutboxRepository(db)
	h.bus = NewEventBus(h.outbox, 1024)
	h.ledger = NewLedgerService(ledgerRepo, repository.NewProjectRepository(db), donationRepo, h.bus, config.DefaultLedger().PoolCategories)
	h.progress = NewProgressService(ledgerRepo, referralRepo, ledger.DefaultBadges(ledger.DefaultThresholds()))
	h.referrals = NewReferralService(referralRepo)
	h.notifs = NewNotificationService(repository.NewNotificationRepository(db), donationRepo)

	if err := h.bus.Subscribe("recorder", SubscriberFunc(func(ctx context.Context, ev domain.Event) error {
		h.mu.Lock()
		h.seen = append(h.seen, ev)
		h.mu.Unlock()
		return nil
	})); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := h.bus.Subscribe("notifications", h.notifs, domain.EventDonationCaptured, domain.EventMilestoneReleased); err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	return h
}

// drain delivers everything Publish has queued so far.
func (h *harness) drain(t *testing.T) {
	t.Helper()
	for {
		select {
		case ev := <-h.bus.queue:
			if err := h.bus.Deliver(context.Background(), ev); err != nil {
				t.Fatalf("deliver: %v", err)
			}
		default:
			return
		}
	}
}

func (h *harness) eventTypes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.seen))
	for i, ev := range h.seen {
		out[i] = ev.Type
	}
	return out
}

func (h *harness) clinic(t *testing.T) *models.Project {
	t.Helper()
	p, err := h.ledger.CreateProject(context.Background(), ProjectRequest{
		Name:       "Rural Medical Clinic",
		Country:    "ke",
		GoalCents:  50000,
		Categories: []ledger.Share{{Name: "Medical Supplies", Percentage: 40}, {Name: "Infrastructure", Percentage: 35}, {Name: "Training", Percentage: 25}},
		Milestones: []MilestoneRequest{
			{Title: "Foundation", Sequence: 1, RequiredCents: 20000},
			{Title: "Equipment", Sequence: 2, RequiredCents: 30000},
		},
	})
	if err != nil {
		t.Fatalf("create project: %v", err)
	}
	return p
}

func (h *harness) donate(t *testing.T, donor string, amount int64, projectID *uint) *models.Donation {
	t.Helper()
	d, err := h.ledger.RecordDonation(context.Background(), DonationRequest{DonorID: donor, AmountCents: amount, ProjectID: projectID})
	if err != nil {
		t.Fatalf("record donation: %v", err)
	}
	return d
}

func TestLedgerService_ClinicScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.clinic(t)
	m1, m2 := p.Milestones[0].ID, p.Milestones[1].ID
	approver := Actor{ID: "approver-1", IP: "10.0.0.1"}

	h.donate(t, "alice", 15000, &p.ID)
	h.donate(t, "bob", 10000, &p.ID)

	if _, err := h.ledger.ApproveMilestone(ctx, m1, approver); err != nil {
		t.Fatalf("approve M1: %v", err)
	}
	ms, err := h.ledger.ReleaseMilestone(ctx, m1, approver)
	if err != nil {
		t.Fatalf("release M1: %v", err)
	}
	if ms.Status != domain.MilestoneReleased || ms.ReleasedCents != 20000 {
		t.Fatalf("unexpected M1 state %+v", ms)
	}
	if _, err := h.ledger.ApproveMilestone(ctx, m2, approver); err != nil {
		t.Fatalf("approve M2: %v", err)
	}
	_, err = h.ledger.ReleaseMilestone(ctx, m2, approver)
	var te *domain.InvalidTransitionError
	if !errors.As(err, &te) || te.ID != m2 {
		t.Fatalf("expected invalid transition for M2, got %v", err)
	}

	h.donate(t, "carol", 25000, &p.ID)
	if _, err := h.ledger.ReleaseMilestone(ctx, m2, approver); err != nil {
		t.Fatalf("release M2: %v", err)
	}

	st, err := h.ledger.GetProjectState(ctx, p.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.RaisedCents != 50000 || st.ReleasedCents != 50000 || st.AvailableCents != 0 || !st.Completed() {
		t.Fatalf("unexpected final state %+v", st)
	}
	if st.Categories[0].AmountCents != 20000 || st.Categories[1].AmountCents != 17500 || st.Categories[2].AmountCents != 12500 {
		t.Fatalf("unexpected category totals %+v", st.Categories)
	}

	h.drain(t)
	want := []string{
		domain.EventDonationCaptured, domain.EventDonationCaptured,
		domain.EventMilestoneApproved, domain.EventMilestoneReleased,
		domain.EventMilestoneApproved,
		domain.EventDonationCaptured, domain.EventMilestoneReleased,
	}
	got := h.eventTypes()
	if len(got) != len(want) {
		t.Fatalf("expected events %v, got %v", want, got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected events %v, got %v", want, got)
		}
	}

	rep, err := h.ledger.Verify(ctx)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !rep.OK() || rep.Entries != 7 {
		t.Fatalf("unexpected verify report %+v", rep)
	}

	var audits int64
	h.db.Model(&models.AuditLog{}).Count(&audits)
	if audits != 4 {
		t.Fatalf("expected 4 audit rows, got %d", audits)
	}
}

func TestLedgerService_RepeatedTransitionsAreSilent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.clinic(t)
	m1 := p.Milestones[0].ID
	h.donate(t, "alice", 20000, &p.ID)

	for i := 0; i < 3; i++ {
		if _, err := h.ledger.ApproveMilestone(ctx, m1, Actor{ID: "a"}); err != nil {
			t.Fatalf("approve %d: %v", i, err)
		}
	}
	for i := 0; i < 3; i++ {
		if _, err := h.ledger.ReleaseMilestone(ctx, m1, Actor{ID: "a"}); err != nil {
			t.Fatalf("release %d: %v", i, err)
		}
	}
	h.drain(t)
	counts := map[string]int{}
	for _, typ := range h.eventTypes() {
		counts[typ]++
	}
	if counts[domain.EventMilestoneApproved] != 1 || counts[domain.EventMilestoneReleased] != 1 {
		t.Fatalf("expected one event per transition, got %v", counts)
	}
	st, _ := h.ledger.GetProjectState(ctx, p.ID)
	if st.ReleasedCents != 20000 {
		t.Fatalf("expected a single release, got %d", st.ReleasedCents)
	}
}

func TestLedgerService_ApproveRequiresApprover(t *testing.T) {
	h := newHarness(t)
	p := h.clinic(t)
	if _, err := h.ledger.ApproveMilestone(context.Background(), p.Milestones[0].ID, Actor{}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if _, err := h.ledger.ApproveMilestone(context.Background(), 999, Actor{ID: "a"}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestRecordDonation_Idempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.clinic(t)
	req := DonationRequest{DonorID: "alice", AmountCents: 1234, ProjectID: &p.ID, IdempotencyKey: "key-1"}

	first, err := h.ledger.RecordDonation(ctx, req)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	second, err := h.ledger.RecordDonation(ctx, req)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if first.ID != second.ID {
		t.Fatalf("expected the same donation, got %d and %d", first.ID, second.ID)
	}
	st, _ := h.ledger.GetProjectState(ctx, p.ID)
	if st.RaisedCents != 1234 || st.DonationCount != 1 {
		t.Fatalf("duplicate capture: %+v", st)
	}

	req.AmountCents = 999
	if _, err := h.ledger.RecordDonation(ctx, req); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected validation error for reused key, got %v", err)
	}
}

func TestRecordDonation_Invalid(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.clinic(t)
	missing := uint(999)
	var inv *domain.InvalidDonationError

	if _, err := h.ledger.RecordDonation(ctx, DonationRequest{DonorID: "a", AmountCents: 0, ProjectID: &p.ID}); !errors.As(err, &inv) {
		t.Fatalf("zero amount: expected InvalidDonationError, got %v", err)
	}
	if _, err := h.ledger.RecordDonation(ctx, DonationRequest{DonorID: "a", AmountCents: 10, ProjectID: &missing}); !errors.As(err, &inv) {
		t.Fatalf("unknown project: expected InvalidDonationError, got %v", err)
	}
	if _, err := h.ledger.RecordDonation(ctx, DonationRequest{AmountCents: 10, ProjectID: &p.ID}); !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("missing donor: expected validation error, got %v", err)
	}
	if _, err := h.ledger.CloseProject(ctx, p.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := h.ledger.RecordDonation(ctx, DonationRequest{DonorID: "a", AmountCents: 10, ProjectID: &p.ID}); !errors.As(err, &inv) {
		t.Fatalf("closed project: expected InvalidDonationError, got %v", err)
	}
	var n int64
	h.db.Model(&models.Donation{}).Count(&n)
	if n != 0 {
		t.Fatalf("rejected donations were stored: %d", n)
	}
}

func TestRecordDonation_UndesignatedGoesToPool(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.donate(t, "alice", 1001, nil)

	pool, err := h.ledger.GetPoolState(ctx)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if pool.RaisedCents != 1001 || pool.DonationCount != 1 {
		t.Fatalf("unexpected pool %+v", pool)
	}
	var sum int64
	for _, c := range pool.Categories {
		sum += c.AmountCents
	}
	if sum != 1001 || pool.Categories[0].Category != "Medical Supplies" || pool.Categories[0].AmountCents != 401 {
		t.Fatalf("unexpected pool split %+v", pool.Categories)
	}
}

func TestSettlePayment(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.clinic(t)

	d, err := h.ledger.OpenDonation(ctx, DonationRequest{DonorID: "alice", AmountCents: 5000, ProjectID: &p.ID, PaymentRef: "pay-1"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if d.Status != domain.DonationPending {
		t.Fatalf("expected pending, got %s", d.Status)
	}
	st, _ := h.ledger.GetProjectState(ctx, p.ID)
	if st.RaisedCents != 0 {
		t.Fatalf("pending donation counted as raised")
	}

	// Closing the project after authorization does not void the payment.
	if _, err := h.ledger.CloseProject(ctx, p.ID); err != nil {
		t.Fatalf("close: %v", err)
	}
	settled, err := h.ledger.SettlePayment(ctx, "pay-1", true)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if settled.Status != domain.DonationCaptured || settled.CapturedAt == nil {
		t.Fatalf("expected captured, got %+v", settled)
	}
	again, err := h.ledger.SettlePayment(ctx, "pay-1", false)
	if err != nil || again.Status != domain.DonationCaptured {
		t.Fatalf("second settle should be a no-op, got %+v %v", again, err)
	}
	st, _ = h.ledger.GetProjectState(ctx, p.ID)
	if st.RaisedCents != 5000 || st.DonationCount != 1 {
		t.Fatalf("unexpected state after settle %+v", st)
	}

	if _, err := h.ledger.OpenDonation(ctx, DonationRequest{DonorID: "bob", AmountCents: 700, PaymentRef: "pay-2"}); err != nil {
		t.Fatalf("open pool: %v", err)
	}
	failed, err := h.ledger.SettlePayment(ctx, "pay-2", false)
	if err != nil || failed.Status != domain.DonationFailed {
		t.Fatalf("expected failed donation, got %+v %v", failed, err)
	}
	pool, _ := h.ledger.GetPoolState(ctx)
	if pool.RaisedCents != 0 {
		t.Fatalf("failed payment reached the pool")
	}
	if _, err := h.ledger.SettlePayment(ctx, "nope", true); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestConcurrentWritesSerializePerProject(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.clinic(t)
	m1 := p.Milestones[0].ID

	var wg sync.WaitGroup
	errs := make(chan error, 64)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ledger.RecordDonation(ctx, DonationRequest{DonorID: "crowd", AmountCents: 1000, ProjectID: &p.ID})
			errs <- err
		}()
	}
	wg.Wait()
	if _, err := h.ledger.ApproveMilestone(ctx, m1, Actor{ID: "a"}); err != nil {
		t.Fatalf("approve: %v", err)
	}
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.ledger.ReleaseMilestone(ctx, m1, Actor{ID: "a"})
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("concurrent op: %v", err)
		}
	}

	st, err := h.ledger.GetProjectState(ctx, p.ID)
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	if st.RaisedCents != 20000 || st.ReleasedCents != 20000 {
		t.Fatalf("expected raised=released=20000, got %+v", st)
	}
	var releases int64
	h.db.Model(&models.LedgerEntry{}).Where("type = ?", domain.EntryMilestoneReleased).Count(&releases)
	if releases != 1 {
		t.Fatalf("expected exactly one release entry, got %d", releases)
	}
}

func TestCreateProject_Validation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	base := ProjectRequest{Name: "Well", GoalCents: 1000}
	cases := map[string]func(r *ProjectRequest){
		"no-name":       func(r *ProjectRequest) { r.Name = " " },
		"zero-goal":     func(r *ProjectRequest) { r.GoalCents = 0 },
		"over-100":      func(r *ProjectRequest) { r.Categories = []ledger.Share{{Name: "A", Percentage: 70}, {Name: "B", Percentage: 31}} },
		"dup-category":  func(r *ProjectRequest) { r.Categories = []ledger.Share{{Name: "A", Percentage: 10}, {Name: "a", Percentage: 10}} },
		"zero-required": func(r *ProjectRequest) { r.Milestones = []MilestoneRequest{{Title: "x", Sequence: 1}} },
		"dup-sequence":  func(r *ProjectRequest) { r.Milestones = []MilestoneRequest{{Title: "x", Sequence: 1, RequiredCents: 1}, {Title: "y", Sequence: 1, RequiredCents: 1}} },
		"no-title":      func(r *ProjectRequest) { r.Milestones = []MilestoneRequest{{Sequence: 1, RequiredCents: 1}} },
		"bad-sequence":  func(r *ProjectRequest) { r.Milestones = []MilestoneRequest{{Title: "x", Sequence: 0, RequiredCents: 1}} },
	}
	for name, mutate := range cases {
		req := base
		mutate(&req)
		if _, err := h.ledger.CreateProject(ctx, req); !errors.Is(err, domain.ErrValidation) {
			t.Fatalf("%s: expected validation error, got %v", name, err)
		}
	}
}
