package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"fundledger/internal/domain"
	"fundledger/internal/ledger"
	"fundledger/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const poolKey = "pool"

// LedgerRepository owns every write to the ledger. All mutations go through
// Commit, which serializes work per project and checks the project's version
// before the transaction is allowed to commit.
type LedgerRepository struct {
	db    *gorm.DB
	locks *keyedLocks
	now   func() time.Time
}

func NewLedgerRepository(db *gorm.DB) *LedgerRepository {
	return &LedgerRepository{db: db, locks: newKeyedLocks(), now: time.Now}
}

// LedgerTx is the view of the store a single Commit callback works against.
// It must not be used after the callback returns.
type LedgerTx struct {
	tx        *gorm.DB
	projectID *uint
	project   *models.Project
	version   int64
	lastAt    time.Time
	touched   bool
	events    []models.OutboxEvent
	now       func() time.Time
}

// Commit runs fn in one transaction while holding the lock for projectID
// (nil means the undesignated pool). On MySQL the project row is also locked
// with SELECT ... FOR UPDATE so several instances serialize. If fn appended
// anything the project's version is bumped with a compare-and-set; losing
// that race yields a ConcurrencyError and nothing is committed.
//
// The returned outbox rows were written in the same transaction and are
// ready to publish.
func (r *LedgerRepository) Commit(ctx context.Context, projectID *uint, fn func(*LedgerTx) error) ([]models.OutboxEvent, error) {
	key := poolKey
	if projectID != nil {
		key = fmt.Sprintf("project:%d", *projectID)
	}
	unlock := r.locks.lock(key)
	defer unlock()

	var events []models.OutboxEvent
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		lt := &LedgerTx{tx: tx, projectID: projectID, now: r.now}
		if projectID != nil {
			p, err := loadProject(tx, *projectID, tx.Dialector.Name() == "mysql")
			if err != nil {
				return err
			}
			lt.project = p
			lt.version = p.Version
		}
		if err := fn(lt); err != nil {
			return err
		}
		if lt.touched && lt.project != nil {
			res := tx.Model(&models.Project{}).
				Where("id = ? AND version = ?", lt.project.ID, lt.version).
				UpdateColumn("version", gorm.Expr("version + 1"))
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				return &domain.ConcurrencyError{Entity: "project", ID: lt.project.ID, Detail: fmt.Sprintf("version %d is stale", lt.version)}
			}
		}
		events = lt.events
		return nil
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// Project is the locked project, or nil inside a pool commit.
func (t *LedgerTx) Project() *models.Project { return t.project }

// Snapshot folds the project's entries as seen inside this transaction.
func (t *LedgerTx) Snapshot() (ledger.ProjectState, error) {
	if t.project == nil {
		return ledger.ProjectState{}, domain.Invalid("project_id", "snapshot needs a project")
	}
	return foldProject(t.tx, t.project)
}

// Append writes one ledger entry and returns its id. The entry's project must
// be the one this commit holds, amounts must be positive, and the referenced
// donation or milestone must exist. OccurredAt is assigned here and never
// goes backwards within a project.
func (t *LedgerTx) Append(e *models.LedgerEntry) (uint, error) {
	if e.AmountCents <= 0 {
		return 0, domain.Invalid("amount_cents", "must be positive, got %d", e.AmountCents)
	}
	if !sameProject(e.ProjectID, t.projectID) {
		return 0, domain.Invalid("project_id", "entry is not for the project being committed")
	}
	if err := t.checkRef(e); err != nil {
		return 0, err
	}
	at, err := t.nextTimestamp()
	if err != nil {
		return 0, err
	}
	e.ID = 0
	e.OccurredAt = at
	for i := range e.Allocations {
		e.Allocations[i].ID = 0
		e.Allocations[i].EntryID = 0
	}
	if err := t.tx.Create(e).Error; err != nil {
		return 0, err
	}
	t.lastAt = at
	t.touched = true
	return e.ID, nil
}

func (t *LedgerTx) checkRef(e *models.LedgerEntry) error {
	switch e.Type {
	case domain.EntryDonationCaptured:
		var d models.Donation
		if err := t.tx.First(&d, e.RefID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return domain.Invalid("ref_id", "donation %d does not exist", e.RefID)
			}
			return err
		}
		if !sameProject(d.ProjectID, e.ProjectID) {
			return domain.Invalid("ref_id", "donation %d belongs to a different project", e.RefID)
		}
	case domain.EntryMilestoneApproved, domain.EntryMilestoneReleased:
		if t.project == nil {
			return domain.Invalid("project_id", "milestone entries need a project")
		}
		found := false
		for _, m := range t.project.Milestones {
			if m.ID == e.RefID {
				found = true
				break
			}
		}
		if !found {
			return domain.Invalid("ref_id", "milestone %d does not exist in project %d", e.RefID, t.project.ID)
		}
	default:
		return domain.Invalid("type", "unknown entry type %q", e.Type)
	}
	return nil
}

// nextTimestamp is max(now, last entry) at millisecond precision, so replay
// order matches commit order even if the wall clock steps back.
func (t *LedgerTx) nextTimestamp() (time.Time, error) {
	at := t.now().UTC().Truncate(time.Millisecond)
	if t.lastAt.IsZero() {
		var last models.LedgerEntry
		err := scopeProject(t.tx.Model(&models.LedgerEntry{}), t.projectID).Order("id DESC").Limit(1).Find(&last).Error
		if err != nil {
			return at, err
		}
		if last.ID != 0 {
			t.lastAt = last.OccurredAt.UTC()
		}
	}
	if at.Before(t.lastAt) {
		at = t.lastAt
	}
	return at, nil
}

func (t *LedgerTx) CreateDonation(d *models.Donation) error {
	if !sameProject(d.ProjectID, t.projectID) {
		return domain.Invalid("project_id", "donation is not for the project being committed")
	}
	return t.tx.Create(d).Error
}

func (t *LedgerTx) Donation(id uint) (*models.Donation, error) {
	var d models.Donation
	if err := t.tx.First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("donation", id)
		}
		return nil, err
	}
	return &d, nil
}

// SettleDonation moves a Pending donation to Captured or Failed. The update
// is conditional on the row still being Pending.
func (t *LedgerTx) SettleDonation(d *models.Donation, to domain.DonationStatus) error {
	at := t.now().UTC()
	updates := map[string]interface{}{"status": to}
	switch to {
	case domain.DonationCaptured:
		updates["captured_at"] = at
	case domain.DonationFailed:
		updates["failed_at"] = at
	default:
		return domain.Invalid("status", "cannot settle to %s", to)
	}
	res := t.tx.Model(&models.Donation{}).Where("id = ? AND status = ?", d.ID, domain.DonationPending).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &domain.ConcurrencyError{Entity: "donation", ID: d.ID, Detail: "no longer pending"}
	}
	d.Status = to
	if to == domain.DonationCaptured {
		d.CapturedAt = &at
	} else {
		d.FailedAt = &at
	}
	return nil
}

// ApplyTransition mirrors a planned milestone move onto the milestone row.
// The row must still be in tr.From.
func (t *LedgerTx) ApplyTransition(tr ledger.Transition, actorID string) error {
	at := t.lastAt
	if at.IsZero() {
		at = t.now().UTC()
	}
	updates := map[string]interface{}{
		"status":  tr.To,
		"version": gorm.Expr("version + 1"),
	}
	switch tr.To {
	case domain.MilestoneApproved:
		updates["approved_by"] = actorID
		updates["approved_at"] = at
	case domain.MilestoneReleased:
		updates["released_cents"] = tr.AmountCents
		updates["released_at"] = at
	}
	res := t.tx.Model(&models.Milestone{}).
		Where("id = ? AND project_id = ? AND status = ?", tr.MilestoneID, tr.ProjectID, tr.From).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return &domain.ConcurrencyError{Entity: "milestone", ID: tr.MilestoneID, Detail: fmt.Sprintf("expected status %s", tr.From)}
	}
	t.touched = true
	return nil
}

func (t *LedgerTx) SetProjectStatus(status string) error {
	if t.project == nil {
		return domain.Invalid("project_id", "status change needs a project")
	}
	if err := t.tx.Model(&models.Project{}).Where("id = ?", t.project.ID).Update("status", status).Error; err != nil {
		return err
	}
	t.project.Status = status
	t.touched = true
	return nil
}

// Emit stages an event in the outbox. It is published only if the
// surrounding commit succeeds.
func (t *LedgerTx) Emit(eventType string, projectID *uint, data interface{}) error {
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	at := t.lastAt
	if at.IsZero() {
		at = t.now().UTC()
	}
	ev := models.OutboxEvent{
		EventID:    uuid.NewString(),
		Type:       eventType,
		ProjectID:  projectID,
		Payload:    string(payload),
		OccurredAt: at,
	}
	if err := t.tx.Create(&ev).Error; err != nil {
		return err
	}
	t.events = append(t.events, ev)
	return nil
}

func (t *LedgerTx) Audit(a *models.AuditLog) error {
	return t.tx.Create(a).Error
}

// Snapshot is a consistent point-in-time read of one project.
func (r *LedgerRepository) Snapshot(ctx context.Context, projectID uint) (ledger.ProjectState, error) {
	var st ledger.ProjectState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		p, err := loadProject(tx, projectID, false)
		if err != nil {
			return err
		}
		st, err = foldProject(tx, p)
		return err
	})
	return st, err
}

func (r *LedgerRepository) PoolSnapshot(ctx context.Context, shares []ledger.Share) (ledger.PoolState, error) {
	var st ledger.PoolState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		rows, err := loadEntries(tx, nil)
		if err != nil {
			return err
		}
		st, err = ledger.FoldPool(shares, toLedger(rows))
		return err
	})
	return st, err
}

// Entries returns the raw history for a project (nil for the pool) in replay order.
func (r *LedgerRepository) Entries(ctx context.Context, projectID *uint) ([]models.LedgerEntry, error) {
	return loadEntries(r.db.WithContext(ctx), projectID)
}

// AllSnapshots folds every project inside one read transaction.
func (r *LedgerRepository) AllSnapshots(ctx context.Context) (map[uint]ledger.ProjectState, error) {
	var out map[uint]ledger.ProjectState
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		out, _, err = foldAll(tx)
		return err
	})
	return out, err
}

// DonationFacts lists every captured donation with the project context the
// progress rules need. Country and completion come from the same read.
func (r *LedgerRepository) DonationFacts(ctx context.Context) ([]ledger.DonationFact, error) {
	var facts []ledger.DonationFact
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		states, projects, err := foldAll(tx)
		if err != nil {
			return err
		}
		var rows []models.LedgerEntry
		err = tx.Preload("Allocations", orderByID).
			Where("type = ?", domain.EntryDonationCaptured).
			Order("id ASC").
			Find(&rows).Error
		if err != nil {
			return err
		}
		facts = make([]ledger.DonationFact, 0, len(rows))
		for i := range rows {
			e := rows[i].ToLedger()
			f := ledger.DonationFact{
				DonationID:  rows[i].RefID,
				DonorID:     rows[i].DonorID,
				AmountCents: e.AmountCents,
				ProjectID:   e.ProjectID,
				Allocations: e.Allocations,
				CapturedAt:  e.OccurredAt,
			}
			if e.ProjectID != nil {
				if p, ok := projects[*e.ProjectID]; ok {
					f.Country = p.Country
				}
				st := states[*e.ProjectID]
				f.ProjectReleased = st.ReleasedPercent()
			}
			facts = append(facts, f)
		}
		return nil
	})
	return facts, err
}

func foldAll(tx *gorm.DB) (map[uint]ledger.ProjectState, map[uint]*models.Project, error) {
	var projects []models.Project
	err := tx.Preload("Categories", orderByPosition).
		Preload("Milestones", orderBySequence).
		Order("id ASC").
		Find(&projects).Error
	if err != nil {
		return nil, nil, err
	}
	var rows []models.LedgerEntry
	if err := tx.Preload("Allocations", orderByID).Where("project_id IS NOT NULL").Order("id ASC").Find(&rows).Error; err != nil {
		return nil, nil, err
	}
	byProject := make(map[uint][]ledger.Entry)
	for i := range rows {
		e := rows[i].ToLedger()
		byProject[*e.ProjectID] = append(byProject[*e.ProjectID], e)
	}
	states := make(map[uint]ledger.ProjectState, len(projects))
	index := make(map[uint]*models.Project, len(projects))
	for i := range projects {
		p := &projects[i]
		st, err := ledger.Fold(p.Header(), p.MilestoneDefs(), byProject[p.ID])
		if err != nil {
			return nil, nil, fmt.Errorf("project %d: %w", p.ID, err)
		}
		states[p.ID] = st
		index[p.ID] = p
	}
	return states, index, nil
}

func loadProject(tx *gorm.DB, id uint, forUpdate bool) (*models.Project, error) {
	q := tx.Preload("Categories", orderByPosition).Preload("Milestones", orderBySequence)
	if forUpdate {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var p models.Project
	if err := q.First(&p, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("project", id)
		}
		return nil, err
	}
	return &p, nil
}

func loadEntries(tx *gorm.DB, projectID *uint) ([]models.LedgerEntry, error) {
	var rows []models.LedgerEntry
	err := scopeProject(tx.Preload("Allocations", orderByID), projectID).
		Order("occurred_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}

func foldProject(tx *gorm.DB, p *models.Project) (ledger.ProjectState, error) {
	rows, err := loadEntries(tx, &p.ID)
	if err != nil {
		return ledger.ProjectState{}, err
	}
	return ledger.Fold(p.Header(), p.MilestoneDefs(), toLedger(rows))
}

func toLedger(rows []models.LedgerEntry) []ledger.Entry {
	out := make([]ledger.Entry, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToLedger())
	}
	return out
}

func scopeProject(q *gorm.DB, projectID *uint) *gorm.DB {
	if projectID == nil {
		return q.Where("project_id IS NULL")
	}
	return q.Where("project_id = ?", *projectID)
}

func sameProject(a, b *uint) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func orderByID(db *gorm.DB) *gorm.DB       { return db.Order("id ASC") }
func orderByPosition(db *gorm.DB) *gorm.DB { return db.Order("position ASC") }
func orderBySequence(db *gorm.DB) *gorm.DB { return db.Order("sequence ASC") }
