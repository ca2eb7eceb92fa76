package models

import (
	"time"

	"fundledger/internal/domain"
	"fundledger/internal/ledger"
)

// LedgerEntry is the append-only audit record every read model is folded from.
type LedgerEntry struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	Type        domain.EntryType `gorm:"size:32;not null;index" json:"type"`
	RefID       uint             `gorm:"not null;index" json:"ref_id"` // donation or milestone id
	ProjectID   *uint            `gorm:"index" json:"project_id"`     // nil = undesignated pool
	DonorID     string           `gorm:"size:128;index" json:"donor_id,omitempty"`
	AmountCents int64            `gorm:"not null" json:"amount_cents"`
	OccurredAt  time.Time        `gorm:"not null;index" json:"occurred_at"`
	CreatedAt   time.Time        `json:"created_at"`

	Allocations []EntryAllocation `gorm:"foreignKey:EntryID" json:"allocations,omitempty"`
}

func (LedgerEntry) TableName() string {
	return "ledger_entries"
}

func (e *LedgerEntry) ToLedger() ledger.Entry {
	out := ledger.Entry{
		ID:          e.ID,
		Type:        e.Type,
		RefID:       e.RefID,
		ProjectID:   e.ProjectID,
		AmountCents: e.AmountCents,
		OccurredAt:  e.OccurredAt,
	}
	for _, a := range e.Allocations {
		out.Allocations = append(out.Allocations, ledger.CategoryAmount{Category: a.Category, AmountCents: a.AmountCents})
	}
	return out
}

// EntryAllocation is the per-category split recorded with a DonationCaptured entry.
type EntryAllocation struct {
	ID          uint   `gorm:"primaryKey" json:"-"`
	EntryID     uint   `gorm:"not null;index" json:"-"`
	Category    string `gorm:"size:100;not null" json:"category"`
	AmountCents int64  `gorm:"not null" json:"amount_cents"`
}

func (EntryAllocation) TableName() string {
	return "entry_allocations"
}
