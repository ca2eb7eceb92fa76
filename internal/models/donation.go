package models

import (
	"time"

	"fundledger/internal/domain"
)

type Donation struct {
	ID          uint                  `gorm:"primaryKey" json:"id"`
	DonorID     string                `gorm:"size:128;not null;index" json:"donor_id"`
	AmountCents int64                 `gorm:"not null" json:"amount_cents"`
	ProjectID   *uint                 `gorm:"index" json:"project_id"` // nil = undesignated pool
	Recurring   bool                  `gorm:"not null;default:false" json:"recurring"`
	Status      domain.DonationStatus `gorm:"size:20;not null;index" json:"status"` // PENDING, CAPTURED, FAILED
	// Pointers so absent values stay NULL and don't collide on the unique index.
	PaymentRef     *string    `gorm:"size:255;uniqueIndex" json:"payment_reference,omitempty"`
	IdempotencyKey *string    `gorm:"size:255;uniqueIndex" json:"-"`
	CapturedAt     *time.Time `json:"captured_at"`
	FailedAt       *time.Time `json:"failed_at"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (Donation) TableName() string {
	return "donations"
}

// SamePayload reports whether a retried request matches this donation.
func (d *Donation) SamePayload(donorID string, amountCents int64, projectID *uint, recurring bool) bool {
	if d.DonorID != donorID || d.AmountCents != amountCents || d.Recurring != recurring {
		return false
	}
	if (d.ProjectID == nil) != (projectID == nil) {
		return false
	}
	return d.ProjectID == nil || *d.ProjectID == *projectID
}
