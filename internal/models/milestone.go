package models

import (
	"time"

	"fundledger/internal/domain"
)

type Milestone struct {
	ID            uint                   `gorm:"primaryKey" json:"id"`
	ProjectID     uint                   `gorm:"not null;index:idx_milestone_project_sequence,unique" json:"project_id"`
	Sequence      int                    `gorm:"not null;index:idx_milestone_project_sequence,unique" json:"sequence"`
	Title         string                 `gorm:"size:200;not null" json:"title"`
	RequiredCents int64                  `gorm:"not null" json:"required_cents"`
	Status        domain.MilestoneStatus `gorm:"size:20;not null;index" json:"status"` // PENDING, APPROVED, RELEASED
	ReleasedCents int64                  `gorm:"not null;default:0" json:"released_cents"`
	Version       int64                  `gorm:"not null;default:0" json:"-"`
	ApprovedBy    string                 `gorm:"size:128" json:"approved_by,omitempty"`
	ApprovedAt    *time.Time             `json:"approved_at"`
	ReleasedAt    *time.Time             `json:"released_at"`
	CreatedAt     time.Time              `json:"created_at"`
	UpdatedAt     time.Time              `json:"updated_at"`
}

func (Milestone) TableName() string {
	return "milestones"
}
