package models

import (
	"time"

	"fundledger/internal/ledger"
)

type Project struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Name      string    `gorm:"size:200;not null" json:"name"`
	Country   string    `gorm:"size:64;index" json:"country"`
	GoalCents int64     `gorm:"not null" json:"goal_cents"`
	Status    string    `gorm:"size:20;not null;index" json:"status"` // OPEN, CLOSED
	Version   int64     `gorm:"not null;default:0" json:"-"`         // bumped on every ledger commit
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Categories []FundCategory `gorm:"foreignKey:ProjectID" json:"categories"`
	Milestones []Milestone    `gorm:"foreignKey:ProjectID" json:"milestones"`
}

func (Project) TableName() string {
	return "projects"
}

// Shares returns the categories in declaration order.
func (p *Project) Shares() []ledger.Share {
	out := make([]ledger.Share, 0, len(p.Categories))
	for _, c := range p.Categories {
		out = append(out, ledger.Share{Name: c.Name, Percentage: c.Percentage})
	}
	return out
}

func (p *Project) Header() ledger.ProjectHeader {
	return ledger.ProjectHeader{
		ID:        p.ID,
		Name:      p.Name,
		Country:   p.Country,
		Status:    p.Status,
		GoalCents: p.GoalCents,
		Shares:    p.Shares(),
	}
}

func (p *Project) Terms() *ledger.ProjectTerms {
	return &ledger.ProjectTerms{ID: p.ID, Status: p.Status, Shares: p.Shares()}
}

func (p *Project) MilestoneDefs() []ledger.MilestoneDef {
	out := make([]ledger.MilestoneDef, 0, len(p.Milestones))
	for _, m := range p.Milestones {
		out = append(out, ledger.MilestoneDef{ID: m.ID, Title: m.Title, Sequence: m.Sequence, RequiredCents: m.RequiredCents})
	}
	return out
}

// FundCategory is one slice of a project's split. Position keeps declaration order.
type FundCategory struct {
	ID         uint   `gorm:"primaryKey" json:"-"`
	ProjectID  uint   `gorm:"not null;index:idx_category_project_position,unique" json:"-"`
	Position   int    `gorm:"not null;index:idx_category_project_position,unique" json:"-"`
	Name       string `gorm:"size:100;not null" json:"name"`
	Percentage int    `gorm:"not null" json:"percentage"`
}

func (FundCategory) TableName() string {
	return "fund_categories"
}
