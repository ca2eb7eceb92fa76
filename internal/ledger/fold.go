package ledger

import (
	"fmt"
	"sort"
	"time"

	"fundledger/internal/domain"
)

// Entry is a ledger record as the fold sees it.
type Entry struct {
	ID          uint
	Type        domain.EntryType
	RefID       uint
	ProjectID   *uint
	AmountCents int64
	Allocations []CategoryAmount
	OccurredAt  time.Time
}

type ProjectHeader struct {
	ID        uint
	Name      string
	Country   string
	Status    string
	GoalCents int64
	Shares    []Share
}

type MilestoneDef struct {
	ID            uint
	Title         string
	Sequence      int
	RequiredCents int64
}

type MilestoneState struct {
	ID            uint                   `json:"id"`
	Title         string                 `json:"title"`
	Sequence      int                    `json:"sequence"`
	RequiredCents int64                  `json:"required_cents"`
	Status        domain.MilestoneStatus `json:"status"`
	ReleasedCents int64                  `json:"released_cents"`
	ApprovedAt    *time.Time             `json:"approved_at,omitempty"`
	ReleasedAt    *time.Time             `json:"released_at,omitempty"`
}

// ProjectState is the read model for one project at a committed point.
type ProjectState struct {
	ProjectID      uint             `json:"project_id"`
	Name           string           `json:"name"`
	Country        string           `json:"country,omitempty"`
	Status         string           `json:"status"`
	GoalCents      int64            `json:"goal_cents"`
	RaisedCents    int64            `json:"raised_cents"`
	ReleasedCents  int64            `json:"released_cents"`
	AvailableCents int64            `json:"available_cents"`
	DonationCount  int              `json:"donation_count"`
	Categories     []CategoryAmount `json:"categories"`
	Milestones     []MilestoneState `json:"milestones"`
	LastEntryID    uint             `json:"last_entry_id"`
	AsOf           *time.Time       `json:"as_of,omitempty"`
}

// Milestone returns the state for id, or nil.
func (s *ProjectState) Milestone(id uint) *MilestoneState {
	for i := range s.Milestones {
		if s.Milestones[i].ID == id {
			return &s.Milestones[i]
		}
	}
	return nil
}

// Completed reports whether the project has milestones and all are released.
func (s *ProjectState) Completed() bool {
	if len(s.Milestones) == 0 {
		return false
	}
	for _, m := range s.Milestones {
		if m.Status != domain.MilestoneReleased {
			return false
		}
	}
	return true
}

// ReleasedPercent is the share of milestones released, 0-100.
func (s *ProjectState) ReleasedPercent() int {
	if len(s.Milestones) == 0 {
		return 0
	}
	n := 0
	for _, m := range s.Milestones {
		if m.Status == domain.MilestoneReleased {
			n++
		}
	}
	return n * 100 / len(s.Milestones)
}

// SortEntries orders entries by timestamp, then by insertion id.
func SortEntries(entries []Entry) []Entry {
	out := make([]Entry, len(entries))
	copy(out, entries)
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].OccurredAt.Equal(out[j].OccurredAt) {
			return out[i].OccurredAt.Before(out[j].OccurredAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// Fold replays a project's entries into its state. It is pure: the same
// header, milestones and entries always give the same result. A history that
// breaks the transition rules is reported as an error rather than skipped.
func Fold(p ProjectHeader, milestones []MilestoneDef, entries []Entry) (ProjectState, error) {
	st := ProjectState{
		ProjectID: p.ID,
		Name:      p.Name,
		Country:   p.Country,
		Status:    p.Status,
		GoalCents: p.GoalCents,
	}
	cats := newCategoryTotals(p.Shares)

	defs := make([]MilestoneDef, len(milestones))
	copy(defs, milestones)
	sort.SliceStable(defs, func(i, j int) bool { return defs[i].Sequence < defs[j].Sequence })
	st.Milestones = make([]MilestoneState, len(defs))
	for i, d := range defs {
		st.Milestones[i] = MilestoneState{
			ID:            d.ID,
			Title:         d.Title,
			Sequence:      d.Sequence,
			RequiredCents: d.RequiredCents,
			Status:        domain.MilestonePending,
		}
	}

	for _, e := range SortEntries(entries) {
		if e.ProjectID == nil || *e.ProjectID != p.ID {
			return st, fmt.Errorf("entry %d does not belong to project %d", e.ID, p.ID)
		}
		at := e.OccurredAt
		switch e.Type {
		case domain.EntryDonationCaptured:
			st.RaisedCents += e.AmountCents
			st.DonationCount++
			cats.add(e.Allocations)
		case domain.EntryMilestoneApproved, domain.EntryMilestoneReleased:
			m := st.Milestone(e.RefID)
			if m == nil {
				return st, fmt.Errorf("entry %d references unknown milestone %d", e.ID, e.RefID)
			}
			to := domain.MilestoneApproved
			if e.Type == domain.EntryMilestoneReleased {
				to = domain.MilestoneReleased
			}
			if !CanTransition(m.Status, to) {
				return st, fmt.Errorf("entry %d: milestone %d cannot move %s -> %s", e.ID, m.ID, m.Status, to)
			}
			m.Status = to
			if to == domain.MilestoneApproved {
				m.ApprovedAt = &at
			} else {
				m.ReleasedAt = &at
				m.ReleasedCents = e.AmountCents
				st.ReleasedCents += e.AmountCents
			}
		default:
			return st, fmt.Errorf("entry %d has unknown type %q", e.ID, e.Type)
		}
		st.LastEntryID = e.ID
		st.AsOf = &at
	}
	st.AvailableCents = st.RaisedCents - st.ReleasedCents
	st.Categories = cats.list()
	return st, nil
}

// PoolState is the undesignated pool's read model.
type PoolState struct {
	RaisedCents   int64            `json:"raised_cents"`
	DonationCount int              `json:"donation_count"`
	Categories    []CategoryAmount `json:"categories"`
	LastEntryID   uint             `json:"last_entry_id"`
}

// FoldPool replays undesignated donation entries.
func FoldPool(shares []Share, entries []Entry) (PoolState, error) {
	var st PoolState
	cats := newCategoryTotals(shares)
	for _, e := range SortEntries(entries) {
		if e.ProjectID != nil {
			return st, fmt.Errorf("entry %d belongs to project %d, not the pool", e.ID, *e.ProjectID)
		}
		if e.Type != domain.EntryDonationCaptured {
			return st, fmt.Errorf("entry %d: pool only holds donations, got %q", e.ID, e.Type)
		}
		st.RaisedCents += e.AmountCents
		st.DonationCount++
		cats.add(e.Allocations)
		st.LastEntryID = e.ID
	}
	st.Categories = cats.list()
	return st, nil
}

// categoryTotals keeps declared categories first, in declaration order, and
// appends any others in the order they are first seen.
type categoryTotals struct {
	order []string
	sums  map[string]int64
}

func newCategoryTotals(shares []Share) *categoryTotals {
	c := &categoryTotals{sums: make(map[string]int64)}
	for _, s := range shares {
		c.touch(s.Name)
	}
	return c
}

func (c *categoryTotals) touch(name string) {
	if _, ok := c.sums[name]; !ok {
		c.sums[name] = 0
		c.order = append(c.order, name)
	}
}

func (c *categoryTotals) add(parts []CategoryAmount) {
	for _, p := range parts {
		c.touch(p.Category)
		c.sums[p.Category] += p.AmountCents
	}
}

func (c *categoryTotals) list() []CategoryAmount {
	out := make([]CategoryAmount, 0, len(c.order))
	for _, name := range c.order {
		out = append(out, CategoryAmount{Category: name, AmountCents: c.sums[name]})
	}
	return out
}
