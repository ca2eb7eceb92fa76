package ledger

import (
	"fmt"

	"fundledger/internal/domain"
)

// CanTransition is the single authority on milestone moves.
func CanTransition(from, to domain.MilestoneStatus) bool {
	switch from {
	case domain.MilestonePending:
		return to == domain.MilestoneApproved
	case domain.MilestoneApproved:
		return to == domain.MilestoneReleased
	default:
		return false
	}
}

// reached reports whether status is at or past target.
func reached(status, target domain.MilestoneStatus) bool {
	return rank(status) >= rank(target)
}

func rank(s domain.MilestoneStatus) int {
	switch s {
	case domain.MilestoneApproved:
		return 1
	case domain.MilestoneReleased:
		return 2
	default:
		return 0
	}
}

// Transition is a checked milestone move. NoOp is set when the milestone
// already sits at (or past) the requested state; callers must then commit
// nothing.
type Transition struct {
	MilestoneID uint
	ProjectID   uint
	From        domain.MilestoneStatus
	To          domain.MilestoneStatus
	AmountCents int64
	NoOp        bool
}

// PlanApproval checks approve(m) against a snapshot: m must be Pending and
// every lower-sequence milestone Approved or Released.
func PlanApproval(st ProjectState, milestoneID uint) (Transition, error) {
	m := st.Milestone(milestoneID)
	if m == nil {
		return Transition{}, domain.NotFound("milestone", milestoneID)
	}
	t := Transition{
		MilestoneID: m.ID,
		ProjectID:   st.ProjectID,
		From:        m.Status,
		To:          domain.MilestoneApproved,
		AmountCents: m.RequiredCents,
	}
	if reached(m.Status, domain.MilestoneApproved) {
		t.NoOp = true
		return t, nil
	}
	for _, prev := range st.Milestones {
		if prev.Sequence >= m.Sequence {
			break
		}
		if !reached(prev.Status, domain.MilestoneApproved) {
			return t, invalid(t, fmt.Sprintf("milestone %d (sequence %d) is still %s", prev.ID, prev.Sequence, prev.Status))
		}
	}
	if !CanTransition(m.Status, t.To) {
		return t, invalid(t, "milestone must be PENDING")
	}
	return t, nil
}

// PlanRelease checks release(m): m must be Approved, every lower-sequence
// milestone Released, and the funds available after prior releases must
// cover m's requirement. With prior milestones drained in order this is
// raised >= cumulative requirement through m.
func PlanRelease(st ProjectState, milestoneID uint) (Transition, error) {
	m := st.Milestone(milestoneID)
	if m == nil {
		return Transition{}, domain.NotFound("milestone", milestoneID)
	}
	t := Transition{
		MilestoneID: m.ID,
		ProjectID:   st.ProjectID,
		From:        m.Status,
		To:          domain.MilestoneReleased,
		AmountCents: m.RequiredCents,
	}
	if m.Status == domain.MilestoneReleased {
		t.NoOp = true
		return t, nil
	}
	if m.Status != domain.MilestoneApproved {
		return t, invalid(t, "milestone must be APPROVED before release")
	}
	var cumulative int64
	for _, prev := range st.Milestones {
		if prev.Sequence > m.Sequence {
			break
		}
		cumulative += prev.RequiredCents
		if prev.Sequence < m.Sequence && prev.Status != domain.MilestoneReleased {
			return t, invalid(t, fmt.Sprintf("milestone %d (sequence %d) must be released first", prev.ID, prev.Sequence))
		}
	}
	available := st.RaisedCents - st.ReleasedCents
	if available < m.RequiredCents {
		return t, invalid(t, fmt.Sprintf("raised %d is below cumulative requirement %d (available %d, required %d)",
			st.RaisedCents, cumulative, available, m.RequiredCents))
	}
	return t, nil
}

func invalid(t Transition, precondition string) error {
	return &domain.InvalidTransitionError{
		Entity:       "milestone",
		ID:           t.MilestoneID,
		From:         string(t.From),
		To:           string(t.To),
		Precondition: precondition,
	}
}
