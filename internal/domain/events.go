package domain

import (
	"encoding/json"
	"time"
)

const (
	EventDonationCaptured  = "DonationCaptured"
	EventMilestoneApproved = "MilestoneApproved"
	EventMilestoneReleased = "MilestoneReleased"
)

// EventTypes lists every event a subscriber may register for.
var EventTypes = []string{EventDonationCaptured, EventMilestoneApproved, EventMilestoneReleased}

// Event is what subscribers receive. ID is stable across redeliveries so
// consumers can deduplicate.
type Event struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	ProjectID  *uint           `json:"project_id,omitempty"`
	OccurredAt time.Time       `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type DonationCapturedData struct {
	DonationID  uint   `json:"donation_id"`
	DonorID     string `json:"donor_id"`
	AmountCents int64  `json:"amount_cents"`
	ProjectID   *uint  `json:"project_id,omitempty"`
	Recurring   bool   `json:"recurring"`
	EntryID     uint   `json:"entry_id"`
}

type MilestoneEventData struct {
	MilestoneID uint   `json:"milestone_id"`
	ProjectID   uint   `json:"project_id"`
	Title       string `json:"title"`
	Sequence    int    `json:"sequence"`
	AmountCents int64  `json:"amount_cents"`
	ApproverID  string `json:"approver_id,omitempty"`
	EntryID     uint   `json:"entry_id"`
}
