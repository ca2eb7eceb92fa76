package models

import "time"

// OutboxEvent is written in the same transaction as the ledger change it
// describes and published after commit. Undelivered rows are retried.
type OutboxEvent struct {
	ID          uint       `gorm:"primaryKey" json:"-"`
	EventID     string     `gorm:"size:36;uniqueIndex;not null" json:"id"`
	Type        string     `gorm:"size:50;not null;index" json:"type"`
	ProjectID   *uint      `gorm:"index" json:"project_id"`
	Payload     string     `gorm:"type:text" json:"payload"` // JSON
	Attempts    int        `gorm:"not null;default:0" json:"attempts"`
	LastError   string     `gorm:"size:512" json:"last_error,omitempty"`
	NextAttempt *time.Time `gorm:"index" json:"next_attempt_at,omitempty"` // set after a failure; nil = due now
	DeliveredAt *time.Time `gorm:"index" json:"delivered_at"`
	OccurredAt  time.Time  `gorm:"not null" json:"occurred_at"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (OutboxEvent) TableName() string {
	return "outbox_events"
}
