package models

import (
	"time"

	"gorm.io/gorm"
)

// Notification is a donor-facing message derived from a ledger event.
// (donor_id, event_id) is unique so redelivered events are not duplicated.
type Notification struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	DonorID   string         `gorm:"size:128;not null;index:idx_notification_donor_event,unique,priority:1" json:"donor_id"`
	EventID   string         `gorm:"size:36;not null;index:idx_notification_donor_event,unique,priority:2" json:"event_id"`
	Type      string         `gorm:"size:50;not null;index" json:"type"`
	Title     string         `gorm:"size:255" json:"title"`
	Body      string         `gorm:"type:text" json:"body"`
	Data      string         `gorm:"type:text" json:"data"` // JSON payload
	ReadAt    *time.Time     `json:"read_at"`
	CreatedAt time.Time      `json:"created_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

func (Notification) TableName() string {
	return "notifications"
}
