package models

import (
	"strings"
	"time"

	"gorm.io/gorm"
)

// WebhookSubscription is an external consumer of ledger events.
type WebhookSubscription struct {
	ID         uint           `gorm:"primaryKey" json:"id"`
	Name       string         `gorm:"size:100" json:"name"`
	URL        string         `gorm:"size:512;not null" json:"url"`
	Secret     string         `gorm:"size:255" json:"-"`
	EventTypes string         `gorm:"size:255" json:"event_types"` // comma-separated; empty = all
	IsActive   bool           `gorm:"default:true;index" json:"is_active"`
	CreatedAt  time.Time      `json:"created_at"`
	UpdatedAt  time.Time      `json:"updated_at"`
	DeletedAt  gorm.DeletedAt `gorm:"index" json:"-"`
}

func (WebhookSubscription) TableName() string {
	return "webhook_subscriptions"
}

func (s *WebhookSubscription) Wants(eventType string) bool {
	if strings.TrimSpace(s.EventTypes) == "" {
		return true
	}
	for _, t := range strings.Split(s.EventTypes, ",") {
		if strings.TrimSpace(t) == eventType {
			return true
		}
	}
	return false
}
