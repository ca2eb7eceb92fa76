package models

import "time"

// Referral records that one donor brought another to the platform.
// A donor can only be referred once.
type Referral struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	ReferrerID string    `gorm:"size:128;not null;index" json:"referrer_id"`
	ReferredID string    `gorm:"size:128;uniqueIndex;not null" json:"referred_id"`
	CreatedAt  time.Time `json:"created_at"`
}

func (Referral) TableName() string { return "referrals" }
