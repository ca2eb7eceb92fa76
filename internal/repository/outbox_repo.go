package repository

import (
	"time"

	"fundledger/internal/models"

	"gorm.io/gorm"
)

type OutboxRepository struct {
	db *gorm.DB
}

func NewOutboxRepository(db *gorm.DB) *OutboxRepository {
	return &OutboxRepository{db: db}
}

// ListUndelivered returns events created before cutoff that no publish has
// acknowledged yet and whose retry backoff has elapsed by now. Rows with the
// fewest attempts come first so a batch of failing events cannot hide newer ones.
func (r *OutboxRepository) ListUndelivered(cutoff, now time.Time, limit int) ([]models.OutboxEvent, error) {
	var list []models.OutboxEvent
	err := r.db.
		Where("delivered_at IS NULL AND created_at <= ?", cutoff).
		Where("next_attempt IS NULL OR next_attempt <= ?", now).
		Order("attempts ASC, id ASC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

func (r *OutboxRepository) MarkDelivered(eventID string, at time.Time) error {
	return r.db.Model(&models.OutboxEvent{}).Where("event_id = ?", eventID).Updates(map[string]interface{}{
		"delivered_at": at,
		"attempts":     gorm.Expr("attempts + 1"),
		"last_error":   "",
		"next_attempt": nil,
	}).Error
}

// MarkFailed records a failed delivery and holds the row back until next.
func (r *OutboxRepository) MarkFailed(eventID string, errMsg string, next time.Time) error {
	if len(errMsg) > 500 {
		errMsg = errMsg[:500]
	}
	return r.db.Model(&models.OutboxEvent{}).Where("event_id = ?", eventID).Updates(map[string]interface{}{
		"attempts":     gorm.Expr("attempts + 1"),
		"last_error":   errMsg,
		"next_attempt": next,
	}).Error
}

// ListRecent returns the latest events for a project (nil = all), newest first.
func (r *OutboxRepository) ListRecent(projectID *uint, limit int) ([]models.OutboxEvent, error) {
	var list []models.OutboxEvent
	q := r.db.Model(&models.OutboxEvent{})
	if projectID != nil {
		q = q.Where("project_id = ?", *projectID)
	}
	err := q.Order("id DESC").Limit(limit).Find(&list).Error
	return list, err
}
