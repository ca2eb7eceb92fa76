package repository

import (
	"time"

	"fundledger/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type NotificationRepository struct {
	db *gorm.DB
}

func NewNotificationRepository(db *gorm.DB) *NotificationRepository {
	return &NotificationRepository{db: db}
}

// Create ignores a second notification for the same donor and event.
func (r *NotificationRepository) Create(n *models.Notification) error {
	return r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "donor_id"}, {Name: "event_id"}},
		DoNothing: true,
	}).Create(n).Error
}

func (r *NotificationRepository) ListByDonorID(donorID string, limit, offset int) ([]models.Notification, error) {
	var list []models.Notification
	err := r.db.Where("donor_id = ?", donorID).Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (r *NotificationRepository) UnreadCount(donorID string) (int64, error) {
	var c int64
	err := r.db.Model(&models.Notification{}).Where("donor_id = ? AND read_at IS NULL", donorID).Count(&c).Error
	return c, err
}

func (r *NotificationRepository) MarkRead(id uint, donorID string) error {
	return r.db.Model(&models.Notification{}).Where("id = ? AND donor_id = ?", id, donorID).Update("read_at", time.Now().UTC()).Error
}
