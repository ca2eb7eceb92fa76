package repository

import (
	"errors"

	"fundledger/internal/domain"
	"fundledger/internal/models"

	"gorm.io/gorm"
)

type WebhookRepository struct {
	db *gorm.DB
}

func NewWebhookRepository(db *gorm.DB) *WebhookRepository {
	return &WebhookRepository{db: db}
}

func (r *WebhookRepository) Create(s *models.WebhookSubscription) error {
	return r.db.Create(s).Error
}

func (r *WebhookRepository) GetByID(id uint) (*models.WebhookSubscription, error) {
	var s models.WebhookSubscription
	if err := r.db.First(&s, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("webhook subscription", id)
		}
		return nil, err
	}
	return &s, nil
}

func (r *WebhookRepository) List() ([]models.WebhookSubscription, error) {
	var list []models.WebhookSubscription
	err := r.db.Order("id ASC").Find(&list).Error
	return list, err
}

func (r *WebhookRepository) ListActive() ([]models.WebhookSubscription, error) {
	var list []models.WebhookSubscription
	err := r.db.Where("is_active = ?", true).Order("id ASC").Find(&list).Error
	return list, err
}

func (r *WebhookRepository) SetActive(id uint, active bool) error {
	return r.db.Model(&models.WebhookSubscription{}).Where("id = ?", id).Update("is_active", active).Error
}

func (r *WebhookRepository) Delete(id uint) error {
	res := r.db.Delete(&models.WebhookSubscription{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.NotFound("webhook subscription", id)
	}
	return nil
}
