package repository

import (
	"errors"

	"fundledger/internal/models"

	"gorm.io/gorm"
)

type ReferralRepository struct {
	db *gorm.DB
}

func NewReferralRepository(db *gorm.DB) *ReferralRepository {
	return &ReferralRepository{db: db}
}

// CreateReferral persists a new referral relationship.
func (r *ReferralRepository) CreateReferral(referral *models.Referral) error {
	return r.db.Create(referral).Error
}

// GetByReferredID returns the referral that brought donorID in, or nil, nil.
func (r *ReferralRepository) GetByReferredID(donorID string) (*models.Referral, error) {
	var ref models.Referral
	err := r.db.Where("referred_id = ?", donorID).First(&ref).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &ref, nil
}

func (r *ReferralRepository) CountByReferrer(referrerID string) (int64, error) {
	var c int64
	err := r.db.Model(&models.Referral{}).Where("referrer_id = ?", referrerID).Count(&c).Error
	return c, err
}

// ListByReferrerID returns all referrals created by the given referrer.
func (r *ReferralRepository) ListByReferrerID(referrerID string, limit, offset int) ([]models.Referral, error) {
	var list []models.Referral
	err := r.db.Where("referrer_id = ?", referrerID).
		Order("created_at DESC").
		Limit(limit).Offset(offset).
		Find(&list).Error
	return list, err
}
