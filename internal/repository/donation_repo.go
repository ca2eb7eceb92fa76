package repository

import (
	"errors"

	"fundledger/internal/domain"
	"fundledger/internal/models"

	"gorm.io/gorm"
)

type DonationRepository struct {
	db *gorm.DB
}

func NewDonationRepository(db *gorm.DB) *DonationRepository {
	return &DonationRepository{db: db}
}

func (r *DonationRepository) GetByID(id uint) (*models.Donation, error) {
	var d models.Donation
	if err := r.db.First(&d, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("donation", id)
		}
		return nil, err
	}
	return &d, nil
}

// GetByIdempotencyKey returns nil, nil when no donation used key.
func (r *DonationRepository) GetByIdempotencyKey(key string) (*models.Donation, error) {
	var d models.Donation
	err := r.db.Where("idempotency_key = ?", key).First(&d).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *DonationRepository) GetByPaymentRef(ref string) (*models.Donation, error) {
	var d models.Donation
	if err := r.db.Where("payment_ref = ?", ref).First(&d).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("donation", ref)
		}
		return nil, err
	}
	return &d, nil
}

func (r *DonationRepository) ListByDonor(donorID string, limit, offset int) ([]models.Donation, error) {
	var list []models.Donation
	err := r.db.Where("donor_id = ?", donorID).Order("created_at DESC, id DESC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

// Supporters lists the donors with a captured donation designated to projectID.
func (r *DonationRepository) Supporters(projectID uint) ([]string, error) {
	var ids []string
	err := r.db.Model(&models.Donation{}).
		Where("project_id = ? AND status = ?", projectID, domain.DonationCaptured).
		Distinct("donor_id").
		Order("donor_id ASC").
		Pluck("donor_id", &ids).Error
	return ids, err
}
