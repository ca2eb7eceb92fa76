package repository

import (
	"errors"

	"fundledger/internal/domain"
	"fundledger/internal/models"

	"gorm.io/gorm"
)

type ProjectRepository struct {
	db *gorm.DB
}

func NewProjectRepository(db *gorm.DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts the project together with its categories and milestones.
func (r *ProjectRepository) Create(p *models.Project) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		return tx.Create(p).Error
	})
}

func (r *ProjectRepository) GetByID(id uint) (*models.Project, error) {
	p, err := loadProject(r.db, id, false)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (r *ProjectRepository) List(status string, limit, offset int) ([]models.Project, error) {
	var list []models.Project
	q := r.db.Preload("Categories", orderByPosition).Preload("Milestones", orderBySequence)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	err := q.Order("id ASC").Limit(limit).Offset(offset).Find(&list).Error
	return list, err
}

func (r *ProjectRepository) IDs() ([]uint, error) {
	var ids []uint
	err := r.db.Model(&models.Project{}).Order("id ASC").Pluck("id", &ids).Error
	return ids, err
}

func (r *ProjectRepository) GetMilestone(id uint) (*models.Milestone, error) {
	var m models.Milestone
	if err := r.db.First(&m, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.NotFound("milestone", id)
		}
		return nil, err
	}
	return &m, nil
}
