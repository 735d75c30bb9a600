package repository

import (
	"github.com/channelpass/channelpass/app/models"
	"gorm.io/gorm"
)

// creatorRepository implements the CreatorRepository interface
type creatorRepository struct {
	db *gorm.DB
}

// NewCreatorRepository creates a new creator repository instance
func NewCreatorRepository(db *gorm.DB) CreatorRepository {
	return &creatorRepository{db: db}
}

func (r *creatorRepository) Create(creator *models.Creator) error {
	return r.db.Create(creator).Error
}

func (r *creatorRepository) GetByID(id uint) (*models.Creator, error) {
	var creator models.Creator
	err := r.db.First(&creator, id).Error
	if err != nil {
		return nil, err
	}
	return &creator, nil
}

func (r *creatorRepository) GetByAPIKeyHash(hash string) (*models.Creator, error) {
	return models.FindCreatorByAPIKeyHash(r.db, hash)
}

func (r *creatorRepository) Update(creator *models.Creator) error {
	return r.db.Save(creator).Error
}
