package repository

import (
	"github.com/channelpass/channelpass/app/models"
	"gorm.io/gorm"
)

// saleRepository implements the SaleRepository interface
type saleRepository struct {
	db *gorm.DB
}

// NewSaleRepository creates a new sale repository instance
func NewSaleRepository(db *gorm.DB) SaleRepository {
	return &saleRepository{db: db}
}

func (r *saleRepository) Create(sale *models.Sale) error {
	return r.db.Create(sale).Error
}

func (r *saleRepository) ListByCreatorID(creatorID uint, offset, limit int) ([]models.Sale, error) {
	var sales []models.Sale
	err := r.db.
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&sales).Error
	return sales, err
}
