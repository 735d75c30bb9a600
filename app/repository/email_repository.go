package repository

import (
	"time"

	"github.com/channelpass/channelpass/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// emailRepository implements the EmailRepository interface
type emailRepository struct {
	db *gorm.DB
}

// NewEmailRepository creates a new collected-email repository instance
func NewEmailRepository(db *gorm.DB) EmailRepository {
	return &emailRepository{db: db}
}

// RecordPurchase inserts a contact or, when the (creator, email) pair exists
// already, bumps its purchase counters in place.
func (r *emailRepository) RecordPurchase(entry *models.CollectedEmail) error {
	now := time.Now()
	entry.LastPurchaseAt = &now
	if entry.TotalPurchases == 0 {
		entry.TotalPurchases = 1
	}

	return r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "creator_id"},
			{Name: "email"},
		},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"total_purchases":  gorm.Expr("total_purchases + 1"),
			"total_amount":     gorm.Expr("total_amount + ?", entry.TotalAmount),
			"last_purchase_at": now,
			"updated_at":       now,
		}),
	}).Create(entry).Error
}

func (r *emailRepository) ListByCreatorID(creatorID uint, offset, limit int) ([]models.CollectedEmail, error) {
	var entries []models.CollectedEmail
	err := r.db.
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	return entries, err
}
