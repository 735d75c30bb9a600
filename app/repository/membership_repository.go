package repository

import (
	"errors"

	"github.com/channelpass/channelpass/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// membershipRepository implements the MembershipRepository interface
type membershipRepository struct {
	db *gorm.DB
}

// NewMembershipRepository creates a new membership repository instance
func NewMembershipRepository(db *gorm.DB) MembershipRepository {
	return &membershipRepository{db: db}
}

// CreateIfSessionAbsent inserts the record unless a row for the same
// stripe_session_id already exists. The unique index makes this safe against
// concurrent webhook deliveries; the caller learns via the created flag
// whether its insert won and always receives the stored row.
func (r *membershipRepository) CreateIfSessionAbsent(rec *models.MembershipRecord) (bool, *models.MembershipRecord, error) {
	if rec.StripeSessionID == nil || *rec.StripeSessionID == "" {
		return false, nil, errors.New("stripe_session_id is required for conditional insert")
	}

	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_session_id"}},
		DoNothing: true,
	}).Create(rec)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.MembershipRecord
	if err := r.db.Where("stripe_session_id = ?", *rec.StripeSessionID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *membershipRepository) GetBySessionID(sessionID string) (*models.MembershipRecord, error) {
	var rec models.MembershipRecord
	err := r.db.Where("stripe_session_id = ?", sessionID).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *membershipRepository) GetByUUID(uuid string) (*models.MembershipRecord, error) {
	var rec models.MembershipRecord
	err := r.db.Where("uuid = ?", uuid).First(&rec).Error
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListActiveBySubscriptionID returns all non-removed records for a
// subscription. Removed records stay out so that terminal state is never
// resurrected by late or duplicated events.
func (r *membershipRepository) ListActiveBySubscriptionID(subscriptionID string) ([]models.MembershipRecord, error) {
	var recs []models.MembershipRecord
	err := r.db.
		Where("stripe_subscription_id = ? AND status <> ?", subscriptionID, models.MembershipStatusRemoved).
		Find(&recs).Error
	return recs, err
}

func (r *membershipRepository) ListActiveByCustomerID(customerID string) ([]models.MembershipRecord, error) {
	var recs []models.MembershipRecord
	err := r.db.
		Where("stripe_customer_id = ? AND status <> ?", customerID, models.MembershipStatusRemoved).
		Find(&recs).Error
	return recs, err
}

func (r *membershipRepository) ListByCreatorID(creatorID uint, offset, limit int) ([]models.MembershipRecord, error) {
	var recs []models.MembershipRecord
	err := r.db.
		Where("creator_id = ?", creatorID).
		Order("created_at DESC").
		Offset(offset).Limit(limit).
		Find(&recs).Error
	return recs, err
}

func (r *membershipRepository) Update(rec *models.MembershipRecord) error {
	return r.db.Save(rec).Error
}
