package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	CreatorStatusActive   = "active"
	CreatorStatusDisabled = "disabled"
)

// Creator owns pages and channels and authenticates against the admin API with
// a bearer token stored as a SHA-256 hash. CommissionPercent overrides the
// platform default when greater than zero.
type Creator struct {
	ID                uint      `gorm:"primaryKey" json:"id"`
	Name              string    `gorm:"type:varchar(191);not null" json:"name" validate:"required,min=1,max=191"`
	Email             string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"email" validate:"required,email"`
	APIKeyHash        string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"-"`
	StripeAccountID   string    `gorm:"type:varchar(191);not null;default:''" json:"stripe_account_id"`
	Plan              string    `gorm:"type:varchar(32);not null;default:'freemium'" json:"plan"`
	CommissionPercent float64   `gorm:"not null;default:0" json:"commission_percent"`
	Status            string    `gorm:"type:varchar(16);not null;default:'active'" json:"status"`
	CreatedAt         time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (c *Creator) Validate() error {
	v := validator.New()
	return v.Struct(c)
}

// HashAPIKey returns the hex SHA-256 digest used for token lookups.
func HashAPIKey(key string) string {
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}

func FindCreatorByAPIKeyHash(db *gorm.DB, hash string) (*Creator, error) {
	var creator Creator
	err := db.Where("api_key_hash = ? AND status = ?", hash, CreatorStatusActive).First(&creator).Error
	if err != nil {
		return nil, err
	}
	return &creator, nil
}
