package models

import (
	"time"

	"github.com/go-playground/validator/v10"
	"gorm.io/gorm"
)

const (
	ChannelLinkStatusActive   = "active"
	ChannelLinkStatusInactive = "inactive"
)

// ChannelLink maps a creator-facing page identifier to a Telegram channel.
// ChannelID stays empty until the handle has been resolved once; after that
// it is the cached, already-normalized id and handle resolution never runs
// again for this link.
type ChannelLink struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	PageID        string    `gorm:"type:varchar(191);uniqueIndex;not null" json:"page_id" validate:"required,min=1,max=191"`
	ChannelID     string    `gorm:"type:varchar(64);not null;default:''" json:"channel_id"`
	ChannelHandle string    `gorm:"type:varchar(191);not null;default:''" json:"channel_handle"`
	CreatorID     uint      `gorm:"not null;index" json:"creator_id" validate:"required"`
	VerifiedAdmin bool      `gorm:"default:false" json:"verified_admin"`
	Status        string    `gorm:"type:varchar(16);not null;default:'active';index" json:"status"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (l *ChannelLink) Validate() error {
	v := validator.New()
	return v.Struct(l)
}

func FindChannelLinkByPageID(db *gorm.DB, pageID string) (*ChannelLink, error) {
	var link ChannelLink
	err := db.Where("page_id = ?", pageID).First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}
