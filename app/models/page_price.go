package models

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// PagePrice is one purchasable offer on a page, addressed by its position in
// the checkout URL. An empty Interval means a one-time payment; "month" or
// "year" makes the checkout a subscription.
type PagePrice struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	ChannelLinkID uint      `gorm:"not null;index:ux_page_prices_link_position,unique,priority:1" json:"channel_link_id"`
	Position      int       `gorm:"not null;default:0;index:ux_page_prices_link_position,unique,priority:2" json:"position"`
	Label         string    `gorm:"type:varchar(191);not null;default:''" json:"label"`
	AmountCents   int64     `gorm:"not null" json:"amount_cents" validate:"required,gt=0"`
	Currency      string    `gorm:"type:varchar(8);not null;default:'eur'" json:"currency" validate:"required,min=3,max=8"`
	Interval      string    `gorm:"type:varchar(16);not null;default:''" json:"interval" validate:"omitempty,oneof=month year"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func (p *PagePrice) Validate() error {
	v := validator.New()
	return v.Struct(p)
}
