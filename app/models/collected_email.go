package models

import "time"

// CollectedEmail is a buyer contact address gathered at checkout, deduplicated
// per creator. Repeat purchases bump the counters instead of creating rows.
type CollectedEmail struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	CreatorID        uint       `gorm:"not null;index:ux_collected_emails_creator_email,unique,priority:1" json:"creator_id"`
	Email            string     `gorm:"type:varchar(191);not null;index:ux_collected_emails_creator_email,unique,priority:2" json:"email"`
	CustomerName     string     `gorm:"type:varchar(191);not null;default:''" json:"customer_name"`
	PageID           string     `gorm:"type:varchar(191);not null;default:'';index" json:"page_id"`
	StripeCustomerID string     `gorm:"type:varchar(191);not null;default:''" json:"stripe_customer_id"`
	Source           string     `gorm:"type:varchar(32);not null;default:'stripe_checkout'" json:"source"`
	TotalPurchases   int        `gorm:"not null;default:1" json:"total_purchases"`
	TotalAmount      int64      `gorm:"not null;default:0" json:"total_amount"`
	LastPurchaseAt   *time.Time `gorm:"type:timestamp;default:null" json:"last_purchase_at,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
