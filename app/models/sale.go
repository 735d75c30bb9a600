package models

import "time"

// Sale records one completed checkout for the creator dashboard. Amounts are
// kept in the smallest currency unit as reported by the payment provider.
type Sale struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	CreatorID             uint      `gorm:"not null;index" json:"creator_id"`
	PageID                string    `gorm:"type:varchar(191);not null;index" json:"page_id"`
	StripeSessionID       string    `gorm:"type:varchar(191);not null;index" json:"stripe_session_id"`
	StripePaymentIntentID string    `gorm:"type:varchar(191);not null;default:''" json:"stripe_payment_intent_id"`
	Email                 string    `gorm:"type:varchar(191);not null;default:''" json:"email"`
	AmountTotal           int64     `gorm:"not null;default:0" json:"amount_total"`
	Currency              string    `gorm:"type:varchar(8);not null;default:''" json:"currency"`
	CreatedAt             time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
