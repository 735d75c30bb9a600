package models

import "time"

const (
	MembershipStatusInvited       = "invited"
	MembershipStatusActive        = "active"
	MembershipStatusPaymentFailed = "payment_failed"
	MembershipStatusRemoved       = "removed"
)

const (
	RemovalReasonCancellation = "cancellation_requested"
	RemovalReasonManual       = "manual_removal"
)

// MembershipRecord is one grant of channel access per payment session or
// subscription. StripeSessionID carries a unique index so that concurrent
// deliveries of the same checkout webhook collapse into a single row via a
// conditional insert; the pointer keeps absent sessions as NULL instead of
// colliding on the empty string.
type MembershipRecord struct {
	ID                   uint       `gorm:"primaryKey" json:"id"`
	UUID                 string     `gorm:"type:varchar(36);uniqueIndex;not null" json:"uuid"`
	PageID               string     `gorm:"type:varchar(191);not null;index" json:"page_id"`
	ChannelID            string     `gorm:"type:varchar(64);not null" json:"channel_id"`
	CreatorID            uint       `gorm:"not null;index" json:"creator_id"`
	TelegramUserID       string     `gorm:"type:varchar(32);not null;default:''" json:"telegram_user_id"`
	Email                string     `gorm:"type:varchar(191);not null;default:''" json:"email"`
	StripeSessionID      *string    `gorm:"type:varchar(191);uniqueIndex" json:"stripe_session_id,omitempty"`
	StripeSubscriptionID string     `gorm:"type:varchar(191);not null;default:'';index" json:"stripe_subscription_id"`
	StripeCustomerID     string     `gorm:"type:varchar(191);not null;default:'';index" json:"stripe_customer_id"`
	InviteLink           string     `gorm:"type:varchar(255);not null;default:''" json:"invite_link"`
	Status               string     `gorm:"type:varchar(20);not null;default:'invited';index" json:"status"`
	FailedAttemptCount   int        `gorm:"not null;default:0" json:"failed_attempt_count"`
	GracePeriodStart     *time.Time `gorm:"type:timestamp;default:null" json:"grace_period_start,omitempty"`
	InvitedAt            time.Time  `gorm:"type:timestamp;not null" json:"invited_at"`
	RemovedAt            *time.Time `gorm:"type:timestamp;default:null" json:"removed_at,omitempty"`
	RemovalReason        string     `gorm:"type:varchar(191);not null;default:''" json:"removal_reason"`
	CreatedAt            time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Removed reports whether the record reached its terminal state.
func (m *MembershipRecord) Removed() bool {
	return m.Status == MembershipStatusRemoved
}
