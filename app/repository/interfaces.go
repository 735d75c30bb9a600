package repository

import (
	"github.com/channelpass/channelpass/app/models"
	"gorm.io/gorm"
)

// ChannelLinkRepository defines database operations for page-to-channel links.
type ChannelLinkRepository interface {
	Create(link *models.ChannelLink) error
	GetByPageID(pageID string) (*models.ChannelLink, error)
	GetByID(id uint) (*models.ChannelLink, error)
	ListByCreatorID(creatorID uint) ([]models.ChannelLink, error)
	Update(link *models.ChannelLink) error
	SetChannelID(id uint, channelID string) error
	SetVerifiedAdmin(id uint, verified bool) error
	ListPrices(channelLinkID uint) ([]models.PagePrice, error)
	ReplacePrices(channelLinkID uint, prices []models.PagePrice) error
}

// MembershipRepository defines database operations for the membership ledger.
// CreateIfSessionAbsent is the only write path that may create a record for a
// checkout session; it must be atomic with respect to concurrent deliveries.
type MembershipRepository interface {
	CreateIfSessionAbsent(rec *models.MembershipRecord) (bool, *models.MembershipRecord, error)
	GetBySessionID(sessionID string) (*models.MembershipRecord, error)
	GetByUUID(uuid string) (*models.MembershipRecord, error)
	ListActiveBySubscriptionID(subscriptionID string) ([]models.MembershipRecord, error)
	ListActiveByCustomerID(customerID string) ([]models.MembershipRecord, error)
	ListByCreatorID(creatorID uint, offset, limit int) ([]models.MembershipRecord, error)
	Update(rec *models.MembershipRecord) error
}

// SaleRepository defines database operations for completed checkouts.
type SaleRepository interface {
	Create(sale *models.Sale) error
	ListByCreatorID(creatorID uint, offset, limit int) ([]models.Sale, error)
}

// EmailRepository defines database operations for collected buyer contacts.
type EmailRepository interface {
	RecordPurchase(entry *models.CollectedEmail) error
	ListByCreatorID(creatorID uint, offset, limit int) ([]models.CollectedEmail, error)
}

// CreatorRepository defines database operations for creator accounts.
type CreatorRepository interface {
	Create(creator *models.Creator) error
	GetByID(id uint) (*models.Creator, error)
	GetByAPIKeyHash(hash string) (*models.Creator, error)
	Update(creator *models.Creator) error
}

// Repositories struct holds all repository instances
type Repositories struct {
	ChannelLink ChannelLinkRepository
	Membership  MembershipRepository
	Sale        SaleRepository
	Email       EmailRepository
	Creator     CreatorRepository
}

// NewRepositories creates a new instance of all repositories
func NewRepositories(db *gorm.DB) *Repositories {
	return &Repositories{
		ChannelLink: NewChannelLinkRepository(db),
		Membership:  NewMembershipRepository(db),
		Sale:        NewSaleRepository(db),
		Email:       NewEmailRepository(db),
		Creator:     NewCreatorRepository(db),
	}
}
