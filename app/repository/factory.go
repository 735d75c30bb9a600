package repository

import (
	"sync"

	"gorm.io/gorm"
)

// Factory manages repository instances and ensures they are singletons
type Factory struct {
	db    *gorm.DB
	repos *Repositories
	once  sync.Once
}

// NewFactory creates a new repository factory
func NewFactory(db *gorm.DB) *Factory {
	return &Factory{
		db: db,
	}
}

// GetRepositories returns a singleton instance of all repositories
func (f *Factory) GetRepositories() *Repositories {
	f.once.Do(func() {
		f.repos = NewRepositories(f.db)
	})
	return f.repos
}

// GetChannelLinkRepository returns the channel link repository instance
func (f *Factory) GetChannelLinkRepository() ChannelLinkRepository {
	return f.GetRepositories().ChannelLink
}

// GetMembershipRepository returns the membership ledger repository instance
func (f *Factory) GetMembershipRepository() MembershipRepository {
	return f.GetRepositories().Membership
}

// GetSaleRepository returns the sale repository instance
func (f *Factory) GetSaleRepository() SaleRepository {
	return f.GetRepositories().Sale
}

// GetEmailRepository returns the collected-email repository instance
func (f *Factory) GetEmailRepository() EmailRepository {
	return f.GetRepositories().Email
}

// GetCreatorRepository returns the creator repository instance
func (f *Factory) GetCreatorRepository() CreatorRepository {
	return f.GetRepositories().Creator
}

// Global factory instance
var globalFactory *Factory
var factoryOnce sync.Once

// InitializeFactory initializes the global repository factory
func InitializeFactory(db *gorm.DB) {
	factoryOnce.Do(func() {
		globalFactory = NewFactory(db)
	})
}

// GetGlobalFactory returns the global repository factory instance
func GetGlobalFactory() *Factory {
	if globalFactory == nil {
		panic("Repository factory not initialized. Call InitializeFactory first.")
	}
	return globalFactory
}

// GetGlobalRepositories returns the global repositories instance
func GetGlobalRepositories() *Repositories {
	return GetGlobalFactory().GetRepositories()
}
