package repository

import (
	"github.com/channelpass/channelpass/app/models"
	"gorm.io/gorm"
)

// channelLinkRepository implements the ChannelLinkRepository interface
type channelLinkRepository struct {
	db *gorm.DB
}

// NewChannelLinkRepository creates a new channel link repository instance
func NewChannelLinkRepository(db *gorm.DB) ChannelLinkRepository {
	return &channelLinkRepository{db: db}
}

func (r *channelLinkRepository) Create(link *models.ChannelLink) error {
	return r.db.Create(link).Error
}

func (r *channelLinkRepository) GetByPageID(pageID string) (*models.ChannelLink, error) {
	var link models.ChannelLink
	err := r.db.Where("page_id = ?", pageID).First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *channelLinkRepository) GetByID(id uint) (*models.ChannelLink, error) {
	var link models.ChannelLink
	err := r.db.First(&link, id).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *channelLinkRepository) ListByCreatorID(creatorID uint) ([]models.ChannelLink, error) {
	var links []models.ChannelLink
	err := r.db.Where("creator_id = ?", creatorID).Order("created_at DESC").Find(&links).Error
	return links, err
}

func (r *channelLinkRepository) Update(link *models.ChannelLink) error {
	return r.db.Save(link).Error
}

// SetChannelID writes back a resolved channel id. Only the resolution path in
// the channel directory calls this, exactly once per link.
func (r *channelLinkRepository) SetChannelID(id uint, channelID string) error {
	return r.db.Model(&models.ChannelLink{}).Where("id = ?", id).
		Update("channel_id", channelID).Error
}

func (r *channelLinkRepository) SetVerifiedAdmin(id uint, verified bool) error {
	return r.db.Model(&models.ChannelLink{}).Where("id = ?", id).
		Update("verified_admin", verified).Error
}

func (r *channelLinkRepository) ListPrices(channelLinkID uint) ([]models.PagePrice, error) {
	var prices []models.PagePrice
	err := r.db.Where("channel_link_id = ?", channelLinkID).Order("position ASC").Find(&prices).Error
	return prices, err
}

// ReplacePrices swaps the full price list of a link in one transaction.
func (r *channelLinkRepository) ReplacePrices(channelLinkID uint, prices []models.PagePrice) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("channel_link_id = ?", channelLinkID).Delete(&models.PagePrice{}).Error; err != nil {
			return err
		}
		for i := range prices {
			prices[i].ID = 0
			prices[i].ChannelLinkID = channelLinkID
			prices[i].Position = i
			if err := tx.Create(&prices[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
