package controllers

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/channelpass/channelpass/app/models"
	"github.com/channelpass/channelpass/app/repository"
	"github.com/channelpass/channelpass/internal/pkg/cache"
	"github.com/channelpass/channelpass/internal/pkg/directory"
	"github.com/channelpass/channelpass/internal/pkg/middleware"
	"github.com/channelpass/channelpass/internal/pkg/telegram"
)

const defaultPageSize = 50

// HandleAPISales lists the creator's sales, newest first.
func HandleAPISales(c *fiber.Ctx) error {
	creator := middleware.CreatorFromContext(c)
	offset, limit := paginationParams(c)

	sales, err := repository.GetGlobalRepositories().Sale.ListByCreatorID(creator.ID, offset, limit)
	if err != nil {
		log.Error().Err(err).Uint("creator_id", creator.ID).Msg("failed to list sales")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{"sales": sales})
}

// HandleAPIEmails lists the creator's collected buyer contacts.
func HandleAPIEmails(c *fiber.Ctx) error {
	creator := middleware.CreatorFromContext(c)
	offset, limit := paginationParams(c)

	entries, err := repository.GetGlobalRepositories().Email.ListByCreatorID(creator.ID, offset, limit)
	if err != nil {
		log.Error().Err(err).Uint("creator_id", creator.ID).Msg("failed to list collected emails")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{"emails": entries})
}

// HandleAPIMembers lists the creator's membership ledger entries.
func HandleAPIMembers(c *fiber.Ctx) error {
	creator := middleware.CreatorFromContext(c)
	offset, limit := paginationParams(c)

	members, err := repository.GetGlobalRepositories().Membership.ListByCreatorID(creator.ID, offset, limit)
	if err != nil {
		log.Error().Err(err).Uint("creator_id", creator.ID).Msg("failed to list members")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{"members": members})
}

// HandleAPIChannels lists the creator's channel links with their prices.
func HandleAPIChannels(c *fiber.Ctx) error {
	creator := middleware.CreatorFromContext(c)
	repos := repository.GetGlobalRepositories()

	links, err := repos.ChannelLink.ListByCreatorID(creator.ID)
	if err != nil {
		log.Error().Err(err).Uint("creator_id", creator.ID).Msg("failed to list channels")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	type channelWithPrices struct {
		models.ChannelLink
		Prices []models.PagePrice `json:"prices"`
	}
	out := make([]channelWithPrices, 0, len(links))
	for _, link := range links {
		prices, err := repos.ChannelLink.ListPrices(link.ID)
		if err != nil {
			log.Error().Err(err).Uint("link_id", link.ID).Msg("failed to list prices")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
		out = append(out, channelWithPrices{ChannelLink: link, Prices: prices})
	}
	return c.JSON(fiber.Map{"channels": out})
}

type saveChannelRequest struct {
	PageID        string             `json:"page_id"`
	ChannelID     string             `json:"channel_id"`
	ChannelHandle string             `json:"channel_handle"`
	Prices        []models.PagePrice `json:"prices"`
}

// HandleAPISaveChannel creates or updates a page-to-channel link. The chat id
// is normalized on the way in and the bot's admin rights are verified when a
// chat id is known.
func HandleAPISaveChannel(c *fiber.Ctx) error {
	creator := middleware.CreatorFromContext(c)

	var req saveChannelRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	req.PageID = strings.TrimSpace(req.PageID)
	if req.PageID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "page_id_required"})
	}

	repos := repository.GetGlobalRepositories()
	link, err := repos.ChannelLink.GetByPageID(req.PageID)
	switch {
	case err == nil:
		if link.CreatorID != creator.ID {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
		}
	case errors.Is(err, gorm.ErrRecordNotFound):
		link = &models.ChannelLink{
			PageID:    req.PageID,
			CreatorID: creator.ID,
			Status:    models.ChannelLinkStatusActive,
		}
	default:
		log.Error().Err(err).Str("page_id", req.PageID).Msg("failed to load channel link")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	link.ChannelID = directory.NormalizeChannelIDString(req.ChannelID)
	link.ChannelHandle = strings.TrimSpace(strings.TrimPrefix(req.ChannelHandle, "@"))
	if err := link.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
	}

	verified := false
	if link.ChannelID != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
		defer cancel()
		ok, err := telegram.GetGateway().VerifyAdmin(ctx, link.ChannelID)
		if err != nil {
			log.Warn().Err(err).Str("channel_id", link.ChannelID).Msg("admin check failed")
		}
		verified = err == nil && ok
	}
	link.VerifiedAdmin = verified

	if link.ID == 0 {
		err = repos.ChannelLink.Create(link)
	} else {
		err = repos.ChannelLink.Update(link)
	}
	if err != nil {
		log.Error().Err(err).Str("page_id", req.PageID).Msg("failed to save channel link")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}

	if req.Prices != nil {
		for i := range req.Prices {
			if err := req.Prices[i].Validate(); err != nil {
				return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "validation_failed", "message": err.Error()})
			}
		}
		if err := repos.ChannelLink.ReplacePrices(link.ID, req.Prices); err != nil {
			log.Error().Err(err).Uint("link_id", link.ID).Msg("failed to save prices")
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
		}
	}

	return c.JSON(fiber.Map{"channel": link, "verified_admin": verified})
}

// HandleAPIRemoveMember kicks a member out of the channel and marks the
// ledger entry removed.
func HandleAPIRemoveMember(c *fiber.Ctx) error {
	creator := middleware.CreatorFromContext(c)
	uuid := strings.TrimSpace(c.Params("uuid"))

	repos := repository.GetGlobalRepositories()
	record, err := repos.Membership.GetByUUID(uuid)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not_found"})
		}
		log.Error().Err(err).Str("uuid", uuid).Msg("failed to load member")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if record.CreatorID != creator.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := reconciler.RemoveMember(ctx, record, models.RemovalReasonManual); err != nil {
		log.Error().Err(err).Str("uuid", uuid).Msg("failed to remove member")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "removal_failed"})
	}

	return c.JSON(fiber.Map{"member": record})
}

type manualInviteRequest struct {
	PageID string `json:"page_id"`
}

// HandleAPIManualInvite mints a fresh single-use invite link for one of the
// creator's channels, outside of any payment flow.
func HandleAPIManualInvite(c *fiber.Ctx) error {
	creator := middleware.CreatorFromContext(c)

	var req manualInviteRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_body"})
	}
	req.PageID = strings.TrimSpace(req.PageID)
	if req.PageID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "page_id_required"})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	channelID, link, err := channelDir.Resolve(ctx, req.PageID)
	if err != nil {
		if errors.Is(err, directory.ErrChannelNotConfigured) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "channel_not_configured"})
		}
		log.Error().Err(err).Str("page_id", req.PageID).Msg("failed to resolve page")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	if link.CreatorID != creator.ID {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{"error": "forbidden"})
	}

	invite, err := telegram.GetGateway().CreateInvite(ctx, channelID)
	if err != nil {
		log.Error().Err(err).Str("page_id", req.PageID).Msg("failed to create manual invite")
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{"error": "invite_failed"})
	}

	return c.JSON(fiber.Map{"invite_link": invite})
}

// HandleAPIFollowUp reports whether a checkout session is flagged because its
// invite could not be issued, so support can chase stuck purchases.
func HandleAPIFollowUp(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Params("sessionID"))
	if sessionID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "session_id_required"})
	}

	reason, err := cache.GetFollowUpFlag(sessionID)
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return c.JSON(fiber.Map{"flagged": false})
		}
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to read follow-up flag")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error"})
	}
	return c.JSON(fiber.Map{"flagged": true, "reason": reason})
}

// paginationParams reads ?page= and ?limit= with sane bounds.
func paginationParams(c *fiber.Ctx) (offset, limit int) {
	limit = defaultPageSize
	if raw := c.Query("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	page := 1
	if raw := c.Query("page"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			page = n
		}
	}
	return (page - 1) * limit, limit
}
