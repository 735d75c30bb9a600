package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	tgbot "github.com/go-telegram/bot"
	"github.com/rs/zerolog/log"

	"github.com/channelpass/channelpass/internal/pkg/env"
)

var (
	// ErrParticipantNotFound means the user is not (or no longer) a member
	// of the channel. Removal treats this as success.
	ErrParticipantNotFound = errors.New("participant not found in channel")
	// ErrNotAdmin means the bot lacks admin rights in the channel.
	ErrNotAdmin = errors.New("bot is not an administrator of the channel")
)

const (
	inviteTTL      = 24 * time.Hour
	inviteUseLimit = 1
	requestTimeout = 15 * time.Second
)

// Gateway wraps the Telegram Bot API for channel membership management:
// single-use invite links, member removal and admin checks.
type Gateway struct {
	bot   *tgbot.Bot
	botID int64
}

var (
	gateway *Gateway
	mu      sync.Mutex
)

// SetupGateway initializes the shared gateway from TELEGRAM_BOT_TOKEN.
func SetupGateway() error {
	mu.Lock()
	defer mu.Unlock()

	if gateway != nil {
		return nil
	}

	token := env.GetEnv("TELEGRAM_BOT_TOKEN", "")
	if token == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}

	b, err := tgbot.New(token, tgbot.WithSkipGetMe())
	if err != nil {
		return fmt.Errorf("create telegram bot: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	me, err := b.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("telegram getMe: %w", err)
	}

	log.Info().Str("username", me.Username).Msg("Telegram gateway ready")
	gateway = &Gateway{bot: b, botID: me.ID}
	return nil
}

// GetGateway returns the shared gateway instance.
func GetGateway() *Gateway {
	mu.Lock()
	defer mu.Unlock()
	if gateway == nil {
		panic("Telegram gateway not initialized. Call SetupGateway first.")
	}
	return gateway
}

// CreateInvite creates a single-use invite link for the channel. Links expire
// after 24 hours and admit exactly one member.
func (g *Gateway) CreateInvite(ctx context.Context, channelID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	link, err := g.bot.CreateChatInviteLink(ctx, &tgbot.CreateChatInviteLinkParams{
		ChatID:      chatIDValue(channelID),
		ExpireDate:  int(time.Now().Add(inviteTTL).Unix()),
		MemberLimit: inviteUseLimit,
	})
	if err != nil {
		return "", mapError(err)
	}
	return link.InviteLink, nil
}

// RemoveParticipant kicks a user out of the channel. The ban is lifted right
// away so the user can re-join through a fresh invite after paying again.
func (g *Gateway) RemoveParticipant(ctx context.Context, channelID string, userID int64) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	chatID := chatIDValue(channelID)
	if _, err := g.bot.BanChatMember(ctx, &tgbot.BanChatMemberParams{
		ChatID: chatID,
		UserID: userID,
	}); err != nil {
		return mapError(err)
	}

	if _, err := g.bot.UnbanChatMember(ctx, &tgbot.UnbanChatMemberParams{
		ChatID:       chatID,
		UserID:       userID,
		OnlyIfBanned: true,
	}); err != nil {
		return mapError(err)
	}
	return nil
}

// ResolveEntity looks up the numeric chat id behind a public @handle.
func (g *Gateway) ResolveEntity(ctx context.Context, handle string) (int64, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	if !strings.HasPrefix(handle, "@") {
		handle = "@" + handle
	}
	chat, err := g.bot.GetChat(ctx, &tgbot.GetChatParams{ChatID: handle})
	if err != nil {
		return 0, mapError(err)
	}
	return chat.ID, nil
}

// VerifyAdmin reports whether the bot holds admin rights in the channel.
func (g *Gateway) VerifyAdmin(ctx context.Context, channelID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	admins, err := g.bot.GetChatAdministrators(ctx, &tgbot.GetChatAdministratorsParams{
		ChatID: chatIDValue(channelID),
	})
	if err != nil {
		return false, mapError(err)
	}
	for _, member := range admins {
		if member.Administrator != nil && member.Administrator.User.ID == g.botID {
			return true, nil
		}
		if member.Owner != nil && member.Owner.User.ID == g.botID {
			return true, nil
		}
	}
	return false, nil
}

// SendMessage delivers a direct message, typically the invite link after a
// successful checkout.
func (g *Gateway) SendMessage(ctx context.Context, chatID int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	_, err := g.bot.SendMessage(ctx, &tgbot.SendMessageParams{
		ChatID: chatID,
		Text:   text,
	})
	if err != nil {
		return mapError(err)
	}
	return nil
}

// chatIDValue passes numeric ids as integers; everything else (handles) goes
// through as a string.
func chatIDValue(channelID string) any {
	if n, err := strconv.ParseInt(channelID, 10, 64); err == nil {
		return n
	}
	return channelID
}

// mapError folds Bot API error strings into the two sentinel errors callers
// branch on.
func mapError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "PARTICIPANT_ID_INVALID"),
		strings.Contains(msg, "USER_NOT_PARTICIPANT"),
		strings.Contains(msg, "user not found"):
		return fmt.Errorf("%w: %v", ErrParticipantNotFound, err)
	case strings.Contains(msg, "CHAT_ADMIN_REQUIRED"),
		strings.Contains(msg, "not enough rights"),
		strings.Contains(msg, "bot is not a member"):
		return fmt.Errorf("%w: %v", ErrNotAdmin, err)
	}
	return err
}
