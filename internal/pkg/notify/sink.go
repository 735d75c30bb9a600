package notify

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/channelpass/channelpass/app/models"
	"github.com/channelpass/channelpass/app/repository"
	"github.com/channelpass/channelpass/internal/pkg/mail"
	"github.com/channelpass/channelpass/internal/pkg/payment"
)

// Messenger is the direct-message side of the Telegram gateway.
type Messenger interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Sink fans a completed checkout out into the revenue ledger, the contact
// list and buyer notifications. Every step is best-effort: a failed sale row
// or email must never undo the membership that was just granted.
type Sink struct {
	sales     repository.SaleRepository
	emails    repository.EmailRepository
	messenger Messenger
	sendMail  func(to, channelName, inviteLink string) error
}

func NewSink(sales repository.SaleRepository, emails repository.EmailRepository, messenger Messenger) *Sink {
	return &Sink{
		sales:     sales,
		emails:    emails,
		messenger: messenger,
		sendMail:  mail.SendInviteMail,
	}
}

// CheckoutCompleted records the sale, collects the buyer email and delivers
// the invite link over whatever contact channels the buyer left behind.
func (s *Sink) CheckoutCompleted(ctx context.Context, event *payment.PaymentEvent, record *models.MembershipRecord) error {
	if s.sales != nil {
		sale := &models.Sale{
			CreatorID:             record.CreatorID,
			PageID:                record.PageID,
			StripeSessionID:       event.SessionID,
			StripePaymentIntentID: event.PaymentIntentID,
			Email:                 event.Email,
			AmountTotal:           event.AmountTotal,
			Currency:              event.Currency,
		}
		if err := s.sales.Create(sale); err != nil {
			log.Warn().Err(err).Str("session_id", event.SessionID).Msg("failed to record sale")
		}
	}

	if s.emails != nil && event.Email != "" {
		entry := &models.CollectedEmail{
			CreatorID:        record.CreatorID,
			Email:            event.Email,
			PageID:           record.PageID,
			StripeCustomerID: event.CustomerID,
			TotalAmount:      event.AmountTotal,
		}
		if err := s.emails.RecordPurchase(entry); err != nil {
			log.Warn().Err(err).Str("session_id", event.SessionID).Msg("failed to collect buyer email")
		}
	}

	s.deliverInvite(ctx, event, record)
	return nil
}

func (s *Sink) deliverInvite(ctx context.Context, event *payment.PaymentEvent, record *models.MembershipRecord) {
	if record.InviteLink == "" {
		return
	}

	if s.messenger != nil {
		if chatID, err := strconv.ParseInt(strings.TrimSpace(record.TelegramUserID), 10, 64); err == nil && chatID != 0 {
			text := fmt.Sprintf("Thanks for your purchase! Here is your invite link (valid 24h, single use): %s", record.InviteLink)
			if err := s.messenger.SendMessage(ctx, chatID, text); err != nil {
				log.Warn().Err(err).Str("session_id", event.SessionID).Int64("chat_id", chatID).Msg("failed to DM invite link")
			}
		}
	}

	if s.sendMail != nil && event.Email != "" {
		if err := s.sendMail(event.Email, record.PageID, record.InviteLink); err != nil {
			log.Warn().Err(err).Str("session_id", event.SessionID).Msg("failed to mail invite link")
		}
	}
}
