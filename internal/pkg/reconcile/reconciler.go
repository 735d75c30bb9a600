package reconcile

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/channelpass/channelpass/app/models"
	"github.com/channelpass/channelpass/internal/pkg/payment"
	"github.com/channelpass/channelpass/internal/pkg/telegram"
)

// ErrInviteIssueFailed means the membership could not be granted because the
// invite link could not be created. No ledger row is written in that case;
// the session is flagged for follow-up instead.
var ErrInviteIssueFailed = errors.New("invite link could not be issued")

// Ledger is the slice of the membership repository the reconciler needs.
type Ledger interface {
	CreateIfSessionAbsent(record *models.MembershipRecord) (bool, *models.MembershipRecord, error)
	GetBySessionID(sessionID string) (*models.MembershipRecord, error)
	ListActiveBySubscriptionID(subscriptionID string) ([]models.MembershipRecord, error)
	ListActiveByCustomerID(customerID string) ([]models.MembershipRecord, error)
	Update(record *models.MembershipRecord) error
}

// Directory resolves page ids to channel chat ids.
type Directory interface {
	Resolve(ctx context.Context, pageID string) (string, *models.ChannelLink, error)
}

// Gateway is the membership side of the Telegram gateway.
type Gateway interface {
	CreateInvite(ctx context.Context, channelID string) (string, error)
	RemoveParticipant(ctx context.Context, channelID string, userID int64) error
}

// Sink receives successful checkout completions for everything that is not
// membership state: sale rows, email collection, buyer notifications. Sink
// failures never fail the reconciliation.
type Sink interface {
	CheckoutCompleted(ctx context.Context, event *payment.PaymentEvent, record *models.MembershipRecord) error
}

// FollowUpFlagger remembers sessions whose invite issuance failed so they can
// be retried or handled manually.
type FollowUpFlagger interface {
	FlagSession(sessionID, reason string) error
	ClearSession(sessionID string) error
}

// Outcome describes what a single event did to the ledger.
type Outcome struct {
	Kind       payment.EventKind
	Record     *models.MembershipRecord
	Records    []models.MembershipRecord
	InviteLink string
	// Duplicate is set when the event had already been applied and the
	// stored state was returned unchanged.
	Duplicate bool
	// NoOp is set when the event matched no ledger state, e.g. a cancel
	// arriving after the membership was already removed.
	NoOp bool
}

// Service applies normalized payment events to the membership ledger and
// keeps the Telegram channel in sync with it.
type Service struct {
	ledger    Ledger
	directory Directory
	gateway   Gateway
	sink      Sink
	flagger   FollowUpFlagger
}

// NewService creates a reconciler from injected collaborators. Sink and
// flagger may be nil.
func NewService(ledger Ledger, directory Directory, gateway Gateway, sink Sink, flagger FollowUpFlagger) *Service {
	return &Service{
		ledger:    ledger,
		directory: directory,
		gateway:   gateway,
		sink:      sink,
		flagger:   flagger,
	}
}

// Apply dispatches one event to its lifecycle handler. Applying the same
// event twice yields the same ledger state as applying it once.
func (s *Service) Apply(ctx context.Context, event *payment.PaymentEvent) (*Outcome, error) {
	switch event.Kind {
	case payment.KindCheckoutCompleted:
		return s.applyCheckoutCompleted(ctx, event)
	case payment.KindSubscriptionRenewed:
		return s.applyRenewal(ctx, event)
	case payment.KindPaymentFailed:
		return s.applyPaymentFailure(ctx, event)
	case payment.KindSubscriptionCanceled:
		return s.applyCancellation(ctx, event)
	case payment.KindIgnored:
		return &Outcome{Kind: event.Kind, NoOp: true}, nil
	default:
		return nil, fmt.Errorf("unknown event kind %q", event.Kind)
	}
}

func (s *Service) applyCheckoutCompleted(ctx context.Context, event *payment.PaymentEvent) (*Outcome, error) {
	if event.SessionID == "" {
		return nil, fmt.Errorf("%w: checkout without session id", payment.ErrMalformedEvent)
	}

	// A replayed event hands back the invite that was already issued
	// instead of minting a second one. This comes first so replays succeed
	// even when the link has since been unconfigured.
	if existing, err := s.ledger.GetBySessionID(event.SessionID); err == nil && existing != nil {
		return &Outcome{
			Kind:       event.Kind,
			Record:     existing,
			InviteLink: existing.InviteLink,
			Duplicate:  true,
		}, nil
	}

	channelID, link, err := s.directory.Resolve(ctx, event.PageID)
	if err != nil {
		return nil, err
	}

	invite, err := s.gateway.CreateInvite(ctx, channelID)
	if err != nil {
		// Nothing is written: the retry (webhook redelivery or the
		// success page) starts from a clean slate.
		if s.flagger != nil {
			if flagErr := s.flagger.FlagSession(event.SessionID, err.Error()); flagErr != nil {
				return nil, errors.Join(ErrInviteIssueFailed, flagErr)
			}
		}
		return nil, fmt.Errorf("%w: %v", ErrInviteIssueFailed, err)
	}

	sessionID := event.SessionID
	record := &models.MembershipRecord{
		UUID:                 uuid.New().String(),
		PageID:               event.PageID,
		ChannelID:            channelID,
		CreatorID:            link.CreatorID,
		TelegramUserID:       event.TelegramUserID,
		Email:                event.Email,
		StripeSessionID:      &sessionID,
		StripeSubscriptionID: event.SubscriptionID,
		StripeCustomerID:     event.CustomerID,
		InviteLink:           invite,
		Status:               models.MembershipStatusInvited,
		InvitedAt:            time.Now(),
	}

	created, stored, err := s.ledger.CreateIfSessionAbsent(record)
	if err != nil {
		return nil, err
	}
	if !created {
		// Lost the insert race against a concurrent delivery of the same
		// session. The extra invite expires on its own.
		return &Outcome{
			Kind:       event.Kind,
			Record:     stored,
			InviteLink: stored.InviteLink,
			Duplicate:  true,
		}, nil
	}

	if s.flagger != nil {
		_ = s.flagger.ClearSession(event.SessionID)
	}
	if s.sink != nil {
		_ = s.sink.CheckoutCompleted(ctx, event, stored)
	}

	return &Outcome{
		Kind:       event.Kind,
		Record:     stored,
		InviteLink: stored.InviteLink,
	}, nil
}

func (s *Service) applyRenewal(ctx context.Context, event *payment.PaymentEvent) (*Outcome, error) {
	_ = ctx
	records, err := s.lookupActive(event)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Outcome{Kind: event.Kind, NoOp: true}, nil
	}

	for i := range records {
		record := &records[i]
		record.Status = models.MembershipStatusActive
		record.FailedAttemptCount = 0
		record.GracePeriodStart = nil
		if err := s.ledger.Update(record); err != nil {
			return nil, err
		}
	}
	return &Outcome{Kind: event.Kind, Records: records, Record: &records[0]}, nil
}

func (s *Service) applyPaymentFailure(ctx context.Context, event *payment.PaymentEvent) (*Outcome, error) {
	_ = ctx
	records, err := s.lookupActive(event)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return &Outcome{Kind: event.Kind, NoOp: true}, nil
	}

	now := time.Now()
	for i := range records {
		record := &records[i]
		record.Status = models.MembershipStatusPaymentFailed
		// The provider's attempt counter is authoritative, so a redelivered
		// event sets the same count instead of incrementing twice.
		if event.AttemptCount > 0 {
			record.FailedAttemptCount = event.AttemptCount
		} else {
			record.FailedAttemptCount++
		}
		if record.FailedAttemptCount == 1 && record.GracePeriodStart == nil {
			record.GracePeriodStart = &now
		}
		if err := s.ledger.Update(record); err != nil {
			return nil, err
		}
	}
	return &Outcome{Kind: event.Kind, Records: records, Record: &records[0]}, nil
}

func (s *Service) applyCancellation(ctx context.Context, event *payment.PaymentEvent) (*Outcome, error) {
	records, err := s.lookupActive(event)
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		// Cancel after removal, or for a subscription we never tracked.
		return &Outcome{Kind: event.Kind, NoOp: true}, nil
	}

	reason := event.CancellationReason
	if reason == "" {
		reason = models.RemovalReasonCancellation
	}

	now := time.Now()
	for i := range records {
		record := &records[i]
		if err := s.removeFromChannel(ctx, record); err != nil {
			// Removal from the channel is best-effort; the ledger state
			// still converges so a later sweep can retry the kick.
			_ = err
		}
		record.Status = models.MembershipStatusRemoved
		record.RemovedAt = &now
		record.RemovalReason = reason
		if err := s.ledger.Update(record); err != nil {
			return nil, err
		}
	}
	return &Outcome{Kind: event.Kind, Records: records, Record: &records[0]}, nil
}

// RemoveMember kicks one member out on behalf of the creator (manual
// removal). Unlike cancellation this is driven by uuid, not provider ids.
func (s *Service) RemoveMember(ctx context.Context, record *models.MembershipRecord, reason string) error {
	if record.Removed() {
		return nil
	}
	if err := s.removeFromChannel(ctx, record); err != nil {
		return err
	}
	now := time.Now()
	record.Status = models.MembershipStatusRemoved
	record.RemovedAt = &now
	if reason == "" {
		reason = models.RemovalReasonManual
	}
	record.RemovalReason = reason
	return s.ledger.Update(record)
}

func (s *Service) removeFromChannel(ctx context.Context, record *models.MembershipRecord) error {
	userID, err := strconv.ParseInt(strings.TrimSpace(record.TelegramUserID), 10, 64)
	if err != nil || userID == 0 {
		// No usable Telegram identity; the invite link has expired by now
		// so marking the ledger is all we can do.
		return nil
	}
	if err := s.gateway.RemoveParticipant(ctx, record.ChannelID, userID); err != nil {
		if errors.Is(err, telegram.ErrParticipantNotFound) {
			// Already gone. That is the state we wanted.
			return nil
		}
		return err
	}
	return nil
}

// lookupActive finds the non-removed ledger rows an event addresses, by
// session id first, then subscription id, then customer id.
func (s *Service) lookupActive(event *payment.PaymentEvent) ([]models.MembershipRecord, error) {
	if event.SessionID != "" {
		record, err := s.ledger.GetBySessionID(event.SessionID)
		if err == nil && record != nil && !record.Removed() {
			return []models.MembershipRecord{*record}, nil
		}
	}
	if event.SubscriptionID != "" {
		records, err := s.ledger.ListActiveBySubscriptionID(event.SubscriptionID)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	if event.CustomerID != "" {
		records, err := s.ledger.ListActiveByCustomerID(event.CustomerID)
		if err != nil {
			return nil, err
		}
		if len(records) > 0 {
			return records, nil
		}
	}
	return nil, nil
}
