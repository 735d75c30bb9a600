package payment

import "errors"

// EventKind classifies an incoming provider event into the small set of
// lifecycle transitions the reconciler understands.
type EventKind string

const (
	KindCheckoutCompleted    EventKind = "checkout_completed"
	KindSubscriptionRenewed  EventKind = "subscription_renewed"
	KindPaymentFailed        EventKind = "payment_failed"
	KindSubscriptionCanceled EventKind = "subscription_canceled"
	KindIgnored              EventKind = "ignored"
)

// ErrMalformedEvent is returned when a recognized event type is missing the
// fields we need to act on it.
var ErrMalformedEvent = errors.New("malformed payment event")

// PaymentEvent is the provider-neutral form of a webhook event. The
// normalizer fills in whatever identifiers the raw payload carried; the
// reconciler decides what to do with them.
type PaymentEvent struct {
	Kind EventKind

	// Provider identifiers. Which ones are set depends on the event type:
	// checkout events carry a session id, invoice and subscription events
	// carry subscription and customer ids.
	SessionID       string
	SubscriptionID  string
	CustomerID      string
	PaymentIntentID string

	// Metadata attached to the checkout session at creation time.
	PageID         string
	TelegramUserID string

	Email       string
	AmountTotal int64
	Currency    string
	Mode        string

	// AttemptCount is the provider's dunning attempt counter, only set on
	// payment_failed events.
	AttemptCount int

	// CancellationReason is the provider's stated reason for a subscription
	// deletion (e.g. "cancellation_requested", "payment_failed"), when the
	// payload carries one.
	CancellationReason string
}
