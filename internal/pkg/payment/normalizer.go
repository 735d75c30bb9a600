package payment

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v82"
)

// rawCheckoutSession mirrors the slice of a checkout.session object we care
// about. We decode event payloads ourselves instead of binding to the SDK's
// full types, which drift between API versions.
type rawCheckoutSession struct {
	ID              string `json:"id"`
	Mode            string `json:"mode"`
	Customer        string `json:"customer"`
	Subscription    string `json:"subscription"`
	PaymentIntent   string `json:"payment_intent"`
	CustomerEmail   string `json:"customer_email"`
	CustomerDetails struct {
		Email string `json:"email"`
	} `json:"customer_details"`
	AmountTotal int64             `json:"amount_total"`
	Currency    string            `json:"currency"`
	Metadata    map[string]string `json:"metadata"`
}

type rawInvoice struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	// Newer API versions moved the subscription reference under parent.
	Parent struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
	BillingReason string `json:"billing_reason"`
	AttemptCount  int    `json:"attempt_count"`
	AmountPaid    int64  `json:"amount_paid"`
	Currency      string `json:"currency"`
	CustomerEmail string `json:"customer_email"`
}

type rawSubscription struct {
	ID                  string `json:"id"`
	Customer            string `json:"customer"`
	Status              string `json:"status"`
	CancellationDetails struct {
		Reason string `json:"reason"`
	} `json:"cancellation_details"`
}

// Normalize maps a verified provider event onto a PaymentEvent. Event types
// outside the membership lifecycle come back as KindIgnored with a nil error;
// recognized types with missing identifiers return ErrMalformedEvent.
func Normalize(event *stripe.Event) (*PaymentEvent, error) {
	switch event.Type {
	case "checkout.session.completed":
		var session rawCheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return nil, fmt.Errorf("%w: decode checkout.session: %v", ErrMalformedEvent, err)
		}
		return EventFromCheckoutSession(&session)

	case "invoice.paid", "invoice.payment_succeeded":
		var invoice rawInvoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("%w: decode invoice: %v", ErrMalformedEvent, err)
		}
		// The initial invoice of a subscription is covered by the checkout
		// completion event; only billing cycles count as renewals.
		if invoice.BillingReason != "subscription_cycle" {
			return &PaymentEvent{Kind: KindIgnored}, nil
		}
		subID := invoiceSubscriptionID(&invoice)
		if subID == "" {
			return nil, fmt.Errorf("%w: invoice %s has no subscription reference", ErrMalformedEvent, invoice.ID)
		}
		return &PaymentEvent{
			Kind:           KindSubscriptionRenewed,
			SubscriptionID: subID,
			CustomerID:     invoice.Customer,
			Email:          strings.ToLower(strings.TrimSpace(invoice.CustomerEmail)),
			AmountTotal:    invoice.AmountPaid,
			Currency:       invoice.Currency,
		}, nil

	case "invoice.payment_failed":
		var invoice rawInvoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, fmt.Errorf("%w: decode invoice: %v", ErrMalformedEvent, err)
		}
		subID := invoiceSubscriptionID(&invoice)
		if subID == "" {
			return nil, fmt.Errorf("%w: invoice %s has no subscription reference", ErrMalformedEvent, invoice.ID)
		}
		return &PaymentEvent{
			Kind:           KindPaymentFailed,
			SubscriptionID: subID,
			CustomerID:     invoice.Customer,
			AttemptCount:   invoice.AttemptCount,
		}, nil

	case "customer.subscription.deleted":
		var sub rawSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, fmt.Errorf("%w: decode subscription: %v", ErrMalformedEvent, err)
		}
		if sub.ID == "" {
			return nil, fmt.Errorf("%w: subscription event without id", ErrMalformedEvent)
		}
		return &PaymentEvent{
			Kind:               KindSubscriptionCanceled,
			SubscriptionID:     sub.ID,
			CustomerID:         sub.Customer,
			CancellationReason: strings.TrimSpace(sub.CancellationDetails.Reason),
		}, nil

	default:
		return &PaymentEvent{Kind: KindIgnored}, nil
	}
}

// EventFromCheckoutSession builds a checkout completion from a session
// payload. The webhook path and the post-checkout success page both feed
// through here so they produce identical events.
func EventFromCheckoutSession(session *rawCheckoutSession) (*PaymentEvent, error) {
	if session.ID == "" {
		return nil, fmt.Errorf("%w: checkout session without id", ErrMalformedEvent)
	}

	email := strings.ToLower(strings.TrimSpace(session.CustomerEmail))
	if email == "" {
		email = strings.ToLower(strings.TrimSpace(session.CustomerDetails.Email))
	}

	pageID := strings.TrimSpace(session.Metadata["page_id"])
	if pageID == "" {
		return nil, fmt.Errorf("%w: checkout session %s is missing page_id metadata", ErrMalformedEvent, session.ID)
	}

	return &PaymentEvent{
		Kind:            KindCheckoutCompleted,
		SessionID:       session.ID,
		SubscriptionID:  session.Subscription,
		CustomerID:      session.Customer,
		PaymentIntentID: session.PaymentIntent,
		PageID:          pageID,
		TelegramUserID:  strings.TrimSpace(session.Metadata["telegram_user_id"]),
		Email:           email,
		AmountTotal:     session.AmountTotal,
		Currency:        session.Currency,
		Mode:            session.Mode,
	}, nil
}

// EventFromSession converts an SDK session, as fetched from the sessions
// API, into the same checkout completion event the webhook path produces.
func EventFromSession(s *stripe.CheckoutSession) (*PaymentEvent, error) {
	raw := rawCheckoutSession{
		ID:            s.ID,
		Mode:          string(s.Mode),
		CustomerEmail: s.CustomerEmail,
		AmountTotal:   s.AmountTotal,
		Currency:      string(s.Currency),
		Metadata:      s.Metadata,
	}
	if s.Customer != nil {
		raw.Customer = s.Customer.ID
	}
	if s.Subscription != nil {
		raw.Subscription = s.Subscription.ID
	}
	if s.PaymentIntent != nil {
		raw.PaymentIntent = s.PaymentIntent.ID
	}
	if s.CustomerDetails != nil {
		raw.CustomerDetails.Email = s.CustomerDetails.Email
	}
	return EventFromCheckoutSession(&raw)
}

func invoiceSubscriptionID(invoice *rawInvoice) string {
	if invoice.Subscription != "" {
		return invoice.Subscription
	}
	return invoice.Parent.SubscriptionDetails.Subscription
}
