package payment

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stripe/stripe-go/v82"

	"github.com/channelpass/channelpass/app/models"
)

func makeEvent(t *testing.T, eventType string, payload string) *stripe.Event {
	t.Helper()
	return &stripe.Event{
		Type: stripe.EventType(eventType),
		Data: &stripe.EventData{Raw: json.RawMessage(payload)},
	}
}

func TestNormalizeCheckoutCompleted(t *testing.T) {
	event := makeEvent(t, "checkout.session.completed", `{
		"id": "cs_test_123",
		"mode": "subscription",
		"customer": "cus_abc",
		"subscription": "sub_abc",
		"customer_details": {"email": "Buyer@Example.com"},
		"amount_total": 990,
		"currency": "eur",
		"metadata": {"page_id": "chan-42", "telegram_user_id": "777"}
	}`)

	got, err := Normalize(event)
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got.Kind != KindCheckoutCompleted {
		t.Fatalf("expected kind %s, got %s", KindCheckoutCompleted, got.Kind)
	}
	if got.SessionID != "cs_test_123" {
		t.Fatalf("expected session id cs_test_123, got %s", got.SessionID)
	}
	if got.SubscriptionID != "sub_abc" || got.CustomerID != "cus_abc" {
		t.Fatalf("unexpected subscription/customer ids: %s / %s", got.SubscriptionID, got.CustomerID)
	}
	if got.Email != "buyer@example.com" {
		t.Fatalf("expected lowercased email, got %s", got.Email)
	}
	if got.PageID != "chan-42" || got.TelegramUserID != "777" {
		t.Fatalf("unexpected metadata: page=%s user=%s", got.PageID, got.TelegramUserID)
	}
	if got.AmountTotal != 990 || got.Currency != "eur" {
		t.Fatalf("unexpected amount: %d %s", got.AmountTotal, got.Currency)
	}
}

func TestNormalizeCheckoutMissingPageID(t *testing.T) {
	event := makeEvent(t, "checkout.session.completed", `{"id": "cs_test_456", "metadata": {}}`)

	_, err := Normalize(event)
	if !errors.Is(err, ErrMalformedEvent) {
		t.Fatalf("expected ErrMalformedEvent, got %v", err)
	}
}

func TestNormalizeInvoiceEvents(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		payload   string
		wantKind  EventKind
		wantSub   string
		wantErr   bool
	}{
		{
			name:      "renewal cycle",
			eventType: "invoice.paid",
			payload:   `{"id": "in_1", "subscription": "sub_x", "customer": "cus_x", "billing_reason": "subscription_cycle", "amount_paid": 990, "currency": "eur"}`,
			wantKind:  KindSubscriptionRenewed,
			wantSub:   "sub_x",
		},
		{
			name:      "initial invoice is not a renewal",
			eventType: "invoice.paid",
			payload:   `{"id": "in_2", "subscription": "sub_x", "billing_reason": "subscription_create"}`,
			wantKind:  KindIgnored,
		},
		{
			name:      "subscription reference nested under parent",
			eventType: "invoice.paid",
			payload:   `{"id": "in_3", "billing_reason": "subscription_cycle", "parent": {"subscription_details": {"subscription": "sub_nested"}}}`,
			wantKind:  KindSubscriptionRenewed,
			wantSub:   "sub_nested",
		},
		{
			name:      "cycle invoice without subscription reference",
			eventType: "invoice.paid",
			payload:   `{"id": "in_4", "billing_reason": "subscription_cycle"}`,
			wantErr:   true,
		},
		{
			name:      "payment failure carries attempt count",
			eventType: "invoice.payment_failed",
			payload:   `{"id": "in_5", "subscription": "sub_y", "customer": "cus_y", "attempt_count": 2}`,
			wantKind:  KindPaymentFailed,
			wantSub:   "sub_y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(makeEvent(t, tt.eventType, tt.payload))
			if tt.wantErr {
				if !errors.Is(err, ErrMalformedEvent) {
					t.Fatalf("expected ErrMalformedEvent, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize returned error: %v", err)
			}
			if got.Kind != tt.wantKind {
				t.Fatalf("expected kind %s, got %s", tt.wantKind, got.Kind)
			}
			if tt.wantSub != "" && got.SubscriptionID != tt.wantSub {
				t.Fatalf("expected subscription %s, got %s", tt.wantSub, got.SubscriptionID)
			}
		})
	}
}

func TestNormalizePaymentFailedAttemptCount(t *testing.T) {
	got, err := Normalize(makeEvent(t, "invoice.payment_failed",
		`{"id": "in_6", "subscription": "sub_z", "attempt_count": 3}`))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got.AttemptCount != 3 {
		t.Fatalf("expected attempt count 3, got %d", got.AttemptCount)
	}
}

func TestNormalizeSubscriptionDeleted(t *testing.T) {
	got, err := Normalize(makeEvent(t, "customer.subscription.deleted",
		`{"id": "sub_gone", "customer": "cus_gone", "status": "canceled"}`))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got.Kind != KindSubscriptionCanceled {
		t.Fatalf("expected kind %s, got %s", KindSubscriptionCanceled, got.Kind)
	}
	if got.SubscriptionID != "sub_gone" || got.CustomerID != "cus_gone" {
		t.Fatalf("unexpected ids: %s / %s", got.SubscriptionID, got.CustomerID)
	}
	if got.CancellationReason != "" {
		t.Fatalf("expected no cancellation reason, got %q", got.CancellationReason)
	}
}

func TestNormalizeSubscriptionDeletedCarriesReason(t *testing.T) {
	got, err := Normalize(makeEvent(t, "customer.subscription.deleted",
		`{"id": "sub_dun", "customer": "cus_dun", "status": "canceled",
		  "cancellation_details": {"reason": "payment_failed"}}`))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got.CancellationReason != "payment_failed" {
		t.Fatalf("expected cancellation reason payment_failed, got %q", got.CancellationReason)
	}
}

func TestNormalizeUnknownEventType(t *testing.T) {
	got, err := Normalize(makeEvent(t, "charge.refunded", `{"id": "ch_1"}`))
	if err != nil {
		t.Fatalf("Normalize returned error: %v", err)
	}
	if got.Kind != KindIgnored {
		t.Fatalf("expected kind %s, got %s", KindIgnored, got.Kind)
	}
}

func TestCommissionPolicy(t *testing.T) {
	policy := CommissionPolicy{DefaultPercent: 5}

	if got := policy.FeeAmount(nil, 1000); got != 50 {
		t.Fatalf("expected default fee 50, got %d", got)
	}

	creator := &models.Creator{CommissionPercent: 10}
	if got := policy.FeeAmount(creator, 1000); got != 100 {
		t.Fatalf("expected override fee 100, got %d", got)
	}
}
