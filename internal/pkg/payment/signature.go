package payment

import (
	"strings"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"
)

// VerifyWebhookSignature checks the Stripe-Signature header against the
// configured endpoint secret and returns the parsed event. Signature
// verification is the only authentication on the webhook endpoint, so a
// failure here must be rejected rather than logged and acknowledged.
func VerifyWebhookSignature(payload []byte, signatureHeader, webhookSecret string) (*stripe.Event, error) {
	sig := strings.TrimSpace(signatureHeader)
	secret := strings.TrimSpace(webhookSecret)

	event, err := webhook.ConstructEventWithOptions(payload, sig, secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, err
	}
	return &event, nil
}
