package payment

import (
	"fmt"
	"strconv"

	"github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"

	"github.com/channelpass/channelpass/app/models"
	"github.com/channelpass/channelpass/internal/pkg/env"
)

// CommissionPolicy decides what platform fee a checkout carries. The default
// rate comes from COMMISSION_PERCENT; creators can carry an individual
// override on their account.
type CommissionPolicy struct {
	DefaultPercent float64
}

// NewCommissionPolicy reads the platform-wide default rate from the
// environment.
func NewCommissionPolicy() CommissionPolicy {
	percent, err := strconv.ParseFloat(env.GetEnv("COMMISSION_PERCENT", "5"), 64)
	if err != nil || percent < 0 || percent > 100 {
		percent = 5
	}
	return CommissionPolicy{DefaultPercent: percent}
}

// PercentFor returns the effective commission rate for a creator.
func (p CommissionPolicy) PercentFor(creator *models.Creator) float64 {
	if creator != nil && creator.CommissionPercent > 0 {
		return creator.CommissionPercent
	}
	return p.DefaultPercent
}

// FeeAmount computes the platform fee in the smallest currency unit.
func (p CommissionPolicy) FeeAmount(creator *models.Creator, amountCents int64) int64 {
	return int64(float64(amountCents) * p.PercentFor(creator) / 100)
}

// CheckoutInput carries everything needed to open a payment session for one
// price of one gated channel.
type CheckoutInput struct {
	Link    *models.ChannelLink
	Price   *models.PagePrice
	Creator *models.Creator
	// TelegramUserID is the buyer's numeric Telegram id when the checkout
	// started from the bot; it travels through the session metadata.
	TelegramUserID string
	SuccessURL     string
	CancelURL      string
}

// CreateCheckoutSession opens a Stripe Checkout session for the given price.
// One-off prices run in payment mode with a fixed application fee; recurring
// prices run in subscription mode with a percentage fee. The session metadata
// carries the page id so webhook events can be routed back to the channel.
func CreateCheckoutSession(in CheckoutInput, policy CommissionPolicy) (*stripe.CheckoutSession, error) {
	if in.Link == nil || in.Price == nil {
		return nil, fmt.Errorf("checkout input is incomplete")
	}

	priceData := &stripe.CheckoutSessionLineItemPriceDataParams{
		Currency:   stripe.String(in.Price.Currency),
		UnitAmount: stripe.Int64(in.Price.AmountCents),
		ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(in.Price.Label),
		},
	}

	params := &stripe.CheckoutSessionParams{
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: priceData,
				Quantity:  stripe.Int64(1),
			},
		},
		SuccessURL: stripe.String(in.SuccessURL),
		CancelURL:  stripe.String(in.CancelURL),
	}
	params.AddMetadata("page_id", in.Link.PageID)
	params.AddMetadata("creator_id", strconv.FormatUint(uint64(in.Link.CreatorID), 10))
	if in.TelegramUserID != "" {
		params.AddMetadata("telegram_user_id", in.TelegramUserID)
	}

	destination := ""
	if in.Creator != nil {
		destination = in.Creator.StripeAccountID
	}

	if in.Price.Interval == "" {
		params.Mode = stripe.String(string(stripe.CheckoutSessionModePayment))
		if destination != "" {
			params.PaymentIntentData = &stripe.CheckoutSessionPaymentIntentDataParams{
				ApplicationFeeAmount: stripe.Int64(policy.FeeAmount(in.Creator, in.Price.AmountCents)),
				TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
					Destination: stripe.String(destination),
				},
			}
		}
	} else {
		priceData.Recurring = &stripe.CheckoutSessionLineItemPriceDataRecurringParams{
			Interval: stripe.String(in.Price.Interval),
		}
		params.Mode = stripe.String(string(stripe.CheckoutSessionModeSubscription))
		if destination != "" {
			params.SubscriptionData = &stripe.CheckoutSessionSubscriptionDataParams{
				ApplicationFeePercent: stripe.Float64(policy.PercentFor(in.Creator)),
				TransferData: &stripe.CheckoutSessionSubscriptionDataTransferDataParams{
					Destination: stripe.String(destination),
				},
			}
		}
	}

	return session.New(params)
}

// GetCheckoutSession fetches a session by id so the success page can be
// re-run idempotently against the ledger.
func GetCheckoutSession(sessionID string) (*stripe.CheckoutSession, error) {
	return session.Get(sessionID, nil)
}

// Setup configures the Stripe SDK key from the environment. Call once at
// startup.
func Setup() {
	stripe.Key = env.GetEnv("STRIPE_SECRET_KEY", "")
}
