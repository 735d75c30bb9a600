package controllers

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v82"

	"github.com/channelpass/channelpass/app/repository"
	"github.com/channelpass/channelpass/internal/pkg/env"
	"github.com/channelpass/channelpass/internal/pkg/payment"
)

// HandleCheckoutStart opens a payment session for one price of a gated
// channel and redirects the buyer to the provider's hosted checkout.
func HandleCheckoutStart(c *fiber.Ctx) error {
	pageID := strings.TrimSpace(c.Params("pageID"))
	if pageID == "" {
		return renderError(c, fiber.StatusBadRequest, "Missing page id")
	}

	repos := repository.GetGlobalRepositories()
	link, err := repos.ChannelLink.GetByPageID(pageID)
	if err != nil {
		return renderError(c, fiber.StatusNotFound, "This page does not exist")
	}

	prices, err := repos.ChannelLink.ListPrices(link.ID)
	if err != nil || len(prices) == 0 {
		return renderError(c, fiber.StatusNotFound, "This page has no prices configured")
	}

	idx := 0
	if raw := c.Params("priceIndex"); raw != "" {
		idx, err = strconv.Atoi(raw)
		if err != nil || idx < 0 || idx >= len(prices) {
			return renderError(c, fiber.StatusBadRequest, "Unknown price")
		}
	}

	creator, err := repos.Creator.GetByID(link.CreatorID)
	if err != nil {
		log.Error().Err(err).Uint("creator_id", link.CreatorID).Str("page_id", pageID).Msg("creator missing for page")
		return renderError(c, fiber.StatusInternalServerError, "Checkout is unavailable right now")
	}

	base := strings.TrimRight(env.GetEnv("PUBLIC_BASE_URL", "http://localhost:4000"), "/")
	sess, err := payment.CreateCheckoutSession(payment.CheckoutInput{
		Link:           link,
		Price:          &prices[idx],
		Creator:        creator,
		TelegramUserID: strings.TrimSpace(c.Query("telegram_user_id")),
		SuccessURL:     base + "/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      base + "/cancel",
	}, commission)
	if err != nil {
		log.Error().Err(err).Str("page_id", pageID).Msg("failed to create checkout session")
		return renderError(c, fiber.StatusBadGateway, "Checkout is unavailable right now")
	}

	return c.Redirect(sess.URL, fiber.StatusSeeOther)
}

// HandleCheckoutSuccess is the landing page after payment. It re-applies the
// checkout completion, which either finds the membership the webhook already
// created or creates it when the webhook has not arrived yet. Both paths end
// with the same invite link on screen.
func HandleCheckoutSuccess(c *fiber.Ctx) error {
	sessionID := strings.TrimSpace(c.Query("session_id"))
	if sessionID == "" {
		return renderError(c, fiber.StatusBadRequest, "Missing session reference")
	}

	sess, err := payment.GetCheckoutSession(sessionID)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("failed to fetch checkout session")
		return renderError(c, fiber.StatusNotFound, "We could not find your payment")
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return renderError(c, fiber.StatusPaymentRequired, "This payment has not completed yet")
	}

	event, err := payment.EventFromSession(sess)
	if err != nil {
		log.Warn().Err(err).Str("session_id", sessionID).Msg("session is not a channel checkout")
		return renderError(c, fiber.StatusBadRequest, "This payment does not belong to a channel")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome, err := reconciler.Apply(ctx, event)
	if err != nil {
		log.Error().Err(err).Str("session_id", sessionID).Msg("failed to apply checkout session")
		return renderError(c, fiber.StatusBadGateway, "Your payment went through, but the invite could not be created yet. You will receive it shortly.")
	}

	return c.Render("success", fiber.Map{
		"InviteLink": outcome.InviteLink,
		"PageID":     outcome.Record.PageID,
	})
}

// HandleCheckoutCancel is the landing page after an aborted payment.
func HandleCheckoutCancel(c *fiber.Ctx) error {
	return renderError(c, fiber.StatusOK, "Checkout canceled. No charge was made.")
}

func renderError(c *fiber.Ctx, status int, message string) error {
	return c.Status(status).Render("error", fiber.Map{"Message": message})
}
