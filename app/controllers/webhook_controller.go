package controllers

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"github.com/channelpass/channelpass/internal/pkg/directory"
	"github.com/channelpass/channelpass/internal/pkg/env"
	"github.com/channelpass/channelpass/internal/pkg/payment"
	"github.com/channelpass/channelpass/internal/pkg/reconcile"
)

// HandlePaymentWebhook receives provider events. Signature failures are the
// only rejections; everything else is acknowledged with 200 so the provider
// does not retry events we have already decided to skip. Events we could not
// apply because of our own storage come back 500 so they are redelivered.
func HandlePaymentWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := c.Get("Stripe-Signature")
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	event, err := payment.VerifyWebhookSignature(rawBody, signature, secret)
	if err != nil {
		log.Warn().Err(err).Msg("webhook signature verification failed")
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_signature"})
	}

	normalized, err := payment.Normalize(event)
	if err != nil {
		if errors.Is(err, payment.ErrMalformedEvent) {
			// A payload we cannot parse will not get better on redelivery.
			log.Warn().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("skipping malformed webhook event")
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_parse_failed"})
	}
	if normalized.Kind == payment.KindIgnored {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	outcome, err := reconciler.Apply(ctx, normalized)
	if err != nil {
		switch {
		case errors.Is(err, directory.ErrChannelNotConfigured):
			log.Warn().Err(err).Str("event_id", event.ID).Str("page_id", normalized.PageID).Msg("webhook event for unconfigured page")
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		case errors.Is(err, reconcile.ErrInviteIssueFailed):
			// The session is flagged for follow-up; the success page or a
			// webhook redelivery picks it up once the gateway recovers.
			log.Error().Err(err).Str("session_id", normalized.SessionID).Msg("invite issuance failed; session flagged for follow-up")
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "deferred": true})
		case errors.Is(err, payment.ErrMalformedEvent):
			log.Warn().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("skipping malformed webhook event")
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
		}
		log.Error().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("failed to apply webhook event")
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "event_apply_failed"})
	}

	if outcome.NoOp {
		log.Info().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("webhook event matched no ledger state")
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "noop": true})
	}
	if outcome.Duplicate {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}
