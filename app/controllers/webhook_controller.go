package controllers

import (
	"errors"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
)

// WebhookController receives Stripe webhook deliveries. Verification happens
// on the exact raw bytes Fiber read; the body is copied before use because
// Fiber reuses its buffers after the handler returns.
type WebhookController struct {
	secret     string
	tolerance  time.Duration
	dispatcher *billing.Dispatcher
	repo       billing.Repository
}

func NewWebhookController(secret string, tolerance time.Duration, dispatcher *billing.Dispatcher, repo billing.Repository) *WebhookController {
	return &WebhookController{
		secret:     secret,
		tolerance:  tolerance,
		dispatcher: dispatcher,
		repo:       repo,
	}
}

// HandleStripeWebhook verifies and dispatches one delivery. Verification
// failures return 400 so Stripe stops retrying; handler failures return 500
// so Stripe retries the event later.
func (wc *WebhookController) HandleStripeWebhook(c *fiber.Ctx) error {
	body := make([]byte, len(c.Body()))
	copy(body, c.Body())

	event, err := billing.VerifyEvent(body, c.Get("Stripe-Signature"), wc.secret, wc.tolerance, time.Now())
	if err != nil {
		log.Warnf("[Webhook] Rejected delivery: %v", err)
		reason := "invalid_signature"
		switch {
		case errors.Is(err, billing.ErrStalePayload):
			reason = "stale_payload"
		case errors.Is(err, billing.ErrMalformedPayload):
			reason = "malformed_payload"
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": reason})
	}

	if err := wc.dispatcher.Dispatch(c.UserContext(), &event); err != nil {
		log.Errorf("[Webhook] Processing %s failed: %v", event.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "processing_failed"})
	}

	return c.JSON(fiber.Map{"received": true})
}

// HandleListWebhookEvents returns the most recent stored webhook events,
// newest first.
func (wc *WebhookController) HandleListWebhookEvents(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 50)
	if limit > 200 {
		limit = 200
	}

	events, err := wc.repo.ListRecentWebhookEvents(limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "internal_server_error", "message": "Failed to load webhook events"})
	}

	return c.JSON(fiber.Map{"events": events, "count": len(events)})
}
