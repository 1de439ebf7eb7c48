package controllers

import (
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/gofiber/fiber/v2"
)

// SubscriptionController exposes the subscription lifecycle as JSON
// endpoints.
type SubscriptionController struct {
	subs *billing.SubscriptionService
}

func NewSubscriptionController(subs *billing.SubscriptionService) *SubscriptionController {
	return &SubscriptionController{subs: subs}
}

type createSubscriptionRequest struct {
	UserID               uint              `json:"user_id" validate:"required,gt=0"`
	PricingID            uint              `json:"pricing_id" validate:"required,gt=0"`
	Quantity             int64             `json:"quantity" validate:"omitempty,gt=0"`
	TrialDays            *int64            `json:"trial_days" validate:"omitempty"`
	DefaultPaymentMethod string            `json:"default_payment_method"`
	Metadata             map[string]string `json:"metadata"`
}

type updateSubscriptionRequest struct {
	Quantity             *int64            `json:"quantity" validate:"omitempty,gt=0"`
	Metadata             map[string]string `json:"metadata"`
	DefaultPaymentMethod string            `json:"default_payment_method"`
	ProrationBehavior    string            `json:"proration_behavior" validate:"omitempty,oneof=create_prorations none always_invoice"`
}

type changePlanRequest struct {
	PricingID         uint   `json:"pricing_id" validate:"required,gt=0"`
	ProrationBehavior string `json:"proration_behavior" validate:"omitempty,oneof=create_prorations none always_invoice"`
}

type updateTrialRequest struct {
	Action string `json:"action" validate:"required,oneof=extend reduce remove"`
	Days   int64  `json:"days" validate:"omitempty,gt=0"`
}

type syncSubscriptionRequest struct {
	StripeSubscriptionID string `json:"stripe_subscription_id" validate:"required"`
}

func (sc *SubscriptionController) HandleCreateSubscription(c *fiber.Ctx) error {
	var req createSubscriptionRequest
	if !parseBody(c, &req) {
		return nil
	}

	sub, err := sc.subs.Create(c.UserContext(), req.UserID, req.PricingID, billing.SubscriptionOptions{
		Quantity:             req.Quantity,
		TrialDays:            req.TrialDays,
		DefaultPaymentMethod: req.DefaultPaymentMethod,
		Metadata:             req.Metadata,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(sub)
}

func (sc *SubscriptionController) HandleGetSubscription(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	sub, err := sc.subs.Get(id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) HandleListUserSubscriptions(c *fiber.Ctx) error {
	userID, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	subs, err := sc.subs.ListForUser(userID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"subscriptions": subs, "count": len(subs)})
}

func (sc *SubscriptionController) HandleUpdateSubscription(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	var req updateSubscriptionRequest
	if !parseBody(c, &req) {
		return nil
	}

	sub, err := sc.subs.Update(c.UserContext(), id, billing.SubscriptionUpdate{
		Quantity:             req.Quantity,
		Metadata:             req.Metadata,
		DefaultPaymentMethod: req.DefaultPaymentMethod,
		ProrationBehavior:    req.ProrationBehavior,
	})
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(sub)
}

// HandleCancelSubscription cancels at period end by default; pass
// ?immediately=true to end the subscription right away.
func (sc *SubscriptionController) HandleCancelSubscription(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	immediately := c.QueryBool("immediately", false)

	sub, err := sc.subs.Cancel(c.UserContext(), id, immediately)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) HandleResumeSubscription(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	sub, err := sc.subs.Resume(c.UserContext(), id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) HandleChangePlan(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	var req changePlanRequest
	if !parseBody(c, &req) {
		return nil
	}

	sub, err := sc.subs.ChangePlan(c.UserContext(), id, req.PricingID, req.ProrationBehavior)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) HandleUpdateTrial(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	var req updateTrialRequest
	if !parseBody(c, &req) {
		return nil
	}

	sub, err := sc.subs.UpdateTrial(c.UserContext(), id, req.Action, req.Days)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(sub)
}

func (sc *SubscriptionController) HandleListPayments(c *fiber.Ctx) error {
	id, ok := paramID(c, "id")
	if !ok {
		return nil
	}
	payments, err := sc.subs.ListPayments(id)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(fiber.Map{"payments": payments, "count": len(payments)})
}

// HandleSyncSubscription forces a reconciliation of one subscription from
// the gateway, the manual counterpart of the webhook flow.
func (sc *SubscriptionController) HandleSyncSubscription(c *fiber.Ctx) error {
	var req syncSubscriptionRequest
	if !parseBody(c, &req) {
		return nil
	}

	sub, err := sc.subs.SyncSubscription(c.UserContext(), req.StripeSubscriptionID)
	if err != nil {
		return respondServiceError(c, err)
	}
	return c.JSON(sub)
}
