package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Handlers binds the Stripe event types to the reconciliation logic. Each
// handler only trusts identifiers from the payload; authoritative state is
// re-fetched from the gateway through the subscription service.
type Handlers struct {
	repo Repository
	subs *SubscriptionService
}

func NewHandlers(repo Repository, subs *SubscriptionService) *Handlers {
	return &Handlers{repo: repo, subs: subs}
}

// RegisterAll wires every handled event type into the dispatcher.
func (h *Handlers) RegisterAll(d *Dispatcher) {
	d.Register(EventPaymentSucceeded, h.PaymentSucceeded)
	d.Register(EventPaymentFailed, h.PaymentFailed)
	d.Register(EventSubscriptionCreated, h.SubscriptionChanged)
	d.Register(EventSubscriptionUpdated, h.SubscriptionChanged)
	d.Register(EventSubscriptionDeleted, h.SubscriptionDeleted)
	d.Register(EventTrialWillEnd, h.TrialWillEnd)
	d.Register(EventInvoiceCreated, h.InvoiceObserved)
	d.Register(EventInvoiceFinalized, h.InvoiceObserved)
	d.Register(EventPaymentMethodAttached, h.PaymentMethodObserved)
	d.Register(EventPaymentMethodDetached, h.PaymentMethodObserved)
}

// PaymentSucceeded records a paid invoice against its subscription, creating
// the local subscription first when the invoice outran the subscription
// events.
func (h *Handlers) PaymentSucceeded(ctx context.Context, event *Event) error {
	var inv invoicePayload
	if err := json.Unmarshal(event.Object, &inv); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	if inv.Subscription == "" {
		log.Infof("[Billing] Invoice %s has no subscription, ignoring", inv.ID)
		return nil
	}

	sub, err := h.ensureSubscription(ctx, inv.Subscription)
	if err != nil {
		return err
	}

	payment := paymentFromInvoice(sub.ID, &inv)
	payment.Status = models.PaymentStatusPaid
	if inv.StatusTransitions.PaidAt > 0 {
		t := time.Unix(inv.StatusTransitions.PaidAt, 0)
		payment.PaymentDate = &t
	} else {
		t := event.Created
		payment.PaymentDate = &t
	}

	if err := h.repo.UpsertPaymentByInvoiceID(payment); err != nil {
		return fmt.Errorf("store payment for invoice %s: %w", inv.ID, err)
	}

	log.Infof("[Billing] Recorded paid invoice %s (subscription=%s amount=%d %s)",
		inv.ID, inv.Subscription, payment.Amount, payment.Currency)

	// The payment may have moved the subscription (incomplete -> active,
	// past_due -> active); overwrite the mirror from the gateway instead of
	// waiting for a separate subscription.updated delivery.
	if _, err := h.subs.SyncSubscription(ctx, inv.Subscription); err != nil {
		return fmt.Errorf("resync subscription %s after payment: %w", inv.Subscription, err)
	}
	return nil
}

// PaymentFailed records a failed invoice attempt together with the retry
// schedule, then re-syncs the subscription so a status transition caused by
// the failure (past_due, unpaid) lands immediately.
func (h *Handlers) PaymentFailed(ctx context.Context, event *Event) error {
	var inv invoicePayload
	if err := json.Unmarshal(event.Object, &inv); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	if inv.Subscription == "" {
		log.Infof("[Billing] Invoice %s has no subscription, ignoring", inv.ID)
		return nil
	}

	sub, err := h.ensureSubscription(ctx, inv.Subscription)
	if err != nil {
		return err
	}

	payment := paymentFromInvoice(sub.ID, &inv)
	payment.Status = models.PaymentStatusFailed
	if payment.Metadata == nil {
		payment.Metadata = map[string]string{}
	}
	payment.Metadata["attempt_count"] = strconv.FormatInt(inv.AttemptCount, 10)
	if inv.NextPaymentAttempt > 0 {
		payment.Metadata["next_payment_attempt"] = time.Unix(inv.NextPaymentAttempt, 0).UTC().Format(time.RFC3339)
	}

	if err := h.repo.UpsertPaymentByInvoiceID(payment); err != nil {
		return fmt.Errorf("store payment for invoice %s: %w", inv.ID, err)
	}

	if inv.NextPaymentAttempt > 0 {
		log.Warnf("[Billing] Invoice %s failed (attempt %d), next retry %s",
			inv.ID, inv.AttemptCount, time.Unix(inv.NextPaymentAttempt, 0).Format(time.RFC3339))
	} else {
		log.Warnf("[Billing] Invoice %s failed (attempt %d), no further retries", inv.ID, inv.AttemptCount)
	}

	if _, err := h.subs.SyncSubscription(ctx, inv.Subscription); err != nil {
		return fmt.Errorf("resync subscription %s after failed payment: %w", inv.Subscription, err)
	}
	return nil
}

// SubscriptionChanged handles created and updated events identically: both
// resync the local mirror from the gateway.
func (h *Handlers) SubscriptionChanged(ctx context.Context, event *Event) error {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Object, &payload); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	if payload.ID == "" {
		return fmt.Errorf("%w: subscription id missing", ErrMalformedPayload)
	}

	_, err := h.subs.SyncSubscription(ctx, payload.ID)
	return err
}

func (h *Handlers) SubscriptionDeleted(ctx context.Context, event *Event) error {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Object, &payload); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	if payload.ID == "" {
		return fmt.Errorf("%w: subscription id missing", ErrMalformedPayload)
	}

	return h.subs.RecordRemoteCancellation(payload.ID, event.Created)
}

// TrialWillEnd is informational; notification delivery is out of scope here,
// so the event is logged and acknowledged.
func (h *Handlers) TrialWillEnd(_ context.Context, event *Event) error {
	var payload subscriptionPayload
	if err := json.Unmarshal(event.Object, &payload); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	if payload.TrialEnd > 0 {
		log.Infof("[Billing] Trial of subscription %s ends %s",
			payload.ID, time.Unix(payload.TrialEnd, 0).Format(time.RFC3339))
	} else {
		log.Infof("[Billing] Trial of subscription %s ending", payload.ID)
	}
	return nil
}

// InvoiceObserved acknowledges invoice lifecycle events that need no local
// state change; payment state is driven by the payment events alone.
func (h *Handlers) InvoiceObserved(_ context.Context, event *Event) error {
	var inv invoicePayload
	if err := json.Unmarshal(event.Object, &inv); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	log.Infof("[Billing] Observed %s for invoice %s", event.Type, inv.ID)
	return nil
}

// PaymentMethodObserved logs payment method attach/detach events. Card rows
// change through the customer service, which pulls the authoritative list.
func (h *Handlers) PaymentMethodObserved(_ context.Context, event *Event) error {
	var pm paymentMethodPayload
	if err := json.Unmarshal(event.Object, &pm); err != nil {
		return fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	log.Infof("[Billing] Observed %s for payment method %s (customer=%s)", event.Type, pm.ID, pm.Customer)
	return nil
}

// ensureSubscription looks up the local subscription and falls back to a
// gateway sync when the invoice event arrived before the subscription ones.
func (h *Handlers) ensureSubscription(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	sub, err := h.repo.GetSubscriptionByStripeID(stripeSubscriptionID)
	if err == nil {
		return sub, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("load subscription %s: %w", stripeSubscriptionID, err)
	}

	log.Infof("[Billing] Invoice references unknown subscription %s, syncing first", stripeSubscriptionID)
	return h.subs.SyncSubscription(ctx, stripeSubscriptionID)
}

func paymentFromInvoice(subscriptionID uint, inv *invoicePayload) *models.SubscriptionPayment {
	payment := &models.SubscriptionPayment{
		SubscriptionID:        subscriptionID,
		StripeInvoiceID:       inv.ID,
		StripePaymentIntentID: inv.PaymentIntent,
		Amount:                inv.AmountPaid,
		Currency:              inv.Currency,
	}
	if payment.Amount == 0 {
		payment.Amount = inv.AmountDue
	}
	if inv.PeriodStart > 0 {
		t := time.Unix(inv.PeriodStart, 0)
		payment.PeriodStart = &t
	}
	if inv.PeriodEnd > 0 {
		t := time.Unix(inv.PeriodEnd, 0)
		payment.PeriodEnd = &t
	}
	meta := map[string]string{}
	if inv.Number != "" {
		meta["invoice_number"] = inv.Number
	}
	if inv.HostedInvoiceURL != "" {
		meta["hosted_invoice_url"] = inv.HostedInvoiceURL
	}
	if inv.InvoicePDF != "" {
		meta["invoice_pdf"] = inv.InvoicePDF
	}
	if len(meta) > 0 {
		payment.Metadata = meta
	}
	return payment
}
