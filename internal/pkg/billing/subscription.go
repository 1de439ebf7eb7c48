package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/payments"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"
)

// Trial adjustment actions accepted by UpdateTrial.
const (
	TrialActionExtend = "extend"
	TrialActionReduce = "reduce"
	TrialActionRemove = "remove"
)

// SubscriptionOptions carries the optional knobs for Create. TrialDays set
// to a non-nil value overrides both the price default and the configured
// default; pointing it at 0 skips the trial entirely.
type SubscriptionOptions struct {
	Quantity             int64
	TrialDays            *int64
	DefaultPaymentMethod string
	Metadata             map[string]string
}

// SubscriptionUpdate is a partial update for Update. Nil fields are left
// untouched; Metadata is merged key-wise into the existing map.
type SubscriptionUpdate struct {
	Quantity             *int64
	Metadata             map[string]string
	DefaultPaymentMethod string
	ProrationBehavior    string
}

// SubscriptionService drives the subscription lifecycle. Every mutation goes
// remote-first: the gateway call happens before any local write, and the
// local row is then overwritten with what the gateway returned, never with
// what we asked for.
type SubscriptionService struct {
	repo             Repository
	gw               payments.Gateway
	locks            *keyedMutex
	defaultTrialDays int64
	now              func() time.Time
}

func NewSubscriptionService(repo Repository, gw payments.Gateway, defaultTrialDays int64) *SubscriptionService {
	return &SubscriptionService{
		repo:             repo,
		gw:               gw,
		locks:            newKeyedMutex(),
		defaultTrialDays: defaultTrialDays,
		now:              time.Now,
	}
}

// Create subscribes the user to the given pricing plan. The pricing must be
// recurring and active, and the user must already exist as a remote customer.
func (s *SubscriptionService) Create(ctx context.Context, userID, pricingID uint, opts SubscriptionOptions) (*models.Subscription, error) {
	user, err := s.repo.GetUserByID(userID)
	if err != nil {
		return nil, fmt.Errorf("load user %d: %w", userID, err)
	}
	if !user.HasStripeID() {
		return nil, ErrMissingRemoteIdentity
	}

	pricing, err := s.validatePricing(pricingID)
	if err != nil {
		return nil, err
	}

	quantity := opts.Quantity
	if quantity <= 0 {
		quantity = 1
	}

	remote, err := s.gw.CreateSubscription(ctx, payments.SubscriptionCreateParams{
		CustomerID:           user.GetStripeID(),
		PriceID:              pricing.StripePriceID,
		Quantity:             quantity,
		TrialPeriodDays:      s.resolveTrialDays(opts.TrialDays, pricing),
		DefaultPaymentMethod: opts.DefaultPaymentMethod,
		Metadata:             opts.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("create subscription for customer %s: %w", user.GetStripeID(), err)
	}

	unlock := s.locks.Lock(remote.ID)
	defer unlock()

	sub := &models.Subscription{
		UserID:    user.ID,
		ProductID: pricing.ProductID,
		PricingID: pricing.ID,
	}
	applyRemoteSubscription(sub, remote)

	if err := s.repo.UpsertSubscriptionByStripeID(sub); err != nil {
		log.Errorf("[Billing] Subscription %s created remotely but local write failed: %v", remote.ID, err)
		return nil, fmt.Errorf("store subscription %s: %w", remote.ID, err)
	}

	log.Infof("[Billing] Created subscription %s (user=%d price=%s status=%s)",
		remote.ID, user.ID, pricing.StripePriceID, remote.Status)
	return sub, nil
}

// Update applies a partial update to quantity, metadata, default payment
// method or proration behavior.
func (s *SubscriptionService) Update(ctx context.Context, subscriptionID uint, update SubscriptionUpdate) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByID(subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription %d: %w", subscriptionID, err)
	}

	params := payments.SubscriptionUpdateParams{
		Quantity:             update.Quantity,
		DefaultPaymentMethod: update.DefaultPaymentMethod,
		ProrationBehavior:    update.ProrationBehavior,
	}
	if len(update.Metadata) > 0 {
		params.Metadata = mergeMetadata(sub.Metadata, update.Metadata)
	}
	if update.Quantity != nil {
		// Quantity lives on the subscription item, so the item id is needed.
		remote, err := s.gw.GetSubscription(ctx, sub.StripeSubscriptionID)
		if err != nil {
			return nil, fmt.Errorf("fetch subscription %s: %w", sub.StripeSubscriptionID, err)
		}
		params.ItemID = remote.ItemID
	}

	remote, err := s.gw.UpdateSubscription(ctx, sub.StripeSubscriptionID, params)
	if err != nil {
		return nil, fmt.Errorf("update subscription %s: %w", sub.StripeSubscriptionID, err)
	}

	return s.storeRemote(sub, remote)
}

// Cancel ends the subscription. With immediately set the remote subscription
// is deleted and ends_at is now; otherwise cancel_at_period_end is requested
// and ends_at is the current period end, leaving the subscription usable
// through the paid period.
func (s *SubscriptionService) Cancel(ctx context.Context, subscriptionID uint, immediately bool) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByID(subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription %d: %w", subscriptionID, err)
	}

	var remote *payments.Subscription
	if immediately {
		remote, err = s.gw.CancelSubscription(ctx, sub.StripeSubscriptionID)
	} else {
		cancel := true
		remote, err = s.gw.UpdateSubscription(ctx, sub.StripeSubscriptionID, payments.SubscriptionUpdateParams{
			CancelAtPeriodEnd: &cancel,
		})
	}
	if err != nil {
		return nil, fmt.Errorf("cancel subscription %s: %w", sub.StripeSubscriptionID, err)
	}

	log.Infof("[Billing] Cancelled subscription %s (immediately=%t)", sub.StripeSubscriptionID, immediately)
	return s.storeRemote(sub, remote)
}

// Resume clears a pending cancel-at-period-end. It only applies while the
// subscription is on its grace period; after the period has elapsed a new
// subscription must be created instead.
func (s *SubscriptionService) Resume(ctx context.Context, subscriptionID uint) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByID(subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription %d: %w", subscriptionID, err)
	}
	if !sub.OnGracePeriod() {
		return nil, fmt.Errorf("subscription %s: %w", sub.StripeSubscriptionID, ErrNotOnGracePeriod)
	}

	cancel := false
	remote, err := s.gw.UpdateSubscription(ctx, sub.StripeSubscriptionID, payments.SubscriptionUpdateParams{
		CancelAtPeriodEnd: &cancel,
	})
	if err != nil {
		return nil, fmt.Errorf("resume subscription %s: %w", sub.StripeSubscriptionID, err)
	}

	log.Infof("[Billing] Resumed subscription %s", sub.StripeSubscriptionID)
	return s.storeRemote(sub, remote)
}

// ChangePlan swaps the subscription onto a different pricing plan. The new
// pricing is validated the same way Create validates its plan.
func (s *SubscriptionService) ChangePlan(ctx context.Context, subscriptionID, newPricingID uint, prorationBehavior string) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByID(subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription %d: %w", subscriptionID, err)
	}

	pricing, err := s.validatePricing(newPricingID)
	if err != nil {
		return nil, err
	}
	if pricing.ID == sub.PricingID {
		return sub, nil
	}

	current, err := s.gw.GetSubscription(ctx, sub.StripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", sub.StripeSubscriptionID, err)
	}

	remote, err := s.gw.UpdateSubscription(ctx, sub.StripeSubscriptionID, payments.SubscriptionUpdateParams{
		ItemID:            current.ItemID,
		PriceID:           pricing.StripePriceID,
		ProrationBehavior: prorationBehavior,
	})
	if err != nil {
		return nil, fmt.Errorf("change plan of subscription %s: %w", sub.StripeSubscriptionID, err)
	}

	unlock := s.locks.Lock(sub.StripeSubscriptionID)
	defer unlock()

	sub.ProductID = pricing.ProductID
	sub.PricingID = pricing.ID
	applyRemoteSubscription(sub, remote)
	if err := s.repo.SaveSubscription(sub); err != nil {
		log.Errorf("[Billing] Plan change of %s applied remotely but local write failed: %v", sub.StripeSubscriptionID, err)
		return nil, fmt.Errorf("store subscription %s: %w", sub.StripeSubscriptionID, err)
	}

	log.Infof("[Billing] Changed subscription %s to price %s", sub.StripeSubscriptionID, pricing.StripePriceID)
	return sub, nil
}

// UpdateTrial adjusts the trial end. Extend pushes trial_end forward by the
// given days (starting from now when no trial is running), reduce pulls it
// back and rejects results in the past, remove ends the trial immediately.
func (s *SubscriptionService) UpdateTrial(ctx context.Context, subscriptionID uint, action string, days int64) (*models.Subscription, error) {
	sub, err := s.repo.GetSubscriptionByID(subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("load subscription %d: %w", subscriptionID, err)
	}

	now := s.now()
	base := now
	if sub.TrialEnd != nil && sub.TrialEnd.After(now) {
		base = *sub.TrialEnd
	}

	var trialEnd time.Time
	switch action {
	case TrialActionExtend:
		trialEnd = base.AddDate(0, 0, int(days))
	case TrialActionReduce:
		trialEnd = base.AddDate(0, 0, -int(days))
		if !trialEnd.After(now) {
			return nil, ErrInvalidTrialAdjustment
		}
	case TrialActionRemove:
		trialEnd = now
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTrialAction, action)
	}

	unix := trialEnd.Unix()
	remote, err := s.gw.UpdateSubscription(ctx, sub.StripeSubscriptionID, payments.SubscriptionUpdateParams{
		TrialEnd: &unix,
	})
	if err != nil {
		return nil, fmt.Errorf("update trial of subscription %s: %w", sub.StripeSubscriptionID, err)
	}

	log.Infof("[Billing] Trial of subscription %s adjusted (%s), trial_end=%s", sub.StripeSubscriptionID, action, trialEnd.Format(time.RFC3339))
	return s.storeRemote(sub, remote)
}

// SyncSubscription fetches the subscription from the gateway and overwrites
// the local mirror, creating the row when it does not exist yet. It is the
// shared primitive behind the subscription webhook handlers and the sync API.
func (s *SubscriptionService) SyncSubscription(ctx context.Context, stripeSubscriptionID string) (*models.Subscription, error) {
	remote, err := s.gw.GetSubscription(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, fmt.Errorf("fetch subscription %s: %w", stripeSubscriptionID, err)
	}

	user, err := s.repo.GetUserByStripeID(remote.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("no local user for customer %s: %w", remote.CustomerID, err)
	}
	pricing, err := s.repo.GetPricingByStripeID(remote.PriceID)
	if err != nil {
		return nil, fmt.Errorf("no local pricing for price %s: %w", remote.PriceID, err)
	}

	unlock := s.locks.Lock(stripeSubscriptionID)
	defer unlock()

	sub := &models.Subscription{
		UserID:    user.ID,
		ProductID: pricing.ProductID,
		PricingID: pricing.ID,
	}
	applyRemoteSubscription(sub, remote)

	if err := s.repo.UpsertSubscriptionByStripeID(sub); err != nil {
		return nil, fmt.Errorf("store subscription %s: %w", stripeSubscriptionID, err)
	}

	log.Infof("[Billing] Synced subscription %s (status=%s)", stripeSubscriptionID, remote.Status)
	return sub, nil
}

// RecordRemoteCancellation applies a customer.subscription.deleted event.
// Missing local rows are a no-op: the deletion is authoritative and there is
// nothing left to reconcile.
func (s *SubscriptionService) RecordRemoteCancellation(stripeSubscriptionID string, canceledAt time.Time) error {
	unlock := s.locks.Lock(stripeSubscriptionID)
	defer unlock()

	sub, err := s.repo.GetSubscriptionByStripeID(stripeSubscriptionID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			log.Infof("[Billing] Deletion of unknown subscription %s, nothing to do", stripeSubscriptionID)
			return nil
		}
		return fmt.Errorf("load subscription %s: %w", stripeSubscriptionID, err)
	}

	sub.StripeStatus = models.SubscriptionStatusCanceled
	sub.CanceledAt = &canceledAt
	sub.EndsAt = &canceledAt
	if err := s.repo.SaveSubscription(sub); err != nil {
		return fmt.Errorf("store subscription %s: %w", stripeSubscriptionID, err)
	}

	log.Infof("[Billing] Subscription %s ended remotely at %s", stripeSubscriptionID, canceledAt.Format(time.RFC3339))
	return nil
}

// ListForUser returns the user's subscriptions, newest last.
func (s *SubscriptionService) ListForUser(userID uint) ([]models.Subscription, error) {
	return s.repo.ListSubscriptionsByUser(userID)
}

// Get returns a subscription by local id.
func (s *SubscriptionService) Get(subscriptionID uint) (*models.Subscription, error) {
	return s.repo.GetSubscriptionByID(subscriptionID)
}

// ListPayments returns the payment history of a subscription.
func (s *SubscriptionService) ListPayments(subscriptionID uint) ([]models.SubscriptionPayment, error) {
	return s.repo.ListPaymentsBySubscription(subscriptionID)
}

func (s *SubscriptionService) validatePricing(pricingID uint) (*models.ProductPricing, error) {
	pricing, err := s.repo.GetPricingByID(pricingID)
	if err != nil {
		return nil, fmt.Errorf("load pricing %d: %w", pricingID, err)
	}
	if !pricing.IsRecurring() {
		return nil, ErrInvalidPricing
	}
	if !pricing.Active {
		return nil, ErrPricingInactive
	}
	return pricing, nil
}

// resolveTrialDays gives the explicit option precedence over the price's
// default, which in turn wins over the configured default.
func (s *SubscriptionService) resolveTrialDays(override *int64, pricing *models.ProductPricing) int64 {
	if override != nil {
		return *override
	}
	if pricing.TrialPeriodDays != nil {
		return *pricing.TrialPeriodDays
	}
	return s.defaultTrialDays
}

func (s *SubscriptionService) storeRemote(sub *models.Subscription, remote *payments.Subscription) (*models.Subscription, error) {
	unlock := s.locks.Lock(sub.StripeSubscriptionID)
	defer unlock()

	applyRemoteSubscription(sub, remote)
	if err := s.repo.SaveSubscription(sub); err != nil {
		log.Errorf("[Billing] Subscription %s updated remotely but local write failed: %v", sub.StripeSubscriptionID, err)
		return nil, fmt.Errorf("store subscription %s: %w", sub.StripeSubscriptionID, err)
	}
	return sub, nil
}

// applyRemoteSubscription overwrites the mirrored fields with the gateway's
// view. EndsAt follows the cancellation state: period end when a
// cancel-at-period-end is pending, canceled_at once the subscription is
// gone, nil otherwise.
func applyRemoteSubscription(sub *models.Subscription, remote *payments.Subscription) {
	sub.StripeSubscriptionID = remote.ID
	sub.StripeStatus = remote.Status
	sub.Quantity = remote.Quantity
	sub.TrialStart = remote.TrialStart
	sub.TrialEnd = remote.TrialEnd
	sub.CanceledAt = remote.CanceledAt
	if len(remote.Metadata) > 0 {
		sub.Metadata = remote.Metadata
	}

	if !remote.CurrentPeriodStart.IsZero() {
		start := remote.CurrentPeriodStart
		sub.CurrentPeriodStart = &start
	}
	if !remote.CurrentPeriodEnd.IsZero() {
		end := remote.CurrentPeriodEnd
		sub.CurrentPeriodEnd = &end
	}

	switch {
	case remote.Status == models.SubscriptionStatusCanceled:
		sub.EndsAt = remote.CanceledAt
	case remote.CancelAtPeriodEnd && sub.CurrentPeriodEnd != nil:
		sub.EndsAt = sub.CurrentPeriodEnd
	default:
		sub.EndsAt = nil
	}
}

// mergeMetadata overlays updates onto existing; keys present in updates win.
func mergeMetadata(existing, updates map[string]string) map[string]string {
	merged := make(map[string]string, len(existing)+len(updates))
	for k, v := range existing {
		merged[k] = v
	}
	for k, v := range updates {
		merged[k] = v
	}
	return merged
}
