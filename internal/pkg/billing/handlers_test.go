package billing

import (
	"context"
	"testing"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/payments"
)

func handlerFixture(t *testing.T) (*fakeRepository, *fakeGateway, *Handlers) {
	t.Helper()
	repo := newFakeRepository()
	gw := &fakeGateway{}
	subs := NewSubscriptionService(repo, gw, 14)
	return repo, gw, NewHandlers(repo, subs)
}

func remoteSubscription(id, customerID, priceID, status string) *payments.Subscription {
	start := time.Now().Add(-24 * time.Hour).Truncate(time.Second)
	end := start.AddDate(0, 1, 0)
	return &payments.Subscription{
		ID:                 id,
		CustomerID:         customerID,
		Status:             status,
		ItemID:             "si_1",
		PriceID:            priceID,
		Quantity:           1,
		CurrentPeriodStart: start,
		CurrentPeriodEnd:   end,
	}
}

func invoiceEvent(eventID, invoiceID, subscriptionID string, eventType string) *Event {
	object := []byte(`{
		"id": "` + invoiceID + `",
		"subscription": "` + subscriptionID + `",
		"payment_intent": "pi_1",
		"amount_paid": 2999,
		"amount_due": 2999,
		"currency": "usd",
		"number": "INV-0001",
		"period_start": 1700000000,
		"period_end": 1702592000,
		"status_transitions": {"paid_at": 1700000100}
	}`)
	return &Event{ID: eventID, Type: eventType, Created: time.Now(), Object: object, Raw: object}
}

func TestPaymentSucceeded_RecordsPayment(t *testing.T) {
	repo, gw, h := handlerFixture(t)
	user := repo.addUser("cus_1")
	product := repo.addProduct("prod_1")
	pricing := repo.addPricing(product.ID, "price_1", models.PricingTypeRecurring, true)
	gw.getSub = func(ctx context.Context, id string) (*payments.Subscription, error) {
		return remoteSubscription(id, "cus_1", "price_1", "active"), nil
	}

	sub := &models.Subscription{
		UserID:               user.ID,
		ProductID:            product.ID,
		PricingID:            pricing.ID,
		StripeSubscriptionID: "sub_1",
		StripeStatus:         models.SubscriptionStatusActive,
	}
	if err := repo.CreateSubscription(sub); err != nil {
		t.Fatalf("seed subscription: %v", err)
	}

	if err := h.PaymentSucceeded(context.Background(), invoiceEvent("evt_1", "in_1", "sub_1", EventPaymentSucceeded)); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	payment, err := repo.GetPaymentByInvoiceID("in_1")
	if err != nil {
		t.Fatalf("payment not stored: %v", err)
	}
	if payment.SubscriptionID != sub.ID {
		t.Fatalf("payment bound to subscription %d, want %d", payment.SubscriptionID, sub.ID)
	}
	if payment.Status != models.PaymentStatusPaid || payment.Amount != 2999 {
		t.Fatalf("unexpected payment: %+v", payment)
	}
	if payment.PaymentDate == nil || payment.PaymentDate.Unix() != 1700000100 {
		t.Fatalf("expected payment date from status transitions, got %v", payment.PaymentDate)
	}
}

func TestPaymentSucceeded_ReplayUpdatesInPlace(t *testing.T) {
	repo, gw, h := handlerFixture(t)
	user := repo.addUser("cus_1")
	product := repo.addProduct("prod_1")
	pricing := repo.addPricing(product.ID, "price_1", models.PricingTypeRecurring, true)
	gw.getSub = func(ctx context.Context, id string) (*payments.Subscription, error) {
		return remoteSubscription(id, "cus_1", "price_1", "active"), nil
	}
	_ = repo.CreateSubscription(&models.Subscription{
		UserID: user.ID, ProductID: product.ID, PricingID: pricing.ID,
		StripeSubscriptionID: "sub_1", StripeStatus: models.SubscriptionStatusActive,
	})

	event := invoiceEvent("evt_1", "in_1", "sub_1", EventPaymentSucceeded)
	if err := h.PaymentSucceeded(context.Background(), event); err != nil {
		t.Fatalf("first delivery failed: %v", err)
	}
	if err := h.PaymentSucceeded(context.Background(), event); err != nil {
		t.Fatalf("replay failed: %v", err)
	}

	sub, _ := repo.GetSubscriptionByStripeID("sub_1")
	rows, _ := repo.ListPaymentsBySubscription(sub.ID)
	if len(rows) != 1 {
		t.Fatalf("replay must not duplicate payments, got %d rows", len(rows))
	}
}

func TestPaymentSucceeded_SyncsMissingSubscription(t *testing.T) {
	repo, gw, h := handlerFixture(t)
	user := repo.addUser("cus_1")
	product := repo.addProduct("prod_1")
	pricing := repo.addPricing(product.ID, "price_1", models.PricingTypeRecurring, true)

	gw.getSub = func(ctx context.Context, id string) (*payments.Subscription, error) {
		return remoteSubscription(id, "cus_1", "price_1", "active"), nil
	}

	if err := h.PaymentSucceeded(context.Background(), invoiceEvent("evt_1", "in_1", "sub_late", EventPaymentSucceeded)); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	sub, err := repo.GetSubscriptionByStripeID("sub_late")
	if err != nil {
		t.Fatalf("expected subscription to be created by sync: %v", err)
	}
	if sub.UserID != user.ID || sub.PricingID != pricing.ID {
		t.Fatalf("synced subscription resolved wrong rows: %+v", sub)
	}

	payment, err := repo.GetPaymentByInvoiceID("in_1")
	if err != nil || payment.SubscriptionID != sub.ID {
		t.Fatalf("payment not bound to synced subscription: %+v, %v", payment, err)
	}
}

func TestPaymentFailed_RecordsFailedPayment(t *testing.T) {
	repo, gw, h := handlerFixture(t)
	user := repo.addUser("cus_1")
	product := repo.addProduct("prod_1")
	pricing := repo.addPricing(product.ID, "price_1", models.PricingTypeRecurring, true)
	gw.getSub = func(ctx context.Context, id string) (*payments.Subscription, error) {
		return remoteSubscription(id, "cus_1", "price_1", "past_due"), nil
	}
	_ = repo.CreateSubscription(&models.Subscription{
		UserID: user.ID, ProductID: product.ID, PricingID: pricing.ID,
		StripeSubscriptionID: "sub_1", StripeStatus: models.SubscriptionStatusActive,
	})

	object := []byte(`{"id":"in_fail","subscription":"sub_1","amount_due":2999,"currency":"usd","attempt_count":2,"next_payment_attempt":1700100000}`)
	event := &Event{ID: "evt_f", Type: EventPaymentFailed, Created: time.Now(), Object: object, Raw: object}

	if err := h.PaymentFailed(context.Background(), event); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	payment, err := repo.GetPaymentByInvoiceID("in_fail")
	if err != nil {
		t.Fatalf("payment not stored: %v", err)
	}
	if payment.Status != models.PaymentStatusFailed || payment.Amount != 2999 {
		t.Fatalf("unexpected payment: %+v", payment)
	}
	if payment.PaymentDate != nil {
		t.Fatalf("failed payment must not carry a payment date")
	}
	if payment.Metadata["attempt_count"] != "2" {
		t.Fatalf("expected attempt_count in metadata, got %v", payment.Metadata)
	}
	if payment.Metadata["next_payment_attempt"] != time.Unix(1700100000, 0).UTC().Format(time.RFC3339) {
		t.Fatalf("expected next_payment_attempt in metadata, got %v", payment.Metadata)
	}

	sub, _ := repo.GetSubscriptionByStripeID("sub_1")
	if sub.StripeStatus != models.SubscriptionStatusPastDue {
		t.Fatalf("failed payment must resync subscription status, got %q", sub.StripeStatus)
	}
}

func TestPaymentFailed_FinalAttemptOmitsRetryTimestamp(t *testing.T) {
	repo, gw, h := handlerFixture(t)
	user := repo.addUser("cus_1")
	product := repo.addProduct("prod_1")
	pricing := repo.addPricing(product.ID, "price_1", models.PricingTypeRecurring, true)
	gw.getSub = func(ctx context.Context, id string) (*payments.Subscription, error) {
		return remoteSubscription(id, "cus_1", "price_1", "unpaid"), nil
	}
	_ = repo.CreateSubscription(&models.Subscription{
		UserID: user.ID, ProductID: product.ID, PricingID: pricing.ID,
		StripeSubscriptionID: "sub_1", StripeStatus: models.SubscriptionStatusPastDue,
	})

	object := []byte(`{"id":"in_fail","subscription":"sub_1","amount_due":2999,"currency":"usd","attempt_count":4}`)
	event := &Event{ID: "evt_f", Type: EventPaymentFailed, Created: time.Now(), Object: object, Raw: object}

	if err := h.PaymentFailed(context.Background(), event); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	payment, _ := repo.GetPaymentByInvoiceID("in_fail")
	if payment.Metadata["attempt_count"] != "4" {
		t.Fatalf("expected attempt_count in metadata, got %v", payment.Metadata)
	}
	if _, ok := payment.Metadata["next_payment_attempt"]; ok {
		t.Fatalf("final attempt has no next retry, got %v", payment.Metadata)
	}
}

func TestPaymentSucceeded_ResyncsSubscriptionStatus(t *testing.T) {
	repo, gw, h := handlerFixture(t)
	user := repo.addUser("cus_1")
	product := repo.addProduct("prod_1")
	pricing := repo.addPricing(product.ID, "price_1", models.PricingTypeRecurring, true)
	gw.getSub = func(ctx context.Context, id string) (*payments.Subscription, error) {
		return remoteSubscription(id, "cus_1", "price_1", "active"), nil
	}
	_ = repo.CreateSubscription(&models.Subscription{
		UserID: user.ID, ProductID: product.ID, PricingID: pricing.ID,
		StripeSubscriptionID: "sub_1", StripeStatus: models.SubscriptionStatusPastDue,
	})

	if err := h.PaymentSucceeded(context.Background(), invoiceEvent("evt_1", "in_1", "sub_1", EventPaymentSucceeded)); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	sub, _ := repo.GetSubscriptionByStripeID("sub_1")
	if sub.StripeStatus != models.SubscriptionStatusActive {
		t.Fatalf("payment must pull the recovered status from the gateway, got %q", sub.StripeStatus)
	}
}

func TestSubscriptionChanged_SyncsFromGateway(t *testing.T) {
	repo, gw, h := handlerFixture(t)
	repo.addUser("cus_1")
	product := repo.addProduct("prod_1")
	repo.addPricing(product.ID, "price_1", models.PricingTypeRecurring, true)

	remote := remoteSubscription("sub_1", "cus_1", "price_1", "past_due")
	gw.getSub = func(ctx context.Context, id string) (*payments.Subscription, error) {
		return remote, nil
	}

	// Payload status is stale on purpose; the gateway is authoritative.
	object := []byte(`{"id":"sub_1","customer":"cus_1","status":"active"}`)
	event := &Event{ID: "evt_s", Type: EventSubscriptionUpdated, Created: time.Now(), Object: object, Raw: object}

	if err := h.SubscriptionChanged(context.Background(), event); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	sub, err := repo.GetSubscriptionByStripeID("sub_1")
	if err != nil {
		t.Fatalf("subscription not stored: %v", err)
	}
	if sub.StripeStatus != models.SubscriptionStatusPastDue {
		t.Fatalf("expected gateway status past_due, got %q", sub.StripeStatus)
	}
}

func TestSubscriptionDeleted_MarksCanceled(t *testing.T) {
	repo, _, h := handlerFixture(t)
	user := repo.addUser("cus_1")
	product := repo.addProduct("prod_1")
	pricing := repo.addPricing(product.ID, "price_1", models.PricingTypeRecurring, true)
	_ = repo.CreateSubscription(&models.Subscription{
		UserID: user.ID, ProductID: product.ID, PricingID: pricing.ID,
		StripeSubscriptionID: "sub_1", StripeStatus: models.SubscriptionStatusActive,
	})

	object := []byte(`{"id":"sub_1","customer":"cus_1","status":"canceled"}`)
	event := &Event{ID: "evt_d", Type: EventSubscriptionDeleted, Created: time.Now(), Object: object, Raw: object}

	if err := h.SubscriptionDeleted(context.Background(), event); err != nil {
		t.Fatalf("handler failed: %v", err)
	}

	sub, _ := repo.GetSubscriptionByStripeID("sub_1")
	if sub.StripeStatus != models.SubscriptionStatusCanceled {
		t.Fatalf("expected canceled, got %q", sub.StripeStatus)
	}
	if sub.CanceledAt == nil || sub.EndsAt == nil {
		t.Fatalf("expected canceled_at and ends_at to be set: %+v", sub)
	}
}

func TestSubscriptionDeleted_UnknownSubscriptionIsNoOp(t *testing.T) {
	_, _, h := handlerFixture(t)

	object := []byte(`{"id":"sub_ghost","customer":"cus_1","status":"canceled"}`)
	event := &Event{ID: "evt_d", Type: EventSubscriptionDeleted, Created: time.Now(), Object: object, Raw: object}

	if err := h.SubscriptionDeleted(context.Background(), event); err != nil {
		t.Fatalf("deletion of unknown subscription must be acknowledged, got %v", err)
	}
}

func TestLatePaymentAfterDeletion_DoesNotResurrect(t *testing.T) {
	repo, gw, h := handlerFixture(t)
	user := repo.addUser("cus_1")
	product := repo.addProduct("prod_1")
	pricing := repo.addPricing(product.ID, "price_1", models.PricingTypeRecurring, true)
	canceledAt := time.Now().Add(-time.Hour).Truncate(time.Second)
	gw.getSub = func(ctx context.Context, id string) (*payments.Subscription, error) {
		remote := remoteSubscription(id, "cus_1", "price_1", "canceled")
		remote.CanceledAt = &canceledAt
		return remote, nil
	}
	_ = repo.CreateSubscription(&models.Subscription{
		UserID: user.ID, ProductID: product.ID, PricingID: pricing.ID,
		StripeSubscriptionID: "sub_1", StripeStatus: models.SubscriptionStatusActive,
	})

	object := []byte(`{"id":"sub_1","customer":"cus_1","status":"canceled"}`)
	deleted := &Event{ID: "evt_d", Type: EventSubscriptionDeleted, Created: time.Now(), Object: object, Raw: object}
	if err := h.SubscriptionDeleted(context.Background(), deleted); err != nil {
		t.Fatalf("deletion failed: %v", err)
	}

	// The final invoice arrives after the deletion event.
	if err := h.PaymentSucceeded(context.Background(), invoiceEvent("evt_p", "in_last", "sub_1", EventPaymentSucceeded)); err != nil {
		t.Fatalf("late payment failed: %v", err)
	}

	sub, _ := repo.GetSubscriptionByStripeID("sub_1")
	if sub.StripeStatus != models.SubscriptionStatusCanceled {
		t.Fatalf("late payment must not change status, got %q", sub.StripeStatus)
	}
	if sub.CanceledAt == nil {
		t.Fatalf("resync must keep the cancellation timestamp")
	}
	if _, err := repo.GetPaymentByInvoiceID("in_last"); err != nil {
		t.Fatalf("late payment must still be recorded: %v", err)
	}
}
