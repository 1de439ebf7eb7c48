package controllers

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
)

// webhookRepoStub implements the slice of billing.Repository the webhook
// path touches; everything else panics via the embedded nil interface.
type webhookRepoStub struct {
	billing.Repository

	mu     sync.Mutex
	events map[string]*models.WebhookEvent
	nextID uint
}

func newWebhookRepoStub() *webhookRepoStub {
	return &webhookRepoStub{events: make(map[string]*models.WebhookEvent)}
}

func (s *webhookRepoStub) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.events[event.StripeEventID]; ok {
		cp := *existing
		return false, &cp, nil
	}
	s.nextID++
	event.ID = s.nextID
	cp := *event
	s.events[event.StripeEventID] = &cp
	stored := cp
	return true, &stored, nil
}

func (s *webhookRepoStub) MarkWebhookProcessed(id uint, processingError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e.ID == id {
			now := time.Now()
			e.ProcessedAt = &now
			e.ProcessingError = processingError
		}
	}
	return nil
}

func (s *webhookRepoStub) ListRecentWebhookEvents(limit int) ([]models.WebhookEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WebhookEvent, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, *e)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func signWebhookPayload(payload []byte, secret string, timestamp int64) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(payload)
	return fmt.Sprintf("t=%d,v1=%s", timestamp, hex.EncodeToString(mac.Sum(nil)))
}

func newWebhookTestApp(handlerErr error) (*fiber.App, *webhookRepoStub) {
	repo := newWebhookRepoStub()
	dispatcher := billing.NewDispatcher(repo)
	dispatcher.Register("invoice.payment_succeeded", func(ctx context.Context, event *billing.Event) error {
		return handlerErr
	})

	wc := NewWebhookController("whsec_test", billing.DefaultTolerance, dispatcher, repo)

	app := fiber.New()
	app.Post("/webhooks/stripe", wc.HandleStripeWebhook)
	app.Get("/api/v1/webhooks/events", wc.HandleListWebhookEvents)
	return app, repo
}

func webhookBody(eventID string) []byte {
	return []byte(`{"id":"` + eventID + `","type":"invoice.payment_succeeded","created":1700000000,"data":{"object":{"id":"in_1"}}}`)
}

func TestHandleStripeWebhook_ValidDelivery(t *testing.T) {
	app, repo := newWebhookTestApp(nil)

	body := webhookBody("evt_ok")
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Stripe-Signature", signWebhookPayload(body, "whsec_test", time.Now().Unix()))

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	events, _ := repo.ListRecentWebhookEvents(10)
	assert.Len(t, events, 1)
	assert.True(t, events[0].Handled())
}

func TestHandleStripeWebhook_InvalidSignature(t *testing.T) {
	app, repo := newWebhookTestApp(nil)

	body := webhookBody("evt_bad")
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signWebhookPayload(body, "whsec_wrong", time.Now().Unix()))

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	// Nothing is recorded before verification passes.
	events, _ := repo.ListRecentWebhookEvents(10)
	assert.Empty(t, events)
}

func TestHandleStripeWebhook_StaleTimestamp(t *testing.T) {
	app, _ := newWebhookTestApp(nil)

	body := webhookBody("evt_stale")
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signWebhookPayload(body, "whsec_test", time.Now().Add(-time.Hour).Unix()))

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestHandleStripeWebhook_HandlerFailureReturns500(t *testing.T) {
	app, repo := newWebhookTestApp(errors.New("downstream unavailable"))

	body := webhookBody("evt_fail")
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signWebhookPayload(body, "whsec_test", time.Now().Unix()))

	resp, err := app.Test(req)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)

	events, _ := repo.ListRecentWebhookEvents(10)
	assert.Len(t, events, 1)
	assert.False(t, events[0].Handled())
	assert.NotEmpty(t, events[0].ProcessingError)
}

func TestHandleStripeWebhook_DuplicateAcknowledged(t *testing.T) {
	app, _ := newWebhookTestApp(nil)

	body := webhookBody("evt_dup")
	for i := 0; i < 2; i++ {
		req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
		req.Header.Set("Stripe-Signature", signWebhookPayload(body, "whsec_test", time.Now().Unix()))
		resp, err := app.Test(req)
		assert.NoError(t, err)
		assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	}
}

func TestHandleListWebhookEvents(t *testing.T) {
	app, repo := newWebhookTestApp(nil)

	body := webhookBody("evt_list")
	req := httptest.NewRequest("POST", "/webhooks/stripe", bytes.NewReader(body))
	req.Header.Set("Stripe-Signature", signWebhookPayload(body, "whsec_test", time.Now().Unix()))
	if _, err := app.Test(req); err != nil {
		t.Fatalf("seed delivery failed: %v", err)
	}

	listReq := httptest.NewRequest("GET", "/api/v1/webhooks/events?limit=10", nil)
	resp, err := app.Test(listReq)
	assert.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	events, _ := repo.ListRecentWebhookEvents(10)
	assert.Len(t, events, 1)
	assert.Equal(t, "invoice.payment_succeeded", events[0].EventType)
}
