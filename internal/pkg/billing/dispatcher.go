package billing

import (
	"context"
	"fmt"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/gofiber/fiber/v2/log"
)

// HandlerFunc processes a single verified webhook event.
type HandlerFunc func(ctx context.Context, event *Event) error

// Dispatcher routes verified events to registered handlers and keeps the
// webhook event log. Every event is persisted before processing; duplicates
// that were already handled are acknowledged without reprocessing, duplicates
// whose previous attempt failed are processed again.
type Dispatcher struct {
	repo     Repository
	handlers map[string]HandlerFunc
}

func NewDispatcher(repo Repository) *Dispatcher {
	return &Dispatcher{
		repo:     repo,
		handlers: make(map[string]HandlerFunc),
	}
}

// Register binds a handler to an event type. Registering the same type twice
// replaces the earlier handler.
func (d *Dispatcher) Register(eventType string, fn HandlerFunc) {
	d.handlers[eventType] = fn
}

// Dispatch records the event and runs its handler. The returned error is nil
// whenever the sender should receive a 2xx: unknown event types and already
// handled duplicates are acknowledged, not failed.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	record := &models.WebhookEvent{
		StripeEventID: event.ID,
		EventType:     event.Type,
		PayloadJSON:   string(event.Raw),
	}

	created, stored, err := d.repo.CreateWebhookEventIfNotExists(record)
	if err != nil {
		return fmt.Errorf("record webhook event %s: %w", event.ID, err)
	}

	if !created && stored.Handled() {
		log.Infof("[Billing] Duplicate event %s (%s) already handled, acknowledging", event.ID, event.Type)
		return nil
	}

	handler, ok := d.handlers[event.Type]
	if !ok {
		log.Infof("[Billing] No handler for event type %s, acknowledging %s", event.Type, event.ID)
		if err := d.repo.MarkWebhookProcessed(stored.ID, ""); err != nil {
			log.Warnf("[Billing] Failed to mark event %s processed: %v", event.ID, err)
		}
		return nil
	}

	if !created {
		log.Infof("[Billing] Reprocessing event %s (%s) after earlier failure", event.ID, event.Type)
	}

	if err := handler(ctx, event); err != nil {
		if markErr := d.repo.MarkWebhookProcessed(stored.ID, err.Error()); markErr != nil {
			log.Warnf("[Billing] Failed to record error for event %s: %v", event.ID, markErr)
		}
		return fmt.Errorf("handle %s event %s: %w", event.Type, event.ID, err)
	}

	if err := d.repo.MarkWebhookProcessed(stored.ID, ""); err != nil {
		log.Warnf("[Billing] Failed to mark event %s processed: %v", event.ID, err)
	}
	return nil
}
