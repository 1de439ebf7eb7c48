package billing

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stripe event types the reconciliation core reacts to.
const (
	EventPaymentSucceeded      = "invoice.payment_succeeded"
	EventPaymentFailed         = "invoice.payment_failed"
	EventSubscriptionCreated   = "customer.subscription.created"
	EventSubscriptionUpdated   = "customer.subscription.updated"
	EventSubscriptionDeleted   = "customer.subscription.deleted"
	EventTrialWillEnd          = "customer.subscription.trial_will_end"
	EventInvoiceCreated        = "invoice.created"
	EventInvoiceFinalized      = "invoice.finalized"
	EventPaymentMethodAttached = "payment_method.attached"
	EventPaymentMethodDetached = "payment_method.detached"
)

// Event is the verified webhook envelope. Object holds the raw
// `data.object` JSON; handlers decode it into the payload shape they need.
type Event struct {
	ID      string
	Type    string
	Created time.Time
	Object  json.RawMessage
	Raw     []byte
}

type eventEnvelope struct {
	ID      string `json:"id"`
	Type    string `json:"type"`
	Created int64  `json:"created"`
	Data    struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// ParseEvent decodes a raw webhook body into an Event. It does not verify
// authenticity; VerifyEvent is the only entry point request handling uses.
func ParseEvent(payload []byte) (Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return Event{}, fmt.Errorf("%w: %s", ErrMalformedPayload, err)
	}
	if env.ID == "" || env.Type == "" {
		return Event{}, fmt.Errorf("%w: missing id or type", ErrMalformedPayload)
	}
	return Event{
		ID:      env.ID,
		Type:    env.Type,
		Created: time.Unix(env.Created, 0),
		Object:  env.Data.Object,
		Raw:     payload,
	}, nil
}

// invoicePayload is the slice of a Stripe invoice object the payment
// handlers consume.
type invoicePayload struct {
	ID                 string `json:"id"`
	Subscription       string `json:"subscription"`
	PaymentIntent      string `json:"payment_intent"`
	AmountPaid         int64  `json:"amount_paid"`
	AmountDue          int64  `json:"amount_due"`
	Currency           string `json:"currency"`
	Number             string `json:"number"`
	HostedInvoiceURL   string `json:"hosted_invoice_url"`
	InvoicePDF         string `json:"invoice_pdf"`
	AttemptCount       int64  `json:"attempt_count"`
	NextPaymentAttempt int64  `json:"next_payment_attempt"`
	PeriodStart        int64  `json:"period_start"`
	PeriodEnd          int64  `json:"period_end"`
	StatusTransitions  struct {
		PaidAt int64 `json:"paid_at"`
	} `json:"status_transitions"`
}

// subscriptionPayload is the slice of a Stripe subscription object the
// subscription handlers consume. Everything else is re-fetched from the
// gateway, never trusted from the event.
type subscriptionPayload struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	Status            string `json:"status"`
	TrialEnd          int64  `json:"trial_end"`
	CancelAtPeriodEnd bool   `json:"cancel_at_period_end"`
}

type paymentMethodPayload struct {
	ID       string `json:"id"`
	Customer string `json:"customer"`
	Type     string `json:"type"`
}
