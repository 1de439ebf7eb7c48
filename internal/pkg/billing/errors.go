package billing

import "errors"

// Verification errors: terminal, the webhook request is rejected with 400.
var (
	ErrInvalidSignature = errors.New("webhook signature does not match payload")
	ErrStalePayload     = errors.New("webhook timestamp outside tolerance window")
	ErrMalformedPayload = errors.New("webhook payload is not a valid event")
)

// Domain precondition errors: raised by lifecycle operations before any
// remote call, so no partial state change is possible.
var (
	ErrMissingRemoteIdentity  = errors.New("customer has no stripe customer id")
	ErrInvalidPricing         = errors.New("pricing must be recurring for subscriptions")
	ErrPricingInactive        = errors.New("pricing plan is not active")
	ErrInvalidTrialAdjustment = errors.New("trial end cannot be moved into the past")
	ErrUnknownTrialAction     = errors.New("unknown trial action")
	ErrNotOnGracePeriod       = errors.New("subscription has no pending cancellation to resume")
)
