package models

import "time"

const (
	SubscriptionStatusIncomplete        = "incomplete"
	SubscriptionStatusIncompleteExpired = "incomplete_expired"
	SubscriptionStatusTrialing          = "trialing"
	SubscriptionStatusActive            = "active"
	SubscriptionStatusPastDue           = "past_due"
	SubscriptionStatusCanceled          = "canceled"
	SubscriptionStatusUnpaid            = "unpaid"
)

// Subscription mirrors a Stripe subscription. StripeStatus is the single
// field reconciliation treats as authoritative on every sync; EndsAt is set
// only when a cancellation (immediate or at period end) has been requested
// or observed.
type Subscription struct {
	ID                   uint              `gorm:"primaryKey" json:"id"`
	UserID               uint              `gorm:"not null;index:idx_subscriptions_user_status,priority:1" json:"user_id"`
	ProductID            uint              `gorm:"not null;index" json:"product_id"`
	PricingID            uint              `gorm:"not null;index" json:"pricing_id"`
	StripeSubscriptionID string            `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscriptions_stripe_subscription_id" json:"stripe_subscription_id"`
	StripeStatus         string            `gorm:"type:varchar(32);not null;default:'incomplete';index:idx_subscriptions_user_status,priority:2" json:"stripe_status"`
	CurrentPeriodStart   *time.Time        `gorm:"type:timestamp;default:null" json:"current_period_start,omitempty"`
	CurrentPeriodEnd     *time.Time        `gorm:"type:timestamp;default:null" json:"current_period_end,omitempty"`
	TrialStart           *time.Time        `gorm:"type:timestamp;default:null" json:"trial_start,omitempty"`
	TrialEnd             *time.Time        `gorm:"type:timestamp;default:null" json:"trial_end,omitempty"`
	CanceledAt           *time.Time        `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	EndsAt               *time.Time        `gorm:"type:timestamp;default:null" json:"ends_at,omitempty"`
	Quantity             int64             `gorm:"not null;default:1" json:"quantity"`
	Metadata             map[string]string `gorm:"serializer:json;type:longtext" json:"metadata"`
	CreatedAt            time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	User     *User                 `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Product  *Product              `gorm:"foreignKey:ProductID" json:"product,omitempty"`
	Pricing  *ProductPricing       `gorm:"foreignKey:PricingID" json:"pricing,omitempty"`
	Payments []SubscriptionPayment `gorm:"foreignKey:SubscriptionID;constraint:OnDelete:CASCADE" json:"payments,omitempty"`
}

// IsActive reports whether the subscription currently entitles the customer.
func (s *Subscription) IsActive() bool {
	return s.StripeStatus == SubscriptionStatusActive || s.StripeStatus == SubscriptionStatusTrialing
}

// OnTrial reports whether the subscription is in a running trial.
func (s *Subscription) OnTrial() bool {
	return s.StripeStatus == SubscriptionStatusTrialing &&
		s.TrialEnd != nil && s.TrialEnd.After(time.Now())
}

// Cancelled reports whether the subscription has ended or is past its
// effective cancellation time.
func (s *Subscription) Cancelled() bool {
	if s.StripeStatus == SubscriptionStatusCanceled {
		return true
	}
	return s.EndsAt != nil && s.EndsAt.Before(time.Now())
}

// OnGracePeriod reports whether a cancel-at-period-end has been requested but
// the paid period has not elapsed yet.
func (s *Subscription) OnGracePeriod() bool {
	return s.EndsAt != nil && s.EndsAt.After(time.Now()) &&
		s.StripeStatus != SubscriptionStatusCanceled
}

// FormattedStatus maps the raw Stripe status to a display label.
func (s *Subscription) FormattedStatus() string {
	switch s.StripeStatus {
	case SubscriptionStatusIncomplete:
		return "Incomplete"
	case SubscriptionStatusIncompleteExpired:
		return "Incomplete Expired"
	case SubscriptionStatusTrialing:
		return "On Trial"
	case SubscriptionStatusActive:
		return "Active"
	case SubscriptionStatusPastDue:
		return "Past Due"
	case SubscriptionStatusCanceled:
		return "Cancelled"
	case SubscriptionStatusUnpaid:
		return "Unpaid"
	default:
		return s.StripeStatus
	}
}
