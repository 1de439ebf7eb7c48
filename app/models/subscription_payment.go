package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusPending  = "pending"
	PaymentStatusCanceled = "canceled"
)

// SubscriptionPayment records one subscription invoice. StripeInvoiceID is
// the natural idempotency key: a webhook replay for an already-recorded
// invoice updates the row in place, it never duplicates it.
type SubscriptionPayment struct {
	ID                    uint              `gorm:"primaryKey" json:"id"`
	SubscriptionID        uint              `gorm:"not null;index:idx_subscription_payments_subscription_status,priority:1" json:"subscription_id"`
	StripeInvoiceID       string            `gorm:"type:varchar(191);not null;uniqueIndex:ux_subscription_payments_stripe_invoice_id" json:"stripe_invoice_id"`
	StripePaymentIntentID string            `gorm:"type:varchar(191);default:null" json:"stripe_payment_intent_id,omitempty"`
	Amount                int64             `gorm:"not null" json:"amount"`
	Currency              string            `gorm:"type:varchar(3);not null" json:"currency"`
	Status                string            `gorm:"type:varchar(16);not null;index:idx_subscription_payments_subscription_status,priority:2" json:"status"`
	PaymentDate           *time.Time        `gorm:"type:timestamp;default:null" json:"payment_date,omitempty"`
	PeriodStart           *time.Time        `gorm:"type:timestamp;default:null" json:"period_start,omitempty"`
	PeriodEnd             *time.Time        `gorm:"type:timestamp;default:null" json:"period_end,omitempty"`
	Metadata              map[string]string `gorm:"serializer:json;type:longtext" json:"metadata"`
	CreatedAt             time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	Subscription *Subscription `gorm:"foreignKey:SubscriptionID" json:"subscription,omitempty"`
}

func (p *SubscriptionPayment) IsPaid() bool {
	return p.Status == PaymentStatusPaid
}

func (p *SubscriptionPayment) IsFailed() bool {
	return p.Status == PaymentStatusFailed
}

// FormattedAmount renders the minor-unit amount with its currency, e.g.
// "USD 29.99".
func (p *SubscriptionPayment) FormattedAmount() string {
	return fmt.Sprintf("%s %.2f", strings.ToUpper(p.Currency), float64(p.Amount)/100)
}
