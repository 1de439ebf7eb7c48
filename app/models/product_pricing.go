package models

import (
	"fmt"
	"strings"
	"time"
)

const (
	PricingTypeOneTime   = "one_time"
	PricingTypeRecurring = "recurring"
)

const (
	BillingPeriodDay   = "day"
	BillingPeriodWeek  = "week"
	BillingPeriodMonth = "month"
	BillingPeriodYear  = "year"
)

// ProductPricing mirrors a Stripe price. The economic fields (unit_amount,
// currency, type, billing_period, billing_period_count) are immutable after
// creation; Stripe disallows price mutation, so only nickname, active and
// metadata may change.
type ProductPricing struct {
	ID                 uint              `gorm:"primaryKey" json:"id"`
	ProductID          uint              `gorm:"not null;index" json:"product_id"`
	StripePriceID      string            `gorm:"type:varchar(191);not null;uniqueIndex:ux_product_pricing_stripe_price_id" json:"stripe_price_id"`
	Nickname           string            `gorm:"type:varchar(191)" json:"nickname"`
	UnitAmount         int64             `gorm:"not null" json:"unit_amount"`
	Currency           string            `gorm:"type:varchar(3);not null" json:"currency"`
	Type               string            `gorm:"type:varchar(16);not null;default:'recurring'" json:"type"`
	BillingPeriod      string            `gorm:"type:varchar(16);default:null" json:"billing_period,omitempty"`
	BillingPeriodCount int64             `gorm:"default:1" json:"billing_period_count"`
	TrialPeriodDays    *int64            `gorm:"default:null" json:"trial_period_days,omitempty"`
	Active             bool              `gorm:"default:true;index" json:"active"`
	Metadata           map[string]string `gorm:"serializer:json;type:longtext" json:"metadata"`
	CreatedAt          time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	Product *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`
}

func (p *ProductPricing) IsRecurring() bool {
	return p.Type == PricingTypeRecurring
}

// FormattedAmount renders the minor-unit amount as a decimal string, e.g.
// 2999 -> "29.99".
func (p *ProductPricing) FormattedAmount() string {
	return fmt.Sprintf("%.2f", float64(p.UnitAmount)/100)
}

// FormattedPrice renders amount, currency and billing interval for display.
func (p *ProductPricing) FormattedPrice() string {
	out := strings.ToUpper(p.Currency) + " " + p.FormattedAmount()
	if p.Type != PricingTypeRecurring {
		return out
	}
	if p.BillingPeriodCount > 1 {
		return fmt.Sprintf("%s / %d %ss", out, p.BillingPeriodCount, p.BillingPeriod)
	}
	return out + " / " + p.BillingPeriod
}
