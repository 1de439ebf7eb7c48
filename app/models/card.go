package models

import (
	"fmt"
	"time"
)

// Card mirrors a Stripe payment method attached to a customer. At most one
// card per user carries is_default=true; setting a new default clears the
// previous one in the same transaction.
type Card struct {
	ID                    uint      `gorm:"primaryKey" json:"id"`
	UserID                uint      `gorm:"not null;index" json:"user_id"`
	StripePaymentMethodID string    `gorm:"type:varchar(191);not null;uniqueIndex:ux_cards_stripe_payment_method_id" json:"stripe_payment_method_id"`
	Brand                 string    `gorm:"type:varchar(32)" json:"brand"`
	LastFour              string    `gorm:"type:varchar(4)" json:"last_four"`
	ExpMonth              int64     `json:"exp_month"`
	ExpYear               int64     `json:"exp_year"`
	IsDefault             bool      `gorm:"default:false;index" json:"is_default"`
	CreatedAt             time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	User *User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

// FormattedExpiry renders the expiry as MM/YYYY.
func (c *Card) FormattedExpiry() string {
	return fmt.Sprintf("%02d/%d", c.ExpMonth, c.ExpYear)
}

// MaskedNumber renders the card for display, e.g. "**** **** **** 4242".
func (c *Card) MaskedNumber() string {
	return "**** **** **** " + c.LastFour
}

// IsExpired reports whether the card expiry lies in the past.
func (c *Card) IsExpired() bool {
	now := time.Now()
	if c.ExpYear < int64(now.Year()) {
		return true
	}
	return c.ExpYear == int64(now.Year()) && c.ExpMonth < int64(now.Month())
}
