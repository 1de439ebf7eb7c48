package models

import "time"

// Product mirrors a Stripe product. Deleting is modeled as archiving
// (active=false), never a hard delete, because remote price history cannot be
// removed once a subscription references it.
type Product struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	StripeID    string            `gorm:"type:varchar(191);not null;uniqueIndex:ux_products_stripe_id" json:"stripe_id"`
	Name        string            `gorm:"type:varchar(191);not null" json:"name"`
	Description string            `gorm:"type:text" json:"description"`
	Active      bool              `gorm:"default:true;index" json:"active"`
	Metadata    map[string]string `gorm:"serializer:json;type:longtext" json:"metadata"`
	CreatedAt   time.Time         `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time         `gorm:"autoUpdateTime" json:"updated_at"`

	Pricing []ProductPricing `gorm:"foreignKey:ProductID;constraint:OnDelete:CASCADE" json:"pricing,omitempty"`
}
