package models

import "time"

// WebhookEvent stores every verified Stripe webhook delivery with
// deduplication metadata for idempotent processing. It also backs the
// recent-events listing, replacing any log-file scraping.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	StripeEventID   string     `gorm:"type:varchar(191);not null;uniqueIndex:ux_webhook_events_stripe_event_id" json:"stripe_event_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Handled reports whether the event finished processing without error.
func (e *WebhookEvent) Handled() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
