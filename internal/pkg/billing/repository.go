package billing

import (
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repository provides DB operations used by the billing services and the
// webhook reconciliation handlers. Every write keyed by a remote id is an
// atomic upsert against the matching unique index, never a read-then-insert.
type Repository interface {
	GetUserByID(id uint) (*models.User, error)
	GetUserByStripeID(stripeID string) (*models.User, error)
	SetUserStripeID(userID uint, stripeID string) error

	GetProductByID(id uint) (*models.Product, error)
	GetProductByStripeID(stripeID string) (*models.Product, error)
	CreateProduct(p *models.Product) error
	SaveProduct(p *models.Product) error
	UpsertProductByStripeID(p *models.Product) error
	ListProducts() ([]models.Product, error)

	GetPricingByID(id uint) (*models.ProductPricing, error)
	GetPricingByStripeID(stripePriceID string) (*models.ProductPricing, error)
	CreatePricing(p *models.ProductPricing) error
	SavePricing(p *models.ProductPricing) error
	UpsertPricingByStripeID(p *models.ProductPricing) error
	ListPricingByProduct(productID uint) ([]models.ProductPricing, error)

	GetSubscriptionByID(id uint) (*models.Subscription, error)
	GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error)
	CreateSubscription(s *models.Subscription) error
	SaveSubscription(s *models.Subscription) error
	UpsertSubscriptionByStripeID(s *models.Subscription) error
	ListSubscriptionsByUser(userID uint) ([]models.Subscription, error)

	UpsertPaymentByInvoiceID(p *models.SubscriptionPayment) error
	GetPaymentByInvoiceID(stripeInvoiceID string) (*models.SubscriptionPayment, error)
	ListPaymentsBySubscription(subscriptionID uint) ([]models.SubscriptionPayment, error)

	UpsertCardByPaymentMethodID(c *models.Card) error
	ListCardsByUser(userID uint) ([]models.Card, error)
	DeleteCard(userID uint, stripePaymentMethodID string) error
	DeleteCardsNotIn(userID uint, keepPaymentMethodIDs []string) error
	SetDefaultCard(userID uint, stripePaymentMethodID string) error

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkWebhookProcessed(id uint, processingError string) error
	ListRecentWebhookEvents(limit int) ([]models.WebhookEvent, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) GetUserByID(id uint) (*models.User, error) {
	var u models.User
	if err := r.db.First(&u, id).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) GetUserByStripeID(stripeID string) (*models.User, error) {
	var u models.User
	if err := r.db.Where("stripe_id = ?", stripeID).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *gormRepository) SetUserStripeID(userID uint, stripeID string) error {
	return r.db.Model(&models.User{}).Where("id = ?", userID).
		Update("stripe_id", stripeID).Error
}

func (r *gormRepository) GetProductByID(id uint) (*models.Product, error) {
	var p models.Product
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetProductByStripeID(stripeID string) (*models.Product, error) {
	var p models.Product
	if err := r.db.Where("stripe_id = ?", stripeID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) CreateProduct(p *models.Product) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) SaveProduct(p *models.Product) error {
	return r.db.Save(p).Error
}

func (r *gormRepository) UpsertProductByStripeID(p *models.Product) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"description",
			"active",
			"metadata",
			"updated_at",
		}),
	}).Create(p).Error; err != nil {
		return err
	}

	// Ensure ID is populated after upsert.
	return r.db.Where("stripe_id = ?", p.StripeID).First(p).Error
}

func (r *gormRepository) ListProducts() ([]models.Product, error) {
	var out []models.Product
	err := r.db.Order("id").Find(&out).Error
	return out, err
}

func (r *gormRepository) GetPricingByID(id uint) (*models.ProductPricing, error) {
	var p models.ProductPricing
	if err := r.db.First(&p, id).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) GetPricingByStripeID(stripePriceID string) (*models.ProductPricing, error) {
	var p models.ProductPricing
	if err := r.db.Where("stripe_price_id = ?", stripePriceID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) CreatePricing(p *models.ProductPricing) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) SavePricing(p *models.ProductPricing) error {
	return r.db.Save(p).Error
}

func (r *gormRepository) UpsertPricingByStripeID(p *models.ProductPricing) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_price_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"nickname",
			"active",
			"metadata",
			"updated_at",
		}),
	}).Create(p).Error; err != nil {
		return err
	}

	return r.db.Where("stripe_price_id = ?", p.StripePriceID).First(p).Error
}

func (r *gormRepository) ListPricingByProduct(productID uint) ([]models.ProductPricing, error) {
	var out []models.ProductPricing
	err := r.db.Where("product_id = ?", productID).Order("id").Find(&out).Error
	return out, err
}

func (r *gormRepository) GetSubscriptionByID(id uint) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.First(&s, id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	var s models.Subscription
	if err := r.db.Where("stripe_subscription_id = ?", stripeSubscriptionID).First(&s).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *gormRepository) CreateSubscription(s *models.Subscription) error {
	return r.db.Create(s).Error
}

func (r *gormRepository) SaveSubscription(s *models.Subscription) error {
	return r.db.Save(s).Error
}

func (r *gormRepository) UpsertSubscriptionByStripeID(s *models.Subscription) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_subscription_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"product_id",
			"pricing_id",
			"stripe_status",
			"current_period_start",
			"current_period_end",
			"trial_start",
			"trial_end",
			"canceled_at",
			"ends_at",
			"quantity",
			"metadata",
			"updated_at",
		}),
	}).Create(s).Error; err != nil {
		return err
	}

	return r.db.Where("stripe_subscription_id = ?", s.StripeSubscriptionID).First(s).Error
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var out []models.Subscription
	err := r.db.Where("user_id = ?", userID).Order("id").Find(&out).Error
	return out, err
}

func (r *gormRepository) UpsertPaymentByInvoiceID(p *models.SubscriptionPayment) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_invoice_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"subscription_id",
			"stripe_payment_intent_id",
			"amount",
			"currency",
			"status",
			"payment_date",
			"period_start",
			"period_end",
			"metadata",
			"updated_at",
		}),
	}).Create(p).Error; err != nil {
		return err
	}

	return r.db.Where("stripe_invoice_id = ?", p.StripeInvoiceID).First(p).Error
}

func (r *gormRepository) GetPaymentByInvoiceID(stripeInvoiceID string) (*models.SubscriptionPayment, error) {
	var p models.SubscriptionPayment
	if err := r.db.Where("stripe_invoice_id = ?", stripeInvoiceID).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *gormRepository) ListPaymentsBySubscription(subscriptionID uint) ([]models.SubscriptionPayment, error) {
	var out []models.SubscriptionPayment
	err := r.db.Where("subscription_id = ?", subscriptionID).Order("id").Find(&out).Error
	return out, err
}

func (r *gormRepository) UpsertCardByPaymentMethodID(c *models.Card) error {
	if err := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "stripe_payment_method_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_id",
			"brand",
			"last_four",
			"exp_month",
			"exp_year",
			"is_default",
			"updated_at",
		}),
	}).Create(c).Error; err != nil {
		return err
	}

	return r.db.Where("stripe_payment_method_id = ?", c.StripePaymentMethodID).First(c).Error
}

func (r *gormRepository) ListCardsByUser(userID uint) ([]models.Card, error) {
	var out []models.Card
	err := r.db.Where("user_id = ?", userID).Order("id").Find(&out).Error
	return out, err
}

func (r *gormRepository) DeleteCard(userID uint, stripePaymentMethodID string) error {
	return r.db.Where("user_id = ? AND stripe_payment_method_id = ?", userID, stripePaymentMethodID).
		Delete(&models.Card{}).Error
}

func (r *gormRepository) DeleteCardsNotIn(userID uint, keepPaymentMethodIDs []string) error {
	q := r.db.Where("user_id = ?", userID)
	if len(keepPaymentMethodIDs) > 0 {
		q = q.Where("stripe_payment_method_id NOT IN ?", keepPaymentMethodIDs)
	}
	return q.Delete(&models.Card{}).Error
}

// SetDefaultCard clears the previous default and marks the given payment
// method in one transaction, so at most one card per user is ever default.
func (r *gormRepository) SetDefaultCard(userID uint, stripePaymentMethodID string) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.Card{}).
			Where("user_id = ?", userID).
			Update("is_default", false).Error; err != nil {
			return err
		}
		return tx.Model(&models.Card{}).
			Where("user_id = ? AND stripe_payment_method_id = ?", userID, stripePaymentMethodID).
			Update("is_default", true).Error
	})
}

func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "stripe_event_id"}},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("stripe_event_id = ?", event.StripeEventID).First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) MarkWebhookProcessed(id uint, processingError string) error {
	now := time.Now()
	updates := map[string]interface{}{
		"processed_at":     &now,
		"processing_error": processingError,
	}
	return r.db.Model(&models.WebhookEvent{}).Where("id = ?", id).Updates(updates).Error
}

func (r *gormRepository) ListRecentWebhookEvents(limit int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var out []models.WebhookEvent
	err := r.db.Order("id DESC").Limit(limit).Find(&out).Error
	return out, err
}
