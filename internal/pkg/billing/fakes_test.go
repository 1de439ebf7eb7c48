package billing

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ManuelReschke/PayFox/app/models"
	"github.com/ManuelReschke/PayFox/internal/pkg/payments"
	"gorm.io/gorm"
)

// fakeRepository is an in-memory Repository with the same upsert semantics
// as the GORM implementation: writes keyed by remote id update in place.
type fakeRepository struct {
	mu sync.Mutex

	users    map[uint]*models.User
	products map[uint]*models.Product
	pricings map[uint]*models.ProductPricing
	subs     map[uint]*models.Subscription
	payments map[uint]*models.SubscriptionPayment
	cards    map[uint]*models.Card
	events   map[uint]*models.WebhookEvent

	nextID uint

	failSaveSubscription bool
}

func newFakeRepository() *fakeRepository {
	return &fakeRepository{
		users:    make(map[uint]*models.User),
		products: make(map[uint]*models.Product),
		pricings: make(map[uint]*models.ProductPricing),
		subs:     make(map[uint]*models.Subscription),
		payments: make(map[uint]*models.SubscriptionPayment),
		cards:    make(map[uint]*models.Card),
		events:   make(map[uint]*models.WebhookEvent),
	}
}

func (r *fakeRepository) id() uint {
	r.nextID++
	return r.nextID
}

func (r *fakeRepository) addUser(stripeID string) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	u := &models.User{ID: r.id(), Name: "Test User", Email: "test@example.com"}
	if stripeID != "" {
		u.StripeID = &stripeID
	}
	r.users[u.ID] = u
	return u
}

func (r *fakeRepository) addProduct(stripeID string) *models.Product {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &models.Product{ID: r.id(), StripeID: stripeID, Name: "Pro Plan", Active: true}
	r.products[p.ID] = p
	return p
}

func (r *fakeRepository) addPricing(productID uint, stripePriceID, pricingType string, active bool) *models.ProductPricing {
	r.mu.Lock()
	defer r.mu.Unlock()
	p := &models.ProductPricing{
		ID:            r.id(),
		ProductID:     productID,
		StripePriceID: stripePriceID,
		UnitAmount:    2999,
		Currency:      "usd",
		Type:          pricingType,
		BillingPeriod: models.BillingPeriodMonth,
		Active:        active,
	}
	r.pricings[p.ID] = p
	return p
}

func (r *fakeRepository) GetUserByID(id uint) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetUserByStripeID(stripeID string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if u.StripeID != nil && *u.StripeID == stripeID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) SetUserStripeID(userID uint, stripeID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[userID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	u.StripeID = &stripeID
	return nil
}

func (r *fakeRepository) GetProductByID(id uint) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.products[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetProductByStripeID(stripeID string) (*models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.products {
		if p.StripeID == stripeID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) CreateProduct(p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.id()
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *fakeRepository) SaveProduct(p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *fakeRepository) UpsertProductByStripeID(p *models.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.products {
		if existing.StripeID == p.StripeID {
			p.ID = existing.ID
			cp := *p
			r.products[p.ID] = &cp
			return nil
		}
	}
	p.ID = r.id()
	cp := *p
	r.products[p.ID] = &cp
	return nil
}

func (r *fakeRepository) ListProducts() ([]models.Product, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.Product, 0, len(r.products))
	for _, p := range r.products {
		out = append(out, *p)
	}
	return out, nil
}

func (r *fakeRepository) GetPricingByID(id uint) (*models.ProductPricing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.pricings[id]; ok {
		cp := *p
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetPricingByStripeID(stripePriceID string) (*models.ProductPricing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.pricings {
		if p.StripePriceID == stripePriceID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) CreatePricing(p *models.ProductPricing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	p.ID = r.id()
	cp := *p
	r.pricings[p.ID] = &cp
	return nil
}

func (r *fakeRepository) SavePricing(p *models.ProductPricing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.pricings[p.ID] = &cp
	return nil
}

func (r *fakeRepository) UpsertPricingByStripeID(p *models.ProductPricing) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.pricings {
		if existing.StripePriceID == p.StripePriceID {
			p.ID = existing.ID
			cp := *p
			r.pricings[p.ID] = &cp
			return nil
		}
	}
	p.ID = r.id()
	cp := *p
	r.pricings[p.ID] = &cp
	return nil
}

func (r *fakeRepository) ListPricingByProduct(productID uint) ([]models.ProductPricing, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.ProductPricing
	for _, p := range r.pricings {
		if p.ProductID == productID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepository) GetSubscriptionByID(id uint) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.subs[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) GetSubscriptionByStripeID(stripeSubscriptionID string) (*models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.subs {
		if s.StripeSubscriptionID == stripeSubscriptionID {
			cp := *s
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) CreateSubscription(s *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s.ID = r.id()
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r *fakeRepository) SaveSubscription(s *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSaveSubscription {
		return errors.New("forced save failure")
	}
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r *fakeRepository) UpsertSubscriptionByStripeID(s *models.Subscription) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failSaveSubscription {
		return errors.New("forced save failure")
	}
	for _, existing := range r.subs {
		if existing.StripeSubscriptionID == s.StripeSubscriptionID {
			s.ID = existing.ID
			s.CreatedAt = existing.CreatedAt
			cp := *s
			r.subs[s.ID] = &cp
			return nil
		}
	}
	s.ID = r.id()
	cp := *s
	r.subs[s.ID] = &cp
	return nil
}

func (r *fakeRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Subscription
	for _, s := range r.subs {
		if s.UserID == userID {
			out = append(out, *s)
		}
	}
	return out, nil
}

func (r *fakeRepository) UpsertPaymentByInvoiceID(p *models.SubscriptionPayment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.payments {
		if existing.StripeInvoiceID == p.StripeInvoiceID {
			p.ID = existing.ID
			cp := *p
			r.payments[p.ID] = &cp
			return nil
		}
	}
	p.ID = r.id()
	cp := *p
	r.payments[p.ID] = &cp
	return nil
}

func (r *fakeRepository) GetPaymentByInvoiceID(stripeInvoiceID string) (*models.SubscriptionPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.payments {
		if p.StripeInvoiceID == stripeInvoiceID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *fakeRepository) ListPaymentsBySubscription(subscriptionID uint) ([]models.SubscriptionPayment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SubscriptionPayment
	for _, p := range r.payments {
		if p.SubscriptionID == subscriptionID {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *fakeRepository) UpsertCardByPaymentMethodID(c *models.Card) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.cards {
		if existing.StripePaymentMethodID == c.StripePaymentMethodID {
			c.ID = existing.ID
			c.IsDefault = existing.IsDefault
			cp := *c
			r.cards[c.ID] = &cp
			return nil
		}
	}
	c.ID = r.id()
	cp := *c
	r.cards[c.ID] = &cp
	return nil
}

func (r *fakeRepository) ListCardsByUser(userID uint) ([]models.Card, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.Card
	for _, c := range r.cards {
		if c.UserID == userID {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (r *fakeRepository) DeleteCard(userID uint, stripePaymentMethodID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, c := range r.cards {
		if c.UserID == userID && c.StripePaymentMethodID == stripePaymentMethodID {
			delete(r.cards, id)
		}
	}
	return nil
}

func (r *fakeRepository) DeleteCardsNotIn(userID uint, keep []string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	for id, c := range r.cards {
		if c.UserID == userID && !keepSet[c.StripePaymentMethodID] {
			delete(r.cards, id)
		}
	}
	return nil
}

func (r *fakeRepository) SetDefaultCard(userID uint, stripePaymentMethodID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.cards {
		if c.UserID == userID {
			c.IsDefault = c.StripePaymentMethodID == stripePaymentMethodID
		}
	}
	return nil
}

func (r *fakeRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.events {
		if existing.StripeEventID == event.StripeEventID {
			cp := *existing
			return false, &cp, nil
		}
	}
	event.ID = r.id()
	event.CreatedAt = time.Now()
	cp := *event
	r.events[event.ID] = &cp
	stored := cp
	return true, &stored, nil
}

func (r *fakeRepository) MarkWebhookProcessed(id uint, processingError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.events[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	now := time.Now()
	e.ProcessedAt = &now
	e.ProcessingError = processingError
	return nil
}

func (r *fakeRepository) ListRecentWebhookEvents(limit int) ([]models.WebhookEvent, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.WebhookEvent, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, *e)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// fakeGateway implements payments.Gateway via optional per-method hooks.
// Calling a method without a hook fails the operation, so tests notice
// unexpected remote calls.
type fakeGateway struct {
	createCustomer   func(ctx context.Context, params payments.CustomerParams) (*payments.Customer, error)
	updateCustomer   func(ctx context.Context, customerID string, params payments.CustomerParams) (*payments.Customer, error)
	setDefaultPM     func(ctx context.Context, customerID, paymentMethodID string) error
	createProduct    func(ctx context.Context, params payments.ProductParams) (*payments.Product, error)
	updateProduct    func(ctx context.Context, productID string, params payments.ProductParams) (*payments.Product, error)
	listProducts     func(ctx context.Context, limit int64) ([]payments.Product, error)
	createPrice      func(ctx context.Context, params payments.PriceParams) (*payments.Price, error)
	updatePrice      func(ctx context.Context, priceID string, params payments.PriceUpdateParams) (*payments.Price, error)
	listPrices       func(ctx context.Context, productID string) ([]payments.Price, error)
	createSub        func(ctx context.Context, params payments.SubscriptionCreateParams) (*payments.Subscription, error)
	updateSub        func(ctx context.Context, subscriptionID string, params payments.SubscriptionUpdateParams) (*payments.Subscription, error)
	cancelSub        func(ctx context.Context, subscriptionID string) (*payments.Subscription, error)
	getSub           func(ctx context.Context, subscriptionID string) (*payments.Subscription, error)
	attachPM         func(ctx context.Context, customerID, paymentMethodID string) (*payments.PaymentMethod, error)
	detachPM         func(ctx context.Context, paymentMethodID string) error
	listPMs          func(ctx context.Context, customerID string) ([]payments.PaymentMethod, error)
	createSetupIntnt func(ctx context.Context, customerID string) (*payments.SetupIntent, error)
}

var errUnexpectedGatewayCall = errors.New("unexpected gateway call")

func (g *fakeGateway) CreateCustomer(ctx context.Context, params payments.CustomerParams) (*payments.Customer, error) {
	if g.createCustomer == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.createCustomer(ctx, params)
}

func (g *fakeGateway) UpdateCustomer(ctx context.Context, customerID string, params payments.CustomerParams) (*payments.Customer, error) {
	if g.updateCustomer == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.updateCustomer(ctx, customerID, params)
}

func (g *fakeGateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	if g.setDefaultPM == nil {
		return errUnexpectedGatewayCall
	}
	return g.setDefaultPM(ctx, customerID, paymentMethodID)
}

func (g *fakeGateway) CreateProduct(ctx context.Context, params payments.ProductParams) (*payments.Product, error) {
	if g.createProduct == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.createProduct(ctx, params)
}

func (g *fakeGateway) UpdateProduct(ctx context.Context, productID string, params payments.ProductParams) (*payments.Product, error) {
	if g.updateProduct == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.updateProduct(ctx, productID, params)
}

func (g *fakeGateway) ListProducts(ctx context.Context, limit int64) ([]payments.Product, error) {
	if g.listProducts == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.listProducts(ctx, limit)
}

func (g *fakeGateway) CreatePrice(ctx context.Context, params payments.PriceParams) (*payments.Price, error) {
	if g.createPrice == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.createPrice(ctx, params)
}

func (g *fakeGateway) UpdatePrice(ctx context.Context, priceID string, params payments.PriceUpdateParams) (*payments.Price, error) {
	if g.updatePrice == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.updatePrice(ctx, priceID, params)
}

func (g *fakeGateway) ListPrices(ctx context.Context, productID string) ([]payments.Price, error) {
	if g.listPrices == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.listPrices(ctx, productID)
}

func (g *fakeGateway) CreateSubscription(ctx context.Context, params payments.SubscriptionCreateParams) (*payments.Subscription, error) {
	if g.createSub == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.createSub(ctx, params)
}

func (g *fakeGateway) UpdateSubscription(ctx context.Context, subscriptionID string, params payments.SubscriptionUpdateParams) (*payments.Subscription, error) {
	if g.updateSub == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.updateSub(ctx, subscriptionID, params)
}

func (g *fakeGateway) CancelSubscription(ctx context.Context, subscriptionID string) (*payments.Subscription, error) {
	if g.cancelSub == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.cancelSub(ctx, subscriptionID)
}

func (g *fakeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*payments.Subscription, error) {
	if g.getSub == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.getSub(ctx, subscriptionID)
}

func (g *fakeGateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*payments.PaymentMethod, error) {
	if g.attachPM == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.attachPM(ctx, customerID, paymentMethodID)
}

func (g *fakeGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	if g.detachPM == nil {
		return errUnexpectedGatewayCall
	}
	return g.detachPM(ctx, paymentMethodID)
}

func (g *fakeGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]payments.PaymentMethod, error) {
	if g.listPMs == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.listPMs(ctx, customerID)
}

func (g *fakeGateway) CreateSetupIntent(ctx context.Context, customerID string) (*payments.SetupIntent, error) {
	if g.createSetupIntnt == nil {
		return nil, errUnexpectedGatewayCall
	}
	return g.createSetupIntnt(ctx, customerID)
}
