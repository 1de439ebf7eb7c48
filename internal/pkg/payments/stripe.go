package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/customer"
	"github.com/stripe/stripe-go/v82/paymentmethod"
	"github.com/stripe/stripe-go/v82/price"
	"github.com/stripe/stripe-go/v82/product"
	"github.com/stripe/stripe-go/v82/setupintent"
	sub "github.com/stripe/stripe-go/v82/subscription"
)

// StripeGateway implements Gateway against the Stripe API.
type StripeGateway struct{}

// NewStripeGateway configures the Stripe SDK with the account secret key and
// returns the gateway. The key is set once; the SDK treats it as read-only
// afterwards.
func NewStripeGateway(secretKey string) *StripeGateway {
	stripe.Key = secretKey
	return &StripeGateway{}
}

func (g *StripeGateway) CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error) {
	p := &stripe.CustomerParams{
		Name:  stripe.String(params.Name),
		Email: stripe.String(params.Email),
	}
	p.Context = ctx
	p.SetIdempotencyKey(uuid.NewString())
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	c, err := customer.New(p)
	if err != nil {
		return nil, fmt.Errorf("create stripe customer: %w", err)
	}
	return &Customer{ID: c.ID, Name: c.Name, Email: c.Email}, nil
}

func (g *StripeGateway) UpdateCustomer(ctx context.Context, customerID string, params CustomerParams) (*Customer, error) {
	p := &stripe.CustomerParams{}
	p.Context = ctx
	if params.Name != "" {
		p.Name = stripe.String(params.Name)
	}
	if params.Email != "" {
		p.Email = stripe.String(params.Email)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	c, err := customer.Update(customerID, p)
	if err != nil {
		return nil, fmt.Errorf("update stripe customer: %w", err)
	}
	return &Customer{ID: c.ID, Name: c.Name, Email: c.Email}, nil
}

func (g *StripeGateway) SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error {
	p := &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(paymentMethodID),
		},
	}
	p.Context = ctx
	if _, err := customer.Update(customerID, p); err != nil {
		return fmt.Errorf("set default payment method: %w", err)
	}
	return nil
}

func (g *StripeGateway) CreateProduct(ctx context.Context, params ProductParams) (*Product, error) {
	p := &stripe.ProductParams{
		Name: stripe.String(params.Name),
	}
	p.Context = ctx
	p.SetIdempotencyKey(uuid.NewString())
	if params.Description != "" {
		p.Description = stripe.String(params.Description)
	}
	if params.Active != nil {
		p.Active = stripe.Bool(*params.Active)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	prod, err := product.New(p)
	if err != nil {
		return nil, fmt.Errorf("create stripe product: %w", err)
	}
	return normalizeProduct(prod), nil
}

func (g *StripeGateway) UpdateProduct(ctx context.Context, productID string, params ProductParams) (*Product, error) {
	p := &stripe.ProductParams{}
	p.Context = ctx
	if params.Name != "" {
		p.Name = stripe.String(params.Name)
	}
	if params.Description != "" {
		p.Description = stripe.String(params.Description)
	}
	if params.Active != nil {
		p.Active = stripe.Bool(*params.Active)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	prod, err := product.Update(productID, p)
	if err != nil {
		return nil, fmt.Errorf("update stripe product: %w", err)
	}
	return normalizeProduct(prod), nil
}

func (g *StripeGateway) ListProducts(ctx context.Context, limit int64) ([]Product, error) {
	p := &stripe.ProductListParams{}
	p.Context = ctx
	if limit > 0 {
		p.Limit = stripe.Int64(limit)
	}
	var out []Product
	iter := product.List(p)
	for iter.Next() {
		out = append(out, *normalizeProduct(iter.Product()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list stripe products: %w", err)
	}
	return out, nil
}

func (g *StripeGateway) CreatePrice(ctx context.Context, params PriceParams) (*Price, error) {
	p := &stripe.PriceParams{
		Product:    stripe.String(params.ProductID),
		UnitAmount: stripe.Int64(params.UnitAmount),
		Currency:   stripe.String(params.Currency),
	}
	p.Context = ctx
	p.SetIdempotencyKey(uuid.NewString())
	if params.Nickname != "" {
		p.Nickname = stripe.String(params.Nickname)
	}
	if params.Active != nil {
		p.Active = stripe.Bool(*params.Active)
	}
	if params.Recurring {
		rec := &stripe.PriceRecurringParams{
			Interval: stripe.String(params.Interval),
		}
		if params.IntervalCount > 0 {
			rec.IntervalCount = stripe.Int64(params.IntervalCount)
		}
		if params.TrialPeriodDays > 0 {
			rec.TrialPeriodDays = stripe.Int64(params.TrialPeriodDays)
		}
		p.Recurring = rec
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	pr, err := price.New(p)
	if err != nil {
		return nil, fmt.Errorf("create stripe price: %w", err)
	}
	return normalizePrice(pr), nil
}

func (g *StripeGateway) UpdatePrice(ctx context.Context, priceID string, params PriceUpdateParams) (*Price, error) {
	p := &stripe.PriceParams{}
	p.Context = ctx
	if params.Nickname != nil {
		p.Nickname = stripe.String(*params.Nickname)
	}
	if params.Active != nil {
		p.Active = stripe.Bool(*params.Active)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	pr, err := price.Update(priceID, p)
	if err != nil {
		return nil, fmt.Errorf("update stripe price: %w", err)
	}
	return normalizePrice(pr), nil
}

func (g *StripeGateway) ListPrices(ctx context.Context, productID string) ([]Price, error) {
	p := &stripe.PriceListParams{
		Product: stripe.String(productID),
	}
	p.Context = ctx
	p.Limit = stripe.Int64(100)
	var out []Price
	iter := price.List(p)
	for iter.Next() {
		out = append(out, *normalizePrice(iter.Price()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list stripe prices: %w", err)
	}
	return out, nil
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, params SubscriptionCreateParams) (*Subscription, error) {
	item := &stripe.SubscriptionItemsParams{
		Price: stripe.String(params.PriceID),
	}
	if params.Quantity > 0 {
		item.Quantity = stripe.Int64(params.Quantity)
	}
	p := &stripe.SubscriptionParams{
		Customer: stripe.String(params.CustomerID),
		Items:    []*stripe.SubscriptionItemsParams{item},
	}
	p.Context = ctx
	p.SetIdempotencyKey(uuid.NewString())
	if params.TrialPeriodDays > 0 {
		p.TrialPeriodDays = stripe.Int64(params.TrialPeriodDays)
	}
	if params.DefaultPaymentMethod != "" {
		p.DefaultPaymentMethod = stripe.String(params.DefaultPaymentMethod)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	s, err := sub.New(p)
	if err != nil {
		return nil, fmt.Errorf("create stripe subscription: %w", err)
	}
	return normalizeSubscription(s), nil
}

func (g *StripeGateway) UpdateSubscription(ctx context.Context, subscriptionID string, params SubscriptionUpdateParams) (*Subscription, error) {
	p := &stripe.SubscriptionParams{}
	p.Context = ctx
	if params.ItemID != "" || params.PriceID != "" || params.Quantity != nil {
		item := &stripe.SubscriptionItemsParams{}
		if params.ItemID != "" {
			item.ID = stripe.String(params.ItemID)
		}
		if params.PriceID != "" {
			item.Price = stripe.String(params.PriceID)
		}
		if params.Quantity != nil {
			item.Quantity = stripe.Int64(*params.Quantity)
		}
		p.Items = []*stripe.SubscriptionItemsParams{item}
	}
	if params.DefaultPaymentMethod != "" {
		p.DefaultPaymentMethod = stripe.String(params.DefaultPaymentMethod)
	}
	if params.ProrationBehavior != "" {
		p.ProrationBehavior = stripe.String(params.ProrationBehavior)
	}
	if params.CancelAtPeriodEnd != nil {
		p.CancelAtPeriodEnd = stripe.Bool(*params.CancelAtPeriodEnd)
	}
	if params.TrialEnd != nil {
		p.TrialEnd = stripe.Int64(*params.TrialEnd)
	}
	for k, v := range params.Metadata {
		p.AddMetadata(k, v)
	}
	s, err := sub.Update(subscriptionID, p)
	if err != nil {
		return nil, fmt.Errorf("update stripe subscription: %w", err)
	}
	return normalizeSubscription(s), nil
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	p := &stripe.SubscriptionCancelParams{}
	p.Context = ctx
	s, err := sub.Cancel(subscriptionID, p)
	if err != nil {
		return nil, fmt.Errorf("cancel stripe subscription: %w", err)
	}
	return normalizeSubscription(s), nil
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	p := &stripe.SubscriptionParams{}
	p.Context = ctx
	s, err := sub.Get(subscriptionID, p)
	if err != nil {
		return nil, fmt.Errorf("retrieve stripe subscription: %w", err)
	}
	return normalizeSubscription(s), nil
}

func (g *StripeGateway) AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*PaymentMethod, error) {
	p := &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(customerID),
	}
	p.Context = ctx
	pm, err := paymentmethod.Attach(paymentMethodID, p)
	if err != nil {
		return nil, fmt.Errorf("attach payment method: %w", err)
	}
	return normalizePaymentMethod(pm), nil
}

func (g *StripeGateway) DetachPaymentMethod(ctx context.Context, paymentMethodID string) error {
	p := &stripe.PaymentMethodDetachParams{}
	p.Context = ctx
	if _, err := paymentmethod.Detach(paymentMethodID, p); err != nil {
		return fmt.Errorf("detach payment method: %w", err)
	}
	return nil
}

func (g *StripeGateway) ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error) {
	p := &stripe.PaymentMethodListParams{
		Customer: stripe.String(customerID),
		Type:     stripe.String("card"),
	}
	p.Context = ctx
	var out []PaymentMethod
	iter := paymentmethod.List(p)
	for iter.Next() {
		out = append(out, *normalizePaymentMethod(iter.PaymentMethod()))
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("list payment methods: %w", err)
	}
	return out, nil
}

func (g *StripeGateway) CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error) {
	p := &stripe.SetupIntentParams{
		Customer:           stripe.String(customerID),
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		Usage:              stripe.String("off_session"),
	}
	p.Context = ctx
	p.SetIdempotencyKey(uuid.NewString())
	si, err := setupintent.New(p)
	if err != nil {
		return nil, fmt.Errorf("create setup intent: %w", err)
	}
	return &SetupIntent{ID: si.ID, ClientSecret: si.ClientSecret}, nil
}

func normalizeProduct(p *stripe.Product) *Product {
	return &Product{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Active:      p.Active,
		Metadata:    p.Metadata,
	}
}

func normalizePrice(p *stripe.Price) *Price {
	out := &Price{
		ID:         p.ID,
		Nickname:   p.Nickname,
		UnitAmount: p.UnitAmount,
		Currency:   string(p.Currency),
		Type:       string(p.Type),
		Active:     p.Active,
		Metadata:   p.Metadata,
	}
	if p.Product != nil {
		out.ProductID = p.Product.ID
	}
	if p.Recurring != nil {
		out.Interval = string(p.Recurring.Interval)
		out.IntervalCount = p.Recurring.IntervalCount
		out.TrialPeriodDays = p.Recurring.TrialPeriodDays
	}
	return out
}

// normalizeSubscription flattens the single-item subscription shape the
// billing core works with. Period bounds live on the subscription item in
// current Stripe API versions.
func normalizeSubscription(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:                s.ID,
		Status:            string(s.Status),
		CancelAtPeriodEnd: s.CancelAtPeriodEnd,
		TrialStart:        unixPtr(s.TrialStart),
		TrialEnd:          unixPtr(s.TrialEnd),
		CanceledAt:        unixPtr(s.CanceledAt),
		Quantity:          1,
		Metadata:          s.Metadata,
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		out.ItemID = item.ID
		if item.Quantity > 0 {
			out.Quantity = item.Quantity
		}
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		out.CurrentPeriodStart = time.Unix(item.CurrentPeriodStart, 0)
		out.CurrentPeriodEnd = time.Unix(item.CurrentPeriodEnd, 0)
	}
	return out
}

func normalizePaymentMethod(pm *stripe.PaymentMethod) *PaymentMethod {
	out := &PaymentMethod{ID: pm.ID}
	if pm.Customer != nil {
		out.CustomerID = pm.Customer.ID
	}
	if pm.Card != nil {
		out.Brand = string(pm.Card.Brand)
		out.LastFour = pm.Card.Last4
		out.ExpMonth = pm.Card.ExpMonth
		out.ExpYear = pm.Card.ExpYear
	}
	return out
}

func unixPtr(ts int64) *time.Time {
	if ts == 0 {
		return nil
	}
	t := time.Unix(ts, 0)
	return &t
}
