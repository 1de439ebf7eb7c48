// Package payments defines the narrow surface of the remote payment gateway
// the billing core depends on, plus the Stripe-backed implementation. The
// rest of the codebase only ever sees these types, so tests can substitute a
// fake gateway and the Stripe SDK stays contained in one file.
package payments

import (
	"context"
	"time"
)

// Customer is the remote customer record.
type Customer struct {
	ID    string
	Name  string
	Email string
}

// Product is the remote product record.
type Product struct {
	ID          string
	Name        string
	Description string
	Active      bool
	Metadata    map[string]string
}

// Price is the remote price record. UnitAmount is in minor currency units.
type Price struct {
	ID              string
	ProductID       string
	Nickname        string
	UnitAmount      int64
	Currency        string
	Type            string // one_time | recurring
	Interval        string // day | week | month | year, recurring only
	IntervalCount   int64
	TrialPeriodDays int64 // 0 = no default trial
	Active          bool
	Metadata        map[string]string
}

// Subscription is the remote subscription record, flattened to the fields the
// local mirror tracks. ItemID/PriceID describe the single subscription item.
type Subscription struct {
	ID                 string
	CustomerID         string
	Status             string
	ItemID             string
	PriceID            string
	Quantity           int64
	CurrentPeriodStart time.Time
	CurrentPeriodEnd   time.Time
	TrialStart         *time.Time
	TrialEnd           *time.Time
	CanceledAt         *time.Time
	CancelAtPeriodEnd  bool
	Metadata           map[string]string
}

// PaymentMethod is a remote card payment method.
type PaymentMethod struct {
	ID         string
	CustomerID string
	Brand      string
	LastFour   string
	ExpMonth   int64
	ExpYear    int64
}

// SetupIntent is the handle the UI needs to collect a payment method.
type SetupIntent struct {
	ID           string
	ClientSecret string
}

type CustomerParams struct {
	Name     string
	Email    string
	Metadata map[string]string
}

type ProductParams struct {
	Name        string
	Description string
	Active      *bool
	Metadata    map[string]string
}

type PriceParams struct {
	ProductID       string
	Nickname        string
	UnitAmount      int64
	Currency        string
	Recurring       bool
	Interval        string
	IntervalCount   int64
	TrialPeriodDays int64
	Active          *bool
	Metadata        map[string]string
}

// PriceUpdateParams carries the only price fields Stripe allows mutating.
type PriceUpdateParams struct {
	Nickname *string
	Active   *bool
	Metadata map[string]string
}

type SubscriptionCreateParams struct {
	CustomerID           string
	PriceID              string
	Quantity             int64
	TrialPeriodDays      int64 // 0 = no trial override
	DefaultPaymentMethod string
	Metadata             map[string]string
}

// SubscriptionUpdateParams is a partial update; nil/zero fields are omitted
// from the remote call.
type SubscriptionUpdateParams struct {
	ItemID               string
	PriceID              string
	Quantity             *int64
	Metadata             map[string]string
	DefaultPaymentMethod string
	ProrationBehavior    string
	CancelAtPeriodEnd    *bool
	TrialEnd             *int64 // unix seconds
}

// Gateway is the synchronous request/response surface of the remote payment
// service. Every call is a blocking network round-trip; implementations must
// honor ctx cancellation where the underlying transport allows it.
type Gateway interface {
	CreateCustomer(ctx context.Context, params CustomerParams) (*Customer, error)
	UpdateCustomer(ctx context.Context, customerID string, params CustomerParams) (*Customer, error)
	SetDefaultPaymentMethod(ctx context.Context, customerID, paymentMethodID string) error

	CreateProduct(ctx context.Context, params ProductParams) (*Product, error)
	UpdateProduct(ctx context.Context, productID string, params ProductParams) (*Product, error)
	ListProducts(ctx context.Context, limit int64) ([]Product, error)

	CreatePrice(ctx context.Context, params PriceParams) (*Price, error)
	UpdatePrice(ctx context.Context, priceID string, params PriceUpdateParams) (*Price, error)
	ListPrices(ctx context.Context, productID string) ([]Price, error)

	CreateSubscription(ctx context.Context, params SubscriptionCreateParams) (*Subscription, error)
	UpdateSubscription(ctx context.Context, subscriptionID string, params SubscriptionUpdateParams) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)

	AttachPaymentMethod(ctx context.Context, customerID, paymentMethodID string) (*PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, paymentMethodID string) error
	ListPaymentMethods(ctx context.Context, customerID string) ([]PaymentMethod, error)
	CreateSetupIntent(ctx context.Context, customerID string) (*SetupIntent, error)
}
