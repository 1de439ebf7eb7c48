package router

import (
	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/config"
)

// Deps bundles everything the route groups need. main builds it once; the
// routers hand the pieces to their controllers.
type Deps struct {
	Config        *config.Config
	Repo          billing.Repository
	Dispatcher    *billing.Dispatcher
	Subscriptions *billing.SubscriptionService
	Customers     *billing.CustomerService
	Catalog       *billing.CatalogService
}
