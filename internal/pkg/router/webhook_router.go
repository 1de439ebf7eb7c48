package router

import (
	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/gofiber/fiber/v2"
)

// WebhookRouter installs the Stripe webhook receiver. The route sits outside
// the API group: no rate limiter, Stripe retries aggressively and a 429
// would surface as delivery failures in their dashboard.
type WebhookRouter struct {
	deps *Deps
}

func NewWebhookRouter(deps *Deps) *WebhookRouter {
	return &WebhookRouter{deps: deps}
}

func (h WebhookRouter) InstallRouter(app *fiber.App) {
	wc := controllers.NewWebhookController(
		h.deps.Config.StripeWebhookSecret,
		h.deps.Config.WebhookTolerance,
		h.deps.Dispatcher,
		h.deps.Repo,
	)

	app.Post(h.deps.Config.StripeWebhookURL, wc.HandleStripeWebhook)
}
