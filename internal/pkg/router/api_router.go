package router

import (
	"github.com/ManuelReschke/PayFox/app/controllers"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
)

type ApiRouter struct {
	deps *Deps
}

func NewApiRouter(deps *Deps) *ApiRouter {
	return &ApiRouter{deps: deps}
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	api := app.Group("/api", limiter.New())
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	v1 := api.Group("/v1")

	pc := controllers.NewProductController(h.deps.Catalog)
	v1.Post("/products", pc.HandleCreateProduct)
	v1.Get("/products", pc.HandleListProducts)
	v1.Post("/products/sync", pc.HandleSyncProducts)
	v1.Get("/products/:id", pc.HandleGetProduct)
	v1.Put("/products/:id", pc.HandleUpdateProduct)
	v1.Delete("/products/:id", pc.HandleArchiveProduct)
	v1.Post("/products/:id/prices", pc.HandleCreatePrice)
	v1.Get("/products/:id/prices", pc.HandleListPrices)
	v1.Put("/prices/:id", pc.HandleUpdatePrice)
	v1.Delete("/prices/:id", pc.HandleArchivePrice)

	sc := controllers.NewSubscriptionController(h.deps.Subscriptions)
	v1.Post("/subscriptions", sc.HandleCreateSubscription)
	v1.Post("/subscriptions/sync", sc.HandleSyncSubscription)
	v1.Get("/subscriptions/:id", sc.HandleGetSubscription)
	v1.Put("/subscriptions/:id", sc.HandleUpdateSubscription)
	v1.Delete("/subscriptions/:id", sc.HandleCancelSubscription)
	v1.Post("/subscriptions/:id/resume", sc.HandleResumeSubscription)
	v1.Post("/subscriptions/:id/change-plan", sc.HandleChangePlan)
	v1.Post("/subscriptions/:id/trial", sc.HandleUpdateTrial)
	v1.Get("/subscriptions/:id/payments", sc.HandleListPayments)

	cc := controllers.NewCustomerController(h.deps.Customers)
	v1.Post("/users/:id/customer", cc.HandleCreateCustomer)
	v1.Put("/users/:id/customer", cc.HandleUpdateCustomer)
	v1.Post("/users/:id/setup-intent", cc.HandleCreateSetupIntent)
	v1.Get("/users/:id/subscriptions", sc.HandleListUserSubscriptions)
	v1.Get("/users/:id/payment-methods", cc.HandleListPaymentMethods)
	v1.Post("/users/:id/payment-methods", cc.HandleStorePaymentMethod)
	v1.Post("/users/:id/payment-methods/sync", cc.HandleSyncPaymentMethods)
	v1.Delete("/users/:id/payment-methods/:pm", cc.HandleRemovePaymentMethod)
	v1.Post("/users/:id/payment-methods/:pm/default", cc.HandleSetDefaultPaymentMethod)

	wc := controllers.NewWebhookController(
		h.deps.Config.StripeWebhookSecret,
		h.deps.Config.WebhookTolerance,
		h.deps.Dispatcher,
		h.deps.Repo,
	)
	v1.Get("/webhooks/events", wc.HandleListWebhookEvents)
}
