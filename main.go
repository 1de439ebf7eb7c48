package main

import (
	"fmt"
	"log"

	"github.com/ManuelReschke/PayFox/internal/pkg/billing"
	"github.com/ManuelReschke/PayFox/internal/pkg/config"
	"github.com/ManuelReschke/PayFox/internal/pkg/database"
	"github.com/ManuelReschke/PayFox/internal/pkg/env"
	"github.com/ManuelReschke/PayFox/internal/pkg/payments"
	"github.com/ManuelReschke/PayFox/internal/pkg/router"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/monitor"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	env.SetupEnvFile()
	cfg := config.Load()

	app := NewApplication(cfg)
	err := app.Listen(fmt.Sprintf("%s:%s", cfg.AppHost, cfg.AppPort))
	log.Fatal(err)
}

func NewApplication(cfg *config.Config) *fiber.App {
	database.SetupDatabase(cfg)

	gateway := payments.NewStripeGateway(cfg.StripeSecret)
	repo := billing.NewRepository(database.GetDB())

	subscriptions := billing.NewSubscriptionService(repo, gateway, int64(cfg.DefaultTrialDays))
	customers := billing.NewCustomerService(repo, gateway)
	catalog := billing.NewCatalogService(repo, gateway, cfg.DefaultCurrency)

	dispatcher := billing.NewDispatcher(repo)
	billing.NewHandlers(repo, subscriptions).RegisterAll(dispatcher)

	app := fiber.New(fiber.Config{
		AppName: "PayFox",
	})
	app.Use(recover.New(), logger.New())
	app.Get("/metrics", monitor.New())

	// ROUTER
	router.InstallRouter(app, &router.Deps{
		Config:        cfg,
		Repo:          repo,
		Dispatcher:    dispatcher,
		Subscriptions: subscriptions,
		Customers:     customers,
		Catalog:       catalog,
	})

	return app
}
