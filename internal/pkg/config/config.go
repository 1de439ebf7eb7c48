package config

import (
	"strconv"
	"time"

	"github.com/ManuelReschke/PayFox/internal/pkg/env"
)

// Config carries all process-wide settings. It is built once at startup and
// passed to every component that needs gateway credentials or the webhook
// secret; nothing reads the environment after Load returns.
type Config struct {
	AppHost string
	AppPort string

	DBUser     string
	DBPassword string
	DBHost     string
	DBPort     string
	DBName     string

	StripeKey           string
	StripeSecret        string
	StripeWebhookSecret string
	StripeWebhookURL    string
	WebhookTolerance    time.Duration
	DefaultCurrency     string
	DefaultTrialDays    int
}

func Load() *Config {
	return &Config{
		AppHost: env.GetEnv("APP_HOST", "localhost"),
		AppPort: env.GetEnv("APP_PORT", "4000"),

		DBUser:     env.GetEnv("DB_USER", ""),
		DBPassword: env.GetEnv("DB_PASSWORD", ""),
		DBHost:     env.GetEnv("DB_HOST", "127.0.0.1"),
		DBPort:     env.GetEnv("DB_PORT", "3306"),
		DBName:     env.GetEnv("DB_NAME", ""),

		StripeKey:           env.GetEnv("STRIPE_KEY", ""),
		StripeSecret:        env.GetEnv("STRIPE_SECRET", ""),
		StripeWebhookSecret: env.GetEnv("STRIPE_WEBHOOK_SECRET", ""),
		StripeWebhookURL:    env.GetEnv("STRIPE_WEBHOOK_ENDPOINT", "/webhooks/stripe"),
		WebhookTolerance:    time.Duration(intEnv("STRIPE_WEBHOOK_TOLERANCE", 300)) * time.Second,
		DefaultCurrency:     env.GetEnv("BILLING_CURRENCY", "usd"),
		DefaultTrialDays:    intEnv("BILLING_TRIAL_DAYS", 14),
	}
}

func intEnv(key string, def int) int {
	raw := env.GetEnv(key, "")
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return def
	}
	return n
}
