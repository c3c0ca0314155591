package router

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"github.com/FelixWeidner/OpsForge/app/controllers"
	"github.com/FelixWeidner/OpsForge/internal/pkg/cache"
)

type HttpRouter struct {
}

func (h HttpRouter) InstallRouter(app *fiber.App) {
	// Webhooks are unauthenticated by nature (Stripe signs, Mollie is
	// fetch-verified), so they get a coarse per-IP limiter backed by Redis
	// to blunt flooding.
	webhookLimiter := limiter.New(limiter.Config{
		Max:        240,
		Expiration: time.Minute,
		Storage:    cache.NewFiberStorage(),
	})

	hooks := app.Group("/webhooks", webhookLimiter)
	hooks.Post("/stripe", controllers.HandleStripeWebhook)
	hooks.Post("/mollie", controllers.HandleMollieWebhook)

	app.Get("/metrics", monitor.New(monitor.Config{Title: "OpsForge Metrics"}))
}

func NewHttpRouter() *HttpRouter {
	return &HttpRouter{}
}
