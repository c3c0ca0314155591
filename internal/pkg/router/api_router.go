package router

import (
	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"

	"github.com/FelixWeidner/OpsForge/app/controllers"
	"github.com/FelixWeidner/OpsForge/internal/pkg/cache"
	"github.com/FelixWeidner/OpsForge/internal/pkg/middleware"
	"github.com/FelixWeidner/OpsForge/internal/pkg/ratelimit"
)

type ApiRouter struct {
}

func (h ApiRouter) InstallRouter(app *fiber.App) {
	app.Use(swagger.New(swagger.Config{
		BasePath: "/docs",
		FilePath: "./public/docs/v1/openapi.yml",
		Path:     "v1",
		Title:    "OpsForge API v1",
	}))

	api := app.Group("/api")
	api.Get("/", func(ctx *fiber.Ctx) error {
		return ctx.Status(fiber.StatusOK).JSON(fiber.Map{
			"message": "Hello from api",
		})
	})

	auth := middleware.APIKeyAuthMiddleware()
	planLimits := middleware.RateLimitMiddleware(ratelimit.NewRedisLimiter(cache.GetClient()))

	v1 := api.Group("/v1")
	v1.Post("/generate", auth, planLimits, controllers.HandleGenerate)
	v1.Get("/account", auth, controllers.HandleGetAccount)
	v1.Post("/account/keys", auth, controllers.HandleIssueAPIKey)
	v1.Post("/billing/checkout", auth, controllers.HandleCheckout)
	v1.Post("/billing/resync", auth, controllers.HandleBillingResync)

	// Unversioned alias next to the webhook surface, same handler.
	app.Post("/billing/checkout", auth, controllers.HandleCheckout)
}

func NewApiRouter() *ApiRouter {
	return &ApiRouter{}
}
