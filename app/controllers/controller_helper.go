package controllers

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/FelixWeidner/OpsForge/app/models"
	"github.com/FelixWeidner/OpsForge/internal/pkg/apperror"
	"github.com/FelixWeidner/OpsForge/internal/pkg/billing"
	"github.com/FelixWeidner/OpsForge/internal/pkg/database"
	"github.com/FelixWeidner/OpsForge/internal/pkg/ratelimit"
)

// newBillingService builds the reconciler with both provider fetchers wired.
func newBillingService() *billing.Service {
	svc := billing.NewServiceFromDB(database.GetDB())
	svc.RegisterFetcher(models.BillingProviderStripe, billing.NewStripeClientFromEnv())
	svc.RegisterFetcher(models.BillingProviderMollie, billing.NewMollieClientFromEnv())
	return svc
}

// errorResponse maps a classified error onto the uniform JSON error envelope.
// Unclassified errors surface as a retryable 500.
func errorResponse(c *fiber.Ctx, err error) error {
	kind := apperror.KindOf(err)
	message := "Internal error"
	var ae *apperror.Error
	if errors.As(err, &ae) && kind != apperror.KindDependency {
		// Dependency failures keep their cause internal.
		message = ae.Message
	}
	return c.Status(apperror.HTTPStatus(err)).JSON(fiber.Map{
		"success": false,
		"error":   string(kind),
		"message": message,
	})
}

// usageSnapshot renders a rate-limit decision as the usage block of the
// response envelope.
func usageSnapshot(d *ratelimit.Decision) fiber.Map {
	out := fiber.Map{}
	if d == nil {
		return out
	}
	for _, res := range d.Results {
		out[string(res.Window)] = fiber.Map{
			"limit":     res.Limit,
			"used":      res.Current,
			"remaining": res.Remaining,
			"reset_at":  res.ResetAt.Unix(),
		}
	}
	return out
}

// formatTimePtr renders an optional timestamp as RFC3339 UTC, nil-safe.
func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}
