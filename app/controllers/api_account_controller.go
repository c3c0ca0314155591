package controllers

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/FelixWeidner/OpsForge/app/models"
	"github.com/FelixWeidner/OpsForge/app/repository"
	"github.com/FelixWeidner/OpsForge/internal/pkg/apperror"
	"github.com/FelixWeidner/OpsForge/internal/pkg/entitlements"
	"github.com/FelixWeidner/OpsForge/internal/pkg/usercontext"
)

// HandleGetAccount returns an account snapshot for the authenticated key:
// plan, entitlement status, keys and recent usage.
func HandleGetAccount(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return errorResponse(c, apperror.New(apperror.KindAuthentication, "Missing API key"))
	}

	repos := repository.GetGlobalFactory()
	plan := entitlements.NormalizePlan(userCtx.Plan)
	quota := entitlements.QuotaFor(plan)

	svc := newBillingService()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ent, err := svc.GetEntitlement(ctx, userCtx.UserID)
	if err != nil {
		return errorResponse(c, apperror.Wrap(apperror.KindDependency, "entitlement lookup failed", err))
	}

	keys, err := repos.GetAPIKeyRepository().ListByUser(userCtx.UserID)
	if err != nil {
		return errorResponse(c, apperror.Wrap(apperror.KindDependency, "key listing failed", err))
	}
	keyViews := make([]fiber.Map, 0, len(keys))
	for _, k := range keys {
		keyViews = append(keyViews, fiber.Map{
			"id":           k.ID,
			"name":         k.Name,
			"key_prefix":   k.KeyPrefix,
			"status":       k.Status,
			"last_used_at": formatTimePtr(k.LastUsedAt),
		})
	}

	requests30d, err := repos.GetUsageRepository().CountByKeySince(userCtx.APIKeyID, 30)
	if err != nil {
		log.Warnf("[Account] usage count failed for key %d: %v", userCtx.APIKeyID, err)
		requests30d = 0
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"user_id":  userCtx.UserID,
			"username": userCtx.Username,
			"entitlement": fiber.Map{
				"plan":   ent.Plan,
				"status": ent.Status,
			},
			"quota": fiber.Map{
				"per_minute": quota.PerMinute,
				"per_hour":   quota.PerHour,
				"per_day":    quota.PerDay,
				"per_month":  quota.PerMonth,
			},
			"max_input_bytes": entitlements.MaxInputBytes(plan),
			"keys":            keyViews,
			"usage": fiber.Map{
				"requests_30d": requests30d,
			},
		},
	})
}

type issueKeyRequest struct {
	Name string `json:"name"`
}

// HandleIssueAPIKey creates a new API key for the authenticated user. The
// raw secret appears in this response and is never retrievable again.
func HandleIssueAPIKey(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return errorResponse(c, apperror.New(apperror.KindAuthentication, "Missing API key"))
	}

	var req issueKeyRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, apperror.New(apperror.KindValidation, "Invalid request body"))
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "default"
	}

	key, rawSecret, err := models.IssueAPIKey(userCtx.UserID, name)
	if err != nil {
		return errorResponse(c, apperror.Wrap(apperror.KindDependency, "key generation failed", err))
	}
	if err := repository.GetGlobalFactory().GetAPIKeyRepository().Create(key); err != nil {
		return errorResponse(c, apperror.Wrap(apperror.KindDependency, "key persistence failed", err))
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"id":         key.ID,
			"name":       key.Name,
			"key_prefix": key.KeyPrefix,
			"api_key":    rawSecret,
		},
	})
}
