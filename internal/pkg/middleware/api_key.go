package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/FelixWeidner/OpsForge/app/models"
	"github.com/FelixWeidner/OpsForge/app/repository"
	"github.com/FelixWeidner/OpsForge/internal/pkg/apperror"
	"github.com/FelixWeidner/OpsForge/internal/pkg/usercontext"
)

// APIKeyAuthMiddleware authenticates requests carrying a user API key header.
// Checks run in precedence order: credential presence, credential validity,
// account standing, key standing. Account suspension beats key validity, so
// a suspended user with a perfectly good key gets a 403, not a 401.
func APIKeyAuthMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		apiKey := extractAPIKeyFromHeader(c)
		if apiKey == "" {
			return errorJSON(c, apperror.KindAuthentication, "Missing API key")
		}

		hash := models.HashAPIKey(apiKey)
		repo := repository.GetGlobalFactory().GetAPIKeyRepository()
		key, user, entitlement, err := repo.GetByHash(hash)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errorJSON(c, apperror.KindAuthentication, "Invalid API key")
			}
			log.Errorf("[Auth] api key lookup failed: %v", err)
			return errorJSON(c, apperror.KindDependency, "API key verification failed")
		}

		if user.Status != models.STATUS_ACTIVE {
			return errorJSON(c, apperror.KindAuthorization, "Account is not active")
		}
		if key.Status != models.APIKeyStatusActive {
			return errorJSON(c, apperror.KindAuthentication, "API key revoked")
		}

		plan := "free"
		if entitlement != nil {
			if entitlement.IsSuspended() {
				return errorJSON(c, apperror.KindAuthorization, "Account access suspended")
			}
			if entitlement.Status == models.EntitlementStatusActive && entitlement.Plan != "" {
				plan = entitlement.Plan
			}
		}

		// Refresh last-used timestamp best-effort.
		if err := repo.TouchLastUsed(key.ID); err != nil {
			log.Warnf("[Auth] failed to update last_used_at for key %d: %v", key.ID, err)
		}

		userCtx := usercontext.UserContext{
			UserID:     user.ID,
			Username:   user.Name,
			IsLoggedIn: true,
			IsAdmin:    user.Role == models.ROLE_ADMIN,
			Plan:       plan,
			APIKeyID:   key.ID,
			KeyPrefix:  key.KeyPrefix,
		}
		c.Locals("USER_CONTEXT", userCtx)
		c.Locals(usercontext.KeyUserID, user.ID)
		c.Locals(usercontext.KeyUsername, user.Name)
		c.Locals(usercontext.KeyIsAdmin, userCtx.IsAdmin)
		c.Locals(usercontext.KeyAPIKeyID, key.ID)

		return c.Next()
	}
}

func extractAPIKeyFromHeader(c *fiber.Ctx) string {
	apiKey := strings.TrimSpace(c.Get("X-API-Key"))
	if apiKey != "" {
		return apiKey
	}
	auth := strings.TrimSpace(c.Get("Authorization"))
	if strings.HasPrefix(strings.ToLower(auth), "bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

// errorJSON writes the uniform error envelope for a failure kind.
func errorJSON(c *fiber.Ctx, kind apperror.Kind, message string) error {
	return c.Status(apperror.HTTPStatus(apperror.New(kind, message))).JSON(fiber.Map{
		"success": false,
		"error":   string(kind),
		"message": message,
	})
}
