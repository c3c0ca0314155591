package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/FelixWeidner/OpsForge/internal/pkg/apperror"
	"github.com/FelixWeidner/OpsForge/internal/pkg/entitlements"
	"github.com/FelixWeidner/OpsForge/internal/pkg/ratelimit"
	"github.com/FelixWeidner/OpsForge/internal/pkg/usercontext"
)

// RateLimitMiddleware enforces the plan's per-window quotas for the
// authenticated API key. Must run after APIKeyAuthMiddleware. The decision
// is stashed in Locals so the handler can echo usage counters in its
// response envelope.
func RateLimitMiddleware(limiter ratelimit.Limiter) fiber.Handler {
	return func(c *fiber.Ctx) error {
		userCtx := usercontext.GetUserContext(c)
		if userCtx.APIKeyID == 0 {
			return errorJSON(c, apperror.KindAuthentication, "Missing API key")
		}

		quota := entitlements.QuotaFor(entitlements.NormalizePlan(userCtx.Plan))
		limits := ratelimit.Limits{
			PerMinute: int64(quota.PerMinute),
			PerHour:   int64(quota.PerHour),
			PerDay:    int64(quota.PerDay),
			PerMonth:  int64(quota.PerMonth),
		}

		key := fmt.Sprintf("key:%d", userCtx.APIKeyID)
		decision, err := limiter.Allow(c.Context(), key, limits)
		if err != nil {
			// Fail open: the limiter backend being down must not take the
			// API down with it.
			log.Errorf("[RateLimit] limiter unavailable for %s: %v", key, err)
			return c.Next()
		}

		c.Locals(usercontext.KeyRateLimit, decision)
		setRateLimitHeaders(c, decision)

		if !decision.Allowed {
			ex := decision.Exceeded
			retryAfter := ex.ResetAt.Unix() - time.Now().Unix()
			if retryAfter < 1 {
				retryAfter = 1
			}
			c.Set(fiber.HeaderRetryAfter, strconv.FormatInt(retryAfter, 10))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
				"success": false,
				"error":   string(apperror.KindRateLimit),
				"message": fmt.Sprintf("Rate limit exceeded for the %s window", ex.Window),
				"limit": fiber.Map{
					"window":   string(ex.Window),
					"limit":    ex.Limit,
					"current":  ex.Current,
					"reset_at": ex.ResetAt.Unix(),
				},
			})
		}
		return c.Next()
	}
}

// setRateLimitHeaders mirrors the tightest window in the conventional
// X-RateLimit-* headers: the exceeded window when rejected, the minute
// window otherwise.
func setRateLimitHeaders(c *fiber.Ctx, d *ratelimit.Decision) {
	var res *ratelimit.Result
	if d.Exceeded != nil {
		res = d.Exceeded
	} else if len(d.Results) > 0 {
		res = &d.Results[0]
	}
	if res == nil {
		return
	}
	c.Set("X-RateLimit-Limit", strconv.FormatInt(res.Limit, 10))
	c.Set("X-RateLimit-Remaining", strconv.FormatInt(res.Remaining, 10))
	c.Set("X-RateLimit-Reset", strconv.FormatInt(res.ResetAt.Unix(), 10))
}
