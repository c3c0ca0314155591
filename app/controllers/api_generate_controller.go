package controllers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/log"

	"github.com/FelixWeidner/OpsForge/internal/pkg/apperror"
	"github.com/FelixWeidner/OpsForge/internal/pkg/entitlements"
	"github.com/FelixWeidner/OpsForge/internal/pkg/generate"
	"github.com/FelixWeidner/OpsForge/internal/pkg/jobqueue"
	"github.com/FelixWeidner/OpsForge/internal/pkg/ratelimit"
	"github.com/FelixWeidner/OpsForge/internal/pkg/usercontext"
)

// HandleGenerate is the admission-gated playbook generation endpoint. Auth
// and rate limiting happened in middleware; this handler validates input,
// runs the generator and fires off the usage record.
func HandleGenerate(c *fiber.Ctx) error {
	start := time.Now()
	userCtx := usercontext.GetUserContext(c)
	plan := entitlements.NormalizePlan(userCtx.Plan)

	var req generate.Request
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, apperror.New(apperror.KindValidation, "Invalid request body"))
	}
	if len(req.Text) > entitlements.MaxInputBytes(plan) {
		return errorResponse(c, apperror.New(apperror.KindValidation, "Input text exceeds the plan's size limit"))
	}
	if err := req.Validate(); err != nil {
		return errorResponse(c, apperror.Wrap(apperror.KindValidation, "Invalid generation request", err))
	}

	playbook, err := generate.Run(req)
	if err != nil {
		return errorResponse(c, apperror.Wrap(apperror.KindDependency, "generation failed", err))
	}

	latency := time.Since(start)
	enqueueUsageRecord(c, userCtx, fiber.StatusOK, latency)

	var decision *ratelimit.Decision
	if d, ok := c.Locals(usercontext.KeyRateLimit).(*ratelimit.Decision); ok {
		decision = d
	}
	quota := entitlements.QuotaFor(plan)

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data":    playbook,
		"usage":   usageSnapshot(decision),
		"limits": fiber.Map{
			"per_minute": quota.PerMinute,
			"per_hour":   quota.PerHour,
			"per_day":    quota.PerDay,
			"per_month":  quota.PerMonth,
		},
		"meta": fiber.Map{
			"plan":             string(plan),
			"response_time_ms": latency.Milliseconds(),
		},
	})
}

// enqueueUsageRecord hands the usage row to the job queue. Best-effort: a
// full queue or a Redis hiccup is logged and the response goes out anyway.
func enqueueUsageRecord(c *fiber.Ctx, userCtx usercontext.UserContext, status int, latency time.Duration) {
	payload := jobqueue.UsageRecordJobPayload{
		APIKeyID:   userCtx.APIKeyID,
		UserID:     userCtx.UserID,
		Endpoint:   c.Path(),
		StatusCode: status,
		LatencyMs:  latency.Milliseconds(),
		OriginIP:   c.IP(),
		OccurredAt: time.Now().Unix(),
	}
	if _, err := jobqueue.GetManager().GetQueue().EnqueueJob(jobqueue.JobTypeUsageRecord, payload.ToMap()); err != nil {
		log.Warnf("[Usage] failed to enqueue usage record for key %d: %v", userCtx.APIKeyID, err)
	}
}
