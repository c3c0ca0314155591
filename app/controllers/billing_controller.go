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
	"github.com/FelixWeidner/OpsForge/internal/pkg/billing"
	"github.com/FelixWeidner/OpsForge/internal/pkg/database"
	"github.com/FelixWeidner/OpsForge/internal/pkg/env"
	"github.com/FelixWeidner/OpsForge/internal/pkg/usercontext"
)

// HandleStripeWebhook ingests signed Stripe events. Status codes steer the
// sender's redelivery: 2xx acknowledges, 4xx drops, 5xx redelivers.
func HandleStripeWebhook(c *fiber.Ctx) error {
	rawBody := append([]byte(nil), c.BodyRaw()...)
	signature := strings.TrimSpace(c.Get("Stripe-Signature"))
	secret := env.GetEnv("STRIPE_WEBHOOK_SECRET", "")

	svc := newBillingService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Verification comes first: forged payloads are logged but never parsed.
	if !billing.VerifyStripeWebhookSignature(rawBody, signature, secret, time.Now()) {
		if _, _, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
			Provider:       models.BillingProviderStripe,
			PayloadJSON:    string(rawBody),
			SignatureValid: false,
		}); err != nil {
			log.Errorf("[Webhook] failed to log unsigned stripe delivery: %v", err)
		}
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "invalid_signature"})
	}

	upd, eventType, parseErr := billing.ParseStripeEvent(rawBody)
	if parseErr != nil {
		if _, _, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
			Provider:       models.BillingProviderStripe,
			EventType:      eventType,
			PayloadJSON:    string(rawBody),
			SignatureValid: true,
		}); err != nil {
			log.Errorf("[Webhook] failed to log malformed stripe delivery: %v", err)
		}
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
	}

	objectID := ""
	if upd != nil {
		objectID = upd.ObjectID
	}
	created, stored, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:       models.BillingProviderStripe,
		ObjectID:       objectID,
		EventType:      eventType,
		PayloadJSON:    string(rawBody),
		SignatureValid: true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		// Identical delivery already logged. Fast-ack only if the object's
		// state actually landed; a logged-but-unapplied delivery still goes
		// through the reconciler, whose upserts make reapplying a no-op.
		if processed, perr := svc.IsObjectProcessed(ctx, models.BillingProviderStripe, stored.ObjectID); perr == nil && processed {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
		}
	}
	if upd == nil {
		// Event type we do not consume.
		if err := svc.MarkObjectProcessed(ctx, models.BillingProviderStripe, stored.ObjectID, nil); err != nil {
			log.Errorf("[Webhook] failed to mark ignored stripe event processed: %v", err)
		}
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "ignored": true})
	}

	applyErr := svc.ApplyUpdate(ctx, *upd)
	if err := svc.MarkObjectProcessed(ctx, models.BillingProviderStripe, objectID, applyErr); err != nil {
		log.Errorf("[Webhook] failed to mark stripe object %s processed: %v", objectID, err)
	}
	if applyErr != nil {
		if apperror.Is(applyErr, apperror.KindValidation) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "invalid_payload"})
		}
		// 5xx so Stripe redelivers once the dependency recovers.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "apply_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// HandleMollieWebhook ingests Mollie's id-only notifications. The body is a
// form-encoded object id; all object state is fetched from the API, so a
// forged call can at worst trigger a refresh of true state.
func HandleMollieWebhook(c *fiber.Ctx) error {
	objectID := strings.TrimSpace(c.FormValue("id"))
	if objectID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": "missing_id"})
	}

	svc := newBillingService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	created, _, err := svc.RecordWebhookEvent(ctx, billing.WebhookEventInput{
		Provider:       models.BillingProviderMollie,
		ObjectID:       objectID,
		PayloadJSON:    "id=" + objectID,
		SignatureValid: true,
	})
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "webhook_persist_failed"})
	}
	if !created {
		if processed, perr := svc.IsObjectProcessed(ctx, models.BillingProviderMollie, objectID); perr == nil && processed {
			return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true, "duplicate": true})
		}
	}

	applyErr := applyMollieObject(ctx, svc, objectID)
	if err := svc.MarkObjectProcessed(ctx, models.BillingProviderMollie, objectID, applyErr); err != nil {
		log.Errorf("[Webhook] failed to mark mollie object %s processed: %v", objectID, err)
	}
	if applyErr != nil {
		// 5xx so Mollie redelivers; the fetch-then-apply is idempotent.
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": "apply_failed"})
	}
	return c.Status(fiber.StatusOK).JSON(fiber.Map{"ok": true})
}

// applyMollieObject resolves an object id to its authoritative state and
// runs it through the reconciler.
func applyMollieObject(ctx context.Context, svc *billing.Service, objectID string) error {
	if strings.HasPrefix(objectID, "sub_") {
		return svc.ResyncSubscription(ctx, models.BillingProviderMollie, objectID)
	}
	client := billing.NewMollieClientFromEnv()
	upd, err := client.GetPayment(ctx, objectID)
	if err != nil {
		return apperror.Wrap(apperror.KindDependency, "payment fetch failed", err)
	}
	return svc.ApplyUpdate(ctx, *upd)
}

type checkoutRequest struct {
	Provider string `json:"provider"`
	Plan     string `json:"plan"`
	Interval string `json:"interval"`
}

// HandleCheckout starts a hosted checkout for the authenticated user.
func HandleCheckout(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return errorResponse(c, apperror.New(apperror.KindAuthentication, "Missing API key"))
	}

	var req checkoutRequest
	if err := c.BodyParser(&req); err != nil {
		return errorResponse(c, apperror.New(apperror.KindValidation, "Invalid request body"))
	}

	db := database.GetDB()
	checkout := billing.NewCheckoutService(
		billing.NewRepository(db),
		repository.GetGlobalFactory().GetUserRepository(),
		billing.NewMollieClientFromEnv(),
		billing.NewStripeClientFromEnv(),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	result, err := checkout.StartCheckout(ctx, billing.CheckoutInput{
		UserID:   userCtx.UserID,
		Provider: req.Provider,
		Plan:     req.Plan,
		Interval: req.Interval,
	})
	if err != nil {
		return errorResponse(c, err)
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"provider":            result.Provider,
			"checkout_url":        result.CheckoutURL,
			"provider_payment_id": result.ProviderPaymentID,
			"payment_id":          result.PaymentID,
		},
	})
}

// HandleBillingResync recomputes the caller's entitlement from stored
// subscription state. Safe to call at any time.
func HandleBillingResync(c *fiber.Ctx) error {
	userCtx := usercontext.GetUserContext(c)
	if !userCtx.IsLoggedIn {
		return errorResponse(c, apperror.New(apperror.KindAuthentication, "Missing API key"))
	}

	svc := newBillingService()
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	plan, status, err := svc.ReconcileEntitlement(ctx, userCtx.UserID)
	if err != nil {
		return errorResponse(c, apperror.Wrap(apperror.KindDependency, "entitlement resync failed", err))
	}

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"plan":   plan,
			"status": status,
		},
	})
}
