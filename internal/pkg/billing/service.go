package billing

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"gorm.io/gorm"

	"github.com/FelixWeidner/OpsForge/app/models"
	"github.com/FelixWeidner/OpsForge/internal/pkg/apperror"
)

// SubscriptionFetcher loads the authoritative subscription state from the
// provider's API. Used when an event only references a subscription (a
// completed checkout session) instead of carrying its full state.
// customerRef is passed along because some providers namespace subscriptions
// under the customer resource.
type SubscriptionFetcher interface {
	FetchSubscription(ctx context.Context, subscriptionID, customerRef string) (*ProviderObjectUpdate, error)
}

// Service is the reconciler: it consumes normalized provider updates,
// derives the entitlement transition and applies it through the repository's
// atomic operations.
type Service struct {
	repo     Repository
	fetchers map[string]SubscriptionFetcher
}

// NewService creates a billing service from an injected repository.
func NewService(repo Repository) *Service {
	return &Service{repo: repo, fetchers: make(map[string]SubscriptionFetcher)}
}

// NewServiceFromDB creates a billing service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(NewRepository(db))
}

// RegisterFetcher wires the authoritative-fetch client for a provider.
func (s *Service) RegisterFetcher(provider string, f SubscriptionFetcher) {
	s.fetchers[strings.ToLower(strings.TrimSpace(provider))] = f
}

// RecordWebhookEvent persists webhook payloads idempotently, before any side
// effect runs. Events without a usable object id are keyed by payload hash
// so redeliveries of the same body still deduplicate.
func (s *Service) RecordWebhookEvent(ctx context.Context, in WebhookEventInput) (bool, *models.WebhookEvent, error) {
	_ = ctx
	provider := strings.ToLower(strings.TrimSpace(in.Provider))
	if provider == "" {
		return false, nil, errors.New("provider is required")
	}
	objectID := strings.TrimSpace(in.ObjectID)
	if objectID == "" {
		sum := sha256.Sum256([]byte(in.PayloadJSON))
		objectID = "hash:" + hex.EncodeToString(sum[:])
	}
	receivedAt := in.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	event := &models.WebhookEvent{
		Provider:       provider,
		ObjectID:       objectID,
		EventType:      strings.TrimSpace(in.EventType),
		PayloadJSON:    in.PayloadJSON,
		SignatureValid: in.SignatureValid,
		ReceivedAt:     receivedAt.Truncate(time.Second),
	}
	return s.repo.CreateWebhookEventIfNotExists(event)
}

// MarkObjectProcessed marks all log rows for an object processed and stores
// an optional error.
func (s *Service) MarkObjectProcessed(ctx context.Context, provider, objectID string, processingErr error) error {
	_ = ctx
	if strings.TrimSpace(objectID) == "" {
		return errors.New("object_id is required")
	}
	errMsg := ""
	if processingErr != nil {
		errMsg = processingErr.Error()
	}
	return s.repo.MarkObjectProcessed(strings.ToLower(strings.TrimSpace(provider)), objectID, errMsg)
}

// IsObjectProcessed reports whether the object's state has already been
// applied successfully. Used by webhook handlers to short-circuit
// redeliveries; a logged-but-unapplied delivery does not count.
func (s *Service) IsObjectProcessed(ctx context.Context, provider, objectID string) (bool, error) {
	_ = ctx
	return s.repo.IsObjectProcessed(strings.ToLower(strings.TrimSpace(provider)), objectID)
}

// ApplyUpdate runs a normalized provider update through the entitlement
// state machine. Reapplying an already-applied update is a safe no-op by
// construction: every write is an event-time-guarded upsert.
func (s *Service) ApplyUpdate(ctx context.Context, upd ProviderObjectUpdate) error {
	upd.Provider = strings.ToLower(strings.TrimSpace(upd.Provider))
	if upd.Provider == "" || strings.TrimSpace(upd.ObjectID) == "" {
		return apperror.New(apperror.KindValidation, "provider and object id are required")
	}
	if upd.EventTime.IsZero() {
		upd.EventTime = time.Now()
	}

	switch upd.Kind {
	case ObjectKindPayment:
		return s.applyPayment(ctx, upd)
	case ObjectKindSubscription:
		return s.applySubscription(ctx, upd)
	default:
		// Forward compatibility: unknown object kinds are logged and ignored.
		log.Infof("[Billing] ignoring update of unknown kind %q for %s/%s", upd.Kind, upd.Provider, upd.ObjectID)
		return nil
	}
}

func (s *Service) applyPayment(ctx context.Context, upd ProviderObjectUpdate) error {
	payment, err := s.repo.GetPaymentByProviderID(upd.Provider, upd.ObjectID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// Payment not initiated locally. Keep it as history if the customer
		// can be attributed, otherwise drop: we never fabricate a user.
		userID, ok := s.resolveUser(upd)
		if !ok {
			log.Warnf("[Billing] dropping payment %s/%s: no linked user for customer %q", upd.Provider, upd.ObjectID, upd.CustomerRef)
			return nil
		}
		payment = &models.Payment{
			Provider:           upd.Provider,
			ProviderPaymentID:  upd.ObjectID,
			UserID:             userID,
			ProviderCustomerID: upd.CustomerRef,
			AmountCents:        upd.AmountCents,
			Currency:           upd.Currency,
			Status:             models.PaymentStatusOpen,
			SubscriptionRef:    upd.SubscriptionRef,
		}
		if err := s.repo.CreatePayment(payment); err != nil {
			return apperror.Wrap(apperror.KindDependency, "payment create failed", err)
		}
	} else if err != nil {
		return apperror.Wrap(apperror.KindDependency, "payment lookup failed", err)
	}

	applied, payment, err := s.repo.ApplyPaymentStatus(upd.Provider, upd.ObjectID, upd.Status, upd.EventTime)
	if err != nil {
		return apperror.Wrap(apperror.KindDependency, "payment status write failed", err)
	}
	if !applied {
		log.Debugf("[Billing] payment %s/%s already in status %q", upd.Provider, upd.ObjectID, payment.Status)
	}

	switch upd.Status {
	case models.PaymentStatusPaid:
		// A paid charge attached to a subscription means renewal or first
		// charge: fetch authoritative subscription state and apply it. An
		// unattached payment is history only, no entitlement change.
		ref := strings.TrimSpace(upd.SubscriptionRef)
		if ref == "" {
			ref = strings.TrimSpace(payment.SubscriptionRef)
		}
		if ref == "" {
			return nil
		}
		customerRef := strings.TrimSpace(upd.CustomerRef)
		if customerRef == "" {
			customerRef = strings.TrimSpace(payment.ProviderCustomerID)
		}
		return s.applySubscriptionRef(ctx, upd.Provider, ref, customerRef)
	case models.PaymentStatusFailed:
		// Direct, immediate access restriction, independent of the
		// subscription-level state machine.
		change := EntitlementChange{KeepPlan: true, Status: models.EntitlementStatusSuspended, EventTime: upd.EventTime}
		if _, err := s.repo.ApplyEntitlement(payment.UserID, change); err != nil {
			return apperror.Wrap(apperror.KindDependency, "entitlement suspension failed", err)
		}
		return nil
	default:
		return nil
	}
}

// applySubscriptionRef fetches the full subscription object from the
// provider and reapplies it as a subscription update.
func (s *Service) applySubscriptionRef(ctx context.Context, provider, subscriptionID, customerRef string) error {
	fetcher, ok := s.fetchers[provider]
	if !ok {
		log.Warnf("[Billing] no fetcher registered for provider %q, skipping subscription %s", provider, subscriptionID)
		return nil
	}
	upd, err := fetcher.FetchSubscription(ctx, subscriptionID, customerRef)
	if err != nil {
		return apperror.Wrap(apperror.KindDependency, "subscription fetch failed", err)
	}
	return s.applySubscription(ctx, *upd)
}

// ResyncSubscription refetches a subscription from the provider and applies
// it. Used for id-only webhook notifications that reference a subscription.
func (s *Service) ResyncSubscription(ctx context.Context, provider, subscriptionID string) error {
	provider = strings.ToLower(strings.TrimSpace(provider))
	customerRef := ""
	if sub, err := s.repo.GetSubscriptionByProviderID(provider, subscriptionID); err == nil {
		customerRef = sub.ProviderCustomerID
	}
	return s.applySubscriptionRef(ctx, provider, subscriptionID, customerRef)
}

func (s *Service) applySubscription(ctx context.Context, upd ProviderObjectUpdate) error {
	userID, ok := s.resolveSubscriptionUser(upd)
	if !ok {
		log.Warnf("[Billing] dropping subscription %s/%s: no linked user for customer %q", upd.Provider, upd.ObjectID, upd.CustomerRef)
		return nil
	}

	interval := normalizeInterval(upd.Interval)
	internalPlan, err := s.ResolveMappedPlan(ctx, upd.Provider, upd.PlanRef, interval)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return apperror.Wrap(apperror.KindDependency, "plan mapping lookup failed", err)
	}

	status := strings.ToLower(strings.TrimSpace(upd.Status))
	sub := &models.Subscription{
		UserID:                 userID,
		Provider:               upd.Provider,
		ProviderSubscriptionID: strings.TrimSpace(upd.ObjectID),
		ProviderCustomerID:     strings.TrimSpace(upd.CustomerRef),
		PlanName:               strings.TrimSpace(upd.PlanName),
		ProviderPlanRef:        strings.TrimSpace(upd.PlanRef),
		InternalPlan:           internalPlan,
		AmountCents:            upd.AmountCents,
		Currency:               upd.Currency,
		BillingInterval:        interval,
		Status:                 subscriptionRecordStatus(status),
		NextPaymentDate:        upd.NextPaymentDate,
		EventTime:              upd.EventTime,
		RawPayloadJSON:         upd.RawPayloadJSON,
	}

	var change EntitlementChange
	change.EventTime = upd.EventTime
	switch status {
	case StatusActive, "trialing":
		change.Plan = internalPlan
		change.Status = models.EntitlementStatusActive
		start := upd.EventTime
		sub.StartDate = &start
	case StatusPastDue, StatusCanceled:
		// Tier is retained for a grace period until a deleted event.
		change.KeepPlan = true
		change.Status = models.EntitlementStatusInactive
	case StatusUnpaid:
		change.KeepPlan = true
		change.Status = models.EntitlementStatusSuspended
	case StatusDeleted:
		// Paid tier is gone; the user keeps basic access.
		change.Plan = string(defaultPlan)
		change.Status = models.EntitlementStatusActive
		canceled := upd.EventTime
		sub.CanceledAt = &canceled
	case StatusPending:
		// No entitlement transition until the subscription activates.
	default:
		log.Infof("[Billing] ignoring subscription %s/%s with unknown status %q", upd.Provider, upd.ObjectID, status)
		return nil
	}

	applied, err := s.repo.ApplySubscription(sub, change)
	if err != nil {
		return apperror.Wrap(apperror.KindDependency, "subscription apply failed", err)
	}
	if !applied {
		log.Debugf("[Billing] stale subscription update for %s/%s (event_time %s)", upd.Provider, upd.ObjectID, upd.EventTime)
	}
	return nil
}

// resolveSubscriptionUser attributes a subscription update to a local user,
// preferring the stored subscription row over the customer link.
func (s *Service) resolveSubscriptionUser(upd ProviderObjectUpdate) (uint, bool) {
	if sub, err := s.repo.GetSubscriptionByProviderID(upd.Provider, upd.ObjectID); err == nil {
		return sub.UserID, true
	}
	return s.resolveUser(upd)
}

func (s *Service) resolveUser(upd ProviderObjectUpdate) (uint, bool) {
	ref := strings.TrimSpace(upd.CustomerRef)
	if ref == "" {
		return 0, false
	}
	link, err := s.repo.GetCustomerByProviderID(upd.Provider, ref)
	if err != nil {
		return 0, false
	}
	return link.UserID, true
}

// ResolveMappedPlan resolves provider plan references to an internal plan.
func (s *Service) ResolveMappedPlan(ctx context.Context, provider, providerPlanRef, interval string) (string, error) {
	_ = ctx
	p := strings.ToLower(strings.TrimSpace(provider))
	ref := strings.TrimSpace(providerPlanRef)
	i := normalizeInterval(interval)
	if p == "" || ref == "" {
		return string(defaultPlan), gorm.ErrRecordNotFound
	}

	// Prefer exact interval match.
	m, err := s.repo.FindActivePlanMapping(p, ref, i)
	if err == nil {
		return normalizePlan(m.InternalPlan), nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}

	// Fallback for mappings that intentionally use "unknown".
	m, err = s.repo.FindActivePlanMapping(p, ref, "unknown")
	if err == nil {
		return normalizePlan(m.InternalPlan), nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return string(defaultPlan), gorm.ErrRecordNotFound
	}
	return "", err
}

// ReconcileEntitlement recomputes the effective entitlement for a user from
// all stored subscriptions and writes it. Used by the resync endpoint and
// safe to call at any time: provider state is the source of truth.
func (s *Service) ReconcileEntitlement(ctx context.Context, userID uint) (string, string, error) {
	_ = ctx
	if userID == 0 {
		return "", "", errors.New("user_id is required")
	}

	subs, err := s.repo.ListSubscriptionsByUser(userID)
	if err != nil {
		return "", "", err
	}

	best := string(defaultPlan)
	sawActive := false
	sawSuspended := false
	for _, sub := range subs {
		switch sub.Status {
		case models.SubscriptionStatusActive:
			sawActive = true
		case models.SubscriptionStatusSuspended:
			// Tier retained through the grace period, but not usable.
			sawSuspended = true
		default:
			continue
		}
		candidate := normalizePlan(sub.InternalPlan)
		if planRank(candidate) > planRank(best) {
			best = candidate
		}
	}

	status := models.EntitlementStatusActive
	if !sawActive {
		if sawSuspended {
			// Same transition a hard payment failure produces: tier kept,
			// access blocked until the provider reports recovery.
			status = models.EntitlementStatusSuspended
		} else {
			// Only canceled or no subscriptions: basic access on free.
			best = string(defaultPlan)
		}
	}

	change := EntitlementChange{Plan: best, Status: status, EventTime: time.Now()}
	if _, err := s.repo.ApplyEntitlement(userID, change); err != nil {
		return "", "", err
	}
	return best, status, nil
}

// GetEntitlement returns the stored entitlement, defaulting to an active
// free plan for users who never checked out.
func (s *Service) GetEntitlement(ctx context.Context, userID uint) (*models.Entitlement, error) {
	_ = ctx
	ent, err := s.repo.GetEntitlement(userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return &models.Entitlement{UserID: userID, Plan: string(defaultPlan), Status: models.EntitlementStatusActive}, nil
	}
	return ent, err
}

// subscriptionRecordStatus maps a normalized provider status onto the
// narrower subscription record enum.
func subscriptionRecordStatus(status string) string {
	switch status {
	case StatusActive, "trialing":
		return models.SubscriptionStatusActive
	case StatusPending:
		return models.SubscriptionStatusPending
	case StatusPastDue, StatusUnpaid:
		return models.SubscriptionStatusSuspended
	case StatusCanceled, StatusDeleted:
		return models.SubscriptionStatusCanceled
	default:
		return models.SubscriptionStatusPending
	}
}
