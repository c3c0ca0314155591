package billing

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/FelixWeidner/OpsForge/app/models"
)

// EntitlementChange describes the entitlement write derived from a provider
// update. KeepPlan retains the stored tier (grace period on past_due and
// cancellation); otherwise Plan is written as given. EventTime orders
// concurrent changes: older changes lose.
type EntitlementChange struct {
	Plan      string
	KeepPlan  bool
	Status    string
	EventTime time.Time
}

// Repository provides the transactional store operations used by the
// reconciler. All mutating methods are atomic per object: either the whole
// transition lands or none of it does.
type Repository interface {
	FindActivePlanMapping(provider, providerPlanRef, interval string) (*models.PlanMapping, error)
	FindActivePlanMappingForPlan(provider, internalPlan, interval string) (*models.PlanMapping, error)

	CreateCustomerIfAbsent(link *models.BillingCustomer) (bool, *models.BillingCustomer, error)
	GetCustomerByProviderID(provider, providerCustomerID string) (*models.BillingCustomer, error)
	GetCustomerByUserID(userID uint, provider string) (*models.BillingCustomer, error)

	CreatePayment(p *models.Payment) error
	GetPaymentByProviderID(provider, providerPaymentID string) (*models.Payment, error)
	ApplyPaymentStatus(provider, providerPaymentID, status string, at time.Time) (bool, *models.Payment, error)

	ApplySubscription(sub *models.Subscription, change EntitlementChange) (bool, error)
	GetSubscriptionByProviderID(provider, providerSubscriptionID string) (*models.Subscription, error)
	ListSubscriptionsByUser(userID uint) ([]models.Subscription, error)

	ApplyEntitlement(userID uint, change EntitlementChange) (bool, error)
	GetEntitlement(userID uint) (*models.Entitlement, error)

	CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error)
	MarkObjectProcessed(provider, objectID, processingError string) error
	IsObjectProcessed(provider, objectID string) (bool, error)
}

type gormRepository struct {
	db *gorm.DB
}

// NewRepository creates a billing repository backed by GORM.
func NewRepository(db *gorm.DB) Repository {
	return &gormRepository{db: db}
}

func (r *gormRepository) FindActivePlanMapping(provider, providerPlanRef, interval string) (*models.PlanMapping, error) {
	var m models.PlanMapping
	err := r.db.
		Where("provider = ? AND provider_plan_ref = ? AND billing_interval = ? AND is_active = ?",
			provider, providerPlanRef, interval, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// FindActivePlanMappingForPlan is the reverse lookup used by checkout: it
// resolves the provider plan reference (and price) to sell for an internal
// plan.
func (r *gormRepository) FindActivePlanMappingForPlan(provider, internalPlan, interval string) (*models.PlanMapping, error) {
	var m models.PlanMapping
	err := r.db.
		Where("provider = ? AND internal_plan = ? AND billing_interval = ? AND is_active = ?",
			provider, internalPlan, interval, true).
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateCustomerIfAbsent inserts the customer link unless one already exists
// for the (provider, customer id) pair. First write wins; the stored link is
// returned either way.
func (r *gormRepository) CreateCustomerIfAbsent(link *models.BillingCustomer) (bool, *models.BillingCustomer, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "provider_customer_id"},
		},
		DoNothing: true,
	}).Create(link)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.BillingCustomer
	if err := r.db.Where("provider = ? AND provider_customer_id = ?", link.Provider, link.ProviderCustomerID).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

func (r *gormRepository) GetCustomerByProviderID(provider, providerCustomerID string) (*models.BillingCustomer, error) {
	var link models.BillingCustomer
	err := r.db.Where("provider = ? AND provider_customer_id = ?", provider, providerCustomerID).
		First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *gormRepository) GetCustomerByUserID(userID uint, provider string) (*models.BillingCustomer, error) {
	var link models.BillingCustomer
	err := r.db.Where("user_id = ? AND provider = ?", userID, provider).First(&link).Error
	if err != nil {
		return nil, err
	}
	return &link, nil
}

func (r *gormRepository) CreatePayment(p *models.Payment) error {
	return r.db.Create(p).Error
}

func (r *gormRepository) GetPaymentByProviderID(provider, providerPaymentID string) (*models.Payment, error) {
	var p models.Payment
	err := r.db.Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// ApplyPaymentStatus moves a payment to the given status exactly once.
// Concurrent deliveries for the same payment serialize on the row lock; the
// loser sees the status already applied and returns applied=false with no
// error, which is what makes webhook redelivery a safe no-op.
func (r *gormRepository) ApplyPaymentStatus(provider, providerPaymentID, status string, at time.Time) (bool, *models.Payment, error) {
	var applied bool
	var stored models.Payment

	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("provider = ? AND provider_payment_id = ?", provider, providerPaymentID).
			First(&stored).Error; err != nil {
			return err
		}

		if stored.Status == status {
			return nil
		}
		// A payment that reached a terminal state never leaves it.
		if stored.IsFinal() {
			return nil
		}

		updates := map[string]any{"status": status}
		switch status {
		case models.PaymentStatusPaid:
			updates["paid_at"] = at
		case models.PaymentStatusFailed:
			updates["failed_at"] = at
		case models.PaymentStatusExpired:
			updates["expired_at"] = at
		case models.PaymentStatusCanceled:
			updates["canceled_at"] = at
		}
		if err := tx.Model(&models.Payment{}).Where("id = ?", stored.ID).Updates(updates).Error; err != nil {
			return err
		}
		applied = true
		stored.Status = status
		return nil
	})
	if err != nil {
		return false, nil, err
	}
	return applied, &stored, nil
}

// ApplySubscription upserts the subscription row and writes the derived
// entitlement change in one transaction. Ordering is by provider event
// time: if the stored row already carries a newer event, nothing is written
// and applied=false is returned. The entitlement row is locked for the
// duration, which serializes concurrent transitions for the same user.
func (r *gormRepository) ApplySubscription(sub *models.Subscription, change EntitlementChange) (bool, error) {
	applied := false

	err := r.db.Transaction(func(tx *gorm.DB) error {
		var existing models.Subscription
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("provider = ? AND provider_subscription_id = ?", sub.Provider, sub.ProviderSubscriptionID).
			First(&existing).Error
		switch {
		case err == nil:
			if existing.EventTime.After(sub.EventTime) {
				// Stale delivery: a newer provider event already landed.
				return nil
			}
			sub.ID = existing.ID
			sub.CreatedAt = existing.CreatedAt
			if err := tx.Save(sub).Error; err != nil {
				return err
			}
		case errors.Is(err, gorm.ErrRecordNotFound):
			if err := tx.Create(sub).Error; err != nil {
				return err
			}
		default:
			return err
		}

		if err := applyEntitlementTx(tx, sub.UserID, change); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

func (r *gormRepository) GetSubscriptionByProviderID(provider, providerSubscriptionID string) (*models.Subscription, error) {
	var sub models.Subscription
	err := r.db.Where("provider = ? AND provider_subscription_id = ?", provider, providerSubscriptionID).
		First(&sub).Error
	if err != nil {
		return nil, err
	}
	return &sub, nil
}

func (r *gormRepository) ListSubscriptionsByUser(userID uint) ([]models.Subscription, error) {
	var subs []models.Subscription
	err := r.db.Where("user_id = ?", userID).Find(&subs).Error
	return subs, err
}

// ApplyEntitlement writes an entitlement change outside of a subscription
// upsert (payment-failure suspension, resync).
func (r *gormRepository) ApplyEntitlement(userID uint, change EntitlementChange) (bool, error) {
	applied := false
	err := r.db.Transaction(func(tx *gorm.DB) error {
		if err := applyEntitlementTx(tx, userID, change); err != nil {
			return err
		}
		applied = true
		return nil
	})
	return applied, err
}

// applyEntitlementTx locks (or creates) the user's entitlement row and
// applies the change with last-writer-wins ordering by provider event time.
// A change with an empty status carries no entitlement transition (pending
// subscriptions) and is skipped entirely.
func applyEntitlementTx(tx *gorm.DB, userID uint, change EntitlementChange) error {
	if change.Status == "" {
		return nil
	}
	var ent models.Entitlement
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&ent).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		ent = models.Entitlement{
			UserID: userID,
			Plan:   string(defaultPlan),
			Status: models.EntitlementStatusActive,
		}
		if err := tx.Create(&ent).Error; err != nil {
			return err
		}
	} else if err != nil {
		return err
	}

	if ent.EventTime.After(change.EventTime) {
		// The stored entitlement reflects a newer provider event.
		return nil
	}

	updates := map[string]any{
		"status":     change.Status,
		"event_time": change.EventTime,
	}
	if !change.KeepPlan {
		updates["plan"] = normalizePlan(change.Plan)
	}
	return tx.Model(&models.Entitlement{}).Where("id = ?", ent.ID).Updates(updates).Error
}

func (r *gormRepository) GetEntitlement(userID uint) (*models.Entitlement, error) {
	var ent models.Entitlement
	err := r.db.Where("user_id = ?", userID).First(&ent).Error
	if err != nil {
		return nil, err
	}
	return &ent, nil
}

// CreateWebhookEventIfNotExists inserts the log entry unless the identical
// delivery (provider, object id, event type, received time) was already
// recorded. The event type is part of the key so distinct events for the
// same object within one second stay distinct.
func (r *gormRepository) CreateWebhookEventIfNotExists(event *models.WebhookEvent) (bool, *models.WebhookEvent, error) {
	tx := r.db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "object_id"},
			{Name: "event_type"},
			{Name: "received_at"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.WebhookEvent
	if err := r.db.Where("provider = ? AND object_id = ? AND event_type = ? AND received_at = ?",
		event.Provider, event.ObjectID, event.EventType, event.ReceivedAt).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// MarkObjectProcessed flips the processed flag for every log row sharing the
// object id, so any redelivery for the object acknowledges fast.
func (r *gormRepository) MarkObjectProcessed(provider, objectID, processingError string) error {
	now := time.Now()
	return r.db.Model(&models.WebhookEvent{}).
		Where("provider = ? AND object_id = ?", provider, objectID).
		Updates(map[string]any{
			"processed":        processingError == "",
			"processed_at":     &now,
			"processing_error": processingError,
		}).Error
}

func (r *gormRepository) IsObjectProcessed(provider, objectID string) (bool, error) {
	var count int64
	err := r.db.Model(&models.WebhookEvent{}).
		Where("provider = ? AND object_id = ? AND processed = ?", provider, objectID, true).
		Count(&count).Error
	return count > 0, err
}
