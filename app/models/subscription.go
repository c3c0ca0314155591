package models

import "time"

const (
	BillingIntervalMonth   = "month"
	BillingIntervalYear    = "year"
	BillingIntervalUnknown = "unknown"
)

const (
	SubscriptionStatusActive    = "active"
	SubscriptionStatusPending   = "pending"
	SubscriptionStatusCanceled  = "canceled"
	SubscriptionStatusSuspended = "suspended"
)

// Subscription mirrors a provider subscription object and maps it to an
// internal plan used by entitlements. The provider is the sole source of
// truth for its fields, so the row allows idempotent overwrite keyed by
// provider_subscription_id. EventTime guards against out-of-order webhook
// application: an update carrying an older provider event time is a no-op.
type Subscription struct {
	ID                     uint       `gorm:"primaryKey" json:"id"`
	UserID                 uint       `gorm:"not null;index" json:"user_id"`
	Provider               string     `gorm:"type:varchar(20);not null;index:ux_subscriptions_provider_subid,unique,priority:1;index:idx_subscriptions_provider_status,priority:1" json:"provider"`
	ProviderSubscriptionID string     `gorm:"type:varchar(191);not null;index:ux_subscriptions_provider_subid,unique,priority:2" json:"provider_subscription_id"`
	ProviderCustomerID     string     `gorm:"type:varchar(191);not null;default:''" json:"provider_customer_id"`
	PlanName               string     `gorm:"type:varchar(100);not null;default:''" json:"plan_name"`
	ProviderPlanRef        string     `gorm:"type:varchar(191);not null;default:'';index" json:"provider_plan_ref"`
	InternalPlan           string     `gorm:"type:varchar(50);not null;default:'free';index" json:"internal_plan"`
	AmountCents            int64      `gorm:"not null;default:0" json:"amount_cents"`
	Currency               string     `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	BillingInterval        string     `gorm:"type:varchar(16);not null;default:'unknown'" json:"billing_interval"`
	Status                 string     `gorm:"type:varchar(32);not null;default:'pending';index:idx_subscriptions_provider_status,priority:2" json:"status"`
	StartDate              *time.Time `gorm:"type:timestamp;default:null" json:"start_date,omitempty"`
	NextPaymentDate        *time.Time `gorm:"type:timestamp;default:null" json:"next_payment_date,omitempty"`
	CanceledAt             *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	EventTime              time.Time  `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"event_time"`
	RawPayloadJSON         string     `gorm:"type:longtext" json:"raw_payload_json"`
	CreatedAt              time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
