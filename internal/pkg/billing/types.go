package billing

import "time"

// ObjectKind distinguishes the two provider object families carried by a
// normalized update.
type ObjectKind string

const (
	ObjectKindPayment      ObjectKind = "payment"
	ObjectKindSubscription ObjectKind = "subscription"
)

// Normalized subscription statuses shared by both provider adapters. The
// reconciler only ever sees these values; translating provider vocabulary
// happens at the adapter boundary.
const (
	StatusActive   = "active"
	StatusPending  = "pending"
	StatusPastDue  = "past_due"
	StatusUnpaid   = "unpaid"
	StatusCanceled = "canceled"
	StatusDeleted  = "deleted"
)

// ProviderObjectUpdate is the provider-agnostic shape every webhook is
// translated into before the reconciler runs. One closed struct instead of
// per-provider payload shapes keeps the reconciler independent of provider
// schema growth.
type ProviderObjectUpdate struct {
	Provider        string
	Kind            ObjectKind
	ObjectID        string
	Status          string
	AmountCents     int64
	Currency        string
	CustomerRef     string
	SubscriptionRef string
	PlanRef         string
	PlanName        string
	Interval        string
	EventTime       time.Time
	NextPaymentDate *time.Time
	RawPayloadJSON  string
}

// WebhookEventInput is the normalized input for webhook event persistence.
type WebhookEventInput struct {
	Provider       string
	ObjectID       string
	EventType      string
	PayloadJSON    string
	SignatureValid bool
	ReceivedAt     time.Time
}

// CheckoutInput describes a checkout initiation request.
type CheckoutInput struct {
	UserID   uint
	Provider string
	Plan     string
	Interval string
}

// CheckoutResult carries the provider redirect plus the identifiers created
// locally for the pending payment/subscription.
type CheckoutResult struct {
	Provider          string
	CheckoutURL       string
	ProviderPaymentID string
	SubscriptionRef   string
	PaymentID         uint
}
