package models

import "time"

const (
	PaymentStatusOpen     = "open"
	PaymentStatusPending  = "pending"
	PaymentStatusPaid     = "paid"
	PaymentStatusFailed   = "failed"
	PaymentStatusExpired  = "expired"
	PaymentStatusCanceled = "canceled"
)

// Payment mirrors a provider payment object. Rows are created when a
// checkout is initiated and mutated only by the billing reconciler on a
// matching webhook; the table is append-only history and rows are never
// deleted.
type Payment struct {
	ID                 uint       `gorm:"primaryKey" json:"id"`
	Provider           string     `gorm:"type:varchar(20);not null;index:ux_payments_provider_payment,unique,priority:1" json:"provider"`
	ProviderPaymentID  string     `gorm:"type:varchar(191);not null;index:ux_payments_provider_payment,unique,priority:2" json:"provider_payment_id"`
	UserID             uint       `gorm:"not null;index" json:"user_id"`
	ProviderCustomerID string     `gorm:"type:varchar(191);not null;default:''" json:"provider_customer_id"`
	AmountCents        int64      `gorm:"not null;default:0" json:"amount_cents"`
	Currency           string     `gorm:"type:varchar(3);not null;default:'EUR'" json:"currency"`
	Status             string     `gorm:"type:varchar(20);not null;default:'open';index" json:"status"`
	SubscriptionRef    string     `gorm:"type:varchar(191);not null;default:'';index" json:"subscription_ref"`
	Method             string     `gorm:"type:varchar(32);not null;default:''" json:"method"`
	Description        string     `gorm:"type:varchar(255);not null;default:''" json:"description"`
	PaidAt             *time.Time `gorm:"type:timestamp;default:null" json:"paid_at,omitempty"`
	FailedAt           *time.Time `gorm:"type:timestamp;default:null" json:"failed_at,omitempty"`
	ExpiredAt          *time.Time `gorm:"type:timestamp;default:null" json:"expired_at,omitempty"`
	CanceledAt         *time.Time `gorm:"type:timestamp;default:null" json:"canceled_at,omitempty"`
	CreatedAt          time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsFinal reports whether the payment reached a state the provider will not move it out of.
func (p *Payment) IsFinal() bool {
	switch p.Status {
	case PaymentStatusPaid, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusCanceled:
		return true
	default:
		return false
	}
}
