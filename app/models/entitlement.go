package models

import "time"

const (
	EntitlementStatusActive    = "active"
	EntitlementStatusInactive  = "inactive"
	EntitlementStatusSuspended = "suspended"
)

// Entitlement is the source of truth for what a user may access: one row per
// user holding the effective plan and status. Mutated exclusively by the
// billing reconciler; created at first successful checkout, never deleted.
type Entitlement struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"uniqueIndex" json:"user_id"`
	Plan      string    `gorm:"type:varchar(50);not null;default:'free'" json:"plan"`
	Status    string    `gorm:"type:varchar(32);not null;default:'active'" json:"status"`
	EventTime time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP" json:"event_time"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// IsSuspended reports whether paid access is currently blocked by a payment failure.
func (e *Entitlement) IsSuspended() bool {
	return e != nil && e.Status == EntitlementStatusSuspended
}
