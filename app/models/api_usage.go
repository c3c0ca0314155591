package models

import "time"

// APIUsage is a usage-accounting record appended after each admitted request.
// Writing it is best-effort and happens off the request path; failures are
// logged but never surfaced to the caller.
type APIUsage struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	APIKeyID   uint      `gorm:"not null;index" json:"api_key_id"`
	UserID     uint      `gorm:"not null;index" json:"user_id"`
	Endpoint   string    `gorm:"type:varchar(100);not null" json:"endpoint"`
	StatusCode int       `gorm:"not null;default:0" json:"status_code"`
	LatencyMs  int64     `gorm:"not null;default:0" json:"latency_ms"`
	OriginIP   string    `gorm:"type:varchar(45);not null;default:''" json:"origin_ip"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}
