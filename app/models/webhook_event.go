package models

import "time"

// WebhookEvent stores every inbound provider notification before any side
// effect runs, keyed by (provider, object id, event type, received time).
// Distinct event types for the same object never conflate, even when they
// land within the same second. The processed
// flag is flipped at object granularity once the reconciler has applied the
// object's state, so redeliveries for the same object become fast no-op
// acknowledgments. The log records attempts; idempotency itself is enforced
// by the reconciler's upsert semantics.
type WebhookEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_webhook_events_dedup,unique,priority:1;index:idx_webhook_events_object,priority:1" json:"provider"`
	ObjectID        string     `gorm:"type:varchar(191);not null;index:ux_webhook_events_dedup,unique,priority:2;index:idx_webhook_events_object,priority:2" json:"object_id"`
	EventType       string     `gorm:"type:varchar(100);not null;index;index:ux_webhook_events_dedup,unique,priority:3" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	Processed       bool       `gorm:"default:false;index" json:"processed"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	ReceivedAt      time.Time  `gorm:"type:timestamp;not null;index:ux_webhook_events_dedup,unique,priority:4" json:"received_at"`
	CreatedAt       time.Time  `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}
