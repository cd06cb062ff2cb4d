package models

import "time"

// Payment provider constants used across payment-related models.
const (
	PaymentProviderStripe = "stripe"
	PaymentProviderManual = "manual"
)

// PaymentEvent is the idempotency record for one externally-supplied payment
// notification (checkout-session ID or provider event ID). A row is created
// exactly once by the atomic claim; every later sighting of the same
// (provider, external_key) pair is a duplicate. Rows are never updated or
// deleted in normal operation so they double as the reconciliation audit
// trail; an unfinalized claim may be reclaimed once after a grace period.
type PaymentEvent struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	Provider        string     `gorm:"type:varchar(20);not null;index:ux_payment_events_provider_key,unique,priority:1;index" json:"provider"`
	ExternalKey     string     `gorm:"type:varchar(191);not null;index:ux_payment_events_provider_key,unique,priority:2" json:"external_key"`
	EventType       string     `gorm:"type:varchar(100);not null;index" json:"event_type"`
	PayloadJSON     string     `gorm:"type:longtext;not null" json:"payload_json"`
	SignatureValid  bool       `gorm:"default:false;index" json:"signature_valid"`
	UserID          uint       `gorm:"default:0;index" json:"user_id"`
	CreditsApplied  int64      `gorm:"default:0" json:"credits_applied"`
	ClaimedAt       time.Time  `gorm:"autoCreateTime;index" json:"claimed_at"`
	ProcessedAt     *time.Time `gorm:"type:timestamp;default:null" json:"processed_at,omitempty"`
	ProcessingError string     `gorm:"type:text" json:"processing_error"`
	Reclaimed       bool       `gorm:"default:false" json:"reclaimed"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

// Finalized reports whether the event completed reconciliation.
func (e *PaymentEvent) Finalized() bool {
	return e.ProcessedAt != nil && e.ProcessingError == ""
}
