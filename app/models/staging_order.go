package models

import "time"

// Staging order lifecycle. Orders are created as pending by reconciliation or
// by a direct usage deduction; the staging pipeline moves them onwards.
const (
	OrderStatusPending    = "pending"
	OrderStatusProcessing = "processing"
	OrderStatusCompleted  = "completed"
	OrderStatusFailed     = "failed"
)

// StagingOrder is one staged-photo unit of work. Its existence is downstream
// of a successful ledger mutation for the same payment or usage deduction;
// SourceRef ties it back to the originating checkout session (or "manual").
type StagingOrder struct {
	ID          uint           `gorm:"primaryKey" json:"id"`
	UUID        string         `gorm:"type:varchar(36);not null;uniqueIndex" json:"uuid"`
	UserID      uint           `gorm:"not null;index" json:"user_id"`
	CreditsUsed int64          `gorm:"not null;default:1" json:"credits_used"`
	Status      string         `gorm:"type:varchar(20);not null;default:'pending';index" json:"status" validate:"oneof=pending processing completed failed"`
	SourceRef   string         `gorm:"type:varchar(191);not null;index" json:"source_ref"`
	PhotoIndex  int            `gorm:"not null;default:0" json:"photo_index"`
	CreatedAt   time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
	UpdatedAt   time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt *time.Time     `gorm:"type:timestamp;default:null" json:"completed_at,omitempty"`
}

// CanTransitionTo enforces the pending -> processing -> completed|failed flow.
func (o *StagingOrder) CanTransitionTo(next string) bool {
	switch o.Status {
	case OrderStatusPending:
		return next == OrderStatusProcessing || next == OrderStatusFailed
	case OrderStatusProcessing:
		return next == OrderStatusCompleted || next == OrderStatusFailed
	}
	return false
}
