package models

import (
	"fmt"
	"time"
)

// Ledger reasons. Positive deltas are grants, negative deltas consumption.
const (
	LedgerReasonPurchase      = "purchase"
	LedgerReasonUsage         = "usage"
	LedgerReasonAdminAdd      = "admin_add"
	LedgerReasonAdminSubtract = "admin_subtract"
	LedgerReasonRefund        = "refund"
	LedgerReasonExpiration    = "expiration"
)

// CreditLedgerEntry is an immutable record of a single credit balance change.
// Entries for one user are totally ordered by creation; each entry's
// BalanceBefore equals the previous entry's BalanceAfter.
type CreditLedgerEntry struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	UserID        uint      `gorm:"not null;index" json:"user_id"`
	Delta         int64     `gorm:"not null" json:"delta"`
	Reason        string    `gorm:"type:varchar(30);not null;index" json:"reason" validate:"oneof=purchase usage admin_add admin_subtract refund expiration"`
	BalanceBefore int64     `gorm:"not null" json:"balance_before"`
	BalanceAfter  int64     `gorm:"not null" json:"balance_after"`
	ExternalRef   string    `gorm:"type:varchar(191);default:'';index" json:"external_ref,omitempty"`
	OrderRef      string    `gorm:"type:varchar(191);default:''" json:"order_ref,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime;index" json:"created_at"`
}

// IsConsumption reports whether the reason implies a negative delta that must
// never push the balance below zero.
func IsConsumption(reason string) bool {
	switch reason {
	case LedgerReasonUsage, LedgerReasonAdminSubtract, LedgerReasonExpiration:
		return true
	}
	return false
}

// ValidLedgerReason reports whether reason is one of the known enum values.
func ValidLedgerReason(reason string) bool {
	switch reason {
	case LedgerReasonPurchase, LedgerReasonUsage, LedgerReasonAdminAdd,
		LedgerReasonAdminSubtract, LedgerReasonRefund, LedgerReasonExpiration:
		return true
	}
	return false
}

// CheckChain verifies the internal arithmetic of a single entry.
func (e *CreditLedgerEntry) CheckChain() error {
	if e.BalanceAfter != e.BalanceBefore+e.Delta {
		return fmt.Errorf("ledger entry %d broken: before=%d delta=%d after=%d", e.ID, e.BalanceBefore, e.Delta, e.BalanceAfter)
	}
	return nil
}
