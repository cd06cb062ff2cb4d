package models

import "time"

// CreditBalance holds the current prepaid credit balance for one user.
// The balance is derived state: it must always equal the sum of all
// CreditLedgerEntry deltas for the user and is only ever written inside
// the same transaction that appends a ledger entry.
type CreditBalance struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex" json:"user_id"`
	Balance   int64     `gorm:"not null;default:0" json:"balance"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
}
