package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrInsufficientBalance is returned when a consumption delta would push the
// balance below zero. The balance row is left untouched.
var ErrInsufficientBalance = errors.New("insufficient credit balance")

// ErrInvalidLedgerReason is returned for reasons outside the known enum.
var ErrInvalidLedgerReason = errors.New("invalid ledger reason")

// ledgerRepository implements the LedgerRepository interface
type ledgerRepository struct {
	db *gorm.DB
}

// NewLedgerRepository creates a new credit ledger repository instance
func NewLedgerRepository(db *gorm.DB) LedgerRepository {
	return &ledgerRepository{db: db}
}

// ApplyDelta appends a ledger entry and moves the balance in one transaction.
// The balance row is locked with SELECT ... FOR UPDATE so two concurrent
// callers for the same user can never read the same balance_before. A missing
// balance row is created at zero on first use.
func (r *ledgerRepository) ApplyDelta(ctx context.Context, userID uint, delta int64, reason, externalRef, orderRef string) (*models.CreditLedgerEntry, error) {
	if !models.ValidLedgerReason(reason) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidLedgerReason, reason)
	}

	var entry *models.CreditLedgerEntry
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		balance, err := lockBalanceRow(tx, userID)
		if err != nil {
			return err
		}

		after := balance.Balance + delta
		if after < 0 {
			return ErrInsufficientBalance
		}

		entry = &models.CreditLedgerEntry{
			UserID:        userID,
			Delta:         delta,
			Reason:        reason,
			BalanceBefore: balance.Balance,
			BalanceAfter:  after,
			ExternalRef:   externalRef,
			OrderRef:      orderRef,
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("create ledger entry: %w", err)
		}

		if err := tx.Model(&models.CreditBalance{}).
			Where("id = ?", balance.ID).
			Update("balance", after).Error; err != nil {
			return fmt.Errorf("update balance: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// lockBalanceRow loads the balance row under FOR UPDATE, creating it at zero
// when the user has no balance yet. The insert races with concurrent
// first-use callers; the unique index on user_id resolves the race and the
// loser re-reads under lock.
func lockBalanceRow(tx *gorm.DB, userID uint) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&balance).Error
	if err == nil {
		return &balance, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("lock balance row: %w", err)
	}

	create := models.CreditBalance{UserID: userID, Balance: 0}
	if err := tx.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}},
		DoNothing: true,
	}).Create(&create).Error; err != nil {
		return nil, fmt.Errorf("create balance row: %w", err)
	}

	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&balance).Error; err != nil {
		return nil, fmt.Errorf("relock balance row: %w", err)
	}
	return &balance, nil
}

// GetBalance returns the current balance; users without a row have zero.
func (r *ledgerRepository) GetBalance(ctx context.Context, userID uint) (int64, error) {
	var balance models.CreditBalance
	err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&balance).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return balance.Balance, nil
}

// GetEntries returns a page of ledger entries for a user, newest first,
// plus the total entry count for pagination.
func (r *ledgerRepository) GetEntries(ctx context.Context, userID uint, offset, limit int) ([]models.CreditLedgerEntry, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.CreditLedgerEntry{}).
		Where("user_id = ?", userID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []models.CreditLedgerEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&entries).Error
	return entries, total, err
}

// GetEntryByExternalRef returns the ledger entry recorded for an external
// payment reference, or gorm.ErrRecordNotFound.
func (r *ledgerRepository) GetEntryByExternalRef(ctx context.Context, externalRef string) (*models.CreditLedgerEntry, error) {
	var entry models.CreditLedgerEntry
	err := r.db.WithContext(ctx).Where("external_ref = ? AND external_ref <> ''", externalRef).First(&entry).Error
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// SumDeltas replays the ledger for audit: the result must equal the stored balance.
func (r *ledgerRepository) SumDeltas(ctx context.Context, userID uint) (int64, error) {
	var sum *int64
	err := r.db.WithContext(ctx).Model(&models.CreditLedgerEntry{}).
		Where("user_id = ?", userID).
		Select("SUM(delta)").
		Scan(&sum).Error
	if err != nil {
		return 0, err
	}
	if sum == nil {
		return 0, nil
	}
	return *sum, nil
}
