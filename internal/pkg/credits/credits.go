// Package credits is the only write path to a user's prepaid credit balance.
// Every balance change goes through ApplyDelta, which appends an immutable
// ledger entry and moves the derived balance in one database transaction.
package credits

import (
	"context"
	"errors"
	"fmt"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/repository"
	"gorm.io/gorm"
)

// ErrInsufficientBalance mirrors the repository sentinel for callers that
// only import this package.
var ErrInsufficientBalance = repository.ErrInsufficientBalance

// Service provides the credit ledger operations used by reconciliation,
// checkout, the read API and admin tooling.
type Service struct {
	ledger repository.LedgerRepository
}

// NewService creates a credits service from an injected ledger repository.
func NewService(ledger repository.LedgerRepository) *Service {
	return &Service{ledger: ledger}
}

// NewServiceFromDB creates a credits service from a GORM DB handle.
func NewServiceFromDB(db *gorm.DB) *Service {
	return NewService(repository.NewLedgerRepository(db))
}

// ApplyDelta atomically applies one signed credit change. Consumption that
// would push the balance below zero fails with ErrInsufficientBalance and
// leaves the balance untouched.
func (s *Service) ApplyDelta(ctx context.Context, userID uint, delta int64, reason, externalRef, orderRef string) (*models.CreditLedgerEntry, error) {
	if userID == 0 {
		return nil, errors.New("user_id is required")
	}
	return s.ledger.ApplyDelta(ctx, userID, delta, reason, externalRef, orderRef)
}

// Balance returns the current derived balance for a user (zero if none yet).
func (s *Service) Balance(ctx context.Context, userID uint) (int64, error) {
	return s.ledger.GetBalance(ctx, userID)
}

// History returns a page of ledger entries plus the total count.
func (s *Service) History(ctx context.Context, userID uint, offset, limit int) ([]models.CreditLedgerEntry, int64, error) {
	if limit <= 0 || limit > 100 {
		limit = 25
	}
	if offset < 0 {
		offset = 0
	}
	return s.ledger.GetEntries(ctx, userID, offset, limit)
}

// EntryForExternalRef looks up the ledger entry written for a payment
// reference. Used by abandoned-claim recovery to decide whether credits were
// already applied.
func (s *Service) EntryForExternalRef(ctx context.Context, externalRef string) (*models.CreditLedgerEntry, error) {
	return s.ledger.GetEntryByExternalRef(ctx, externalRef)
}

// ReplayBalance recomputes the balance from the ledger and compares it with
// the stored value. A mismatch means the core invariant is broken and is
// reported as an error carrying both numbers.
func (s *Service) ReplayBalance(ctx context.Context, userID uint) (int64, error) {
	stored, err := s.ledger.GetBalance(ctx, userID)
	if err != nil {
		return 0, err
	}
	replayed, err := s.ledger.SumDeltas(ctx, userID)
	if err != nil {
		return 0, err
	}
	if stored != replayed {
		return replayed, fmt.Errorf("ledger drift for user %d: stored=%d replayed=%d", userID, stored, replayed)
	}
	return replayed, nil
}
