package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrClaimNotReclaimable is returned when an abandoned claim was already
// reclaimed once, or is not abandoned at all.
var ErrClaimNotReclaimable = errors.New("payment event claim not reclaimable")

// paymentEventRepository implements the PaymentEventRepository interface
type paymentEventRepository struct {
	db *gorm.DB
}

// NewPaymentEventRepository creates a new payment event repository instance
func NewPaymentEventRepository(db *gorm.DB) PaymentEventRepository {
	return &paymentEventRepository{db: db}
}

// CreateIfNotExists atomically claims a (provider, external_key) pair.
// The insert rides the unique index: RowsAffected == 1 means this caller
// performed the insert and owns the claim; 0 means someone else holds it.
// There is deliberately no read before the insert.
func (r *paymentEventRepository) CreateIfNotExists(ctx context.Context, event *models.PaymentEvent) (bool, *models.PaymentEvent, error) {
	tx := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "provider"},
			{Name: "external_key"},
		},
		DoNothing: true,
	}).Create(event)
	if tx.Error != nil {
		return false, nil, tx.Error
	}

	created := tx.RowsAffected > 0
	var stored models.PaymentEvent
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND external_key = ?", event.Provider, event.ExternalKey).
		First(&stored).Error; err != nil {
		return false, nil, err
	}
	return created, &stored, nil
}

// Finalize records the reconciliation outcome after the ledger write succeeded.
func (r *paymentEventRepository) Finalize(ctx context.Context, id uint, userID uint, creditsApplied int64) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.PaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"user_id":          userID,
			"credits_applied":  creditsApplied,
			"processed_at":     &now,
			"processing_error": "",
		}).Error
}

// MarkProcessed closes an event without credit application (rejections,
// ignored event types, unresolvable accounts).
func (r *paymentEventRepository) MarkProcessed(ctx context.Context, id uint, processingError string) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&models.PaymentEvent{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"processed_at":     &now,
			"processing_error": processingError,
		}).Error
}

// DeleteUnfinalized removes a claim placeholder after a permanent failure
// before the ledger write, so a legitimate retry of the same key is not
// blocked forever. Finalized rows are never deleted.
func (r *paymentEventRepository) DeleteUnfinalized(ctx context.Context, id uint) error {
	return r.db.WithContext(ctx).
		Where("id = ? AND processed_at IS NULL", id).
		Delete(&models.PaymentEvent{}).Error
}

// ReclaimAbandoned takes over a claim whose holder crashed between claim and
// ledger write. The conditional update succeeds for exactly one caller and at
// most once per event (reclaimed flag), which bounds recovery to a single
// retry. Callers must re-check the ledger for an existing entry with the same
// external ref before re-applying credits.
func (r *paymentEventRepository) ReclaimAbandoned(ctx context.Context, provider, externalKey string, grace time.Duration) (*models.PaymentEvent, error) {
	cutoff := time.Now().Add(-grace)
	res := r.db.WithContext(ctx).Model(&models.PaymentEvent{}).
		Where("provider = ? AND external_key = ? AND processed_at IS NULL AND reclaimed = ? AND claimed_at < ?",
			provider, externalKey, false, cutoff).
		Updates(map[string]interface{}{
			"reclaimed":  true,
			"claimed_at": time.Now(),
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrClaimNotReclaimable
	}

	var event models.PaymentEvent
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND external_key = ?", provider, externalKey).
		First(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// GetByExternalKey loads one idempotency record.
func (r *paymentEventRepository) GetByExternalKey(ctx context.Context, provider, externalKey string) (*models.PaymentEvent, error) {
	var event models.PaymentEvent
	err := r.db.WithContext(ctx).
		Where("provider = ? AND external_key = ?", provider, externalKey).
		First(&event).Error
	if err != nil {
		return nil, err
	}
	return &event, nil
}

// List returns a page of payment events for the admin audit view, newest first.
func (r *paymentEventRepository) List(ctx context.Context, offset, limit int) ([]models.PaymentEvent, int64, error) {
	var total int64
	if err := r.db.WithContext(ctx).Model(&models.PaymentEvent{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var events []models.PaymentEvent
	err := r.db.WithContext(ctx).
		Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&events).Error
	return events, total, err
}
