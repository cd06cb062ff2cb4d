package repository

import (
	"context"
	"errors"
	"time"

	"github.com/rwarfieldjr/clickstage-ai-beta-sub001/app/models"
	"gorm.io/gorm"
)

// ErrInvalidOrderTransition is returned when a status update does not follow
// the pending -> processing -> completed|failed flow.
var ErrInvalidOrderTransition = errors.New("invalid order status transition")

// orderRepository implements the OrderRepository interface
type orderRepository struct {
	db *gorm.DB
}

// NewOrderRepository creates a new staging order repository instance
func NewOrderRepository(db *gorm.DB) OrderRepository {
	return &orderRepository{db: db}
}

// Create inserts a new staging order
func (r *orderRepository) Create(ctx context.Context, order *models.StagingOrder) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByUUID retrieves an order by its public UUID
func (r *orderRepository) GetByUUID(ctx context.Context, uuid string) (*models.StagingOrder, error) {
	var order models.StagingOrder
	err := r.db.WithContext(ctx).Where("uuid = ?", uuid).First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// GetBySourceRef returns all orders materialized for one payment reference.
func (r *orderRepository) GetBySourceRef(ctx context.Context, sourceRef string) ([]models.StagingOrder, error) {
	var orders []models.StagingOrder
	err := r.db.WithContext(ctx).
		Where("source_ref = ?", sourceRef).
		Order("photo_index ASC").
		Find(&orders).Error
	return orders, err
}

// CountBySourceRef counts orders already materialized for one payment reference.
func (r *orderRepository) CountBySourceRef(ctx context.Context, sourceRef string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.StagingOrder{}).
		Where("source_ref = ?", sourceRef).
		Count(&count).Error
	return count, err
}

// GetByUserID returns a page of a user's orders, newest first.
func (r *orderRepository) GetByUserID(ctx context.Context, userID uint, offset, limit int) ([]models.StagingOrder, error) {
	var orders []models.StagingOrder
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").
		Offset(offset).Limit(limit).
		Find(&orders).Error
	return orders, err
}

// UpdateStatus moves an order between states with a guarded conditional
// update: the write only lands when the order is still in the expected
// source state, so concurrent pipeline callbacks cannot double-transition.
func (r *orderRepository) UpdateStatus(ctx context.Context, uuid string, from, to string) error {
	probe := models.StagingOrder{Status: from}
	if !probe.CanTransitionTo(to) {
		return ErrInvalidOrderTransition
	}

	updates := map[string]interface{}{"status": to}
	if to == models.OrderStatusCompleted {
		updates["completed_at"] = time.Now()
	}

	res := r.db.WithContext(ctx).Model(&models.StagingOrder{}).
		Where("uuid = ? AND status = ?", uuid, from).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
