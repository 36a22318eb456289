package refunds

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByKey(ctx context.Context, key string) (*models.Refund, error)
	Create(ctx context.Context, refund *models.Refund) error
	SumShipping(ctx context.Context, orderID uuid.UUID) (int64, error)
	UpdateItemRefund(ctx context.Context, itemID uuid.UUID, fields map[string]any) error
	ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByKey returns nil, nil when no refund carries key.
func (r *repository) FindByKey(ctx context.Context, key string) (*models.Refund, error) {
	var refund models.Refund
	err := r.db.WithContext(ctx).Where("idempotency_key = ?", key).First(&refund).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &refund, nil
}

func (r *repository) Create(ctx context.Context, refund *models.Refund) error {
	return r.db.WithContext(ctx).Create(refund).Error
}

func (r *repository) SumShipping(ctx context.Context, orderID uuid.UUID) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Refund{}).
		Select("COALESCE(SUM(amount_cents), 0)").
		Where("order_id = ? AND refund_type = ?", orderID, enums.RefundTypeShipping).
		Scan(&total).Error
	return total, err
}

func (r *repository) UpdateItemRefund(ctx context.Context, itemID uuid.UUID, fields map[string]any) error {
	return r.db.WithContext(ctx).
		Model(&models.OrderItem{}).
		Where("id = ?", itemID).
		Updates(fields).Error
}

func (r *repository) ListForOrder(ctx context.Context, orderID uuid.UUID) ([]models.Refund, error) {
	var rows []models.Refund
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("created_at ASC").
		Find(&rows).Error
	return rows, err
}
