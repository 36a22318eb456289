package coupons

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// priorOrderExclusions are statuses that do not count as a previous purchase.
var priorOrderExclusions = []enums.OrderStatus{
	enums.OrderStatusPending,
	enums.OrderStatusFailed,
	enums.OrderStatusCancelled,
}

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByCode(ctx context.Context, code string) (*models.Coupon, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	// LockByID loads the coupon FOR UPDATE so limit checks and usage writes
	// on the same coupon serialize.
	LockByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error)
	HasPriorOrders(ctx context.Context, userID uuid.UUID) (bool, error)
	CountUsage(ctx context.Context, userID, couponID uuid.UUID) (int64, error)
	UsageExists(ctx context.Context, couponID, orderID uuid.UUID) (bool, error)
	// CreateUsage reports whether a new usage row was written.
	CreateUsage(ctx context.Context, usage *models.CouponUsage) (bool, error)
	IncrementUsed(ctx context.Context, couponID uuid.UUID) error
	Deactivate(ctx context.Context, couponID uuid.UUID) error
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

func (r *repository) FindByCode(ctx context.Context, code string) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).
		Where("UPPER(code) = ?", strings.ToUpper(strings.TrimSpace(code))).
		First(&coupon).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).First(&coupon, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) LockByID(ctx context.Context, id uuid.UUID) (*models.Coupon, error) {
	var coupon models.Coupon
	if err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&coupon, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &coupon, nil
}

func (r *repository) HasPriorOrders(ctx context.Context, userID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Where("user_id = ? AND status NOT IN ?", userID, priorOrderExclusions).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CountUsage(ctx context.Context, userID, couponID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponUsage{}).
		Where("user_id = ? AND coupon_id = ?", userID, couponID).
		Count(&count).Error
	return count, err
}

func (r *repository) UsageExists(ctx context.Context, couponID, orderID uuid.UUID) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.CouponUsage{}).
		Where("coupon_id = ? AND order_id = ?", couponID, orderID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreateUsage(ctx context.Context, usage *models.CouponUsage) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "coupon_id"}, {Name: "order_id"}},
			DoNothing: true,
		}).
		Create(usage)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) IncrementUsed(ctx context.Context, couponID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", couponID).
		UpdateColumn("used_count", gorm.Expr("used_count + 1")).Error
}

func (r *repository) Deactivate(ctx context.Context, couponID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Coupon{}).
		Where("id = ?", couponID).
		UpdateColumn("is_active", false).Error
}
