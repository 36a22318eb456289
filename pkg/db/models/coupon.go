package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// Coupon defines a discount. DiscountValue is basis points for PERCENT and
// cents for FLAT. Zero thresholds mean "no limit".
type Coupon struct {
	ID                 uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	Code               string             `gorm:"column:code;not null;uniqueIndex:ux_coupons_code"`
	Title              string             `gorm:"column:title"`
	DiscountType       enums.DiscountType `gorm:"column:discount_type;type:text;not null"`
	DiscountValue      int64              `gorm:"column:discount_value;not null"`
	StartsOn           time.Time          `gorm:"column:starts_on;type:date;not null"`
	ExpiresOn          time.Time          `gorm:"column:expires_on;type:date;not null"`
	MinPurchaseCents   int64              `gorm:"column:min_purchase_cents;not null;default:0"`
	MaxPurchaseCents   int64              `gorm:"column:max_purchase_cents;not null;default:0"`
	MaxRedeemableCents int64              `gorm:"column:max_redeemable_cents;not null;default:0"`
	UsageLimit         int                `gorm:"column:usage_limit;not null;default:0"`
	PerUserLimit       int                `gorm:"column:per_user_limit;not null"`
	UsedCount          int                `gorm:"column:used_count;not null;default:0"`
	MinItems           int                `gorm:"column:min_items;not null;default:0"`
	FirstTimeOnly      bool               `gorm:"column:first_time_only;not null;default:false"`
	ExcludeDiscounted  bool               `gorm:"column:exclude_discounted;not null;default:false"`
	IsActive           bool               `gorm:"column:is_active;not null"`
	CreatedAt          time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

func (c *Coupon) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}

// CouponUsage is the source of truth for per-user coupon consumption.
type CouponUsage struct {
	ID       uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	UserID   uuid.UUID `gorm:"column:user_id;type:uuid;not null;index"`
	CouponID uuid.UUID `gorm:"column:coupon_id;type:uuid;not null;uniqueIndex:ux_coupon_usages_order"`
	OrderID  uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:ux_coupon_usages_order"`
	UsedAt   time.Time `gorm:"column:used_at;autoCreateTime"`
}

func (c *CouponUsage) BeforeCreate(*gorm.DB) error {
	ensureID(&c.ID)
	return nil
}
