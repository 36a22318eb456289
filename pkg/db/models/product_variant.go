package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ProductVariant is a purchasable sub-SKU carrying its own stock.
type ProductVariant struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ProductID  uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:ux_product_variants_color;uniqueIndex:ux_product_variants_default,where:is_default = true"`
	Color      string    `gorm:"column:color;not null;uniqueIndex:ux_product_variants_color"`
	Stock      int       `gorm:"column:stock;not null;default:0;check:chk_product_variants_stock,stock >= 0"`
	IsDefault  bool      `gorm:"column:is_default;not null;default:false"`
	PriceCents *int64    `gorm:"column:price_cents"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (v *ProductVariant) BeforeCreate(*gorm.DB) error {
	ensureID(&v.ID)
	return nil
}
