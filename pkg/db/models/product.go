package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is a sellable catalog entry. StockQuantity is derived from its
// variants when any exist.
type Product struct {
	ID            uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name          string    `gorm:"column:name;not null"`
	ImageURL      string    `gorm:"column:image_url"`
	OfferLabel    string    `gorm:"column:offer_label"`
	PriceCents    int64     `gorm:"column:price_cents;not null"`
	MRPCents      int64     `gorm:"column:mrp_cents;not null"`
	StockQuantity int       `gorm:"column:stock_quantity;not null;default:0;check:chk_products_stock,stock_quantity >= 0"`
	IsActive      bool      `gorm:"column:is_active;not null"`
	CreatedAt     time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time `gorm:"column:updated_at;autoUpdateTime"`

	Variants []ProductVariant `gorm:"foreignKey:ProductID"`
}

func (p *Product) BeforeCreate(*gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// IsDiscounted reports whether the sell price is below the list price.
func (p Product) IsDiscounted() bool {
	return p.MRPCents > p.PriceCents
}
