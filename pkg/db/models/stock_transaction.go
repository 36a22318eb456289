package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// StockTransaction is an append-only audit row for every stock movement.
type StockTransaction struct {
	ID          uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID   uuid.UUID                  `gorm:"column:product_id;type:uuid;not null;index"`
	VariantID   *uuid.UUID                 `gorm:"column:variant_id;type:uuid;index"`
	OrderItemID *uuid.UUID                 `gorm:"column:order_item_id;type:uuid"`
	Type        enums.StockTransactionType `gorm:"column:type;type:text;not null"`
	Quantity    int                        `gorm:"column:quantity;not null"`
	StockBefore int                        `gorm:"column:stock_before;not null"`
	StockAfter  int                        `gorm:"column:stock_after;not null"`
	Reason      string                     `gorm:"column:reason"`
	ActorID     *uuid.UUID                 `gorm:"column:actor_id;type:uuid"`
	CreatedAt   time.Time                  `gorm:"column:created_at;autoCreateTime"`
}

func (s *StockTransaction) BeforeCreate(*gorm.DB) error {
	ensureID(&s.ID)
	return nil
}
