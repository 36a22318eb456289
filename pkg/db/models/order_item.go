package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// OrderItem snapshots a purchased line. Only status and refund fields change
// after creation.
type OrderItem struct {
	ID             uuid.UUID             `gorm:"column:id;type:uuid;primaryKey"`
	OrderID        uuid.UUID             `gorm:"column:order_id;type:uuid;not null;index"`
	ProductID      uuid.UUID             `gorm:"column:product_id;type:uuid;not null"`
	VariantID      *uuid.UUID            `gorm:"column:variant_id;type:uuid"`
	ProductName    string                `gorm:"column:product_name;not null"`
	VariantColor   string                `gorm:"column:variant_color"`
	ImageURL       string                `gorm:"column:image_url"`
	OfferLabel     string                `gorm:"column:offer_label"`
	MRPCents       int64                 `gorm:"column:mrp_cents;not null"`
	UnitPriceCents int64                 `gorm:"column:unit_price_cents;not null"`
	Quantity       int                   `gorm:"column:quantity;not null"`
	LineTotalCents int64                 `gorm:"column:line_total_cents;not null"`
	Status         enums.OrderItemStatus `gorm:"column:status;type:text;not null"`

	PlacedAt     *time.Time `gorm:"column:placed_at"`
	ProcessingAt *time.Time `gorm:"column:processing_at"`
	PackedAt     *time.Time `gorm:"column:packed_at"`
	ShippedAt    *time.Time `gorm:"column:shipped_at"`
	DeliveredAt  *time.Time `gorm:"column:delivered_at"`
	CancelledAt  *time.Time `gorm:"column:cancelled_at"`
	ReturnedAt   *time.Time `gorm:"column:returned_at"`

	CancellationReason *enums.CancellationReason `gorm:"column:cancellation_reason;type:text"`
	CancellationNote   string                    `gorm:"column:cancellation_note"`
	ReturnReason       string                    `gorm:"column:return_reason"`

	RefundStatus         *enums.RefundStatus `gorm:"column:refund_status;type:text"`
	RefundCents          int64               `gorm:"column:refund_cents;not null;default:0"`
	RefundMethod         *enums.RefundMethod `gorm:"column:refund_method;type:text"`
	RefundID             *string             `gorm:"column:refund_id"`
	RefundIdempotencyKey *string             `gorm:"column:refund_idempotency_key"`
	RefundProcessedAt    *time.Time          `gorm:"column:refund_processed_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *OrderItem) BeforeCreate(*gorm.DB) error {
	ensureID(&i.ID)
	return nil
}
