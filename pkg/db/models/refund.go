package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// Refund audits one refund movement. IdempotencyKey is unique.
type Refund struct {
	ID              uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	OrderID         uuid.UUID          `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID     *uuid.UUID         `gorm:"column:order_item_id;type:uuid"`
	RefundType      enums.RefundType   `gorm:"column:refund_type;type:text;not null"`
	Method          enums.RefundMethod `gorm:"column:method;type:text;not null"`
	AmountCents     int64              `gorm:"column:amount_cents;not null"`
	Status          enums.RefundStatus `gorm:"column:status;type:text;not null"`
	GatewayRefundID *string            `gorm:"column:gateway_refund_id"`
	IdempotencyKey  string             `gorm:"column:idempotency_key;not null;uniqueIndex:ux_refunds_idempotency"`
	FailureReason   string             `gorm:"column:failure_reason"`
	CreatedAt       time.Time          `gorm:"column:created_at;autoCreateTime"`
}

func (r *Refund) BeforeCreate(*gorm.DB) error {
	ensureID(&r.ID)
	return nil
}
