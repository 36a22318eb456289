package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// ActionRequest is a customer cancel/return awaiting staff review. At most one
// PENDING request may exist per (item, kind).
type ActionRequest struct {
	ID           uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	OrderID      uuid.UUID                `gorm:"column:order_id;type:uuid;not null;index"`
	OrderItemID  uuid.UUID                `gorm:"column:order_item_id;type:uuid;not null;uniqueIndex:ux_action_requests_pending,where:state = 'PENDING'"`
	Kind         enums.ActionRequestKind  `gorm:"column:kind;type:text;not null;uniqueIndex:ux_action_requests_pending,where:state = 'PENDING'"`
	Reason       string                   `gorm:"column:reason;not null"`
	Note         string                   `gorm:"column:note"`
	State        enums.ActionRequestState `gorm:"column:state;type:text;not null;index"`
	RequestedBy  uuid.UUID                `gorm:"column:requested_by;type:uuid;not null"`
	DecidedBy    *uuid.UUID               `gorm:"column:decided_by;type:uuid"`
	DecisionNote string                   `gorm:"column:decision_note"`
	CreatedAt    time.Time                `gorm:"column:created_at;autoCreateTime"`
	DecidedAt    *time.Time               `gorm:"column:decided_at"`
}

func (a *ActionRequest) BeforeCreate(*gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
