package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when checkout commits.
type OrderCreatedEvent struct {
	OrderID       uuid.UUID           `json:"order_id"`
	OrderNumber   string              `json:"order_number"`
	UserID        uuid.UUID           `json:"user_id"`
	PaymentMethod enums.PaymentMethod `json:"payment_method"`
	Status        enums.OrderStatus   `json:"status"`
	TotalCents    int64               `json:"total_cents"`
	ItemCount     int                 `json:"item_count"`
}

// OrderPaidEvent is emitted once per order when settlement is recorded.
type OrderPaidEvent struct {
	OrderID          uuid.UUID           `json:"order_id"`
	OrderNumber      string              `json:"order_number"`
	PaymentMethod    enums.PaymentMethod `json:"payment_method"`
	GatewayPaymentID *string             `json:"gateway_payment_id,omitempty"`
	TotalCents       int64               `json:"total_cents"`
	PaidAt           time.Time           `json:"paid_at"`
}

// OrderPaymentEvent covers payment failure and retry.
type OrderPaymentEvent struct {
	OrderID     uuid.UUID         `json:"order_id"`
	OrderNumber string            `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	Reason      string            `json:"reason,omitempty"`
}

// OrderStatusChangedEvent is emitted after a staff transition or aggregate recompute.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	Action    string            `json:"action,omitempty"`
	OldStatus enums.OrderStatus `json:"old_status"`
	NewStatus enums.OrderStatus `json:"new_status"`
}

// OrderItemClosedEvent is emitted when a line becomes CANCELLED or RETURNED.
type OrderItemClosedEvent struct {
	OrderID     uuid.UUID             `json:"order_id"`
	OrderItemID uuid.UUID             `json:"order_item_id"`
	Status      enums.OrderItemStatus `json:"status"`
	Quantity    int                   `json:"quantity"`
	Reason      string                `json:"reason,omitempty"`
	RefundCents int64                 `json:"refund_cents"`
}

// ActionRequestEvent covers request creation and staff decisions.
type ActionRequestEvent struct {
	RequestID   uuid.UUID                `json:"request_id"`
	OrderID     uuid.UUID                `json:"order_id"`
	OrderItemID uuid.UUID                `json:"order_item_id"`
	Kind        enums.ActionRequestKind  `json:"kind"`
	State       enums.ActionRequestState `json:"state"`
	Reason      string                   `json:"reason,omitempty"`
}

// RefundIssuedEvent is emitted once per refund idempotency key.
type RefundIssuedEvent struct {
	RefundID       uuid.UUID          `json:"refund_id"`
	OrderID        uuid.UUID          `json:"order_id"`
	OrderItemID    *uuid.UUID         `json:"order_item_id,omitempty"`
	RefundType     enums.RefundType   `json:"refund_type"`
	Method         enums.RefundMethod `json:"method"`
	Status         enums.RefundStatus `json:"status"`
	AmountCents    int64              `json:"amount_cents"`
	IdempotencyKey string             `json:"idempotency_key"`
}

// OrderDeliveryExtendedEvent is emitted when a late order gets a new estimate.
type OrderDeliveryExtendedEvent struct {
	OrderID              uuid.UUID `json:"order_id"`
	PreviousDeliveryDate time.Time `json:"previous_delivery_date"`
	ExpectedDeliveryDate time.Time `json:"expected_delivery_date"`
}
