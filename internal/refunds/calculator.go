package refunds

import (
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/money"
)

// Kind names the business event a refund belongs to.
type Kind string

const (
	KindCancel      Kind = "cancel"
	KindReturn      Kind = "return"
	KindAdminCancel Kind = "admin_cancel"
)

// ItemKey is the idempotency key of an item refund.
func ItemKey(kind Kind, itemID uuid.UUID) string {
	return fmt.Sprintf("refund:%s:item:%s", kind, itemID)
}

// ShippingKey is the idempotency key of a shipping refund.
func ShippingKey(orderID uuid.UUID, full bool) string {
	if full {
		return fmt.Sprintf("refund:order:%s:shipping", orderID)
	}
	return fmt.Sprintf("refund:order:%s:shipping:partial", orderID)
}

// LateSettlementKey is the idempotency key for returning a payment that
// settled after its order had already failed.
func LateSettlementKey(orderID uuid.UUID, paymentID string) string {
	if paymentID == "" {
		return fmt.Sprintf("refund:order:%s:late_settlement", orderID)
	}
	return fmt.Sprintf("refund:order:%s:late_settlement:%s", orderID, paymentID)
}

// Refundable reports whether money was collected and can be returned.
// Cash-on-delivery orders are never refunded automatically.
func Refundable(order models.Order) bool {
	return order.IsPaid() && order.PaymentMethod != enums.PaymentMethodCOD
}

// PreferredMethod is where a refund for order would go if the gateway
// accepts it. Gateway orders without a recorded payment fall back to wallet.
func PreferredMethod(order models.Order) enums.RefundMethod {
	switch order.PaymentMethod {
	case enums.PaymentMethodGateway:
		if order.GatewayPaymentID != nil && strings.TrimSpace(*order.GatewayPaymentID) != "" {
			return enums.RefundMethodGateway
		}
		return enums.RefundMethodWallet
	case enums.PaymentMethodCOD:
		return enums.RefundMethodStoreCredit
	default:
		return enums.RefundMethodWallet
	}
}

// goodsPaid is what the user paid for the lines, net of order-level discounts.
func goodsPaid(order models.Order) int64 {
	paid := order.TotalCents - order.ShippingCents
	if paid < 0 {
		return 0
	}
	return paid
}

// ComputeItemRefund returns the item's share of what the user paid for goods:
// round_half_up(paid * line_total / subtotal).
func ComputeItemRefund(order models.Order, item models.OrderItem) int64 {
	if order.SubtotalCents <= 0 {
		return 0
	}
	return money.Prorate(goodsPaid(order), item.LineTotalCents, order.SubtotalCents)
}

// ComputeRemainingOrderValue sums the refund value of items still active.
func ComputeRemainingOrderValue(order models.Order, items []models.OrderItem) int64 {
	var total int64
	for _, item := range items {
		if isClosed(item.Status) {
			continue
		}
		total += ComputeItemRefund(order, item)
	}
	return total
}

// ComputeShippingRefund returns the shipping owed back given the items' current
// states. full is true once every item is cancelled or returned.
func ComputeShippingRefund(order models.Order, items []models.OrderItem) (int64, bool) {
	if order.ShippingCents <= 0 || len(items) == 0 {
		return 0, false
	}
	var closedValue, totalValue int64
	allClosed := true
	for _, item := range items {
		totalValue += item.LineTotalCents
		if isClosed(item.Status) {
			closedValue += item.LineTotalCents
		} else {
			allClosed = false
		}
	}
	if allClosed {
		return order.ShippingCents, true
	}
	return money.Prorate(order.ShippingCents, closedValue, totalValue), false
}

func isClosed(status enums.OrderItemStatus) bool {
	return status == enums.OrderItemStatusCancelled || status == enums.OrderItemStatusReturned
}
