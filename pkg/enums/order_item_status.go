package enums

import "fmt"

// OrderItemStatus is the per-line lifecycle state.
type OrderItemStatus string

const (
	OrderItemStatusPlaced    OrderItemStatus = "PLACED"
	OrderItemStatusConfirmed OrderItemStatus = "CONFIRMED"
	OrderItemStatusShipped   OrderItemStatus = "SHIPPED"
	OrderItemStatusDelivered OrderItemStatus = "DELIVERED"
	OrderItemStatusCancelled OrderItemStatus = "CANCELLED"
	OrderItemStatusReturned  OrderItemStatus = "RETURNED"
)

var validOrderItemStatuses = []OrderItemStatus{
	OrderItemStatusPlaced,
	OrderItemStatusConfirmed,
	OrderItemStatusShipped,
	OrderItemStatusDelivered,
	OrderItemStatusCancelled,
	OrderItemStatusReturned,
}

// String implements fmt.Stringer.
func (o OrderItemStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderItemStatus.
func (o OrderItemStatus) IsValid() bool {
	for _, candidate := range validOrderItemStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderItemStatus converts raw input into a OrderItemStatus.
func ParseOrderItemStatus(value string) (OrderItemStatus, error) {
	for _, candidate := range validOrderItemStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order item status %q", value)
}

// IsFinal reports whether the item is frozen (cancelled or returned).
func (o OrderItemStatus) IsFinal() bool {
	return o == OrderItemStatusCancelled || o == OrderItemStatusReturned
}

// IsEarly reports whether the item can still be cancelled without approval.
func (o OrderItemStatus) IsEarly() bool {
	return o == OrderItemStatusPlaced || o == OrderItemStatusConfirmed
}
