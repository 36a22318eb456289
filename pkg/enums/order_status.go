package enums

import "fmt"

// OrderStatus is the aggregate lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPending            OrderStatus = "PENDING"
	OrderStatusPlaced             OrderStatus = "PLACED"
	OrderStatusConfirmed          OrderStatus = "CONFIRMED"
	OrderStatusShipped            OrderStatus = "SHIPPED"
	OrderStatusDelivered          OrderStatus = "DELIVERED"
	OrderStatusCancelled          OrderStatus = "CANCELLED"
	OrderStatusReturned           OrderStatus = "RETURNED"
	OrderStatusPartiallyCancelled OrderStatus = "PARTIALLY_CANCELLED"
	OrderStatusPartiallyReturned  OrderStatus = "PARTIALLY_RETURNED"
	OrderStatusFailed             OrderStatus = "FAILED"
)

var validOrderStatuses = []OrderStatus{
	OrderStatusPending,
	OrderStatusPlaced,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
	OrderStatusReturned,
	OrderStatusPartiallyCancelled,
	OrderStatusPartiallyReturned,
	OrderStatusFailed,
}

// String implements fmt.Stringer.
func (o OrderStatus) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderStatus.
func (o OrderStatus) IsValid() bool {
	for _, candidate := range validOrderStatuses {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderStatus converts raw input into a OrderStatus.
func ParseOrderStatus(value string) (OrderStatus, error) {
	for _, candidate := range validOrderStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order status %q", value)
}

// CountsAsPurchase reports whether an order in this status counts as a prior
// purchase for first-time-buyer coupon checks.
func (o OrderStatus) CountsAsPurchase() bool {
	switch o {
	case OrderStatusPending, OrderStatusFailed, OrderStatusCancelled:
		return false
	default:
		return o.IsValid()
	}
}
