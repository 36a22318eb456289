package enums

import "fmt"

// OrderAction is a staff-driven order transition.
type OrderAction string

const (
	OrderActionProcessing OrderAction = "PROCESSING"
	OrderActionPacked     OrderAction = "PACKED"
	OrderActionShipped    OrderAction = "SHIPPED"
	OrderActionDelivered  OrderAction = "DELIVERED"
	OrderActionCancelled  OrderAction = "CANCELLED"
)

var validOrderActions = []OrderAction{
	OrderActionProcessing,
	OrderActionPacked,
	OrderActionShipped,
	OrderActionDelivered,
	OrderActionCancelled,
}

// String implements fmt.Stringer.
func (o OrderAction) String() string {
	return string(o)
}

// IsValid reports whether the value is a known OrderAction.
func (o OrderAction) IsValid() bool {
	for _, candidate := range validOrderActions {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseOrderAction converts raw input into a OrderAction.
func ParseOrderAction(value string) (OrderAction, error) {
	for _, candidate := range validOrderActions {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid order action %q", value)
}
