package orders

import (
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
)

// Fulfilment steps derived from the order timestamps.
const (
	stepNone = iota
	stepProcessing
	stepPacked
	stepShipped
	stepDelivered
)

var allowedByStep = map[int][]enums.OrderAction{
	stepNone:       {enums.OrderActionProcessing, enums.OrderActionPacked, enums.OrderActionShipped, enums.OrderActionDelivered},
	stepProcessing: {enums.OrderActionPacked, enums.OrderActionShipped, enums.OrderActionDelivered},
	stepPacked:     {enums.OrderActionShipped, enums.OrderActionDelivered},
	stepShipped:    {enums.OrderActionDelivered},
	stepDelivered:  {},
}

// Step reports how far fulfilment has progressed.
func Step(order models.Order) int {
	switch {
	case order.DeliveredAt != nil:
		return stepDelivered
	case order.ShippedAt != nil:
		return stepShipped
	case order.PackedAt != nil:
		return stepPacked
	case order.ProcessingAt != nil:
		return stepProcessing
	default:
		return stepNone
	}
}

// ActionAllowed applies the transition allow-list.
func ActionAllowed(order models.Order, action enums.OrderAction) bool {
	if action == enums.OrderActionCancelled {
		switch order.Status {
		case enums.OrderStatusCancelled, enums.OrderStatusDelivered, enums.OrderStatusReturned:
			return false
		}
		return true
	}
	for _, candidate := range allowedByStep[Step(order)] {
		if candidate == action {
			return true
		}
	}
	return false
}

// AllowedActions lists what staff may do next with order.
func AllowedActions(order models.Order) []enums.OrderAction {
	if order.Status == enums.OrderStatusPending || order.Status == enums.OrderStatusFailed {
		return nil
	}
	out := append([]enums.OrderAction(nil), allowedByStep[Step(order)]...)
	if ActionAllowed(order, enums.OrderActionCancelled) {
		out = append(out, enums.OrderActionCancelled)
	}
	return out
}

func itemStatusFor(action enums.OrderAction) enums.OrderItemStatus {
	switch action {
	case enums.OrderActionShipped:
		return enums.OrderItemStatusShipped
	case enums.OrderActionDelivered:
		return enums.OrderItemStatusDelivered
	case enums.OrderActionCancelled:
		return enums.OrderItemStatusCancelled
	default:
		return enums.OrderItemStatusConfirmed
	}
}

// IsClosed reports whether an item is frozen.
func IsClosed(status enums.OrderItemStatus) bool {
	return status == enums.OrderItemStatusCancelled || status == enums.OrderItemStatusReturned
}

// RecomputeStatus derives the order status from its items. Closed items win:
// all closed gives CANCELLED or RETURNED, some closed gives the PARTIALLY_
// variant, RETURNED taking precedence in both. Otherwise the least advanced
// open item decides.
func RecomputeStatus(items []models.OrderItem) enums.OrderStatus {
	if len(items) == 0 {
		return enums.OrderStatusPlaced
	}
	var closed, returned int
	least := enums.OrderItemStatusDelivered
	for _, item := range items {
		if IsClosed(item.Status) {
			closed++
			if item.Status == enums.OrderItemStatusReturned {
				returned++
			}
			continue
		}
		if rank(item.Status) < rank(least) {
			least = item.Status
		}
	}

	switch {
	case closed == len(items) && returned > 0:
		return enums.OrderStatusReturned
	case closed == len(items):
		return enums.OrderStatusCancelled
	case returned > 0:
		return enums.OrderStatusPartiallyReturned
	case closed > 0:
		return enums.OrderStatusPartiallyCancelled
	}

	switch least {
	case enums.OrderItemStatusDelivered:
		return enums.OrderStatusDelivered
	case enums.OrderItemStatusShipped:
		return enums.OrderStatusShipped
	case enums.OrderItemStatusConfirmed:
		return enums.OrderStatusConfirmed
	default:
		return enums.OrderStatusPlaced
	}
}

func rank(status enums.OrderItemStatus) int {
	switch status {
	case enums.OrderItemStatusPlaced:
		return 0
	case enums.OrderItemStatusConfirmed:
		return 1
	case enums.OrderItemStatusShipped:
		return 2
	case enums.OrderItemStatusDelivered:
		return 3
	default:
		return 4
	}
}
