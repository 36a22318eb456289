package enums

import "fmt"

// OutboxAggregateType maps to outbox_events.aggregate_type.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregateOrderItem     OutboxAggregateType = "order_item"
	AggregateActionRequest OutboxAggregateType = "action_request"
	AggregateRefund        OutboxAggregateType = "refund"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateOrder,
	AggregateOrderItem,
	AggregateActionRequest,
	AggregateRefund,
}

// IsValid reports whether the value matches a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// ParseOutboxAggregateType converts raw input into OutboxAggregateType.
func ParseOutboxAggregateType(value string) (OutboxAggregateType, error) {
	for _, candidate := range validAggregateTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid aggregate type %q", value)
}

// OutboxEventType maps to outbox_events.event_type.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderPaid             OutboxEventType = "order_paid"
	EventOrderPaymentFailed    OutboxEventType = "order_payment_failed"
	EventOrderPaymentRetried   OutboxEventType = "order_payment_retried"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventOrderItemCancelled    OutboxEventType = "order_item_cancelled"
	EventOrderItemReturned     OutboxEventType = "order_item_returned"
	EventActionRequestCreated  OutboxEventType = "action_request_created"
	EventActionRequestDecided  OutboxEventType = "action_request_decided"
	EventRefundIssued          OutboxEventType = "refund_issued"
	EventOrderDeliveryExtended OutboxEventType = "order_delivery_extended"
)

var validOutboxEventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderPaymentFailed,
	EventOrderPaymentRetried,
	EventOrderStatusChanged,
	EventOrderItemCancelled,
	EventOrderItemReturned,
	EventActionRequestCreated,
	EventActionRequestDecided,
	EventRefundIssued,
	EventOrderDeliveryExtended,
}

// IsValid reports whether the value matches a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid event type %q", value)
}
