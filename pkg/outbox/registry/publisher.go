package registry

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
)

// EventDescriptor says where an event type is published and how its
// payload decodes.
type EventDescriptor struct {
	EventType     enums.OutboxEventType
	AggregateType enums.OutboxAggregateType
	Topic         string

	decode func(json.RawMessage) (any, error)
}

// ResolvedEvent is an outbox row that passed validation.
type ResolvedEvent struct {
	Descriptor EventDescriptor
	Envelope   outbox.PayloadEnvelope
	Payload    any
}

// NonRetryableError marks a row that can never be published as-is.
type NonRetryableError struct {
	Err error
}

func NewNonRetryableError(err error) NonRetryableError {
	return NonRetryableError{Err: err}
}

func (e NonRetryableError) Error() string {
	if e.Err == nil {
		return "non-retryable error"
	}
	return e.Err.Error()
}

func (e NonRetryableError) Unwrap() error { return e.Err }

var errNullPayload = errors.New("payload missing")

func event[T any](eventType enums.OutboxEventType, aggregate enums.OutboxAggregateType) EventDescriptor {
	return EventDescriptor{
		EventType:     eventType,
		AggregateType: aggregate,
		decode: func(raw json.RawMessage) (any, error) {
			trimmed := bytes.TrimSpace(raw)
			if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
				return nil, errNullPayload
			}
			payload := new(T)
			if err := json.Unmarshal(trimmed, payload); err != nil {
				return nil, err
			}
			return payload, nil
		},
	}
}

var catalog = []EventDescriptor{
	event[payloads.OrderCreatedEvent](enums.EventOrderCreated, enums.AggregateOrder),
	event[payloads.OrderPaidEvent](enums.EventOrderPaid, enums.AggregateOrder),
	event[payloads.OrderPaymentEvent](enums.EventOrderPaymentFailed, enums.AggregateOrder),
	event[payloads.OrderPaymentEvent](enums.EventOrderPaymentRetried, enums.AggregateOrder),
	event[payloads.OrderStatusChangedEvent](enums.EventOrderStatusChanged, enums.AggregateOrder),
	event[payloads.OrderDeliveryExtendedEvent](enums.EventOrderDeliveryExtended, enums.AggregateOrder),
	event[payloads.OrderItemClosedEvent](enums.EventOrderItemCancelled, enums.AggregateOrderItem),
	event[payloads.OrderItemClosedEvent](enums.EventOrderItemReturned, enums.AggregateOrderItem),
	event[payloads.ActionRequestEvent](enums.EventActionRequestCreated, enums.AggregateActionRequest),
	event[payloads.ActionRequestEvent](enums.EventActionRequestDecided, enums.AggregateActionRequest),
	event[payloads.RefundIssuedEvent](enums.EventRefundIssued, enums.AggregateRefund),
}

// EventRegistry resolves outbox rows against the event catalog.
type EventRegistry struct {
	entries map[enums.OutboxEventType]EventDescriptor
}

// NewEventRegistry routes every event in the catalog to the domain topic.
func NewEventRegistry(cfg config.PubSubConfig) (*EventRegistry, error) {
	if cfg.DomainTopic == "" {
		return nil, fmt.Errorf("domain topic is required")
	}
	entries := make(map[enums.OutboxEventType]EventDescriptor, len(catalog))
	for _, desc := range catalog {
		desc.Topic = cfg.DomainTopic
		entries[desc.EventType] = desc
	}
	return &EventRegistry{entries: entries}, nil
}

// Resolve checks the row against its descriptor and decodes the payload.
// Every failure is a NonRetryableError.
func (r *EventRegistry) Resolve(row models.OutboxEvent) (*ResolvedEvent, error) {
	desc, ok := r.entries[row.EventType]
	switch {
	case !ok:
		return nil, NewNonRetryableError(fmt.Errorf("unsupported event type %s", row.EventType))
	case desc.AggregateType != row.AggregateType:
		return nil, NewNonRetryableError(fmt.Errorf("event %s belongs to %s, row says %s", row.EventType, desc.AggregateType, row.AggregateType))
	case row.AggregateID == uuid.Nil:
		return nil, NewNonRetryableError(fmt.Errorf("event %s has no aggregate_id", row.EventType))
	}

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(row.Payload, &envelope); err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode envelope: %w", err))
	}
	payload, err := desc.decode(envelope.Data)
	if err != nil {
		return nil, NewNonRetryableError(fmt.Errorf("decode %s payload: %w", row.EventType, err))
	}
	return &ResolvedEvent{Descriptor: desc, Envelope: envelope, Payload: payload}, nil
}
