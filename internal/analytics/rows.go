package analytics

import (
	"encoding/json"
	"fmt"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
)

// SalesEventRow mirrors the sales_events table.
type SalesEventRow struct {
	EventID       string             `bigquery:"event_id"`
	EventType     string             `bigquery:"event_type"`
	OccurredAt    time.Time          `bigquery:"occurred_at"`
	OrderID       string             `bigquery:"order_id"`
	OrderItemID   *string            `bigquery:"order_item_id"`
	PaymentMethod *string            `bigquery:"payment_method"`
	TotalCents    *int64             `bigquery:"total_cents"`
	RefundCents   *int64             `bigquery:"refund_cents"`
	Quantity      *int64             `bigquery:"quantity"`
	Payload       cbigquery.NullJSON `bigquery:"payload"`
}

// InsertID makes redelivered events idempotent in the streaming buffer.
func (r *SalesEventRow) InsertID() string { return r.EventID }

var trackedEvents = map[enums.OutboxEventType]struct{}{
	enums.EventOrderCreated:       {},
	enums.EventOrderPaid:          {},
	enums.EventOrderItemCancelled: {},
	enums.EventOrderItemReturned:  {},
	enums.EventRefundIssued:       {},
}

// buildRow projects an envelope onto the sales_events schema. ok is false
// for event types the sink ignores.
func buildRow(eventType enums.OutboxEventType, envelope outbox.PayloadEnvelope) (*SalesEventRow, bool, error) {
	if _, tracked := trackedEvents[eventType]; !tracked {
		return nil, false, nil
	}

	row := &SalesEventRow{
		EventID:    envelope.EventID,
		EventType:  string(eventType),
		OccurredAt: envelope.OccurredAt.UTC(),
	}
	if len(envelope.Data) > 0 {
		row.Payload = cbigquery.NullJSON{Valid: true, JSONVal: string(envelope.Data)}
	}

	switch eventType {
	case enums.EventOrderCreated:
		var p payloads.OrderCreatedEvent
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", eventType, err)
		}
		row.OrderID = p.OrderID.String()
		row.PaymentMethod = strPtr(string(p.PaymentMethod))
		row.TotalCents = int64Ptr(p.TotalCents)
		row.Quantity = int64Ptr(int64(p.ItemCount))

	case enums.EventOrderPaid:
		var p payloads.OrderPaidEvent
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", eventType, err)
		}
		row.OrderID = p.OrderID.String()
		row.PaymentMethod = strPtr(string(p.PaymentMethod))
		row.TotalCents = int64Ptr(p.TotalCents)
		if !p.PaidAt.IsZero() {
			row.OccurredAt = p.PaidAt.UTC()
		}

	case enums.EventOrderItemCancelled, enums.EventOrderItemReturned:
		var p payloads.OrderItemClosedEvent
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", eventType, err)
		}
		row.OrderID = p.OrderID.String()
		row.OrderItemID = strPtr(p.OrderItemID.String())
		row.Quantity = int64Ptr(int64(p.Quantity))

	case enums.EventRefundIssued:
		var p payloads.RefundIssuedEvent
		if err := json.Unmarshal(envelope.Data, &p); err != nil {
			return nil, false, fmt.Errorf("decode %s: %w", eventType, err)
		}
		row.OrderID = p.OrderID.String()
		if p.OrderItemID != nil {
			row.OrderItemID = strPtr(p.OrderItemID.String())
		}
		row.PaymentMethod = strPtr(string(p.Method))
		row.RefundCents = int64Ptr(p.AmountCents)
	}
	return row, true, nil
}

func strPtr(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func int64Ptr(v int64) *int64 {
	return &v
}
