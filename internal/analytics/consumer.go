package analytics

import (
	"context"
	"encoding/json"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
)

const salesConsumerName = "sales-analytics"

type rowWriter interface {
	Insert(ctx context.Context, rows ...*SalesEventRow) error
}

type eventClaimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type ConsumerParams struct {
	Writer       rowWriter
	Subscription receiver
	Guard        eventClaimer
	Logger       *logger.Logger
}

// Consumer copies order, item and refund events into the sales_events table.
type Consumer struct {
	writer       rowWriter
	subscription receiver
	guard        eventClaimer
	logg         *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	switch {
	case params.Writer == nil:
		return nil, fmt.Errorf("sales writer required")
	case params.Subscription == nil:
		return nil, fmt.Errorf("analytics subscription required")
	case params.Guard == nil:
		return nil, fmt.Errorf("idempotency guard required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		writer:       params.Writer,
		subscription: params.Subscription,
		guard:        params.Guard,
		logg:         params.Logger,
	}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process reports whether the message should be acked.
func (c *Consumer) process(ctx context.Context, attrs map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attrs["event_type"])
	ctx = c.logg.WithField(ctx, "event_type", string(eventType))

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(ctx, "failed to decode envelope", err)
		return true
	}
	ctx = c.logg.WithField(ctx, "event_id", envelope.EventID)
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(ctx, "invalid event id", err)
		return true
	}

	row, ok, err := buildRow(eventType, envelope)
	if err != nil {
		c.logg.Error(ctx, "failed to build sales row", err)
		return true
	}
	if !ok {
		return true
	}

	claimed, err := c.guard.Claim(ctx, salesConsumerName, eventID)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return false
	}
	if !claimed {
		c.logg.Debug(ctx, "event already ingested")
		return true
	}

	if err := c.writer.Insert(ctx, row); err != nil {
		c.logg.Error(ctx, "failed to insert sales row", err)
		if relErr := c.guard.Release(ctx, salesConsumerName, eventID); relErr != nil {
			c.logg.Error(ctx, "failed to release idempotency claim", relErr)
		}
		return false
	}
	c.logg.Info(c.logg.WithOrderID(ctx, row.OrderID), "sales event ingested")
	return true
}
