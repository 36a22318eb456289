package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"

	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
)

const inboxConsumerName = "customer-inbox"

type eventClaimer interface {
	Claim(ctx context.Context, consumer string, eventID uuid.UUID) (bool, error)
	Release(ctx context.Context, consumer string, eventID uuid.UUID) error
}

type delayAcknowledger interface {
	MarkDelayNotified(ctx context.Context, orderID uuid.UUID) error
}

type receiver interface {
	Receive(ctx context.Context, f func(context.Context, *pubsub.Message)) error
}

type ConsumerParams struct {
	Repo         InboxRepository
	Subscription receiver
	Guard        eventClaimer
	Orders       delayAcknowledger
	Logger       *logger.Logger
}

// Consumer turns domain events from the outbox topic into customer inbox
// entries. Delivery-delay notices also flip the order's delay_notified flag.
type Consumer struct {
	repo         InboxRepository
	subscription receiver
	guard        eventClaimer
	orders       delayAcknowledger
	logg         *logger.Logger
}

func NewConsumer(params ConsumerParams) (*Consumer, error) {
	switch {
	case params.Repo == nil:
		return nil, fmt.Errorf("inbox repository required")
	case params.Subscription == nil:
		return nil, fmt.Errorf("domain subscription required")
	case params.Guard == nil:
		return nil, fmt.Errorf("idempotency guard required")
	case params.Orders == nil:
		return nil, fmt.Errorf("order service required")
	case params.Logger == nil:
		return nil, fmt.Errorf("logger required")
	}
	return &Consumer{
		repo:         params.Repo,
		subscription: params.Subscription,
		guard:        params.Guard,
		orders:       params.Orders,
		logg:         params.Logger,
	}, nil
}

func (c *Consumer) Run(ctx context.Context) error {
	return c.subscription.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		if c.process(ctx, msg.ID, msg.Attributes, msg.Data) {
			msg.Ack()
			return
		}
		msg.Nack()
	})
}

// process returns true when the message should be acked. Undecodable
// messages are acked so they do not loop forever.
func (c *Consumer) process(ctx context.Context, messageID string, attrs map[string]string, data []byte) bool {
	eventType := enums.OutboxEventType(attrs["event_type"])
	ctx = c.logg.WithFields(ctx, map[string]any{
		"message_id": messageID,
		"event_type": eventType,
	})

	var envelope outbox.PayloadEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		c.logg.Error(ctx, "failed to decode envelope", err)
		return true
	}
	eventID, err := uuid.Parse(envelope.EventID)
	if err != nil {
		c.logg.Error(ctx, "invalid event id", err)
		return true
	}

	d, ok, err := compose(eventType, envelope.Data)
	if err != nil {
		c.logg.Error(ctx, "failed to decode payload", err)
		return true
	}
	if !ok {
		return true
	}

	claimed, err := c.guard.Claim(ctx, inboxConsumerName, eventID)
	if err != nil {
		c.logg.Error(ctx, "idempotency check failed", err)
		return false
	}
	if !claimed {
		c.logg.Debug(ctx, "event already processed")
		return true
	}

	if err := c.deliver(ctx, eventID, eventType, d); err != nil {
		c.logg.Error(ctx, "customer notification failed", err)
		if relErr := c.guard.Release(ctx, inboxConsumerName, eventID); relErr != nil {
			c.logg.Error(ctx, "failed to release idempotency claim", relErr)
		}
		return false
	}
	return true
}

func (c *Consumer) deliver(ctx context.Context, eventID uuid.UUID, eventType enums.OutboxEventType, d draft) error {
	owner, err := c.repo.OrderOwner(ctx, d.orderID)
	if errors.Is(err, ErrOrderNotFound) {
		c.logg.Warn(c.logg.WithOrderID(ctx, d.orderID.String()), "order gone, notification dropped")
		return nil
	}
	if err != nil {
		return err
	}

	orderID := d.orderID
	link := "/orders/" + orderID.String()
	created, err := c.repo.Create(ctx, &models.Notification{
		UserID:  owner.UserID,
		OrderID: &orderID,
		EventID: eventID,
		Type:    d.kind,
		Title:   d.title,
		Message: d.message,
		Link:    &link,
	})
	if err != nil {
		return err
	}

	if eventType == enums.EventOrderDeliveryExtended {
		if err := c.orders.MarkDelayNotified(ctx, orderID); err != nil {
			return err
		}
	}
	if created {
		c.logg.Info(c.logg.WithFields(ctx, map[string]any{
			"user_id":      owner.UserID.String(),
			"order_number": owner.OrderNumber,
		}), "customer notified")
	}
	return nil
}
