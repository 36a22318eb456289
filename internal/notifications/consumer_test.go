package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/shopcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
)

type memGuard struct {
	claimed  map[uuid.UUID]bool
	released []uuid.UUID
	err      error
}

func (g *memGuard) Claim(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	if g.claimed[id] {
		return false, nil
	}
	g.claimed[id] = true
	return true, nil
}

func (g *memGuard) Release(_ context.Context, _ string, id uuid.UUID) error {
	delete(g.claimed, id)
	g.released = append(g.released, id)
	return nil
}

type stubOrders struct {
	notified []uuid.UUID
	err      error
}

func (s *stubOrders) MarkDelayNotified(_ context.Context, id uuid.UUID) error {
	if s.err != nil {
		return s.err
	}
	s.notified = append(s.notified, id)
	return nil
}

type noopReceiver struct{}

func (noopReceiver) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}

type consumerHarness struct {
	conn     *gorm.DB
	consumer *Consumer
	guard    *memGuard
	orders   *stubOrders
	order    models.Order
}

func newConsumerHarness(t *testing.T) *consumerHarness {
	t.Helper()
	client := dbtest.Open(t, "inbox")
	conn := client.DB()
	order := models.Order{
		UserID:        uuid.New(),
		OrderNumber:   "2610151430-0A1B2C",
		PaymentMethod: enums.PaymentMethodGateway,
		Status:        enums.OrderStatusPlaced,
		SubtotalCents: 120000,
		TotalCents:    120000,
		DeliveryDays:  5,
	}
	require.NoError(t, conn.Create(&order).Error)

	h := &consumerHarness{
		conn:   conn,
		guard:  &memGuard{claimed: map[uuid.UUID]bool{}},
		orders: &stubOrders{},
		order:  order,
	}
	consumer, err := NewConsumer(ConsumerParams{
		Repo:         NewInboxRepository(conn),
		Subscription: noopReceiver{},
		Guard:        h.guard,
		Orders:       h.orders,
		Logger:       logger.New(logger.Options{ServiceName: "inbox-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	h.consumer = consumer
	return h
}

func message(t *testing.T, eventType enums.OutboxEventType, eventID uuid.UUID, data any) (map[string]string, []byte) {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Now().UTC(),
		Data:       raw,
	})
	require.NoError(t, err)
	return map[string]string{"event_type": string(eventType)}, body
}

func (h *consumerHarness) inbox(t *testing.T) []models.Notification {
	t.Helper()
	var rows []models.Notification
	require.NoError(t, h.conn.Where("user_id = ?", h.order.UserID).Order("created_at ASC").Find(&rows).Error)
	return rows
}

func TestRefundEventLandsInOwnersInbox(t *testing.T) {
	h := newConsumerHarness(t)
	eventID := uuid.New()
	attrs, body := message(t, enums.EventRefundIssued, eventID, payloads.RefundIssuedEvent{
		RefundID:    uuid.New(),
		OrderID:     h.order.ID,
		Method:      enums.RefundMethodWallet,
		AmountCents: 117000,
	})

	assert.True(t, h.consumer.process(context.Background(), "m-1", attrs, body))

	rows := h.inbox(t)
	require.Len(t, rows, 1)
	assert.Equal(t, enums.NotificationTypeRefund, rows[0].Type)
	assert.Equal(t, eventID, rows[0].EventID)
	assert.Equal(t, "₹1170.00 has been refunded to your wallet.", rows[0].Message)
	require.NotNil(t, rows[0].Link)
	assert.Equal(t, "/orders/"+h.order.ID.String(), *rows[0].Link)
}

func TestRedeliveredEventIsIgnored(t *testing.T) {
	h := newConsumerHarness(t)
	attrs, body := message(t, enums.EventOrderPaid, uuid.New(), payloads.OrderPaidEvent{
		OrderID:     h.order.ID,
		OrderNumber: h.order.OrderNumber,
		TotalCents:  120000,
	})

	assert.True(t, h.consumer.process(context.Background(), "m-1", attrs, body))
	assert.True(t, h.consumer.process(context.Background(), "m-2", attrs, body))
	assert.Len(t, h.inbox(t), 1)

	// A lost redis claim still cannot duplicate the row.
	h.guard.claimed = map[uuid.UUID]bool{}
	assert.True(t, h.consumer.process(context.Background(), "m-3", attrs, body))
	assert.Len(t, h.inbox(t), 1)
}

func TestDeliveryExtensionMarksOrderNotified(t *testing.T) {
	h := newConsumerHarness(t)
	attrs, body := message(t, enums.EventOrderDeliveryExtended, uuid.New(), payloads.OrderDeliveryExtendedEvent{
		OrderID:              h.order.ID,
		PreviousDeliveryDate: time.Date(2026, 10, 20, 0, 0, 0, 0, time.UTC),
		ExpectedDeliveryDate: time.Date(2026, 10, 25, 0, 0, 0, 0, time.UTC),
	})

	assert.True(t, h.consumer.process(context.Background(), "m-1", attrs, body))
	assert.Equal(t, []uuid.UUID{h.order.ID}, h.orders.notified)
	rows := h.inbox(t)
	require.Len(t, rows, 1)
	assert.Contains(t, rows[0].Message, "25 Oct 2026")
}

func TestFailedDeliveryReleasesClaim(t *testing.T) {
	h := newConsumerHarness(t)
	h.orders.err = errors.New("db down")
	eventID := uuid.New()
	attrs, body := message(t, enums.EventOrderDeliveryExtended, eventID, payloads.OrderDeliveryExtendedEvent{
		OrderID:              h.order.ID,
		ExpectedDeliveryDate: time.Date(2026, 10, 25, 0, 0, 0, 0, time.UTC),
	})

	assert.False(t, h.consumer.process(context.Background(), "m-1", attrs, body))
	assert.Equal(t, []uuid.UUID{eventID}, h.guard.released)
}

func TestIgnoredAndBrokenMessagesAreAcked(t *testing.T) {
	h := newConsumerHarness(t)
	ctx := context.Background()

	attrs, body := message(t, enums.EventOrderCreated, uuid.New(), payloads.OrderCreatedEvent{OrderID: h.order.ID})
	assert.True(t, h.consumer.process(ctx, "m-1", attrs, body))

	attrs, body = message(t, enums.EventOrderStatusChanged, uuid.New(), payloads.OrderStatusChangedEvent{
		OrderID:   h.order.ID,
		NewStatus: enums.OrderStatusConfirmed,
	})
	assert.True(t, h.consumer.process(ctx, "m-2", attrs, body))

	assert.True(t, h.consumer.process(ctx, "m-3", map[string]string{"event_type": "order_paid"}, []byte("not json")))
	assert.Empty(t, h.inbox(t))
	assert.Empty(t, h.guard.claimed)
}

func TestGuardFailureNacks(t *testing.T) {
	h := newConsumerHarness(t)
	h.guard.err = errors.New("redis down")
	attrs, body := message(t, enums.EventOrderPaid, uuid.New(), payloads.OrderPaidEvent{OrderID: h.order.ID})
	assert.False(t, h.consumer.process(context.Background(), "m-1", attrs, body))
}

func TestUnknownOrderIsDropped(t *testing.T) {
	h := newConsumerHarness(t)
	attrs, body := message(t, enums.EventOrderPaid, uuid.New(), payloads.OrderPaidEvent{OrderID: uuid.New()})
	assert.True(t, h.consumer.process(context.Background(), "m-1", attrs, body))
	var count int64
	require.NoError(t, h.conn.Model(&models.Notification{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestComposeRequestDecision(t *testing.T) {
	raw, err := json.Marshal(payloads.ActionRequestEvent{
		OrderID: uuid.New(),
		Kind:    enums.ActionRequestReturn,
		State:   enums.ActionRequestRejected,
		Reason:  "outside window",
	})
	require.NoError(t, err)
	d, ok, err := compose(enums.EventActionRequestDecided, raw)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Return request rejected", d.title)
	assert.Equal(t, "Your return request was rejected. Reason: outside window", d.message)
}

func TestInboxListAndRead(t *testing.T) {
	h := newConsumerHarness(t)
	ctx := context.Background()
	for _, evt := range []enums.OutboxEventType{enums.EventOrderPaid, enums.EventOrderPaymentFailed} {
		attrs, body := message(t, evt, uuid.New(), payloads.OrderPaidEvent{OrderID: h.order.ID, OrderNumber: h.order.OrderNumber})
		require.True(t, h.consumer.process(ctx, "m", attrs, body))
	}

	inbox, err := NewInbox(NewInboxRepository(h.conn))
	require.NoError(t, err)

	rows, _, err := inbox.List(ctx, h.order.UserID, ListParams{UnreadOnly: true})
	require.NoError(t, err)
	require.Len(t, rows, 2)

	require.NoError(t, inbox.MarkRead(ctx, h.order.UserID, rows[0].ID))
	rows, _, err = inbox.List(ctx, h.order.UserID, ListParams{UnreadOnly: true})
	require.NoError(t, err)
	assert.Len(t, rows, 1)

	err = inbox.MarkRead(ctx, uuid.New(), rows[0].ID)
	require.Error(t, err)

	n, err := inbox.MarkAllRead(ctx, h.order.UserID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestInboxRepositoryRejectsUnknownType(t *testing.T) {
	h := newConsumerHarness(t)
	created, err := NewInboxRepository(h.conn).Create(context.Background(), &models.Notification{
		UserID:  h.order.UserID,
		EventID: uuid.New(),
		Type:    enums.NotificationType("promo"),
		Title:   "x",
		Message: "x",
	})
	require.Error(t, err)
	assert.False(t, created)
}
