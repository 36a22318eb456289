package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"testing"
	"time"

	cbigquery "cloud.google.com/go/bigquery"
	pubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
)

type fakeInserter struct {
	errs  []error
	calls int
	rows  []any
}

func (f *fakeInserter) InsertRows(_ context.Context, _ string, rows []any) error {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		if err != nil {
			return err
		}
	}
	f.rows = append(f.rows, rows...)
	return nil
}

type memGuard struct {
	claimed  map[uuid.UUID]bool
	released int
}

func (g *memGuard) Claim(_ context.Context, _ string, id uuid.UUID) (bool, error) {
	if g.claimed[id] {
		return false, nil
	}
	g.claimed[id] = true
	return true, nil
}

func (g *memGuard) Release(_ context.Context, _ string, id uuid.UUID) error {
	delete(g.claimed, id)
	g.released++
	return nil
}

type noopReceiver struct{}

func (noopReceiver) Receive(context.Context, func(context.Context, *pubsub.Message)) error {
	return nil
}

func fastRetry() RetryPolicy {
	return RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaximumBackoff: time.Millisecond}
}

func envelope(t *testing.T, eventID uuid.UUID, data any) []byte {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	body, err := json.Marshal(outbox.PayloadEnvelope{
		Version:    1,
		EventID:    eventID.String(),
		OccurredAt: time.Date(2026, 10, 15, 8, 0, 0, 0, time.UTC),
		Data:       raw,
	})
	require.NoError(t, err)
	return body
}

func newTestConsumer(t *testing.T, inserter *fakeInserter) (*Consumer, *memGuard) {
	t.Helper()
	writer, err := NewWriter(inserter, "sales_events", fastRetry())
	require.NoError(t, err)
	guard := &memGuard{claimed: map[uuid.UUID]bool{}}
	c, err := NewConsumer(ConsumerParams{
		Writer:       writer,
		Subscription: noopReceiver{},
		Guard:        guard,
		Logger:       logger.New(logger.Options{ServiceName: "analytics-test", Output: io.Discard}),
	})
	require.NoError(t, err)
	return c, guard
}

func TestBuildRowRefund(t *testing.T) {
	orderID, itemID := uuid.New(), uuid.New()
	raw, err := json.Marshal(payloads.RefundIssuedEvent{
		OrderID:     orderID,
		OrderItemID: &itemID,
		Method:      enums.RefundMethodWallet,
		AmountCents: 117000,
	})
	require.NoError(t, err)

	row, ok, err := buildRow(enums.EventRefundIssued, outbox.PayloadEnvelope{EventID: "e-1", Data: raw})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, orderID.String(), row.OrderID)
	require.NotNil(t, row.OrderItemID)
	assert.Equal(t, itemID.String(), *row.OrderItemID)
	require.NotNil(t, row.RefundCents)
	assert.Equal(t, int64(117000), *row.RefundCents)
	assert.Nil(t, row.TotalCents)
	assert.True(t, row.Payload.Valid)
}

func TestBuildRowPaidUsesSettlementTime(t *testing.T) {
	paidAt := time.Date(2026, 10, 14, 18, 30, 0, 0, time.UTC)
	raw, err := json.Marshal(payloads.OrderPaidEvent{OrderID: uuid.New(), TotalCents: 5000, PaidAt: paidAt})
	require.NoError(t, err)

	row, ok, err := buildRow(enums.EventOrderPaid, outbox.PayloadEnvelope{EventID: "e-1", OccurredAt: paidAt.Add(time.Minute), Data: raw})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, paidAt, row.OccurredAt)
	assert.Equal(t, int64(5000), *row.TotalCents)
}

func TestBuildRowSkipsUntrackedEvents(t *testing.T) {
	_, ok, err := buildRow(enums.EventActionRequestCreated, outbox.PayloadEnvelope{Data: []byte(`{}`)})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestConsumerIngestsOnce(t *testing.T) {
	inserter := &fakeInserter{}
	c, _ := newTestConsumer(t, inserter)
	body := envelope(t, uuid.New(), payloads.OrderCreatedEvent{OrderID: uuid.New(), PaymentMethod: enums.PaymentMethodCOD, TotalCents: 2500, ItemCount: 2})
	attrs := map[string]string{"event_type": string(enums.EventOrderCreated)}

	assert.True(t, c.process(context.Background(), attrs, body))
	assert.True(t, c.process(context.Background(), attrs, body))
	require.Len(t, inserter.rows, 1)
	row := inserter.rows[0].(*SalesEventRow)
	assert.Equal(t, "order_created", row.EventType)
	assert.Equal(t, int64(2), *row.Quantity)
}

func TestConsumerNacksAndReleasesOnInsertFailure(t *testing.T) {
	denied := &googleapi.Error{Code: http.StatusForbidden}
	inserter := &fakeInserter{errs: []error{denied}}
	c, guard := newTestConsumer(t, inserter)
	body := envelope(t, uuid.New(), payloads.OrderPaidEvent{OrderID: uuid.New(), TotalCents: 100})

	assert.False(t, c.process(context.Background(), map[string]string{"event_type": string(enums.EventOrderPaid)}, body))
	assert.Equal(t, 1, inserter.calls)
	assert.Equal(t, 1, guard.released)
	assert.Empty(t, guard.claimed)
}

func TestConsumerAcksPoisonMessages(t *testing.T) {
	inserter := &fakeInserter{}
	c, _ := newTestConsumer(t, inserter)
	assert.True(t, c.process(context.Background(), map[string]string{"event_type": "order_paid"}, []byte("{")))
	assert.True(t, c.process(context.Background(), map[string]string{"event_type": "order_paid"}, []byte(`{"event_id":"nope"}`)))
	assert.Zero(t, inserter.calls)
}

func TestWriterRetriesTransientErrors(t *testing.T) {
	inserter := &fakeInserter{errs: []error{
		&googleapi.Error{Code: http.StatusServiceUnavailable},
		status.Error(codes.Unavailable, "try later"),
	}}
	w, err := NewWriter(inserter, "sales_events", fastRetry())
	require.NoError(t, err)

	require.NoError(t, w.Insert(context.Background(), &SalesEventRow{EventID: "e-1"}))
	assert.Equal(t, 3, inserter.calls)
	assert.Len(t, inserter.rows, 1)
}

func TestWriterGivesUpAfterMaxAttempts(t *testing.T) {
	throttled := &googleapi.Error{Code: http.StatusTooManyRequests}
	inserter := &fakeInserter{errs: []error{throttled, throttled, throttled, throttled}}
	w, err := NewWriter(inserter, "sales_events", fastRetry())
	require.NoError(t, err)

	err = w.Insert(context.Background(), &SalesEventRow{EventID: "e-1"})
	require.Error(t, err)
	assert.Equal(t, 3, inserter.calls)
}

func TestTransientRowErrors(t *testing.T) {
	allServer := cbigquery.PutMultiError{{Errors: cbigquery.MultiError{&googleapi.Error{Code: http.StatusInternalServerError}}}}
	assert.True(t, transient(allServer))

	mixed := cbigquery.PutMultiError{{Errors: cbigquery.MultiError{
		&googleapi.Error{Code: http.StatusInternalServerError},
		&googleapi.Error{Code: http.StatusBadRequest},
	}}}
	assert.False(t, transient(mixed))
	assert.False(t, transient(cbigquery.PutMultiError{}))
	assert.False(t, transient(errors.New("schema mismatch")))
	assert.True(t, transient(status.Error(codes.ResourceExhausted, "quota")))
}

func TestRetryDelayDoublesUpToCap(t *testing.T) {
	p := RetryPolicy{MaxAttempts: 5, InitialBackoff: 100 * time.Millisecond, MaximumBackoff: 300 * time.Millisecond}.withDefaults()
	assert.Equal(t, 100*time.Millisecond, p.delay(1))
	assert.Equal(t, 200*time.Millisecond, p.delay(2))
	assert.Equal(t, 300*time.Millisecond, p.delay(3))
	assert.Equal(t, 300*time.Millisecond, p.delay(4))

	defaults := RetryPolicy{InitialBackoff: 5 * time.Second}.withDefaults()
	assert.Equal(t, 3, defaults.MaxAttempts)
	assert.Equal(t, 5*time.Second, defaults.MaximumBackoff)
}
