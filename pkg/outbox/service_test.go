package outbox

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/shopcore-backend/pkg/db/dbtest"
	"github.com/angelmondragon/shopcore-backend/pkg/db/models"
	"github.com/angelmondragon/shopcore-backend/pkg/enums"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/payloads"
)

func TestEmitWritesEnvelopeKeyedByRowID(t *testing.T) {
	conn := dbtest.Open(t, "emit").DB()
	svc := NewService(NewRepository(conn), nil)
	at := time.Date(2026, 10, 15, 9, 30, 0, 0, time.FixedZone("IST", 5*3600+1800))
	svc.now = func() time.Time { return at }
	orderID := uuid.New()

	require.NoError(t, svc.Emit(context.Background(), conn, DomainEvent{
		EventType:     enums.EventOrderPaid,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Actor:         System(),
		Data:          payloads.OrderPaidEvent{OrderID: orderID, TotalCents: 4200},
	}))

	var row models.OutboxEvent
	require.NoError(t, conn.Take(&row, "aggregate_id = ?", orderID).Error)
	var env PayloadEnvelope
	require.NoError(t, json.Unmarshal(row.Payload, &env))

	assert.Equal(t, row.ID.String(), env.EventID)
	assert.Equal(t, currentVersion, env.Version)
	assert.True(t, env.OccurredAt.Equal(at))
	assert.Equal(t, time.UTC, env.OccurredAt.Location())
	assert.Equal(t, "system", env.Actor.Role)
	assert.Nil(t, row.PublishedAt)
}

func TestEmitRejectsBadEvents(t *testing.T) {
	conn := dbtest.Open(t, "emit_bad").DB()
	svc := NewService(NewRepository(conn), nil)
	ctx := context.Background()

	assert.ErrorIs(t, svc.Emit(ctx, nil, DomainEvent{EventType: enums.EventOrderPaid, AggregateID: uuid.New()}), errTxRequired)
	assert.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: "order_teleported", AggregateID: uuid.New()}))
	assert.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: enums.EventOrderPaid}))
	assert.Error(t, svc.Emit(ctx, conn, DomainEvent{EventType: enums.EventOrderPaid, AggregateID: uuid.New(), Data: make(chan int)}))

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	assert.Zero(t, count)
}
