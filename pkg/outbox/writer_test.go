package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

func queued(t *testing.T, conn *gorm.DB) []models.OutboxEvent {
	t.Helper()
	var rows []models.OutboxEvent
	require.NoError(t, conn.Order("created_at").Find(&rows).Error)
	return rows
}

func TestEmitStoresEnvelope(t *testing.T) {
	client, conn := dbtest.Client(t)
	w := NewWriter(NewStore(conn), nil)
	orderID := uuid.New()
	userID := uuid.New()

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return w.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCreated,
			AggregateType: enums.AggregateOrder,
			AggregateID:   orderID,
			Actor:         &ActorRef{UserID: &userID, Role: "customer"},
			Data:          payloads.OrderCreatedEvent{OrderID: orderID, OrderNumber: "ORD-1"},
		})
	})
	require.NoError(t, err)

	rows := queued(t, conn)
	require.Len(t, rows, 1)
	assert.Nil(t, rows[0].PublishedAt)
	assert.Equal(t, orderID, rows[0].AggregateID)

	env, err := ParseEnvelope(rows[0].Payload)
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, env.Version)
	assert.NotEmpty(t, env.EventID)
	require.NotNil(t, env.Actor)
	assert.Equal(t, "customer", env.Actor.Role)

	var data payloads.OrderCreatedEvent
	require.NoError(t, json.Unmarshal(env.Data, &data))
	assert.Equal(t, "ORD-1", data.OrderNumber)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(rows[0].Payload, &raw))
	assert.Contains(t, raw, "event_id")
	assert.Contains(t, raw, "occurred_at")
}

func TestEmitRollsBackWithCaller(t *testing.T) {
	client, conn := dbtest.Client(t)
	w := NewWriter(NewStore(conn), nil)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := w.Emit(context.Background(), tx, DomainEvent{
			EventType:     enums.EventOrderCancelled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   uuid.New(),
			Data:          payloads.OrderInventoryEvent{OrderNumber: "ORD-2"},
		}); err != nil {
			return err
		}
		return errors.New("abort")
	})
	require.Error(t, err)
	assert.Empty(t, queued(t, conn))
}

func TestEmitKeyedEventsShareID(t *testing.T) {
	client, conn := dbtest.Client(t)
	w := NewWriter(NewStore(conn), nil)
	event := DomainEvent{
		EventType:     enums.EventPaymentRefunded,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Data:          map[string]string{"refund_id": "rfnd_1"},
		Key:           "rfnd_1",
	}
	for i := 0; i < 2; i++ {
		require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
			return w.Emit(context.Background(), tx, event)
		}))
	}

	rows := queued(t, conn)
	require.Len(t, rows, 2)
	first, err := ParseEnvelope(rows[0].Payload)
	require.NoError(t, err)
	second, err := ParseEnvelope(rows[1].Payload)
	require.NoError(t, err)
	assert.Equal(t, first.EventID, second.EventID)
	assert.NotEqual(t, rows[0].ID, rows[1].ID)
}

func TestEmitOnceSkipsQueuedAggregate(t *testing.T) {
	client, conn := dbtest.Client(t)
	w := NewWriter(NewStore(conn), nil)
	orderID := uuid.New()
	event := DomainEvent{
		EventType:     enums.EventInvoiceGenerateRequested,
		AggregateType: enums.AggregateOrder,
		AggregateID:   orderID,
		Data:          payloads.InvoiceGenerateRequestedEvent{OrderID: orderID},
	}
	for i := 0; i < 3; i++ {
		require.NoError(t, client.WithTx(context.Background(), func(tx *gorm.DB) error {
			return w.EmitOnce(context.Background(), tx, event)
		}))
	}
	assert.Len(t, queued(t, conn), 1)
}

func TestEmitRejectsMissingTxOrAggregate(t *testing.T) {
	_, conn := dbtest.Client(t)
	w := NewWriter(NewStore(conn), nil)
	assert.Error(t, w.Emit(context.Background(), nil, DomainEvent{AggregateID: uuid.New()}))
	assert.Error(t, w.Emit(context.Background(), conn, DomainEvent{EventType: enums.EventOrderCreated}))
}

func TestParseEnvelopeRejectsEmptyData(t *testing.T) {
	_, err := ParseEnvelope([]byte(`{"version":1,"event_id":"x","data":null}`))
	assert.Error(t, err)
	_, err = ParseEnvelope([]byte(`not json`))
	assert.Error(t, err)
}
