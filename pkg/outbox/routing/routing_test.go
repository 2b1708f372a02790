package routing

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

func invoiceRow(t *testing.T, version int, data string) models.OutboxEvent {
	t.Helper()
	payload, err := json.Marshal(outbox.Envelope{Version: version, EventID: uuid.NewString(), Data: json.RawMessage(data)})
	require.NoError(t, err)
	return models.OutboxEvent{
		ID:            uuid.New(),
		EventType:     enums.EventInvoiceGenerateRequested,
		AggregateType: enums.AggregateOrder,
		AggregateID:   uuid.New(),
		Payload:       payload,
	}
}

func TestRouteSendsToOrdersTopic(t *testing.T) {
	table, err := NewTable(config.PubSubConfig{OrdersTopic: "storefront-orders"})
	require.NoError(t, err)

	routed, err := table.Route(invoiceRow(t, 1, `{"order_number":"ORD-1","amount":"499.00","currency":"INR"}`))
	require.NoError(t, err)
	assert.Equal(t, "storefront-orders", routed.Topic)

	got, err := Decode[payloads.InvoiceGenerateRequestedEvent](routed.Envelope.Version, routed.Envelope.Data)
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", got.OrderNumber)
	assert.Equal(t, "499", got.Amount.String())
}

func TestRouteRejectsPermanently(t *testing.T) {
	table, err := NewTable(config.PubSubConfig{OrdersTopic: "storefront-orders"})
	require.NoError(t, err)

	unknown := invoiceRow(t, 1, `{}`)
	unknown.EventType = "order.teleported"
	wrongAggregate := invoiceRow(t, 1, `{}`)
	wrongAggregate.AggregateType = enums.AggregatePayment
	noAggregate := invoiceRow(t, 1, `{}`)
	noAggregate.AggregateID = uuid.Nil
	brokenEnvelope := invoiceRow(t, 1, `{}`)
	brokenEnvelope.Payload = json.RawMessage(`{"version":`)

	rows := map[string]models.OutboxEvent{
		"unknown type":    unknown,
		"wrong aggregate": wrongAggregate,
		"no aggregate id": noAggregate,
		"bad envelope":    brokenEnvelope,
		"empty data":      invoiceRow(t, 1, `null`),
		"future version":  invoiceRow(t, outbox.CurrentVersion+1, `{}`),
		"bad payload":     invoiceRow(t, 1, `{"amount":true}`),
	}
	for name, row := range rows {
		if _, err := table.Route(row); !IsPermanent(err) {
			t.Fatalf("%s: expected permanent error, got %v", name, err)
		}
	}
}

func TestPermanentWrapping(t *testing.T) {
	assert.Nil(t, Permanent(nil))
	base := errors.New("topic not found")
	err := fmt.Errorf("publish: %w", Permanent(base))
	assert.True(t, IsPermanent(err))
	assert.ErrorIs(t, err, base)
	assert.False(t, IsPermanent(base))
}

func TestNewTableRequiresTopic(t *testing.T) {
	_, err := NewTable(config.PubSubConfig{})
	assert.Error(t, err)
}
