// Package analytics copies storefront events into the BigQuery warehouse.
package analytics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	cbigquery "cloud.google.com/go/bigquery"

	"github.com/angelmondragon/storefront-backend/internal/eventing"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// ConsumerName scopes the dedupe keys of the warehouse sink.
const ConsumerName = "analytics"

type rowSink interface {
	Put(ctx context.Context, rows ...any) error
}

// tracked is every event type that lands in the warehouse. Invoice
// requests are internal plumbing and stay out.
var tracked = map[enums.OutboxEventType]bool{
	enums.EventOrderCreated:      true,
	enums.EventOrderCancelled:    true,
	enums.EventOrderFulfilled:    true,
	enums.EventOrderReturned:     true,
	enums.EventPaymentCaptured:   true,
	enums.EventPaymentRefunded:   true,
	enums.EventInventoryOversold: true,
}

type Consumer struct {
	sink rowSink
	logg *logger.Logger
}

func NewConsumer(sink rowSink, logg *logger.Logger) (*Consumer, error) {
	if sink == nil {
		return nil, errors.New("analytics: sink required")
	}
	if logg == nil {
		return nil, errors.New("analytics: logger required")
	}
	return &Consumer{sink: sink, logg: logg}, nil
}

func (c *Consumer) Handle(ctx context.Context, envelope eventing.Envelope) error {
	if !tracked[envelope.EventType] {
		return nil
	}
	row, err := rowFor(envelope)
	if err != nil {
		return err
	}
	if err := c.sink.Put(ctx, row); err != nil {
		return fmt.Errorf("analytics: insert %s: %w", envelope.EventID, err)
	}
	c.logg.Debug(c.logg.WithField(ctx, "event_type", envelope.EventType), "event stored in warehouse")
	return nil
}

// eventRow is one line of the order_events table. Money columns are decimal
// strings as they appear in the event data.
type eventRow struct {
	EventID       string
	EventType     string
	AggregateType string
	AggregateID   string
	OccurredAt    time.Time
	OrderID       string
	OrderNumber   string
	Amount        string
	Currency      string
	Payload       string
}

// Save implements bigquery.ValueSaver. The event id doubles as the insert
// id so a redelivered message does not create a second row.
func (r eventRow) Save() (map[string]cbigquery.Value, string, error) {
	values := map[string]cbigquery.Value{
		"event_id":       r.EventID,
		"event_type":     r.EventType,
		"aggregate_type": r.AggregateType,
		"aggregate_id":   r.AggregateID,
		"occurred_at":    r.OccurredAt,
	}
	optional := map[string]string{
		"order_id":     r.OrderID,
		"order_number": r.OrderNumber,
		"amount":       r.Amount,
		"currency":     r.Currency,
		"payload":      r.Payload,
	}
	for col, v := range optional {
		if v != "" {
			values[col] = v
		}
	}
	return values, r.EventID, nil
}

// amountKeys are tried in order; the first present wins.
var amountKeys = []string{"total_amount", "amount", "refund_amount"}

func rowFor(envelope eventing.Envelope) (eventRow, error) {
	var data map[string]any
	if len(envelope.Payload) > 0 {
		if err := json.Unmarshal(envelope.Payload, &data); err != nil {
			return eventRow{}, fmt.Errorf("analytics: decode %s data: %w", envelope.EventType, err)
		}
	}
	row := eventRow{
		EventID:       envelope.EventID.String(),
		EventType:     string(envelope.EventType),
		AggregateType: string(envelope.AggregateType),
		AggregateID:   envelope.AggregateID,
		OccurredAt:    envelope.OccurredAt.UTC(),
		OrderID:       text(data, "order_id"),
		OrderNumber:   text(data, "order_number"),
		Currency:      text(data, "currency"),
	}
	if data != nil {
		row.Payload = string(envelope.Payload)
	}
	for _, k := range amountKeys {
		if row.Amount = text(data, k); row.Amount != "" {
			break
		}
	}
	return row, nil
}

func text(data map[string]any, key string) string {
	s, _ := data[key].(string)
	return strings.TrimSpace(s)
}
