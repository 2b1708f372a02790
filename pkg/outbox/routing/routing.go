// Package routing decides where each outbox event type is published and
// checks that stored rows decode before they leave the database.
package routing

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// permanentError marks a failure that no retry can fix.
type permanentError struct{ err error }

func (e permanentError) Error() string { return e.err.Error() }
func (e permanentError) Unwrap() error { return e.err }

// Permanent wraps err so the relay parks the row instead of retrying.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return permanentError{err: err}
}

// IsPermanent reports whether err, or anything it wraps, came from Permanent.
func IsPermanent(err error) bool {
	var p permanentError
	return errors.As(err, &p)
}

type route struct {
	aggregate enums.OutboxAggregateType
	check     func(json.RawMessage) error
}

// Routed is a row that passed validation and its destination.
type Routed struct {
	Topic    string
	Envelope outbox.Envelope
}

// Table maps event types to topics. Every storefront event goes to the
// orders topic; subscriptions filter by the event_type attribute.
type Table struct {
	topic  string
	routes map[enums.OutboxEventType]route
}

func NewTable(cfg config.PubSubConfig) (*Table, error) {
	if cfg.OrdersTopic == "" {
		return nil, errors.New("orders topic is required")
	}
	return &Table{
		topic: cfg.OrdersTopic,
		routes: map[enums.OutboxEventType]route{
			enums.EventOrderCreated:             {enums.AggregateOrder, checker[payloads.OrderCreatedEvent]()},
			enums.EventOrderCancelled:           {enums.AggregateOrder, checker[payloads.OrderInventoryEvent]()},
			enums.EventOrderFulfilled:           {enums.AggregateOrder, checker[payloads.OrderInventoryEvent]()},
			enums.EventOrderReturned:            {enums.AggregateOrder, checker[payloads.OrderInventoryEvent]()},
			enums.EventPaymentCaptured:          {enums.AggregatePayment, checker[payloads.PaymentCapturedEvent]()},
			enums.EventPaymentRefunded:          {enums.AggregatePayment, checker[payloads.PaymentRefundedEvent]()},
			enums.EventInvoiceGenerateRequested: {enums.AggregateOrder, checker[payloads.InvoiceGenerateRequestedEvent]()},
			enums.EventInventoryOversold:        {enums.AggregateInventoryItem, checker[payloads.InventoryOversoldEvent]()},
		},
	}, nil
}

// Route validates the row. All failures are permanent.
func (t *Table) Route(row models.OutboxEvent) (*Routed, error) {
	r, ok := t.routes[row.EventType]
	if !ok {
		return nil, Permanent(fmt.Errorf("no route for %s", row.EventType))
	}
	if r.aggregate != row.AggregateType {
		return nil, Permanent(fmt.Errorf("%s expects aggregate %s, row has %s", row.EventType, r.aggregate, row.AggregateType))
	}
	if row.AggregateID == uuid.Nil {
		return nil, Permanent(errors.New("aggregate_id missing"))
	}
	env, err := outbox.ParseEnvelope(row.Payload)
	if err != nil {
		return nil, Permanent(fmt.Errorf("envelope: %w", err))
	}
	if env.Version > outbox.CurrentVersion {
		return nil, Permanent(fmt.Errorf("envelope version %d not supported", env.Version))
	}
	if err := r.check(env.Data); err != nil {
		return nil, Permanent(fmt.Errorf("%s payload: %w", row.EventType, err))
	}
	return &Routed{Topic: t.topic, Envelope: env}, nil
}

func checker[T any]() func(json.RawMessage) error {
	return func(raw json.RawMessage) error {
		var v T
		return json.Unmarshal(raw, &v)
	}
}

// Decode unmarshals an envelope's data into T after checking the version.
// Consumers use it on the receiving side.
func Decode[T any](version int, data json.RawMessage) (T, error) {
	var v T
	if version > outbox.CurrentVersion {
		return v, fmt.Errorf("envelope version %d not supported", version)
	}
	if err := json.Unmarshal(data, &v); err != nil {
		return v, err
	}
	return v, nil
}
