package enums

// OutboxAggregateType maps to the aggregate_type column of outbox_events.
type OutboxAggregateType string

const (
	AggregateOrder         OutboxAggregateType = "order"
	AggregateInventoryItem OutboxAggregateType = "inventory_item"
	AggregatePayment       OutboxAggregateType = "payment_transaction"
)

var aggregateTypes = newDomain("aggregate type", AggregateOrder, AggregateInventoryItem, AggregatePayment)

func (a OutboxAggregateType) IsValid() bool { return aggregateTypes.contains(a) }

func ParseOutboxAggregateType(raw string) (OutboxAggregateType, error) {
	return aggregateTypes.parse(raw)
}

// OutboxEventType maps to the event_type column of outbox_events.
type OutboxEventType string

const (
	EventOrderCreated             OutboxEventType = "order.created"
	EventOrderCancelled           OutboxEventType = "order.cancelled"
	EventOrderFulfilled           OutboxEventType = "order.fulfilled"
	EventOrderReturned            OutboxEventType = "order.returned"
	EventPaymentCaptured          OutboxEventType = "payment.captured"
	EventPaymentRefunded          OutboxEventType = "payment.refunded"
	EventInvoiceGenerateRequested OutboxEventType = "invoice.generate_requested"
	EventInventoryOversold        OutboxEventType = "inventory.oversold"
)

var eventTypes = newDomain("event type",
	EventOrderCreated,
	EventOrderCancelled,
	EventOrderFulfilled,
	EventOrderReturned,
	EventPaymentCaptured,
	EventPaymentRefunded,
	EventInvoiceGenerateRequested,
	EventInventoryOversold,
)

func (e OutboxEventType) IsValid() bool { return eventTypes.contains(e) }

func ParseOutboxEventType(raw string) (OutboxEventType, error) { return eventTypes.parse(raw) }

// OutboxParkReason records why the publisher moved a row to outbox_dlq.
type OutboxParkReason string

const (
	ParkAttemptsExhausted OutboxParkReason = "attempts_exhausted"
	ParkUndeliverable     OutboxParkReason = "undeliverable"
)

func (r OutboxParkReason) IsValid() bool {
	return r == ParkAttemptsExhausted || r == ParkUndeliverable
}
