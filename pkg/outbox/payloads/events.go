package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderLine is the per-item snapshot carried by order events.
type OrderLine struct {
	ProductID       uuid.UUID  `json:"product_id"`
	VariantID       *uuid.UUID `json:"variant_id,omitempty"`
	InventoryItemID uuid.UUID  `json:"inventory_item_id"`
	Quantity        int        `json:"quantity"`
}

// OrderCreatedEvent is emitted once an order and its stock claims are committed.
type OrderCreatedEvent struct {
	OrderID          uuid.UUID       `json:"order_id"`
	OrderNumber      string          `json:"order_number"`
	OwnerRef         string          `json:"owner_ref"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	Currency         string          `json:"currency"`
	IsDirect         bool            `json:"is_direct"`
	AllowOverselling bool            `json:"allow_overselling"`
	Lines            []OrderLine     `json:"lines"`
}

// OrderInventoryEvent covers cancellation, fulfillment and return transitions.
type OrderInventoryEvent struct {
	OrderID     uuid.UUID   `json:"order_id"`
	OrderNumber string      `json:"order_number"`
	Lines       []OrderLine `json:"lines"`
	OccurredAt  time.Time   `json:"occurred_at"`
	Reason      string      `json:"reason,omitempty"`
}

// PaymentCapturedEvent is emitted when a capture is verified against the order total.
type PaymentCapturedEvent struct {
	OrderID           uuid.UUID       `json:"order_id"`
	OrderNumber       string          `json:"order_number"`
	TransactionID     uuid.UUID       `json:"transaction_id"`
	ProviderPaymentID string          `json:"provider_payment_id"`
	Amount            decimal.Decimal `json:"amount"`
	Currency          string          `json:"currency"`
	CapturedAt        time.Time       `json:"captured_at"`
}

// PaymentRefundedEvent reports a processed (partial or full) refund.
type PaymentRefundedEvent struct {
	OrderID        uuid.UUID       `json:"order_id"`
	TransactionID  uuid.UUID       `json:"transaction_id"`
	RefundID       string          `json:"refund_id"`
	RefundAmount   decimal.Decimal `json:"refund_amount"`
	RefundedAmount decimal.Decimal `json:"refunded_amount"`
	FullyRefunded  bool            `json:"fully_refunded"`
}

// InvoiceGenerateRequestedEvent asks the invoice worker to issue an invoice.
type InvoiceGenerateRequestedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency"`
	PaidAt      time.Time       `json:"paid_at"`
}

// InventoryOversoldEvent flags an admin order that reserved beyond sellable stock.
type InventoryOversoldEvent struct {
	OrderNumber     string    `json:"order_number"`
	InventoryItemID uuid.UUID `json:"inventory_item_id"`
	ProductID       uuid.UUID `json:"product_id"`
	Requested       int       `json:"requested"`
	EffectiveStock  int       `json:"effective_stock"`
	Shortfall       int       `json:"shortfall"`
}
