package orders

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	internalorders "github.com/angelmondragon/storefront-backend/internal/orders"
)

// PlaceOrderRequest is the storefront checkout payload.
type PlaceOrderRequest struct {
	CartID          *uuid.UUID                 `json:"cart_id,omitempty"`
	Lines           []internalorders.LineInput `json:"lines" validate:"required,min=1,dive"`
	Currency        string                     `json:"currency" validate:"required,len=3"`
	ShippingAmount  decimal.Decimal            `json:"shipping_amount"`
	DiscountCode    string                     `json:"discount_code,omitempty" validate:"max=64"`
	Segments        []string                   `json:"segments,omitempty"`
	Country         string                     `json:"country,omitempty" validate:"omitempty,len=2"`
	ProviderOrderID string                     `json:"provider_order_id,omitempty" validate:"max=64"`
}

// DirectOrderRequest is an admin-entered order, optionally on behalf of a customer.
type DirectOrderRequest struct {
	PlaceOrderRequest
	CustomerID       *uuid.UUID `json:"customer_id,omitempty"`
	AllowOverselling bool       `json:"allow_overselling"`
}

// CancelRequest carries an optional cancellation reason.
type CancelRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ReturnRequest lists returned quantities per order item.
type ReturnRequest struct {
	Lines []internalorders.ReturnLine `json:"lines" validate:"required,min=1,dive"`
}

func (p PlaceOrderRequest) toInput() internalorders.PlaceOrderInput {
	return internalorders.PlaceOrderInput{
		CartID:          p.CartID,
		Lines:           p.Lines,
		Currency:        p.Currency,
		ShippingAmount:  p.ShippingAmount,
		DiscountCode:    p.DiscountCode,
		Segments:        p.Segments,
		Country:         p.Country,
		ProviderOrderID: p.ProviderOrderID,
	}
}
