package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Order is the public order view.
type Order struct {
	ID               uuid.UUID       `json:"id"`
	OrderNumber      string          `json:"order_number"`
	UserID           *uuid.UUID      `json:"user_id,omitempty"`
	CartID           *uuid.UUID      `json:"cart_id,omitempty"`
	IsDirect         bool            `json:"is_direct"`
	AllowOverselling bool            `json:"allow_overselling"`
	Currency         string          `json:"currency"`
	SubtotalAmount   decimal.Decimal `json:"subtotal_amount"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	ShippingAmount   decimal.Decimal `json:"shipping_amount"`
	TotalAmount      decimal.Decimal `json:"total_amount"`
	AmountPaid       decimal.Decimal `json:"amount_paid"`
	DiscountCode     *string         `json:"discount_code,omitempty"`
	OrderStatus      string          `json:"order_status"`
	PaymentStatus    string          `json:"payment_status"`
	PaidAt           *time.Time      `json:"paid_at,omitempty"`
	CancelledAt      *time.Time      `json:"cancelled_at,omitempty"`
	FulfilledAt      *time.Time      `json:"fulfilled_at,omitempty"`
	Items            []OrderItem     `json:"items"`
	CreatedAt        time.Time       `json:"created_at"`
}

// OrderItem is one order line with its stock claim state.
type OrderItem struct {
	ID               uuid.UUID       `json:"id"`
	ProductID        uuid.UUID       `json:"product_id"`
	VariantID        *uuid.UUID      `json:"variant_id,omitempty"`
	LocationID       *uuid.UUID      `json:"location_id,omitempty"`
	Quantity         int             `json:"quantity"`
	UnitPrice        decimal.Decimal `json:"unit_price"`
	DiscountAmount   decimal.Decimal `json:"discount_amount"`
	InventoryStatus  string          `json:"inventory_status"`
	ReturnedQuantity int             `json:"returned_quantity"`
}

func newOrder(o *models.Order) Order {
	out := Order{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		UserID:           o.UserID,
		CartID:           o.CartID,
		IsDirect:         o.IsDirect,
		AllowOverselling: o.AllowOverselling,
		Currency:         o.Currency,
		SubtotalAmount:   o.SubtotalAmount,
		DiscountAmount:   o.DiscountAmount,
		ShippingAmount:   o.ShippingAmount,
		TotalAmount:      o.TotalAmount,
		AmountPaid:       o.AmountPaid,
		DiscountCode:     o.DiscountCode,
		OrderStatus:      string(o.OrderStatus),
		PaymentStatus:    string(o.PaymentStatus),
		PaidAt:           o.PaidAt,
		CancelledAt:      o.CancelledAt,
		FulfilledAt:      o.FulfilledAt,
		Items:            make([]OrderItem, 0, len(o.Items)),
		CreatedAt:        o.CreatedAt,
	}
	for _, item := range o.Items {
		out.Items = append(out.Items, OrderItem{
			ID:               item.ID,
			ProductID:        item.ProductID,
			VariantID:        item.VariantID,
			LocationID:       item.LocationID,
			Quantity:         item.Quantity,
			UnitPrice:        item.UnitPrice,
			DiscountAmount:   item.DiscountAmount,
			InventoryStatus:  string(item.InventoryStatus),
			ReturnedQuantity: item.ReturnedQuantity,
		})
	}
	return out
}
