package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// GuestOwner is the owner label stored for orders placed without an account.
const GuestOwner = "GUEST"

// Order is a placed order; amounts are in the major currency unit.
type Order struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber      string              `gorm:"column:order_number;not null;uniqueIndex"`
	UserID           *uuid.UUID          `gorm:"column:user_id;type:uuid"`
	OwnerRef         string              `gorm:"column:owner_ref;not null"`
	CartID           *uuid.UUID          `gorm:"column:cart_id;type:uuid"`
	IsDirect         bool                `gorm:"column:is_direct;not null;default:false"`
	AllowOverselling bool                `gorm:"column:allow_overselling;not null;default:false"`
	Currency         string              `gorm:"column:currency;not null"`
	SubtotalAmount   decimal.Decimal     `gorm:"column:subtotal_amount;type:numeric(12,2);not null"`
	DiscountAmount   decimal.Decimal     `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	ShippingAmount   decimal.Decimal     `gorm:"column:shipping_amount;type:numeric(12,2);not null"`
	TotalAmount      decimal.Decimal     `gorm:"column:total_amount;type:numeric(12,2);not null"`
	AmountPaid       decimal.Decimal     `gorm:"column:amount_paid;type:numeric(12,2);not null"`
	DiscountID       *uuid.UUID          `gorm:"column:discount_id;type:uuid"`
	DiscountCode     *string             `gorm:"column:discount_code"`
	OrderStatus      enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'pending'"`
	PaymentStatus    enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	PaidAt           *time.Time          `gorm:"column:paid_at"`
	CancelledAt      *time.Time          `gorm:"column:cancelled_at"`
	FulfilledAt      *time.Time          `gorm:"column:fulfilled_at"`
	Items            []OrderItem         `gorm:"foreignKey:OrderID"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
