package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// PaymentTransaction is one provider payment attempt against an order.
type PaymentTransaction struct {
	ID                uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	OrderID           uuid.UUID               `gorm:"column:order_id;type:uuid;not null;index"`
	Provider          string                  `gorm:"column:provider;not null"`
	ProviderOrderID   string                  `gorm:"column:provider_order_id;not null;uniqueIndex"`
	ProviderPaymentID *string                 `gorm:"column:provider_payment_id"`
	Amount            decimal.Decimal         `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency          string                  `gorm:"column:currency;not null"`
	Status            enums.TransactionStatus `gorm:"column:status;type:text;not null;default:'pending'"`
	WebhookVerified   bool                    `gorm:"column:webhook_verified;not null;default:false"`
	RefundedAmount    decimal.Decimal         `gorm:"column:refunded_amount;type:numeric(12,2);not null"`
	ErrorCode         *string                 `gorm:"column:error_code"`
	ErrorDescription  *string                 `gorm:"column:error_description"`
	NeedsReview       bool                    `gorm:"column:needs_review;not null;default:false"`
	CapturedAt        *time.Time              `gorm:"column:captured_at"`
	CreatedAt         time.Time               `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time               `gorm:"column:updated_at;autoUpdateTime"`
}
