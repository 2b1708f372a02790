package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Invoice is generated once per paid order.
type Invoice struct {
	ID            uuid.UUID       `gorm:"column:id;type:uuid;primaryKey"`
	InvoiceNumber string          `gorm:"column:invoice_number;not null;uniqueIndex"`
	OrderID       uuid.UUID       `gorm:"column:order_id;type:uuid;not null;uniqueIndex"`
	OrderNumber   string          `gorm:"column:order_number;not null"`
	Amount        decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null"`
	Currency      string          `gorm:"column:currency;not null"`
	IssuedAt      time.Time       `gorm:"column:issued_at;not null"`
	CreatedAt     time.Time       `gorm:"column:created_at;autoCreateTime"`
}
