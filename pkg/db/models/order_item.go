package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderItem is one order line and the inventory claim it holds.
type OrderItem struct {
	ID               uuid.UUID                  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID                  `gorm:"column:order_id;type:uuid;not null;index"`
	InventoryItemID  uuid.UUID                  `gorm:"column:inventory_item_id;type:uuid;not null"`
	ProductID        uuid.UUID                  `gorm:"column:product_id;type:uuid;not null"`
	VariantID        *uuid.UUID                 `gorm:"column:variant_id;type:uuid"`
	LocationID       *uuid.UUID                 `gorm:"column:location_id;type:uuid"`
	Quantity         int                        `gorm:"column:quantity;not null"`
	UnitPrice        decimal.Decimal            `gorm:"column:unit_price;type:numeric(12,2);not null"`
	DiscountAmount   decimal.Decimal            `gorm:"column:discount_amount;type:numeric(12,2);not null"`
	InventoryStatus  enums.InventoryClaimStatus `gorm:"column:inventory_status;type:text;not null;default:'reserved'"`
	ReturnedQuantity int                        `gorm:"column:returned_quantity;not null;default:0"`
	CreatedAt        time.Time                  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                  `gorm:"column:updated_at;autoUpdateTime"`
}
