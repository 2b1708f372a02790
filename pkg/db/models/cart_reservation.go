package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CartReservation is a time-limited stock hold owned by an active cart.
type CartReservation struct {
	ID               uuid.UUID                   `gorm:"column:id;type:uuid;primaryKey"`
	CartID           uuid.UUID                   `gorm:"column:cart_id;type:uuid;not null;index"`
	InventoryItemID  uuid.UUID                   `gorm:"column:inventory_item_id;type:uuid;not null"`
	ProductID        uuid.UUID                   `gorm:"column:product_id;type:uuid;not null"`
	VariantID        *uuid.UUID                  `gorm:"column:variant_id;type:uuid"`
	Quantity         int                         `gorm:"column:quantity;not null"`
	Status           enums.CartReservationStatus `gorm:"column:status;type:text;not null;default:'active'"`
	ExpiresAt        time.Time                   `gorm:"column:expires_at;not null;index"`
	ReleasedAt       *time.Time                  `gorm:"column:released_at"`
	ConvertedOrderID *uuid.UUID                  `gorm:"column:converted_order_id;type:uuid"`
	CreatedAt        time.Time                   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time                   `gorm:"column:updated_at;autoUpdateTime"`
}
