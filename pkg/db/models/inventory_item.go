package models

import (
	"time"

	"github.com/google/uuid"
)

// InventoryItem is the ledger row for one (product, variant, location) triple.
type InventoryItem struct {
	ID                uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	ProductID         uuid.UUID  `gorm:"column:product_id;type:uuid;not null;index"`
	VariantID         *uuid.UUID `gorm:"column:variant_id;type:uuid"`
	LocationID        *uuid.UUID `gorm:"column:location_id;type:uuid"`
	AvailableQuantity int        `gorm:"column:available_quantity;not null;default:0"`
	ReservedQuantity  int        `gorm:"column:reserved_quantity;not null;default:0"`
	CreatedAt         time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// EffectiveStock is available minus reserved, clamped to zero.
func (i InventoryItem) EffectiveStock() int {
	if eff := i.AvailableQuantity - i.ReservedQuantity; eff > 0 {
		return eff
	}
	return 0
}
