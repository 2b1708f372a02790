package inventory

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Repository is the only writer of inventory_items. Every mutation is a single
// relative-arithmetic UPDATE so concurrent callers never lose updates.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error)
	FindByProduct(ctx context.Context, productID uuid.UUID) ([]models.InventoryItem, error)
	FindByProductAndLocation(ctx context.Context, productID uuid.UUID, variantID, locationID *uuid.UUID) (*models.InventoryItem, error)
	FindBestForProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*models.InventoryItem, error)
	IncrementReserved(ctx context.Context, itemID uuid.UUID, delta int) error
	DecrementReserved(ctx context.Context, itemID uuid.UUID, delta int) error
	IncrementAvailable(ctx context.Context, itemID uuid.UUID, delta int) error
	DecrementAvailable(ctx context.Context, itemID uuid.UUID, delta int) error
	ReserveIfAvailable(ctx context.Context, itemID uuid.UUID, qty int) (bool, error)
	Consume(ctx context.Context, itemID uuid.UUID, qty int) error
	ShrinkAvailable(ctx context.Context, itemID uuid.UUID, qty int) (bool, error)
}

// ItemRef addresses one ledger row. A nil LocationID lets Resolve pick the
// location with the most sellable stock.
type ItemRef struct {
	ProductID  uuid.UUID
	VariantID  *uuid.UUID
	LocationID *uuid.UUID
}

// StockRequest is a quantity wanted against one ledger row.
type StockRequest struct {
	ItemRef
	Quantity int
}
