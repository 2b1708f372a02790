package inventory

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds an inventory repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, item *models.InventoryItem) (*models.InventoryItem, error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	if item.AvailableQuantity < 0 || item.ReservedQuantity < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantities must be non-negative")
	}
	if err := r.db.WithContext(ctx).Create(item).Error; err != nil {
		return nil, err
	}
	return item, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.InventoryItem, error) {
	var item models.InventoryItem
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&item).Error; err != nil {
		return nil, notFound(err, "inventory item not found")
	}
	return &item, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.InventoryItem, error) {
	out := make(map[uuid.UUID]models.InventoryItem, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var items []models.InventoryItem
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	for _, item := range items {
		out[item.ID] = item
	}
	return out, nil
}

func (r *repository) FindByProduct(ctx context.Context, productID uuid.UUID) ([]models.InventoryItem, error) {
	var items []models.InventoryItem
	err := r.db.WithContext(ctx).
		Where("product_id = ?", productID).
		Order("created_at ASC").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (r *repository) FindByProductAndLocation(ctx context.Context, productID uuid.UUID, variantID, locationID *uuid.UUID) (*models.InventoryItem, error) {
	query := r.db.WithContext(ctx).Where("product_id = ?", productID)
	query = whereOptional(query, "variant_id", variantID)
	query = whereOptional(query, "location_id", locationID)

	var item models.InventoryItem
	if err := query.First(&item).Error; err != nil {
		return nil, notFound(err, "inventory not found for product")
	}
	return &item, nil
}

func (r *repository) FindBestForProduct(ctx context.Context, productID uuid.UUID, variantID *uuid.UUID) (*models.InventoryItem, error) {
	query := r.db.WithContext(ctx).Where("product_id = ?", productID)
	query = whereOptional(query, "variant_id", variantID)

	var item models.InventoryItem
	err := query.
		Order("(available_quantity - reserved_quantity) DESC").
		Order("created_at ASC").
		First(&item).Error
	if err != nil {
		return nil, notFound(err, "inventory not found for product")
	}
	return &item, nil
}

func (r *repository) IncrementReserved(ctx context.Context, itemID uuid.UUID, delta int) error {
	return r.apply(ctx, itemID, delta, "reserved_quantity = reserved_quantity + ?", "")
}

func (r *repository) DecrementReserved(ctx context.Context, itemID uuid.UUID, delta int) error {
	return r.apply(ctx, itemID, delta, "reserved_quantity = reserved_quantity - ?", "reserved_quantity >= ?")
}

func (r *repository) IncrementAvailable(ctx context.Context, itemID uuid.UUID, delta int) error {
	return r.apply(ctx, itemID, delta, "available_quantity = available_quantity + ?", "")
}

func (r *repository) DecrementAvailable(ctx context.Context, itemID uuid.UUID, delta int) error {
	return r.apply(ctx, itemID, delta, "available_quantity = available_quantity - ?", "available_quantity >= ?")
}

// ReserveIfAvailable increments reserved only while effective stock covers qty.
// It reports false when the guard rejected the row.
func (r *repository) ReserveIfAvailable(ctx context.Context, itemID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := r.db.WithContext(ctx).Exec(
		"UPDATE inventory_items SET reserved_quantity = reserved_quantity + ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND available_quantity - reserved_quantity >= ?",
		qty, itemID, qty,
	)
	if res.Error != nil {
		return false, stockWriteError(res.Error, itemID)
	}
	return res.RowsAffected == 1, nil
}

// Consume removes shipped stock: available and reserved drop together.
func (r *repository) Consume(ctx context.Context, itemID uuid.UUID, qty int) error {
	if qty <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := r.db.WithContext(ctx).Exec(
		"UPDATE inventory_items SET available_quantity = available_quantity - ?, reserved_quantity = reserved_quantity - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND available_quantity >= ? AND reserved_quantity >= ?",
		qty, qty, itemID, qty, qty,
	)
	if res.Error != nil {
		return stockWriteError(res.Error, itemID)
	}
	if res.RowsAffected == 0 {
		return pkgerrors.New(pkgerrors.CodeStateConflict, "insufficient stock to fulfill").
			WithDetails(map[string]any{"inventory_item_id": itemID, "quantity": qty})
	}
	return nil
}

// ShrinkAvailable lowers available stock without dropping below what is reserved.
func (r *repository) ShrinkAvailable(ctx context.Context, itemID uuid.UUID, qty int) (bool, error) {
	if qty <= 0 {
		return false, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
	}
	res := r.db.WithContext(ctx).Exec(
		"UPDATE inventory_items SET available_quantity = available_quantity - ?, updated_at = CURRENT_TIMESTAMP WHERE id = ? AND available_quantity - ? >= reserved_quantity",
		qty, itemID, qty,
	)
	if res.Error != nil {
		return false, stockWriteError(res.Error, itemID)
	}
	return res.RowsAffected == 1, nil
}

func (r *repository) apply(ctx context.Context, itemID uuid.UUID, delta int, set, guard string) error {
	if delta <= 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "delta must be positive")
	}
	sql := fmt.Sprintf("UPDATE inventory_items SET %s, updated_at = CURRENT_TIMESTAMP WHERE id = ?", set)
	args := []any{delta, itemID}
	if guard != "" {
		sql += " AND " + guard
		args = append(args, delta)
	}
	res := r.db.WithContext(ctx).Exec(sql, args...)
	if res.Error != nil {
		return stockWriteError(res.Error, itemID)
	}
	if res.RowsAffected == 0 {
		if guard == "" {
			return pkgerrors.New(pkgerrors.CodeNotFound, "inventory item not found")
		}
		return pkgerrors.New(pkgerrors.CodeStateConflict, "inventory quantity would go negative").
			WithDetails(map[string]any{"inventory_item_id": itemID, "delta": delta})
	}
	return nil
}

// stockWriteError turns a tripped non-negative CHECK into a state conflict.
func stockWriteError(err error, itemID uuid.UUID) error {
	if db.IsCheckViolation(err, "") {
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "inventory quantity would go negative").
			WithDetails(map[string]any{"inventory_item_id": itemID})
	}
	return err
}

func whereOptional(query *gorm.DB, column string, value *uuid.UUID) *gorm.DB {
	if value == nil {
		return query.Where(column + " IS NULL")
	}
	return query.Where(column+" = ?", *value)
}

func notFound(err error, msg string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.New(pkgerrors.CodeNotFound, msg)
	}
	return err
}
