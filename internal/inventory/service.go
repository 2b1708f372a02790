package inventory

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service exposes ledger reads and admin adjustments.
type Service interface {
	ListByProduct(ctx context.Context, productID uuid.UUID) ([]StockView, error)
	Resolve(ctx context.Context, tx *gorm.DB, ref ItemRef) (*models.InventoryItem, error)
	Adjust(ctx context.Context, input AdjustInput) (*StockView, error)
}

// StockView is the read model returned to callers.
type StockView struct {
	ID                uuid.UUID  `json:"id"`
	ProductID         uuid.UUID  `json:"product_id"`
	VariantID         *uuid.UUID `json:"variant_id,omitempty"`
	LocationID        *uuid.UUID `json:"location_id,omitempty"`
	AvailableQuantity int        `json:"available_quantity"`
	ReservedQuantity  int        `json:"reserved_quantity"`
	EffectiveStock    int        `json:"effective_stock"`
}

// AdjustInput restocks (positive delta) or shrinks (negative delta) one row.
type AdjustInput struct {
	ItemID uuid.UUID
	Delta  int
	Reason string
}

type service struct {
	repo Repository
	tx   txRunner
	logg *logger.Logger
}

// NewService builds the inventory service.
func NewService(repo Repository, tx txRunner, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	return &service{repo: repo, tx: tx, logg: logg}, nil
}

func (s *service) ListByProduct(ctx context.Context, productID uuid.UUID) ([]StockView, error) {
	if productID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	items, err := s.repo.FindByProduct(ctx, productID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load inventory")
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "inventory not found for product")
	}
	views := make([]StockView, 0, len(items))
	for _, item := range items {
		views = append(views, toView(item))
	}
	return views, nil
}

// Resolve finds the ledger row for ref. Without a location it picks the row
// with the largest effective stock.
func (s *service) Resolve(ctx context.Context, tx *gorm.DB, ref ItemRef) (*models.InventoryItem, error) {
	if ref.ProductID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
	}
	repo := s.repo.WithTx(tx)
	if ref.LocationID != nil {
		return repo.FindByProductAndLocation(ctx, ref.ProductID, ref.VariantID, ref.LocationID)
	}
	return repo.FindBestForProduct(ctx, ref.ProductID, ref.VariantID)
}

func (s *service) Adjust(ctx context.Context, input AdjustInput) (*StockView, error) {
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "inventory item id required")
	}
	if input.Delta == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delta must be non-zero")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	var updated *models.InventoryItem
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if input.Delta > 0 {
			if err := repo.IncrementAvailable(ctx, input.ItemID, input.Delta); err != nil {
				return err
			}
		} else {
			ok, err := repo.ShrinkAvailable(ctx, input.ItemID, -input.Delta)
			if err != nil {
				return err
			}
			if !ok {
				if _, err := repo.FindByID(ctx, input.ItemID); err != nil {
					return err
				}
				return pkgerrors.New(pkgerrors.CodeStateConflict, "adjustment would drop available below reserved")
			}
		}
		item, err := repo.FindByID(ctx, input.ItemID)
		if err != nil {
			return err
		}
		updated = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"inventory_item_id": input.ItemID.String(),
			"delta":             input.Delta,
			"reason":            reason,
		})
		s.logg.Info(logCtx, "inventory adjusted")
	}
	view := toView(*updated)
	return &view, nil
}

func toView(item models.InventoryItem) StockView {
	return StockView{
		ID:                item.ID,
		ProductID:         item.ProductID,
		VariantID:         item.VariantID,
		LocationID:        item.LocationID,
		AvailableQuantity: item.AvailableQuantity,
		ReservedQuantity:  item.ReservedQuantity,
		EffectiveStock:    item.EffectiveStock(),
	}
}
