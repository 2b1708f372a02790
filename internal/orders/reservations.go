package orders

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// ValidateStockAvailability is read-only. Quantities for the same inventory row
// are summed before comparing against effective stock; overselling makes any
// shortfall acceptable but still reports it.
func (s *service) ValidateStockAvailability(ctx context.Context, items []inventory.StockRequest, allowOverselling bool) (*StockCheck, error) {
	if err := validateRequests(items); err != nil {
		return nil, err
	}
	_, shortfalls, err := s.resolveAll(ctx, nil, items)
	if err != nil {
		return nil, err
	}
	return &StockCheck{
		Valid:      len(shortfalls) == 0 || allowOverselling,
		Shortfalls: shortfalls,
	}, nil
}

// ReserveStockForOrder claims stock for every request or none. With
// allowOverselling the claim proceeds past effective stock and each shortfall
// is logged and queued as an inventory.oversold event.
func (s *service) ReserveStockForOrder(ctx context.Context, tx *gorm.DB, orderNumber, owner string, items []inventory.StockRequest, allowOverselling bool) ([]Claim, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if err := validateRequests(items); err != nil {
		return nil, err
	}
	rows, shortfalls, err := s.resolveAll(ctx, tx, items)
	if err != nil {
		return nil, err
	}
	if len(shortfalls) > 0 && !allowOverselling {
		return nil, insufficientStock(shortfalls)
	}

	stock := s.inventory.WithTx(tx)
	claims := make([]Claim, 0, len(items))
	for i, item := range items {
		row := rows[i]
		if allowOverselling {
			if err := stock.IncrementReserved(ctx, row.ID, item.Quantity); err != nil {
				return nil, err
			}
		} else {
			ok, err := stock.ReserveIfAvailable(ctx, row.ID, item.Quantity)
			if err != nil {
				return nil, err
			}
			if !ok {
				return nil, insufficientStock([]Shortfall{{
					ProductID:       row.ProductID,
					VariantID:       row.VariantID,
					InventoryItemID: row.ID,
					Requested:       item.Quantity,
				}})
			}
		}
		claims = append(claims, Claim{Item: row, Quantity: item.Quantity, line: i})
	}

	for _, shortfall := range shortfalls {
		if err := s.recordOversell(ctx, tx, orderNumber, owner, shortfall); err != nil {
			return nil, err
		}
	}
	return claims, nil
}

func (s *service) recordOversell(ctx context.Context, tx *gorm.DB, orderNumber, owner string, shortfall Shortfall) error {
	s.metrics.IncOversold()
	if s.logg != nil {
		logCtx := s.logg.WithOrderNumber(ctx, orderNumber)
		logCtx = s.logg.WithFields(logCtx, map[string]any{
			"owner":             owner,
			"inventory_item_id": shortfall.InventoryItemID.String(),
			"requested":         shortfall.Requested,
			"effective_stock":   shortfall.Available,
		})
		s.logg.Warn(logCtx, "order reserved beyond available stock")
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventInventoryOversold,
		AggregateType: enums.AggregateInventoryItem,
		AggregateID:   shortfall.InventoryItemID,
		Data: payloads.InventoryOversoldEvent{
			OrderNumber:     orderNumber,
			InventoryItemID: shortfall.InventoryItemID,
			ProductID:       shortfall.ProductID,
			Requested:       shortfall.Requested,
			EffectiveStock:  shortfall.Available,
			Shortfall:       shortfall.Requested - shortfall.Available,
		},
	})
}

// FulfillOrderInventory ships every reserved claim: available and reserved both
// drop by the claimed quantity.
func (s *service) FulfillOrderInventory(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.OrderItem, error) {
	return s.moveClaims(ctx, tx, orderID, enums.InventoryClaimReserved, enums.InventoryClaimFulfilled,
		func(stock inventory.Repository, item models.OrderItem) error {
			return stock.Consume(ctx, item.InventoryItemID, item.Quantity)
		})
}

// ReleaseReservation hands reserved claims back to the sellable pool.
func (s *service) ReleaseReservation(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) ([]models.OrderItem, error) {
	return s.moveClaims(ctx, tx, orderID, enums.InventoryClaimReserved, enums.InventoryClaimReleased,
		func(stock inventory.Repository, item models.OrderItem) error {
			return stock.DecrementReserved(ctx, item.InventoryItemID, item.Quantity)
		})
}

// ProcessOrderReturn puts returned units back into available stock. An empty
// lines slice returns everything still outstanding on fulfilled items.
func (s *service) ProcessOrderReturn(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, lines []ReturnLine) ([]models.OrderItem, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	items, err := repo.FindItems(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	byID := make(map[uuid.UUID]models.OrderItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}

	if len(lines) == 0 {
		for _, item := range items {
			if item.InventoryStatus == enums.InventoryClaimFulfilled && item.Quantity > item.ReturnedQuantity {
				lines = append(lines, ReturnLine{OrderItemID: item.ID, Quantity: item.Quantity - item.ReturnedQuantity})
			}
		}
		if len(lines) == 0 {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no fulfilled items to return")
		}
	}

	stock := s.inventory.WithTx(tx)
	var returned []models.OrderItem
	for _, line := range lines {
		item, ok := byID[line.OrderItemID]
		if !ok {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order item not found").
				WithDetails(map[string]any{"order_item_id": line.OrderItemID})
		}
		if line.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "return quantity must be positive")
		}
		if !item.InventoryStatus.CanTransitionTo(enums.InventoryClaimReturned) {
			return nil, claimConflict(item, enums.InventoryClaimReturned)
		}
		added, err := repo.AddReturnedQuantity(ctx, item.ID, line.Quantity)
		if err != nil {
			return nil, err
		}
		if !added {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "return quantity exceeds outstanding quantity").
				WithDetails(map[string]any{"order_item_id": item.ID, "outstanding": item.Quantity - item.ReturnedQuantity})
		}
		if err := stock.IncrementAvailable(ctx, item.InventoryItemID, line.Quantity); err != nil {
			return nil, err
		}
		item.ReturnedQuantity += line.Quantity
		if item.ReturnedQuantity == item.Quantity {
			moved, err := repo.TransitionItem(ctx, item.ID, enums.InventoryClaimFulfilled, enums.InventoryClaimReturned)
			if err != nil {
				return nil, err
			}
			if moved {
				item.InventoryStatus = enums.InventoryClaimReturned
			}
		}
		byID[item.ID] = item
		returned = append(returned, item)
	}
	return returned, nil
}

func (s *service) moveClaims(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, from, to enums.InventoryClaimStatus, apply func(inventory.Repository, models.OrderItem) error) ([]models.OrderItem, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	repo := s.repo.WithTx(tx)
	items, err := repo.FindItems(ctx, orderID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order items")
	}
	stock := s.inventory.WithTx(tx)
	var moved []models.OrderItem
	for _, item := range items {
		if item.InventoryStatus != from {
			continue
		}
		ok, err := repo.TransitionItem(ctx, item.ID, from, to)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if err := apply(stock, item); err != nil {
			return nil, err
		}
		item.InventoryStatus = to
		moved = append(moved, item)
	}
	if len(moved) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order has no "+string(from)+" items").
			WithDetails(map[string]any{"order_id": orderID, "target": to})
	}
	return moved, nil
}

func (s *service) resolveAll(ctx context.Context, tx *gorm.DB, items []inventory.StockRequest) ([]models.InventoryItem, []Shortfall, error) {
	rows := make([]models.InventoryItem, len(items))
	wanted := map[uuid.UUID]int{}
	for i, item := range items {
		row, err := s.resolver.Resolve(ctx, tx, item.ItemRef)
		if err != nil {
			return nil, nil, err
		}
		rows[i] = *row
		wanted[row.ID] += item.Quantity
	}

	var shortfalls []Shortfall
	seen := map[uuid.UUID]bool{}
	for _, row := range rows {
		if seen[row.ID] {
			continue
		}
		seen[row.ID] = true
		if wanted[row.ID] > row.EffectiveStock() {
			shortfalls = append(shortfalls, Shortfall{
				ProductID:       row.ProductID,
				VariantID:       row.VariantID,
				InventoryItemID: row.ID,
				Requested:       wanted[row.ID],
				Available:       row.EffectiveStock(),
			})
		}
	}
	return rows, shortfalls, nil
}

func validateRequests(items []inventory.StockRequest) error {
	if len(items) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	}
	return nil
}

func insufficientStock(shortfalls []Shortfall) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for order").
		WithDetails(map[string]any{"shortfalls": shortfalls})
}

func claimConflict(item models.OrderItem, to enums.InventoryClaimStatus) error {
	return pkgerrors.New(pkgerrors.CodeStateConflict, "inventory claim transition not allowed").
		WithDetails(map[string]any{
			"order_item_id": item.ID,
			"from":          item.InventoryStatus,
			"to":            to,
		})
}
