package cart

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
)

const (
	defaultHoldTTL   = 30 * time.Minute
	defaultSweepSize = 200
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type stockResolver interface {
	Resolve(ctx context.Context, tx *gorm.DB, ref inventory.ItemRef) (*models.InventoryItem, error)
}

// Service manages short-lived stock holds for active carts.
type Service interface {
	ReserveCartStock(ctx context.Context, cartID uuid.UUID, items []inventory.StockRequest) ([]models.CartReservation, error)
	ReleaseCartStock(ctx context.Context, cartID uuid.UUID) (int, error)
	ExtendCartReservation(ctx context.Context, cartID uuid.UUID) (time.Time, error)
	CleanupExpiredCartReservations(ctx context.Context) (SweepResult, error)
	ConvertCartReservation(ctx context.Context, tx *gorm.DB, cartID, orderID uuid.UUID) ([]models.CartReservation, error)
	ActiveHolds(ctx context.Context, cartID uuid.UUID) ([]models.CartReservation, error)
}

// SweepResult summarizes one expiry pass.
type SweepResult struct {
	Carts int
	Holds int
	Units int
}

// ServiceParams wires the cart reservation service.
type ServiceParams struct {
	Reservations ReservationRepository
	Inventory    inventory.Repository
	Resolver     stockResolver
	Tx           txRunner
	Logger       *logger.Logger
	Metrics      *metrics.ReservationMetrics
	HoldTTL      time.Duration
	SweepSize    int
	Now          func() time.Time
}

type service struct {
	holds     ReservationRepository
	inventory inventory.Repository
	resolver  stockResolver
	tx        txRunner
	logg      *logger.Logger
	metrics   *metrics.ReservationMetrics
	ttl       time.Duration
	sweepSize int
	now       func() time.Time
}

// Shortfall names a product the cart could not hold.
type Shortfall struct {
	ProductID uuid.UUID  `json:"product_id"`
	VariantID *uuid.UUID `json:"variant_id,omitempty"`
	Requested int        `json:"requested"`
	Available int        `json:"available"`
}

// NewService builds the cart reservation service.
func NewService(params ServiceParams) (Service, error) {
	if params.Reservations == nil {
		return nil, fmt.Errorf("reservation repository required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	if params.Resolver == nil {
		return nil, fmt.Errorf("stock resolver required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	ttl := params.HoldTTL
	if ttl <= 0 {
		ttl = defaultHoldTTL
	}
	sweepSize := params.SweepSize
	if sweepSize <= 0 {
		sweepSize = defaultSweepSize
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		holds:     params.Reservations,
		inventory: params.Inventory,
		resolver:  params.Resolver,
		tx:        params.Tx,
		logg:      params.Logger,
		metrics:   params.Metrics,
		ttl:       ttl,
		sweepSize: sweepSize,
		now:       now,
	}, nil
}

// ReserveCartStock replaces the cart's holds with holds for items. The batch is
// all-or-nothing: any shortfall rolls back every increment.
func (s *service) ReserveCartStock(ctx context.Context, cartID uuid.UUID, items []inventory.StockRequest) ([]models.CartReservation, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	if len(items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	for _, item := range items {
		if item.ProductID == uuid.Nil {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if item.Quantity <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be positive")
		}
	}

	now := s.now().UTC()
	var created []models.CartReservation
	var released int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		released, err = s.releaseActive(ctx, tx, cartID, enums.CartReservationReleased, now)
		if err != nil {
			return err
		}

		stock := s.inventory.WithTx(tx)
		rows := make([]models.InventoryItem, len(items))
		wanted := map[uuid.UUID]int{}
		for i, item := range items {
			row, err := s.resolver.Resolve(ctx, tx, item.ItemRef)
			if err != nil {
				return err
			}
			rows[i] = *row
			wanted[row.ID] += item.Quantity
		}

		var shortfalls []Shortfall
		seen := map[uuid.UUID]bool{}
		for i, row := range rows {
			if seen[row.ID] {
				continue
			}
			seen[row.ID] = true
			if wanted[row.ID] > row.EffectiveStock() {
				shortfalls = append(shortfalls, Shortfall{
					ProductID: row.ProductID,
					VariantID: items[i].VariantID,
					Requested: wanted[row.ID],
					Available: row.EffectiveStock(),
				})
			}
		}
		if len(shortfalls) > 0 {
			return insufficientStock(shortfalls)
		}

		expiresAt := now.Add(s.ttl)
		created = make([]models.CartReservation, 0, len(items))
		for i, item := range items {
			row := rows[i]
			ok, err := stock.ReserveIfAvailable(ctx, row.ID, item.Quantity)
			if err != nil {
				return err
			}
			if !ok {
				return insufficientStock([]Shortfall{{
					ProductID: row.ProductID,
					VariantID: item.VariantID,
					Requested: item.Quantity,
				}})
			}
			created = append(created, models.CartReservation{
				ID:              uuid.New(),
				CartID:          cartID,
				InventoryItemID: row.ID,
				ProductID:       row.ProductID,
				VariantID:       row.VariantID,
				Quantity:        item.Quantity,
				Status:          enums.CartReservationActive,
				ExpiresAt:       expiresAt,
			})
		}
		return s.holds.WithTx(tx).CreateMany(ctx, created)
	})
	if err != nil {
		return nil, err
	}

	s.metrics.AddHolds("released", released)
	s.metrics.AddHolds("reserved", len(created))
	if s.logg != nil {
		logCtx := s.logg.WithCartID(ctx, cartID.String())
		logCtx = s.logg.WithField(logCtx, "holds", len(created))
		s.logg.Info(logCtx, "cart stock reserved")
	}
	return created, nil
}

// ReleaseCartStock returns every active hold of the cart to the sellable pool.
// A second call finds nothing active and returns 0.
func (s *service) ReleaseCartStock(ctx context.Context, cartID uuid.UUID) (int, error) {
	if cartID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	var released int
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		released, err = s.releaseActive(ctx, tx, cartID, enums.CartReservationReleased, s.now().UTC())
		return err
	})
	if err != nil {
		return 0, err
	}
	s.metrics.AddHolds("released", released)
	return released, nil
}

func (s *service) ExtendCartReservation(ctx context.Context, cartID uuid.UUID) (time.Time, error) {
	if cartID == uuid.Nil {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	expiresAt := s.now().UTC().Add(s.ttl)
	n, err := s.holds.ExtendActive(ctx, cartID, expiresAt)
	if err != nil {
		return time.Time{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "extend cart reservation")
	}
	if n == 0 {
		return time.Time{}, pkgerrors.New(pkgerrors.CodeNotFound, "cart has no active reservation")
	}
	return expiresAt, nil
}

// CleanupExpiredCartReservations expires holds whose deadline passed. Each cart
// runs in its own transaction; failures are collected and the sweep continues.
func (s *service) CleanupExpiredCartReservations(ctx context.Context) (SweepResult, error) {
	var result SweepResult
	now := s.now().UTC()
	cartIDs, err := s.holds.ListExpiredCartIDs(ctx, now, s.sweepSize)
	if err != nil {
		return result, fmt.Errorf("list expired carts: %w", err)
	}

	var errs error
	for _, cartID := range cartIDs {
		var holds, units int
		txErr := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.holds.WithTx(tx)
			expired, err := repo.LockExpiredByCart(ctx, cartID, now)
			if err != nil {
				return err
			}
			for _, hold := range expired {
				moved, err := repo.Transition(ctx, hold.ID, enums.CartReservationExpired, now, nil)
				if err != nil {
					return err
				}
				if !moved {
					continue
				}
				if err := s.inventory.WithTx(tx).DecrementReserved(ctx, hold.InventoryItemID, hold.Quantity); err != nil {
					return err
				}
				holds++
				units += hold.Quantity
			}
			return nil
		})
		if txErr != nil {
			errs = multierr.Append(errs, fmt.Errorf("cart %s: %w", cartID, txErr))
			continue
		}
		if holds > 0 {
			result.Carts++
			result.Holds += holds
			result.Units += units
		}
	}

	s.metrics.AddHolds("expired", result.Holds)
	if s.logg != nil && (result.Holds > 0 || errs != nil) {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"carts": result.Carts,
			"holds": result.Holds,
			"units": result.Units,
		})
		s.logg.Info(logCtx, "expired cart reservations released")
	}
	return result, errs
}

// ConvertCartReservation hands the cart's active holds over to an order inside
// the caller's transaction. Reserved quantities stay as they are.
func (s *service) ConvertCartReservation(ctx context.Context, tx *gorm.DB, cartID, orderID uuid.UUID) ([]models.CartReservation, error) {
	if tx == nil {
		return nil, fmt.Errorf("transaction required")
	}
	repo := s.holds.WithTx(tx)
	active, err := repo.ListActiveByCart(ctx, cartID)
	if err != nil {
		return nil, err
	}
	now := s.now().UTC()
	converted := make([]models.CartReservation, 0, len(active))
	for _, hold := range active {
		moved, err := repo.Transition(ctx, hold.ID, enums.CartReservationConverted, now, &orderID)
		if err != nil {
			return nil, err
		}
		if !moved {
			continue
		}
		hold.Status = enums.CartReservationConverted
		hold.ConvertedOrderID = &orderID
		converted = append(converted, hold)
	}
	s.metrics.AddHolds("converted", len(converted))
	return converted, nil
}

func (s *service) ActiveHolds(ctx context.Context, cartID uuid.UUID) ([]models.CartReservation, error) {
	if cartID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "cart id required")
	}
	return s.holds.ListActiveByCart(ctx, cartID)
}

func (s *service) releaseActive(ctx context.Context, tx *gorm.DB, cartID uuid.UUID, to enums.CartReservationStatus, now time.Time) (int, error) {
	repo := s.holds.WithTx(tx)
	active, err := repo.ListActiveByCart(ctx, cartID)
	if err != nil {
		return 0, err
	}
	released := 0
	for _, hold := range active {
		moved, err := repo.Transition(ctx, hold.ID, to, now, nil)
		if err != nil {
			return 0, err
		}
		if !moved {
			continue
		}
		if err := s.inventory.WithTx(tx).DecrementReserved(ctx, hold.InventoryItemID, hold.Quantity); err != nil {
			return 0, err
		}
		released++
	}
	return released, nil
}

func insufficientStock(shortfalls []Shortfall) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock for cart").
		WithDetails(map[string]any{"shortfalls": shortfalls})
}
