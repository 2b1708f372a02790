package cart

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/pkg/db/dbtest"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fixture struct {
	svc   Service
	conn  *gorm.DB
	clock *fakeClock
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

type failingInventory struct {
	inventory.Repository
	failOn uuid.UUID
}

func (f *failingInventory) WithTx(tx *gorm.DB) inventory.Repository {
	return &failingInventory{Repository: f.Repository.WithTx(tx), failOn: f.failOn}
}

func (f *failingInventory) ReserveIfAvailable(ctx context.Context, id uuid.UUID, qty int) (bool, error) {
	if id == f.failOn {
		return false, errors.New("forced failure")
	}
	return f.Repository.ReserveIfAvailable(ctx, id, qty)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := dbtest.Client(t)
	invRepo := inventory.NewRepository(conn)
	resolver, err := inventory.NewService(invRepo, client, nil)
	require.NoError(t, err)
	clock := &fakeClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc, err := NewService(ServiceParams{
		Reservations: NewReservationRepository(conn),
		Inventory:    invRepo,
		Resolver:     resolver,
		Tx:           client,
		Now:          clock.Now,
	})
	require.NoError(t, err)
	return &fixture{svc: svc, conn: conn, clock: clock}
}

func (f *fixture) seed(t *testing.T, available, reserved int) models.InventoryItem {
	t.Helper()
	item := models.InventoryItem{
		ID:                uuid.New(),
		ProductID:         uuid.New(),
		AvailableQuantity: available,
		ReservedQuantity:  reserved,
	}
	require.NoError(t, f.conn.Create(&item).Error)
	return item
}

func (f *fixture) reserved(t *testing.T, id uuid.UUID) int {
	t.Helper()
	var item models.InventoryItem
	require.NoError(t, f.conn.First(&item, "id = ?", id).Error)
	require.GreaterOrEqual(t, item.ReservedQuantity, 0)
	require.LessOrEqual(t, item.ReservedQuantity, item.AvailableQuantity)
	return item.ReservedQuantity
}

func request(item models.InventoryItem, qty int) inventory.StockRequest {
	return inventory.StockRequest{ItemRef: inventory.ItemRef{ProductID: item.ProductID}, Quantity: qty}
}

func TestReserveCartStockCreatesHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, 10, 2)
	b := f.seed(t, 3, 0)
	cartID := uuid.New()

	holds, err := f.svc.ReserveCartStock(ctx, cartID, []inventory.StockRequest{request(a, 4), request(b, 3)})
	require.NoError(t, err)
	require.Len(t, holds, 2)
	for _, hold := range holds {
		require.Equal(t, enums.CartReservationActive, hold.Status)
		require.True(t, hold.ExpiresAt.Equal(f.clock.now.Add(30*time.Minute)))
	}
	require.Equal(t, 6, f.reserved(t, a.ID))
	require.Equal(t, 3, f.reserved(t, b.ID))
}

func TestReserveCartStockRejectsWholeBatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, 10, 0)
	b := f.seed(t, 5, 0)
	short := f.seed(t, 2, 1)

	_, err := f.svc.ReserveCartStock(ctx, uuid.New(), []inventory.StockRequest{
		request(a, 1), request(b, 2), request(short, 2),
	})
	typed := pkgerrors.As(err)
	require.NotNil(t, typed)
	require.Equal(t, pkgerrors.CodeInsufficientStock, typed.Code())
	details := typed.Details().(map[string]any)
	shortfalls := details["shortfalls"].([]Shortfall)
	require.Len(t, shortfalls, 1)
	require.Equal(t, short.ProductID, shortfalls[0].ProductID)
	require.Equal(t, 1, shortfalls[0].Available)

	require.Zero(t, f.reserved(t, a.ID))
	require.Zero(t, f.reserved(t, b.ID))
	require.Equal(t, 1, f.reserved(t, short.ID))
}

func TestReserveCartStockForcedFailureOnLastItemRollsBack(t *testing.T) {
	client, conn := dbtest.Client(t)
	var items []models.InventoryItem
	for i := 0; i < 4; i++ {
		item := models.InventoryItem{ID: uuid.New(), ProductID: uuid.New(), AvailableQuantity: 10}
		require.NoError(t, conn.Create(&item).Error)
		items = append(items, item)
	}
	invRepo := inventory.NewRepository(conn)
	resolver, err := inventory.NewService(invRepo, client, nil)
	require.NoError(t, err)
	svc, err := NewService(ServiceParams{
		Reservations: NewReservationRepository(conn),
		Inventory:    &failingInventory{Repository: invRepo, failOn: items[len(items)-1].ID},
		Resolver:     resolver,
		Tx:           client,
	})
	require.NoError(t, err)

	reqs := make([]inventory.StockRequest, 0, len(items))
	for _, item := range items {
		reqs = append(reqs, request(item, 2))
	}
	_, err = svc.ReserveCartStock(context.Background(), uuid.New(), reqs)
	require.Error(t, err)

	for _, item := range items {
		var got models.InventoryItem
		require.NoError(t, conn.First(&got, "id = ?", item.ID).Error)
		require.Zero(t, got.ReservedQuantity, "item %s kept a partial hold", item.ID)
	}
	var count int64
	require.NoError(t, conn.Model(&models.CartReservation{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestReserveCartStockReplacesExistingHolds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, 5, 0)
	cartID := uuid.New()

	_, err := f.svc.ReserveCartStock(ctx, cartID, []inventory.StockRequest{request(a, 4)})
	require.NoError(t, err)
	_, err = f.svc.ReserveCartStock(ctx, cartID, []inventory.StockRequest{request(a, 5)})
	require.NoError(t, err)

	require.Equal(t, 5, f.reserved(t, a.ID))
	holds, err := f.svc.ActiveHolds(ctx, cartID)
	require.NoError(t, err)
	require.Len(t, holds, 1)
	require.Equal(t, 5, holds[0].Quantity)
}

func TestReleaseCartStockIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, 5, 0)
	cartID := uuid.New()

	_, err := f.svc.ReserveCartStock(ctx, cartID, []inventory.StockRequest{request(a, 3)})
	require.NoError(t, err)

	n, err := f.svc.ReleaseCartStock(ctx, cartID)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Zero(t, f.reserved(t, a.ID))

	n, err = f.svc.ReleaseCartStock(ctx, cartID)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Zero(t, f.reserved(t, a.ID))
}

func TestExtendCartReservation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, 5, 0)
	cartID := uuid.New()

	_, err := f.svc.ReserveCartStock(ctx, cartID, []inventory.StockRequest{request(a, 2)})
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(20 * time.Minute)
	expiresAt, err := f.svc.ExtendCartReservation(ctx, cartID)
	require.NoError(t, err)
	require.True(t, expiresAt.Equal(f.clock.now.Add(30*time.Minute)))
	require.Equal(t, 2, f.reserved(t, a.ID))

	_, err = f.svc.ExtendCartReservation(ctx, uuid.New())
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}

func TestCleanupExpiredCartReservations(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, 10, 0)
	stale := uuid.New()
	fresh := uuid.New()

	_, err := f.svc.ReserveCartStock(ctx, stale, []inventory.StockRequest{request(a, 3)})
	require.NoError(t, err)
	f.clock.now = f.clock.now.Add(20 * time.Minute)
	_, err = f.svc.ReserveCartStock(ctx, fresh, []inventory.StockRequest{request(a, 2)})
	require.NoError(t, err)

	f.clock.now = f.clock.now.Add(15 * time.Minute)
	result, err := f.svc.CleanupExpiredCartReservations(ctx)
	require.NoError(t, err)
	require.Equal(t, SweepResult{Carts: 1, Holds: 1, Units: 3}, result)
	require.Equal(t, 2, f.reserved(t, a.ID))

	var hold models.CartReservation
	require.NoError(t, f.conn.First(&hold, "cart_id = ?", stale).Error)
	require.Equal(t, enums.CartReservationExpired, hold.Status)
	require.NotNil(t, hold.ReleasedAt)

	result, err = f.svc.CleanupExpiredCartReservations(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Holds)
}

func TestConvertedHoldsAreNeverExpired(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.seed(t, 10, 0)
	cartID := uuid.New()
	orderID := uuid.New()

	_, err := f.svc.ReserveCartStock(ctx, cartID, []inventory.StockRequest{request(a, 4)})
	require.NoError(t, err)

	var converted []models.CartReservation
	require.NoError(t, f.conn.Transaction(func(tx *gorm.DB) error {
		var err error
		converted, err = f.svc.ConvertCartReservation(ctx, tx, cartID, orderID)
		return err
	}))
	require.Len(t, converted, 1)
	require.Equal(t, orderID, *converted[0].ConvertedOrderID)

	f.clock.now = f.clock.now.Add(time.Hour)
	result, err := f.svc.CleanupExpiredCartReservations(ctx)
	require.NoError(t, err)
	require.Zero(t, result.Holds)
	require.Equal(t, 4, f.reserved(t, a.ID))

	n, err := f.svc.ReleaseCartStock(ctx, cartID)
	require.NoError(t, err)
	require.Zero(t, n)
	require.Equal(t, 4, f.reserved(t, a.ID))
}

func TestReserveCartStockValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.ReserveCartStock(ctx, uuid.Nil, nil)
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	_, err = f.svc.ReserveCartStock(ctx, uuid.New(), []inventory.StockRequest{{ItemRef: inventory.ItemRef{ProductID: uuid.New()}}})
	require.Equal(t, pkgerrors.CodeValidation, pkgerrors.As(err).Code())
	_, err = f.svc.ReserveCartStock(ctx, uuid.New(), []inventory.StockRequest{{ItemRef: inventory.ItemRef{ProductID: uuid.New()}, Quantity: 1}})
	require.Equal(t, pkgerrors.CodeNotFound, pkgerrors.As(err).Code())
}
