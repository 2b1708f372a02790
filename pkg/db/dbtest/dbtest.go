// Package dbtest opens throwaway sqlite databases migrated with the storefront models.
package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

// Models lists every table the services touch.
func Models() []any {
	return []any{
		&models.InventoryItem{},
		&models.CartReservation{},
		&models.Order{},
		&models.OrderItem{},
		&models.PaymentTransaction{},
		&models.PaymentWebhookLog{},
		&models.Discount{},
		&models.DiscountUsage{},
		&models.Invoice{},
		&models.OutboxEvent{},
		&models.OutboxDLQEntry{},
	}
}

// Open returns an isolated in-memory database. A single connection serializes
// writers, so callers must not use the base handle inside a transaction callback.
func Open(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{SkipDefaultTransaction: true})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sqlite handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := conn.AutoMigrate(Models()...); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return conn
}

// Client wraps Open in the shared db client.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.FromGorm(conn), conn
}
