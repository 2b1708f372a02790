package db

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func TestIsUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "payment_webhook_logs_event_id_key"}
	wrapped := fmt.Errorf("insert: %w", pgErr)

	assert.True(t, IsUniqueViolation(wrapped, ""))
	assert.True(t, IsUniqueViolation(wrapped, "payment_webhook_logs_event_id_key"))
	assert.False(t, IsUniqueViolation(errors.New("boom"), ""))
	assert.False(t, IsUniqueViolation(nil, ""))
	assert.True(t, IsUniqueViolation(errors.New("UNIQUE constraint failed: payment_webhook_logs.event_id"), ""))
}

func TestIsCheckViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23514", ConstraintName: "inventory_items_reserved_nonnegative"}
	assert.True(t, IsCheckViolation(pgErr, ""))
	assert.True(t, IsCheckViolation(pgErr, "inventory_items_reserved_nonnegative"))
	assert.False(t, IsCheckViolation(pgErr, "other"))
	assert.True(t, IsCheckViolation(errors.New("CHECK constraint failed: reserved_quantity >= 0"), ""))
	assert.False(t, IsCheckViolation(errors.New("boom"), ""))
}

func TestClassify(t *testing.T) {
	kind, name := Classify(fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505", ConstraintName: "orders_order_number_key"}))
	assert.Equal(t, UniqueViolation, kind)
	assert.Equal(t, "orders_order_number_key", name)

	kind, _ = Classify(&pgconn.PgError{Code: "40001"})
	assert.Equal(t, NoViolation, kind)

	sqlite := errors.New("UNIQUE constraint failed: orders.order_number")
	assert.True(t, IsUniqueViolation(sqlite, "orders.order_number"))
	assert.False(t, IsUniqueViolation(sqlite, "orders.id"))
}
