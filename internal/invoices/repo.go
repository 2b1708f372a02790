package invoices

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
)

type Repository interface {
	FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error)
	CreateIfAbsent(ctx context.Context, invoice *models.Invoice) (bool, error)
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

// FindByOrderID returns nil, nil when the order has no invoice yet.
func (r *repository) FindByOrderID(ctx context.Context, orderID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	err := r.db.WithContext(ctx).First(&invoice, "order_id = ?", orderID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &invoice, nil
}

// CreateIfAbsent relies on the unique order_id index; a concurrent insert for
// the same order is a no-op.
func (r *repository) CreateIfAbsent(ctx context.Context, invoice *models.Invoice) (bool, error) {
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(invoice)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}
