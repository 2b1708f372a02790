package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

type reservationRepository struct {
	db *gorm.DB
}

// NewReservationRepository builds a cart reservation repository.
func NewReservationRepository(db *gorm.DB) ReservationRepository {
	return &reservationRepository{db: db}
}

func (r *reservationRepository) WithTx(tx *gorm.DB) ReservationRepository {
	if tx == nil {
		return r
	}
	return &reservationRepository{db: tx}
}

func (r *reservationRepository) CreateMany(ctx context.Context, holds []models.CartReservation) error {
	if len(holds) == 0 {
		return nil
	}
	for i := range holds {
		if holds[i].ID == uuid.Nil {
			holds[i].ID = uuid.New()
		}
	}
	return r.db.WithContext(ctx).Create(&holds).Error
}

func (r *reservationRepository) ListActiveByCart(ctx context.Context, cartID uuid.UUID) ([]models.CartReservation, error) {
	var holds []models.CartReservation
	err := r.db.WithContext(ctx).
		Where("cart_id = ? AND status = ?", cartID, enums.CartReservationActive).
		Order("created_at ASC").
		Order("id ASC").
		Find(&holds).Error
	return holds, err
}

func (r *reservationRepository) LockExpiredByCart(ctx context.Context, cartID uuid.UUID, now time.Time) ([]models.CartReservation, error) {
	var holds []models.CartReservation
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("cart_id = ? AND status = ? AND expires_at <= ?", cartID, enums.CartReservationActive, now).
		Order("id ASC").
		Find(&holds).Error
	return holds, err
}

func (r *reservationRepository) ListExpiredCartIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	query := r.db.WithContext(ctx).
		Model(&models.CartReservation{}).
		Distinct("cart_id").
		Where("status = ? AND expires_at <= ?", enums.CartReservationActive, now)
	if limit > 0 {
		query = query.Limit(limit)
	}
	err := query.Pluck("cart_id", &ids).Error
	return ids, err
}

func (r *reservationRepository) Transition(ctx context.Context, holdID uuid.UUID, to enums.CartReservationStatus, at time.Time, orderID *uuid.UUID) (bool, error) {
	updates := map[string]any{
		"status":     to,
		"updated_at": at,
	}
	switch to {
	case enums.CartReservationConverted:
		updates["converted_order_id"] = orderID
	default:
		updates["released_at"] = at
	}
	res := r.db.WithContext(ctx).
		Model(&models.CartReservation{}).
		Where("id = ? AND status = ?", holdID, enums.CartReservationActive).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *reservationRepository) ExtendActive(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) (int64, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CartReservation{}).
		Where("cart_id = ? AND status = ?", cartID, enums.CartReservationActive).
		Updates(map[string]any{
			"expires_at": expiresAt,
			"updated_at": time.Now().UTC(),
		})
	return res.RowsAffected, res.Error
}
