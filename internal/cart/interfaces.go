package cart

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// ReservationRepository persists cart_reservations rows. Status changes are
// guarded on the current status so a hold leaves "active" exactly once.
type ReservationRepository interface {
	WithTx(tx *gorm.DB) ReservationRepository
	CreateMany(ctx context.Context, holds []models.CartReservation) error
	ListActiveByCart(ctx context.Context, cartID uuid.UUID) ([]models.CartReservation, error)
	LockExpiredByCart(ctx context.Context, cartID uuid.UUID, now time.Time) ([]models.CartReservation, error)
	ListExpiredCartIDs(ctx context.Context, now time.Time, limit int) ([]uuid.UUID, error)
	Transition(ctx context.Context, holdID uuid.UUID, to enums.CartReservationStatus, at time.Time, orderID *uuid.UUID) (bool, error)
	ExtendActive(ctx context.Context, cartID uuid.UUID, expiresAt time.Time) (int64, error)
}
