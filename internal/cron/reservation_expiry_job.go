package cron

import (
	"context"
	"fmt"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

type reservationSweeper interface {
	CleanupExpiredCartReservations(ctx context.Context) (cart.SweepResult, error)
}

// NewReservationExpiryJob releases cart holds whose deadline has passed.
func NewReservationExpiryJob(logg *logger.Logger, sweeper reservationSweeper) (Job, error) {
	if logg == nil {
		return nil, fmt.Errorf("logger required")
	}
	if sweeper == nil {
		return nil, fmt.Errorf("cart reservation service required")
	}
	return &reservationExpiryJob{logg: logg, sweeper: sweeper}, nil
}

type reservationExpiryJob struct {
	logg    *logger.Logger
	sweeper reservationSweeper
}

func (j *reservationExpiryJob) Name() string { return "cart-reservation-expiry" }

// Run reports the counts of a partially failed sweep before returning its error.
func (j *reservationExpiryJob) Run(ctx context.Context) error {
	result, err := j.sweeper.CleanupExpiredCartReservations(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"carts":          result.Carts,
		"holds_expired":  result.Holds,
		"units_released": result.Units,
	})
	if err != nil {
		return fmt.Errorf("expire cart reservations: %w", err)
	}
	if result.Holds > 0 {
		j.logg.Info(logCtx, "cart reservation sweep complete")
	}
	return nil
}
