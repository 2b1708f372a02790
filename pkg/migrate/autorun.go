package migrate

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const devAttempts = 3

// MaybeRunDev applies pending migrations at boot in dev when the
// AutoMigrate flag is on. Connection failures are retried with backoff;
// SQL failures are returned at once.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}
	pool, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("migrate: pool handle: %w", err)
	}
	m, err := New(pool, Files())
	if err != nil {
		return err
	}
	ctx = logg.WithField(ctx, "env", cfg.App.Env)

	for attempt := 1; ; attempt++ {
		applied, err := m.Up(ctx)
		if err == nil {
			logg.Info(logg.WithField(ctx, "applied", applied), "dev migrations complete")
			return nil
		}
		if attempt == devAttempts || !transient(err) {
			return err
		}
		wait := time.Duration(attempt) * time.Second
		logg.Warn(logg.WithFields(ctx, map[string]any{"attempt": attempt, "error": err.Error()}), "dev migrations retrying")
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

func transient(err error) bool {
	msg := err.Error()
	for _, s := range []string{"connection refused", "connection reset", "i/o timeout", "broken pipe", "no such host", "server closed the connection"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}
