package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/cron"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	razorpaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/razorpay"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const serviceKind = "cron-worker"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logg := logger.New(logger.Options{ServiceName: serviceKind})
	if err := godotenv.Load(); err != nil {
		logg.Debug(ctx, "no .env file loaded")
	}
	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "load config", err)
		os.Exit(1)
	}
	cfg.Service.Kind = serviceKind
	logg = logger.New(logger.Options{
		ServiceName: serviceKind,
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "serviceKind": serviceKind})

	if err := run(ctx, cfg, logg); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped", err)
		os.Exit(1)
	}
	logg.Info(ctx, "cron worker shut down")
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) error {
	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer closeWith(ctx, logg, "database", dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return fmt.Errorf("dev migrations: %w", err)
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer closeWith(ctx, logg, "redis", redisClient.Close)

	env := cfg.App.Env
	if env == "" {
		env = "local"
	}
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(serviceKind+":"+env), cfg.Cron.LockTTL)
	if err != nil {
		return err
	}

	registry := cron.NewRegistry()
	jobs, err := jobsFor(cfg, logg, dbClient)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := registry.Register(job); err != nil {
			return err
		}
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		return err
	}
	logg.Info(ctx, "cron worker started")
	return service.Run(ctx)
}

// jobsFor builds the job list in run order. Webhook log purging is optional.
func jobsFor(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) ([]cron.Job, error) {
	conn := dbClient.DB()
	stock := inventory.NewRepository(conn)
	resolver, err := inventory.NewService(stock, dbClient, logg)
	if err != nil {
		return nil, err
	}
	carts, err := cart.NewService(cart.ServiceParams{
		Reservations: cart.NewReservationRepository(conn),
		Inventory:    stock,
		Resolver:     resolver,
		Tx:           dbClient,
		Logger:       logg,
		Metrics:      metrics.NewReservationMetrics(prometheus.DefaultRegisterer),
		HoldTTL:      cfg.Reservations.CartHoldTTL,
		SweepSize:    cfg.Reservations.SweepBatchSize,
	})
	if err != nil {
		return nil, err
	}

	expiry, err := cron.NewReservationExpiryJob(logg, carts)
	if err != nil {
		return nil, err
	}
	jobs := []cron.Job{expiry}

	if cfg.Cron.WebhookLogPurgeEnabled {
		purge, err := cron.NewWebhookLogRetentionJob(cron.WebhookLogRetentionJobParams{
			Logger:    logg,
			Logs:      razorpaywebhook.NewLogRepository(conn),
			Retention: cfg.Cron.WebhookLogRetention,
		})
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, purge)
	}

	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:           logg,
		DB:               dbClient,
		Repository:       outbox.NewStore(conn),
		Retention:        cfg.Cron.OutboxRetention,
		TerminalAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, err
	}
	return append(jobs, retention), nil
}

func closeWith(ctx context.Context, logg *logger.Logger, name string, fn func() error) {
	if err := fn(); err != nil {
		logg.Error(ctx, "close "+name, err)
	}
}
