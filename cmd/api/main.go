package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/discounts"
	"github.com/angelmondragon/storefront-backend/internal/inventory"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	razorpaywebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/razorpay"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	deps, err := buildDependencies(cfg, logg, dbClient)
	if err != nil {
		logg.Error(context.Background(), "failed to wire services", err)
		os.Exit(1)
	}
	deps.DB = dbClient
	deps.Redis = redisClient
	deps.Gatherer = prometheus.DefaultGatherer

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           routes.NewRouter(cfg, logg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logg.Info(ctx, "starting api server")
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func buildDependencies(cfg *config.Config, logg *logger.Logger, dbClient *db.Client) (routes.Dependencies, error) {
	conn := dbClient.DB()
	reservationMetrics := metrics.NewReservationMetrics(prometheus.DefaultRegisterer)
	emitter := outbox.NewWriter(outbox.NewStore(conn), logg)

	inventoryRepo := inventory.NewRepository(conn)
	inventorySvc, err := inventory.NewService(inventoryRepo, dbClient, logg)
	if err != nil {
		return routes.Dependencies{}, err
	}

	cartSvc, err := cart.NewService(cart.ServiceParams{
		Reservations: cart.NewReservationRepository(conn),
		Inventory:    inventoryRepo,
		Resolver:     inventorySvc,
		Tx:           dbClient,
		Logger:       logg,
		Metrics:      reservationMetrics,
		HoldTTL:      cfg.Reservations.CartHoldTTL,
		SweepSize:    cfg.Reservations.SweepBatchSize,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	discountSvc, err := discounts.NewService(discounts.NewRepository(conn), logg, nil)
	if err != nil {
		return routes.Dependencies{}, err
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:      orders.NewRepository(conn),
		Inventory: inventoryRepo,
		Resolver:  inventorySvc,
		Carts:     cartSvc,
		Discounts: discountSvc,
		Outbox:    emitter,
		Tx:        dbClient,
		Logger:    logg,
		Metrics:   reservationMetrics,
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	webhookSvc, err := razorpaywebhook.NewService(razorpaywebhook.ServiceParams{
		Logs:          razorpaywebhook.NewLogRepository(conn),
		Payments:      razorpaywebhook.NewPaymentRepository(conn),
		Outbox:        emitter,
		Tx:            dbClient,
		WebhookSecret: cfg.Razorpay.WebhookSecret,
		Logger:        logg,
		Metrics:       metrics.NewWebhookMetrics(prometheus.DefaultRegisterer),
	})
	if err != nil {
		return routes.Dependencies{}, err
	}

	return routes.Dependencies{
		Inventory: inventorySvc,
		Carts:     cartSvc,
		Orders:    orderSvc,
		Discounts: discountSvc,
		Razorpay:  webhookSvc,
	}, nil
}
