package eventing

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
)

// Runtime is the process scaffolding shared by the consumer binaries:
// config, logger, Redis for dedupe and the Pub/Sub client.
type Runtime struct {
	Config *config.Config
	Logger *logger.Logger
	Redis  *redis.Client
	PubSub *pubsub.Client

	closers []namedCloser
}

type namedCloser struct {
	name  string
	close func() error
}

// Boot loads configuration and connects Redis and Pub/Sub for a consumer
// binary named kind.
func Boot(ctx context.Context, kind string) (*Runtime, error) {
	logg := logger.New(logger.Options{ServiceName: kind})
	if err := godotenv.Load(); err != nil {
		logg.Debug(ctx, "no .env file loaded")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	cfg.Service.Kind = kind

	rt := &Runtime{
		Config: cfg,
		Logger: logger.New(logger.Options{
			ServiceName: kind,
			Level:       logger.ParseLevel(cfg.App.LogLevel),
			WarnStack:   cfg.App.LogWarnStack,
		}),
	}

	rt.Redis, err = redis.New(ctx, cfg.Redis, rt.Logger)
	if err != nil {
		return nil, fmt.Errorf("redis: %w", err)
	}
	rt.OnClose("redis", rt.Redis.Close)

	rt.PubSub, err = pubsub.NewClient(ctx, cfg.GCP, cfg.PubSub, rt.Logger)
	if err != nil {
		rt.Close(ctx)
		return nil, fmt.Errorf("pubsub: %w", err)
	}
	rt.OnClose("pubsub", rt.PubSub.Close)
	return rt, nil
}

// OnClose registers a resource to release on Close, in reverse order.
func (rt *Runtime) OnClose(name string, fn func() error) {
	rt.closers = append(rt.closers, namedCloser{name: name, close: fn})
}

func (rt *Runtime) Close(ctx context.Context) {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		c := rt.closers[i]
		if err := c.close(); err != nil {
			rt.Logger.Error(rt.Logger.WithField(ctx, "resource", c.name), "close failed", err)
		}
	}
	rt.closers = nil
}

// Consume runs handler on the named subscription until SIGINT or SIGTERM.
func (rt *Runtime) Consume(ctx context.Context, consumer, subscription string, handler Handler) error {
	if subscription == "" {
		return fmt.Errorf("%s: subscription not configured", consumer)
	}
	sub := rt.PubSub.Subscriber(subscription)
	if sub == nil {
		return fmt.Errorf("%s: subscription %q unavailable", consumer, subscription)
	}
	dedupe, err := NewDeduper(rt.Redis, rt.Config.Eventing.ConsumerIdempotencyTTL)
	if err != nil {
		return err
	}
	worker, err := NewWorker(WorkerParams{
		Name:         consumer,
		Subscription: sub,
		Handler:      handler,
		Dedupe:       dedupe,
		Logger:       rt.Logger,
	})
	if err != nil {
		return err
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = rt.Logger.WithFields(runCtx, map[string]any{
		"env":          rt.Config.App.Env,
		"consumer":     consumer,
		"subscription": subscription,
	})
	rt.Logger.Info(runCtx, "consumer started")
	if err := worker.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	rt.Logger.Info(runCtx, "consumer stopped")
	return nil
}

// Fatal logs err against resource and exits.
func (rt *Runtime) Fatal(ctx context.Context, resource string, err error) {
	logg := logger.New(logger.Options{ServiceName: "consumer"})
	if rt != nil && rt.Logger != nil {
		logg = rt.Logger
	}
	logg.Error(logg.WithField(ctx, "resource", resource), "consumer cannot start", err)
	if rt != nil {
		rt.Close(ctx)
	}
	os.Exit(1)
}
