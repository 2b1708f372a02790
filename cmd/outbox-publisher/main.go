// Command outbox-publisher relays committed outbox rows to Pub/Sub.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/storefront-backend/internal/eventing"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/routing"
)

func main() {
	ctx := context.Background()
	rt, err := eventing.Boot(ctx, "outbox-publisher")
	if err != nil {
		rt.Fatal(ctx, "runtime", err)
	}
	defer rt.Close(ctx)

	conn, err := db.New(ctx, rt.Config.DB, rt.Logger)
	if err != nil {
		rt.Fatal(ctx, "database", err)
	}
	rt.OnClose("database", conn.Close)
	if err := migrate.MaybeRunDev(ctx, rt.Config, rt.Logger, conn); err != nil {
		rt.Fatal(ctx, "dev migrations", err)
	}

	table, err := routing.NewTable(rt.Config.PubSub)
	if err != nil {
		rt.Fatal(ctx, "routing table", err)
	}
	topics := newTopicSender(rt.PubSub.Publisher)
	rt.OnClose("publishers", func() error {
		topics.Stop()
		return nil
	})

	relay, err := NewRelay(rt.Config.Outbox, RelayDeps{
		TX:      conn,
		Store:   outbox.NewStore(conn.DB()),
		Router:  table,
		Sender:  topics,
		Metrics: metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
		Logger:  rt.Logger,
	})
	if err != nil {
		rt.Fatal(ctx, "relay", err)
	}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	runCtx = rt.Logger.WithField(runCtx, "env", rt.Config.App.Env)
	rt.Logger.Info(runCtx, "outbox relay started")
	if err := relay.Run(runCtx); err != nil && !errors.Is(err, context.Canceled) {
		rt.Fatal(runCtx, "relay loop", err)
	}
	rt.Logger.Info(runCtx, "outbox relay stopped")
}
