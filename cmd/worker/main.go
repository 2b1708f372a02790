// Command worker issues invoices for paid orders.
package main

import (
	"context"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/eventing"
	"github.com/angelmondragon/storefront-backend/internal/invoices"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
)

func main() {
	ctx := context.Background()
	rt, err := eventing.Boot(ctx, "worker")
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

	svc, err := invoices.NewService(invoices.NewRepository(conn.DB()), rt.Logger, time.Now)
	if err != nil {
		rt.Fatal(ctx, "invoice service", err)
	}
	if err := rt.Consume(ctx, invoices.ConsumerName, rt.Config.PubSub.InvoicesSubscription, svc); err != nil {
		rt.Fatal(ctx, "invoice consumer", err)
	}
}
