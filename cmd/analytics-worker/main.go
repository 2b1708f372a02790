// Command analytics-worker copies order and payment events into BigQuery.
package main

import (
	"context"

	"github.com/angelmondragon/storefront-backend/internal/consumers/analytics"
	"github.com/angelmondragon/storefront-backend/internal/eventing"
	"github.com/angelmondragon/storefront-backend/pkg/bigquery"
)

func main() {
	ctx := context.Background()
	rt, err := eventing.Boot(ctx, "analytics-worker")
	if err != nil {
		rt.Fatal(ctx, "runtime", err)
	}
	defer rt.Close(ctx)

	warehouse, err := bigquery.Open(ctx, rt.Config.GCP, rt.Config.BigQuery, rt.Logger)
	if err != nil {
		rt.Fatal(ctx, "bigquery", err)
	}
	rt.OnClose("bigquery", warehouse.Close)

	consumer, err := analytics.NewConsumer(warehouse, rt.Logger)
	if err != nil {
		rt.Fatal(ctx, "analytics consumer", err)
	}
	if err := rt.Consume(ctx, analytics.ConsumerName, rt.Config.PubSub.AnalyticsSubscription, consumer); err != nil {
		rt.Fatal(ctx, "analytics consumer", err)
	}
}
