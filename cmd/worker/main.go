package main

import (
	"context"
	"errors"

	"github.com/angelmondragon/shopcore-backend/internal/analytics"
	"github.com/angelmondragon/shopcore-backend/internal/bootstrap"
	"github.com/angelmondragon/shopcore-backend/internal/notifications"
	"github.com/angelmondragon/shopcore-backend/pkg/bigquery"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/idempotency"
)

func main() {
	rt := bootstrap.MustStart(bootstrap.RuntimeParams{Kind: "worker"})
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	redisClient, err := rt.Redis()
	rt.Check(err, "failed to bootstrap redis")
	pubsubClient, err := rt.PubSub()
	rt.Check(err, "failed to bootstrap pubsub")

	services, err := bootstrap.Build(bootstrap.Params{Config: cfg, DB: rt.DB, Logger: logg})
	rt.Check(err, "failed to build services")

	guard, err := idempotency.NewGuard(redisClient, cfg.Eventing.OutboxIdempotencyTTL)
	rt.Check(err, "failed to create idempotency guard")

	subscription := pubsubClient.DomainSubscription()
	if subscription == nil {
		rt.Check(errors.New("SHOPCORE_PUBSUB_DOMAIN_SUBSCRIPTION is empty"), "domain subscription not configured")
	}
	inbox, err := notifications.NewConsumer(notifications.ConsumerParams{
		Repo:         notifications.NewInboxRepository(rt.DB.DB()),
		Subscription: subscription,
		Guard:        guard,
		Orders:       services.Orders,
		Logger:       logg,
	})
	rt.Check(err, "failed to create inbox consumer")
	consumers := map[string]consumer{"customer-inbox": inbox}

	// The sales sink runs only when a BigQuery dataset is configured.
	if cfg.BigQuery.Enabled() {
		bqClient, err := bigquery.NewClient(context.Background(), cfg.GCP, cfg.BigQuery, logg)
		rt.Check(err, "failed to bootstrap bigquery")
		rt.OnClose("bigquery", bqClient.Close)

		analyticsSub := pubsubClient.AnalyticsSubscription()
		if analyticsSub == nil {
			rt.Check(errors.New("SHOPCORE_PUBSUB_ANALYTICS_SUBSCRIPTION is empty"), "analytics subscription not configured")
		}
		writer, err := analytics.NewWriter(bqClient, cfg.BigQuery.SalesEventsTable, analytics.RetryPolicy{})
		rt.Check(err, "failed to create sales writer")
		sales, err := analytics.NewConsumer(analytics.ConsumerParams{
			Writer:       writer,
			Subscription: analyticsSub,
			Guard:        guard,
			Logger:       logg,
		})
		rt.Check(err, "failed to create sales consumer")
		consumers["sales-analytics"] = sales
	}

	service, err := NewService(ServiceParams{
		Logger:    logg,
		DB:        rt.DB,
		Redis:     redisClient,
		PubSub:    pubsubClient,
		Consumers: consumers,
	})
	rt.Check(err, "failed to create worker service")

	rt.Serve(service.Run)
}
