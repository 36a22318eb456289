package main

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/shopcore-backend/internal/bootstrap"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox/registry"
)

func main() {
	rt := bootstrap.MustStart(bootstrap.RuntimeParams{Kind: "outbox-publisher"})
	defer rt.Close()

	pubsubClient, err := rt.PubSub()
	rt.Check(err, "failed to bootstrap pubsub")

	events, err := registry.NewEventRegistry(rt.Config.PubSub)
	rt.Check(err, "failed to build event registry")

	relay, err := NewRelay(RelayParams{
		Config:     rt.Config.Outbox,
		Logger:     rt.Logger,
		DB:         rt.DB,
		PubSub:     pubsubClient,
		Repository: outbox.NewRepository(rt.DB.DB()),
		DLQ:        outbox.NewDLQRepository(rt.DB.DB()),
		Registry:   events,
		Metrics:    metrics.NewOutboxMetrics(prometheus.DefaultRegisterer),
	})
	rt.Check(err, "failed to create outbox publisher")

	rt.Serve(relay.Run)
}
