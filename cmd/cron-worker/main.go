package main

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/shopcore-backend/internal/bootstrap"
	"github.com/angelmondragon/shopcore-backend/internal/cron"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
)

func main() {
	rt := bootstrap.MustStart(bootstrap.RuntimeParams{Kind: "cron-worker"})
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger

	redisClient, err := rt.Redis()
	rt.Check(err, "failed to bootstrap redis")

	lock, err := cron.NewRedisLock(redisClient, lockKey(cfg.Cron.LockKey, cfg.App.Env), cfg.Cron.LockTTL)
	rt.Check(err, "failed to create cron lock")

	services, err := bootstrap.Build(bootstrap.Params{
		Config:  cfg,
		DB:      rt.DB,
		Logger:  logg,
		Metrics: metrics.NewLedgerMetrics(prometheus.DefaultRegisterer),
	})
	rt.Check(err, "failed to build services")

	registry, err := buildRegistry(cfg, logg, services)
	rt.Check(err, "failed to register cron jobs")
	logg.Info(logg.WithField(context.Background(), "jobs", registry.Names()), "cron jobs registered")

	service, err := cron.NewService(cron.ServiceParams{
		Logger:     logg,
		Registry:   registry,
		Lock:       lock,
		Metrics:    metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval:   cfg.Cron.Interval,
		JobTimeout: cfg.Cron.JobTimeout,
	})
	rt.Check(err, "failed to create cron service")

	rt.Serve(service.Run)
}

func buildRegistry(cfg *config.Config, logg *logger.Logger, services *bootstrap.Services) (*cron.Registry, error) {
	pending, err := cron.NewPendingExpiryJob(services.Orders, logg)
	if err != nil {
		return nil, err
	}
	delays, err := cron.NewDeliveryDelayJob(services.Orders, logg)
	if err != nil {
		return nil, err
	}
	retention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:     logg,
		Repository: services.OutboxRepo,
		Retention:  cfg.Outbox.Retention,
	})
	if err != nil {
		return nil, err
	}
	return cron.NewRegistry(pending, delays, retention)
}

// lockKey scopes the leader lock per environment so staging and prod
// replicas sharing a Redis do not block each other.
func lockKey(base, env string) string {
	if env == "" {
		env = "local"
	}
	if base == "" {
		base = "shopcore:cron:lock"
	}
	return base + ":" + env
}
