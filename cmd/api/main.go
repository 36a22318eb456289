package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/angelmondragon/shopcore-backend/api/routes"
	"github.com/angelmondragon/shopcore-backend/internal/bootstrap"
	"github.com/angelmondragon/shopcore-backend/internal/notifications"
	squarewebhook "github.com/angelmondragon/shopcore-backend/internal/webhooks/square"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	pkgpubsub "github.com/angelmondragon/shopcore-backend/pkg/pubsub"
	"github.com/angelmondragon/shopcore-backend/pkg/square"
)

const shutdownTimeout = 15 * time.Second

func main() {
	rt := bootstrap.MustStart(bootstrap.RuntimeParams{Kind: "api"})
	defer rt.Close()
	cfg, logg := rt.Config, rt.Logger
	ctx := context.Background()

	redisClient, err := rt.Redis()
	rt.Check(err, "failed to bootstrap redis")

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Without Square credentials outside prod, gateway refunds fall back to
	// wallet credit and the webhook is not mounted.
	squareClient, err := square.NewClient(ctx, cfg.Square, logg)
	if err != nil {
		if cfg.App.IsProd() {
			rt.Check(err, "failed to bootstrap square client")
		}
		logg.Warn(ctx, "square client disabled: "+err.Error())
		squareClient = nil
	}

	var pubsubClient *pkgpubsub.Client
	if cfg.FeatureFlags.StaffNotifications {
		if pubsubClient, err = rt.PubSub(); err != nil {
			logg.Warn(ctx, "pubsub unavailable, staff notices go to the log: "+err.Error())
			pubsubClient = nil
		}
	}

	services, err := bootstrap.Build(bootstrap.Params{
		Config:   cfg,
		DB:       rt.DB,
		Logger:   logg,
		Metrics:  metrics.NewLedgerMetrics(registry),
		Square:   squareClient,
		Notifier: notifications.New(cfg.FeatureFlags, pubsubClient, logg),
	})
	rt.Check(err, "failed to build services")

	inbox, err := notifications.NewInbox(notifications.NewInboxRepository(rt.DB.DB()))
	rt.Check(err, "failed to create notification inbox")

	httpServices := routes.Services{
		Orders:         services.Orders,
		ActionRequests: services.ActionRequests,
		Stock:          services.Stock,
		Catalog:        services.Catalog,
		Wallet:         services.Wallet,
		Coupons:        services.Coupons,
		Cart:           services.Cart,
		Notifications:  inbox,
		DeadLetters:    outbox.NewDLQRepository(rt.DB.DB()),
	}
	if squareClient != nil {
		webhookSvc, err := squarewebhook.NewService(squarewebhook.ServiceParams{Orders: services.Orders, Logger: logg})
		rt.Check(err, "failed to create square webhook service")
		guard, err := squarewebhook.NewGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "square")
		rt.Check(err, "failed to create square webhook guard")
		httpServices.SquareWebhook = webhookSvc
		httpServices.SquareGuard = guard
		httpServices.Square = squareClient
	}

	// Platforms that inject PORT win over config.
	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	server := &http.Server{
		Addr:              ":" + port,
		Handler:           routes.NewRouter(cfg, logg, rt.DB, redisClient, registry, httpServices),
		ReadHeaderTimeout: 10 * time.Second,
	}

	rt.Serve(func(ctx context.Context) error {
		errCh := make(chan error, 1)
		go func() { errCh <- server.ListenAndServe() }()
		logg.Info(logg.WithField(ctx, "addr", server.Addr), "api listening")

		select {
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		case <-ctx.Done():
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return ctx.Err()
	})
}
