// Package bootstrap assembles the ledger services shared by the api and
// cron-worker binaries.
package bootstrap

import (
	"fmt"
	"time"

	"github.com/angelmondragon/shopcore-backend/internal/actionrequests"
	"github.com/angelmondragon/shopcore-backend/internal/cart"
	"github.com/angelmondragon/shopcore-backend/internal/catalog"
	"github.com/angelmondragon/shopcore-backend/internal/coupons"
	"github.com/angelmondragon/shopcore-backend/internal/notifications"
	"github.com/angelmondragon/shopcore-backend/internal/orders"
	"github.com/angelmondragon/shopcore-backend/internal/refunds"
	"github.com/angelmondragon/shopcore-backend/internal/stock"
	"github.com/angelmondragon/shopcore-backend/internal/wallet"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/db"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/metrics"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/square"
)

// Params carries the infrastructure every service hangs off.
type Params struct {
	Config   *config.Config
	DB       *db.Client
	Logger   *logger.Logger
	Metrics  *metrics.LedgerMetrics
	Square   *square.Client
	Notifier notifications.Notifier
	Now      func() time.Time
}

// Services is the assembled ledger core.
type Services struct {
	Outbox         *outbox.Service
	OutboxRepo     *outbox.Repository
	Stock          *stock.Service
	Wallet         *wallet.Service
	Coupons        *coupons.Service
	Cart           *cart.Service
	Refunds        *refunds.Service
	Orders         *orders.Service
	ActionRequests *actionrequests.Service
	Catalog        catalog.Service
}

// Build wires repositories and services in dependency order.
func Build(p Params) (*Services, error) {
	if p.Config == nil || p.DB == nil || p.Logger == nil {
		return nil, fmt.Errorf("config, db and logger are required")
	}
	conn := p.DB.DB()
	now := p.Now
	if now == nil {
		now = time.Now
	}
	notifier := p.Notifier
	if notifier == nil {
		notifier = notifications.NewLogNotifier(p.Logger)
	}

	outboxRepo := outbox.NewRepository(conn)
	emitter := outbox.NewService(outboxRepo, p.Logger)

	stockSvc, err := stock.NewService(stock.ServiceParams{
		Repo:    stock.NewRepository(conn),
		Tx:      p.DB,
		Logger:  p.Logger,
		Metrics: p.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("stock service: %w", err)
	}
	walletSvc, err := wallet.NewService(wallet.ServiceParams{
		Repo:    wallet.NewRepository(conn),
		Tx:      p.DB,
		Logger:  p.Logger,
		Metrics: p.Metrics,
	})
	if err != nil {
		return nil, fmt.Errorf("wallet service: %w", err)
	}
	couponSvc, err := coupons.NewService(coupons.ServiceParams{
		Repo:   coupons.NewRepository(conn),
		Logger: p.Logger,
		Now:    now,
	})
	if err != nil {
		return nil, fmt.Errorf("coupon service: %w", err)
	}
	cartSvc, err := cart.NewService(cart.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("cart service: %w", err)
	}

	refundParams := refunds.ServiceParams{
		Repo:    refunds.NewRepository(conn),
		Wallet:  walletSvc,
		Outbox:  emitter,
		Logger:  p.Logger,
		Metrics: p.Metrics,
	}
	if p.Square != nil {
		refundParams.Gateway = p.Square
	}
	refundSvc, err := refunds.NewService(refundParams)
	if err != nil {
		return nil, fmt.Errorf("refund service: %w", err)
	}

	orderSvc, err := orders.NewService(orders.ServiceParams{
		Repo:        orders.NewRepository(conn),
		Tx:          p.DB,
		Cart:        cartSvc,
		Coupons:     couponSvc,
		Stock:       stockSvc,
		Wallet:      walletSvc,
		Refunds:     refundSvc,
		Outbox:      emitter,
		Logger:      p.Logger,
		Metrics:     p.Metrics,
		Fulfillment: p.Config.Fulfillment,
		Now:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("order service: %w", err)
	}
	requestSvc, err := actionrequests.NewService(actionrequests.ServiceParams{
		Repo:        actionrequests.NewRepository(conn),
		Tx:          p.DB,
		Orders:      orderSvc,
		Outbox:      emitter,
		Notifier:    notifier,
		Logger:      p.Logger,
		Fulfillment: p.Config.Fulfillment,
		Now:         now,
	})
	if err != nil {
		return nil, fmt.Errorf("action request service: %w", err)
	}
	catalogSvc, err := catalog.NewService(catalog.NewRepository(conn), p.DB, p.Logger)
	if err != nil {
		return nil, fmt.Errorf("catalog service: %w", err)
	}

	return &Services{
		Outbox:         emitter,
		OutboxRepo:     outboxRepo,
		Stock:          stockSvc,
		Wallet:         walletSvc,
		Coupons:        couponSvc,
		Cart:           cartSvc,
		Refunds:        refundSvc,
		Orders:         orderSvc,
		ActionRequests: requestSvc,
		Catalog:        catalogSvc,
	}, nil
}
