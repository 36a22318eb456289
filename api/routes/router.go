package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/shopcore-backend/api/controllers"
	requestcontrollers "github.com/angelmondragon/shopcore-backend/api/controllers/actionrequests"
	couponcontrollers "github.com/angelmondragon/shopcore-backend/api/controllers/coupons"
	"github.com/angelmondragon/shopcore-backend/api/controllers/deadletters"
	notificationcontrollers "github.com/angelmondragon/shopcore-backend/api/controllers/notifications"
	ordercontrollers "github.com/angelmondragon/shopcore-backend/api/controllers/orders"
	stockcontrollers "github.com/angelmondragon/shopcore-backend/api/controllers/stock"
	walletcontrollers "github.com/angelmondragon/shopcore-backend/api/controllers/wallet"
	webhookcontrollers "github.com/angelmondragon/shopcore-backend/api/controllers/webhooks"
	"github.com/angelmondragon/shopcore-backend/api/middleware"
	"github.com/angelmondragon/shopcore-backend/internal/actionrequests"
	"github.com/angelmondragon/shopcore-backend/internal/cart"
	"github.com/angelmondragon/shopcore-backend/internal/catalog"
	"github.com/angelmondragon/shopcore-backend/internal/coupons"
	"github.com/angelmondragon/shopcore-backend/internal/notifications"
	"github.com/angelmondragon/shopcore-backend/internal/orders"
	"github.com/angelmondragon/shopcore-backend/internal/stock"
	"github.com/angelmondragon/shopcore-backend/internal/wallet"
	squarewebhook "github.com/angelmondragon/shopcore-backend/internal/webhooks/square"
	"github.com/angelmondragon/shopcore-backend/pkg/config"
	"github.com/angelmondragon/shopcore-backend/pkg/logger"
	"github.com/angelmondragon/shopcore-backend/pkg/outbox"
	"github.com/angelmondragon/shopcore-backend/pkg/redis"
	"github.com/angelmondragon/shopcore-backend/pkg/square"
)

// Services is everything the HTTP layer dispatches to.
type Services struct {
	Orders         *orders.Service
	ActionRequests *actionrequests.Service
	Stock          *stock.Service
	Catalog        catalog.Service
	Wallet         *wallet.Service
	Coupons        *coupons.Service
	Cart           *cart.Service
	Notifications  *notifications.Inbox
	DeadLetters    *outbox.DLQRepository
	SquareWebhook  *squarewebhook.Service
	SquareGuard    *squarewebhook.Guard
	Square         *square.Client
}

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP controllers.Pinger,
	redisClient *redis.Client,
	gatherer prometheus.Gatherer,
	svc Services,
) http.Handler {
	var (
		idempotencyStore redis.IdempotencyStore
		limiter          middleware.WindowLimiter
	)
	if redisClient != nil {
		idempotencyStore = redisClient
		limiter = redisClient
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.CORS(cfg.App.CORSOrigins, cfg.App.IsDev()),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, readinessDeps(dbP, redisClient), logg))
	})
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	if svc.SquareWebhook != nil && svc.Square != nil && svc.SquareGuard != nil {
		r.Post("/api/v1/webhooks/square", webhookcontrollers.SquareWebhook(svc.SquareWebhook, svc.Square, svc.SquareGuard, logg))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.RateLimit(cfg.RateLimit, limiter, logg))
		r.Use(middleware.Idempotency(idempotencyStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", ordercontrollers.Create(svc.Orders, logg))
			r.Get("/", ordercontrollers.List(svc.Orders, logg))
			r.Get("/{orderId}", ordercontrollers.Detail(svc.Orders, logg))
			r.Post("/{orderId}/retry-payment", ordercontrollers.RetryPayment(svc.Orders, logg))
			r.Post("/{orderId}/cancel", requestcontrollers.CancelOrder(svc.ActionRequests, logg))
			r.Route("/{orderId}/items/{itemId}", func(r chi.Router) {
				r.Post("/cancel", requestcontrollers.CancelItem(svc.ActionRequests, logg))
				r.Post("/return", requestcontrollers.ReturnItem(svc.ActionRequests, logg))
				r.Get("/return-eligibility", requestcontrollers.ReturnEligibility(svc.ActionRequests, logg))
				r.Get("/refund-quote", ordercontrollers.RefundQuoteHandler(svc.Orders, logg))
			})
		})

		r.Route("/wallet", func(r chi.Router) {
			r.Get("/", walletcontrollers.Get(svc.Wallet, logg))
			r.Post("/debit", walletcontrollers.Debit(svc.Wallet, logg))
		})

		r.Route("/coupons", func(r chi.Router) {
			r.Post("/evaluate", couponcontrollers.Evaluate(svc.Coupons, svc.Cart, logg))
			r.Post("/apply", couponcontrollers.Apply(svc.Coupons, svc.Cart, logg))
			r.Post("/revalidate", couponcontrollers.Revalidate(svc.Coupons, svc.Cart, logg))
		})

		if svc.Notifications != nil {
			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", notificationcontrollers.List(svc.Notifications, logg))
				r.Post("/read-all", notificationcontrollers.MarkAllRead(svc.Notifications, logg))
				r.Post("/{id}/read", notificationcontrollers.MarkRead(svc.Notifications, logg))
			})
		}

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireStaff(logg))

			r.Route("/stock", func(r chi.Router) {
				r.Post("/reserve", stockcontrollers.Reserve(svc.Stock, logg))
				r.Post("/release", stockcontrollers.Release(svc.Stock, logg))
				r.Post("/adjust", stockcontrollers.Adjust(svc.Stock, logg))
			})
			r.Route("/products/{productId}", func(r chi.Router) {
				r.Post("/default-variant", stockcontrollers.DefaultVariant(svc.Catalog, logg))
				r.Get("/stock-transactions", stockcontrollers.History(svc.Stock, logg))
			})

			r.Route("/admin", func(r chi.Router) {
				r.Post("/orders/{orderId}/transition", ordercontrollers.AdminTransition(svc.Orders, logg))
				r.Route("/action-requests", func(r chi.Router) {
					r.Get("/", requestcontrollers.ListPending(svc.ActionRequests, logg))
					r.Post("/{id}/approve", requestcontrollers.Approve(svc.ActionRequests, logg))
					r.Post("/{id}/reject", requestcontrollers.Reject(svc.ActionRequests, logg))
				})
				r.Post("/wallets/{userId}/credit", walletcontrollers.AdminCredit(svc.Wallet, logg))
				if svc.DeadLetters != nil {
					r.Route("/outbox/dead-letters", func(r chi.Router) {
						r.Get("/", deadletters.List(svc.DeadLetters, logg))
						r.Post("/{eventId}/replay", deadletters.Replay(svc.DeadLetters, logg))
					})
				}
			})
		})
	})

	return r
}

func readinessDeps(dbP controllers.Pinger, redisClient *redis.Client) map[string]controllers.Pinger {
	deps := map[string]controllers.Pinger{}
	if dbP != nil {
		deps["database"] = dbP
	}
	if redisClient != nil {
		deps["redis"] = redisClient
	}
	return deps
}
