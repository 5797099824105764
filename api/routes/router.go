package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	webhookcontrollers "github.com/angelmondragon/storefront-backend/api/controllers/webhooks"
	"github.com/angelmondragon/storefront-backend/api/middleware"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/session"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	pkgredis "github.com/angelmondragon/storefront-backend/pkg/redis"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

type RouterParams struct {
	Config   *config.Config
	Logger   *logger.Logger
	Gatherer prometheus.Gatherer
	Metrics  *metrics.OrderMetrics

	// Readiness lists the dependencies /health/ready pings, by name.
	Readiness map[string]controllers.Pinger

	IdempotencyStore pkgredis.IdempotencyStore
	RateLimitStore   pkgredis.RateLimitStore

	Sessions  *session.Resolver
	Orders    orders.Service
	CartCodec *cart.Codec

	StripeVerifier       *pkgstripe.Client
	StripeWebhookService *stripewebhook.Service
	StripeWebhookGuard   *stripewebhook.IdempotencyGuard
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.Recoverer(logg),
		middleware.SecurityHeaders,
		middleware.CORS(cfg.App.AllowedOrigins),
		middleware.RateLimit(middleware.RateLimitPolicy{
			Window:         cfg.RateLimit.Window,
			Limit:          int64(cfg.RateLimit.MaxRequests),
			BypassPrefixes: cfg.RateLimit.BypassPrefixes,
		}, p.RateLimitStore, logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.Readiness, logg))
	})
	if p.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(p.Gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(p.StripeWebhookService, p.StripeVerifier, p.StripeWebhookGuard, p.Metrics, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Session(p.Sessions, logg))
		r.Use(middleware.Idempotency(p.IdempotencyStore, logg))

		r.Route("/v1", func(r chi.Router) {
			r.Get("/session", controllers.CurrentSession())
			r.Get("/cart", controllers.GetCart(p.CartCodec, cfg.Cart, logg))
			r.Put("/cart", controllers.PutCart(p.CartCodec, cfg.Cart, logg))

			r.Group(func(r chi.Router) {
				r.Use(middleware.RequireUser(cfg.Identity.LoginPath, logg))
				r.Post("/checkout", controllers.Checkout(p.Orders, logg))
				r.Route("/orders", func(r chi.Router) {
					r.Get("/", controllers.MyOrders(p.Orders, logg))
					r.Get("/{orderId}", controllers.MyOrder(p.Orders, logg))
					r.Post("/{orderId}/cancel", controllers.CancelMyOrder(p.Orders, logg))
				})
			})
		})

		r.Route("/admin/v1", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(cfg.Identity.LoginPath, logg))
			r.Get("/tenant", controllers.AdminTenant(p.Sessions, logg))
			r.Route("/orders", func(r chi.Router) {
				r.Get("/", controllers.AdminListOrders(p.Orders, logg))
				r.Post("/{orderId}/fulfill", controllers.AdminFulfillOrder(p.Orders, logg))
				r.Post("/{orderId}/refund", controllers.AdminRefundOrder(p.Orders, logg))
			})
		})
	})

	return r
}
