package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/multierr"

	"github.com/angelmondragon/storefront-backend/api/controllers"
	"github.com/angelmondragon/storefront-backend/api/routes"
	"github.com/angelmondragon/storefront-backend/internal/cart"
	"github.com/angelmondragon/storefront-backend/internal/notifications"
	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/profiles"
	"github.com/angelmondragon/storefront-backend/internal/session"
	"github.com/angelmondragon/storefront-backend/internal/tenants"
	stripewebhook "github.com/angelmondragon/storefront-backend/internal/webhooks/stripe"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/migrate"
	"github.com/angelmondragon/storefront-backend/pkg/pubsub"
	"github.com/angelmondragon/storefront-backend/pkg/redis"
	"github.com/angelmondragon/storefront-backend/pkg/stripe"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		Format:      cfg.App.LogFormat,
		WarnStack:   cfg.App.LogWarnStack,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logg); err != nil {
		logg.Error(context.Background(), "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logg *logger.Logger) (err error) {
	var closers []func() error
	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			err = multierr.Append(err, closers[i]())
		}
	}()

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		return err
	}
	closers = append(closers, dbClient.Close)

	if err := migrate.MaybeRunDev(ctx, cfg, logg, dbClient); err != nil {
		return err
	}

	redisClient, err := redis.New(ctx, cfg.Redis, logg)
	if err != nil {
		return err
	}
	closers = append(closers, redisClient.Close)

	stripeClient, err := stripe.NewClient(ctx, cfg.Stripe, logg)
	if err != nil {
		return err
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	orderMetrics := metrics.NewOrderMetrics(registry)

	readiness := map[string]controllers.Pinger{"db": dbClient, "redis": redisClient}

	var mailer notifications.Mailer = notifications.NewLogMailer(logg)
	if cfg.Email.Enabled() {
		psClient, err := pubsub.NewClient(ctx, cfg.GCP, []string{cfg.Email.Topic}, logg)
		if err != nil {
			return err
		}
		closers = append(closers, psClient.Close)
		readiness["pubsub"] = psClient

		pubsubMailer, err := notifications.NewPubSubMailer(psClient, cfg.Email.Topic)
		if err != nil {
			return err
		}
		mailer = pubsubMailer
	} else {
		logg.Warn(ctx, "email topic not configured; confirmation emails are logged only")
	}

	dispatcher := notifications.NewDispatcher(notifications.DispatcherParams{
		Mailer: mailer,
		Sender: notifications.Sender{
			From:    cfg.Email.FromAddress,
			ReplyTo: cfg.Email.SupportAddress,
			SiteURL: cfg.App.SiteURL,
		},
		Timeout: cfg.Email.DispatchTimeout,
		Metrics: orderMetrics,
		Logger:  logg,
	})

	orderService, err := orders.NewService(orders.ServiceParams{
		Repository: orders.NewRepository(dbClient.DB()),
		TxRunner:   dbClient,
		Notifier:   dispatcher,
		Refunder:   stripeClient,
		Metrics:    orderMetrics,
		Logger:     logg,
	})
	if err != nil {
		return err
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{Orders: orderService, Logger: logg})
	if err != nil {
		return err
	}
	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, cfg.Webhook.IdempotencyTTL)
	if err != nil {
		return err
	}

	cartCodec, err := cart.NewCodec(cfg.Cart.Secret, cfg.Cart.TTL)
	if err != nil {
		return err
	}

	resolver := session.NewResolver(cfg.Identity, profiles.NewRepository(dbClient.DB()), tenants.NewRepository(dbClient.DB()), logg)

	handler := routes.NewRouter(routes.RouterParams{
		Config:               cfg,
		Logger:               logg,
		Gatherer:             registry,
		Metrics:              orderMetrics,
		Readiness:            readiness,
		IdempotencyStore:     redisClient,
		RateLimitStore:       redisClient,
		Sessions:             resolver,
		Orders:               orderService,
		CartCodec:            cartCodec,
		StripeVerifier:       stripeClient,
		StripeWebhookService: webhookService,
		StripeWebhookGuard:   webhookGuard,
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	logCtx := logg.WithFields(ctx, map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"stripe_env": stripeClient.Environment(),
	})

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logg.Info(logCtx, "starting api server")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		return err
	case <-ctx.Done():
	}

	logg.Info(logCtx, "shutting down api server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	err = server.Shutdown(shutdownCtx)
	// in-flight confirmation emails finish before their transports close
	return multierr.Append(err, dispatcher.Wait(shutdownCtx))
}
