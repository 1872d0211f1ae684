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

	webhookcontrollers "github.com/lplate/lplate-backend/api/controllers/webhooks"
	"github.com/lplate/lplate-backend/api/routes"
	"github.com/lplate/lplate-backend/internal/bookings"
	"github.com/lplate/lplate-backend/internal/commission"
	"github.com/lplate/lplate-backend/internal/connect"
	"github.com/lplate/lplate-backend/internal/credits"
	"github.com/lplate/lplate-backend/internal/discounts"
	"github.com/lplate/lplate-backend/internal/payments"
	"github.com/lplate/lplate-backend/internal/payouts"
	"github.com/lplate/lplate-backend/internal/profiles"
	stripewebhook "github.com/lplate/lplate-backend/internal/webhooks/stripe"
	"github.com/lplate/lplate-backend/pkg/config"
	"github.com/lplate/lplate-backend/pkg/db"
	"github.com/lplate/lplate-backend/pkg/instance"
	"github.com/lplate/lplate-backend/pkg/logger"
	"github.com/lplate/lplate-backend/pkg/metrics"
	"github.com/lplate/lplate-backend/pkg/migrate"
	"github.com/lplate/lplate-backend/pkg/redis"
	pkgstripe "github.com/lplate/lplate-backend/pkg/stripe"
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
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	stripeClient, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap stripe", err)
		os.Exit(1)
	}

	payoutLoc, err := cfg.Payouts.Location()
	if err != nil {
		logg.Error(context.Background(), "invalid payout timezone", err)
		os.Exit(1)
	}

	calculator, err := commission.NewCalculator(cfg.Fees.PlatformFeePercent)
	exitOnErr(logg, "failed to create commission calculator", err)

	gormDB := dbClient.DB()
	profilesService, err := profiles.NewService(profiles.NewRepository(gormDB))
	exitOnErr(logg, "failed to create profiles service", err)

	connectRepo := connect.NewRepository(gormDB)
	connectService, err := connect.NewService(connectRepo, profilesService, stripeClient, logg)
	exitOnErr(logg, "failed to create connect service", err)

	discountsService, err := discounts.NewService(discounts.NewRepository(gormDB), logg)
	exitOnErr(logg, "failed to create discounts service", err)

	bookingsRepo := bookings.NewRepository(gormDB)
	paymentsRepo := payments.NewRepository(gormDB)
	paymentsService, err := payments.NewService(payments.ServiceParams{
		Repo:       paymentsRepo,
		Parties:    profilesService,
		Bookings:   bookingsRepo,
		Accounts:   connectService,
		Discounts:  discountsService,
		Calculator: calculator,
		Provider:   stripeClient,
		Currency:   cfg.Stripe.CurrencyCode(),
		Logger:     logg,
	})
	exitOnErr(logg, "failed to create payments service", err)

	creditsService, err := credits.NewService(credits.NewRepository(gormDB), paymentsRepo, bookingsRepo, dbClient, calculator, cfg.Stripe.CurrencyCode())
	exitOnErr(logg, "failed to create credits service", err)

	bookingsService, err := bookings.NewService(bookingsRepo)
	exitOnErr(logg, "failed to create bookings service", err)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	payoutsService, err := payouts.NewService(payouts.ServiceParams{
		Repo:     payouts.NewRepository(gormDB),
		Lessons:  bookingsRepo,
		Accounts: connectRepo,
		Provider: stripeClient,
		Metrics:  metrics.NewPayoutMetrics(registry),
		Logger:   logg,
		Config: payouts.Config{
			Location:           payoutLoc,
			Currency:           cfg.Stripe.CurrencyCode(),
			TransferMaxRetries: cfg.Payouts.TransferMaxRetries,
			TransferBackoff:    cfg.Payouts.TransferBackoff,
			MaxAttempts:        cfg.Payouts.MaxAttempts,
			HistoryLimit:       cfg.Payouts.HistoryLimit,
		},
	})
	exitOnErr(logg, "failed to create payouts service", err)

	paymentsReconciler, err := stripewebhook.NewPaymentsReconciler(stripewebhook.PaymentsParams{
		Payments:          paymentsRepo,
		Credits:           creditsService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	exitOnErr(logg, "failed to create payments reconciler", err)

	connectReconciler, err := stripewebhook.NewConnectReconciler(stripewebhook.ConnectParams{
		Accounts:  connectService,
		Transfers: payoutsService,
		Logger:    logg,
	})
	exitOnErr(logg, "failed to create connect reconciler", err)

	paymentsGuard, err := stripewebhook.NewEventGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe_payments")
	exitOnErr(logg, "failed to create payments webhook guard", err)
	connectGuard, err := stripewebhook.NewEventGuard(redisClient, cfg.Eventing.WebhookIdempotencyTTL, "stripe_connect")
	exitOnErr(logg, "failed to create connect webhook guard", err)

	webhookMetrics := metrics.NewWebhookMetrics(registry)

	router := routes.NewRouter(routes.Dependencies{
		Config:      cfg,
		Logger:      logg,
		DB:          dbClient,
		Redis:       redisClient,
		Idempotency: redisClient,
		Gatherer:    registry,
		Payments:    paymentsService,
		Credits:     creditsService,
		Payouts:     payoutsService,
		Connect:     connectService,
		Bookings:    bookingsService,
		PaymentsWebhook: webhookcontrollers.StripeEndpoint{
			Name:          webhookcontrollers.EndpointPayments,
			SigningSecret: stripeClient.PaymentsSigningSecret(),
			Handler:       paymentsReconciler,
			Guard:         paymentsGuard,
			Metrics:       webhookMetrics,
		},
		ConnectWebhook: webhookcontrollers.StripeEndpoint{
			Name:          webhookcontrollers.EndpointConnect,
			SigningSecret: stripeClient.ConnectSigningSecret(),
			Handler:       connectReconciler,
			Guard:         connectGuard,
			Metrics:       webhookMetrics,
		},
	})

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":        cfg.App.Env,
		"addr":       addr,
		"instance":   instance.GetID(),
		"stripe_env": stripeClient.Environment(),
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}
}

func exitOnErr(logg *logger.Logger, msg string, err error) {
	if err != nil {
		logg.Error(context.Background(), msg, err)
		os.Exit(1)
	}
}
