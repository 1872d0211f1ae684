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
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lplate/lplate-backend/internal/bookings"
	"github.com/lplate/lplate-backend/internal/connect"
	"github.com/lplate/lplate-backend/internal/cron"
	"github.com/lplate/lplate-backend/internal/payouts"
	"github.com/lplate/lplate-backend/pkg/config"
	"github.com/lplate/lplate-backend/pkg/db"
	"github.com/lplate/lplate-backend/pkg/instance"
	"github.com/lplate/lplate-backend/pkg/logger"
	"github.com/lplate/lplate-backend/pkg/metrics"
	"github.com/lplate/lplate-backend/pkg/migrate"
	"github.com/lplate/lplate-backend/pkg/redis"
	pkgstripe "github.com/lplate/lplate-backend/pkg/stripe"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
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

	location, err := cfg.Payouts.Location()
	if err != nil {
		logg.Error(context.Background(), "invalid payout timezone", err)
		os.Exit(1)
	}

	registerer := prometheus.DefaultRegisterer
	payoutsService, err := payouts.NewService(payouts.ServiceParams{
		Repo:     payouts.NewRepository(dbClient.DB()),
		Lessons:  bookings.NewRepository(dbClient.DB()),
		Accounts: connect.NewRepository(dbClient.DB()),
		Provider: stripeClient,
		Metrics:  metrics.NewPayoutMetrics(registerer),
		Logger:   logg,
		Config: payouts.Config{
			Location:           location,
			Currency:           cfg.Stripe.CurrencyCode(),
			TransferMaxRetries: cfg.Payouts.TransferMaxRetries,
			TransferBackoff:    cfg.Payouts.TransferBackoff,
			MaxAttempts:        cfg.Payouts.MaxAttempts,
			HistoryLimit:       cfg.Payouts.HistoryLimit,
		},
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create payouts service", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry()
	jobParams := cron.PayoutJobParams{Logger: logg, Payouts: payoutsService, Location: location}
	payoutJob, err := cron.NewPayoutJob(jobParams)
	if err == nil {
		err = registry.Register(cfg.Payouts.Schedule, payoutJob)
	}
	if err != nil {
		logg.Error(context.Background(), "failed to register payout job", err)
		os.Exit(1)
	}
	retryJob, err := cron.NewPayoutRetryJob(jobParams)
	if err == nil && cfg.Payouts.RetrySchedule != "" {
		err = registry.Register(cfg.Payouts.RetrySchedule, retryJob)
	}
	if err != nil {
		logg.Error(context.Background(), "failed to register payout retry job", err)
		os.Exit(1)
	}

	locker, err := cron.NewRedisLocker(redisClient, cfg.Payouts.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Locker:   locker,
		Metrics:  metrics.NewCronJobMetrics(registerer),
		Location: location,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
		"instance":    instance.GetID(),
	})

	if len(os.Args) > 1 {
		// run a single job once, e.g. `cron-worker weekly-payouts`
		if err := service.RunNow(ctx, os.Args[1]); err != nil {
			logg.Error(ctx, "job run failed", err)
			os.Exit(1)
		}
		return
	}

	metricsServer := &http.Server{
		Addr:              ":" + cfg.App.Port,
		Handler:           promhttp.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "metrics server stopped", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
