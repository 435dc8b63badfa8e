package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/vorobeishop/storefront-backend/internal/cron"
	"github.com/vorobeishop/storefront-backend/internal/inventory"
	"github.com/vorobeishop/storefront-backend/internal/notify"
	"github.com/vorobeishop/storefront-backend/internal/orders"
	"github.com/vorobeishop/storefront-backend/internal/timeout"
	"github.com/vorobeishop/storefront-backend/pkg/config"
	"github.com/vorobeishop/storefront-backend/pkg/db"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
	"github.com/vorobeishop/storefront-backend/pkg/metrics"
	"github.com/vorobeishop/storefront-backend/pkg/migrate"
	"github.com/vorobeishop/storefront-backend/pkg/redis"
	"github.com/vorobeishop/storefront-backend/pkg/telegram"
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

	tgClient, err := telegram.NewClient(cfg.Telegram.BotToken, telegram.WithBaseURL(cfg.Telegram.APIBaseURL))
	if err != nil {
		logg.Error(context.Background(), "failed to create chat client", err)
		os.Exit(1)
	}

	// The reaper cancels stale groups end to end, so it needs the same
	// repositories and buyer notifications the api wires. Payment and
	// shipping gateways stay out: a waitpay order has touched neither.
	ordersSvc := orders.NewService(orders.ServiceDeps{
		Repo:      orders.NewRepository(dbClient.DB()),
		Inventory: inventory.NewRepository(dbClient.DB()),
		Notifier:  notify.NewNotifier(tgClient, cfg.Telegram.ManagerChat, cfg.Telegram.GroupChat, logg),
		Timeouts:  timeout.NewRegistry(logg),
		Waits:     notify.NewScreenshotWaits(),
		Tx:        dbClient,
		Logger:    logg,
		Order:     cfg.Order,
		Shop:      cfg.Shop,
	})

	reaperJob, err := cron.NewWaitPayReaperJob(cron.WaitPayReaperJobParams{
		Logger:    logg,
		Orders:    ordersSvc,
		OlderThan: cfg.Order.PaymentWindow,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create waitpay reaper job", err)
		os.Exit(1)
	}

	metricsCollector := metrics.NewCronJobMetrics(prometheus.DefaultRegisterer)
	lock, err := cron.NewRedisLock(redisClient, redisClient.LockKey(lockScope(cfg.App.Env)), 0)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	registry := cron.NewRegistry(reaperJob)
	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: registry,
		Lock:     lock,
		Metrics:  metricsCollector,
		Interval: cfg.Cron.Interval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}

func lockScope(env string) string {
	if env == "" {
		env = "local"
	}
	return "cron-worker:" + env
}
