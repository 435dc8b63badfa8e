package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vorobeishop/storefront-backend/api/routes"
	"github.com/vorobeishop/storefront-backend/internal/bot"
	"github.com/vorobeishop/storefront-backend/internal/carrier"
	checkoutsvc "github.com/vorobeishop/storefront-backend/internal/checkout"
	"github.com/vorobeishop/storefront-backend/internal/inventory"
	"github.com/vorobeishop/storefront-backend/internal/notify"
	"github.com/vorobeishop/storefront-backend/internal/orders"
	"github.com/vorobeishop/storefront-backend/internal/payments"
	"github.com/vorobeishop/storefront-backend/internal/timeout"
	"github.com/vorobeishop/storefront-backend/pkg/cdek"
	"github.com/vorobeishop/storefront-backend/pkg/config"
	"github.com/vorobeishop/storefront-backend/pkg/db"
	"github.com/vorobeishop/storefront-backend/pkg/logger"
	"github.com/vorobeishop/storefront-backend/pkg/migrate"
	"github.com/vorobeishop/storefront-backend/pkg/redis"
	"github.com/vorobeishop/storefront-backend/pkg/russianpost"
	"github.com/vorobeishop/storefront-backend/pkg/telegram"
	"github.com/vorobeishop/storefront-backend/pkg/tpay"
)

const shutdownTimeout = 10 * time.Second

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

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	dbClient, err := db.New(rootCtx, cfg.DB, logg)
	if err != nil {
		logg.Error(rootCtx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(rootCtx, cfg, logg, dbClient); err != nil {
		logg.Error(rootCtx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(rootCtx, cfg.Redis, logg)
	if err != nil {
		logg.Error(rootCtx, "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	tgClient, err := telegram.NewClient(cfg.Telegram.BotToken, telegram.WithBaseURL(cfg.Telegram.APIBaseURL))
	if err != nil {
		logg.Error(rootCtx, "failed to create chat client", err)
		os.Exit(1)
	}
	tpayClient, err := tpay.NewClient(cfg.TPay.TerminalKey, cfg.TPay.Password, tpay.WithBaseURL(cfg.TPay.BaseURL))
	if err != nil {
		logg.Error(rootCtx, "failed to create payment gateway client", err)
		os.Exit(1)
	}
	cdekClient, err := cdek.NewClient(cfg.Cdek.Account, cfg.Cdek.SecurePass, cdek.WithBaseURL(cfg.Cdek.BaseURL))
	if err != nil {
		logg.Error(rootCtx, "failed to create cdek client", err)
		os.Exit(1)
	}
	postClient, err := russianpost.NewClient(cfg.RussianPost.AccessToken, cfg.RussianPost.UserAuth, russianpost.WithBaseURL(cfg.RussianPost.BaseURL))
	if err != nil {
		logg.Error(rootCtx, "failed to create russian post client", err)
		os.Exit(1)
	}

	notifier := notify.NewNotifier(tgClient, cfg.Telegram.ManagerChat, cfg.Telegram.GroupChat, logg)
	waits := notify.NewScreenshotWaits()
	timeouts := timeout.NewRegistry(logg)

	ordersRepo := orders.NewRepository(dbClient.DB())
	inventoryRepo := inventory.NewRepository(dbClient.DB())
	paymentsSvc := payments.NewService(payments.NewRepository(dbClient.DB()), tpayClient, logg)
	gateways := carrier.NewSelector(
		carrier.NewCdekGateway(cdekClient, cfg.Cdek, cfg.Order, logg),
		carrier.NewPostGateway(postClient, logg),
	)

	ordersSvc := orders.NewService(orders.ServiceDeps{
		Repo:      ordersRepo,
		Inventory: inventoryRepo,
		Payments:  paymentsSvc,
		Carriers:  gateways,
		Notifier:  notifier,
		Timeouts:  timeouts,
		Waits:     waits,
		Tx:        dbClient,
		Logger:    logg,
		Order:     cfg.Order,
		Shop:      cfg.Shop,
	})

	checkoutSvc := checkoutsvc.NewService(checkoutsvc.ServiceDeps{
		Catalog: ordersRepo,
		Orders:  ordersSvc,
		Logger:  logg,
		Order:   cfg.Order,
	})

	if swept, err := ordersSvc.StartupSweep(rootCtx); err != nil {
		logg.Error(rootCtx, "startup sweep failed", err)
	} else if swept > 0 {
		logg.Info(logg.WithFields(rootCtx, map[string]any{"swept": swept}), "orphaned orders swept")
	}

	if !cfg.Telegram.DisablePolls {
		dispatcher := bot.NewDispatcher(bot.DispatcherDeps{
			Source:      tgClient,
			Orders:      ordersSvc,
			Notifier:    notifier,
			Waits:       waits,
			ManagerChat: cfg.Telegram.ManagerChat,
			Logger:      logg,
		})
		go func() {
			if err := dispatcher.Run(rootCtx); err != nil && rootCtx.Err() == nil {
				logg.Error(rootCtx, "bot dispatcher stopped unexpectedly", err)
			}
		}()
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(rootCtx, map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.Deps{
			Config:   cfg,
			Logger:   logg,
			DB:       dbClient,
			Redis:    redisClient,
			Checkout: checkoutSvc,
			Orders:   ordersSvc,
			Buyers:   ordersRepo,
			Sender:   notifier,
		}),
	}

	go func() {
		<-rootCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(shutdownCtx, "server shutdown", err)
		}
	}()

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
	timeouts.Sweep()
	logg.Info(ctx, "api server stopped")
}
