package main

import (
	"context"
	"errors"
	"log"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/stripe/stripe-go/v76/client"

	"github.com/trollcity/coin-service/internal/api"
	"github.com/trollcity/coin-service/internal/config"
	"github.com/trollcity/coin-service/internal/database"
	"github.com/trollcity/coin-service/internal/repository"
	"github.com/trollcity/coin-service/internal/service"
	"github.com/trollcity/coin-service/internal/storage"
	"github.com/trollcity/coin-service/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logr := logger.New(cfg.LogLevel)

	db, err := database.Connect(cfg)
	if err != nil {
		log.Fatalf("database connect: %v", err)
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := database.Migrate(ctx, db); err != nil {
		log.Fatalf("database migrate: %v", err)
	}

	var rdb *redis.Client
	if cfg.RedisAddr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			log.Fatalf("redis connect: %v", err)
		}
	}
	cache := repository.NewBalanceCache(rdb)

	userRepo := repository.NewUserRepository(db)
	ledgerRepo := repository.NewLedgerRepository(db, cache, logr)
	cashoutRepo := repository.NewCashoutRepository(db)
	tierRepo := repository.NewTierRepository(db)
	packageRepo := repository.NewPackageRepository(db)
	orderRepo := repository.NewOrderRepository(db, cache, logr)
	telemetryRepo := repository.NewTelemetryRepository(db)

	var archiver service.PayloadArchiver
	if cfg.ArchiveEventPayloads {
		a, err := storage.NewArchiver(storage.Config{
			Endpoint:     cfg.ArchiveEndpoint,
			Region:       cfg.ArchiveRegion,
			AccessKey:    cfg.ArchiveAccessKey,
			SecretKey:    cfg.ArchiveSecretKey,
			Bucket:       cfg.ArchiveBucket,
			UsePathStyle: cfg.ArchiveUsePathStyle,
			Prefix:       cfg.ArchivePrefix,
		})
		if err != nil {
			log.Fatalf("payload archiver: %v", err)
		}
		archiver = a
	}

	stripeClient := &client.API{}
	stripeClient.Init(cfg.StripeSecretKey, nil)

	userService := service.NewUserService(userRepo, logr)
	giftService := service.NewGiftService(ledgerRepo, userRepo, logr)
	walletService := service.NewWalletService(ledgerRepo, userRepo, logr)
	cashoutService := service.NewCashoutService(cashoutRepo, tierRepo, userRepo, ledgerRepo, cfg.CoinUSDRate, logr)
	telemetryService := service.NewTelemetryService(telemetryRepo, logr)

	paymentService := service.NewPaymentService(orderRepo, packageRepo, stripeClient.CheckoutSessions, archiver, service.PaymentConfig{
		StripeWebhookSecret:       cfg.StripeWebhookSecret,
		SquareWebhookSignatureKey: cfg.SquareWebhookSignatureKey,
		SquareNotificationURL:     cfg.SquareNotificationURL,
		AppBaseURL:                cfg.AppBaseURL,
	}, logr)

	if err := cashoutService.EnsureDefaultTiers(ctx); err != nil {
		log.Fatalf("ensure default tiers: %v", err)
	}

	server := api.NewServer(cfg.ListenAddr, cfg.RequestTimeout, logr, userService, giftService, walletService, cashoutService, paymentService, telemetryService)
	if err := server.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Fatalf("server: %v", err)
	}
}
