package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-ledger/config"
	httpHandler "wallet-ledger/internal/adapter/http/handler"
	"wallet-ledger/internal/adapter/provider"
	pgStorage "wallet-ledger/internal/adapter/storage/postgres"
	redisStorage "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/service"
	"wallet-ledger/pkg/logger"

	"github.com/robfig/cron/v3"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Wallet Ledger")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// Initialize repositories
	identityRepo := pgStorage.NewIdentityRepo(pool)
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	keyRepo := pgStorage.NewAPIKeyRepo(pool)
	eventRepo := pgStorage.NewWebhookEventRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	dedupCache := redisStorage.NewEventDedupCache(rdb)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	keyHasher := service.NewSHA256KeyHasher()
	credHasher := service.NewArgon2HashService()
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)

	// Initialize provider client
	paystack := provider.NewPaystackClient(
		cfg.Provider.BaseURL,
		cfg.Provider.SecretKey,
		cfg.Provider.CallbackURL,
		nil,
		logger.Component(log, "provider"),
	)

	// Initialize business services
	identityProvider := service.NewLocalIdentityProvider(identityRepo, walletRepo, credHasher, cfg.Ledger.Currency, logger.Component(log, "identity"))
	credVerifier := service.NewCredentialVerifier(identityRepo, keyRepo, tokenSvc, keyHasher)
	ledgerSvc := service.NewLedgerService(
		walletRepo,
		txRepo,
		paystack,
		transactor,
		cfg.Ledger.MaxRetries,
		cfg.Ledger.MinDeposit,
		logger.Component(log, "ledger"),
	)
	webhookGate := service.NewWebhookGate(
		sigSvc,
		cfg.Provider.WebhookSecret,
		dedupCache,
		eventRepo,
		ledgerSvc,
		transactor,
		cfg.Ledger.MaxRetries,
		logger.Component(log, "webhook"),
	)
	keySvc := service.NewAPIKeyService(keyRepo, transactor, keyHasher, cfg.Ledger.MaxActiveKeys, logger.Component(log, "apikey"))
	reconcileSvc := service.NewReconcileService(
		txRepo,
		eventRepo,
		ledgerSvc,
		paystack,
		transactor,
		dedupCache,
		cfg.Ledger.PendingThreshold,
		cfg.Ledger.MaxRetries,
		logger.Component(log, "reconcile"),
	)

	// Reconciliation sweep for deposits the webhook never confirmed
	scheduler := cron.New()
	if _, err := scheduler.AddFunc(cfg.Ledger.ReconcileEvery, func() {
		if err := reconcileSvc.Sweep(context.Background()); err != nil {
			log.Error().Err(err).Msg("reconcile sweep failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.Ledger.ReconcileEvery).Msg("Invalid reconcile schedule")
	}
	scheduler.Start()
	defer scheduler.Stop()

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		IdentityProvider: identityProvider,
		TokenSvc:         tokenSvc,
		CredVerifier:     credVerifier,
		LedgerSvc:        ledgerSvc,
		KeySvc:           keySvc,
		WebhookGate:      webhookGate,
		HealthCheckers:   []ports.HealthChecker{pgHealth, redisHealth},
		Logger:           log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
