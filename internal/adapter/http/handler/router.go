package handler

import (
	"wallet-ledger/internal/adapter/http/middleware"
	"wallet-ledger/internal/core/domain"
	"wallet-ledger/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	IdentityProvider ports.IdentityProvider
	TokenSvc         ports.TokenService
	CredVerifier     ports.CredentialVerifier
	LedgerSvc        ports.LedgerService
	KeySvc           ports.APIKeyService
	WebhookGate      ports.WebhookGate
	HealthCheckers   []ports.HealthChecker
	Logger           zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep, verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	v1 := r.Group("/api/v1")

	// --- Public routes (no auth) ---
	authHandler := NewAuthHandler(deps.IdentityProvider, deps.TokenSvc)
	v1.POST("/auth/login", authHandler.Login)

	// Provider callbacks authenticate by signature, not credential.
	webhookHandler := NewWebhookHandler(deps.WebhookGate)
	v1.POST("/webhooks/provider", webhookHandler.Receive)

	// --- Credential-authenticated routes ---
	authn := middleware.Authenticate(deps.CredVerifier, deps.Logger)

	walletHandler := NewWalletHandler(deps.LedgerSvc)
	wallet := v1.Group("/wallet", authn)
	{
		wallet.GET("/balance", middleware.RequirePermission(domain.PermissionRead), walletHandler.GetBalance)
		wallet.GET("/transactions", middleware.RequirePermission(domain.PermissionRead), walletHandler.ListTransactions)
		wallet.GET("/deposit/:reference", middleware.RequirePermission(domain.PermissionRead), walletHandler.GetDepositStatus)
		wallet.POST("/deposit", middleware.RequirePermission(domain.PermissionDeposit), walletHandler.InitiateDeposit)
		wallet.POST("/transfer", middleware.RequirePermission(domain.PermissionTransfer), walletHandler.Transfer)
	}

	// --- Key management (session-only) ---
	keysHandler := NewKeysHandler(deps.KeySvc)
	keys := v1.Group("/keys", authn, middleware.RequireSession())
	{
		keys.POST("", keysHandler.Create)
		keys.GET("", keysHandler.List)
		keys.POST("/:id/rollover", keysHandler.Rollover)
		keys.DELETE("/:id", keysHandler.Revoke)
	}

	return r
}
