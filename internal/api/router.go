package api

import (
	"time"

	"tipytap/internal/auth"
	"tipytap/internal/config"
	"tipytap/internal/guard"
	"tipytap/internal/ledger"
	"tipytap/internal/metrics"
	"tipytap/internal/middleware"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// RouterDeps are the services the HTTP API is built on
type RouterDeps struct {
	Cfg      *config.Config
	DB       *gorm.DB
	Redis    redis.Cmdable
	Engine   *ledger.Engine
	Auth     *auth.Service
	Identity *auth.SessionIdentity
	Guards   *guard.Directory
	Now      func() time.Time // Clock for statement defaults, time.Now when nil
}

// NewRouter mounts every route on a gin engine
func NewRouter(d RouterDeps) *gin.Engine {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery(), middleware.RequestID(), middleware.HTTPMetrics())

	// health & metrics
	r.GET("/healthz", HealthHandler(d.DB, d.Redis))
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	jwtAuth := middleware.JWTAuthMiddleware(d.Cfg.JWTSecret)
	session := middleware.RequireSession(d.Identity)

	// Auth routes
	authGroup := r.Group("/auth")
	authGroup.POST("/register", RegisterHandler(d.Auth)) // Registration endpoint
	authGroup.POST("/login", LoginHandler(d.Auth))       // Login endpoint
	authGroup.POST("/logout", jwtAuth, LogoutHandler(d.Auth))
	authGroup.POST("/pin", jwtAuth, session, SetPINHandler(d.Auth))
	authGroup.DELETE("/pin", jwtAuth, session, DisablePINHandler(d.Auth))
	authGroup.POST("/pin/verify", jwtAuth, session, VerifyPINHandler(d.Auth))

	// Wallet routes (protected by JWT and a live session)
	walletGroup := r.Group("/wallet")
	walletGroup.Use(jwtAuth, session)
	walletGroup.GET("", GetWalletHandler(d.Engine, d.Redis))
	walletGroup.GET("/balance", GetBalanceHandler(d.Engine, d.Cfg.Ledger.Currency, d.Cfg.Ledger.CurrencySymbol))
	walletGroup.POST("/deposit", DepositHandler(d.Engine, d.Redis))
	walletGroup.POST("/withdraw", WithdrawHandler(d.Engine, d.Redis))
	walletGroup.POST("/tip", TipHandler(d.Engine, d.Redis))
	walletGroup.POST("/qr/validate", ValidateQRHandler(d.Engine))
	walletGroup.GET("/qr", MyQRHandler(d.Engine))
	walletGroup.GET("/transactions", GetTransactionHistoryHandler(d.Engine, d.Redis))
	walletGroup.GET("/statement", StatementHandler(d.Engine, now))

	// Admin routes (protected, admin only)
	adminGroup := r.Group("/admin")
	adminGroup.Use(jwtAuth, session, middleware.AdminOnlyMiddleware(d.DB))
	adminGroup.GET("/users", ListUsersHandler(d.DB, d.Redis))
	adminGroup.GET("/guards", ListGuardsHandler(d.Guards))
	adminGroup.POST("/guards", RegisterGuardHandler(d.Guards, d.Cfg.Ledger.QRCodePrefix))
	if d.Cfg.Ledger.Backend == config.BackendSQL {
		// Transactions only live in the database on the sql backend
		adminGroup.GET("/transactions", ListTransactionsHandler(d.DB, d.Redis))
	}
	return r
}
