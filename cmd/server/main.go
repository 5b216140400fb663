package main

import (
	"context" // context package is needed for Redis operations
	"time"    // Cache lifetimes

	"tipytap/internal/api"        // Custom package for API handlers
	"tipytap/internal/auth"       // Sessions and identity
	"tipytap/internal/config"     // Custom package for configuration
	"tipytap/internal/db"         // Database connection
	"tipytap/internal/guard"      // Guard directory
	"tipytap/internal/ledger"     // Wallet engine
	"tipytap/internal/metrics"    // Prometheus collectors
	"tipytap/internal/repository" // Ledger storage backends
	"tipytap/internal/storage"    // Key-value store

	"github.com/gin-gonic/gin"     // Gin web framework
	"github.com/redis/go-redis/v9" // Redis client
	"github.com/sirupsen/logrus"   // Logrus for structured logging
)

const guardCacheTTL = 5 * time.Minute // Guard profile cache lifetime

// Main function to set up and run the server
func main() {
	cfg := config.LoadConfig() // Load configuration

	// Setup logger
	if cfg.IsProd {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	if cfg.JWTSecret == "" {
		logrus.Fatal("JWT_SECRET must be set")
	}

	// Connect to the database
	gdb, err := db.Open(cfg.DSN())
	if err != nil {
		logrus.Fatalf("failed to connect to DB: %v", err) // Fatal error if DB connection fails
	}

	// Setup Redis client
	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr, // Redis server address
		Password: cfg.RedisPass, // Redis password
		DB:       cfg.RedisDB,   // Redis database number
	})

	// Test Redis connection
	if _, err := redisClient.Ping(context.Background()).Result(); err != nil {
		logrus.Fatalf("failed to connect to Redis: %v", err)
	}

	store := storage.NewRedisStore(redisClient)
	var repo repository.Repository
	switch cfg.Ledger.Backend {
	case config.BackendSQL:
		repo = repository.NewSQLRepository(gdb)
	case config.BackendKV:
		repo = repository.NewKVRepository(store, storage.DefaultKeys)
	default:
		logrus.Fatalf("unknown LEDGER_BACKEND %q", cfg.Ledger.Backend)
	}

	metrics.Init()
	guards := guard.NewDirectory(gdb, redisClient, guardCacheTTL)
	identity := auth.NewSessionIdentity(gdb, store, storage.DefaultKeys, guards)
	engine := ledger.NewEngine(repo, guards, identity, cfg.Ledger)
	authSvc := auth.NewService(gdb, store, storage.DefaultKeys, engine, guards, cfg.JWTSecret, cfg.JWTTTL)

	// Set Mode to Release if in production
	if cfg.IsProd {
		gin.SetMode(gin.ReleaseMode)
	}

	r := api.NewRouter(api.RouterDeps{
		Cfg:      cfg,
		DB:       gdb,
		Redis:    redisClient,
		Engine:   engine,
		Auth:     authSvc,
		Identity: identity,
		Guards:   guards,
	})

	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies([]string{"127.0.0.1"}); err != nil {
		logrus.Fatalf("failed to set trusted proxies: %v", err)
	}

	logrus.WithFields(logrus.Fields{
		"port":     cfg.AppPort,
		"backend":  cfg.Ledger.Backend,
		"currency": cfg.Ledger.Currency,
	}).Info("Server running")
	if err := r.Run(":" + cfg.AppPort); err != nil { // Start the server on port cfg.AppPort
		logrus.Fatalf("server stopped: %v", err)
	}
}
