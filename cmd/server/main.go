package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/DukeRupert/novella/internal"
	"github.com/DukeRupert/novella/internal/content"
	"github.com/DukeRupert/novella/internal/domain"
	"github.com/DukeRupert/novella/internal/handler"
	"github.com/DukeRupert/novella/internal/metrics"
	"github.com/DukeRupert/novella/internal/middleware"
	"github.com/DukeRupert/novella/internal/service"
	"github.com/DukeRupert/novella/internal/storage"
	"github.com/DukeRupert/novella/internal/store"
	"github.com/DukeRupert/novella/internal/token"
	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Run migrations over database/sql; goose needs the stdlib driver
	db, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := internal.RunMigrations(db); err != nil {
		db.Close()
		return fmt.Errorf("migration failed: %w", err)
	}
	db.Close()

	// Connection pool for the stores
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("connection pool failed: %w", err)
	}
	defer pool.Close()
	logger.Info("Database ready")

	// Tier catalog
	catalog := domain.DefaultCatalog()

	// Stores
	entStore := store.NewPostgresStore(pool, logger)
	locator := content.NewPostgresLocator(pool, logger)

	// Nonce store for single-use tokens
	var nonces token.NonceStore
	switch cfg.NonceStore {
	case "redis":
		opt, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("invalid REDIS_URL: %w", err)
		}
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		nonces = token.NewRedisNonceStore(client)
	default:
		nonces = token.NewMemoryNonceStore()
	}
	defer nonces.Close()

	// Token service
	tokens, err := token.NewService(token.Config{
		Secret:    []byte(cfg.TokenSecret),
		TTL:       cfg.TokenTTL,
		SingleUse: cfg.TokenSingleUse,
	}, nonces, logger)
	if err != nil {
		return fmt.Errorf("token service failed: %w", err)
	}

	// Content storage backend
	var contentStorage storage.Storage
	switch cfg.StorageProvider {
	case storage.ProviderR2:
		contentStorage, err = storage.NewR2Storage(storage.R2Config{
			AccountID:       cfg.R2AccountID,
			AccessKeyID:     cfg.R2AccessKeyID,
			SecretAccessKey: cfg.R2SecretAccessKey,
			BucketName:      cfg.R2BucketName,
		}, logger)
	default:
		contentStorage, err = storage.NewLocalStorage(storage.LocalConfig{
			BasePath: cfg.LocalStoragePath,
		}, logger)
	}
	if err != nil {
		return fmt.Errorf("storage initialization failed: %w", err)
	}
	logger.Info("Storage ready", "provider", cfg.StorageProvider)

	// Services
	entitlements := service.NewEntitlementService(entStore, catalog, logger)
	quota := service.NewQuotaService(entStore, catalog, entitlements, logger)

	// Rate limiter for the access endpoint
	var limiter *middleware.RateLimiter
	if cfg.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow, logger)
	}

	// Admin authentication for ingest and tier changes
	adminAuth := func(next http.Handler) http.Handler { return next }
	if cfg.AdminUsername != "" && cfg.AdminPassword != "" {
		adminAuth = middleware.NewBasicAuthMiddleware(cfg.AdminUsername, cfg.AdminPassword, "novella admin").Handler
	} else if cfg.Env != "development" {
		return fmt.Errorf("ADMIN_USERNAME and ADMIN_PASSWORD are required outside development")
	}

	// Handlers
	accessHandler := handler.NewAccessHandler(quota, entitlements, tokens, limiter, logger)
	streamHandler := handler.NewStreamHandler(tokens, entitlements, locator, contentStorage, logger)
	contentHandler := handler.NewContentHandler(locator, contentStorage, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics (basic auth when configured)
	metricsHandler := promhttp.Handler()
	if cfg.MetricsUsername != "" && cfg.MetricsPassword != "" {
		metricsAuth := middleware.NewBasicAuthMiddleware(cfg.MetricsUsername, cfg.MetricsPassword, "novella metrics")
		metricsHandler = metricsAuth.Handler(metricsHandler)
	} else {
		logger.Warn("metrics endpoint is unprotected; set METRICS_USERNAME and METRICS_PASSWORD")
	}
	mux.Handle("GET /metrics", metricsHandler)

	accessHandler.RegisterRoutes(mux, adminAuth)
	streamHandler.RegisterRoutes(mux)
	contentHandler.RegisterRoutes(mux, adminAuth)

	// Outermost request logging, then metrics collection
	requestLogging := middleware.NewRequestLoggingMiddleware(logger)
	root := middleware.Stack(requestLogging.Handler, metrics.Middleware)(mux)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: root,
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
