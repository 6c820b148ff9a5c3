package main

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	callHandler "webconf-backend/internal/handler/http/call"
	providerHandler "webconf-backend/internal/handler/http/provider"
	wsHandler "webconf-backend/internal/handler/ws"
	"webconf-backend/internal/middleware"
	"webconf-backend/internal/provider/webrtc"
	"webconf-backend/internal/repository"
	"webconf-backend/internal/repository/cockroach"
	redisRepo "webconf-backend/internal/repository/redis"
	"webconf-backend/internal/repository/sqlite"
	callService "webconf-backend/internal/service/call"
	"webconf-backend/internal/service/notification"
	providerService "webconf-backend/internal/service/provider"
	"webconf-backend/pkg/config"
	"webconf-backend/pkg/constants"
	"webconf-backend/pkg/database"
	"webconf-backend/pkg/jwt"
	"webconf-backend/pkg/logger"
	"webconf-backend/pkg/metrics"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// 1. Configuration and logging
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}
	if err := logger.Init(&logger.Config{
		Level:    cfg.Log.Level,
		Format:   cfg.Log.Format,
		Output:   cfg.Log.Output,
		FilePath: cfg.Log.FilePath,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "init logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	// 2. Call store
	store, closeStore, err := openStore(ctx, cfg.Store)
	if err != nil {
		logger.Fatal("Failed to open call store", zap.String("driver", cfg.Store.Driver), zap.Error(err))
	}
	defer closeStore()

	// 3. Redis for the directory, provider settings, revocation and rate limits
	redisDB, err := database.NewRedisDB(ctx, cfg.Redis)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisDB.Close()
	logger.Info("Connected to Redis", zap.String("addr", cfg.Redis.Addr()))

	var directory callService.IdentityResolver = redisRepo.NewDirectoryRepository(redisDB.Client)
	if ttl := cfg.Calls.DirectoryCacheTTL; ttl > 0 {
		cached := redisRepo.NewCachedDirectory(directory, ttl, cfg.Calls.DirectoryCacheSize)
		defer cached.StartCleanup(ttl)()
		directory = cached
	}
	settings := redisRepo.NewSettingsRepository(redisDB.Client)

	// 4. Metrics and notification hub
	appMetrics := metrics.NewMetrics(cfg.Server.ServiceName)
	hub := notification.NewHub(cfg.Calls.DispatchTimeout, appMetrics)
	defer hub.Close()

	// 5. Providers
	registry := providerService.NewRegistry(settings)
	if err := registry.RegisterPlugin(webrtc.NewProvider(cfg.WebRTC.ICEServers, cfg.WebRTC.LogEnabled)); err != nil {
		logger.Fatal("Failed to register WebRTC provider", zap.Error(err))
	}

	// 6. Call service
	calls := callService.NewService(store, directory, hub, appMetrics).
		WithUserCallMaxAge(cfg.Calls.UserCallMaxAgeDays)
	calls.StartupSweep(ctx)

	// 7. Router
	if cfg.Server.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	// call ids may contain "/" and arrive escaped in the path
	router.UseRawPath = true

	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.NewPrometheusMiddleware(appMetrics).Handler())

	router.GET("/health", middleware.HealthCheck(cfg.Server.ServiceName))
	router.GET("/metrics", middleware.MetricsHandler(appMetrics))

	jwtManager := jwt.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Audience, constants.AccessTokenExpiry)
	revocationChecker := middleware.NewRedisRevocationChecker(redisDB.Client)
	rateLimiter := middleware.NewRateLimiter(redisDB.Client, cfg.Server.RateLimitRequests, cfg.Server.RateLimitWindow)

	listeners := wsHandler.NewListenerHandler(hub, appMetrics, cfg.Calls.MaxListeners, cfg.Server.AllowedOrigins)

	v1 := router.Group("/v1")
	v1.Use(middleware.AuthMiddleware(jwtManager, revocationChecker))
	{
		// listener socket is registered before the rate limiter, it is long-lived
		v1.GET("/calls/listen", listeners.ServeWS)

		limited := v1.Group("", rateLimiter.Middleware())
		callHandler.NewHandler(calls).RegisterRoutes(limited)
		providerHandler.NewHandler(registry).RegisterRoutes(limited)
	}

	// 8. Serve until signalled
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("Call service starting",
			zap.Int("port", cfg.Server.Port),
			zap.String("store", cfg.Store.Driver),
			zap.String("listen", "/v1/calls/listen"))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.GracefulShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}
	logger.Info("Server exited")
}

// openStore opens the call store selected by cfg.Driver. The returned func releases it.
func openStore(ctx context.Context, cfg config.StoreConfig) (repository.CallStore, func(), error) {
	if strings.EqualFold(cfg.Driver, "sqlite") {
		store, err := sqlite.Open(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		logger.Info("Opened SQLite call store", zap.String("path", cfg.SQLitePath))
		return store, func() { _ = store.Close() }, nil
	}

	db, err := connectCockroach(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	store := cockroach.NewCallStore(db.Pool)
	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return store, db.Close, nil
}

// connectCockroach connects with exponential backoff
func connectCockroach(ctx context.Context, cfg config.StoreConfig) (*database.CockroachDB, error) {
	const maxRetries = 5
	baseDelay := 1 * time.Second
	maxDelay := 30 * time.Second

	db, err := database.NewCockroachDB(ctx, cfg)
	for attempt := 2; err != nil && attempt <= maxRetries; attempt++ {
		delay := time.Duration(float64(baseDelay) * math.Pow(2, float64(attempt-1)))
		if delay > maxDelay {
			delay = maxDelay
		}
		logger.Warn("CockroachDB connection failed, retrying",
			zap.Int("attempt", attempt-1),
			zap.Duration("delay", delay),
			zap.Error(err))
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
		db, err = database.NewCockroachDB(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("connect cockroach after %d attempts: %w", maxRetries, err)
	}
	logger.Info("Connected to CockroachDB", zap.String("host", cfg.Host))
	return db, nil
}
