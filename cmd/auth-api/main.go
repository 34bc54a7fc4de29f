package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/gym-auth-api/api/swagger"
	"github.com/noah-isme/gym-auth-api/internal/handler"
	"github.com/noah-isme/gym-auth-api/internal/middleware"
	"github.com/noah-isme/gym-auth-api/internal/models"
	"github.com/noah-isme/gym-auth-api/internal/repository"
	"github.com/noah-isme/gym-auth-api/internal/service"
	"github.com/noah-isme/gym-auth-api/internal/token"
	"github.com/noah-isme/gym-auth-api/pkg/cache"
	"github.com/noah-isme/gym-auth-api/pkg/config"
	"github.com/noah-isme/gym-auth-api/pkg/database"
	"github.com/noah-isme/gym-auth-api/pkg/jobs"
	"github.com/noah-isme/gym-auth-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/gym-auth-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/gym-auth-api/pkg/middleware/requestid"
)

const shutdownTimeout = 15 * time.Second

// @title Gym Auth API
// @version 1.0.0
// @description Session service issuing access and rotating refresh tokens
// @BasePath /api/v1
// @schemes http https
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logr); err != nil {
		logr.Fatal("server failed", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logr *zap.Logger) error {
	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer db.Close()

	useRedisCache := cfg.Cache.Enabled && cfg.Cache.Driver == config.CacheDriverRedis

	var redisClient *redis.Client
	if cfg.Store.Driver == config.StoreDriverRedis || useRedisCache {
		redisClient, err = cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()
	}

	var store service.RefreshTokenStore
	switch cfg.Store.Driver {
	case config.StoreDriverRedis:
		store = repository.NewRefreshTokenRedisRepository(redisClient)
	default:
		pgStore := repository.NewRefreshTokenRepository(db)
		store = pgStore
		if cfg.Purge.Enabled {
			maintenance, err := service.NewMaintenanceService(pgStore, service.MaintenanceConfig{
				Schedule:  cfg.Purge.Schedule,
				Retention: cfg.Purge.Retention,
			}, logr)
			if err != nil {
				return fmt.Errorf("schedule purge: %w", err)
			}
			maintenance.Start()
			defer maintenance.Stop()
		}
	}

	accessCodec, err := token.NewAccessCodec(token.Config{
		Secret: []byte(cfg.JWT.AccessSecret),
		TTL:    cfg.JWT.Expiration,
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		return err
	}
	refreshCodec, err := token.NewRefreshCodec(token.Config{
		Secret: []byte(cfg.JWT.RefreshSecret),
		TTL:    cfg.JWT.RefreshExpiration,
		Issuer: cfg.JWT.Issuer,
	})
	if err != nil {
		return err
	}

	metricsSvc := service.NewMetricsService()

	var cacheRepo service.CacheRepository = repository.NewCacheRepository(redisClient, logr)
	if cfg.Cache.Enabled && cfg.Cache.Driver == config.CacheDriverMemory {
		memoryCache, err := repository.NewMemoryCacheRepository()
		if err != nil {
			return err
		}
		defer memoryCache.Close()
		cacheRepo = memoryCache
	}
	cacheSvc := service.NewCacheService(cacheRepo, metricsSvc, cfg.Cache.UserTTL, logr, cfg.Cache.Enabled)

	auditSvc := service.NewAuditService(repository.NewAuditRepository(db), jobs.QueueConfig{
		Workers:    cfg.Audit.Workers,
		BufferSize: cfg.Audit.BufferSize,
		MaxRetries: cfg.Audit.MaxRetries,
		RetryDelay: cfg.Audit.RetryDelay,
		Logger:     logr,
	})
	auditSvc.Start(ctx)
	defer auditSvc.Stop()

	sessionSvc := service.NewSessionService(store, accessCodec, refreshCodec, metricsSvc, auditSvc, logr)
	authSvc := service.NewAuthService(
		repository.NewUserRepository(db),
		sessionSvc,
		cacheSvc,
		auditSvc,
		validator.New(),
		logr,
		service.AuthConfig{UserCacheTTL: cfg.Cache.UserTTL, SingleSession: cfg.Session.SingleSession},
	)

	router := newRouter(cfg, logr, authSvc, auditSvc, metricsSvc)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logr.Info("server starting",
			zap.String("addr", srv.Addr),
			zap.String("env", cfg.Env),
			zap.String("store", cfg.Store.Driver),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logr.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func newRouter(cfg *config.Config, logr *zap.Logger, authSvc *service.AuthService, audit service.AuditRecorder, metricsSvc *service.MetricsService) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	cookies := handler.CookieConfig{
		Enabled: cfg.Session.CookiesEnabled,
		Secure:  cfg.Env == config.EnvProduction,
		Domain:  cfg.Session.CookieDomain,
	}
	authHandler := handler.NewAuthHandler(authSvc, cookies)
	sessionHandler := handler.NewSessionHandler(authSvc)
	metricsHandler := handler.NewMetricsHandler(metricsSvc, authSvc)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)

	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	auth := api.Group("/auth")
	auth.POST("/register", authHandler.Register)
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)

	protected := auth.Group("")
	protected.Use(middleware.JWT(authSvc))
	protected.POST("/logout", authHandler.Logout)
	protected.GET("/me", authHandler.Me)
	protected.GET("/sessions", sessionHandler.List)

	users := api.Group("/users")
	users.Use(middleware.JWT(authSvc))
	users.DELETE("/:id/sessions",
		middleware.RBAC(string(models.RoleAdmin), middleware.RoleSelf),
		middleware.Audit(audit, models.AuditActionSessionsRevoked, "session"),
		sessionHandler.RevokeAll,
	)

	return r
}
