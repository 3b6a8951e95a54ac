package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"connectivity/internal/auth"
	"connectivity/internal/config"
	"connectivity/internal/constants"
	"connectivity/internal/gateway"
	"connectivity/internal/logger"
	"connectivity/internal/outcome"
	"connectivity/internal/revocation"
	"connectivity/internal/verification"
	"connectivity/pkg/bootstrap"
	"connectivity/pkg/health"
	"connectivity/pkg/metrics"
	"connectivity/pkg/middleware"
	"connectivity/pkg/models"
	"connectivity/pkg/ratelimit"
	"connectivity/pkg/tracing"
)

const serviceName = "gateway-service"

type App struct {
	config      *config.Config
	logger      logger.Logger
	base        *bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	health      *health.CheckerRegistry
	server      *http.Server
	router      *gin.Engine
	stopLimiter context.CancelFunc
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	return &App{
		config:      cfg,
		logger:      log,
		base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
		health:      health.NewCheckerRegistry(),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	metrics.RegisterGatewayMetrics()
	metrics.RegisterVerificationMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterStoreMetrics()
	metrics.RegisterCircuitBreakerMetrics()

	if err := a.base.InitTracing(serviceName); err != nil {
		return err
	}

	if err := a.initRouter(ctx); err != nil {
		return fmt.Errorf("failed to initialize router: %w", err)
	}

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      a.router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds,
	}
	return nil
}

func (a *App) initRouter(ctx context.Context) error {
	tokens, err := auth.NewTokenService(a.config.Auth)
	if err != nil {
		return err
	}

	rdb, err := a.dbConnector.InitRedis(ctx)
	if err != nil {
		return err
	}
	revocations := revocation.NewCache(rdb, a.config.Auth.LookupTimeout)
	a.health.Register(health.Redis(rdb))

	pg, mdb, err := a.dbConnector.InitResultStoreBackend(ctx)
	if err != nil {
		return err
	}
	store, err := outcome.NewStore(a.config, pg, mdb)
	if err != nil {
		return err
	}
	if pg != nil {
		a.health.Register(health.Postgres(pg))
	}
	if a.dbConnector.Mongo != nil {
		a.health.Register(health.Mongo(a.dbConnector.Mongo))
	}

	var clientOpts []verification.Option
	if a.config.CircuitBreaker.Enabled {
		breaker := verification.NewBreaker(a.config.CircuitBreaker)
		clientOpts = append(clientOpts, verification.WithCircuitBreaker(breaker))
		a.health.Register(health.Breaker("verification-api-breaker", breaker))
	}
	client, err := verification.NewClient(a.config.Verification, a.logger, clientOpts...)
	if err != nil {
		return err
	}

	if err := a.base.InitProducer(); err != nil {
		return err
	}

	queues := map[models.Kind]string{
		models.KindAffiliation: a.config.Workers.Affiliation.Queue,
		models.KindDocument:    a.config.Workers.Document.Queue,
	}
	svc := gateway.NewService(a.base.Producer, store, client, revocations, tokens, queues, a.logger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware(serviceName))
	}

	router.Use(middleware.RecoveryMiddleware(a.logger))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.LoggerMiddleware(a.logger))

	if a.config.Gateway.RateLimit.Enabled {
		limiterCtx, stop := context.WithCancel(context.Background())
		a.stopLimiter = stop
		rateLimitConfig := ratelimit.FromConfig(a.config.Gateway.RateLimit)
		router.Use(ratelimit.RateLimitMiddleware(limiterCtx, rateLimitConfig))
		a.logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	gateway.NewHandler(svc, a.logger).RegisterRoutes(router, auth.Middleware(tokens, revocations, a.logger))

	router.GET("/health", a.health.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.router = router
	return nil
}

func (a *App) Run(ctx context.Context) error {
	return bootstrap.ServeHTTP(ctx, a.server, a.logger)
}

func (a *App) Shutdown(ctx context.Context) error {
	if a.stopLimiter != nil {
		a.stopLimiter()
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	return a.base.Shutdown(shutdownCtx, a.dbConnector.ShutdownDatabases)
}
