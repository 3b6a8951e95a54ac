package main

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"connectivity/internal/config"
	"connectivity/internal/constants"
	"connectivity/internal/logger"
	"connectivity/internal/outcome"
	"connectivity/internal/publisher"
	"connectivity/internal/supervisor"
	"connectivity/internal/verification"
	"connectivity/internal/worker"
	"connectivity/pkg/bootstrap"
	"connectivity/pkg/circuitbreaker"
	"connectivity/pkg/health"
	"connectivity/pkg/metrics"
	"connectivity/pkg/middleware"
	"connectivity/pkg/models"
)

const serviceName = "verification-worker"

type App struct {
	config      *config.Config
	logger      logger.Logger
	base        *bootstrap.Base
	dbConnector *bootstrap.DatabaseConnector
	store       outcome.Store
	breaker     *circuitbreaker.Breaker
	supervisor  *supervisor.Supervisor
	health      *health.CheckerRegistry
	server      *http.Server
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
	metrics.RegisterVerificationMetrics()
	metrics.RegisterWorkerMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterStoreMetrics()
	metrics.RegisterCircuitBreakerMetrics()

	if err := a.base.InitTracing(serviceName); err != nil {
		return err
	}

	if err := a.initStore(ctx); err != nil {
		return fmt.Errorf("failed to initialize result store: %w", err)
	}

	if err := a.base.InitProducer(); err != nil {
		return err
	}

	if err := a.initWorkers(); err != nil {
		return fmt.Errorf("failed to initialize workers: %w", err)
	}

	a.initServer()
	return nil
}

func (a *App) initStore(ctx context.Context) error {
	pg, mdb, err := a.dbConnector.InitResultStoreBackend(ctx)
	if err != nil {
		return err
	}

	store, err := outcome.NewStore(a.config, pg, mdb)
	if err != nil {
		return err
	}
	a.store = store

	if pg != nil {
		a.health.Register(health.Postgres(pg))
	}
	if a.dbConnector.Mongo != nil {
		a.health.Register(health.Mongo(a.dbConnector.Mongo))
	}
	if cb, ok := store.(*outcome.CircuitBreakerStore); ok {
		a.health.Register(health.Breaker("result-store-breaker", cb))
	}
	return nil
}

func (a *App) initWorkers() error {
	var opts []verification.Option
	if a.config.CircuitBreaker.Enabled {
		a.breaker = verification.NewBreaker(a.config.CircuitBreaker)
		opts = append(opts, verification.WithCircuitBreaker(a.breaker))
		a.health.Register(health.Breaker("verification-api-breaker", a.breaker))
	}

	client, err := verification.NewClient(a.config.Verification, a.logger, opts...)
	if err != nil {
		return err
	}

	a.supervisor = supervisor.New(a.config.Supervisor.ShutdownGrace, a.logger)

	specs := []struct {
		name     string
		kind     models.Kind
		cfg      config.WorkerConfig
		verifier verification.Verifier
	}{
		{
			name:     constants.WorkerAffiliation,
			kind:     models.KindAffiliation,
			cfg:      a.config.Workers.Affiliation,
			verifier: verification.NewAffiliationVerifier(client, a.config.Verification.OperatorName, a.config.Verification.DefaultAddress),
		},
		{
			name:     constants.WorkerDocument,
			kind:     models.KindDocument,
			cfg:      a.config.Workers.Document,
			verifier: verification.NewDocumentVerifier(client),
		},
	}

	enabled := 0
	for _, spec := range specs {
		if !spec.cfg.Enabled {
			a.logger.Infow("Worker disabled", "worker", spec.name)
			continue
		}

		consumer, err := a.base.NewConsumer()
		if err != nil {
			return err
		}
		pub := publisher.New(a.base.Producer, a.store, spec.cfg.OutcomeTopic, a.config.Workers.PublishTimeout, a.logger)
		w := worker.New(worker.Options{
			Name:         spec.name,
			Kind:         spec.kind,
			Queue:        spec.cfg.Queue,
			DrainTimeout: a.config.Workers.DrainTimeout,
		}, consumer, spec.verifier, a.store, pub, a.logger)

		a.supervisor.Add(w.Name(), w.Run)
		a.logger.Infow("Worker configured",
			"worker", spec.name,
			"queue", spec.cfg.Queue,
			"outcome_topic", spec.cfg.OutcomeTopic,
		)
		enabled++
	}

	if enabled == 0 {
		return fmt.Errorf("no worker enabled")
	}
	return nil
}

func (a *App) initServer() {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(middleware.RecoveryMiddleware(a.logger))

	router.GET("/health", a.health.Handler())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	a.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.config.Server.Port),
		Handler:      router,
		ReadTimeout:  a.config.Server.ReadTimeoutSeconds,
		WriteTimeout: a.config.Server.WriteTimeoutSeconds,
	}
	a.supervisor.Add("ops-http", func(ctx context.Context) error {
		return bootstrap.ServeHTTP(ctx, a.server, a.logger)
	})
}

// Run blocks until a signal arrives or any task stops on its own.
func (a *App) Run(ctx context.Context) error {
	return a.supervisor.Run(ctx)
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, constants.ShutdownTimeout)
	defer cancel()

	return a.base.Shutdown(shutdownCtx, a.dbConnector.ShutdownDatabases)
}
