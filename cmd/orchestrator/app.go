package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/sync/errgroup"

	_ "github.com/lib/pq" // PostgreSQL driver

	"weld/internal/composer"
	"weld/internal/config"
	"weld/internal/constants"
	"weld/internal/gate"
	"weld/internal/ingest"
	"weld/internal/lock"
	"weld/internal/logger"
	"weld/internal/orchestration"
	"weld/internal/persistor"
	"weld/pkg/bootstrap"
	"weld/pkg/circuitbreaker"
	"weld/pkg/health"
	"weld/pkg/logging"
	"weld/pkg/metrics"
	"weld/pkg/middleware"
	"weld/pkg/migrations"
	"weld/pkg/ratelimit"
	"weld/pkg/tracing"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type App struct {
	*bootstrap.Base
	dbConnector    *bootstrap.DatabaseConnector
	db             *sql.DB
	redisClient    *redis.Client
	mongoClient    *mongo.Client
	orchestrator   *orchestration.Orchestrator
	store          orchestration.Store
	dispatcher     *orchestration.Dispatcher
	sweeper        *orchestration.Sweeper
	server         *http.Server
	tracerProvider *tracing.TracerProvider
}

func NewApp(cfg *config.Config, log logger.Logger) *App {
	if sugaredLogger, ok := log.(*logger.SugaredLogger); ok {
		sugaredLogger.SetServiceName("orchestrator")
	}
	return &App{
		Base:        bootstrap.NewBase(cfg, log),
		dbConnector: bootstrap.NewDatabaseConnector(cfg, log),
	}
}

func (a *App) Initialize(ctx context.Context) error {
	if err := a.initDatabases(ctx); err != nil {
		return fmt.Errorf("failed to initialize databases: %w", err)
	}

	if err := a.initService(ctx); err != nil {
		return fmt.Errorf("failed to initialize service: %w", err)
	}

	if err := a.InitBroker("orchestrator"); err != nil {
		return fmt.Errorf("failed to initialize broker: %w", err)
	}
	a.orchestrator.SetEventPublisher(a.Producer, a.outputTopic())

	tp, err := tracing.Init(a.Config.Tracing, "orchestrator")
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.tracerProvider = tp

	metrics.RegisterOrchestrationMetrics()
	metrics.RegisterGateMetrics()
	metrics.RegisterBrokerMetrics()
	metrics.RegisterHTTPMetrics()
	if a.Config.CircuitBreaker.Enabled {
		metrics.RegisterCircuitBreakerMetrics()
	}

	if err := a.initHTTPServer(ctx); err != nil {
		return fmt.Errorf("failed to initialize HTTP server: %w", err)
	}

	return nil
}

func (a *App) initDatabases(ctx context.Context) error {
	db, err := a.dbConnector.InitPostgreSQL(ctx)
	if err != nil {
		return err
	}
	a.db = db

	if a.Config.Database.RunMigrations && a.db != nil {
		if err := migrations.RunPostgresMigrations(a.db, "migrations/postgres"); err != nil {
			return err
		}
	}

	if a.Config.Database.Redis.Host != "" {
		redisClient, err := a.dbConnector.InitRedis(ctx)
		if err != nil {
			return err
		}
		a.redisClient = redisClient
	}

	mongoClient, err := a.dbConnector.InitMongoDB(ctx)
	if err != nil {
		return err
	}
	a.mongoClient = mongoClient

	if err := migrations.EnsureMongoCollections(ctx, a.mongoDatabase(), a.Config.Persistor.Collection); err != nil {
		return err
	}

	return nil
}

func (a *App) initService(ctx context.Context) error {
	mongoDB := a.mongoDatabase()

	a.store = orchestration.NewMongoStore(mongoDB)

	var journal orchestration.Journal
	if a.db != nil {
		journal = orchestration.NewPostgresJournal(a.db)
	}

	composerClient := composer.NewClient(a.Config.Composer.Endpoint, a.Config.Composer.RequestTimeout, a.Logger)
	if a.Config.CircuitBreaker.Enabled {
		breakerCfg := circuitbreaker.DefaultConfig("composer")
		if a.Config.CircuitBreaker.MaxRequests > 0 {
			breakerCfg.MaxRequests = a.Config.CircuitBreaker.MaxRequests
		}
		if a.Config.CircuitBreaker.Interval > 0 {
			breakerCfg.Interval = a.Config.CircuitBreaker.Interval
		}
		if a.Config.CircuitBreaker.Timeout > 0 {
			breakerCfg.Timeout = a.Config.CircuitBreaker.Timeout
		}
		if a.Config.CircuitBreaker.FailureRatio > 0 && a.Config.CircuitBreaker.MinRequests > 0 {
			ratio := a.Config.CircuitBreaker.FailureRatio
			minRequests := a.Config.CircuitBreaker.MinRequests
			breakerCfg.ReadyToTrip = func(counts gobreaker.Counts) bool {
				failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
				return counts.Requests >= minRequests && failureRatio >= ratio
			}
		}
		composerClient = composerClient.WithBreaker(circuitbreaker.NewWrapper(breakerCfg))
	}

	persistorClient := persistor.NewMongoPersistor(mongoDB, a.Config.Persistor.Collection, a.Logger)

	a.orchestrator = orchestration.NewOrchestrator(a.store, journal, composerClient, persistorClient, a.Logger)

	notificationGate, err := gate.New(a.Config.Gate, a.Logger)
	if err != nil {
		return err
	}

	var locks *lock.Manager
	if a.redisClient != nil {
		locks = lock.NewManager(a.redisClient, a.Config.Database.Redis.LockTTL)
	}

	a.dispatcher = orchestration.NewDispatcher(a.orchestrator, notificationGate, locks, a.Logger)

	sweepInterval := a.Config.Orchestration.SweepInterval
	if sweepInterval <= 0 {
		sweepInterval = constants.DefaultSweepInterval
	}
	a.sweeper = orchestration.NewSweeper(a.orchestrator, a.store, a.Config.Orchestration.MaxDwellTime, sweepInterval, a.Logger)

	return nil
}

func (a *App) initHTTPServer(ctx context.Context) error {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	if a.Config.Tracing.Enabled {
		router.Use(tracing.GinMiddleware("orchestrator"))
	}

	router.Use(middleware.RecoveryMiddleware(a.Logger))
	router.Use(middleware.LoggerMiddleware(a.Logger))
	router.Use(middleware.RequestIDMiddleware())

	if a.Config.RateLimit.Enabled {
		rateLimitConfig := ratelimit.RateLimitConfig{
			RPS:             a.Config.RateLimit.RPS,
			Burst:           a.Config.RateLimit.Burst,
			CleanupInterval: time.Duration(a.Config.RateLimit.CleanupInterval) * time.Second,
			MaxAge:          time.Duration(a.Config.RateLimit.MaxAge) * time.Second,
		}
		router.Use(ratelimit.RateLimitMiddleware(rateLimitConfig))
		a.Logger.InfowCtx(ctx, "Rate limiting enabled", "rps", rateLimitConfig.RPS, "burst", rateLimitConfig.Burst)
	}

	ingestHandler := ingest.NewHandler(a.dispatcher, a.store, a.Logger)
	ingestHandler.RegisterRoutes(router)

	healthRegistry := health.NewCheckerRegistry()
	healthRegistry.Register(health.NewMongoDBChecker(a.mongoClient))
	if a.db != nil {
		healthRegistry.RegisterOptional(health.NewPostgreSQLChecker(a.db))
	}
	if a.redisClient != nil {
		healthRegistry.RegisterOptional(health.NewRedisChecker(a.redisClient))
	}

	router.GET("/health", func(c *gin.Context) {
		h := healthRegistry.Check(c.Request.Context())
		statusCode := http.StatusOK
		if h.Status == health.StatusUnhealthy {
			statusCode = http.StatusServiceUnavailable
		}
		c.JSON(statusCode, h)
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	a.server = &http.Server{
		Addr:    fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler: router,
	}

	return nil
}

func (a *App) Run(ctx context.Context) error {
	if a.Config.Orchestration.ResumeOnStart {
		resumeCtx := logging.WithServiceName(ctx, "orchestrator")
		a.Logger.InfowCtx(resumeCtx, "Resuming in-flight batches")
		if err := a.orchestrator.Resume(resumeCtx); err != nil {
			a.Logger.ErrorwCtx(resumeCtx, "Resume failed",
				"error", err,
			)
		}
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		a.Logger.InfowCtx(ctx, "HTTP server starting", "port", a.Config.Server.Port)
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return a.sweeper.Run(gCtx)
	})

	inputTopic := a.inputTopic()
	g.Go(func() error {
		return a.Consumer.Consume(gCtx, inputTopic, a.dispatcher.HandleNotification)
	})

	return g.Wait()
}

func (a *App) Shutdown(ctx context.Context) error {
	shutdownCtx := logging.WithServiceName(ctx, "orchestrator")
	a.Logger.InfowCtx(shutdownCtx, "Shutting down orchestrator")

	additionalShutdown := func(ctx context.Context) []error {
		var errs []error

		if a.server != nil {
			serverCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()
			if err := a.server.Shutdown(serverCtx); err != nil {
				errs = append(errs, fmt.Errorf("HTTP server shutdown error: %w", err))
			}
		}

		if a.tracerProvider != nil {
			if err := a.tracerProvider.Shutdown(ctx); err != nil {
				errs = append(errs, fmt.Errorf("tracer provider shutdown error: %w", err))
			}
		}

		errs = append(errs, a.dbConnector.ShutdownDatabases(ctx, a.redisClient, a.db, a.mongoClient)...)

		return errs
	}

	return a.Base.Shutdown(ctx, additionalShutdown)
}

func (a *App) mongoDatabase() *mongo.Database {
	dbName := a.Config.Database.MongoDB.Database
	if dbName == "" {
		dbName = constants.DefaultMongoDBName
	}
	return a.mongoClient.Database(dbName)
}

func (a *App) inputTopic() string {
	if a.Config.Broker.Kafka.InputTopic != "" {
		return a.Config.Broker.Kafka.InputTopic
	}
	return constants.DefaultInputTopic
}

func (a *App) outputTopic() string {
	if a.Config.Broker.Kafka.OutputTopic != "" {
		return a.Config.Broker.Kafka.OutputTopic
	}
	return constants.DefaultOutputTopic
}
