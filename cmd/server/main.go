package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/grccore/internal/catalog"
	"github.com/aryan0dhankhar/grccore/internal/domain"
	"github.com/aryan0dhankhar/grccore/internal/events"
	"github.com/aryan0dhankhar/grccore/internal/featureflags"
	"github.com/aryan0dhankhar/grccore/internal/handler"
	"github.com/aryan0dhankhar/grccore/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/grccore/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/grccore/internal/observability/metrics"
	"github.com/aryan0dhankhar/grccore/internal/observability/tracing"
	"github.com/aryan0dhankhar/grccore/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/grccore/internal/reliability/retry"
	"github.com/aryan0dhankhar/grccore/internal/repository"
	"github.com/aryan0dhankhar/grccore/internal/security"
	"github.com/aryan0dhankhar/grccore/internal/security/audit"
	"github.com/aryan0dhankhar/grccore/internal/security/auth"
	"github.com/aryan0dhankhar/grccore/internal/security/middleware"
	"github.com/aryan0dhankhar/grccore/internal/security/ratelimit"
	"github.com/aryan0dhankhar/grccore/internal/service"
	"github.com/aryan0dhankhar/grccore/internal/worker"
	"github.com/aryan0dhankhar/grccore/pkg/config"
	"github.com/aryan0dhankhar/grccore/pkg/database"
)

// repositories bundles one storage backend
type repositories struct {
	products      domain.ProductRepository
	subscriptions domain.SubscriptionRepository
	usage         domain.QuotaUsageRepository
	risks         domain.RiskRepository
	tasks         domain.WorkflowTaskRepository
}

func main() {
	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// 2. Initialize structured logger and tracing
	log := logger.NewLogger(cfg.LogLevel)
	log.Info("starting grccore server",
		slog.String("environment", cfg.Environment),
		slog.String("storage", cfg.StorageBackend),
		slog.Any("flags", featureflags.Snapshot()),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, tracing.Config{
		ServiceName: "grccore",
		Environment: cfg.Environment,
		Endpoint:    cfg.OTLPEndpoint,
		SampleRatio: cfg.TraceSampleRatio,
	})
	if err != nil {
		log.Error("failed to initialize tracing", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 3. Initialize storage
	var pool *database.ConnectionPool
	repos := memoryRepositories()
	if cfg.StorageBackend == "postgres" {
		pool, err = database.NewConnectionPool(ctx, &database.Config{URL: cfg.DatabaseURL}, log)
		if err != nil {
			log.Error("failed to connect to Postgres", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer pool.Close()
		if err := pool.Migrate(ctx); err != nil {
			log.Error("failed to migrate schema", slog.String("error", err.Error()))
			os.Exit(1)
		}
		repos = postgresRepositories(pool, log)
	}

	// 4. Initialize Redis when a feature needs it
	var redisClient *redis.Client
	useRedisCounters := featureflags.Enabled(featureflags.RedisQuotaCounters)
	useRelay := featureflags.Enabled(featureflags.EventRelay)
	if useRedisCounters || useRelay {
		redisClient, err = redis.NewClient(cfg.RedisURL)
		if err != nil {
			log.Error("failed to connect to Redis", slog.String("error", err.Error()))
			os.Exit(1)
		}
		defer redisClient.Close()
		if useRedisCounters {
			repos.usage = repository.NewRedisQuotaUsageRepository(redisClient, log)
		}
	}

	// 5. Initialize event delivery
	auditLogger := audit.NewLogger(log)
	hub := events.NewHub(64, log)
	bus := events.NewBus(log)
	bus.Subscribe("log", events.LogHandler(log))
	bus.Subscribe("audit", auditLogger.Handle)
	if useRelay {
		breaker := circuitbreaker.NewCircuitBreaker(5, 2, 30*time.Second)
		breaker.OnStateChange(func(from, to circuitbreaker.State) {
			log.Warn("event relay breaker changed state",
				slog.String("from", from.String()),
				slog.String("to", to.String()),
			)
		})
		relay := events.NewRedisRelay(redisClient, breaker, retry.DefaultConfig(), log)
		bus.Subscribe("redis", relay.Handle)
		go hub.ConsumeRedis(ctx, redisClient.PSubscribe(ctx, events.ChannelPrefix+"*"))
	} else {
		bus.Subscribe("hub", hub.Handle)
	}

	// 6. Initialize services and seed the catalog
	catalogService := service.NewCatalogService(repos.products, cfg.ProductCacheTTL, log)
	products, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		log.Error("failed to load catalog", slog.String("path", cfg.CatalogPath), slog.String("error", err.Error()))
		os.Exit(1)
	}
	created, err := catalogService.Seed(ctx, "system", products)
	if err != nil {
		log.Error("failed to seed catalog", slog.String("error", err.Error()))
		os.Exit(1)
	}
	log.Info("catalog seeded", slog.Int("products", len(products)), slog.Int("created", created))

	subscriptionService := service.NewSubscriptionService(repos.subscriptions, catalogService, repos.usage, bus, log)
	quotaService := service.NewQuotaService(subscriptionService, repos.usage, bus, log)
	riskService := service.NewRiskService(repos.risks, quotaService, bus, log)
	workflowService := service.NewWorkflowService(repos.tasks, bus, log)

	// 7. Initialize security components
	tokenManager := auth.NewTokenManager(cfg.JWTSecret, cfg.JWTIssuer)
	rateLimiter := ratelimit.NewLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst)
	authz := security.NewAuthorizationService(log)
	access := security.NewResourceAuthorizer(log)

	// 8. Setup HTTP routes
	checks := map[string]handler.HealthCheck{"postgres": nil, "redis": nil}
	if pool != nil {
		checks["postgres"] = pool.Health
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Ping
	}

	api := &handler.API{
		Catalog:       handler.NewCatalogHandler(catalogService, log),
		Subscriptions: handler.NewSubscriptionHandler(subscriptionService, log),
		Quotas:        handler.NewQuotaHandler(quotaService, log),
		Risks:         handler.NewRiskHandler(riskService, access, log),
		Tasks:         handler.NewTaskHandler(workflowService, access, log),
		Events:        handler.NewEventStreamHandler(hub, log, cfg.CORSAllowedOrigins),
		Health:        handler.NewHealthHandler(checks, log),
	}
	mux := http.NewServeMux()
	api.Register(mux, authz, auditLogger)
	mux.Handle("GET /metrics", promhttp.Handler())

	// Chain middleware: request ID -> CORS -> JWT -> rate limit -> validation -> audit
	rootHandler := middleware.Chain(metrics.RecordRoute(mux),
		middleware.RequestID(log),
		middleware.CORS(cfg.CORSAllowedOrigins),
		middleware.JWTMiddleware(tokenManager, log),
		middleware.RateLimitMiddleware(rateLimiter, log),
		middleware.ValidateJSONContentType(log),
		middleware.SanitizeInputs(log),
		middleware.AuditMiddleware(auditLogger),
	)
	rootHandler = metrics.HTTPMetricsMiddleware(otelhttp.NewHandler(rootHandler, "grccore"))

	// 9. Start quota reset worker in background
	resetWorker := worker.NewQuotaResetWorker(quotaService, log, cfg.QuotaResetInterval)
	go resetWorker.Start(ctx)

	// 10. Start HTTP server
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      rootHandler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	log.Info("server starting",
		slog.Int("port", cfg.ServerPort),
		slog.String("auth", "jwt"),
		slog.Float64("rate_limit_rps", cfg.RateLimitRPS),
		slog.Int("rate_limit_burst", cfg.RateLimitBurst),
		slog.Duration("quota_reset_interval", cfg.QuotaResetInterval),
	)

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", slog.String("error", err.Error()))
			sigChan <- syscall.SIGTERM
		}
	}()

	// Wait for shutdown signal
	<-sigChan
	log.Info("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}

	cancel() // stops the reset worker and the Redis consumer
	rateLimiter.Stop()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Error("tracer shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

func memoryRepositories() repositories {
	return repositories{
		products:      repository.NewMemoryProductRepository(),
		subscriptions: repository.NewMemorySubscriptionRepository(),
		usage:         repository.NewMemoryQuotaUsageRepository(),
		risks:         repository.NewMemoryRiskRepository(),
		tasks:         repository.NewMemoryTaskRepository(),
	}
}

func postgresRepositories(pool *database.ConnectionPool, log *slog.Logger) repositories {
	db := pool.GetDB()
	return repositories{
		products:      repository.NewPostgresProductRepository(db, log),
		subscriptions: repository.NewPostgresSubscriptionRepository(db, log),
		usage:         repository.NewPostgresQuotaUsageRepository(db, log),
		risks:         repository.NewPostgresRiskRepository(db, log),
		tasks:         repository.NewPostgresTaskRepository(db, log),
	}
}
