package main

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/aiser/queryengine/agents"
	"github.com/aiser/queryengine/api"
	"github.com/aiser/queryengine/api/handlers"
	"github.com/aiser/queryengine/cache"
	"github.com/aiser/queryengine/executor"
	"github.com/aiser/queryengine/feedback"
	"github.com/aiser/queryengine/internal/metrics"
	"github.com/aiser/queryengine/internal/server"
	"github.com/aiser/queryengine/llm"
	"github.com/aiser/queryengine/llm/openaicompat"
	"github.com/aiser/queryengine/orchestrator"
	"github.com/aiser/queryengine/ratequota"
	"github.com/aiser/queryengine/schema"
)

// application bundles every wired collaborator behind the one thing main
// needs to drive: the HTTP lifecycle manager.
type application struct {
	manager *server.Manager
}

// buildApp wires EngineConfig into a runnable HTTP server: LLM gateway,
// layered cache, schema/executor registries, rate limiter and quota
// manager, feedback recorder, orchestrator, and the C12 HTTP surface.
func buildApp(cfg EngineConfig, logger *zap.Logger) (*application, error) {
	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient = redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
	}

	metricsCollector := metrics.NewCollector("queryengine", logger)

	layeredCache := cache.New(cache.Config{
		LocalCapacity: 10000,
		DefaultTTL:    time.Duration(cfg.CacheTTLQueryHours) * time.Hour,
		Redis:         redisClient,
		Namespace:     "schema",
		Metrics:       metricsCollector,
	}, logger)

	providerRegistry := llm.NewProviderRegistry()
	var defaultModel string
	for _, pc := range cfg.Providers {
		provider := openaicompat.New(openaicompat.Config{Name: pc.Name, BaseURL: pc.BaseURL, APIKey: pc.APIKey})
		providerRegistry.Register(pc.Name, provider)
		if pc.Default || defaultModel == "" {
			if err := providerRegistry.SetDefault(pc.Name); err != nil {
				return nil, fmt.Errorf("set default provider %q: %w", pc.Name, err)
			}
			defaultModel = pc.Name
		}
	}
	gateway := llm.NewGateway(providerRegistry, llm.GatewayConfig{Logger: logger, Metrics: metricsCollector})

	schemaFetcher := NewConfigSchemaFetcher(cfg.DataSources)
	schemaRegistry := schema.NewRegistry(schemaFetcher, layeredCache)

	executorRegistry := executor.NewRegistry(logger)
	executorRegistry.SetMetrics(metricsCollector)
	for _, ds := range cfg.DataSources {
		backend, err := openBackend(ds)
		if err != nil {
			return nil, fmt.Errorf("open data source %q: %w", ds.ID, err)
		}
		executorRegistry.Register(ds.ID, backend)
	}

	quotaManager := ratequota.NewQuotaManager()

	var rateLimiter ratequota.Limiter
	if redisClient != nil {
		rateLimiter = ratequota.NewRedisLimiter(redisClient)
	} else {
		rateLimiter = ratequota.NewInProcessLimiter()
	}

	feedbackRecorder := feedback.NewWithCollector(metricsCollector, logger)

	deps := agents.Deps{
		Gateway:  gateway,
		Schemas:  schemaRegistry,
		Executor: executorRegistry,
		Cache:    layeredCache,
		Model:    defaultModel,
		Logger:   logger,
	}
	orch := orchestrator.New(deps, quotaManager, feedbackRecorder, logger)

	tenantStore := NewMemoryTenantStore(nil)

	queryHandler := &handlers.QueryHandler{
		Identity:     api.NewHeaderIdentityResolver(),
		Tenants:      tenantStore,
		RateLimiter:  rateLimiter,
		RateLimits:   cfg.RateLimits,
		Quota:        quotaManager,
		Orchestrator: orch,
		Logger:       logger,
		DialectFor: func(dataSourceID string) string {
			return dialectOf(cfg.DataSources, dataSourceID)
		},
	}

	healthHandler := handlers.NewHealthHandler(logger)
	healthHandler.RegisterCheck(&handlers.NamedPingCheck{
		CheckName: "executor",
		Ping: func(ctx context.Context) error {
			if len(cfg.DataSources) == 0 {
				return nil
			}
			result := executor.Execute(ctx, executorRegistry, executor.ExecuteRequest{
				SQL:          "SELECT 1",
				DataSourceID: cfg.DataSources[0].ID,
				TimeoutSec:   5,
				MaxRows:      1,
			})
			if !result.OK {
				return fmt.Errorf("%s", result.Error)
			}
			return nil
		},
	})
	if redisClient != nil {
		healthHandler.RegisterCheck(&handlers.NamedPingCheck{
			CheckName: "redis",
			Ping: func(ctx context.Context) error {
				return redisClient.Ping(ctx).Err()
			},
		})
	}

	ipLimiter := NewIPRateLimiter(20, 40)
	router := api.NewRouter(queryHandler, healthHandler,
		Recovery(logger),
		RequestID(),
		RequestLogger(logger),
		MetricsMiddleware(metricsCollector),
		SecurityHeaders(),
		CORS(cfg.AllowedOrigins),
		RateLimiter(ipLimiter, logger),
	)

	serverConfig := server.DefaultConfig()
	serverConfig.Addr = cfg.Addr
	serverConfig.ShutdownTimeout = cfg.ShutdownTimeout
	if cfg.EnableStreaming {
		// Long-lived streaming responses must not be cut off by a fixed
		// write deadline.
		serverConfig.WriteTimeout = 0
	}

	manager := server.NewManager(router, serverConfig, logger)
	return &application{manager: manager}, nil
}
