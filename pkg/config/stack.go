package config

import (
	"fmt"
	"runtime"
	"slices"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/api"
	"github.com/Egham-7/adaptive-tiers/internal/config"
	"github.com/Egham-7/adaptive-tiers/internal/models"
	"github.com/Egham-7/adaptive-tiers/internal/services/catalog"
	"github.com/Egham-7/adaptive-tiers/internal/services/circuitbreaker"
	"github.com/Egham-7/adaptive-tiers/internal/services/fallback"
	"github.com/Egham-7/adaptive-tiers/internal/services/gateway"
	"github.com/Egham-7/adaptive-tiers/internal/services/orchestrator"
	"github.com/Egham-7/adaptive-tiers/internal/services/providers"
	"github.com/Egham-7/adaptive-tiers/internal/services/ratelimit"
	"github.com/Egham-7/adaptive-tiers/internal/services/telemetry"
	"github.com/Egham-7/adaptive-tiers/internal/services/usage"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// stack is the assembled service graph behind the HTTP routes.
type stack struct {
	catalog      *catalog.Catalog
	resolver     *fallback.Resolver
	router       *providers.Router
	limiter      *ratelimit.Limiter
	breakers     *circuitbreaker.Registry
	dispatcher   *telemetry.Dispatcher
	gateway      *gateway.Gateway
	clock        *usage.Clock
	ledger       usage.Ledger
	orchestrator *orchestrator.Orchestrator
	registry     *prometheus.Registry
}

// buildStack wires every component from cfg. Configuration errors abort
// startup.
func buildStack(cfg *config.Config, infra *infrastructure) (*stack, error) {
	s := &stack{}

	cat, err := catalog.New(cfg.Tiers, cfg.Pricing, catalog.RequiredCapabilities)
	if err != nil {
		return nil, fmt.Errorf("tier catalog: %w", err)
	}
	s.catalog = cat

	resolver, err := fallback.NewResolver(cfg.Fallbacks)
	if err != nil {
		return nil, fmt.Errorf("fallback graph: %w", err)
	}
	s.resolver = resolver

	router, err := providers.NewRouter(cfg.Providers, nil)
	if err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	if err := router.Validate(slices.Concat(cat.Models(), resolver.Models())); err != nil {
		return nil, fmt.Errorf("providers: %w", err)
	}
	s.router = router

	loc, err := cfg.Location()
	if err != nil {
		return nil, err
	}
	s.clock = usage.NewClock(loc)

	ledger, err := usage.NewLedger(cfg.Usage, ledgerDB(cfg, infra), infra.redis, s.clock)
	if err != nil {
		return nil, fmt.Errorf("usage ledger: %w", err)
	}
	s.ledger = ledger

	store, err := bucketStore(cfg, infra)
	if err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}
	s.limiter = ratelimit.New(cat, store)

	gatewayOpts := []gateway.Option{}
	if cfg.CircuitBreaker.Enabled {
		if infra.redis == nil {
			return nil, models.NewConfigurationError("circuit breaker requires redis")
		}
		s.breakers = circuitbreaker.NewRegistry(infra.redis, circuitbreaker.ConfigFrom(cfg.CircuitBreaker))
		gatewayOpts = append(gatewayOpts, gateway.WithCircuitBreakers(s.breakers))
	}

	sinks, err := s.telemetrySinks(cfg, infra)
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	s.dispatcher = telemetry.NewDispatcher(cfg.Telemetry.Workers, cfg.Telemetry.BufferSize, sinks...)
	gatewayOpts = append(gatewayOpts, gateway.WithRecorder(s.dispatcher))

	s.gateway = gateway.New(router, gatewayOpts...)
	s.orchestrator = orchestrator.New(cat, resolver, s.limiter, s.gateway, s.ledger, s.clock,
		orchestrator.ConfigFrom(cfg.Invocation))

	fiberlog.Infof("Tiered invocation stack ready: tiers=%d, models=%d, usage=%s, rate_limiter=%s, circuit_breaker=%t",
		len(cfg.Tiers), len(cat.Models()), cfg.Usage.Backend, cfg.RateLimiter.Backend, cfg.CircuitBreaker.Enabled)

	return s, nil
}

func ledgerDB(cfg *config.Config, infra *infrastructure) *gorm.DB {
	if cfg.Usage.Backend != models.UsageBackendDatabase || infra.db == nil {
		return nil
	}
	if !infra.db.SupportsLedger() {
		fiberlog.Warnf("Database driver %s cannot hold the usage ledger", infra.db.DriverName())
		return nil
	}
	return infra.db.DB
}

func bucketStore(cfg *config.Config, infra *infrastructure) (ratelimit.BucketStore, error) {
	switch cfg.RateLimiter.Backend {
	case models.RateLimiterBackendRedis:
		if infra.redis == nil {
			return nil, models.NewConfigurationError("rate limiter backend redis requires a redis client")
		}
		return ratelimit.NewRedisStore(infra.redis), nil
	case models.RateLimiterBackendLocal, "":
		idle := time.Duration(cfg.RateLimiter.IdleExpiryMs) * time.Millisecond
		return ratelimit.NewLocalStore(cfg.RateLimiter.MaxBuckets, idle), nil
	default:
		return nil, models.NewConfigurationError("unknown rate limiter backend %q", cfg.RateLimiter.Backend)
	}
}

func (s *stack) telemetrySinks(cfg *config.Config, infra *infrastructure) ([]telemetry.Sink, error) {
	sinks := []telemetry.Sink{telemetry.LogSink{}}

	if cfg.Telemetry.Prometheus {
		s.registry = prometheus.NewRegistry()
		s.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		promSink, err := telemetry.NewPrometheusSink(s.registry)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, promSink)
	}

	if cfg.Telemetry.Database {
		if infra.db == nil {
			return nil, models.NewConfigurationError("database telemetry requires a database connection")
		}
		sinks = append(sinks, telemetry.NewDatabaseSink(infra.db.DB))
	}

	return sinks, nil
}

// Close drains pending telemetry.
func (s *stack) Close() {
	if s != nil && s.dispatcher != nil {
		s.dispatcher.Stop()
	}
}

func setupRoutes(app *fiber.App, s *stack, infra *infrastructure) {
	var db api.Pinger
	if infra.db != nil {
		db = infra.db
	}
	healthHandler := api.NewHealthHandler(infra.redis, db)
	app.Get("/health", healthHandler.HealthCheck)

	if s.registry != nil {
		app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})))
	}

	v1 := app.Group("/v1")

	invokeHandler := api.NewInvokeHandler(s.orchestrator)
	v1.Post("/invoke", invokeHandler.Invoke)

	usageHandler := api.NewUsageHandler(s.ledger, s.clock)
	usageHandler.RegisterRoutes(v1, "/usage")

	tiersHandler := api.NewTiersHandler(s.catalog)
	tiersHandler.RegisterRoutes(v1, "/tiers")

	app.Get("/", welcomeHandler())
}

func welcomeHandler() fiber.Handler {
	return func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"message":    "Tiered AI invocation service",
			"version":    "1.0.0",
			"go_version": runtime.Version(),
			"status":     "running",
			"endpoints": fiber.Map{
				"invoke":  "/v1/invoke",
				"usage":   "/v1/usage/:userId",
				"history": "/v1/usage/:userId/history",
				"tiers":   "/v1/tiers",
				"health":  "/health",
				"metrics": "/metrics",
			},
		})
	}
}
