package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/Egham-7/adaptive-tiers/internal/config"
	"github.com/Egham-7/adaptive-tiers/internal/services/database"
	"github.com/Egham-7/adaptive-tiers/internal/services/response"
	"github.com/Egham-7/adaptive-tiers/pkg/builder"

	"github.com/gofiber/fiber/v2"
	fiberlog "github.com/gofiber/fiber/v2/log"
	"github.com/gofiber/fiber/v2/middleware/compress"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/pprof"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/timeout"
	"github.com/redis/go-redis/v9"
)

const (
	defaultHTTPRateLimit   = 1000
	defaultRequestTimeout  = 90 * time.Second
	maxRequestTimeout      = 5 * time.Minute
	shutdownTimeout        = 30 * time.Second
	requestTimeoutHeader   = "X-Request-Timeout"
	defaultAllowedHeaders  = "Origin, Content-Type, Accept, Authorization, User-Agent, X-Request-ID, X-Request-Timeout"
	defaultExposedHeaders  = "Content-Length, Content-Type, X-Request-ID, Retry-After"
	defaultAllowedMethods  = "GET, POST, OPTIONS"
	defaultCORSMaxAgeInSec = 86400
)

// Server is a tiered invocation server instance.
type Server struct {
	config  *config.Config
	app     *fiber.App
	builder *builder.Builder
	infra   *infrastructure
	stack   *stack
}

// NewServer creates a Server from a loaded configuration.
// For middleware control, use NewServerWithBuilder.
func NewServer(cfg *config.Config) *Server {
	if cfg == nil {
		panic("config cannot be nil - use config.LoadFromFile() or builder.New() to create config")
	}
	return &Server{config: cfg}
}

// NewServerWithBuilder creates a Server from a configuration builder,
// including its HTTP middleware settings.
func NewServerWithBuilder(b *builder.Builder) *Server {
	return &Server{
		config:  b.Build(),
		builder: b,
	}
}

// Run starts the server and blocks until shutdown.
func (s *Server) Run() error {
	if err := s.config.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	setupLogLevel(s.config)

	infra, err := initializeInfrastructure(s.config)
	if err != nil {
		return err
	}
	s.infra = infra
	defer s.infra.Close()

	if err := s.setup(); err != nil {
		return err
	}
	defer s.stack.Close()

	listenAddr := ":" + s.config.Server.Port

	fmt.Printf("🚀 Tiered invocation server starting on %s\n", listenAddr)
	fmt.Printf("   Environment: %s\n", s.config.Server.Environment)
	fmt.Printf("   Go version: %s\n", runtime.Version())
	fmt.Printf("   GOMAXPROCS: %d\n", runtime.GOMAXPROCS(0))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	serverErrChan := make(chan error, 1)
	go func() {
		if err := s.app.Listen(listenAddr); err != nil {
			serverErrChan <- err
		}
	}()

	select {
	case sig := <-sigChan:
		fiberlog.Infof("Received signal: %v. Starting graceful shutdown...", sig)
	case err := <-serverErrChan:
		return fmt.Errorf("server error: %w", err)
	}

	fiberlog.Info("Server shutting down gracefully...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	shutdownErrChan := make(chan error, 1)
	go func() {
		shutdownErrChan <- s.app.ShutdownWithTimeout(shutdownTimeout)
	}()

	select {
	case err := <-shutdownErrChan:
		if err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		fiberlog.Info("Server shutdown completed successfully")
	case <-shutdownCtx.Done():
		return fmt.Errorf("shutdown timeout exceeded")
	}

	return nil
}

// setup assembles the service stack and the Fiber app on top of the
// already initialized infrastructure.
func (s *Server) setup() error {
	if s.infra == nil {
		s.infra = &infrastructure{}
	}

	stack, err := buildStack(s.config, s.infra)
	if err != nil {
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	s.stack = stack

	s.app = createFiberApp(s.config)
	setupMiddleware(s.app, s.config, s.builder)
	setupRoutes(s.app, s.stack, s.infra)
	return nil
}

func createFiberApp(cfg *config.Config) *fiber.App {
	isProd := cfg.IsProduction()

	return fiber.New(fiber.Config{
		AppName:           "AdaptiveTiers v1.0",
		EnablePrintRoutes: !isProd,
		ReadTimeout:       2 * time.Minute,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       5 * time.Minute,
		ReadBufferSize:    8192,
		WriteBufferSize:   8192,
		CaseSensitive:     true,
		StrictRouting:     false,
		Network:           "tcp",
		ServerHeader:      "AdaptiveTiers",
	})
}

func defaultKeyFunc(c *fiber.Ctx) string {
	return c.IP()
}

func setupMiddleware(app *fiber.App, cfg *config.Config, b *builder.Builder) {
	isProd := cfg.IsProduction()
	responses := response.NewBaseService()

	app.Use(recover.New(recover.Config{
		EnableStackTrace: !isProd,
	}))

	// Coarse per-client HTTP throttle in front of the tier limiter.
	maxRequests := defaultHTTPRateLimit
	expiration := time.Minute
	keyFunc := defaultKeyFunc
	if b != nil && b.GetRateLimitConfig() != nil {
		rlCfg := b.GetRateLimitConfig()
		maxRequests = rlCfg.Max
		expiration = rlCfg.Expiration
		if rlCfg.KeyFunc != nil {
			keyFunc = rlCfg.KeyFunc
		}
	}
	app.Use(limiter.New(limiter.Config{
		Max:               maxRequests,
		Expiration:        expiration,
		LimiterMiddleware: limiter.SlidingWindow{},
		KeyGenerator:      keyFunc,
		Next: func(c *fiber.Ctx) bool {
			return c.Path() == "/health"
		},
		LimitReached: func(c *fiber.Ctx) error {
			return responses.Error(c, fiber.StatusTooManyRequests,
				fmt.Sprintf("%d requests per %v", maxRequests, expiration), "rate_limit", "http_rate_limited")
		},
	}))

	if b != nil && b.GetTimeoutConfig() != nil {
		timeoutDuration := b.GetTimeoutConfig().Timeout
		app.Use(func(c *fiber.Ctx) error {
			handler := func(c *fiber.Ctx) error {
				return c.Next()
			}
			return timeout.NewWithContext(handler, timeoutDuration)(c)
		})
	} else {
		app.Use(func(c *fiber.Ctx) error {
			d := defaultRequestTimeout
			if custom := c.Get(requestTimeoutHeader); custom != "" {
				if parsed, err := time.ParseDuration(custom); err == nil && parsed > 0 {
					d = min(parsed, maxRequestTimeout)
				}
			}

			ctx, cancel := context.WithTimeout(c.UserContext(), d)
			defer cancel()
			c.SetUserContext(ctx)

			return c.Next()
		})
	}

	app.Use(compress.New(compress.Config{
		Level: compress.LevelBestSpeed,
	}))

	if isProd {
		app.Use(logger.New(logger.Config{
			Format: "${time} ${status} ${method} ${path} ${latency} ${bytesSent}b\n",
			Output: os.Stdout,
		}))
	} else {
		app.Use(logger.New(logger.Config{
			Format: "[${time}] ${status} - ${latency} ${method} ${path} ${error}\n",
			Output: os.Stdout,
		}))
	}

	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowHeaders:     defaultAllowedHeaders,
		AllowMethods:     defaultAllowedMethods,
		AllowCredentials: cfg.Server.AllowedOrigins != "*",
		MaxAge:           defaultCORSMaxAgeInSec,
		ExposeHeaders:    defaultExposedHeaders,
	}))

	if b != nil {
		for _, middleware := range b.GetMiddlewares() {
			app.Use(middleware)
		}
	}

	if !isProd {
		app.Use(pprof.New())
	}
}

func setupLogLevel(cfg *config.Config) {
	logLevel := cfg.GetNormalizedLogLevel()

	switch logLevel {
	case "trace":
		fiberlog.SetLevel(fiberlog.LevelTrace)
	case "debug":
		fiberlog.SetLevel(fiberlog.LevelDebug)
	case "info":
		fiberlog.SetLevel(fiberlog.LevelInfo)
	case "warn", "warning":
		fiberlog.SetLevel(fiberlog.LevelWarn)
	case "error":
		fiberlog.SetLevel(fiberlog.LevelError)
	case "fatal":
		fiberlog.SetLevel(fiberlog.LevelFatal)
	case "panic":
		fiberlog.SetLevel(fiberlog.LevelPanic)
	default:
		fiberlog.SetLevel(fiberlog.LevelInfo)
		fiberlog.Warnf("Unknown log level '%s', defaulting to 'info'", logLevel)
	}

	fiberlog.Infof("Log level set to: %s", logLevel)
}

// infrastructure holds the external connections shared by services.
type infrastructure struct {
	redis *redis.Client
	db    *database.DB
}

func initializeInfrastructure(cfg *config.Config) (*infrastructure, error) {
	infra := &infrastructure{}

	redisClient, err := createRedisClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("redis initialization failed: %w", err)
	}
	infra.redis = redisClient

	if cfg.Database != nil {
		db, err := database.New(*cfg.Database)
		if err != nil {
			infra.Close()
			return nil, fmt.Errorf("database initialization failed: %w", err)
		}
		infra.db = db

		if err := db.Migrate(); err != nil {
			infra.Close()
			return nil, fmt.Errorf("database migration failed: %w", err)
		}
		fiberlog.Infof("Database (%s) connected and migrated", db.DriverName())
	}

	return infra, nil
}

// Close releases every open connection.
func (i *infrastructure) Close() {
	if i.redis != nil {
		if err := i.redis.Close(); err != nil {
			fiberlog.Errorf("Failed to close Redis client: %v", err)
		}
	}
	if i.db != nil {
		if err := i.db.Close(); err != nil {
			fiberlog.Errorf("Failed to close database connection: %v", err)
		}
	}
}

func createRedisClient(cfg *config.Config) (*redis.Client, error) {
	if cfg.Redis == nil || strings.TrimSpace(cfg.Redis.URL) == "" {
		fiberlog.Info("Redis not configured - circuit breakers and shared rate limits disabled")
		return nil, nil
	}

	opt, err := redis.ParseURL(cfg.Redis.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	opt.PoolSize = 50
	if cfg.Redis.PoolSize > 0 {
		opt.PoolSize = cfg.Redis.PoolSize
	}
	opt.MinIdleConns = 10
	opt.PoolTimeout = 4 * time.Second
	opt.ConnMaxIdleTime = 5 * time.Minute
	opt.ConnMaxLifetime = 30 * time.Minute
	opt.DialTimeout = 10 * time.Second
	opt.ReadTimeout = 3 * time.Second
	opt.WriteTimeout = 3 * time.Second
	opt.MaxRetries = 3
	opt.MinRetryBackoff = 8 * time.Millisecond
	opt.MaxRetryBackoff = 512 * time.Millisecond

	fiberlog.Debugf("Redis client configuration: PoolSize=%d, MinIdle=%d, MaxRetries=%d",
		opt.PoolSize, opt.MinIdleConns, opt.MaxRetries)

	return testRedisConnectionWithRetry(redis.NewClient(opt))
}

func testRedisConnectionWithRetry(client *redis.Client) (*redis.Client, error) {
	const maxAttempts = 3
	const baseDelay = 1 * time.Second

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		err := client.Ping(ctx).Err()
		cancel()

		if err == nil {
			fiberlog.Infof("Redis connection established successfully (attempt %d/%d)", attempt, maxAttempts)
			return client, nil
		}

		fiberlog.Warnf("Redis connection failed (attempt %d/%d): %v", attempt, maxAttempts, err)

		if attempt < maxAttempts {
			delay := time.Duration(attempt) * baseDelay
			fiberlog.Infof("Retrying Redis connection in %v...", delay)
			time.Sleep(delay)
		}
	}

	if err := client.Close(); err != nil {
		fiberlog.Errorf("Failed to close Redis client after connection failures: %v", err)
	}

	return nil, fmt.Errorf("failed to connect to Redis after %d attempts", maxAttempts)
}
