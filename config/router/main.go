package router

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/akeren/course-waitlist-api/internal/log"
	"github.com/akeren/course-waitlist-api/pkg/ratelimit"
	"github.com/akeren/course-waitlist-api/pkg/utils"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"
)

const (
	DefaultTimeoutDuration = 30 * time.Second
	DefaultMaxBodyBytes    = int64(1 << 20)
	DefaultPort            = "8080"
)

type Cache interface {
	Ping(ctx context.Context) error
}

type RedisClientProvider interface {
	GetClient() *redis.Client
}

// HSTSConfig controls Strict-Transport-Security on requests that arrived over TLS.
type HSTSConfig struct {
	Enabled           bool
	MaxAge            int64
	IncludeSubdomains bool
}

type RouterConfig struct {
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RequestTimeout    time.Duration

	Port string
	// TrustedProxies decides whose X-Forwarded-For is believed; nil trusts nobody.
	TrustedProxies []string
	// AllowedOrigins lists the landing-page origins allowed to post cross-origin. "*" allows any.
	AllowedOrigins []string
	MaxBodyBytes   int64
	HSTS           HSTSConfig
	DisableMetrics bool
}

type RouterService struct {
	engine      *gin.Engine
	server      *http.Server
	logger      *log.Logger
	config      RouterConfig
	rateLimiter ratelimit.RateLimiter
	redisClient *redis.Client

	metricsRegistry *prometheus.Registry
	allowedOrigins  map[string]struct{}
	allowAnyOrigin  bool

	handlerToControllerMap map[string]*RESTController
	rateLimitOverrides     map[string]ratelimit.RateLimiter
}

func CreateRouterService(logger *log.Logger, cache Cache, routerConfig *RouterConfig) *RouterService {
	cfg := withDefaults(routerConfig)

	if mode := utils.GetEnvTrimmed("GIN_MODE"); mode != "" {
		logger.Info("Setting Gin mode", "mode", mode)
		gin.SetMode(mode)
	}

	engine := gin.New()
	engine.Use(gin.Recovery())

	if utils.IsTracingEnabled() {
		engine.Use(otelgin.Middleware(utils.OTelServiceName()))
		logger.Info("Tracing middleware enabled")
	}

	// ClientIP() feeds rate limiting and reCAPTCHA remoteip, so forwarded headers are ignored
	// unless the proxy is listed explicitly.
	if err := engine.SetTrustedProxies(cfg.TrustedProxies); err != nil {
		logger.Error("Invalid trusted proxies; trusting none", "error", err, "proxies", cfg.TrustedProxies)
		_ = engine.SetTrustedProxies(nil)
	} else if len(cfg.TrustedProxies) == 0 {
		logger.Info("Trusted proxies disabled")
	}

	rs := &RouterService{
		engine:                 engine,
		logger:                 logger,
		config:                 cfg,
		redisClient:            redisClientFrom(cache),
		allowedOrigins:         make(map[string]struct{}, len(cfg.AllowedOrigins)),
		handlerToControllerMap: make(map[string]*RESTController),
		rateLimitOverrides:     make(map[string]ratelimit.RateLimiter),
	}
	for _, origin := range cfg.AllowedOrigins {
		if origin == "*" {
			rs.allowAnyOrigin = true
			continue
		}
		rs.allowedOrigins[origin] = struct{}{}
	}
	if len(cfg.AllowedOrigins) == 0 {
		logger.Warn("No CORS origins configured; cross-origin submissions will be refused by browsers")
	}

	rs.initRateLimiting()

	// /metrics is mounted ahead of the chain below so scrapes are never rate limited.
	rs.mountMetrics()

	engine.Use(
		rs.securityHeadersMiddleware(),
		rs.maxBodySizeMiddleware(),
		rs.corsMiddleware(),
		rs.rateLimitMiddleware(),
		rs.timeoutMiddleware(),
		rs.correlationIDMiddleware(),
		rs.loggerInjectionMiddleware(),
		rs.requestLoggingMiddleware(),
	)

	engine.HandleMethodNotAllowed = true
	engine.RedirectTrailingSlash = true

	engine.NoRoute(func(c *gin.Context) {
		logger.WithCorrelationID(c.Request.Context()).Warn("Route not found", "path", c.Request.URL.Path)
		c.JSON(http.StatusNotFound, NotFoundResult("Route not found").ToJSON())
	})

	engine.NoMethod(func(c *gin.Context) {
		logger.WithCorrelationID(c.Request.Context()).Warn("Method not allowed", "method", c.Request.Method, "path", c.Request.URL.Path)
		c.JSON(http.StatusMethodNotAllowed, ErrorResult(http.StatusMethodNotAllowed, "Method not allowed", nil).ToJSON())
	})

	// Handlers run on the request goroutine; the server timeouts are what bound them.
	rs.server = &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           engine,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("Router service initialized", "port", cfg.Port, "allowed_origins", cfg.AllowedOrigins)
	return rs
}

func withDefaults(routerConfig *RouterConfig) RouterConfig {
	var cfg RouterConfig
	if routerConfig != nil {
		cfg = *routerConfig
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultTimeoutDuration
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.Port == "" {
		cfg.Port = DefaultPort
	}
	if cfg.HSTS.MaxAge <= 0 {
		cfg.HSTS.MaxAge = 31536000
	}
	return cfg
}

func redisClientFrom(cache Cache) *redis.Client {
	if cache == nil {
		return nil
	}
	if provider, ok := cache.(RedisClientProvider); ok {
		return provider.GetClient()
	}
	return nil
}

func (routerService *RouterService) initRateLimiting() {
	redisClient := routerService.redisClient
	if redisClient != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			routerService.logger.Warn("Redis unreachable, rate limiting falls back to in-memory", "error", err)
			redisClient = nil
			routerService.redisClient = nil
		}
	}

	routerService.rateLimiter = ratelimit.NewRateLimiter(&ratelimit.RateLimitConfig{
		Requests: routerService.config.RateLimitRequests,
		Window:   routerService.config.RateLimitWindow,
		Redis:    redisClient,
		Logger:   routerService.logger,
	})

	backend := "memory"
	if redisClient != nil {
		backend = "redis"
	}
	routerService.logger.Info("Rate limiting initialized",
		"backend", backend,
		"requests", routerService.config.RateLimitRequests,
		"window", routerService.config.RateLimitWindow)
}

// RedisClient returns the client shared with the cache, or nil when Redis is unavailable.
func (routerService *RouterService) RedisClient() *redis.Client {
	return routerService.redisClient
}

// MetricsRegisterer is where domain collectors register so they appear on /metrics; nil when metrics are disabled.
func (routerService *RouterService) MetricsRegisterer() prometheus.Registerer {
	if routerService.metricsRegistry == nil {
		return nil
	}
	return routerService.metricsRegistry
}

func (routerService *RouterService) GetEngine() *gin.Engine {
	return routerService.engine
}

func (routerService *RouterService) GetLogger(c *RequestContext) *log.Logger {
	return routerService.logger.WithCorrelationID(c.Request.Context())
}

func (routerService *RouterService) MountController(controller *RESTController) {
	controller.prepare(routerService, controller)

	routerService.logger.Info("Controller mounted",
		"name", controller.name,
		"path", controller.mountPoint,
		"handlers", controller.handlerCount,
	)
}

func (routerService *RouterService) RunHTTPServer() error {
	routerService.logger.Info("Starting HTTP server", "addr", routerService.server.Addr)

	if err := routerService.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}
	return nil
}

func (routerService *RouterService) Shutdown(ctx context.Context) error {
	routerService.logger.Info("Shutting down HTTP server")
	return routerService.server.Shutdown(ctx)
}

func (routerService *RouterService) Cleanup() {
	closed := make(map[ratelimit.RateLimiter]struct{}, len(routerService.rateLimitOverrides)+1)
	closeLimiter := func(key string, limiter ratelimit.RateLimiter) {
		if limiter == nil {
			return
		}
		if _, done := closed[limiter]; done {
			return
		}
		closed[limiter] = struct{}{}
		if err := limiter.Close(); err != nil {
			routerService.logger.Error("Failed to close rate limiter", "key", key, "error", err)
		}
	}

	closeLimiter("default", routerService.rateLimiter)
	for key, limiter := range routerService.rateLimitOverrides {
		closeLimiter(key, limiter)
	}

	routerService.logger.Info("Router service cleanup completed")
}
