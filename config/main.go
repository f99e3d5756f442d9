package config

import (
	"context"
	"time"

	"github.com/akeren/course-waitlist-api/config/router"
	"github.com/akeren/course-waitlist-api/internal/log"
	"github.com/akeren/course-waitlist-api/internal/models"
	"github.com/akeren/course-waitlist-api/pkg/captcha"
	"github.com/akeren/course-waitlist-api/pkg/constants"
	"github.com/akeren/course-waitlist-api/pkg/notify"
	"github.com/akeren/course-waitlist-api/pkg/utils"
	"gorm.io/gorm"
)

const defaultShutdownDrainTimeout = 15 * time.Second

type ApplicationConfig struct {
	DB              *gorm.DB
	RouterService   *router.RouterService
	Logger          *log.Logger
	Cache           Cache
	Config          *AppConfig
	Integrations    *IntegrationsConfig
	Verifier        *captcha.RecaptchaVerifier
	Notifier        *notify.Dispatcher
	TracingShutdown func(context.Context) error
}

// AppConfig is the HTTP-facing part of the environment.
type AppConfig struct {
	Port              string
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RequestTimeout    time.Duration
	MaxBodyBytes      int64

	TrustedProxies []string
	AllowedOrigins []string

	HSTSEnabled           bool
	HSTSMaxAge            int64
	HSTSIncludeSubdomains bool

	MetricsEnabled bool

	// ShutdownDrainTimeout bounds how long queued webhook deliveries may run after shutdown starts.
	ShutdownDrainTimeout time.Duration
}

func NewAppConfig() *AppConfig {
	return &AppConfig{
		Port:              utils.GetEnvTrimmedOrDefault("APP_PORT", router.DefaultPort),
		RateLimitRequests: utils.GetEnvPositiveIntOrDefault("RATE_LIMIT_REQUESTS", constants.DefaultRateLimitRequests),
		RateLimitWindow:   utils.GetEnvPositiveDurationOrDefault("RATE_LIMIT_WINDOW", constants.DefaultRateLimitWindow),
		RequestTimeout:    utils.GetEnvPositiveDurationOrDefault("REQUEST_TIMEOUT", router.DefaultTimeoutDuration),
		MaxBodyBytes:      int64(utils.GetEnvPositiveIntOrDefault("MAX_REQUEST_BODY_BYTES", int(router.DefaultMaxBodyBytes))),

		TrustedProxies: parseTrustedProxies(utils.GetEnvTrimmed("TRUSTED_PROXIES")),
		AllowedOrigins: parseCSV(utils.GetEnvTrimmed("CORS_ALLOWED_ORIGIN")),

		HSTSEnabled:           utils.GetEnvBoolOrDefault("HSTS_ENABLED", IsProduction(GetAppEnv())),
		HSTSMaxAge:            int64(utils.GetEnvPositiveIntOrDefault("HSTS_MAX_AGE", 31536000)),
		HSTSIncludeSubdomains: utils.GetEnvBoolOrDefault("HSTS_INCLUDE_SUBDOMAINS", true),

		MetricsEnabled: utils.GetEnvBoolOrDefault("METRICS_ENABLED", true),

		ShutdownDrainTimeout: utils.GetEnvPositiveDurationOrDefault("SHUTDOWN_DRAIN_TIMEOUT", defaultShutdownDrainTimeout),
	}
}

func (ac *AppConfig) RouterConfig() *router.RouterConfig {
	return &router.RouterConfig{
		RateLimitRequests: ac.RateLimitRequests,
		RateLimitWindow:   ac.RateLimitWindow,
		RequestTimeout:    ac.RequestTimeout,
		Port:              ac.Port,
		TrustedProxies:    ac.TrustedProxies,
		AllowedOrigins:    ac.AllowedOrigins,
		MaxBodyBytes:      ac.MaxBodyBytes,
		HSTS: router.HSTSConfig{
			Enabled:           ac.HSTSEnabled,
			MaxAge:            ac.HSTSMaxAge,
			IncludeSubdomains: ac.HSTSIncludeSubdomains,
		},
		DisableMetrics: !ac.MetricsEnabled,
	}
}

func (ac *ApplicationConfig) drainTimeout() time.Duration {
	if ac.Config != nil && ac.Config.ShutdownDrainTimeout > 0 {
		return ac.Config.ShutdownDrainTimeout
	}
	return defaultShutdownDrainTimeout
}

// Cleanup releases resources in dependency order. The HTTP server must already be stopped.
func (ac *ApplicationConfig) Cleanup() {
	// Queued deliveries still need the network; drain them before anything else goes away.
	if ac.Notifier != nil {
		ctx, cancel := context.WithTimeout(context.Background(), ac.drainTimeout())
		if err := ac.Notifier.Close(ctx); err != nil {
			ac.Logger.Error("Notify dispatcher did not drain", "error", err)
		}
		cancel()
	}

	if ac.TracingShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := ac.TracingShutdown(ctx); err != nil {
			ac.Logger.Error("Failed to shutdown tracer provider", "error", err)
		}
		cancel()
	}

	CloseDatabase(ac.DB, ac.Logger)

	if ac.RouterService != nil {
		ac.RouterService.Cleanup()
	}

	CloseCache(ac.Cache, ac.Logger)

	ac.Logger.Info("Application cleanup completed")
}

func LoadApplicationConfiguration(logger *log.Logger, autoMigrate bool) (*ApplicationConfig, error) {
	InitializeEnvFile(logger)

	if autoMigrate {
		appEnv := GetAppEnv()
		if err := ValidateAutoMigrateAllowed(appEnv); err != nil {
			return nil, err
		}
		if appEnv == "" {
			logger.Warn("APP_ENV not set; allowing --auto-migrate as development")
		}
	}

	tracingShutdown, err := SetupTracing(logger)
	if err != nil {
		return nil, err
	}

	db, err := NewDatabase(logger, &DBConfig{})
	if err != nil {
		return nil, err
	}

	if autoMigrate {
		if err := AutoMigrate(logger, db, models.ModelRegistry...); err != nil {
			CloseDatabase(db, logger)
			return nil, err
		}
	}

	appConfig := NewAppConfig()
	cache := NewCacheConfig().NewCacheOrNil(logger)
	routerService := router.CreateRouterService(logger, cache, appConfig.RouterConfig())

	integrations := NewIntegrationsConfig()
	verifier := integrations.NewVerifier(logger)
	notifier := integrations.NewDispatcher(logger, routerService.MetricsRegisterer())

	logger.Info("Application configuration loaded",
		"env", GetAppEnv(),
		"port", appConfig.Port,
		"webhook_sinks", notifier.Configured(),
	)

	return &ApplicationConfig{
		DB:              db,
		RouterService:   routerService,
		Logger:          logger,
		Cache:           cache,
		Config:          appConfig,
		Integrations:    integrations,
		Verifier:        verifier,
		Notifier:        notifier,
		TracingShutdown: tracingShutdown,
	}, nil
}
