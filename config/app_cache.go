package config

import (
	"context"
	"errors"
	"time"

	"github.com/akeren/course-waitlist-api/internal/log"
	pkgredis "github.com/akeren/course-waitlist-api/pkg/redis"
	"github.com/akeren/course-waitlist-api/pkg/utils"
)

var ErrCacheNotConfigured = errors.New("cache: REDIS_HOST is not configured")

// Cache is the optional Redis connection. It backs distributed rate limiting and is
// reported by /health; the router reaches the raw client through router.RedisClientProvider.
type Cache interface {
	Ping(ctx context.Context) error
	Close() error
}

type CacheConfig struct {
	Host        string
	Port        string
	Password    string
	DialTimeout time.Duration
}

func NewCacheConfig() *CacheConfig {
	return &CacheConfig{
		Host:        utils.GetEnvTrimmed("REDIS_HOST"),
		Port:        utils.GetEnvTrimmedOrDefault("REDIS_PORT", "6379"),
		Password:    sanitizeEnv(utils.GetEnvTrimmed("REDIS_PASSWORD")),
		DialTimeout: utils.GetEnvPositiveDurationOrDefault("REDIS_DIAL_TIMEOUT", 5*time.Second),
	}
}

func (cc *CacheConfig) IsConfigured() bool {
	return cc.Host != ""
}

func (cc *CacheConfig) NewCache(logger *log.Logger) (Cache, error) {
	if !cc.IsConfigured() {
		return nil, ErrCacheNotConfigured
	}

	cache, err := pkgredis.NewRedisCache(&pkgredis.Config{
		Host:        cc.Host,
		Port:        cc.Port,
		Password:    cc.Password,
		DialTimeout: cc.DialTimeout,
	})
	if err != nil {
		return nil, err
	}

	logger.Info("Redis connected", "host", cc.Host, "port", cc.Port)
	return cache, nil
}

// NewCacheOrNil never fails startup: without Redis the limiter runs per instance.
func (cc *CacheConfig) NewCacheOrNil(logger *log.Logger) Cache {
	if !cc.IsConfigured() {
		logger.Info("Redis not configured; rate limiting is per instance")
		return nil
	}

	cache, err := cc.NewCache(logger)
	if err != nil {
		logger.Error("Redis unavailable; rate limiting is per instance", "error", err)
		return nil
	}
	return cache
}

func CloseCache(cache Cache, logger *log.Logger) {
	if cache == nil {
		return
	}
	if err := cache.Close(); err != nil {
		logger.Error("Failed to close Redis connection", "error", err)
		return
	}
	logger.Info("Redis connection closed")
}
