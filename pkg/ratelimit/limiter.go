// Package ratelimit counts requests per client key. The in-memory limiter suits a
// single instance; the Redis limiter shares one budget across replicas.
package ratelimit

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
)

type Logger interface {
	Error(msg string, args ...any)
}

type RateLimiter interface {
	GetLimitDetails() (int, time.Duration)
	// IsLimited records one hit for key and reports whether it is over budget.
	IsLimited(ctx context.Context, key string) (bool, error)
	Close() error
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
	// Redis is optional; nil selects the in-memory limiter.
	Redis *redis.Client
	// KeyPrefix separates this limiter's Redis keys from other limiters sharing the client.
	KeyPrefix string
	Logger    Logger
}

func NewRateLimiter(config *RateLimitConfig) RateLimiter {
	if config.Redis != nil {
		return NewRedisRateLimiter(config.Redis, config.Requests, config.Window, config.KeyPrefix, config.Logger)
	}
	return NewInMemoryRateLimiter(config.Requests, config.Window)
}
