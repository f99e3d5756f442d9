// Package retry repeats an operation with exponential backoff while its error looks
// transient. It is used for startup probes against dependencies that boot slower
// than the API.
package retry

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

type Config struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64

	// Retryable decides whether an error deserves another attempt. Nil uses IsTransient.
	Retryable func(error) bool
}

type ExponentialBackoff struct {
	cfg   Config
	sleep func(ctx context.Context, d time.Duration) error
}

func NewExponentialBackoff(cfg *Config) *ExponentialBackoff {
	c := Config{MaxAttempts: 3, BaseDelay: 100 * time.Millisecond, MaxDelay: 30 * time.Second, Multiplier: 2}
	if cfg != nil {
		c = *cfg
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 1
	}
	if c.Multiplier < 1 {
		c.Multiplier = 1
	}
	if c.Retryable == nil {
		c.Retryable = IsTransient
	}

	return &ExponentialBackoff{cfg: c, sleep: sleepContext}
}

// Execute stops at the first success, the first non-retryable error, or when ctx ends.
func (eb *ExponentialBackoff) Execute(ctx context.Context, fn func(context.Context) error) error {
	delay := eb.cfg.BaseDelay

	var lastErr error
	for attempt := 1; attempt <= eb.cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if !eb.cfg.Retryable(lastErr) {
			return lastErr
		}
		if attempt == eb.cfg.MaxAttempts {
			break
		}

		if err := eb.sleep(ctx, delay); err != nil {
			return err
		}
		delay = eb.next(delay)
	}

	return &ExhaustedError{Attempts: eb.cfg.MaxAttempts, Err: lastErr}
}

func (eb *ExponentialBackoff) next(delay time.Duration) time.Duration {
	next := time.Duration(float64(delay) * eb.cfg.Multiplier)
	if eb.cfg.MaxDelay > 0 && next > eb.cfg.MaxDelay {
		return eb.cfg.MaxDelay
	}
	return next
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// pgTransientCodes are SQLSTATEs a postgres server returns while starting, stopping or
// short of connections.
var pgTransientCodes = map[string]struct{}{
	"57P03": {}, // cannot_connect_now
	"53300": {}, // too_many_connections
	"08000": {},
	"08001": {},
	"08006": {},
}

// IsTransient matches the failures a database or cache produces while it is still coming up.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := pgTransientCodes[pgErr.Code]
		return ok
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return dnsErr.IsTemporary || dnsErr.IsNotFound
	}

	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error {
	return e.Err
}

func IsExhausted(err error) bool {
	var exhausted *ExhaustedError
	return errors.As(err, &exhausted)
}
