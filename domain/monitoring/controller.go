package monitoring

import (
	"context"
	"errors"
	"time"

	"github.com/akeren/course-waitlist-api/config/router"
	"github.com/akeren/course-waitlist-api/internal/log"
	"github.com/akeren/course-waitlist-api/pkg/ratelimit"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

const (
	healthCheckTimeout          = 2 * time.Second
	monitoringRequestsPerMinute = 10
)

var errDatabaseNotConfigured = errors.New("database not configured")

type Cache interface {
	Ping(ctx context.Context) error
}

// IntegrationStatus reports which outbound sinks are configured to receive submissions.
type IntegrationStatus interface {
	Configured() map[string]bool
}

// HealthStatus uses 1 for healthy or configured and 0 otherwise.
type HealthStatus struct {
	Database          int            `json:"database"`
	Cache             int            `json:"cache"`
	HumanVerification int            `json:"human_verification"`
	Webhooks          map[string]int `json:"webhooks"`
	Uptime            int            `json:"uptime"`
}

type MonitoringController struct {
	db                 *gorm.DB
	cache              Cache
	integrations       IntegrationStatus
	verifierConfigured bool
	startTime          time.Time
}

func NewMonitoringController(
	db *gorm.DB,
	logger *log.Logger,
	cache Cache,
	integrations IntegrationStatus,
	verifierConfigured bool,
) *router.RESTController {
	ctrl := &MonitoringController{
		db:                 db,
		cache:              cache,
		integrations:       integrations,
		verifierConfigured: verifierConfigured,
		startTime:          time.Now(),
	}

	return router.NewRESTController(
		"MonitoringController",
		"/",
		func(rs *router.RouterService, c *router.RESTController) {
			// One budget covers both probes so / and /health cannot be alternated to double it.
			c.RateLimitWith(rs, newMonitoringRateLimiter(rs, logger))

			rs.AddGetHandler(c, nil, "", ctrl.monitor)
			rs.AddGetHandler(c, nil, "health", func(ctx *router.RequestContext) *router.ServiceResult {
				return ctrl.healthCheck(rs, ctx)
			})
		},
	)
}

func newMonitoringRateLimiter(rs *router.RouterService, logger *log.Logger) ratelimit.RateLimiter {
	return ratelimit.NewRateLimiter(&ratelimit.RateLimitConfig{
		Requests:  monitoringRequestsPerMinute,
		Window:    time.Minute,
		Redis:     rs.RedisClient(),
		KeyPrefix: "ratelimit:monitoring:",
		Logger:    logger,
	})
}

func (ctrl *MonitoringController) monitor(_ *router.RequestContext) *router.ServiceResult {
	return router.OKResult("Monitoring endpoint is operational.", "Monitoring successful")
}

func (ctrl *MonitoringController) healthCheck(rs *router.RouterService, c *router.RequestContext) *router.ServiceResult {
	logger := rs.GetLogger(c)

	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	status := ctrl.collect(ctx, logger)
	logger.Info("Health check completed",
		"database", status.Database,
		"cache", status.Cache,
		"human_verification", status.HumanVerification,
	)

	return router.OKResult(status, "course-waitlist-api health check completed")
}

// collect probes the database and cache concurrently; a failed probe reports 0, never an error.
func (ctrl *MonitoringController) collect(ctx context.Context, logger *log.Logger) HealthStatus {
	status := HealthStatus{
		Uptime:   int(time.Since(ctrl.startTime).Seconds()),
		Webhooks: map[string]int{},
	}

	var g errgroup.Group
	g.Go(func() error {
		if err := ctrl.pingDatabase(ctx); err != nil {
			logger.Error("Database health check failed", "error", err)
			return nil
		}
		status.Database = 1
		return nil
	})
	g.Go(func() error {
		if ctrl.cache == nil {
			return nil
		}
		if err := ctrl.cache.Ping(ctx); err != nil {
			logger.Error("Cache health check failed", "error", err)
			return nil
		}
		status.Cache = 1
		return nil
	})
	_ = g.Wait()

	if ctrl.verifierConfigured {
		status.HumanVerification = 1
	} else {
		logger.Warn("Human verification secret missing; submissions will be rejected")
	}

	if ctrl.integrations != nil {
		for sink, configured := range ctrl.integrations.Configured() {
			if configured {
				status.Webhooks[sink] = 1
			} else {
				status.Webhooks[sink] = 0
			}
		}
	}

	return status
}

func (ctrl *MonitoringController) pingDatabase(ctx context.Context) error {
	if ctrl.db == nil {
		return errDatabaseNotConfigured
	}

	sqlDB, err := ctrl.db.DB()
	if err != nil {
		return err
	}

	return sqlDB.PingContext(ctx)
}
