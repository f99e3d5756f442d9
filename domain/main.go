package domain

import (
	"github.com/akeren/course-waitlist-api/config"
	"github.com/akeren/course-waitlist-api/domain/monitoring"
	"github.com/akeren/course-waitlist-api/domain/waitlist"
)

func SetupCoreDomain(appConfig *config.ApplicationConfig) {
	var integrations monitoring.IntegrationStatus
	if appConfig.Notifier != nil {
		integrations = appConfig.Notifier
	}
	verifierConfigured := appConfig.Verifier != nil && appConfig.Verifier.Configured()

	appConfig.RouterService.MountController(monitoring.NewMonitoringController(appConfig.DB, appConfig.Logger, appConfig.Cache, integrations, verifierConfigured))
	appConfig.RouterService.MountController(waitlist.NewWaitlistController(appConfig.DB, appConfig.Logger, appConfig.Verifier, appConfig.Notifier))
}
