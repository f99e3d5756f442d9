package config

import (
	"net/http"
	"time"

	"github.com/akeren/course-waitlist-api/internal/log"
	"github.com/akeren/course-waitlist-api/pkg/captcha"
	"github.com/akeren/course-waitlist-api/pkg/constants"
	"github.com/akeren/course-waitlist-api/pkg/notify"
	"github.com/akeren/course-waitlist-api/pkg/utils"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// IntegrationsConfig holds the settings for every outbound third-party call.
type IntegrationsConfig struct {
	RecaptchaSecretKey string
	RecaptchaVerifyURL string
	RecaptchaMinScore  float64
	RecaptchaTimeout   time.Duration

	PabblyWebhookURL string

	KeapEnabled  bool
	KeapFormID   string
	KeapFormName string
	KeapBaseURL  string

	WebhookTimeout  time.Duration
	NotifyWorkers   int
	NotifyQueueSize int
}

func NewIntegrationsConfig() *IntegrationsConfig {
	return &IntegrationsConfig{
		RecaptchaSecretKey: sanitizeEnv(utils.GetEnvTrimmed("RECAPTCHA_SECRET_KEY")),
		RecaptchaVerifyURL: utils.GetEnvTrimmedOrDefault("RECAPTCHA_VERIFY_URL", captcha.DefaultVerifyURL),
		RecaptchaMinScore:  utils.GetEnvFloatOrDefault("RECAPTCHA_MIN_SCORE", constants.DefaultMinHumanScore),
		RecaptchaTimeout:   utils.GetEnvPositiveDurationOrDefault("RECAPTCHA_TIMEOUT", 5*time.Second),

		PabblyWebhookURL: sanitizeEnv(utils.GetEnvTrimmed("PABBLY_ORDER_WEBHOOK")),

		KeapEnabled:  utils.GetEnvBoolOrDefault("KEAP_ENABLED", true),
		KeapFormID:   utils.GetEnvTrimmedOrDefault("KEAP_FORM_ID", notify.DefaultKeapFormID),
		KeapFormName: utils.GetEnvTrimmedOrDefault("KEAP_FORM_NAME", notify.DefaultKeapFormName),
		KeapBaseURL:  utils.GetEnvTrimmedOrDefault("KEAP_FORM_BASE_URL", notify.DefaultKeapFormBaseURL),

		WebhookTimeout:  utils.GetEnvPositiveDurationOrDefault("WEBHOOK_TIMEOUT", 10*time.Second),
		NotifyWorkers:   utils.GetEnvPositiveIntOrDefault("NOTIFY_WORKERS", 2),
		NotifyQueueSize: utils.GetEnvPositiveIntOrDefault("NOTIFY_QUEUE_SIZE", 100),
	}
}

func outboundHTTPClient(timeout time.Duration) *http.Client {
	transport := http.DefaultTransport
	if utils.IsTracingEnabled() {
		transport = otelhttp.NewTransport(transport)
	}
	return &http.Client{Timeout: timeout, Transport: transport}
}

func (ic *IntegrationsConfig) NewVerifier(logger *log.Logger) *captcha.RecaptchaVerifier {
	if ic.RecaptchaSecretKey == "" {
		logger.Error("RECAPTCHA_SECRET_KEY is not set; every submission will fail human verification")
	}

	return captcha.NewRecaptchaVerifier(captcha.Config{
		SecretKey: ic.RecaptchaSecretKey,
		VerifyURL: ic.RecaptchaVerifyURL,
		MinScore:  ic.RecaptchaMinScore,
		Timeout:   ic.RecaptchaTimeout,
	}, outboundHTTPClient(ic.RecaptchaTimeout), logger)
}

func (ic *IntegrationsConfig) NewSinks() []notify.Sink {
	client := outboundHTTPClient(ic.WebhookTimeout)

	return []notify.Sink{
		notify.NewPabblySink(ic.PabblyWebhookURL, client, ic.WebhookTimeout),
		notify.NewKeapSink(notify.KeapConfig{
			Enabled:  ic.KeapEnabled,
			FormID:   ic.KeapFormID,
			FormName: ic.KeapFormName,
			BaseURL:  ic.KeapBaseURL,
		}, client, ic.WebhookTimeout),
	}
}

func (ic *IntegrationsConfig) NewDispatcher(logger *log.Logger, reg prometheus.Registerer) *notify.Dispatcher {
	return notify.NewDispatcher(ic.NewSinks(), notify.Config{
		Workers:    ic.NotifyWorkers,
		QueueSize:  ic.NotifyQueueSize,
		Timeout:    ic.WebhookTimeout,
		Registerer: reg,
	}, logger)
}
