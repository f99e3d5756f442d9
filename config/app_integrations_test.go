package config

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/akeren/course-waitlist-api/internal/log"
	"github.com/akeren/course-waitlist-api/pkg/captcha"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearIntegrationEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"RECAPTCHA_SECRET_KEY", "RECAPTCHA_VERIFY_URL", "RECAPTCHA_MIN_SCORE", "RECAPTCHA_TIMEOUT",
		"PABBLY_ORDER_WEBHOOK", "KEAP_ENABLED", "KEAP_FORM_ID", "KEAP_FORM_NAME", "KEAP_FORM_BASE_URL",
		"WEBHOOK_TIMEOUT", "NOTIFY_WORKERS", "NOTIFY_QUEUE_SIZE",
	} {
		t.Setenv(key, "")
	}
}

func TestNewIntegrationsConfig_Defaults(t *testing.T) {
	clearIntegrationEnv(t)

	cfg := NewIntegrationsConfig()

	assert.Empty(t, cfg.RecaptchaSecretKey)
	assert.Equal(t, captcha.DefaultVerifyURL, cfg.RecaptchaVerifyURL)
	assert.Equal(t, 0.5, cfg.RecaptchaMinScore)
	assert.Equal(t, 5*time.Second, cfg.RecaptchaTimeout)
	assert.Empty(t, cfg.PabblyWebhookURL)
	assert.True(t, cfg.KeapEnabled)
	assert.Equal(t, "kq169", cfg.KeapFormID)
	assert.Equal(t, "fda-landing-page", cfg.KeapFormName)
	assert.Equal(t, "https://keap.page/form-submit/", cfg.KeapBaseURL)
	assert.Equal(t, 10*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, 2, cfg.NotifyWorkers)
	assert.Equal(t, 100, cfg.NotifyQueueSize)
}

func TestNewIntegrationsConfig_FromEnv(t *testing.T) {
	clearIntegrationEnv(t)
	t.Setenv("RECAPTCHA_SECRET_KEY", `"server-secret"`)
	t.Setenv("RECAPTCHA_MIN_SCORE", "0.7")
	t.Setenv("RECAPTCHA_TIMEOUT", "2s")
	t.Setenv("PABBLY_ORDER_WEBHOOK", " https://connect.pabbly.com/workflow/sendwebhookdata/abc ")
	t.Setenv("KEAP_ENABLED", "false")
	t.Setenv("WEBHOOK_TIMEOUT", "3s")
	t.Setenv("NOTIFY_WORKERS", "4")
	t.Setenv("NOTIFY_QUEUE_SIZE", "-1")

	cfg := NewIntegrationsConfig()

	assert.Equal(t, "server-secret", cfg.RecaptchaSecretKey)
	assert.Equal(t, 0.7, cfg.RecaptchaMinScore)
	assert.Equal(t, 2*time.Second, cfg.RecaptchaTimeout)
	assert.Equal(t, "https://connect.pabbly.com/workflow/sendwebhookdata/abc", cfg.PabblyWebhookURL)
	assert.False(t, cfg.KeapEnabled)
	assert.Equal(t, 3*time.Second, cfg.WebhookTimeout)
	assert.Equal(t, 4, cfg.NotifyWorkers)
	assert.Equal(t, 100, cfg.NotifyQueueSize, "non-positive values fall back to the default")
}

func TestIntegrationsConfig_ZeroMinScoreReachesVerifier(t *testing.T) {
	clearIntegrationEnv(t)
	t.Setenv("RECAPTCHA_SECRET_KEY", "server-secret")
	t.Setenv("RECAPTCHA_MIN_SCORE", "0")

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"success": true, "score": 0.1}`))
	}))
	t.Cleanup(srv.Close)
	t.Setenv("RECAPTCHA_VERIFY_URL", srv.URL)

	cfg := NewIntegrationsConfig()
	assert.Zero(t, cfg.RecaptchaMinScore)
	assert.True(t, cfg.NewVerifier(log.NewLoggerWithJSONOutputTo(io.Discard)).Verify(context.Background(), "token", ""))
}

func TestIntegrationsConfig_NewDispatcherReportsSinks(t *testing.T) {
	clearIntegrationEnv(t)
	t.Setenv("KEAP_ENABLED", "false")

	logger := log.NewLoggerWithJSONOutputTo(io.Discard)
	d := NewIntegrationsConfig().NewDispatcher(logger, prometheus.NewRegistry())
	t.Cleanup(func() { require.NoError(t, d.Close(context.Background())) })

	assert.Equal(t, map[string]bool{"pabbly": false, "keap": false}, d.Configured())
}

func TestIntegrationsConfig_VerifierFailsClosedWithoutSecret(t *testing.T) {
	clearIntegrationEnv(t)

	logger := log.NewLoggerWithJSONOutputTo(io.Discard)
	verifier := NewIntegrationsConfig().NewVerifier(logger)

	assert.False(t, verifier.Verify(context.Background(), "token", "203.0.113.1"))
}
