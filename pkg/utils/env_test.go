package utils

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestGetEnvPositiveIntOrDefault(t *testing.T) {
	t.Setenv("NOTIFY_WORKERS", "4")
	assert.Equal(t, 4, GetEnvPositiveIntOrDefault("NOTIFY_WORKERS", 2))

	t.Setenv("NOTIFY_WORKERS", "-1")
	assert.Equal(t, 2, GetEnvPositiveIntOrDefault("NOTIFY_WORKERS", 2))

	t.Setenv("NOTIFY_WORKERS", "many")
	assert.Equal(t, 2, GetEnvPositiveIntOrDefault("NOTIFY_WORKERS", 2))
}

func TestGetEnvPositiveDurationOrDefault(t *testing.T) {
	t.Setenv("WEBHOOK_TIMEOUT", "250ms")
	assert.Equal(t, 250*time.Millisecond, GetEnvPositiveDurationOrDefault("WEBHOOK_TIMEOUT", time.Second))

	t.Setenv("WEBHOOK_TIMEOUT", "")
	assert.Equal(t, time.Second, GetEnvPositiveDurationOrDefault("WEBHOOK_TIMEOUT", time.Second))
}

func TestGetEnvBoolOrDefault(t *testing.T) {
	t.Setenv("KEAP_ENABLED", "false")
	assert.False(t, GetEnvBoolOrDefault("KEAP_ENABLED", true))

	t.Setenv("KEAP_ENABLED", "maybe")
	assert.True(t, GetEnvBoolOrDefault("KEAP_ENABLED", true))
}

func TestGetEnvFloatOrDefault(t *testing.T) {
	t.Setenv("RECAPTCHA_MIN_SCORE", "0.7")
	assert.InDelta(t, 0.7, GetEnvFloatOrDefault("RECAPTCHA_MIN_SCORE", 0.5), 1e-9)

	t.Setenv("RECAPTCHA_MIN_SCORE", "")
	assert.InDelta(t, 0.5, GetEnvFloatOrDefault("RECAPTCHA_MIN_SCORE", 0.5), 1e-9)
}
