package utils

import (
	"os"
	"strconv"
	"strings"
	"time"
)

func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

func GetEnvTrimmed(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func GetEnvTrimmedOrDefault(key, defaultValue string) string {
	v := strings.TrimSpace(os.Getenv(key))

	if v == "" {
		return defaultValue
	}

	return v
}

// GetEnvBoolOrDefault falls back to defaultValue when the variable is unset or unparsable.
func GetEnvBoolOrDefault(key string, defaultValue bool) bool {
	v := GetEnvTrimmed(key)
	if v == "" {
		return defaultValue
	}

	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultValue
	}

	return b
}

// GetEnvPositiveIntOrDefault ignores zero, negative and malformed values.
func GetEnvPositiveIntOrDefault(key string, defaultValue int) int {
	if parsed, err := strconv.Atoi(GetEnvTrimmed(key)); err == nil && parsed > 0 {
		return parsed
	}

	return defaultValue
}

// GetEnvPositiveDurationOrDefault accepts time.ParseDuration syntax ("5s", "250ms").
func GetEnvPositiveDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if parsed, err := time.ParseDuration(GetEnvTrimmed(key)); err == nil && parsed > 0 {
		return parsed
	}

	return defaultValue
}

func GetEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if parsed, err := strconv.ParseFloat(GetEnvTrimmed(key), 64); err == nil {
		return parsed
	}

	return defaultValue
}
