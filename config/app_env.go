package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/akeren/course-waitlist-api/internal/log"
	"github.com/joho/godotenv"
)

const AppEnvKey = "APP_ENV"

// InitializeEnvFile loads .env when present. Real environment variables always win.
func InitializeEnvFile(logger *log.Logger) {
	if os.Getenv("SKIP_DOTENV") == "true" {
		logger.Info("Skipping .env file load", "reason", "SKIP_DOTENV=true")
		return
	}

	if err := godotenv.Load(); err != nil {
		logger.Warn("No .env file loaded", "error", err.Error())
		return
	}

	logger.Info("Environment variables loaded from .env")
}

func GetValueFromEnvironmentVariable(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}

	return defaultValue
}

func GetAppEnv() string {
	return strings.ToLower(strings.TrimSpace(os.Getenv(AppEnvKey)))
}

func IsProduction(appEnv string) bool {
	switch strings.ToLower(strings.TrimSpace(appEnv)) {
	case "prod", "production":
		return true
	default:
		return false
	}
}

func ValidateAutoMigrateAllowed(appEnv string) error {
	env := strings.ToLower(strings.TrimSpace(appEnv))

	switch env {
	case "", "dev", "development", "local", "test", "testing":
		return nil
	default:
		return fmt.Errorf("--auto-migrate is not allowed when %s=%q (allowed: \"\", dev, development, local, test, testing)", AppEnvKey, env)
	}
}

// sanitizeEnv strips whitespace and one pair of matching quotes, which
// docker-compose env files tend to leave on secrets and URLs.
func sanitizeEnv(v string) string {
	s := strings.TrimSpace(v)

	if len(s) >= 2 && ((s[0] == '"' && s[len(s)-1] == '"') || (s[0] == '\'' && s[len(s)-1] == '\'')) {
		s = s[1 : len(s)-1]
	}

	return strings.TrimSpace(s)
}

// parseCSV splits a comma separated value, dropping blanks and duplicates.
func parseCSV(raw string) []string {
	var out []string
	seen := make(map[string]struct{})

	for _, part := range strings.Split(sanitizeEnv(raw), ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if _, dup := seen[part]; dup {
			continue
		}
		seen[part] = struct{}{}
		out = append(out, part)
	}

	return out
}

// parseTrustedProxies reads TRUSTED_PROXIES. Empty trusts nobody; "*" trusts every address.
func parseTrustedProxies(raw string) []string {
	proxies := parseCSV(raw)
	for _, p := range proxies {
		if p == "*" {
			return []string{"0.0.0.0/0", "::/0"}
		}
	}

	return proxies
}
