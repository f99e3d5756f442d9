package config

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/akeren/course-waitlist-api/internal/log"
	"github.com/akeren/course-waitlist-api/pkg/retry"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var ErrDatabaseNotConfigured = errors.New("database: set APP_DATABASE_URL or the POSTGRES_* variables")

type DBConfig struct {
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
	SSLMode         string

	// PingAttempts bounds the startup ping; the database container is often still booting.
	PingAttempts int
}

func (cfg *DBConfig) applyDefaults() {
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 100
	}
	if cfg.ConnMaxLifetime <= 0 {
		cfg.ConnMaxLifetime = time.Minute
	}
	if cfg.SSLMode == "" {
		cfg.SSLMode = "require"
	}
	if cfg.PingAttempts <= 0 {
		cfg.PingAttempts = 5
	}
}

// postgresEnv is the discrete-variable alternative to APP_DATABASE_URL.
type postgresEnv struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

func loadPostgresEnv() postgresEnv {
	return postgresEnv{
		Host:     sanitizeEnv(GetValueFromEnvironmentVariable("POSTGRES_HOST", "")),
		Port:     sanitizeEnv(GetValueFromEnvironmentVariable("POSTGRES_PORT", "")),
		User:     sanitizeEnv(GetValueFromEnvironmentVariable("POSTGRES_USER", "")),
		Password: sanitizeEnv(GetValueFromEnvironmentVariable("POSTGRES_PASSWORD", "")),
		DBName:   sanitizeEnv(GetValueFromEnvironmentVariable("POSTGRES_DB_NAME", "")),
		SSLMode:  sanitizeEnv(GetValueFromEnvironmentVariable("POSTGRES_SSLMODE", "")),
	}
}

func (pe postgresEnv) dsn(defaultSSLMode string) (string, error) {
	var missing []string
	for name, value := range map[string]string{
		"POSTGRES_HOST":    pe.Host,
		"POSTGRES_PORT":    pe.Port,
		"POSTGRES_USER":    pe.User,
		"POSTGRES_DB_NAME": pe.DBName,
	} {
		if value == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) == 4 {
		return "", ErrDatabaseNotConfigured
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return "", fmt.Errorf("missing required database env vars: %s", strings.Join(missing, ", "))
	}

	port, err := strconv.Atoi(pe.Port)
	if err != nil || port <= 0 {
		return "", fmt.Errorf("invalid POSTGRES_PORT %q", pe.Port)
	}

	sslMode := pe.SSLMode
	if sslMode == "" {
		sslMode = defaultSSLMode
	}

	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		pe.Host, port, pe.User, pe.Password, pe.DBName, sslMode), nil
}

// ResolveDatabaseDSN prefers APP_DATABASE_URL and falls back to the POSTGRES_* variables.
func ResolveDatabaseDSN(logger *log.Logger, defaultSSLMode string) (string, error) {
	if url := sanitizeEnv(GetValueFromEnvironmentVariable("APP_DATABASE_URL", "")); url != "" {
		logger.Info("Using APP_DATABASE_URL for database connection")
		return url, nil
	}

	pe := loadPostgresEnv()
	dsn, err := pe.dsn(defaultSSLMode)
	if err != nil {
		return "", err
	}

	logger.Info("Connecting to database", "host", pe.Host, "port", pe.Port, "user", pe.User, "dbname", pe.DBName)
	return dsn, nil
}

// NewDatabase opens the single pool the process shares. It fails when the database cannot be
// reached after the configured number of pings.
func NewDatabase(logger *log.Logger, cfg *DBConfig) (*gorm.DB, error) {
	if cfg == nil {
		cfg = &DBConfig{}
	}
	cfg.applyDefaults()

	dsn, err := ResolveDatabaseDSN(logger, cfg.SSLMode)
	if err != nil {
		logger.Error("Database configuration invalid", "error", err)
		return nil, err
	}

	gdb, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	policy := retry.NewExponentialBackoff(&retry.Config{
		MaxAttempts: cfg.PingAttempts,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		Multiplier:  2,
	})
	err = policy.Execute(context.Background(), func(ctx context.Context) error {
		if pingErr := sqlDB.PingContext(ctx); pingErr != nil {
			logger.Warn("Database ping failed, retrying", "error", pingErr)
			return pingErr
		}
		return nil
	})
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	logger.Info("Database connection established")
	return gdb, nil
}

func AutoMigrate(logger *log.Logger, db *gorm.DB, models ...interface{}) error {
	if db == nil {
		return errors.New("cannot migrate: db is nil")
	}

	if err := db.AutoMigrate(models...); err != nil {
		return fmt.Errorf("auto-migrate failed: %w", err)
	}

	logger.Info("Database auto-migration completed", "models", len(models))
	return nil
}

func CloseDatabase(db *gorm.DB, logger *log.Logger) {
	if db == nil {
		return
	}

	sqlDB, err := db.DB()
	if err != nil {
		logger.Error("Failed to get SQL DB instance", "error", err)
		return
	}

	if err := sqlDB.Close(); err != nil {
		logger.Error("Failed to close database", "error", err)
		return
	}
	logger.Info("Database closed")
}
