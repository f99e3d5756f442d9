// Package migrations applies the versioned SQL schema with golang-migrate.
package migrations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"sync"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/golang-migrate/migrate/v4/source/iofs"
)

type migrator interface {
	Up() error
	Steps(n int) error
	Version() (version uint, dirty bool, err error)
	Close() (sourceErr error, databaseErr error)
}

// Seams replaced in tests.
var (
	driverFactory = func(db *sql.DB, cfg Config) (database.Driver, error) {
		return postgres.WithInstance(db, &postgres.Config{MigrationsTable: cfg.MigrationsTable})
	}
	sourceFactory = func(fsys fs.FS, dir string) (source.Driver, error) {
		return iofs.New(fsys, dir)
	}
	migratorFactory = func(src source.Driver, driver database.Driver) (migrator, error) {
		return migrate.NewWithInstance("iofs", src, "postgres", driver)
	}
)

type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any) {}
func (nopLogger) Warn(string, ...any) {}

type Config struct {
	// FS holds the *.up.sql / *.down.sql pairs, usually the embedded migrations.FS.
	FS fs.FS
	// Dir is the directory inside FS; defaults to the FS root.
	Dir             string
	MigrationsTable string
	Logger          Logger
}

type Runner struct {
	m         migrator
	logger    Logger
	closeOnce sync.Once
}

func Open(db *sql.DB, cfg Config) (*Runner, error) {
	if db == nil {
		return nil, errors.New("migrations: db is nil")
	}
	if cfg.FS == nil {
		return nil, errors.New("migrations: source filesystem is nil")
	}
	if strings.TrimSpace(cfg.Dir) == "" {
		cfg.Dir = "."
	}
	if strings.TrimSpace(cfg.MigrationsTable) == "" {
		cfg.MigrationsTable = "schema_migrations"
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}

	src, err := sourceFactory(cfg.FS, cfg.Dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: source: %w", err)
	}
	driver, err := driverFactory(db, cfg)
	if err != nil {
		return nil, fmt.Errorf("migrations: postgres driver: %w", err)
	}
	m, err := migratorFactory(src, driver)
	if err != nil {
		return nil, fmt.Errorf("migrations: init: %w", err)
	}

	cfg.Logger.Info("Migration runner ready", "dir", cfg.Dir, "table", cfg.MigrationsTable)
	return &Runner{m: m, logger: cfg.Logger}, nil
}

// Up applies every pending migration.
func (r *Runner) Up(ctx context.Context) error {
	return r.run(ctx, "up", r.m.Up)
}

// Down reverts the last steps migrations.
func (r *Runner) Down(ctx context.Context, steps int) error {
	if steps <= 0 {
		return fmt.Errorf("migrations: down needs a positive step count, got %d", steps)
	}
	return r.run(ctx, "down", func() error { return r.m.Steps(-steps) })
}

func (r *Runner) Version() (uint, bool, error) {
	version, dirty, err := r.m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return version, dirty, err
}

func (r *Runner) Close() {
	r.closeOnce.Do(func() {
		srcErr, dbErr := r.m.Close()
		if srcErr != nil {
			r.logger.Warn("Migrations source close error", "error", srcErr)
		}
		if dbErr != nil {
			r.logger.Warn("Migrations db close error", "error", dbErr)
		}
	})
}

// run executes op on its own goroutine. golang-migrate takes no context, so
// cancellation closes the runner and returns without waiting for the statement.
func (r *Runner) run(ctx context.Context, name string, op func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() { errCh <- op() }()

	select {
	case <-ctx.Done():
		r.Close()
		return ctx.Err()
	case err := <-errCh:
		if errors.Is(err, migrate.ErrNoChange) {
			r.logger.Info("No migrations to apply", "direction", name)
			return nil
		}
		if err != nil {
			return fmt.Errorf("migrations: %s: %w", name, err)
		}
	}

	if version, dirty, err := r.Version(); err != nil {
		r.logger.Warn("Could not read schema version", "error", err)
	} else {
		r.logger.Info("Migrations applied successfully", "direction", name, "version", version, "dirty", dirty)
	}
	return nil
}

// Up opens a runner, applies every pending migration and closes it.
func Up(ctx context.Context, db *sql.DB, cfg Config) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	r, err := Open(db, cfg)
	if err != nil {
		return err
	}
	defer r.Close()

	return r.Up(ctx)
}
