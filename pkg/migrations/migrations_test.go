package migrations

import (
	"context"
	"database/sql"
	"errors"
	"io/fs"
	"sync"
	"sync/atomic"
	"testing"
	"testing/fstest"
	"time"

	sqlmigrations "github.com/akeren/course-waitlist-api/migrations"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct {
	mu    sync.Mutex
	infos []string
	warns []string
}

func (l *testLogger) Info(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.infos = append(l.infos, msg)
}

func (l *testLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.warns = append(l.warns, msg)
}

type fakeMigrator struct {
	upErr      error
	versionErr error
	version    uint
	steps      []int
}

func (m *fakeMigrator) Up() error { return m.upErr }

func (m *fakeMigrator) Steps(n int) error {
	m.steps = append(m.steps, n)
	return nil
}

func (m *fakeMigrator) Version() (uint, bool, error) { return m.version, false, m.versionErr }

func (m *fakeMigrator) Close() (error, error) { return nil, nil }

type blockingMigrator struct {
	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool
}

func newBlockingMigrator() *blockingMigrator {
	return &blockingMigrator{closeCh: make(chan struct{})}
}

func (m *blockingMigrator) Up() error {
	<-m.closeCh
	return nil
}

func (m *blockingMigrator) Steps(int) error { return m.Up() }

func (m *blockingMigrator) Version() (uint, bool, error) { return 0, false, nil }

func (m *blockingMigrator) Close() (error, error) {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.closeCh)
	})
	return nil, nil
}

// stubFactories swaps the package seams for the duration of a test.
func stubFactories(t *testing.T, m migrator) *string {
	t.Helper()

	origDriver, origSource, origMigrator := driverFactory, sourceFactory, migratorFactory
	t.Cleanup(func() {
		driverFactory, sourceFactory, migratorFactory = origDriver, origSource, origMigrator
	})

	var gotDir string
	driverFactory = func(_ *sql.DB, cfg Config) (database.Driver, error) {
		if cfg.MigrationsTable == "" {
			t.Fatalf("expected migrations table to be defaulted")
		}
		return nil, nil
	}
	sourceFactory = func(_ fs.FS, dir string) (source.Driver, error) {
		gotDir = dir
		return nil, nil
	}
	migratorFactory = func(_ source.Driver, _ database.Driver) (migrator, error) {
		return m, nil
	}
	return &gotDir
}

func memFS() fs.FS {
	return fstest.MapFS{"000001_init.up.sql": &fstest.MapFile{Data: []byte("SELECT 1;")}}
}

func TestUp_NilDB(t *testing.T) {
	assert.Error(t, Up(context.Background(), nil, Config{FS: memFS()}))
}

func TestUp_NilFS(t *testing.T) {
	assert.Error(t, Up(context.Background(), &sql.DB{}, Config{}))
}

func TestUp_ContextAlreadyCancelled_ReturnsCtxErr(t *testing.T) {
	called := atomic.Bool{}
	stubFactories(t, &fakeMigrator{})
	migratorFactory = func(_ source.Driver, _ database.Driver) (migrator, error) {
		called.Store(true)
		return &fakeMigrator{}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Up(ctx, &sql.DB{}, Config{FS: memFS()})
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, called.Load(), "expected no migrator creation when ctx already cancelled")
}

func TestUp_ContextDeadlineExceeded_ReturnsCtxErr_AndCloses(t *testing.T) {
	block := newBlockingMigrator()
	stubFactories(t, block)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := Up(ctx, &sql.DB{}, Config{FS: memFS()})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, block.closed.Load(), "expected migrator.Close to be attempted on ctx cancellation")
}

func TestUp_ErrNoChange_ReturnsNil(t *testing.T) {
	logger := &testLogger{}
	stubFactories(t, &fakeMigrator{upErr: migrate.ErrNoChange})

	require.NoError(t, Up(context.Background(), &sql.DB{}, Config{FS: memFS(), Logger: logger}))
	assert.Contains(t, logger.infos, "No migrations to apply")
}

func TestUp_Success_LogsApplied(t *testing.T) {
	logger := &testLogger{}
	gotDir := stubFactories(t, &fakeMigrator{version: 2})

	require.NoError(t, Up(context.Background(), &sql.DB{}, Config{FS: memFS(), Logger: logger}))
	assert.Contains(t, logger.infos, "Migrations applied successfully")
	assert.Equal(t, ".", *gotDir, "expected FS root when Dir is empty")
}

func TestUp_UpError_IsWrapped(t *testing.T) {
	stubFactories(t, &fakeMigrator{upErr: errors.New("syntax error at or near")})

	err := Up(context.Background(), &sql.DB{}, Config{FS: memFS()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations: up")
}

func TestUp_MigratorInitError(t *testing.T) {
	stubFactories(t, nil)
	migratorFactory = func(_ source.Driver, _ database.Driver) (migrator, error) {
		return nil, errors.New("boom")
	}

	err := Up(context.Background(), &sql.DB{}, Config{FS: memFS()})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migrations: init")
}

func TestRunner_DownRevertsSteps(t *testing.T) {
	fake := &fakeMigrator{version: 1}
	stubFactories(t, fake)
	logger := &testLogger{}

	r, err := Open(&sql.DB{}, Config{FS: memFS(), Logger: logger})
	require.NoError(t, err)
	defer r.Close()

	require.NoError(t, r.Down(context.Background(), 1))
	assert.Equal(t, []int{-1}, fake.steps)
	assert.Contains(t, logger.infos, "Migrations applied successfully")

	assert.Error(t, r.Down(context.Background(), 0))
	assert.Len(t, fake.steps, 1)
}

func TestRunner_VersionBeforeFirstMigration(t *testing.T) {
	stubFactories(t, &fakeMigrator{versionErr: migrate.ErrNilVersion})

	r, err := Open(&sql.DB{}, Config{FS: memFS()})
	require.NoError(t, err)
	defer r.Close()

	version, dirty, err := r.Version()
	require.NoError(t, err)
	assert.Zero(t, version)
	assert.False(t, dirty)
}

func TestEmbeddedMigrations_ArePaired(t *testing.T) {
	ups, err := fs.Glob(sqlmigrations.FS, "*.up.sql")
	require.NoError(t, err)
	downs, err := fs.Glob(sqlmigrations.FS, "*.down.sql")
	require.NoError(t, err)

	assert.NotEmpty(t, ups)
	assert.Len(t, downs, len(ups))
}

func TestEmbeddedMigrations_ParseWithIOFS(t *testing.T) {
	src, err := sourceFactory(sqlmigrations.FS, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), first)
}
