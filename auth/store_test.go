package auth

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPragmasAppliedPerConnection(t *testing.T) {
	api := newTestAPI(t, func(c *Config) { c.BusyTimeout = 1234 * time.Millisecond })
	ctx := context.Background()

	// Two sessions pin two distinct physical connections.
	for _, s := range []*Session{newTestSession(t, api), newTestSession(t, api)} {
		q, err := s.Handle()
		require.NoError(t, err)

		var mode string
		require.NoError(t, q.QueryRowContext(ctx, `PRAGMA journal_mode`).Scan(&mode))
		assert.Equal(t, "wal", mode)

		var fk, timeout, sync int
		require.NoError(t, q.QueryRowContext(ctx, `PRAGMA foreign_keys`).Scan(&fk))
		require.NoError(t, q.QueryRowContext(ctx, `PRAGMA busy_timeout`).Scan(&timeout))
		require.NoError(t, q.QueryRowContext(ctx, `PRAGMA synchronous`).Scan(&sync))
		assert.Equal(t, 1, fk)
		assert.Equal(t, 1234, timeout)
		assert.Equal(t, 1, sync, "NORMAL")
	}
}

func TestDataDirCreated(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	newTestAPI(t, func(c *Config) { c.DataDir = dir })

	_, err := os.Stat(filepath.Join(dir, "test.db"))
	assert.NoError(t, err)
}

func TestStorageUnavailable(t *testing.T) {
	file := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o600))

	_, err := New(Config{DataDir: filepath.Join(file, "data"), Argon2: fastArgon2})
	assert.ErrorIs(t, err, ErrStorageUnavailable)

	// The database path itself is a directory.
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "app.db"), 0o755))
	_, err = New(Config{DataDir: dir, Argon2: fastArgon2})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
}

func TestMigrationFailureIsStorageUnavailable(t *testing.T) {
	orig := gooseUpContext
	t.Cleanup(func() { gooseUpContext = orig })
	gooseUpContext = func(context.Context, *sql.DB, string, ...goose.OptionsFunc) error {
		return errors.New("migration exploded")
	}

	_, err := New(Config{DataDir: t.TempDir(), Argon2: fastArgon2})
	assert.ErrorIs(t, err, ErrStorageUnavailable)
	assert.Contains(t, err.Error(), "migration exploded")
}

func TestDataSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	first, err := New(Config{DataDir: dir, Argon2: fastArgon2, SecretKey: "k"})
	require.NoError(t, err)
	created := mustCreateUser(t, first, NewUser{Email: "keep@example.com", Password: "password123"})
	require.NoError(t, first.Close())

	second := newTestAPI(t, func(c *Config) {
		c.DataDir = dir
		c.DatabaseName = ""
	})
	s := newTestSession(t, second)
	got, err := second.GetUser(context.Background(), s, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "keep@example.com", got.Email)
}

func TestMapDBError(t *testing.T) {
	assert.Nil(t, mapDBError(nil))
	assert.ErrorIs(t, mapDBError(sqlite3.Error{Code: sqlite3.ErrBusy}), ErrBusy)
	assert.ErrorIs(t, mapDBError(sqlite3.Error{Code: sqlite3.ErrLocked}), ErrBusy)
	assert.ErrorIs(t, mapDBError(sqlite3.Error{Code: sqlite3.ErrConstraint, ExtendedCode: sqlite3.ErrConstraintUnique}), ErrEmailTaken)

	other := errors.New("other")
	assert.Same(t, other, mapDBError(other))
}
