package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsApplied(t *testing.T) {
	dir := t.TempDir()
	api := newTestAPI(t, func(c *Config) {
		c.DataDir = dir
		c.DatabaseName = ""
		c.Argon2 = Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1}
		c.Now = nil
	})
	cfg := api.Config()

	assert.Equal(t, filepath.Join(dir, "app.db"), cfg.dbPath())
	assert.Equal(t, 5*time.Second, cfg.BusyTimeout)
	assert.Equal(t, 4, cfg.MaxOpenConns)
	assert.Equal(t, 2, cfg.MaxIdleConns)
	assert.Equal(t, 7*24*time.Hour, cfg.AccessTokenTTL)
	assert.Equal(t, "local@desktop.app", cfg.DefaultUserEmail)
	assert.Equal(t, "Local User", cfg.DefaultUserName)
	assert.Equal(t, 8, cfg.MinPasswordLength)
	assert.False(t, cfg.AuthRequired)
	assert.Equal(t, uint32(16), cfg.Argon2.SaltLength)
	assert.Equal(t, uint32(32), cfg.Argon2.KeyLength)
	require.NotNil(t, cfg.Now)
}

func TestApplyDefaultsClampsIdle(t *testing.T) {
	cfg := Config{MaxOpenConns: 1, MaxIdleConns: 5}
	applyDefaults(&cfg)
	assert.Equal(t, 1, cfg.MaxIdleConns)
	assert.Equal(t, ".", cfg.DataDir)
}

func TestNewRejectsBadSettings(t *testing.T) {
	_, err := New(Config{DataDir: t.TempDir(), DefaultUserEmail: "nobody"})
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = New(Config{DataDir: t.TempDir(), Argon2: Argon2Params{Memory: 1, Iterations: 1, Parallelism: 1}})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestValidateArgon2Params(t *testing.T) {
	assert.NoError(t, validateArgon2Params(DefaultArgon2Params))
	assert.Error(t, validateArgon2Params(Argon2Params{Memory: 64, Parallelism: 1, SaltLength: 16, KeyLength: 32}))
	assert.Error(t, validateArgon2Params(Argon2Params{Memory: 64, Iterations: 1, SaltLength: 16, KeyLength: 32}))
}
