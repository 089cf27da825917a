package auth

import (
	"fmt"
	"path/filepath"
	"time"
)

const (
	defaultDatabaseName    = "app.db"
	defaultBusyTimeout     = 5 * time.Second
	defaultAccessTokenTTL  = 7 * 24 * time.Hour
	defaultUserEmail       = "local@desktop.app"
	defaultUserName        = "Local User"
	defaultMinPasswordLen  = 8
	defaultMaxOpenConns    = 4
	defaultMaxIdleConns    = 2
	maxPasswordLengthBytes = 4096
	bearerTokenType        = "bearer"
)

func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = "."
	}
	if cfg.DatabaseName == "" {
		cfg.DatabaseName = defaultDatabaseName
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = defaultBusyTimeout
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = defaultMaxOpenConns
	}
	if cfg.MaxIdleConns <= 0 {
		cfg.MaxIdleConns = defaultMaxIdleConns
	}
	if cfg.MaxIdleConns > cfg.MaxOpenConns {
		cfg.MaxIdleConns = cfg.MaxOpenConns
	}
	if cfg.AccessTokenTTL <= 0 {
		cfg.AccessTokenTTL = defaultAccessTokenTTL
	}
	if cfg.DefaultUserEmail == "" {
		cfg.DefaultUserEmail = defaultUserEmail
	}
	cfg.DefaultUserEmail = normalizeEmail(cfg.DefaultUserEmail)
	if cfg.DefaultUserName == "" {
		cfg.DefaultUserName = defaultUserName
	}
	cfg.Argon2 = cfg.Argon2.withDefaults()
	if cfg.MinPasswordLength <= 0 {
		cfg.MinPasswordLength = defaultMinPasswordLen
	}
	// RequireStrongPasswords defaults to false; leave as-is.
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
}

func (c Config) dbPath() string {
	return filepath.Join(c.DataDir, c.DatabaseName)
}

func validateArgon2Params(p Argon2Params) error {
	if p.Iterations < 1 {
		return fmt.Errorf("argon2 iterations must be >= 1; got %d", p.Iterations)
	}
	if p.Parallelism < 1 {
		return fmt.Errorf("argon2 parallelism must be in [1,255]; got %d", p.Parallelism)
	}
	if p.Memory < 8*uint32(p.Parallelism) {
		return fmt.Errorf("argon2 memory must be >= 8*parallelism KiB; got %d", p.Memory)
	}
	if p.SaltLength < 8 {
		return fmt.Errorf("argon2 salt length must be >= 8; got %d", p.SaltLength)
	}
	if p.KeyLength < 16 {
		return fmt.Errorf("argon2 key length must be >= 16; got %d", p.KeyLength)
	}
	return nil
}
