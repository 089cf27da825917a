package auth

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"

	sqlite3 "github.com/mattn/go-sqlite3"
)

// store owns the single connection pool for the database file.
type store struct {
	db *sql.DB
}

// connector hands every new physical connection to a driver whose
// ConnectHook applies the pragmas, so each connection is configured exactly
// once at creation.
type connector struct {
	dsn string
	drv *sqlite3.SQLiteDriver
}

func (c *connector) Connect(context.Context) (driver.Conn, error) { return c.drv.Open(c.dsn) }
func (c *connector) Driver() driver.Driver                        { return c.drv }

func pragmaHook(cfg Config) func(*sqlite3.SQLiteConn) error {
	stmts := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys=ON",
		fmt.Sprintf("PRAGMA busy_timeout=%d", cfg.BusyTimeout.Milliseconds()),
		"PRAGMA synchronous=NORMAL",
	}
	return func(conn *sqlite3.SQLiteConn) error {
		for _, s := range stmts {
			if _, err := conn.Exec(s, nil); err != nil {
				return fmt.Errorf("%s: %w", s, err)
			}
		}
		return nil
	}
}

// openStore creates the data directory, opens the pool, checks that a
// connection can be made, and runs migrations. Every failure here wraps
// ErrStorageUnavailable.
func openStore(ctx context.Context, cfg Config) (*store, error) {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir %q: %v", ErrStorageUnavailable, cfg.DataDir, err)
	}

	// _txlock=immediate: BEGIN takes the write lock, so a second writer waits
	// on the busy timeout at BEGIN instead of failing mid-transaction.
	dsn := cfg.dbPath() + "?_txlock=immediate"
	db := sql.OpenDB(&connector{dsn: dsn, drv: &sqlite3.SQLiteDriver{ConnectHook: pragmaHook(cfg)}})
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: open %q: %v", ErrStorageUnavailable, cfg.dbPath(), err)
	}

	s := &store{db: db}
	if err := s.migrate(ctx, cfg.Logger); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("%w: migrate: %v", ErrStorageUnavailable, err)
	}
	return s, nil
}

func (s *store) close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// mapDBError translates driver errors into the package sentinels.
func mapDBError(err error) error {
	if err == nil {
		return nil
	}
	var se sqlite3.Error
	if errors.As(err, &se) {
		switch {
		case se.Code == sqlite3.ErrBusy || se.Code == sqlite3.ErrLocked:
			return fmt.Errorf("%w: %v", ErrBusy, err)
		case se.ExtendedCode == sqlite3.ErrConstraintUnique:
			return fmt.Errorf("%w: %v", ErrEmailTaken, err)
		}
	}
	return err
}
