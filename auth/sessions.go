package auth

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
)

// DBTX is the subset of database/sql available through a Session.
// *sql.Conn and *sql.Tx both satisfy it.
type DBTX interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// ErrSessionClosed is returned when a closed Session is used.
var ErrSessionClosed = errors.New("session closed")

// Session is a request-scoped database handle pinned to one pooled
// connection. Reads run in autocommit; writes go through Tx. A Session is
// used by one request at a time and must be closed.
type Session struct {
	mu     sync.Mutex
	conn   *sql.Conn
	tx     *sql.Tx
	closed bool
}

// openSessionInternal waits at most BusyTimeout for a free pooled
// connection; running out of time is ErrBusy.
func (a *API) openSessionInternal(ctx context.Context) (*Session, error) {
	wctx, cancel := context.WithTimeout(ctx, a.cfg.BusyTimeout)
	defer cancel()
	conn, err := a.store.db.Conn(wctx)
	if err != nil {
		if ctx.Err() == nil && errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w: no free connection after %v", ErrBusy, a.cfg.BusyTimeout)
		}
		return nil, fmt.Errorf("acquire connection: %w", mapDBError(err))
	}
	return &Session{conn: conn}, nil
}

func (a *API) withSessionInternal(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	s, err := a.openSessionInternal(ctx)
	if err != nil {
		return err
	}
	defer s.Close()
	return fn(ctx, s)
}

// Handle returns what queries should run on: the open transaction, if any,
// otherwise the pinned connection.
func (s *Session) Handle() (DBTX, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSessionClosed
	}
	if s.tx != nil {
		return s.tx, nil
	}
	return s.conn, nil
}

// Tx runs fn inside a write transaction. It commits when fn returns nil and
// rolls back on error, panic (re-panicked), or context cancellation. A Tx
// started while another is open joins it; only the outermost call commits.
func (s *Session) Tx(ctx context.Context, fn func(ctx context.Context, q DBTX) error) (err error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrSessionClosed
	}
	if s.tx != nil {
		tx := s.tx
		s.mu.Unlock()
		return fn(ctx, tx)
	}
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("begin: %w", mapDBError(err))
	}
	s.tx = tx
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.tx = nil
		s.mu.Unlock()

		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			_ = tx.Rollback()
			return
		}
		if cerr := tx.Commit(); cerr != nil {
			err = fmt.Errorf("commit: %w", mapDBError(cerr))
		}
	}()

	return fn(ctx, tx)
}

// Close rolls back an unfinished transaction and returns the connection to
// the pool. Safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if s.tx != nil {
		_ = s.tx.Rollback()
		s.tx = nil
	}
	return s.conn.Close()
}
