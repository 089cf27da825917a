package auth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRow(email string) userRow {
	return userRow{
		User: User{
			ID:        uuid.New(),
			Email:     email,
			IsActive:  true,
			CreatedAt: testNow,
			UpdatedAt: testNow,
		},
		HashedPassword: "x",
	}
}

func countUsers(t *testing.T, s *Session) int {
	t.Helper()
	q, err := s.Handle()
	require.NoError(t, err)
	var n int
	require.NoError(t, q.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM users`).Scan(&n))
	return n
}

func TestTxCommitsOnSuccess(t *testing.T) {
	api := newTestAPI(t)
	s := newTestSession(t, api)

	err := s.Tx(context.Background(), func(ctx context.Context, q DBTX) error {
		return newUserRepo(q).insert(ctx, testRow("ok@example.com"))
	})
	require.NoError(t, err)
	assert.Equal(t, 1, countUsers(t, s))
}

func TestTxRollsBackOnError(t *testing.T) {
	api := newTestAPI(t)
	s := newTestSession(t, api)
	boom := errors.New("boom")

	err := s.Tx(context.Background(), func(ctx context.Context, q DBTX) error {
		require.NoError(t, newUserRepo(q).insert(ctx, testRow("a@example.com")))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, countUsers(t, s))
}

func TestTxRollsBackOnPanic(t *testing.T) {
	api := newTestAPI(t)
	s := newTestSession(t, api)

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = s.Tx(context.Background(), func(ctx context.Context, q DBTX) error {
			require.NoError(t, newUserRepo(q).insert(ctx, testRow("p@example.com")))
			panic("kaboom")
		})
	})
	assert.Equal(t, 0, countUsers(t, s))

	// The session is usable again after the panic.
	require.NoError(t, s.Tx(context.Background(), func(ctx context.Context, q DBTX) error {
		return newUserRepo(q).insert(ctx, testRow("after@example.com"))
	}))
	assert.Equal(t, 1, countUsers(t, s))
}

func TestTxRollsBackOnCancel(t *testing.T) {
	api := newTestAPI(t)
	s := newTestSession(t, api)
	ctx, cancel := context.WithCancel(context.Background())

	err := s.Tx(ctx, func(ctx context.Context, q DBTX) error {
		require.NoError(t, newUserRepo(q).insert(ctx, testRow("c@example.com")))
		cancel()
		return nil
	})
	assert.Error(t, err)
	// A rollback forced by cancellation may discard the pinned connection.
	assert.Equal(t, 0, countUsers(t, newTestSession(t, api)))
}

func TestNestedTxJoinsOuter(t *testing.T) {
	api := newTestAPI(t)
	s := newTestSession(t, api)
	inner := errors.New("inner")

	err := s.Tx(context.Background(), func(ctx context.Context, q DBTX) error {
		require.NoError(t, newUserRepo(q).insert(ctx, testRow("outer@example.com")))
		return s.Tx(ctx, func(ctx context.Context, q2 DBTX) error {
			assert.Same(t, q, q2)
			return inner
		})
	})
	assert.ErrorIs(t, err, inner)
	assert.Equal(t, 0, countUsers(t, s))
}

func TestSessionCloseIsIdempotent(t *testing.T) {
	api := newTestAPI(t)
	s, err := api.OpenSession(context.Background())
	require.NoError(t, err)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())

	_, err = s.Handle()
	assert.ErrorIs(t, err, ErrSessionClosed)
	err = s.Tx(context.Background(), func(context.Context, DBTX) error { return nil })
	assert.ErrorIs(t, err, ErrSessionClosed)
}

func TestWithSessionReleasesOnPanic(t *testing.T) {
	api := newTestAPI(t, func(c *Config) { c.MaxOpenConns = 1 })

	assert.Panics(t, func() {
		_ = api.WithSession(context.Background(), func(context.Context, *Session) error {
			panic("handler bug")
		})
	})
	assert.NotPanics(t, func() {
		_ = api.WithSession(context.Background(), func(context.Context, *Session) error {
			return errors.New("handler error")
		})
	})

	// With a single pooled connection this only succeeds if both were released.
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	s, err := api.OpenSession(ctx)
	require.NoError(t, err)
	require.NoError(t, s.Close())
}

func TestWriterWaitsThenBusy(t *testing.T) {
	api := newTestAPI(t, func(c *Config) { c.BusyTimeout = 100 * time.Millisecond })
	ctx := context.Background()
	holder := newTestSession(t, api)
	other := newTestSession(t, api)

	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- holder.Tx(ctx, func(context.Context, DBTX) error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	// Readers are not blocked by the writer.
	assert.Equal(t, 0, countUsers(t, other))

	begin := time.Now()
	err := other.Tx(ctx, func(context.Context, DBTX) error { return nil })
	assert.ErrorIs(t, err, ErrBusy)
	assert.GreaterOrEqual(t, time.Since(begin), 80*time.Millisecond)

	close(release)
	require.NoError(t, <-done)
	assert.NoError(t, other.Tx(ctx, func(ctx context.Context, q DBTX) error {
		return newUserRepo(q).insert(ctx, testRow("w@example.com"))
	}))
}

func TestOpenSessionBusyWhenPoolExhausted(t *testing.T) {
	api := newTestAPI(t, func(c *Config) {
		c.MaxOpenConns = 1
		c.BusyTimeout = 100 * time.Millisecond
	})
	holder := newTestSession(t, api)

	start := time.Now()
	_, err := api.OpenSession(context.Background())
	assert.ErrorIs(t, err, ErrBusy)
	assert.GreaterOrEqual(t, time.Since(start), 100*time.Millisecond)

	// A caller that gives up first gets its own error, not ErrBusy.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = api.OpenSession(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NotErrorIs(t, err, ErrBusy)

	require.NoError(t, holder.Close())
	s, err := api.OpenSession(context.Background())
	require.NoError(t, err)
	require.NoError(t, s.Close())
}
