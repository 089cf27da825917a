package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fastArgon2 keeps hashing cheap in tests.
var fastArgon2 = Argon2Params{Memory: 64, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

var testNow = time.Unix(1_700_000_000, 0).UTC()

func newTestAPI(t *testing.T, mutate ...func(*Config)) *API {
	t.Helper()
	cfg := Config{
		DataDir:      t.TempDir(),
		DatabaseName: "test.db",
		SecretKey:    "test-secret",
		Argon2:       fastArgon2,
		Now:          func() time.Time { return testNow },
	}
	for _, fn := range mutate {
		fn(&cfg)
	}
	api, err := New(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = api.Close() })
	return api
}

func authRequired(c *Config) { c.AuthRequired = true }

func newTestSession(t *testing.T, api *API) *Session {
	t.Helper()
	s, err := api.OpenSession(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func mustCreateUser(t *testing.T, api *API, in NewUser) User {
	t.Helper()
	var u User
	err := api.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		var err error
		u, err = api.CreateUser(ctx, s, in)
		return err
	})
	require.NoError(t, err)
	return u
}

func mustLogin(t *testing.T, api *API, email, pass string) string {
	t.Helper()
	var tok AccessToken
	err := api.WithSession(context.Background(), func(ctx context.Context, s *Session) error {
		var err error
		tok, err = api.Login(ctx, s, email, pass)
		return err
	})
	require.NoError(t, err)
	return tok.AccessToken
}

func newReqWithBearer(method, target, token string) *http.Request {
	r := httptest.NewRequest(method, target, nil)
	if token != "" {
		r.Header.Set("Authorization", "Bearer "+token)
	}
	return r
}

func boolPtr(b bool) *bool      { return &b }
func strPtr(s string) *string { return &s }
