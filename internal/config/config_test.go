package config

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mapEnv(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	s, err := load([]string{"-env-file", "", "-data-dir", dir}, mapEnv(nil), io.Discard)
	require.NoError(t, err)

	want := &Settings{}
	want.LoadDefaults()
	want.DataDir = dir
	want.SecretKey = s.SecretKey
	assert.Empty(t, cmp.Diff(want, s))
	assert.Equal(t, "127.0.0.1:1430", s.Addr())
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte(strings.Join([]string{
		"PROJECT_NAME=From Dotenv",
		"PORT=2000",
		"HOST=0.0.0.0",
		"SECRET_KEY=dotenv-secret",
		"LOG_LEVEL=debug",
	}, "\n")), 0o600))

	env := mapEnv(map[string]string{
		"PORT":                        "3000",
		"HOST":                        "",
		"AUTH_REQUIRED":               "true",
		"ACCESS_TOKEN_EXPIRE_MINUTES": "30",
		"CORS_ORIGINS":                "http://a.test, ,http://b.test",
		"ENVIRONMENT":                 "production",
		"DATA_DIR":                    dir,
		"BUSY_TIMEOUT_MS":             "250",
		"API_V1_STR":                  "/api/v2/",
	})
	s, err := load([]string{"-env-file", envFile, "-port", "4000"}, env, io.Discard)
	require.NoError(t, err)

	assert.Equal(t, "From Dotenv", s.ProjectName)
	assert.Equal(t, 4000, s.Port, "flag beats env")
	assert.Equal(t, "0.0.0.0", s.Host, "empty env value is ignored")
	assert.Equal(t, "dotenv-secret", s.SecretKey)
	assert.True(t, s.AuthRequired)
	assert.Equal(t, 30*time.Minute, s.AccessTokenTTL)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, s.CORSOrigins)
	assert.Equal(t, "production", s.Environment)
	assert.Equal(t, 250*time.Millisecond, s.BusyTimeout)
	assert.Equal(t, "/api/v2", s.APIV1Str)
	assert.Equal(t, "debug", s.LogLevel)

	a := s.Auth()
	assert.True(t, a.AuthRequired)
	assert.Equal(t, dir, a.DataDir)
	assert.Equal(t, "dotenv-secret", a.SecretKey)
	assert.Equal(t, 250*time.Millisecond, a.BusyTimeout)
}

func TestLoadFlagOverridesAuthRequired(t *testing.T) {
	env := mapEnv(map[string]string{"AUTH_REQUIRED": "true", "SECRET_KEY": "k"})
	s, err := load([]string{"-env-file", "", "-auth-required=false"}, env, io.Discard)
	require.NoError(t, err)
	assert.False(t, s.AuthRequired)
}

func TestLoadRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"bool":        {"AUTH_REQUIRED": "maybe"},
		"ttl":         {"ACCESS_TOKEN_EXPIRE_MINUTES": "-1"},
		"port":        {"PORT": "http"},
		"port range":  {"PORT": "70000"},
		"environment": {"ENVIRONMENT": "staging"},
		"prefix":      {"API_V1_STR": "api"},
		"busy":        {"BUSY_TIMEOUT_MS": "0"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			vars["SECRET_KEY"] = "k"
			_, err := load([]string{"-env-file", ""}, mapEnv(vars), io.Discard)
			assert.Error(t, err)
		})
	}

	_, err := load([]string{"-no-such-flag"}, mapEnv(nil), io.Discard)
	assert.Error(t, err)
}

func TestSecretKeyGeneratedAndPersisted(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")
	env := mapEnv(map[string]string{"DATA_DIR": dir})

	first, err := load([]string{"-env-file", ""}, env, io.Discard)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(first.SecretKey), 43)

	info, err := os.Stat(filepath.Join(dir, secretKeyFile))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	second, err := load([]string{"-env-file", ""}, env, io.Discard)
	require.NoError(t, err)
	assert.Equal(t, first.SecretKey, second.SecretKey)
}

func TestMissingEnvFileIgnored(t *testing.T) {
	env := mapEnv(map[string]string{"SECRET_KEY": "k"})
	_, err := load([]string{"-env-file", filepath.Join(t.TempDir(), "absent.env")}, env, io.Discard)
	assert.NoError(t, err)
}
