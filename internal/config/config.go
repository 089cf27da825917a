// Package config resolves process settings for the backend.
//
// Sources, lowest precedence first: built-in defaults, a .env file, the
// process environment, command-line flags. Empty environment values are
// ignored. When no secret key is configured one is generated and kept in
// DATA_DIR/.secret_key so issued tokens survive a restart.
package config

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/Brandon689/deskauth/auth"
)

// Settings holds runtime configuration. It is resolved once at startup and
// not modified afterwards.
type Settings struct {
	ProjectName string
	Version     string
	APIV1Str    string
	Environment string

	AuthRequired   bool
	SecretKey      string
	AccessTokenTTL time.Duration

	DataDir      string
	DatabaseName string
	BusyTimeout  time.Duration

	Host string
	Port int

	DefaultUserEmail string
	DefaultUserName  string

	CORSOrigins []string
	LogLevel    string
}

const secretKeyFile = ".secret_key"

var environments = map[string]bool{"local": true, "development": true, "production": true}

// LoadDefaults populates s with the built-in defaults.
func (s *Settings) LoadDefaults() {
	s.ProjectName = "Desktop App"
	s.Version = "0.1.0"
	s.APIV1Str = "/api/v1"
	s.Environment = "local"
	s.AuthRequired = false
	s.AccessTokenTTL = 7 * 24 * time.Hour
	s.DataDir = "."
	s.DatabaseName = "app.db"
	s.BusyTimeout = 5 * time.Second
	s.Host = "127.0.0.1"
	s.Port = 1430
	s.DefaultUserEmail = "local@desktop.app"
	s.DefaultUserName = "Local User"
	s.CORSOrigins = []string{
		"http://localhost:1420",
		"http://127.0.0.1:1420",
		"tauri://localhost",
		"https://tauri.localhost",
	}
	s.LogLevel = "info"
}

// Load resolves settings from args (without the program name) and the
// process environment.
func Load(args []string) (*Settings, error) {
	return load(args, os.LookupEnv, io.Discard)
}

func load(args []string, lookup func(string) (string, bool), usage io.Writer) (*Settings, error) {
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.SetOutput(usage)
	envFile := fs.String("env-file", ".env", "dotenv file to read (missing file is ignored)")
	host := fs.String("host", "", "listen host")
	port := fs.Int("port", 0, "listen port")
	dataDir := fs.String("data-dir", "", "directory holding the database")
	authRequired := fs.Bool("auth-required", false, "require bearer tokens")
	logLevel := fs.String("log-level", "", "debug, info, warn or error")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) { set[f.Name] = true })

	dotenv, err := readDotenv(*envFile)
	if err != nil {
		return nil, err
	}
	env := func(key string) (string, bool) {
		if v, ok := lookup(key); ok && v != "" {
			return v, true
		}
		if v, ok := dotenv[key]; ok && v != "" {
			return v, true
		}
		return "", false
	}

	s := &Settings{}
	s.LoadDefaults()
	if err := s.applyEnv(env); err != nil {
		return nil, err
	}

	if set["host"] {
		s.Host = *host
	}
	if set["port"] {
		s.Port = *port
	}
	if set["data-dir"] {
		s.DataDir = *dataDir
	}
	if set["auth-required"] {
		s.AuthRequired = *authRequired
	}
	if set["log-level"] {
		s.LogLevel = *logLevel
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	if s.SecretKey == "" {
		key, err := loadOrCreateSecret(s.DataDir)
		if err != nil {
			return nil, err
		}
		s.SecretKey = key
	}
	return s, nil
}

func readDotenv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	m, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return m, nil
}

func (s *Settings) applyEnv(env func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := env(key); ok {
			*dst = v
		}
	}
	str("PROJECT_NAME", &s.ProjectName)
	str("API_V1_STR", &s.APIV1Str)
	str("ENVIRONMENT", &s.Environment)
	str("SECRET_KEY", &s.SecretKey)
	str("DATA_DIR", &s.DataDir)
	str("DATABASE_NAME", &s.DatabaseName)
	str("HOST", &s.Host)
	str("DEFAULT_USER_EMAIL", &s.DefaultUserEmail)
	str("DEFAULT_USER_NAME", &s.DefaultUserName)
	str("LOG_LEVEL", &s.LogLevel)

	if v, ok := env("AUTH_REQUIRED"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("AUTH_REQUIRED: %w", err)
		}
		s.AuthRequired = b
	}
	if v, ok := env("ACCESS_TOKEN_EXPIRE_MINUTES"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES: want a positive integer, got %q", v)
		}
		s.AccessTokenTTL = time.Duration(n) * time.Minute
	}
	if v, ok := env("BUSY_TIMEOUT_MS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return fmt.Errorf("BUSY_TIMEOUT_MS: want a positive integer, got %q", v)
		}
		s.BusyTimeout = time.Duration(n) * time.Millisecond
	}
	if v, ok := env("PORT"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("PORT: %w", err)
		}
		s.Port = n
	}
	if v, ok := env("CORS_ORIGINS"); ok {
		s.CORSOrigins = splitList(v)
	}
	return nil
}

func (s *Settings) validate() error {
	if !environments[s.Environment] {
		return fmt.Errorf("ENVIRONMENT must be local, development or production; got %q", s.Environment)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port out of range: %d", s.Port)
	}
	if !strings.HasPrefix(s.APIV1Str, "/") {
		return fmt.Errorf("API_V1_STR must start with '/'; got %q", s.APIV1Str)
	}
	s.APIV1Str = strings.TrimRight(s.APIV1Str, "/")
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// loadOrCreateSecret returns the key stored in dir, generating and storing
// a new one on first boot.
func loadOrCreateSecret(dir string) (string, error) {
	path := filepath.Join(dir, secretKeyFile)
	b, err := os.ReadFile(path)
	if err == nil {
		if key := strings.TrimSpace(string(b)); key != "" {
			return key, nil
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("read secret key: %w", err)
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate secret key: %w", err)
	}
	key := base64.RawURLEncoding.EncodeToString(raw)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(key+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write secret key: %w", err)
	}
	return key, nil
}

// Addr is the listen address.
func (s *Settings) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Auth returns the auth package configuration for these settings.
func (s *Settings) Auth() auth.Config {
	return auth.Config{
		DataDir:          s.DataDir,
		DatabaseName:     s.DatabaseName,
		BusyTimeout:      s.BusyTimeout,
		AuthRequired:     s.AuthRequired,
		SecretKey:        s.SecretKey,
		AccessTokenTTL:   s.AccessTokenTTL,
		DefaultUserEmail: s.DefaultUserEmail,
		DefaultUserName:  s.DefaultUserName,
	}
}
