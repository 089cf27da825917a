// Package auth is the authentication and data core of the desktop backend:
//   - A single SQLite connection pool tuned for one writer and many readers
//     (WAL, foreign keys, busy timeout, synchronous=NORMAL) applied per connection
//   - Request-scoped database sessions with guaranteed release
//   - Users with argon2id password hashes and transparent upgrade of legacy
//     bcrypt hashes on successful login
//   - Stateless HS256 bearer tokens
//   - One identity resolver for both modes: auth disabled (implicit local
//     superuser) and auth required (bearer token)
//
// This file is the public, self-documenting API surface. The implementation
// is split across the other files in this package.
//
// Quick start:
//
//	api, err := auth.New(auth.Config{
//	  DataDir:      "/home/me/.local/share/app",
//	  DatabaseName: "app.db",
//	  AuthRequired: false,
//	  SecretKey:    secret,
//	})
//	if err != nil {
//	  log.Fatal(err) // errors.Is(err, auth.ErrStorageUnavailable)
//	}
//	defer api.Close()
//
//	mux := http.NewServeMux()
//	mux.Handle("/me", api.SessionMiddleware(api.Middleware(http.HandlerFunc(
//	  func(w http.ResponseWriter, r *http.Request) {
//	    user, _ := auth.FromContext(r.Context())
//	    _, _ = w.Write([]byte("hello " + user.Email))
//	  }))))
//
// Handlers never branch on AuthRequired: with auth disabled Middleware injects
// the default local user, with auth enabled it injects the token's user.
//
// API overview:
//   - type Config, API, User, Session, AccessToken
//   - func New(Config) (*API, error)
//   - func (*API) Close() error
//   - func (*API) OpenSession(ctx) (*Session, error) / WithSession(ctx, fn) error
//   - func (*API) Resolve(ctx, s, bearer) (User, error)
//   - func (*API) Authenticate(ctx, s, email, password) (User, bool, error)
//   - func (*API) Login(ctx, s, email, password) (AccessToken, error)
//   - func (*API) Register / CreateUser / UpdateMe / ChangePassword / UpdateUser
//   - func (*API) GetUser / ListUsers
//   - func (*API) SessionMiddleware / Middleware / RequireSuperuser
//   - func (*API) SetArgon2Params(Argon2Params) error
//   - func RequirePrivileged(User) (User, error)
//   - func FromContext(ctx) (User, bool) / SessionFromContext(ctx) (*Session, bool)
//   - func BearerToken(*http.Request) string, StatusFor(error), WriteError(w, error)
package auth

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/Brandon689/deskauth/internal/logging"
)

// Config controls the behavior of the auth package.
// Zero values are replaced with defaults in New.
type Config struct {
	// DataDir holds the database file; created on first use. Default: ".".
	DataDir string
	// DatabaseName is the SQLite file name inside DataDir. Default: "app.db".
	DatabaseName string

	// BusyTimeout bounds how long a writer waits for the lock. Default: 5s.
	BusyTimeout time.Duration

	// Pool tuning. WAL allows concurrent readers. Defaults: 4 open / 2 idle.
	MaxOpenConns int
	MaxIdleConns int

	// AuthRequired selects the identity resolver. false: every request runs
	// as the default local user. true: a valid bearer token is required.
	AuthRequired bool

	// SecretKey signs bearer tokens (HS256). If empty a random key is
	// generated for the life of the process.
	SecretKey string

	// AccessTokenTTL is the bearer token lifetime. Default: 7 days.
	AccessTokenTTL time.Duration

	// Default local user, used when AuthRequired is false.
	// Defaults: "local@desktop.app" / "Local User".
	DefaultUserEmail string
	DefaultUserName  string

	// Argon2 controls the primary password hash cost. Zero fields take the
	// defaults (m=64MiB, t=3, p=4, 16-byte salt, 32-byte key).
	Argon2 Argon2Params

	// Password policy. Default MinPasswordLength=8, RequireStrongPasswords=false.
	MinPasswordLength      int
	RequireStrongPasswords bool

	// Now overrides the time source (tests). Default: time.Now.
	Now func() time.Time

	// Logger receives diagnostics. nil disables logging.
	Logger logging.Logger
}

// API is the main entry point. It is safe to share one instance across
// handlers and goroutines.
type API struct {
	store    *store
	cfg      Config
	log      logging.Logger
	hasher   *PasswordHasher
	tokens   *TokenService
	resolver Resolver
}

// User is the identity record returned by the API (no password fields).
type User struct {
	ID          uuid.UUID
	Email       string
	FullName    string
	IsActive    bool
	IsSuperuser bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// AccessToken is the result of a successful login.
type AccessToken struct {
	AccessToken string
	TokenType   string
	ExpiresAt   time.Time
}

// NewUser describes a user to create. IsActive defaults to true when nil.
type NewUser struct {
	Email       string
	Password    string
	FullName    string
	IsActive    *bool
	IsSuperuser bool
}

// ProfileUpdate holds the fields a user may change on their own record.
// nil fields are left untouched.
type ProfileUpdate struct {
	Email    *string
	FullName *string
}

// UserUpdate is the administrative update. nil fields are left untouched.
type UserUpdate struct {
	Email       *string
	FullName    *string
	Password    *string
	IsActive    *bool
	IsSuperuser *bool
}

// New opens (creating if needed) the database, runs migrations, and returns
// an API. Storage failures wrap ErrStorageUnavailable and are meant to be fatal.
func New(cfg Config) (*API, error) {
	return newAPI(cfg)
}

// Close releases the connection pool.
func (a *API) Close() error {
	return a.closeInternal()
}

// Config returns the effective configuration (defaults applied). Argon2
// reflects the latest SetArgon2Params.
func (a *API) Config() Config {
	cfg := a.cfg
	cfg.Argon2 = a.hasher.Params()
	return cfg
}

// Tokens returns the token service used for login.
func (a *API) Tokens() *TokenService {
	return a.tokens
}

// Hasher returns the password hasher.
func (a *API) Hasher() *PasswordHasher {
	return a.hasher
}

// OpenSession acquires a request-scoped session. The caller must Close it.
func (a *API) OpenSession(ctx context.Context) (*Session, error) {
	return a.openSessionInternal(ctx)
}

// WithSession runs fn with a fresh session and releases it on every exit
// path, panics included.
func (a *API) WithSession(ctx context.Context, fn func(ctx context.Context, s *Session) error) error {
	return a.withSessionInternal(ctx, fn)
}

// Resolve turns an optional bearer token into the current identity using the
// resolver selected by Config.AuthRequired.
func (a *API) Resolve(ctx context.Context, s *Session, bearer string) (User, error) {
	return a.resolver.Resolve(ctx, s, bearer)
}

// Authenticate checks email and password. ok is false for an unknown email or
// a wrong password; both paths cost one password verification. A legacy hash
// is replaced with a primary one on success.
func (a *API) Authenticate(ctx context.Context, s *Session, email, password string) (User, bool, error) {
	return a.authenticateInternal(ctx, s, email, password)
}

// Login authenticates and issues an access token for the user.
// Returns ErrInvalidCredentials or ErrInactiveUser on failure.
func (a *API) Login(ctx context.Context, s *Session, email, password string) (AccessToken, error) {
	return a.loginInternal(ctx, s, email, password)
}

// Register creates a regular (non-superuser) active account.
func (a *API) Register(ctx context.Context, s *Session, in NewUser) (User, error) {
	return a.registerInternal(ctx, s, in)
}

// CreateUser is the administrative create; flags are taken from in.
func (a *API) CreateUser(ctx context.Context, s *Session, in NewUser) (User, error) {
	return a.createUserInternal(ctx, s, in)
}

// GetUser loads a user by id. Returns ErrUserNotFound if absent.
func (a *API) GetUser(ctx context.Context, s *Session, id uuid.UUID) (User, error) {
	return a.getUserInternal(ctx, s, id)
}

// ListUsers returns a page of users ordered by creation time and the total count.
func (a *API) ListUsers(ctx context.Context, s *Session, offset, limit int) ([]User, int, error) {
	return a.listUsersInternal(ctx, s, offset, limit)
}

// UpdateMe changes the caller's own email and/or full name.
func (a *API) UpdateMe(ctx context.Context, s *Session, id uuid.UUID, in ProfileUpdate) (User, error) {
	return a.updateMeInternal(ctx, s, id, in)
}

// ChangePassword verifies the current password and stores a hash of the new one.
func (a *API) ChangePassword(ctx context.Context, s *Session, id uuid.UUID, current, next string) error {
	return a.changePasswordInternal(ctx, s, id, current, next)
}

// UpdateUser is the administrative update.
func (a *API) UpdateUser(ctx context.Context, s *Session, id uuid.UUID, in UserUpdate) (User, error) {
	return a.updateUserInternal(ctx, s, id, in)
}

// SessionMiddleware opens one Session per request, stores it in the request
// context and closes it when the handler returns.
func (a *API) SessionMiddleware(next http.Handler) http.Handler {
	return a.sessionMiddlewareInternal(next)
}

// Middleware resolves the current identity and injects it into the request
// context. Failures are answered directly (401/403/404/400/503).
// Must run inside SessionMiddleware.
func (a *API) Middleware(next http.Handler) http.Handler {
	return a.middlewareInternal(next)
}

// RequireSuperuser answers 403 unless the injected identity is a superuser.
// Must run after Middleware.
func (a *API) RequireSuperuser(next http.Handler) http.Handler {
	return a.requireSuperuserInternal(next)
}

// FromContext retrieves the identity injected by Middleware.
func FromContext(ctx context.Context) (User, bool) {
	return fromContext(ctx)
}

// SessionFromContext retrieves the session injected by SessionMiddleware.
func SessionFromContext(ctx context.Context) (*Session, bool) {
	return sessionFromContext(ctx)
}
