package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// Resolver turns the credentials of a request into the acting user.
type Resolver interface {
	Resolve(ctx context.Context, s *Session, bearer string) (User, error)
}

// localResolver serves the auth-disabled mode: every request acts as the
// default local superuser, created on first use. The bearer is ignored.
type localResolver struct {
	api *API
}

func (r localResolver) Resolve(ctx context.Context, s *Session, _ string) (User, error) {
	return r.api.getOrCreateDefaultUser(ctx, s)
}

// bearerResolver requires a valid token naming an existing, active user.
type bearerResolver struct {
	tokens *TokenService
}

func (r bearerResolver) Resolve(ctx context.Context, s *Session, bearer string) (User, error) {
	if bearer == "" {
		return User{}, ErrUnauthenticated
	}
	sub, err := r.tokens.Validate(bearer)
	if err != nil {
		return User{}, err
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return User{}, fmt.Errorf("%w: subject is not a user id", ErrInvalidCredentials)
	}
	q, err := s.Handle()
	if err != nil {
		return User{}, err
	}
	u, err := newUserRepo(q).byID(ctx, id)
	if err != nil {
		return User{}, err
	}
	if !u.IsActive {
		return User{}, ErrInactiveUser
	}
	return u.User, nil
}

func newResolver(a *API) Resolver {
	if a.cfg.AuthRequired {
		return bearerResolver{tokens: a.tokens}
	}
	return localResolver{api: a}
}

// getOrCreateDefaultUser returns the configured local user, inserting it as
// an active superuser when it does not exist yet. Two first requests racing
// here both end up with the same row: the loser of the insert sees
// ErrEmailTaken and reads the winner's record.
func (a *API) getOrCreateDefaultUser(ctx context.Context, s *Session) (User, error) {
	q, err := s.Handle()
	if err != nil {
		return User{}, err
	}
	u, err := newUserRepo(q).byEmail(ctx, a.cfg.DefaultUserEmail)
	if err == nil {
		return u.User, nil
	}
	if !errors.Is(err, ErrUserNotFound) {
		return User{}, err
	}

	// The local user never logs in with a password; store the hash of one
	// nobody knows. Hashing stays outside the write transaction.
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return User{}, fmt.Errorf("generate password: %w", err)
	}
	hash, err := a.hasher.Hash(base64.RawURLEncoding.EncodeToString(secret))
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	now := a.now()
	row := userRow{
		User: User{
			ID:          uuid.New(),
			Email:       a.cfg.DefaultUserEmail,
			FullName:    a.cfg.DefaultUserName,
			IsActive:    true,
			IsSuperuser: true,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		HashedPassword: hash,
	}
	err = s.Tx(ctx, func(ctx context.Context, q DBTX) error {
		return newUserRepo(q).insert(ctx, row)
	})
	switch {
	case err == nil:
		a.log.Info(ctx, "created default user", "email", row.Email, "id", row.ID.String())
		return row.User, nil
	case errors.Is(err, ErrEmailTaken):
		a.log.Debug(ctx, "default user created concurrently, re-reading", "email", row.Email)
		q, herr := s.Handle()
		if herr != nil {
			return User{}, herr
		}
		u, err := newUserRepo(q).byEmail(ctx, a.cfg.DefaultUserEmail)
		if err != nil {
			return User{}, err
		}
		return u.User, nil
	default:
		return User{}, err
	}
}
