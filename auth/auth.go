package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/Brandon689/deskauth/internal/logging"
)

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

func newAPI(cfg Config) (*API, error) {
	applyDefaults(&cfg)
	if !validEmailBasic(cfg.DefaultUserEmail) {
		return nil, fmt.Errorf("%w: default user email %q", ErrInvalidInput, cfg.DefaultUserEmail)
	}

	log := cfg.Logger
	if log == nil {
		log = logging.Nop()
	}
	log = log.With("component", "auth")

	hasher, err := NewPasswordHasher(cfg.Argon2)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	tokens, err := NewTokenService(cfg.SecretKey, cfg.Now)
	if err != nil {
		return nil, err
	}
	if cfg.SecretKey == "" {
		log.Warn(context.Background(), "no secret key configured, tokens will not survive a restart")
	}

	st, err := openStore(context.Background(), cfg)
	if err != nil {
		return nil, err
	}

	a := &API{
		store:  st,
		cfg:    cfg,
		log:    log,
		hasher: hasher,
		tokens: tokens,
	}
	a.resolver = newResolver(a)
	log.Info(context.Background(), "database ready",
		"path", cfg.dbPath(), "auth_required", cfg.AuthRequired)
	return a, nil
}

func (a *API) closeInternal() error {
	return a.store.close()
}

func (a *API) authenticateInternal(ctx context.Context, s *Session, email, password string) (User, bool, error) {
	q, err := s.Handle()
	if err != nil {
		return User{}, false, err
	}
	u, err := newUserRepo(q).byEmail(ctx, email)
	if errors.Is(err, ErrUserNotFound) {
		a.hasher.VerifyDummy(password)
		return User{}, false, nil
	}
	if err != nil {
		return User{}, false, err
	}

	ok, upgraded := a.hasher.Verify(password, u.HashedPassword)
	if !ok {
		return User{}, false, nil
	}
	if upgraded != "" {
		at := a.now()
		err := s.Tx(ctx, func(ctx context.Context, q DBTX) error {
			return newUserRepo(q).setPasswordHash(ctx, u.ID, upgraded, at)
		})
		if err != nil {
			return User{}, false, fmt.Errorf("store upgraded hash: %w", err)
		}
		a.log.Info(ctx, "password hash upgraded", "user_id", u.ID.String())
		u.UpdatedAt = at
	}
	return u.User, true, nil
}

func (a *API) loginInternal(ctx context.Context, s *Session, email, password string) (AccessToken, error) {
	u, ok, err := a.authenticateInternal(ctx, s, email, password)
	if err != nil {
		return AccessToken{}, err
	}
	if !ok {
		return AccessToken{}, ErrInvalidCredentials
	}
	if !u.IsActive {
		return AccessToken{}, ErrInactiveUser
	}
	tok, exp, err := a.tokens.Issue(u.ID.String(), a.cfg.AccessTokenTTL)
	if err != nil {
		return AccessToken{}, err
	}
	return AccessToken{AccessToken: tok, TokenType: bearerTokenType, ExpiresAt: exp}, nil
}

func (a *API) registerInternal(ctx context.Context, s *Session, in NewUser) (User, error) {
	in.IsActive = nil
	in.IsSuperuser = false
	return a.createUserInternal(ctx, s, in)
}

func (a *API) createUserInternal(ctx context.Context, s *Session, in NewUser) (User, error) {
	email, err := a.checkEmail(in.Email)
	if err != nil {
		return User{}, err
	}
	if err := a.checkPassword(in.Password); err != nil {
		return User{}, err
	}
	hash, err := a.hasher.Hash(in.Password)
	if err != nil {
		return User{}, fmt.Errorf("hash password: %w", err)
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}
	now := a.now()
	row := userRow{
		User: User{
			ID:          uuid.New(),
			Email:       email,
			FullName:    in.FullName,
			IsActive:    active,
			IsSuperuser: in.IsSuperuser,
			CreatedAt:   now,
			UpdatedAt:   now,
		},
		HashedPassword: hash,
	}
	err = s.Tx(ctx, func(ctx context.Context, q DBTX) error {
		repo := newUserRepo(q)
		if _, err := repo.byEmail(ctx, email); err == nil {
			return ErrEmailTaken
		} else if !errors.Is(err, ErrUserNotFound) {
			return err
		}
		return repo.insert(ctx, row)
	})
	if err != nil {
		return User{}, err
	}
	a.log.Info(ctx, "user created", "user_id", row.ID.String(), "superuser", row.IsSuperuser)
	return row.User, nil
}

func (a *API) getUserInternal(ctx context.Context, s *Session, id uuid.UUID) (User, error) {
	q, err := s.Handle()
	if err != nil {
		return User{}, err
	}
	u, err := newUserRepo(q).byID(ctx, id)
	if err != nil {
		return User{}, err
	}
	return u.User, nil
}

func (a *API) listUsersInternal(ctx context.Context, s *Session, offset, limit int) ([]User, int, error) {
	if offset < 0 {
		offset = 0
	}
	switch {
	case limit <= 0:
		limit = defaultListLimit
	case limit > maxListLimit:
		limit = maxListLimit
	}
	q, err := s.Handle()
	if err != nil {
		return nil, 0, err
	}
	rows, total, err := newUserRepo(q).list(ctx, offset, limit)
	if err != nil {
		return nil, 0, err
	}
	out := make([]User, len(rows))
	for i, r := range rows {
		out[i] = r.User
	}
	return out, total, nil
}

func (a *API) updateMeInternal(ctx context.Context, s *Session, id uuid.UUID, in ProfileUpdate) (User, error) {
	return a.updateUserInternal(ctx, s, id, UserUpdate{Email: in.Email, FullName: in.FullName})
}

func (a *API) changePasswordInternal(ctx context.Context, s *Session, id uuid.UUID, current, next string) error {
	if current == next {
		return fmt.Errorf("%w: new password cannot be the same as the current one", ErrInvalidInput)
	}
	if err := a.checkPassword(next); err != nil {
		return err
	}
	q, err := s.Handle()
	if err != nil {
		return err
	}
	u, err := newUserRepo(q).byID(ctx, id)
	if err != nil {
		return err
	}
	if ok, _ := a.hasher.Verify(current, u.HashedPassword); !ok {
		return ErrIncorrectPassword
	}
	hash, err := a.hasher.Hash(next)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	at := a.now()
	if err := s.Tx(ctx, func(ctx context.Context, q DBTX) error {
		return newUserRepo(q).setPasswordHash(ctx, id, hash, at)
	}); err != nil {
		return err
	}
	a.log.Info(ctx, "password changed", "user_id", id.String())
	return nil
}

func (a *API) updateUserInternal(ctx context.Context, s *Session, id uuid.UUID, in UserUpdate) (User, error) {
	var email string
	if in.Email != nil {
		e, err := a.checkEmail(*in.Email)
		if err != nil {
			return User{}, err
		}
		email = e
	}
	var hash string
	if in.Password != nil {
		if err := a.checkPassword(*in.Password); err != nil {
			return User{}, err
		}
		h, err := a.hasher.Hash(*in.Password)
		if err != nil {
			return User{}, fmt.Errorf("hash password: %w", err)
		}
		hash = h
	}

	var out userRow
	err := s.Tx(ctx, func(ctx context.Context, q DBTX) error {
		repo := newUserRepo(q)
		u, err := repo.byID(ctx, id)
		if err != nil {
			return err
		}
		if in.Email != nil && email != u.Email {
			// The local resolver finds its user by this address.
			if !a.cfg.AuthRequired && u.Email == a.cfg.DefaultUserEmail {
				return fmt.Errorf("%w: the local user's email cannot be changed", ErrInvalidInput)
			}
			other, err := repo.byEmail(ctx, email)
			switch {
			case err == nil && other.ID != id:
				return ErrEmailTaken
			case err != nil && !errors.Is(err, ErrUserNotFound):
				return err
			}
			u.Email = email
		}
		if in.FullName != nil {
			u.FullName = *in.FullName
		}
		if in.IsActive != nil {
			u.IsActive = *in.IsActive
		}
		if in.IsSuperuser != nil {
			u.IsSuperuser = *in.IsSuperuser
		}
		u.UpdatedAt = a.now()
		if err := repo.update(ctx, u); err != nil {
			return err
		}
		if hash != "" {
			if err := repo.setPasswordHash(ctx, id, hash, u.UpdatedAt); err != nil {
				return err
			}
		}
		out = u
		return nil
	})
	if err != nil {
		return User{}, err
	}
	return out.User, nil
}
