package auth

import (
	"context"
)

type ctxKey string

var (
	ctxUserKey    ctxKey = "auth.user"
	ctxSessionKey ctxKey = "auth.session"
)

func fromContext(ctx context.Context) (User, bool) {
	u, ok := ctx.Value(ctxUserKey).(User)
	return u, ok
}

func withUser(ctx context.Context, u User) context.Context {
	return context.WithValue(ctx, ctxUserKey, u)
}

func sessionFromContext(ctx context.Context) (*Session, bool) {
	s, ok := ctx.Value(ctxSessionKey).(*Session)
	return s, ok && s != nil
}

func withSession(ctx context.Context, s *Session) context.Context {
	return context.WithValue(ctx, ctxSessionKey, s)
}
