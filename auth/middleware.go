package auth

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
)

func (a *API) sessionMiddlewareInternal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, err := a.openSessionInternal(r.Context())
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		defer s.Close()
		next.ServeHTTP(w, r.WithContext(withSession(r.Context(), s)))
	})
}

func (a *API) middlewareInternal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s, ok := sessionFromContext(r.Context())
		if !ok {
			a.log.Error(r.Context(), "auth middleware used without a session")
			a.writeError(w, r, errors.New("no session in request context"))
			return
		}
		user, err := a.resolver.Resolve(r.Context(), s, BearerToken(r))
		if err != nil {
			a.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(withUser(r.Context(), user)))
	})
}

func (a *API) requireSuperuserInternal(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		u, ok := fromContext(r.Context())
		if !ok {
			a.writeError(w, r, ErrUnauthenticated)
			return
		}
		if _, err := RequirePrivileged(u); err != nil {
			a.writeError(w, r, err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// BearerToken returns the token of an "Authorization: Bearer <token>"
// header, or "" when the header is missing or uses another scheme.
func BearerToken(r *http.Request) string {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, tok, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "bearer") {
		return ""
	}
	return strings.TrimSpace(tok)
}

// StatusFor maps an error from this package to an HTTP status and the
// client-facing detail message. Unknown errors are 500 with a generic detail.
func StatusFor(err error) (int, string) {
	switch {
	case errors.Is(err, ErrUnauthenticated):
		return http.StatusUnauthorized, "Not authenticated"
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusForbidden, "Could not validate credentials"
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden, "The user doesn't have enough privileges"
	case errors.Is(err, ErrUserNotFound):
		return http.StatusNotFound, "User not found"
	case errors.Is(err, ErrInactiveUser):
		return http.StatusBadRequest, "Inactive user"
	case errors.Is(err, ErrIncorrectPassword):
		return http.StatusBadRequest, "Incorrect password"
	case errors.Is(err, ErrEmailTaken):
		return http.StatusConflict, "The user with this email already exists in the system"
	case errors.Is(err, ErrInvalidInput):
		return http.StatusUnprocessableEntity, strings.TrimPrefix(err.Error(), ErrInvalidInput.Error()+": ")
	case errors.Is(err, ErrBusy):
		return http.StatusServiceUnavailable, "Database is busy, try again"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// WriteError answers with StatusFor(err) as {"detail": "..."}. A 401 carries
// WWW-Authenticate: Bearer.
func WriteError(w http.ResponseWriter, err error) {
	status, detail := StatusFor(err)
	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

func (a *API) writeError(w http.ResponseWriter, r *http.Request, err error) {
	if status, _ := StatusFor(err); status >= http.StatusInternalServerError {
		a.log.Error(r.Context(), "request failed", "path", r.URL.Path, "error", err)
	}
	WriteError(w, err)
}
