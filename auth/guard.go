package auth

// RequirePrivileged returns u unchanged when it is a superuser and
// ErrForbidden otherwise.
func RequirePrivileged(u User) (User, error) {
	if !u.IsSuperuser {
		return User{}, ErrForbidden
	}
	return u, nil
}
