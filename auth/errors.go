package auth

import "errors"

// Sentinel errors returned by the API. Match them with errors.Is; they are
// frequently wrapped with additional context.
var (
	// ErrUnauthenticated: auth is required and no bearer token was supplied.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrInvalidCredentials covers malformed, expired and badly signed tokens
	// as well as a wrong login password. Which check failed is not exposed.
	ErrInvalidCredentials = errors.New("could not validate credentials")
	ErrUserNotFound       = errors.New("user not found")
	ErrInactiveUser       = errors.New("inactive user")
	ErrForbidden          = errors.New("the user doesn't have enough privileges")
	// ErrBusy: the database lock was not released within the busy timeout.
	ErrBusy = errors.New("database is busy")
	// ErrStorageUnavailable: the database directory or file could not be
	// created or opened. Fatal at startup.
	ErrStorageUnavailable = errors.New("storage unavailable")

	ErrEmailTaken   = errors.New("email already registered")
	ErrInvalidInput = errors.New("invalid input")
	// ErrIncorrectPassword: the current password given to ChangePassword
	// does not match.
	ErrIncorrectPassword = errors.New("incorrect password")
)
