package usecase

import "errors"

var (
	// ErrBanned indicates the identity has been banned; all local state must be cleared.
	ErrBanned = errors.New("identity is banned")
	// ErrLockedOut signals repeated sign-in failures, distinct from a single bad password.
	ErrLockedOut = errors.New("too many failed sign-in attempts")
	// ErrInvalidCredentials indicates the provider rejected the email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNoSession indicates there is no usable session.
	ErrNoSession = errors.New("no active session")
	// ErrSuperseded is returned when a newer lifecycle replaced the one an operation started in.
	ErrSuperseded = errors.New("session lifecycle superseded")
	// ErrIdentityRequired indicates the identity identifier is missing.
	ErrIdentityRequired = errors.New("identity id is required")
	// ErrCredentialsRequired indicates an empty email or password.
	ErrCredentialsRequired = errors.New("email and password are required")
	// ErrCacheTypeMismatch indicates a cached value does not have the requested type.
	ErrCacheTypeMismatch = errors.New("cached value has unexpected type")
)
