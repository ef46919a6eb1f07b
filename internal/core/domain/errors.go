package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies identity provider failures so callers never parse message text.
type ErrorKind int

const (
	// ErrorKindUnknown is the zero value for unclassified failures.
	ErrorKindUnknown ErrorKind = iota
	// ErrorKindTransient covers timeouts, aborted calls and network faults. Session state is kept.
	ErrorKindTransient
	// ErrorKindAuthoritative covers invalid, expired or missing refresh tokens. Local state is cleared.
	ErrorKindAuthoritative
	// ErrorKindCredentials covers rejected email/password pairs on sign-in.
	ErrorKindCredentials
	// ErrorKindBanned marks an identity that has been banned server-side.
	ErrorKindBanned
)

// String returns the label used in logs and metrics.
func (k ErrorKind) String() string {
	switch k {
	case ErrorKindTransient:
		return "transient"
	case ErrorKindAuthoritative:
		return "authoritative"
	case ErrorKindCredentials:
		return "credentials"
	case ErrorKindBanned:
		return "banned"
	default:
		return "unknown"
	}
}

// AuthError carries the classified kind of a provider failure.
type AuthError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// NewAuthError wraps err with a kind and the failing operation.
func NewAuthError(kind ErrorKind, op string, err error) *AuthError {
	return &AuthError{Kind: kind, Op: op, Err: err}
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s failure", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *AuthError) Unwrap() error { return e.Err }

// KindOf extracts the error kind from anywhere in err's chain.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ErrorKindUnknown
	}
	var authErr *AuthError
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return ErrorKindUnknown
}

// IsTransient reports whether err must leave session state untouched.
func IsTransient(err error) bool {
	return KindOf(err) == ErrorKindTransient
}

// IsAuthoritative reports whether err proves the local session is no longer usable.
func IsAuthoritative(err error) bool {
	return KindOf(err) == ErrorKindAuthoritative
}
