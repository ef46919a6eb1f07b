package domain

import "time"

// Session is the opaque token pair issued by the identity provider.
type Session struct {
	AccessToken  string
	RefreshToken string
	TokenType    string
	ExpiresAt    time.Time
}

// Valid reports whether the session carries an access token.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != ""
}

// Expired reports whether the access token is past its expiry at the supplied moment.
func (s Session) Expired(at time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return !s.ExpiresAt.After(at)
}

// ExpiresWithin reports whether the access token expires within d of the supplied moment.
func (s Session) ExpiresWithin(d time.Duration, at time.Time) bool {
	if s.ExpiresAt.IsZero() {
		return false
	}
	return s.ExpiresAt.Sub(at) < d
}

// SessionHealth tracks sign-in failures and recovery across restarts.
type SessionHealth struct {
	FailedAttempts int       `json:"failed_attempts"`
	LastAttempt    time.Time `json:"last_attempt"`
	LastRecovery   time.Time `json:"last_recovery"`
}

// LogoutReason describes why a session lifecycle ended.
type LogoutReason string

const (
	LogoutReasonSignOut     LogoutReason = "sign_out"
	LogoutReasonSuperseded  LogoutReason = "superseded"
	LogoutReasonBanned      LogoutReason = "banned"
	LogoutReasonInactivity  LogoutReason = "inactivity"
	LogoutReasonSessionLost LogoutReason = "session_lost"
	LogoutReasonReset       LogoutReason = "reset"
)
