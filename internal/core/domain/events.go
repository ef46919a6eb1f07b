package domain

import "time"

// RevocationSource identifies which producer observed a profile change.
type RevocationSource string

const (
	RevocationSourcePush RevocationSource = "push"
	RevocationSourcePoll RevocationSource = "poll"
)

// RevocationEvent is a profile snapshot queued for the revocation handler.
type RevocationEvent struct {
	Source     RevocationSource
	Profile    Profile
	ObservedAt time.Time
}

// RevocationDecision is the outcome of evaluating a revocation event.
type RevocationDecision string

const (
	RevocationDecisionNone        RevocationDecision = "none"
	RevocationDecisionSuperseded  RevocationDecision = "superseded"
	RevocationDecisionBanned      RevocationDecision = "banned"
	RevocationDecisionDeactivated RevocationDecision = "deactivated"
)

// SessionLifecycleKind enumerates lifecycle transitions published to the message bus.
type SessionLifecycleKind string

const (
	SessionLifecycleSignedIn     SessionLifecycleKind = "signed_in"
	SessionLifecycleSignedOut    SessionLifecycleKind = "signed_out"
	SessionLifecycleForcedLogout SessionLifecycleKind = "forced_logout"
)

// SessionLifecycleEvent captures a transition of the local session.
type SessionLifecycleEvent struct {
	EventID    string
	Kind       SessionLifecycleKind
	IdentityID string
	Reason     LogoutReason
	At         time.Time
	Metadata   map[string]any
}

// ProfileUpdatedEvent represents the payload of hr.profile.updated messages.
type ProfileUpdatedEvent struct {
	EventID   string
	Profile   Profile
	UpdatedAt time.Time
}
