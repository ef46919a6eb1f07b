package domain

import (
	"strings"
	"time"
)

// Role enumerates the application roles an identity can hold.
type Role string

const (
	RoleAdmin Role = "admin"
	RoleHR    Role = "hr"
	RoleStaff Role = "staff"
)

// ParseRole normalises textual input into a supported role, defaulting to staff.
func ParseRole(value string) Role {
	switch Role(strings.ToLower(strings.TrimSpace(value))) {
	case RoleAdmin:
		return RoleAdmin
	case RoleHR:
		return RoleHR
	default:
		return RoleStaff
	}
}

// Profile mirrors the identity's server-side record in the HR data store.
type Profile struct {
	IdentityID     string
	Email          string
	Role           Role
	LinkedRecordID *string
	IsActive       bool
	IsBanned       bool
	// SessionToken is overwritten by every new login; nil when no login holds it.
	SessionToken *string
	UpdatedAt    time.Time
}

// UserRecord is the cached, resolved view of the authenticated identity.
type UserRecord struct {
	IdentityID     string
	Email          string
	Role           Role
	LinkedRecordID *string
	IsActive       bool
	CachedAt       time.Time
}

// FreshAt reports whether the record is still within ttl at the supplied moment.
func (r UserRecord) FreshAt(at time.Time, ttl time.Duration) bool {
	if r.CachedAt.IsZero() {
		return false
	}
	return at.Sub(r.CachedAt) < ttl
}

// RecordFromProfile builds a user record snapshot from a profile read.
func RecordFromProfile(p Profile, at time.Time) UserRecord {
	record := UserRecord{
		IdentityID: p.IdentityID,
		Email:      p.Email,
		Role:       p.Role,
		IsActive:   p.IsActive,
		CachedAt:   at,
	}
	if p.LinkedRecordID != nil {
		linked := *p.LinkedRecordID
		record.LinkedRecordID = &linked
	}
	return record
}

// Identity is the value exposed upward to the UI: the resolved record plus whether it was degraded.
type Identity struct {
	UserRecord
	// Degraded marks a record built from token claims because the profile could not be read.
	Degraded bool
}

// Claims holds the subset of access-token claims the session core consumes.
type Claims struct {
	Subject   string
	Email     string
	Role      Role
	ExpiresAt time.Time
}
