package usecase

import (
	"time"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
)

// RequestCacheMetrics captures telemetry hooks for the request cache, labelled by resource.
type RequestCacheMetrics interface {
	IncCacheHit(resource string)
	IncCacheMiss(resource string)
	IncFetch(resource string)
	IncFetchError(resource string)
}

// TokenMetrics observes token refresh attempts.
type TokenMetrics interface {
	IncRefresh(outcome string)
	ObserveRefreshDuration(duration time.Duration)
}

// SessionMetrics observes the session lifecycle.
type SessionMetrics interface {
	IncSignIn(outcome string)
	IncForcedLogout(reason domain.LogoutReason)
	IncRevocationEvent(source domain.RevocationSource, decision domain.RevocationDecision)
	SetSignedIn(signedIn bool)
}
