package port

import (
	"context"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
)

// ProfileRepository reads the identity's own profile record.
type ProfileRepository interface {
	GetProfile(ctx context.Context, identityID string) (*domain.Profile, error)
}

// SessionTokenWriter performs the privileged write of the current session token field.
// A nil token clears the field.
type SessionTokenWriter interface {
	SetSessionToken(ctx context.Context, identityID string, token *string) error
}

// Subscription is a live change-notification feed.
type Subscription interface {
	Close() error
}

// ProfileSubscriber delivers update events for a single identity's profile record.
type ProfileSubscriber interface {
	Subscribe(ctx context.Context, identityID string, handler func(domain.Profile)) (Subscription, error)
}
