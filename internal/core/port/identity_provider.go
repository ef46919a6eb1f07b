package port

import (
	"context"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
)

// IdentityProvider is the remote authentication service. Implementations must return
// *domain.AuthError for every failure so callers can switch on domain.KindOf.
type IdentityProvider interface {
	// SignIn exchanges credentials for a new session.
	SignIn(ctx context.Context, email, password string) (*domain.Session, error)
	// GetSession returns the locally held session, or nil when there is none.
	GetSession(ctx context.Context) (*domain.Session, error)
	// RefreshSession rotates the session using its refresh token.
	RefreshSession(ctx context.Context) (*domain.Session, error)
	// SignOut terminates the session remotely and discards the local token blob.
	SignOut(ctx context.Context) error
	// Claims reads the claims embedded in an access token without verifying it.
	Claims(accessToken string) (*domain.Claims, error)
}
