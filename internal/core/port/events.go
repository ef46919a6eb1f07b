package port

import (
	"context"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
)

// EventPublisher publishes session lifecycle events to the message bus.
type EventPublisher interface {
	PublishSessionLifecycle(ctx context.Context, event domain.SessionLifecycleEvent) error
}
