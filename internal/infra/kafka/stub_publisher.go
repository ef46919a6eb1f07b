package kafka

import (
	"context"

	"go.uber.org/zap"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
)

// StubPublisher logs lifecycle events instead of sending them. Used when no brokers are configured.
type StubPublisher struct {
	logger *zap.Logger
}

var _ port.EventPublisher = (*StubPublisher)(nil)

// NewStubPublisher constructs a logging event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StubPublisher{logger: logger}
}

// PublishSessionLifecycle logs the event.
func (p *StubPublisher) PublishSessionLifecycle(_ context.Context, event domain.SessionLifecycleEvent) error {
	p.logger.Info("stub event published",
		zap.String("event_type", SessionEventType(event.Kind)),
		zap.String("event_id", event.EventID),
		zap.String("identity_id", event.IdentityID),
		zap.String("reason", string(event.Reason)),
		zap.Time("timestamp", event.At.UTC()),
		zap.Any("metadata", event.Metadata),
	)
	return nil
}
