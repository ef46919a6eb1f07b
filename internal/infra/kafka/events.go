package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher publishes session lifecycle events to Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

var _ port.EventPublisher = (*EventPublisher)(nil)

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	UserID    string           `json:"user_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   json.RawMessage  `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

type sessionLifecyclePayload struct {
	IdentityID string         `json:"identity_id"`
	Kind       string         `json:"kind"`
	Reason     string         `json:"reason,omitempty"`
	At         time.Time      `json:"at"`
	Metadata   map[string]any `json:"metadata,omitempty"`
}

// SessionEventType returns the event type for a lifecycle kind, e.g. session.forced_logout.
func SessionEventType(kind domain.SessionLifecycleKind) string {
	return "session." + string(kind)
}

// PublishSessionLifecycle publishes a session.<kind> event keyed by identity.
func (p *EventPublisher) PublishSessionLifecycle(ctx context.Context, event domain.SessionLifecycleEvent) error {
	payload := sessionLifecyclePayload{
		IdentityID: event.IdentityID,
		Kind:       string(event.Kind),
		Reason:     string(event.Reason),
		At:         event.At.UTC(),
		Metadata:   event.Metadata,
	}
	return p.publish(ctx, event.EventID, SessionEventType(event.Kind), event.IdentityID, event.At, payload)
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	if eventID == "" {
		eventID = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		metadata["trace_id"] = sc.TraceID().String()
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}

	bytes, err := json.Marshal(eventEnvelope{
		EventID:   eventID,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   body,
		Metadata:  metadata,
	})
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}
	if userID != "" {
		message.Key = sarama.StringEncoder(userID)
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
