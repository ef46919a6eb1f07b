package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/port"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/config"
)

const profileUpdatedEventType = "hr.profile.updated"

var errMissingIdentity = errors.New("profile event has no identity id")

// ProfileConsumer fans hr.profile.updated messages out to per-identity handlers. It implements
// the sarama consumer group handler and the profile change subscription port.
type ProfileConsumer struct {
	group  sarama.ConsumerGroup
	topic  string
	logger *zap.Logger

	mu       sync.RWMutex
	handlers map[string]map[uint64]func(domain.Profile)
	nextID   uint64
}

var (
	_ port.ProfileSubscriber      = (*ProfileConsumer)(nil)
	_ sarama.ConsumerGroupHandler = (*ProfileConsumer)(nil)
)

// NewConsumerGroup joins the configured consumer group. An empty group id gets a per-process
// id, so every client instance sees every profile change.
func NewConsumerGroup(cfg config.KafkaSettings, logger *zap.Logger) (sarama.ConsumerGroup, error) {
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.V3_5_0_0
	saramaConfig.ClientID = "hrms-session"
	saramaConfig.Consumer.Offsets.Initial = sarama.OffsetNewest
	saramaConfig.Consumer.Return.Errors = true
	saramaConfig.Consumer.Group.Rebalance.GroupStrategies = []sarama.BalanceStrategy{sarama.NewBalanceStrategyRoundRobin()}

	groupID := strings.TrimSpace(cfg.GroupID)
	if groupID == "" {
		groupID = fmt.Sprintf("hrms-session-%d", time.Now().UnixNano())
	}

	group, err := sarama.NewConsumerGroup(cfg.Brokers, groupID, saramaConfig)
	if err != nil {
		return nil, fmt.Errorf("create kafka consumer group: %w", err)
	}

	if logger != nil {
		logger.Info("kafka consumer group joined",
			zap.Strings("brokers", cfg.Brokers),
			zap.String("group_id", groupID),
		)
	}
	return group, nil
}

// NewProfileConsumer constructs a consumer on topic. group may be nil when the consumer is only
// fed through HandleMessage.
func NewProfileConsumer(group sarama.ConsumerGroup, topic string, logger *zap.Logger) *ProfileConsumer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ProfileConsumer{
		group:    group,
		topic:    topic,
		logger:   logger,
		handlers: make(map[string]map[uint64]func(domain.Profile)),
	}
}

// Subscribe registers handler for updates to identityID's profile.
func (c *ProfileConsumer) Subscribe(_ context.Context, identityID string, handler func(domain.Profile)) (port.Subscription, error) {
	identityID = strings.TrimSpace(identityID)
	if identityID == "" {
		return nil, errMissingIdentity
	}
	if handler == nil {
		return nil, fmt.Errorf("profile handler is nil")
	}

	c.mu.Lock()
	c.nextID++
	id := c.nextID
	if c.handlers[identityID] == nil {
		c.handlers[identityID] = make(map[uint64]func(domain.Profile))
	}
	c.handlers[identityID][id] = handler
	c.mu.Unlock()

	return &profileSubscription{consumer: c, identityID: identityID, id: id}, nil
}

type profileSubscription struct {
	consumer   *ProfileConsumer
	identityID string
	id         uint64
	once       sync.Once
}

func (s *profileSubscription) Close() error {
	s.once.Do(func() {
		s.consumer.mu.Lock()
		defer s.consumer.mu.Unlock()
		handlers := s.consumer.handlers[s.identityID]
		delete(handlers, s.id)
		if len(handlers) == 0 {
			delete(s.consumer.handlers, s.identityID)
		}
	})
	return nil
}

// Run consumes until ctx is cancelled, rejoining the group after every rebalance.
func (c *ProfileConsumer) Run(ctx context.Context) error {
	if c.group == nil {
		return fmt.Errorf("consumer group not configured")
	}

	go func() {
		for err := range c.group.Errors() {
			c.logger.Warn("kafka consumer error", zap.Error(err))
		}
	}()

	topics := []string{c.topic}
	for {
		if err := c.group.Consume(ctx, topics, c); err != nil {
			if errors.Is(err, sarama.ErrClosedConsumerGroup) {
				return nil
			}
			c.logger.Error("kafka consume failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
		}
		if ctx.Err() != nil {
			return nil
		}
	}
}

// Close leaves the consumer group.
func (c *ProfileConsumer) Close() error {
	if c.group == nil {
		return nil
	}
	if err := c.group.Close(); err != nil {
		return fmt.Errorf("close kafka consumer group: %w", err)
	}
	return nil
}

func (c *ProfileConsumer) Setup(sarama.ConsumerGroupSession) error { return nil }
func (c *ProfileConsumer) Cleanup(sarama.ConsumerGroupSession) error { return nil }

// ConsumeClaim dispatches every message of the claim and marks it consumed. Malformed
// messages are logged and skipped.
func (c *ProfileConsumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for {
		select {
		case msg, ok := <-claim.Messages():
			if !ok {
				return nil
			}
			if err := c.HandleMessage(session.Context(), msg); err != nil {
				c.logger.Warn("skip profile event",
					zap.String("topic", msg.Topic),
					zap.Int64("offset", msg.Offset),
					zap.Error(err),
				)
			}
			session.MarkMessage(msg, "")
		case <-session.Context().Done():
			return nil
		}
	}
}

type profilePayload struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Role         string    `json:"role"`
	EmployeeID   *string   `json:"employee_id"`
	IsActive     bool      `json:"is_active"`
	IsBanned     bool      `json:"is_banned"`
	SessionToken *string   `json:"session_token"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// HandleMessage decodes an hr.profile.updated envelope and dispatches it.
func (c *ProfileConsumer) HandleMessage(ctx context.Context, msg *sarama.ConsumerMessage) error {
	if msg == nil {
		return fmt.Errorf("message is nil")
	}

	event, err := DecodeProfileUpdated(msg.Value)
	if err != nil {
		return err
	}
	return c.HandleEvent(ctx, event)
}

// DecodeProfileUpdated parses the envelope of a profile change message.
func DecodeProfileUpdated(raw []byte) (domain.ProfileUpdatedEvent, error) {
	var envelope eventEnvelope
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return domain.ProfileUpdatedEvent{}, fmt.Errorf("decode profile event: %w", err)
	}
	if envelope.EventType != "" && envelope.EventType != profileUpdatedEventType {
		return domain.ProfileUpdatedEvent{}, fmt.Errorf("unexpected event type %q", envelope.EventType)
	}

	var payload profilePayload
	if err := json.Unmarshal(envelope.Payload, &payload); err != nil {
		return domain.ProfileUpdatedEvent{}, fmt.Errorf("decode profile payload: %w", err)
	}
	if payload.ID == "" {
		payload.ID = envelope.UserID
	}
	if strings.TrimSpace(payload.ID) == "" {
		return domain.ProfileUpdatedEvent{}, errMissingIdentity
	}

	updatedAt := payload.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = envelope.Timestamp
	}

	return domain.ProfileUpdatedEvent{
		EventID: envelope.EventID,
		Profile: domain.Profile{
			IdentityID:     payload.ID,
			Email:          payload.Email,
			Role:           domain.ParseRole(payload.Role),
			LinkedRecordID: payload.EmployeeID,
			IsActive:       payload.IsActive,
			IsBanned:       payload.IsBanned,
			SessionToken:   payload.SessionToken,
			UpdatedAt:      updatedAt,
		},
		UpdatedAt: updatedAt,
	}, nil
}

// HandleEvent delivers the profile to the handlers subscribed to its identity.
func (c *ProfileConsumer) HandleEvent(_ context.Context, event domain.ProfileUpdatedEvent) error {
	c.mu.RLock()
	registered := c.handlers[event.Profile.IdentityID]
	handlers := make([]func(domain.Profile), 0, len(registered))
	for _, handler := range registered {
		handlers = append(handlers, handler)
	}
	c.mu.RUnlock()

	if len(handlers) == 0 {
		return nil
	}

	c.logger.Debug("profile change received",
		zap.String("event_id", event.EventID),
		zap.String("identity_id", event.Profile.IdentityID),
	)
	for _, handler := range handlers {
		handler(event.Profile)
	}
	return nil
}

// ProfileTopic returns the prefixed profile change topic.
func ProfileTopic(cfg config.KafkaSettings) string {
	topic := cfg.ProfileTopic
	if topic == "" {
		topic = profileUpdatedEventType
	}
	return topicName(cfg.TopicPrefix, topic)
}
