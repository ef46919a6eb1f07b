package kafka

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"go.uber.org/zap/zaptest"

	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/core/domain"
	"github.com/Anas43xq/EmployeeManagementSystem-sub000/internal/infra/config"
)

type fakeAsyncProducer struct {
	input  chan *sarama.ProducerMessage
	errors chan *sarama.ProducerError
}

func newFakeAsyncProducer() *fakeAsyncProducer {
	return &fakeAsyncProducer{
		input:  make(chan *sarama.ProducerMessage, 1),
		errors: make(chan *sarama.ProducerError, 1),
	}
}

func (f *fakeAsyncProducer) AsyncClose() {}

func (f *fakeAsyncProducer) Close() error { return nil }

func (f *fakeAsyncProducer) Input() chan<- *sarama.ProducerMessage { return f.input }

func (f *fakeAsyncProducer) Successes() <-chan *sarama.ProducerMessage { return nil }

func (f *fakeAsyncProducer) Errors() <-chan *sarama.ProducerError { return f.errors }

func (f *fakeAsyncProducer) IsTransactional() bool { return false }

func (f *fakeAsyncProducer) BeginTxn() error { return nil }

func (f *fakeAsyncProducer) CommitTxn() error { return nil }

func (f *fakeAsyncProducer) AbortTxn() error { return nil }

func (f *fakeAsyncProducer) AddOffsetsToTxn(offsets map[string][]*sarama.PartitionOffsetMetadata, groupID string) error {
	return nil
}

func (f *fakeAsyncProducer) AddMessageToTxn(msg *sarama.ConsumerMessage, groupID string, metadata *string) error {
	return nil
}

func (f *fakeAsyncProducer) TxnStatus() sarama.ProducerTxnStatusFlag {
	return sarama.ProducerTxnStatusFlag(0)
}

func newTestPublisher(t *testing.T) (*EventPublisher, *fakeAsyncProducer) {
	t.Helper()
	asyncProducer := newFakeAsyncProducer()
	producer := &Producer{
		producer: asyncProducer,
		logger:   zaptest.NewLogger(t),
		cfg: config.KafkaSettings{
			TopicPrefix: "hrms",
		},
		errChan: make(chan error, 1),
		done:    make(chan struct{}),
	}

	publisher := NewEventPublisher(producer, config.AppSettings{
		Name: "hrms-session",
		Env:  "test",
	}, zaptest.NewLogger(t))
	return publisher, asyncProducer
}

func TestPublishSessionLifecycle(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)

	at := time.Date(2025, 10, 31, 12, 0, 0, 0, time.UTC)
	event := domain.SessionLifecycleEvent{
		EventID:    "event-123",
		Kind:       domain.SessionLifecycleForcedLogout,
		IdentityID: "user-789",
		Reason:     domain.LogoutReasonSuperseded,
		At:         at,
		Metadata:   map[string]any{"epoch": 4},
	}

	if err := publisher.PublishSessionLifecycle(context.Background(), event); err != nil {
		t.Fatalf("PublishSessionLifecycle returned error: %v", err)
	}

	select {
	case msg := <-asyncProducer.input:
		if msg.Topic != "hrms.session.forced_logout" {
			t.Fatalf("unexpected topic: %s", msg.Topic)
		}

		key, err := msg.Key.Encode()
		if err != nil || string(key) != "user-789" {
			t.Fatalf("expected identity partition key, got %q (%v)", key, err)
		}

		bytes, err := msg.Value.Encode()
		if err != nil {
			t.Fatalf("Value.Encode returned error: %v", err)
		}

		var envelope map[string]any
		if err := json.Unmarshal(bytes, &envelope); err != nil {
			t.Fatalf("failed to unmarshal envelope: %v", err)
		}

		if got := envelope["event_id"]; got != "event-123" {
			t.Fatalf("unexpected event_id: %v", got)
		}
		if got := envelope["event_type"]; got != "session.forced_logout" {
			t.Fatalf("unexpected event_type: %v", got)
		}
		if got := envelope["user_id"]; got != event.IdentityID {
			t.Fatalf("unexpected user_id: %v", got)
		}
		if got := envelope["timestamp"]; got != at.Format(time.RFC3339Nano) {
			t.Fatalf("unexpected timestamp: %v", got)
		}

		payload, ok := envelope["payload"].(map[string]any)
		if !ok {
			t.Fatalf("payload not a map: %T", envelope["payload"])
		}
		if got := payload["reason"]; got != "superseded" {
			t.Fatalf("unexpected reason: %v", got)
		}
		if got := payload["kind"]; got != "forced_logout" {
			t.Fatalf("unexpected kind: %v", got)
		}

		metadata, ok := envelope["metadata"].(map[string]any)
		if !ok {
			t.Fatalf("envelope metadata not a map: %T", envelope["metadata"])
		}
		if metadata["service"] != "hrms-session" || metadata["environment"] != "test" {
			t.Fatalf("unexpected envelope metadata: %v", metadata)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message on async producer input channel")
	}
}

func TestPublishSessionLifecycleHonoursContext(t *testing.T) {
	publisher, asyncProducer := newTestPublisher(t)
	asyncProducer.input <- &sarama.ProducerMessage{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.PublishSessionLifecycle(ctx, domain.SessionLifecycleEvent{Kind: domain.SessionLifecycleSignedIn})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestTopicName(t *testing.T) {
	cases := map[string]struct {
		prefix string
		name   string
		want   string
	}{
		"prefixed":       {prefix: "hrms", name: "session.signed_in", want: "hrms.session.signed_in"},
		"already":        {prefix: "hrms", name: "hrms.session.signed_in", want: "hrms.session.signed_in"},
		"without prefix": {name: "hr.profile.updated", want: "hr.profile.updated"},
	}
	for name, tc := range cases {
		if got := topicName(tc.prefix, tc.name); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", name, tc.want, got)
		}
	}

	if got := ProfileTopic(config.KafkaSettings{TopicPrefix: "hrms"}); got != "hrms.hr.profile.updated" {
		t.Fatalf("unexpected profile topic %s", got)
	}
}
