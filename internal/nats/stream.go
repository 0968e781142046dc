package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/store"
	"github.com/omadligroup/ai-agent-api/pkg/metrics"
)

const (
	// StreamName is the name of the analytics events stream.
	StreamName = "ANALYTICS"

	// SubjectPrefix is the prefix for all analytics subjects.
	SubjectPrefix = "analytics"

	// ConsumerName is the durable consumer that persists events.
	ConsumerName = "analytics-writer"
)

// StreamManager handles JetStream stream operations for analytics
// events.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the analytics stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      90 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Product analytics events awaiting persistence",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// EventSubject returns the subject for an event type.
func EventSubject(eventType model.EventType) string {
	return fmt.Sprintf("%s.%s", SubjectPrefix, eventType)
}

// PublishEvent publishes an analytics event to JetStream.
func (m *StreamManager) PublishEvent(ctx context.Context, event *model.AnalyticsEvent) (uint64, error) {
	data, err := json.Marshal(event)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event: %w", err)
	}

	ack, err := m.client.JetStream().Publish(ctx, EventSubject(event.EventType), data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish event: %w", err)
	}
	metrics.AnalyticsEventsPublished.WithLabelValues(string(event.EventType)).Inc()
	return ack.Sequence, nil
}

// activityColumnFor maps an event type to the daily rollup counter it
// increments, or "" when the event has no rollup.
func activityColumnFor(t model.EventType) string {
	switch t {
	case model.EventUserLogin:
		return "login_count"
	case model.EventChatMessage:
		return "chat_messages_sent"
	case model.EventFileUpload:
		return "files_uploaded"
	case model.EventFileDownload:
		return "files_downloaded"
	case model.EventPageView:
		return "pages_visited"
	case model.EventAPICall:
		return "api_calls_made"
	}
	return ""
}

// RunConsumer consumes analytics events and persists them to the
// database, rolling up per-day user activity counters. It blocks until
// the context is cancelled.
func (m *StreamManager) RunConsumer(ctx context.Context, db *store.Database) error {
	js := m.client.JetStream()

	consumer, err := js.CreateOrUpdateConsumer(ctx, StreamName, jetstream.ConsumerConfig{
		Durable:       ConsumerName,
		FilterSubject: fmt.Sprintf("%s.>", SubjectPrefix),
		AckPolicy:     jetstream.AckExplicitPolicy,
		DeliverPolicy: jetstream.DeliverAllPolicy,
		MaxDeliver:    5,
		AckWait:       30 * time.Second,
	})
	if err != nil {
		return fmt.Errorf("failed to create consumer: %w", err)
	}

	cc, err := consumer.Consume(func(msg jetstream.Msg) {
		var event model.AnalyticsEvent
		if err := json.Unmarshal(msg.Data(), &event); err != nil {
			m.client.logger.Warn("dropping malformed analytics event", zap.Error(err))
			msg.Term()
			return
		}

		if err := db.InsertEvent(&event); err != nil {
			m.client.logger.Error("failed to persist analytics event",
				zap.String("event_id", event.ID), zap.Error(err))
			metrics.AnalyticsEventsConsumed.WithLabelValues(string(event.EventType), "error").Inc()
			msg.Nak()
			return
		}

		if event.UserID != nil {
			if column := activityColumnFor(event.EventType); column != "" {
				date := event.CreatedAt.UTC().Format("2006-01-02")
				if err := db.BumpUserActivity(*event.UserID, date, column, 1); err != nil {
					m.client.logger.Warn("failed to roll up user activity",
						zap.String("user_id", *event.UserID), zap.Error(err))
				}
			}
		}

		metrics.AnalyticsEventsConsumed.WithLabelValues(string(event.EventType), "ok").Inc()
		msg.Ack()
	})
	if err != nil {
		return fmt.Errorf("failed to start consumer: %w", err)
	}

	<-ctx.Done()
	cc.Stop()
	return nil
}
