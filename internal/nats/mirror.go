package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

const (
	// StreamName is the name of the engine events stream.
	StreamName = "ENGINE_EVENTS"

	// SubjectPrefix is the prefix for all engine subjects.
	SubjectPrefix = "engine"
)

// Mirror republishes engine events to JetStream so external consumers get
// a durable feed. Delivery is best-effort: a failed publish is logged and
// skipped, never retried against a live event stream.
type Mirror struct {
	client *Client
	logger *logger.Logger
}

// NewMirror creates a mirror over the given client.
func NewMirror(client *Client) *Mirror {
	return &Mirror{client: client, logger: client.logger}
}

// EnsureStream ensures the events stream exists.
func (m *Mirror) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Conversation engine domain events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// EventSubject returns the subject for one event.
func EventSubject(ev model.Event) string {
	kind := string(ev.Channel)
	if kind == "" {
		kind = "internal"
	}
	convID := ev.ConversationID
	if convID == "" {
		convID = "global"
	}
	return fmt.Sprintf("%s.%s.%s.%s", SubjectPrefix, kind, convID, ev.Type)
}

// Run consumes events until the channel closes or ctx is canceled.
func (m *Mirror) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			m.publish(ctx, ev)
		}
	}
}

func (m *Mirror) publish(ctx context.Context, ev model.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		m.logger.Warn("event marshal failed", zap.String("event_id", ev.ID), zap.Error(err))
		return
	}

	pubCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if _, err := m.client.JetStream().Publish(pubCtx, EventSubject(ev), data); err != nil {
		m.logger.Warn("event mirror publish failed",
			zap.String("event_id", ev.ID),
			zap.String("type", string(ev.Type)),
			zap.Error(err),
		)
	}
}
