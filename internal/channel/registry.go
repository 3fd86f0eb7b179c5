package channel

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/bus"
	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

// Registry holds one channel record and adapter per channel id. It is the
// leaf dependency of message traffic; shared state is mutex-guarded.
type Registry struct {
	mu       sync.RWMutex
	channels map[string]*model.Channel
	adapters map[string]Adapter

	events *bus.Bus
	logger *logger.Logger
	now    func() time.Time
}

// NewRegistry creates an empty registry. events may be nil.
func NewRegistry(events *bus.Bus, log *logger.Logger) *Registry {
	return &Registry{
		channels: make(map[string]*model.Channel),
		adapters: make(map[string]Adapter),
		events:   events,
		logger:   log,
		now:      time.Now,
	}
}

// Register validates and stores a channel with its adapter.
func (r *Registry) Register(ch model.Channel, adapter Adapter) error {
	if err := validate(ch); err != nil {
		return err
	}
	if adapter == nil {
		return &InvalidChannelConfigError{ChannelID: ch.ID, Reason: "adapter is required"}
	}

	if ch.IntegrationStatus == "" {
		ch.IntegrationStatus = model.IntegrationConnected
	}

	r.mu.Lock()
	c := ch
	r.channels[ch.ID] = &c
	r.adapters[ch.ID] = adapter
	r.mu.Unlock()

	r.logger.Info("channel registered",
		zap.String("channel_id", ch.ID),
		zap.String("kind", string(ch.Kind)),
	)
	return nil
}

func validate(ch model.Channel) error {
	if ch.ID == "" {
		return &InvalidChannelConfigError{ChannelID: ch.ID, Reason: "id is required"}
	}
	if !model.ValidChannelKind(ch.Kind) {
		return &InvalidChannelConfigError{ChannelID: ch.ID, Reason: "unknown channel kind " + string(ch.Kind)}
	}
	switch ch.Kind {
	case model.ChannelWhatsApp, model.ChannelSMS:
		if ch.Token == "" {
			return &InvalidChannelConfigError{ChannelID: ch.ID, Reason: string(ch.Kind) + " requires a token"}
		}
		if ch.WebhookURL == "" {
			return &InvalidChannelConfigError{ChannelID: ch.ID, Reason: string(ch.Kind) + " requires a webhook URL"}
		}
	case model.ChannelSocial, model.ChannelVoice:
		if ch.Token == "" {
			return &InvalidChannelConfigError{ChannelID: ch.ID, Reason: string(ch.Kind) + " requires a token"}
		}
	}
	return nil
}

// AdapterFor returns the adapter for a channel id.
func (r *Registry) AdapterFor(channelID string) (Adapter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ch, ok := r.channels[channelID]
	if !ok {
		return nil, ErrChannelNotFound
	}
	if !ch.Enabled {
		return nil, ErrChannelDisabled
	}
	return r.adapters[channelID], nil
}

// Get returns a snapshot of one channel.
func (r *Registry) Get(channelID string) (model.Channel, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[channelID]
	if !ok {
		return model.Channel{}, ErrChannelNotFound
	}
	return *ch, nil
}

// List returns snapshots of all channels.
func (r *Registry) List() []model.Channel {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]model.Channel, 0, len(r.channels))
	for _, ch := range r.channels {
		out = append(out, *ch)
	}
	return out
}

// Automation returns the automation config for a channel, if enabled.
func (r *Registry) Automation(channelID string) (model.AutomationConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ch, ok := r.channels[channelID]
	if !ok || !ch.Enabled {
		return model.AutomationConfig{}, false
	}
	return ch.Automation, true
}

// RecordSend updates integration status and rolling metrics after a
// dispatch attempt, and publishes a metrics update event.
func (r *Registry) RecordSend(channelID string, ok bool) {
	r.mu.Lock()
	ch, found := r.channels[channelID]
	if !found {
		r.mu.Unlock()
		return
	}
	if ok {
		ch.Metrics.Sent++
		ch.IntegrationStatus = model.IntegrationConnected
	} else {
		ch.IntegrationStatus = model.IntegrationError
	}
	r.mu.Unlock()

	r.publishMetrics(channelID)
}

// RecordReceived bumps the inbound counter for a channel.
func (r *Registry) RecordReceived(channelID string) {
	r.mu.Lock()
	ch, found := r.channels[channelID]
	if !found {
		r.mu.Unlock()
		return
	}
	ch.Metrics.Received++
	r.mu.Unlock()

	r.publishMetrics(channelID)
}

// Reconnect is the explicit procedure that moves a channel out of the
// error or disconnected integration state.
func (r *Registry) Reconnect(ctx context.Context, channelID string) error {
	r.mu.Lock()
	ch, ok := r.channels[channelID]
	if !ok {
		r.mu.Unlock()
		return ErrChannelNotFound
	}
	ch.IntegrationStatus = model.IntegrationConnected
	r.mu.Unlock()

	r.logger.Info("channel reconnected", zap.String("channel_id", channelID))
	r.publishMetrics(channelID)
	return nil
}

func (r *Registry) publishMetrics(channelID string) {
	if r.events == nil {
		return
	}
	r.mu.RLock()
	ch, ok := r.channels[channelID]
	var kind model.ChannelKind
	if ok {
		kind = ch.Kind
	}
	r.mu.RUnlock()
	if !ok {
		return
	}
	r.events.Publish(model.Event{
		Type:      model.EventMetricsUpdated,
		At:        r.now(),
		ChannelID: channelID,
		Channel:   kind,
	})
}
