// Package engine wires the conversation engine together and exposes the
// command surface the HTTP layer calls.
package engine

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/agentpool"
	"github.com/omnidesk/conversation-engine/internal/assign"
	"github.com/omnidesk/conversation-engine/internal/bus"
	"github.com/omnidesk/conversation-engine/internal/channel"
	"github.com/omnidesk/conversation-engine/internal/classify"
	"github.com/omnidesk/conversation-engine/internal/escalate"
	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/internal/nats"
	"github.com/omnidesk/conversation-engine/internal/pipeline"
	"github.com/omnidesk/conversation-engine/internal/realtime"
	"github.com/omnidesk/conversation-engine/internal/stats"
	"github.com/omnidesk/conversation-engine/internal/store"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

// Options carries the assembled components. Mirror and Relay are optional.
type Options struct {
	Store      *store.Store
	Pool       *agentpool.Pool
	Registry   *channel.Registry
	Events     *bus.Bus
	Classifier classify.Classifier
	Escalator  *escalate.Policy
	Assigner   *assign.Assigner
	Pipeline   *pipeline.Pipeline
	Stats      *stats.Aggregator
	Mirror     *nats.Mirror
	Relay      *realtime.Relay

	// SubscriberQueueSize sizes the internal bus subscriptions.
	SubscriberQueueSize int

	Logger *logger.Logger
}

// Engine owns the background loops and exposes conversation commands.
type Engine struct {
	opts   Options
	logger *logger.Logger

	cancel  context.CancelFunc
	cancels []func()
}

// New creates an engine from pre-wired components.
func New(opts Options) *Engine {
	if opts.SubscriberQueueSize <= 0 {
		opts.SubscriberQueueSize = 256
	}
	return &Engine{opts: opts, logger: opts.Logger}
}

// Start launches the assignment loop, the stats consumer and the optional
// mirrors. It returns immediately.
func (e *Engine) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel

	go e.opts.Assigner.Run(runCtx)

	statsCh, statsCancel := e.opts.Events.Subscribe("stats", e.opts.SubscriberQueueSize, bus.DropOldest)
	e.cancels = append(e.cancels, statsCancel)
	go e.opts.Stats.Run(runCtx, statsCh)

	if e.opts.Mirror != nil {
		if err := e.opts.Mirror.EnsureStream(ctx); err != nil {
			e.logger.Error("event stream setup failed", zap.Error(err))
		} else {
			mirrorCh, mirrorCancel := e.opts.Events.Subscribe("nats-mirror", e.opts.SubscriberQueueSize, bus.DropOldest)
			e.cancels = append(e.cancels, mirrorCancel)
			go e.opts.Mirror.Run(runCtx, mirrorCh)
		}
	}

	if e.opts.Relay != nil {
		relayCh, relayCancel := e.opts.Events.Subscribe("realtime-relay", e.opts.SubscriberQueueSize, bus.DropOldest)
		e.cancels = append(e.cancels, relayCancel)
		go e.opts.Relay.Run(runCtx, relayCh)
	}

	e.logger.Info("engine started")
}

// Stop drains in-flight work and shuts the loops down.
func (e *Engine) Stop(ctx context.Context) {
	if err := e.opts.Pipeline.Drain(ctx); err != nil {
		e.logger.Warn("pipeline drain incomplete", zap.Error(err))
	}
	for _, cancel := range e.cancels {
		cancel()
	}
	if e.cancel != nil {
		e.cancel()
	}
	e.opts.Events.Close()
	e.logger.Info("engine stopped")
}

// Store exposes the conversation repository to the HTTP layer.
func (e *Engine) Store() *store.Store { return e.opts.Store }

// Pool exposes the agent roster.
func (e *Engine) Pool() *agentpool.Pool { return e.opts.Pool }

// Registry exposes the channel registry.
func (e *Engine) Registry() *channel.Registry { return e.opts.Registry }

// Events exposes the event bus for streaming subscribers.
func (e *Engine) Events() *bus.Bus { return e.opts.Events }

// Pipeline exposes the message pipeline.
func (e *Engine) Pipeline() *pipeline.Pipeline { return e.opts.Pipeline }

// CreateConversation opens a conversation explicitly, outside inbound
// traffic, and schedules assignment.
func (e *Engine) CreateConversation(ctx context.Context, customerID, channelID, subject string) (*model.Conversation, error) {
	ch, err := e.opts.Registry.Get(channelID)
	if err != nil {
		return nil, err
	}

	conv, err := e.opts.Store.Create(ctx, customerID, channelID, ch.Kind, nil)
	if err != nil {
		return nil, err
	}
	if subject != "" {
		conv, err = e.opts.Store.Update(ctx, conv.ID, func(c *model.Conversation) error {
			c.Subject = subject
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	go e.opts.Assigner.Assign(context.Background(), conv.ID)
	return conv, nil
}

// TransitionConversation moves a conversation through its lifecycle. Entering
// a terminal status releases the assigned agent's slot.
func (e *Engine) TransitionConversation(ctx context.Context, conversationID string, status model.ConversationStatus) (*model.Conversation, error) {
	conv, err := e.opts.Store.Transition(ctx, conversationID, status)
	if err != nil {
		return nil, err
	}

	e.opts.Events.Publish(model.Event{
		Type:           model.EventConversationStatusChanged,
		At:             time.Now(),
		ConversationID: conversationID,
		Channel:        conv.Channel,
		Status:         string(status),
	})

	if status.Terminal() {
		e.opts.Assigner.ReleaseFor(conv)
	}
	return conv, nil
}

// EscalateConversation raises a conversation on an operator's request.
func (e *Engine) EscalateConversation(ctx context.Context, conversationID, reason string) (*model.Conversation, error) {
	if reason == "" {
		reason = "manual"
	}
	if _, err := e.opts.Escalator.Escalate(ctx, conversationID, reason); err != nil {
		return nil, err
	}
	return e.opts.Store.Find(ctx, conversationID)
}

// RegisterAgent adds an agent to the pool.
func (e *Engine) RegisterAgent(ctx context.Context, agent model.Agent) error {
	if err := e.opts.Pool.Register(agent); err != nil {
		return err
	}
	e.opts.Events.Publish(model.Event{
		Type:    model.EventAgentStatusChanged,
		At:      time.Now(),
		AgentID: agent.ID,
		Status:  string(agent.Status),
	})
	return nil
}

// SetAgentStatus updates an agent's availability and announces the change.
func (e *Engine) SetAgentStatus(ctx context.Context, agentID string, status model.AgentStatus) (model.Agent, error) {
	agent, err := e.opts.Pool.SetStatus(agentID, status)
	if err != nil {
		return model.Agent{}, err
	}
	e.opts.Events.Publish(model.Event{
		Type:    model.EventAgentStatusChanged,
		At:      time.Now(),
		AgentID: agentID,
		Status:  string(status),
	})
	return agent, nil
}

// GetStats returns the communication rollup for the period.
func (e *Engine) GetStats(ctx context.Context, period time.Duration) model.CommunicationStats {
	return e.opts.Stats.Stats(ctx, period)
}
