// Package escalate decides when a conversation needs human attention and
// performs the hand-off bookkeeping.
package escalate

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/bus"
	"github.com/omnidesk/conversation-engine/internal/classify"
	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/internal/store"
	"github.com/omnidesk/conversation-engine/pkg/logger"
	"github.com/omnidesk/conversation-engine/pkg/metrics"
)

// ErrTerminalConversation is returned when escalating a resolved or closed
// conversation.
var ErrTerminalConversation = errors.New("conversation is terminal")

// Escalation reasons.
const (
	ReasonNegativeSentiment  = "negative_sentiment"
	ReasonComplaintIntent    = "complaint_intent"
	ReasonCancellationIntent = "cancellation_intent"
	ReasonNoAgentAvailable   = "no_agent_available"
	ReasonSendFailures       = "send_failures"
)

// Config holds the escalation thresholds.
type Config struct {
	// NegativeIntensityThreshold triggers escalation when negative
	// sentiment exceeds it.
	NegativeIntensityThreshold float64

	// Cooldown suppresses repeat escalations for the same reason.
	Cooldown time.Duration

	// SendFailureThreshold is the number of failed sends on one
	// conversation before escalating.
	SendFailureThreshold int
}

// Policy evaluates classification results and operational signals and
// escalates conversations. Escalation is idempotent per reason within the
// cooldown window.
type Policy struct {
	store  *store.Store
	events *bus.Bus
	cfg    Config
	logger *logger.Logger
	now    func() time.Time

	mu           sync.Mutex
	recent       map[string]map[string]time.Time // conversation id -> reason -> escalated at
	sendFailures map[string]int
}

// New creates an escalation policy.
func New(st *store.Store, events *bus.Bus, cfg Config, log *logger.Logger) *Policy {
	if cfg.NegativeIntensityThreshold == 0 {
		cfg.NegativeIntensityThreshold = 0.7
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 5 * time.Minute
	}
	if cfg.SendFailureThreshold == 0 {
		cfg.SendFailureThreshold = 3
	}
	return &Policy{
		store:        st,
		events:       events,
		cfg:          cfg,
		logger:       log,
		now:          time.Now,
		recent:       make(map[string]map[string]time.Time),
		sendFailures: make(map[string]int),
	}
}

// SetNow overrides the clock. Tests only.
func (p *Policy) SetNow(now func() time.Time) {
	p.now = now
}

// Evaluate applies the classification rules and escalates when they fire.
// It reports whether an escalation happened.
func (p *Policy) Evaluate(ctx context.Context, conversationID string, cls classify.Classification) bool {
	if cls.Sentiment.Polarity == classify.PolarityNegative &&
		cls.Sentiment.Intensity > p.cfg.NegativeIntensityThreshold {
		escalated, _ := p.Escalate(ctx, conversationID, ReasonNegativeSentiment)
		return escalated
	}

	switch cls.Intent.Category {
	case classify.IntentComplaint:
		escalated, _ := p.Escalate(ctx, conversationID, ReasonComplaintIntent)
		return escalated
	case classify.IntentCancellation:
		escalated, _ := p.Escalate(ctx, conversationID, ReasonCancellationIntent)
		return escalated
	}
	return false
}

// RecordSendFailure counts a failed delivery; repeated failures on the same
// conversation escalate.
func (p *Policy) RecordSendFailure(ctx context.Context, conversationID string) {
	p.mu.Lock()
	p.sendFailures[conversationID]++
	count := p.sendFailures[conversationID]
	p.mu.Unlock()

	if count >= p.cfg.SendFailureThreshold {
		if escalated, _ := p.Escalate(ctx, conversationID, ReasonSendFailures); escalated {
			p.mu.Lock()
			p.sendFailures[conversationID] = 0
			p.mu.Unlock()
		}
	}
}

// Escalate raises the conversation: status escalated, priority up one level
// (capped at urgent), a reason tag, and an Escalated event. Re-triggering
// with the same reason inside the cooldown window is a no-op.
func (p *Policy) Escalate(ctx context.Context, conversationID, reason string) (bool, error) {
	p.mu.Lock()
	reasons, ok := p.recent[conversationID]
	if !ok {
		reasons = make(map[string]time.Time)
		p.recent[conversationID] = reasons
	}
	if at, seen := reasons[reason]; seen && p.now().Sub(at) < p.cfg.Cooldown {
		p.mu.Unlock()
		return false, nil
	}
	reasons[reason] = p.now()
	p.mu.Unlock()

	conv, err := p.store.Find(ctx, conversationID)
	if err != nil {
		return false, err
	}
	if conv.Status.Terminal() {
		return false, fmt.Errorf("cannot escalate %s conversation: %w", conv.Status, ErrTerminalConversation)
	}

	if conv.Status != model.ConversationEscalated {
		if _, err := p.store.Transition(ctx, conversationID, model.ConversationEscalated); err != nil {
			return false, err
		}
	}

	tag := "escalated:" + reason
	conv, err = p.store.Update(ctx, conversationID, func(c *model.Conversation) error {
		c.Priority = c.Priority.Raise()
		if !c.HasTag(tag) {
			c.Tags = append(c.Tags, tag)
		}
		return nil
	})
	if err != nil {
		return false, err
	}

	metrics.EscalationsTotal.WithLabelValues(reason).Inc()
	p.logger.Warn("conversation escalated",
		zap.String("conversation_id", conversationID),
		zap.String("reason", reason),
		zap.String("priority", string(conv.Priority)),
	)

	p.events.Publish(model.Event{
		Type:           model.EventEscalated,
		At:             p.now(),
		ConversationID: conversationID,
		Channel:        conv.Channel,
		Reason:         reason,
	})
	p.events.Publish(model.Event{
		Type:           model.EventConversationStatusChanged,
		At:             p.now(),
		ConversationID: conversationID,
		Channel:        conv.Channel,
		Status:         string(model.ConversationEscalated),
	})

	return true, nil
}
