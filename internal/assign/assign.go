// Package assign picks agents for unassigned conversations and retries
// until one becomes available.
package assign

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/agentpool"
	"github.com/omnidesk/conversation-engine/internal/bus"
	"github.com/omnidesk/conversation-engine/internal/escalate"
	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/internal/store"
	"github.com/omnidesk/conversation-engine/pkg/logger"
	"github.com/omnidesk/conversation-engine/pkg/metrics"
)

// Config holds assignment timing.
type Config struct {
	// RetryInterval is how often the pending queue is re-evaluated in the
	// absence of agent status changes.
	RetryInterval time.Duration

	// WaitThreshold is how long a conversation may wait unassigned before
	// it is escalated with reason no_agent_available.
	WaitThreshold time.Duration
}

type pending struct {
	enqueuedAt time.Time
	escalated  bool
}

// Assigner applies the load-balancing assignment policy.
type Assigner struct {
	pool      *agentpool.Pool
	store     *store.Store
	events    *bus.Bus
	escalator *escalate.Policy
	cfg       Config
	logger    *logger.Logger
	now       func() time.Time

	mu      sync.Mutex
	pending map[string]*pending
}

// New creates an assigner.
func New(pool *agentpool.Pool, st *store.Store, events *bus.Bus, escalator *escalate.Policy, cfg Config, log *logger.Logger) *Assigner {
	if cfg.RetryInterval <= 0 {
		cfg.RetryInterval = 3 * time.Second
	}
	if cfg.WaitThreshold <= 0 {
		cfg.WaitThreshold = 30 * time.Second
	}
	return &Assigner{
		pool:      pool,
		store:     st,
		events:    events,
		escalator: escalator,
		cfg:       cfg,
		logger:    log,
		now:       time.Now,
		pending:   make(map[string]*pending),
	}
}

// SetNow overrides the clock. Tests only.
func (a *Assigner) SetNow(now func() time.Time) {
	a.now = now
}

// Pick selects the best candidate: the smallest active conversation count,
// ties broken by smallest average response latency.
func Pick(candidates []model.Agent) (model.Agent, bool) {
	var best model.Agent
	found := false
	for _, c := range candidates {
		if !found {
			best = c
			found = true
			continue
		}
		if c.ActiveConversationCount < best.ActiveConversationCount ||
			(c.ActiveConversationCount == best.ActiveConversationCount &&
				c.AverageResponseLatency < best.AverageResponseLatency) {
			best = c
		}
	}
	return best, found
}

// Assign tries to assign the conversation once. If no agent is available the
// conversation joins the retry queue.
func (a *Assigner) Assign(ctx context.Context, conversationID string) (string, bool) {
	conv, err := a.store.Find(ctx, conversationID)
	if err != nil {
		a.logger.Warn("assign: conversation lookup failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		return "", false
	}
	if conv.AssignedAgentID != "" || conv.Status.Terminal() {
		return conv.AssignedAgentID, conv.AssignedAgentID != ""
	}

	for {
		best, found := Pick(a.pool.Candidates())
		if !found {
			a.enqueue(conversationID)
			metrics.AssignmentsTotal.WithLabelValues("queued").Inc()
			return "", false
		}

		// Reserve re-checks capacity atomically; a lost race just means
		// another candidate is picked.
		if err := a.pool.Reserve(best.ID); err != nil {
			continue
		}

		if err := a.commit(ctx, conversationID, best.ID); err != nil {
			a.pool.Release(best.ID)
			a.logger.Warn("assign: commit failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			metrics.AssignmentsTotal.WithLabelValues("failed").Inc()
			return "", false
		}

		a.dequeue(conversationID)
		metrics.AssignmentsTotal.WithLabelValues("assigned").Inc()
		a.logger.Info("conversation assigned",
			zap.String("conversation_id", conversationID),
			zap.String("agent_id", best.ID),
		)
		return best.ID, true
	}
}

func (a *Assigner) commit(ctx context.Context, conversationID, agentID string) error {
	conv, err := a.store.Update(ctx, conversationID, func(c *model.Conversation) error {
		c.AssignedAgentID = agentID
		return nil
	})
	if err != nil {
		return err
	}

	if conv.Status != model.ConversationInProgress {
		conv, err = a.store.Transition(ctx, conversationID, model.ConversationInProgress)
		if err != nil {
			return err
		}
	}

	a.events.Publish(model.Event{
		Type:           model.EventConversationStatusChanged,
		At:             a.now(),
		ConversationID: conversationID,
		AgentID:        agentID,
		Channel:        conv.Channel,
		Status:         string(model.ConversationInProgress),
	})
	return nil
}

func (a *Assigner) enqueue(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pending[conversationID]; !ok {
		a.pending[conversationID] = &pending{enqueuedAt: a.now()}
	}
}

func (a *Assigner) dequeue(conversationID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	delete(a.pending, conversationID)
}

// PendingCount reports the number of conversations awaiting an agent.
func (a *Assigner) PendingCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.pending)
}

// Run re-evaluates the retry queue on every agent availability change and
// on a fixed interval, escalating conversations that wait too long. It
// returns when ctx is canceled.
func (a *Assigner) Run(ctx context.Context) {
	ticker := time.NewTicker(a.cfg.RetryInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-a.pool.Notify():
		case <-ticker.C:
		}
		a.Sweep(ctx)
	}
}

// Sweep runs one pass over the retry queue.
func (a *Assigner) Sweep(ctx context.Context) {
	a.mu.Lock()
	ids := make([]string, 0, len(a.pending))
	for id := range a.pending {
		ids = append(ids, id)
	}
	a.mu.Unlock()

	for _, id := range ids {
		if _, ok := a.Assign(ctx, id); ok {
			continue
		}

		a.mu.Lock()
		entry, still := a.pending[id]
		shouldEscalate := still && !entry.escalated && a.now().Sub(entry.enqueuedAt) > a.cfg.WaitThreshold
		if shouldEscalate {
			entry.escalated = true
		}
		a.mu.Unlock()

		if shouldEscalate {
			if _, err := a.escalator.Escalate(ctx, id, escalate.ReasonNoAgentAvailable); err != nil {
				a.logger.Warn("assign: escalation failed",
					zap.String("conversation_id", id),
					zap.Error(err),
				)
			}
		}
	}
}

// ReleaseFor frees the agent slot held by a resolved or closed
// conversation and wakes the retry queue.
func (a *Assigner) ReleaseFor(conv *model.Conversation) {
	if conv.AssignedAgentID == "" {
		return
	}
	a.pool.Release(conv.AssignedAgentID)
}
