// Package agentpool tracks agent availability and capacity.
package agentpool

import (
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
	"github.com/omnidesk/conversation-engine/pkg/metrics"
)

var (
	// ErrAgentNotFound is returned when the agent id is unknown.
	ErrAgentNotFound = errors.New("agent not found")

	// ErrAgentAtCapacity is internal to assignment: the agent cannot take
	// another conversation. It is never surfaced to API callers.
	ErrAgentAtCapacity = errors.New("agent at capacity")

	// ErrInvalidAgentStatus is returned for unknown status values.
	ErrInvalidAgentStatus = errors.New("invalid agent status")
)

// Pool is the shared agent roster. It is safe for concurrent use.
type Pool struct {
	mu     sync.RWMutex
	agents map[string]*model.Agent
	notify chan struct{}
	logger *logger.Logger
}

// New creates an empty pool.
func New(log *logger.Logger) *Pool {
	return &Pool{
		agents: make(map[string]*model.Agent),
		notify: make(chan struct{}, 1),
		logger: log,
	}
}

// Notify returns a channel that receives a signal whenever agent
// availability may have improved. The channel is buffered; signals coalesce.
func (p *Pool) Notify() <-chan struct{} {
	return p.notify
}

func (p *Pool) wake() {
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

// Register adds an agent to the pool.
func (p *Pool) Register(agent model.Agent) error {
	if !model.ValidAgentStatus(agent.Status) {
		return ErrInvalidAgentStatus
	}
	if agent.Capacity <= 0 {
		return errors.New("agent capacity must be positive")
	}

	p.mu.Lock()
	a := agent
	p.agents[agent.ID] = &a
	p.mu.Unlock()

	p.refreshOnlineGauge()
	if agent.Status == model.AgentOnline {
		p.wake()
	}
	return nil
}

// SetStatus updates an agent's availability.
func (p *Pool) SetStatus(agentID string, status model.AgentStatus) (model.Agent, error) {
	if !model.ValidAgentStatus(status) {
		return model.Agent{}, ErrInvalidAgentStatus
	}

	p.mu.Lock()
	agent, ok := p.agents[agentID]
	if !ok {
		p.mu.Unlock()
		return model.Agent{}, ErrAgentNotFound
	}
	agent.Status = status
	snapshot := *agent
	p.mu.Unlock()

	p.logger.Info("agent status changed",
		zap.String("agent_id", agentID),
		zap.String("status", string(status)),
	)
	p.refreshOnlineGauge()
	if status == model.AgentOnline {
		p.wake()
	}
	return snapshot, nil
}

// Get returns a snapshot of one agent.
func (p *Pool) Get(agentID string) (model.Agent, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	agent, ok := p.agents[agentID]
	if !ok {
		return model.Agent{}, ErrAgentNotFound
	}
	return *agent, nil
}

// List returns snapshots of all agents.
func (p *Pool) List() []model.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]model.Agent, 0, len(p.agents))
	for _, a := range p.agents {
		out = append(out, *a)
	}
	return out
}

// Candidates returns snapshots of agents that can take a conversation now.
func (p *Pool) Candidates() []model.Agent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	var out []model.Agent
	for _, a := range p.agents {
		if a.Available() {
			out = append(out, *a)
		}
	}
	return out
}

// Reserve increments the agent's active conversation count, refusing to
// exceed capacity. The check and increment are atomic.
func (p *Pool) Reserve(agentID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	agent, ok := p.agents[agentID]
	if !ok {
		return ErrAgentNotFound
	}
	if agent.Status != model.AgentOnline || agent.ActiveConversationCount >= agent.Capacity {
		return ErrAgentAtCapacity
	}
	agent.ActiveConversationCount++
	return nil
}

// Release decrements the agent's active conversation count, never below
// zero, and wakes assignment retries.
func (p *Pool) Release(agentID string) {
	p.mu.Lock()
	if agent, ok := p.agents[agentID]; ok && agent.ActiveConversationCount > 0 {
		agent.ActiveConversationCount--
	}
	p.mu.Unlock()
	p.wake()
}

func (p *Pool) refreshOnlineGauge() {
	p.mu.RLock()
	online := 0
	for _, a := range p.agents {
		if a.Status == model.AgentOnline {
			online++
		}
	}
	p.mu.RUnlock()
	metrics.AgentsOnline.Set(float64(online))
}
