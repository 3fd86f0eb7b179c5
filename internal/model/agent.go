package model

import "time"

// AgentStatus is the availability state of an agent.
type AgentStatus string

const (
	AgentOnline  AgentStatus = "online"
	AgentBusy    AgentStatus = "busy"
	AgentAway    AgentStatus = "away"
	AgentOffline AgentStatus = "offline"
)

// ValidAgentStatus reports whether s is a known status.
func ValidAgentStatus(s AgentStatus) bool {
	switch s {
	case AgentOnline, AgentBusy, AgentAway, AgentOffline:
		return true
	}
	return false
}

// Agent is a human or automated worker that owns conversations.
type Agent struct {
	ID                      string        `json:"id"`
	Name                    string        `json:"name"`
	Status                  AgentStatus   `json:"status"`
	Specialties             []string      `json:"specialties,omitempty"`
	ActiveConversationCount int           `json:"active_conversation_count"`
	Capacity                int           `json:"capacity"`
	AverageRating           float64       `json:"average_rating"`
	AverageResponseLatency  time.Duration `json:"average_response_latency"`
}

// Available reports whether the agent can take one more conversation.
func (a *Agent) Available() bool {
	return a.Status == AgentOnline && a.ActiveConversationCount < a.Capacity
}
