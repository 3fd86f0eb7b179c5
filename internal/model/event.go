package model

import (
	"time"
)

// EventType identifies a domain event.
type EventType string

const (
	EventMessageReceived           EventType = "message_received"
	EventMessageSent               EventType = "message_sent"
	EventMessageFailed             EventType = "message_failed"
	EventMessageStatusChanged      EventType = "message_status_changed"
	EventConversationStatusChanged EventType = "conversation_status_changed"
	EventAgentStatusChanged        EventType = "agent_status_changed"
	EventEscalated                 EventType = "escalated"
	EventMetricsUpdated            EventType = "metrics_updated"
)

// Event is one domain event fanned out to subscribers.
type Event struct {
	ID             string    `json:"id"`
	Type           EventType `json:"type"`
	At             time.Time `json:"at"`
	ConversationID string    `json:"conversation_id,omitempty"`
	MessageID      string    `json:"message_id,omitempty"`
	AgentID        string    `json:"agent_id,omitempty"`
	ChannelID      string    `json:"channel_id,omitempty"`
	Channel        ChannelKind `json:"channel,omitempty"`
	Status         string    `json:"status,omitempty"`
	Reason         string    `json:"reason,omitempty"`
}
