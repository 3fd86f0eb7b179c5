// Package model defines data structures for the conversation engine.
package model

import (
	"time"
)

// ConversationStatus is the lifecycle state of a conversation.
type ConversationStatus string

const (
	ConversationNew              ConversationStatus = "new"
	ConversationInProgress       ConversationStatus = "in_progress"
	ConversationAwaitingCustomer ConversationStatus = "awaiting_customer"
	ConversationAwaitingAgent    ConversationStatus = "awaiting_agent"
	ConversationEscalated        ConversationStatus = "escalated"
	ConversationResolved         ConversationStatus = "resolved"
	ConversationClosed           ConversationStatus = "closed"
)

// Terminal reports whether the status admits no further transitions.
func (s ConversationStatus) Terminal() bool {
	return s == ConversationResolved || s == ConversationClosed
}

// Priority orders conversations for agent attention.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Raise returns the next priority level, capped at urgent.
func (p Priority) Raise() Priority {
	switch p {
	case PriorityLow:
		return PriorityNormal
	case PriorityNormal:
		return PriorityHigh
	default:
		return PriorityUrgent
	}
}

// FunnelStage tracks where the customer sits in the sales funnel.
type FunnelStage string

const (
	FunnelAwareness     FunnelStage = "awareness"
	FunnelConsideration FunnelStage = "consideration"
	FunnelDecision      FunnelStage = "decision"
	FunnelRetention     FunnelStage = "retention"
)

// Conversation is one ongoing exchange with a customer on a single channel.
type Conversation struct {
	ID              string             `json:"id"`
	CustomerID      string             `json:"customer_id"`
	ChannelID       string             `json:"channel_id"`
	Channel         ChannelKind        `json:"channel"`
	Status          ConversationStatus `json:"status"`
	Priority        Priority           `json:"priority"`
	Subject         string             `json:"subject,omitempty"`
	Tags            []string           `json:"tags,omitempty"`
	AssignedAgentID string             `json:"assigned_agent_id,omitempty"`
	CreatedAt       time.Time          `json:"created_at"`
	UpdatedAt       time.Time          `json:"updated_at"`
	Resolved        bool               `json:"resolved"`
	FunnelStage     FunnelStage        `json:"funnel_stage"`
	Score           float64            `json:"score"`
	MessageCount    int                `json:"message_count"`
	LastMessage     *Message           `json:"last_message,omitempty"`
}

// HasTag reports whether the conversation already carries the tag.
func (c *Conversation) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// Clone returns a deep copy safe to hand outside the store.
func (c *Conversation) Clone() *Conversation {
	cp := *c
	cp.Tags = append([]string(nil), c.Tags...)
	if c.LastMessage != nil {
		m := *c.LastMessage
		cp.LastMessage = &m
	}
	return &cp
}

// ConversationFilter narrows List results.
type ConversationFilter struct {
	Status  ConversationStatus
	Channel ChannelKind
	Search  string
	Limit   int
	Offset  int
}

// ListConversationsResponse is the response for listing conversations.
type ListConversationsResponse struct {
	Conversations []*Conversation `json:"conversations"`
	Total         int             `json:"total"`
	HasMore       bool            `json:"has_more"`
}
