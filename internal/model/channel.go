package model

import "time"

// ChannelKind is a communication surface.
type ChannelKind string

const (
	ChannelWhatsApp ChannelKind = "whatsapp"
	ChannelEmail    ChannelKind = "email"
	ChannelSMS      ChannelKind = "sms"
	ChannelChat     ChannelKind = "chat"
	ChannelSocial   ChannelKind = "social"
	ChannelVoice    ChannelKind = "voice"
)

// ValidChannelKind reports whether k is a known kind.
func ValidChannelKind(k ChannelKind) bool {
	switch k {
	case ChannelWhatsApp, ChannelEmail, ChannelSMS, ChannelChat, ChannelSocial, ChannelVoice:
		return true
	}
	return false
}

// IntegrationStatus is the connection state of a channel integration.
type IntegrationStatus string

const (
	IntegrationConnected    IntegrationStatus = "connected"
	IntegrationDisconnected IntegrationStatus = "disconnected"
	IntegrationError        IntegrationStatus = "error"
)

// BusinessHours is a daily schedule window. Zero value means always open.
type BusinessHours struct {
	StartHour int `json:"start_hour"`
	EndHour   int `json:"end_hour"`
}

// Contains reports whether t falls inside the window.
func (b BusinessHours) Contains(t time.Time) bool {
	if b.StartHour == 0 && b.EndHour == 0 {
		return true
	}
	h := t.Hour()
	if b.StartHour <= b.EndHour {
		return h >= b.StartHour && h < b.EndHour
	}
	// Window wraps midnight.
	return h >= b.StartHour || h < b.EndHour
}

// AutomationConfig drives automatic responses for a channel.
type AutomationConfig struct {
	AutoReply        bool          `json:"auto_reply"`
	BusinessHours    BusinessHours `json:"business_hours"`
	WelcomeText      string        `json:"welcome_text,omitempty"`
	OutOfHoursText   string        `json:"out_of_hours_text,omitempty"`
	AIHandoffEnabled bool          `json:"ai_handoff_enabled"`
}

// ChannelMetrics are rolling counters for a reporting period.
type ChannelMetrics struct {
	Sent                int           `json:"sent"`
	Received            int           `json:"received"`
	AvgResponseTime     time.Duration `json:"avg_response_time"`
	ResponseRate        float64       `json:"response_rate"`
	Satisfaction        float64       `json:"satisfaction"`
	OpenConversations   int           `json:"open_conversations"`
	ResolvedConversations int         `json:"resolved_conversations"`
}

// Channel is the configuration and integration state of one surface.
type Channel struct {
	ID                string            `json:"id"`
	Kind              ChannelKind       `json:"kind"`
	Name              string            `json:"name,omitempty"`
	Enabled           bool              `json:"enabled"`
	Token             string            `json:"-"`
	WebhookURL        string            `json:"webhook_url,omitempty"`
	Automation        AutomationConfig  `json:"automation"`
	IntegrationStatus IntegrationStatus `json:"integration_status"`
	Metrics           ChannelMetrics    `json:"metrics"`
}
