package model

import "time"

// ChannelUsage is per-channel message volume within a period.
type ChannelUsage struct {
	Received int `json:"received"`
	Sent     int `json:"sent"`
}

// CommunicationStats is the derived rollup returned by GetStats.
type CommunicationStats struct {
	Period                time.Duration          `json:"period"`
	GeneratedAt           time.Time              `json:"generated_at"`
	TotalConversations    int                    `json:"total_conversations"`
	OpenConversations     int                    `json:"open_conversations"`
	ResolvedConversations int                    `json:"resolved_conversations"`
	EscalatedConversations int                   `json:"escalated_conversations"`
	MessagesReceived      int                    `json:"messages_received"`
	MessagesSent          int                    `json:"messages_sent"`
	Escalations           int                    `json:"escalations"`
	ResolutionRate        float64                `json:"resolution_rate"`
	ResponseRate          float64                `json:"response_rate"`
	PerChannel            map[string]ChannelUsage `json:"per_channel"`
	HourlyVolume          [24]int                `json:"hourly_volume"`
	PeakHour              int                    `json:"peak_hour"`
}
