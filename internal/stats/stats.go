// Package stats derives rollup metrics from the conversation store and the
// event stream.
package stats

import (
	"context"
	"sync"
	"time"

	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/internal/store"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

// Aggregator accumulates event-driven counters and combines them with store
// scans into CommunicationStats. It is a read-only consumer: it never
// mutates engine state.
type Aggregator struct {
	store  *store.Store
	logger *logger.Logger
	now    func() time.Time

	mu           sync.RWMutex
	received     int
	sent         int
	escalations  int
	perChannel   map[string]*model.ChannelUsage
	hourlyVolume [24]int
}

// New creates an aggregator.
func New(st *store.Store, log *logger.Logger) *Aggregator {
	return &Aggregator{
		store:      st,
		logger:     log,
		now:        time.Now,
		perChannel: make(map[string]*model.ChannelUsage),
	}
}

// Run consumes events until the channel closes or ctx is canceled.
func (a *Aggregator) Run(ctx context.Context, events <-chan model.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			a.apply(ev)
		}
	}
}

func (a *Aggregator) apply(ev model.Event) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch ev.Type {
	case model.EventMessageReceived:
		a.received++
		a.usage(ev.Channel).Received++
		a.hourlyVolume[ev.At.Hour()]++
	case model.EventMessageSent:
		a.sent++
		a.usage(ev.Channel).Sent++
		a.hourlyVolume[ev.At.Hour()]++
	case model.EventEscalated:
		a.escalations++
	}
}

func (a *Aggregator) usage(kind model.ChannelKind) *model.ChannelUsage {
	key := string(kind)
	u, ok := a.perChannel[key]
	if !ok {
		u = &model.ChannelUsage{}
		a.perChannel[key] = u
	}
	return u
}

// Stats returns the rollup for conversations updated within the period.
// period <= 0 means everything.
func (a *Aggregator) Stats(ctx context.Context, period time.Duration) model.CommunicationStats {
	now := a.now()
	cutoff := time.Time{}
	if period > 0 {
		cutoff = now.Add(-period)
	}

	out := model.CommunicationStats{
		Period:      period,
		GeneratedAt: now,
		PerChannel:  make(map[string]model.ChannelUsage),
	}

	list := a.store.List(ctx, model.ConversationFilter{Limit: 1 << 30})
	for _, conv := range list.Conversations {
		if !cutoff.IsZero() && conv.UpdatedAt.Before(cutoff) {
			continue
		}
		out.TotalConversations++
		switch conv.Status {
		case model.ConversationResolved:
			out.ResolvedConversations++
		case model.ConversationClosed:
			// Closed without resolution counts as neither open nor resolved.
		case model.ConversationEscalated:
			out.EscalatedConversations++
			out.OpenConversations++
		default:
			out.OpenConversations++
		}
	}
	if out.TotalConversations > 0 {
		out.ResolutionRate = float64(out.ResolvedConversations) / float64(out.TotalConversations)
	}

	a.mu.RLock()
	out.MessagesReceived = a.received
	out.MessagesSent = a.sent
	out.Escalations = a.escalations
	for kind, u := range a.perChannel {
		out.PerChannel[kind] = *u
	}
	out.HourlyVolume = a.hourlyVolume
	a.mu.RUnlock()

	if out.MessagesReceived > 0 {
		out.ResponseRate = float64(out.MessagesSent) / float64(out.MessagesReceived)
	}
	peak := 0
	for h, v := range out.HourlyVolume {
		if v > out.HourlyVolume[peak] {
			peak = h
		}
	}
	out.PeakHour = peak

	return out
}
