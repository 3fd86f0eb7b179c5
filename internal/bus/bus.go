// Package bus fans out domain events to subscribers without blocking
// producers.
package bus

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
	"github.com/omnidesk/conversation-engine/pkg/metrics"
)

// OverflowPolicy decides what happens when a subscriber queue is full.
type OverflowPolicy int

const (
	// DropOldest discards the oldest queued event to make room. Suited to
	// high-frequency metrics feeds.
	DropOldest OverflowPolicy = iota

	// Disconnect removes the subscriber entirely. Suited to subscribers
	// that must not observe gaps, such as escalation pagers, which are
	// expected to reconnect and resynchronize.
	Disconnect
)

type subscriber struct {
	name   string
	ch     chan model.Event
	policy OverflowPolicy
}

// Bus is an in-process event fan-out with bounded per-subscriber queues.
type Bus struct {
	mu     sync.Mutex
	subs   map[uint64]*subscriber
	nextID uint64
	closed bool
	logger *logger.Logger
}

// New creates an empty bus.
func New(log *logger.Logger) *Bus {
	return &Bus{
		subs:   make(map[uint64]*subscriber),
		logger: log,
	}
}

// Subscribe registers a subscriber with a bounded queue. The returned cancel
// function removes the subscription and closes the channel.
func (b *Bus) Subscribe(name string, buffer int, policy OverflowPolicy) (<-chan model.Event, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	sub := &subscriber{
		name:   name,
		ch:     make(chan model.Event, buffer),
		policy: policy,
	}

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	b.subs[id] = sub
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if s, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(s.ch)
		}
		b.mu.Unlock()
	}
	return sub.ch, cancel
}

// Publish delivers the event to every subscriber. It never blocks: full
// queues are handled per the subscriber's overflow policy.
func (b *Bus) Publish(ev model.Event) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	for id, sub := range b.subs {
		select {
		case sub.ch <- ev:
			continue
		default:
		}

		switch sub.policy {
		case DropOldest:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
			}
			metrics.BusDroppedEventsTotal.WithLabelValues(sub.name).Inc()
		case Disconnect:
			delete(b.subs, id)
			close(sub.ch)
			metrics.BusDroppedEventsTotal.WithLabelValues(sub.name).Inc()
			b.logger.Warn("subscriber disconnected on overflow",
				zap.String("subscriber", sub.name),
			)
		}
	}
}

// Close removes all subscribers and closes their channels.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, sub := range b.subs {
		delete(b.subs, id)
		close(sub.ch)
	}
}
