package pipeline

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/conversation-engine/internal/agentpool"
	"github.com/omnidesk/conversation-engine/internal/assign"
	"github.com/omnidesk/conversation-engine/internal/bus"
	"github.com/omnidesk/conversation-engine/internal/channel"
	"github.com/omnidesk/conversation-engine/internal/classify"
	"github.com/omnidesk/conversation-engine/internal/dedupe"
	"github.com/omnidesk/conversation-engine/internal/escalate"
	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/internal/store"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

// fakeAdapter scripts dispatch outcomes. A nil entry means success.
type fakeAdapter struct {
	mu       sync.Mutex
	outcomes []error
	calls    int
}

func (f *fakeAdapter) Send(ctx context.Context, msg *model.Message) (channel.Ack, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var err error
	if f.calls < len(f.outcomes) {
		err = f.outcomes[f.calls]
	}
	f.calls++
	if err != nil {
		return channel.Ack{}, err
	}
	return channel.Ack{ProviderMessageID: "prov-1", Timestamp: time.Now()}, nil
}

func (f *fakeAdapter) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fixture struct {
	store    *store.Store
	registry *channel.Registry
	events   *bus.Bus
	adapter  *fakeAdapter
	pipeline *Pipeline
}

func newFixture(t *testing.T, ch model.Channel, classifier classify.Classifier) *fixture {
	t.Helper()
	log := logger.NewNop()
	st := store.New(log)
	events := bus.New(log)
	t.Cleanup(events.Close)

	pool := agentpool.New(log)
	registry := channel.NewRegistry(events, log)
	escalator := escalate.New(st, events, escalate.Config{}, log)
	assigner := assign.New(pool, st, events, escalator, assign.Config{}, log)

	adapter := &fakeAdapter{}
	require.NoError(t, registry.Register(ch, adapter))

	if classifier == nil {
		classifier = classify.NewLexical(classify.DefaultLexicon())
	}

	p := New(st, registry, classifier, escalator, assigner, events, nil, dedupe.NewMemory(time.Minute), Config{
		SendMaxAttempts:     3,
		SendInitialInterval: time.Millisecond,
		SendTimeout:         5 * time.Second,
	}, log)

	return &fixture{
		store:    st,
		registry: registry,
		events:   events,
		adapter:  adapter,
		pipeline: p,
	}
}

func chatChannel() model.Channel {
	return model.Channel{ID: "chan-1", Kind: model.ChannelChat, Enabled: true}
}

func drain(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.Drain(ctx))
}

func collect(events <-chan model.Event) map[model.EventType]int {
	out := make(map[model.EventType]int)
	for {
		select {
		case ev := <-events:
			out[ev.Type]++
		default:
			return out
		}
	}
}

func TestReceiveCreatesConversationAndReusesIt(t *testing.T) {
	f := newFixture(t, chatChannel(), nil)
	ctx := context.Background()

	msg1, err := f.pipeline.Receive(ctx, InboundMessage{
		ChannelID:  "chan-1",
		CustomerID: "cust-1",
		ProviderID: "p-1",
		Sender:     model.Sender{Kind: model.SenderCustomer},
		Content:    model.TextContent{Body: "olá, tudo bem?"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, msg1.ConversationID)
	assert.Equal(t, model.MessageEnqueued, msg1.Status)
	assert.Equal(t, model.KindText, msg1.Kind)

	msg2, err := f.pipeline.Receive(ctx, InboundMessage{
		ChannelID:  "chan-1",
		CustomerID: "cust-1",
		ProviderID: "p-2",
		Sender:     model.Sender{Kind: model.SenderCustomer},
		Content:    model.TextContent{Body: "segue mais contexto"},
	})
	require.NoError(t, err)
	assert.Equal(t, msg1.ConversationID, msg2.ConversationID)

	drain(t, f.pipeline)

	msgs, err := f.store.Messages(ctx, msg1.ConversationID)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)
}

func TestReceiveDuplicateDelivery(t *testing.T) {
	f := newFixture(t, chatChannel(), nil)
	ctx := context.Background()

	in := InboundMessage{
		ChannelID:  "chan-1",
		CustomerID: "cust-1",
		ProviderID: "p-dup",
		Sender:     model.Sender{Kind: model.SenderCustomer},
		Content:    model.TextContent{Body: "oi"},
	}
	_, err := f.pipeline.Receive(ctx, in)
	require.NoError(t, err)

	_, err = f.pipeline.Receive(ctx, in)
	assert.ErrorIs(t, err, ErrDuplicateDelivery)
	drain(t, f.pipeline)
}

func TestSendRoundTrip(t *testing.T) {
	f := newFixture(t, chatChannel(), nil)
	ctx := context.Background()

	conv, err := f.store.Create(ctx, "cust-1", "chan-1", model.ChannelChat, nil)
	require.NoError(t, err)

	events, cancel := f.events.Subscribe("test", 16, bus.DropOldest)
	defer cancel()

	msg, err := f.pipeline.Send(ctx, conv.ID, model.TextContent{Body: "posso ajudar?"}, model.Sender{Kind: model.SenderAgent, ID: "agent-1"})
	require.NoError(t, err)
	assert.Equal(t, model.MessageSending, msg.Status)

	drain(t, f.pipeline)

	msgs, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, model.MessageSent, msgs[0].Status)
	assert.Equal(t, 1, f.adapter.callCount())

	counts := collect(events)
	assert.Equal(t, 1, counts[model.EventMessageSent])
	assert.Zero(t, counts[model.EventMessageFailed])
}

func TestSendToClosedConversation(t *testing.T) {
	f := newFixture(t, chatChannel(), nil)
	ctx := context.Background()

	conv, err := f.store.Create(ctx, "cust-1", "chan-1", model.ChannelChat, nil)
	require.NoError(t, err)
	_, err = f.store.Transition(ctx, conv.ID, model.ConversationClosed)
	require.NoError(t, err)

	events, cancel := f.events.Subscribe("test", 16, bus.DropOldest)
	defer cancel()

	_, err = f.pipeline.Send(ctx, conv.ID, model.TextContent{Body: "tarde demais"}, model.Sender{Kind: model.SenderAgent})
	assert.ErrorIs(t, err, store.ErrConversationClosed)

	drain(t, f.pipeline)

	msgs, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Empty(t, msgs)
	assert.Zero(t, f.adapter.callCount())
	assert.Zero(t, collect(events)[model.EventMessageSent])
}

func TestDispatchRetriesTransientErrors(t *testing.T) {
	f := newFixture(t, chatChannel(), nil)
	f.adapter.outcomes = []error{channel.Transient(errors.New("429")), nil}
	ctx := context.Background()

	conv, err := f.store.Create(ctx, "cust-1", "chan-1", model.ChannelChat, nil)
	require.NoError(t, err)

	_, err = f.pipeline.Send(ctx, conv.ID, model.TextContent{Body: "retry me"}, model.Sender{Kind: model.SenderAgent})
	require.NoError(t, err)
	drain(t, f.pipeline)

	msgs, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageSent, msgs[0].Status)
	assert.Equal(t, 2, f.adapter.callCount())
}

func TestDispatchPermanentErrorFailsImmediately(t *testing.T) {
	f := newFixture(t, chatChannel(), nil)
	f.adapter.outcomes = []error{channel.Permanent(errors.New("bad recipient"))}
	ctx := context.Background()

	conv, err := f.store.Create(ctx, "cust-1", "chan-1", model.ChannelChat, nil)
	require.NoError(t, err)

	events, cancel := f.events.Subscribe("test", 16, bus.DropOldest)
	defer cancel()

	_, err = f.pipeline.Send(ctx, conv.ID, model.TextContent{Body: "x"}, model.Sender{Kind: model.SenderAgent})
	require.NoError(t, err)
	drain(t, f.pipeline)

	msgs, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageFailed, msgs[0].Status)
	assert.Equal(t, 1, f.adapter.callCount())
	assert.Equal(t, 1, collect(events)[model.EventMessageFailed])
}

func TestDispatchExhaustsTransientRetries(t *testing.T) {
	f := newFixture(t, chatChannel(), nil)
	boom := channel.Transient(errors.New("unreachable"))
	f.adapter.outcomes = []error{boom, boom, boom, boom}
	ctx := context.Background()

	conv, err := f.store.Create(ctx, "cust-1", "chan-1", model.ChannelChat, nil)
	require.NoError(t, err)

	_, err = f.pipeline.Send(ctx, conv.ID, model.TextContent{Body: "x"}, model.Sender{Kind: model.SenderAgent})
	require.NoError(t, err)
	drain(t, f.pipeline)

	msgs, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageFailed, msgs[0].Status)
	assert.Equal(t, 3, f.adapter.callCount())
}

func TestNegativeMessageEscalates(t *testing.T) {
	f := newFixture(t, chatChannel(), nil)
	ctx := context.Background()

	msg, err := f.pipeline.Receive(ctx, InboundMessage{
		ChannelID:  "chan-1",
		CustomerID: "cust-1",
		ProviderID: "p-1",
		Sender:     model.Sender{Kind: model.SenderCustomer},
		Content:    model.TextContent{Body: "Isso é um problema, péssimo atendimento"},
	})
	require.NoError(t, err)
	drain(t, f.pipeline)

	conv, err := f.store.Find(ctx, msg.ConversationID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationEscalated, conv.Status)
	assert.Equal(t, model.PriorityHigh, conv.Priority)
	assert.Negative(t, conv.Score)
}

func TestPositiveMessageRaisesScore(t *testing.T) {
	f := newFixture(t, chatChannel(), nil)
	ctx := context.Background()

	msg, err := f.pipeline.Receive(ctx, InboundMessage{
		ChannelID:  "chan-1",
		CustomerID: "cust-1",
		ProviderID: "p-1",
		Sender:     model.Sender{Kind: model.SenderCustomer},
		Content:    model.TextContent{Body: "obrigado, excelente atendimento"},
	})
	require.NoError(t, err)
	drain(t, f.pipeline)

	conv, err := f.store.Find(ctx, msg.ConversationID)
	require.NoError(t, err)
	assert.Positive(t, conv.Score)
	assert.NotEqual(t, model.ConversationEscalated, conv.Status)
}

func TestWelcomeAutoReply(t *testing.T) {
	ch := chatChannel()
	ch.Automation = model.AutomationConfig{
		AutoReply:   true,
		WelcomeText: "Olá! Em que posso ajudar?",
	}
	f := newFixture(t, ch, nil)
	ctx := context.Background()

	msg, err := f.pipeline.Receive(ctx, InboundMessage{
		ChannelID:  "chan-1",
		CustomerID: "cust-1",
		ProviderID: "p-1",
		Sender:     model.Sender{Kind: model.SenderCustomer},
		Content:    model.TextContent{Body: "oi"},
	})
	require.NoError(t, err)
	drain(t, f.pipeline)

	msgs, err := f.store.Messages(ctx, msg.ConversationID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, model.SenderBot, msgs[1].Sender.Kind)
	assert.Equal(t, "Olá! Em que posso ajudar?", msgs[1].Text())
}

func TestReceiptAdvancesMessageStatus(t *testing.T) {
	f := newFixture(t, chatChannel(), nil)
	ctx := context.Background()

	conv, err := f.store.Create(ctx, "cust-1", "chan-1", model.ChannelChat, nil)
	require.NoError(t, err)
	msg, err := f.pipeline.Send(ctx, conv.ID, model.TextContent{Body: "enviado"}, model.Sender{Kind: model.SenderAgent})
	require.NoError(t, err)
	drain(t, f.pipeline)

	events, cancel := f.events.Subscribe("test", 16, bus.DropOldest)
	defer cancel()

	out, err := f.pipeline.Receive(ctx, InboundMessage{
		ChannelID:      "chan-1",
		ConversationID: conv.ID,
		ProviderID:     "r-1",
		Receipt:        &Receipt{MessageID: msg.ID, Status: model.MessageDelivered},
	})
	require.NoError(t, err)
	assert.Nil(t, out)

	msgs, err := f.store.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageDelivered, msgs[0].Status)
	assert.Equal(t, 1, collect(events)[model.EventMessageStatusChanged])

	// A stale receipt is acknowledged without another event.
	_, err = f.pipeline.Receive(ctx, InboundMessage{
		ChannelID:      "chan-1",
		ConversationID: conv.ID,
		ProviderID:     "r-2",
		Receipt:        &Receipt{MessageID: msg.ID, Status: model.MessageSent},
	})
	require.NoError(t, err)
	assert.Zero(t, collect(events)[model.EventMessageStatusChanged])
	drain(t, f.pipeline)
}

func TestReceiveOnDisabledChannelStillIngests(t *testing.T) {
	ch := chatChannel()
	ch.Enabled = false
	f := newFixture(t, ch, nil)

	// Inbound traffic is accepted even when outbound is disabled.
	msg, err := f.pipeline.Receive(context.Background(), InboundMessage{
		ChannelID:  "chan-1",
		CustomerID: "cust-1",
		ProviderID: "p-1",
		Sender:     model.Sender{Kind: model.SenderCustomer},
		Content:    model.TextContent{Body: "oi"},
	})
	require.NoError(t, err)
	assert.NotNil(t, msg)
	drain(t, f.pipeline)
}
