package escalate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/conversation-engine/internal/bus"
	"github.com/omnidesk/conversation-engine/internal/classify"
	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/internal/store"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

func newPolicy(t *testing.T, cfg Config) (*Policy, *store.Store, *bus.Bus) {
	t.Helper()
	log := logger.NewNop()
	st := store.New(log)
	events := bus.New(log)
	t.Cleanup(events.Close)
	return New(st, events, cfg, log), st, events
}

func newConv(t *testing.T, st *store.Store) *model.Conversation {
	t.Helper()
	conv, err := st.Create(context.Background(), "cust", "chan", model.ChannelWhatsApp, nil)
	require.NoError(t, err)
	return conv
}

func drainEscalations(events <-chan model.Event) int {
	n := 0
	for {
		select {
		case ev := <-events:
			if ev.Type == model.EventEscalated {
				n++
			}
		default:
			return n
		}
	}
}

func TestEscalateRaisesStatusPriorityAndTag(t *testing.T) {
	p, st, events := newPolicy(t, Config{})
	conv := newConv(t, st)
	ch, cancel := events.Subscribe("test", 8, bus.DropOldest)
	defer cancel()

	escalated, err := p.Escalate(context.Background(), conv.ID, ReasonComplaintIntent)
	require.NoError(t, err)
	assert.True(t, escalated)

	got, err := st.Find(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationEscalated, got.Status)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	assert.True(t, got.HasTag("escalated:complaint_intent"))
	assert.Equal(t, 1, drainEscalations(ch))
}

func TestEscalateIdempotentWithinCooldown(t *testing.T) {
	p, st, events := newPolicy(t, Config{Cooldown: time.Hour})
	conv := newConv(t, st)
	ch, cancel := events.Subscribe("test", 16, bus.DropOldest)
	defer cancel()

	for i := 0; i < 3; i++ {
		_, err := p.Escalate(context.Background(), conv.ID, ReasonNegativeSentiment)
		require.NoError(t, err)
	}

	got, err := st.Find(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityHigh, got.Priority)
	assert.Equal(t, []string{"escalated:negative_sentiment"}, got.Tags)
	assert.Equal(t, 1, drainEscalations(ch))
}

func TestEscalateAgainAfterCooldown(t *testing.T) {
	p, st, _ := newPolicy(t, Config{Cooldown: time.Minute})
	conv := newConv(t, st)

	now := time.Now()
	p.SetNow(func() time.Time { return now })

	first, err := p.Escalate(context.Background(), conv.ID, ReasonNegativeSentiment)
	require.NoError(t, err)
	assert.True(t, first)

	now = now.Add(2 * time.Minute)
	second, err := p.Escalate(context.Background(), conv.ID, ReasonNegativeSentiment)
	require.NoError(t, err)
	assert.True(t, second)

	got, err := st.Find(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityUrgent, got.Priority)
}

func TestDistinctReasonsBothEscalate(t *testing.T) {
	p, st, _ := newPolicy(t, Config{Cooldown: time.Hour})
	conv := newConv(t, st)

	_, err := p.Escalate(context.Background(), conv.ID, ReasonNegativeSentiment)
	require.NoError(t, err)
	escalated, err := p.Escalate(context.Background(), conv.ID, ReasonSendFailures)
	require.NoError(t, err)
	assert.True(t, escalated)

	got, err := st.Find(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.True(t, got.HasTag("escalated:negative_sentiment"))
	assert.True(t, got.HasTag("escalated:send_failures"))
}

func TestPriorityCapsAtUrgent(t *testing.T) {
	p, st, _ := newPolicy(t, Config{Cooldown: time.Nanosecond})
	conv := newConv(t, st)

	now := time.Now()
	p.SetNow(func() time.Time { return now })
	for i := 0; i < 5; i++ {
		now = now.Add(time.Second)
		_, err := p.Escalate(context.Background(), conv.ID, ReasonNegativeSentiment)
		require.NoError(t, err)
	}

	got, err := st.Find(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.PriorityUrgent, got.Priority)
}

func TestEscalateTerminalConversation(t *testing.T) {
	p, st, _ := newPolicy(t, Config{})
	conv := newConv(t, st)
	_, err := st.Transition(context.Background(), conv.ID, model.ConversationClosed)
	require.NoError(t, err)

	_, err = p.Escalate(context.Background(), conv.ID, ReasonComplaintIntent)
	assert.ErrorIs(t, err, ErrTerminalConversation)
}

func TestEvaluateThresholds(t *testing.T) {
	p, st, _ := newPolicy(t, Config{NegativeIntensityThreshold: 0.7})
	ctx := context.Background()

	cases := []struct {
		name string
		cls  classify.Classification
		want bool
	}{
		{
			"negative above threshold",
			classify.Classification{
				Sentiment: classify.Sentiment{Polarity: classify.PolarityNegative, Intensity: 0.95},
				Intent:    classify.Intent{Category: classify.IntentQuestion},
			},
			true,
		},
		{
			"negative at threshold does not fire",
			classify.Classification{
				Sentiment: classify.Sentiment{Polarity: classify.PolarityNegative, Intensity: 0.7},
				Intent:    classify.Intent{Category: classify.IntentQuestion},
			},
			false,
		},
		{
			"complaint intent",
			classify.Classification{
				Sentiment: classify.Sentiment{Polarity: classify.PolarityNeutral},
				Intent:    classify.Intent{Category: classify.IntentComplaint, Confidence: 0.8},
			},
			true,
		},
		{
			"cancellation intent",
			classify.Classification{
				Sentiment: classify.Sentiment{Polarity: classify.PolarityNeutral},
				Intent:    classify.Intent{Category: classify.IntentCancellation, Confidence: 0.8},
			},
			true,
		},
		{
			"neutral never escalates",
			classify.Neutral(),
			false,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conv := newConv(t, st)
			assert.Equal(t, tc.want, p.Evaluate(ctx, conv.ID, tc.cls))
		})
	}
}

func TestSendFailuresEscalateAtThreshold(t *testing.T) {
	p, st, _ := newPolicy(t, Config{SendFailureThreshold: 3})
	conv := newConv(t, st)
	ctx := context.Background()

	p.RecordSendFailure(ctx, conv.ID)
	p.RecordSendFailure(ctx, conv.ID)
	got, err := st.Find(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationNew, got.Status)

	p.RecordSendFailure(ctx, conv.ID)
	got, err = st.Find(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationEscalated, got.Status)
	assert.True(t, got.HasTag("escalated:send_failures"))
}
