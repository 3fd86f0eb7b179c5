package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return New(logger.NewNop())
}

func createConv(t *testing.T, s *Store) *model.Conversation {
	t.Helper()
	conv, err := s.Create(context.Background(), "cust-1", "chan-1", model.ChannelWhatsApp, nil)
	require.NoError(t, err)
	return conv
}

func TestCreateDefaults(t *testing.T) {
	s := newTestStore(t)
	conv := createConv(t, s)

	assert.NotEmpty(t, conv.ID)
	assert.Equal(t, model.ConversationNew, conv.Status)
	assert.Equal(t, model.PriorityNormal, conv.Priority)
	assert.Equal(t, model.FunnelAwareness, conv.FunnelStage)
	assert.Zero(t, conv.Score)
	assert.Zero(t, conv.MessageCount)
}

func TestLifecyclePath(t *testing.T) {
	s := newTestStore(t)
	conv := createConv(t, s)
	ctx := context.Background()

	for _, status := range []model.ConversationStatus{
		model.ConversationInProgress,
		model.ConversationAwaitingCustomer,
		model.ConversationAwaitingAgent,
		model.ConversationResolved,
	} {
		got, err := s.Transition(ctx, conv.ID, status)
		require.NoError(t, err)
		assert.Equal(t, status, got.Status)
	}

	got, err := s.Find(ctx, conv.ID)
	require.NoError(t, err)
	assert.True(t, got.Resolved)
}

func TestIllegalTransitions(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cases := []struct {
		name string
		path []model.ConversationStatus
		to   model.ConversationStatus
	}{
		{"new to resolved", nil, model.ConversationResolved},
		{"new to awaiting customer", nil, model.ConversationAwaitingCustomer},
		{"resolved is terminal", []model.ConversationStatus{model.ConversationInProgress, model.ConversationResolved}, model.ConversationInProgress},
		{"closed is terminal", []model.ConversationStatus{model.ConversationClosed}, model.ConversationInProgress},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			conv := createConv(t, s)
			for _, status := range tc.path {
				_, err := s.Transition(ctx, conv.ID, status)
				require.NoError(t, err)
			}

			_, err := s.Transition(ctx, conv.ID, tc.to)
			var illegal *IllegalTransitionError
			require.ErrorAs(t, err, &illegal)
			assert.Equal(t, tc.to, illegal.To)
		})
	}
}

func TestEscalatedCanResolve(t *testing.T) {
	s := newTestStore(t)
	conv := createConv(t, s)
	ctx := context.Background()

	_, err := s.Transition(ctx, conv.ID, model.ConversationEscalated)
	require.NoError(t, err)
	got, err := s.Transition(ctx, conv.ID, model.ConversationResolved)
	require.NoError(t, err)
	assert.Equal(t, model.ConversationResolved, got.Status)
}

func TestAppendMessageOrderAndMetadata(t *testing.T) {
	s := newTestStore(t)
	conv := createConv(t, s)
	ctx := context.Background()

	first := &model.Message{
		Sender:  model.Sender{Kind: model.SenderCustomer},
		Content: model.TextContent{Body: "olá"},
		Status:  model.MessageEnqueued,
	}
	got, err := s.AppendMessage(ctx, conv.ID, first)
	require.NoError(t, err)
	assert.Equal(t, 1, got.MessageCount)
	assert.Equal(t, first.ID, got.LastMessage.ID)
	assert.Equal(t, model.ChannelWhatsApp, first.Channel)

	// A message carrying an older provider timestamp is clamped so the log
	// stays non-decreasing.
	second := &model.Message{
		Sender:    model.Sender{Kind: model.SenderCustomer},
		Content:   model.TextContent{Body: "ainda aí?"},
		Timestamp: first.Timestamp.Add(-time.Hour),
	}
	_, err = s.AppendMessage(ctx, conv.ID, second)
	require.NoError(t, err)

	msgs, err := s.Messages(ctx, conv.ID)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.False(t, msgs[1].Timestamp.Before(msgs[0].Timestamp))
}

func TestAppendToUnknownConversation(t *testing.T) {
	s := newTestStore(t)
	_, err := s.AppendMessage(context.Background(), "missing", &model.Message{
		Content: model.TextContent{Body: "x"},
	})
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestFindOpenByCustomer(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := createConv(t, s)
	found, err := s.FindOpenByCustomer(ctx, "cust-1", "chan-1")
	require.NoError(t, err)
	assert.Equal(t, conv.ID, found.ID)

	_, err = s.Transition(ctx, conv.ID, model.ConversationClosed)
	require.NoError(t, err)

	_, err = s.FindOpenByCustomer(ctx, "cust-1", "chan-1")
	assert.ErrorIs(t, err, ErrConversationNotFound)
}

func TestListFilters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	a := createConv(t, s)
	b, err := s.Create(ctx, "cust-2", "chan-2", model.ChannelEmail, nil)
	require.NoError(t, err)
	_, err = s.Transition(ctx, b.ID, model.ConversationInProgress)
	require.NoError(t, err)
	_, err = s.AppendMessage(ctx, a.ID, &model.Message{
		Sender:  model.Sender{Kind: model.SenderCustomer},
		Content: model.TextContent{Body: "fatura em atraso"},
	})
	require.NoError(t, err)

	byStatus := s.List(ctx, model.ConversationFilter{Status: model.ConversationInProgress})
	require.Equal(t, 1, byStatus.Total)
	assert.Equal(t, b.ID, byStatus.Conversations[0].ID)

	byChannel := s.List(ctx, model.ConversationFilter{Channel: model.ChannelWhatsApp})
	require.Equal(t, 1, byChannel.Total)
	assert.Equal(t, a.ID, byChannel.Conversations[0].ID)

	bySearch := s.List(ctx, model.ConversationFilter{Search: "fatura"})
	require.Equal(t, 1, bySearch.Total)
	assert.Equal(t, a.ID, bySearch.Conversations[0].ID)

	paged := s.List(ctx, model.ConversationFilter{Limit: 1})
	assert.Equal(t, 2, paged.Total)
	assert.Len(t, paged.Conversations, 1)
	assert.True(t, paged.HasMore)
}

func TestAdvanceMessageStatus(t *testing.T) {
	s := newTestStore(t)
	conv := createConv(t, s)
	ctx := context.Background()

	msg := &model.Message{
		Sender:  model.Sender{Kind: model.SenderAgent},
		Content: model.TextContent{Body: "resposta"},
		Status:  model.MessageSending,
	}
	_, err := s.AppendMessage(ctx, conv.ID, msg)
	require.NoError(t, err)

	changed, err := s.AdvanceMessageStatus(ctx, conv.ID, msg.ID, model.MessageSent)
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = s.AdvanceMessageStatus(ctx, conv.ID, msg.ID, model.MessageRead)
	require.NoError(t, err)
	assert.True(t, changed)

	// A late delivered receipt is stale: no error, no change.
	changed, err = s.AdvanceMessageStatus(ctx, conv.ID, msg.ID, model.MessageDelivered)
	require.NoError(t, err)
	assert.False(t, changed)

	// Failure after a successful send is rejected.
	_, err = s.AdvanceMessageStatus(ctx, conv.ID, msg.ID, model.MessageFailed)
	assert.Error(t, err)

	msgs, err := s.Messages(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MessageRead, msgs[0].Status)
	assert.True(t, msgs[0].Read)
	assert.True(t, msgs[0].Delivered)
}

func TestAdvanceMessageStatusUnknownMessage(t *testing.T) {
	s := newTestStore(t)
	conv := createConv(t, s)

	_, err := s.AdvanceMessageStatus(context.Background(), conv.ID, "missing", model.MessageSent)
	assert.ErrorIs(t, err, ErrMessageNotFound)
}
