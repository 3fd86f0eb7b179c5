// Package store owns conversation and message state and enforces the
// conversation lifecycle. All mutations to one conversation are serialized
// through a per-conversation lock; different conversations proceed
// concurrently.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
	"github.com/omnidesk/conversation-engine/pkg/metrics"
)

var (
	// ErrConversationNotFound is returned when the conversation id is unknown.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrConversationClosed is returned when an operation requires an open
	// conversation.
	ErrConversationClosed = errors.New("conversation is closed")

	// ErrMessageNotFound is returned when the message id is unknown.
	ErrMessageNotFound = errors.New("message not found")
)

// IllegalTransitionError reports a conversation status move outside the
// allowed table.
type IllegalTransitionError struct {
	From, To model.ConversationStatus
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("illegal transition from %s to %s", e.From, e.To)
}

var allowedTransitions = map[model.ConversationStatus][]model.ConversationStatus{
	model.ConversationNew: {
		model.ConversationInProgress,
		model.ConversationEscalated,
		model.ConversationClosed,
	},
	model.ConversationInProgress: {
		model.ConversationAwaitingCustomer,
		model.ConversationAwaitingAgent,
		model.ConversationEscalated,
		model.ConversationResolved,
		model.ConversationClosed,
	},
	model.ConversationAwaitingCustomer: {
		model.ConversationInProgress,
		model.ConversationAwaitingAgent,
		model.ConversationEscalated,
		model.ConversationResolved,
		model.ConversationClosed,
	},
	model.ConversationAwaitingAgent: {
		model.ConversationInProgress,
		model.ConversationAwaitingCustomer,
		model.ConversationEscalated,
		model.ConversationResolved,
		model.ConversationClosed,
	},
	model.ConversationEscalated: {
		model.ConversationInProgress,
		model.ConversationResolved,
		model.ConversationClosed,
	},
}

// CanTransition reports whether the status move is in the allowed table.
func CanTransition(from, to model.ConversationStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// Store is the in-memory conversation repository. A persistent implementation
// can replace the maps behind the same method set.
type Store struct {
	mu            sync.RWMutex
	conversations map[string]*model.Conversation
	messages      map[string][]*model.Message
	locks         map[string]*sync.Mutex

	logger *logger.Logger
	now    func() time.Time
}

// New creates an empty store.
func New(log *logger.Logger) *Store {
	return &Store{
		conversations: make(map[string]*model.Conversation),
		messages:      make(map[string][]*model.Message),
		locks:         make(map[string]*sync.Mutex),
		logger:        log,
		now:           time.Now,
	}
}

// SetNow overrides the clock. Tests only.
func (s *Store) SetNow(now func() time.Time) {
	s.now = now
}

// lockFor returns the serialization lock for one conversation id.
func (s *Store) lockFor(conversationID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[conversationID] = l
	}
	return l
}

// Create initializes a conversation with status new, funnel stage awareness
// and score zero. firstMessage may be nil.
func (s *Store) Create(ctx context.Context, customerID, channelID string, kind model.ChannelKind, firstMessage *model.Message) (*model.Conversation, error) {
	now := s.now()
	conv := &model.Conversation{
		ID:          uuid.Must(uuid.NewV7()).String(),
		CustomerID:  customerID,
		ChannelID:   channelID,
		Channel:     kind,
		Status:      model.ConversationNew,
		Priority:    model.PriorityNormal,
		FunnelStage: model.FunnelAwareness,
		Score:       0,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	s.mu.Lock()
	s.conversations[conv.ID] = conv
	s.locks[conv.ID] = &sync.Mutex{}
	s.mu.Unlock()

	if firstMessage != nil {
		firstMessage.ConversationID = conv.ID
		if _, err := s.AppendMessage(ctx, conv.ID, firstMessage); err != nil {
			return nil, err
		}
	}

	metrics.ConversationsTotal.WithLabelValues(string(kind)).Inc()
	s.logger.Info("conversation created",
		zap.String("conversation_id", conv.ID),
		zap.String("customer_id", customerID),
		zap.String("channel", string(kind)),
	)

	return s.Find(ctx, conv.ID)
}

// AppendMessage appends a message, keeping the append-only, non-decreasing
// timestamp invariant, and updates lastMessage and updatedAt.
func (s *Store) AppendMessage(ctx context.Context, conversationID string, msg *model.Message) (*model.Conversation, error) {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	if msg.ID == "" {
		msg.ID = uuid.Must(uuid.NewV7()).String()
	}
	msg.ConversationID = conversationID
	if msg.Channel == "" {
		msg.Channel = conv.Channel
	}
	if msg.Timestamp.IsZero() {
		msg.Timestamp = s.now()
	}
	// Clamp to the tail so append order never produces a decreasing timestamp.
	if tail := s.messages[conversationID]; len(tail) > 0 {
		if last := tail[len(tail)-1].Timestamp; msg.Timestamp.Before(last) {
			msg.Timestamp = last
		}
	}

	s.messages[conversationID] = append(s.messages[conversationID], msg)

	last := *msg
	conv.LastMessage = &last
	conv.MessageCount++
	conv.UpdatedAt = s.now()

	return conv.Clone(), nil
}

// Transition moves the conversation to newStatus, validating against the
// allowed table.
func (s *Store) Transition(ctx context.Context, conversationID string, newStatus model.ConversationStatus) (*model.Conversation, error) {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	if !CanTransition(conv.Status, newStatus) {
		return nil, &IllegalTransitionError{From: conv.Status, To: newStatus}
	}

	conv.Status = newStatus
	conv.Resolved = newStatus == model.ConversationResolved
	conv.UpdatedAt = s.now()

	s.logger.Info("conversation status changed",
		zap.String("conversation_id", conversationID),
		zap.String("status", string(newStatus)),
	)

	return conv.Clone(), nil
}

// Update applies fn to the conversation under its lock. fn sees the live
// record and may mutate it; the returned conversation is a copy.
func (s *Store) Update(ctx context.Context, conversationID string, fn func(*model.Conversation) error) (*model.Conversation, error) {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}

	if err := fn(conv); err != nil {
		return nil, err
	}
	conv.UpdatedAt = s.now()

	return conv.Clone(), nil
}

// Find retrieves a conversation by id.
func (s *Store) Find(ctx context.Context, conversationID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrConversationNotFound
	}
	return conv.Clone(), nil
}

// FindOpenByCustomer returns the most recent non-terminal conversation for
// a customer on a channel, if any.
func (s *Store) FindOpenByCustomer(ctx context.Context, customerID, channelID string) (*model.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var best *model.Conversation
	for _, conv := range s.conversations {
		if conv.CustomerID != customerID || conv.ChannelID != channelID || conv.Status.Terminal() {
			continue
		}
		if best == nil || conv.UpdatedAt.After(best.UpdatedAt) {
			best = conv
		}
	}
	if best == nil {
		return nil, ErrConversationNotFound
	}
	return best.Clone(), nil
}

// List retrieves conversations matching the filter, newest first.
func (s *Store) List(ctx context.Context, filter model.ConversationFilter) *model.ListConversationsResponse {
	s.mu.RLock()
	var convs []*model.Conversation
	for _, conv := range s.conversations {
		if filter.Status != "" && conv.Status != filter.Status {
			continue
		}
		if filter.Channel != "" && conv.Channel != filter.Channel {
			continue
		}
		if filter.Search != "" && !matchesSearch(conv, s.messages[conv.ID], filter.Search) {
			continue
		}
		convs = append(convs, conv.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(convs, func(i, j int) bool {
		return convs[i].UpdatedAt.After(convs[j].UpdatedAt)
	})

	total := len(convs)
	start := filter.Offset
	if start > total {
		start = total
	}
	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	end := start + limit
	if end > total {
		end = total
	}

	return &model.ListConversationsResponse{
		Conversations: convs[start:end],
		Total:         total,
		HasMore:       end < total,
	}
}

// Messages returns the append-ordered messages of a conversation.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]*model.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.conversations[conversationID]; !ok {
		return nil, ErrConversationNotFound
	}

	msgs := s.messages[conversationID]
	out := make([]*model.Message, len(msgs))
	for i, m := range msgs {
		cp := *m
		out[i] = &cp
	}
	return out, nil
}

// AdvanceMessageStatus applies a monotonic message status update. Stale or
// duplicate receipts report changed=false without error; only a regression
// into failed after a successful send is rejected.
func (s *Store) AdvanceMessageStatus(ctx context.Context, conversationID, messageID string, status model.MessageStatus) (changed bool, err error) {
	lock := s.lockFor(conversationID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return false, ErrConversationNotFound
	}

	var msg *model.Message
	for _, m := range s.messages[conversationID] {
		if m.ID == messageID {
			msg = m
			break
		}
	}
	if msg == nil {
		return false, ErrMessageNotFound
	}

	if msg.Status == status {
		return false, nil
	}
	if !model.CanAdvance(msg.Status, status) {
		if status == model.MessageFailed {
			return false, fmt.Errorf("message %s cannot fail from %s", messageID, msg.Status)
		}
		// Stale receipt, ignore.
		return false, nil
	}

	msg.Status = status
	switch status {
	case model.MessageDelivered:
		msg.Delivered = true
	case model.MessageRead:
		msg.Delivered = true
		msg.Read = true
	}

	if conv.LastMessage != nil && conv.LastMessage.ID == messageID {
		last := *msg
		conv.LastMessage = &last
	}
	conv.UpdatedAt = s.now()

	return true, nil
}

func matchesSearch(conv *model.Conversation, msgs []*model.Message, search string) bool {
	needle := strings.ToLower(search)
	if strings.Contains(strings.ToLower(conv.Subject), needle) {
		return true
	}
	if strings.Contains(strings.ToLower(conv.CustomerID), needle) {
		return true
	}
	for _, m := range msgs {
		if strings.Contains(strings.ToLower(m.Text()), needle) {
			return true
		}
	}
	return false
}
