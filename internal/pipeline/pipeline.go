// Package pipeline is the single entry and exit point for message traffic.
// It orchestrates the store, classifier, escalation policy, assignment and
// channel adapters.
package pipeline

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/assign"
	"github.com/omnidesk/conversation-engine/internal/bus"
	"github.com/omnidesk/conversation-engine/internal/channel"
	"github.com/omnidesk/conversation-engine/internal/classify"
	"github.com/omnidesk/conversation-engine/internal/dedupe"
	"github.com/omnidesk/conversation-engine/internal/escalate"
	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/internal/store"
	"github.com/omnidesk/conversation-engine/pkg/logger"
	"github.com/omnidesk/conversation-engine/pkg/metrics"
)

// ErrDuplicateDelivery marks a webhook redelivery that was already
// processed.
var ErrDuplicateDelivery = errors.New("duplicate delivery")

// Config holds pipeline retry settings.
type Config struct {
	// SendMaxAttempts bounds adapter dispatch attempts per message.
	SendMaxAttempts int

	// SendInitialInterval seeds the exponential backoff between attempts.
	SendInitialInterval time.Duration

	// SendTimeout bounds one whole dispatch including retries.
	SendTimeout time.Duration
}

// Responder synthesizes automatic replies for channels with AI hand-off
// enabled.
type Responder interface {
	Reply(ctx context.Context, conv *model.Conversation, history []*model.Message) (string, error)
}

// Receipt is an asynchronous delivery or read acknowledgment from a
// channel.
type Receipt struct {
	MessageID string
	Status    model.MessageStatus
}

// InboundMessage is a normalized webhook delivery.
type InboundMessage struct {
	ChannelID      string
	ConversationID string
	CustomerID     string
	ProviderID     string
	Sender         model.Sender
	Kind           model.MessageKind
	Content        model.Content
	Timestamp      time.Time

	// Receipt, when set, makes this delivery a status update instead of a
	// new message.
	Receipt *Receipt
}

// Pipeline orchestrates message traffic.
type Pipeline struct {
	store      *store.Store
	registry   *channel.Registry
	classifier classify.Classifier
	escalator  *escalate.Policy
	assigner   *assign.Assigner
	events     *bus.Bus
	responder  Responder
	deduper    dedupe.Deduper
	cfg        Config
	logger     *logger.Logger
	now        func() time.Time

	wg sync.WaitGroup
}

// New creates a pipeline. responder and deduper may be nil.
func New(
	st *store.Store,
	registry *channel.Registry,
	classifier classify.Classifier,
	escalator *escalate.Policy,
	assigner *assign.Assigner,
	events *bus.Bus,
	responder Responder,
	deduper dedupe.Deduper,
	cfg Config,
	log *logger.Logger,
) *Pipeline {
	if cfg.SendMaxAttempts <= 0 {
		cfg.SendMaxAttempts = 3
	}
	if cfg.SendInitialInterval <= 0 {
		cfg.SendInitialInterval = 200 * time.Millisecond
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 15 * time.Second
	}
	return &Pipeline{
		store:      st,
		registry:   registry,
		classifier: classifier,
		escalator:  escalator,
		assigner:   assigner,
		events:     events,
		responder:  responder,
		deduper:    deduper,
		cfg:        cfg,
		logger:     log,
		now:        time.Now,
	}
}

// Receive ingests one inbound delivery. The message is acknowledged as soon
// as it is appended; classification and its effects run asynchronously.
func (p *Pipeline) Receive(ctx context.Context, in InboundMessage) (*model.Message, error) {
	if p.deduper != nil && in.ProviderID != "" {
		seen, err := p.deduper.Seen(ctx, in.ChannelID+":"+in.ProviderID)
		if err != nil {
			// Dedupe store trouble must not stop traffic.
			p.logger.Warn("dedupe check failed", zap.Error(err))
		} else if seen {
			return nil, ErrDuplicateDelivery
		}
	}

	if in.Receipt != nil {
		return nil, p.applyReceipt(ctx, in)
	}

	ch, err := p.registry.Get(in.ChannelID)
	if err != nil {
		return nil, err
	}

	conv, err := p.resolveConversation(ctx, in, ch.Kind)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		Sender:    in.Sender,
		Content:   in.Content,
		Channel:   ch.Kind,
		Kind:      kindFor(in.Kind, in.Content),
		Status:    model.MessageEnqueued,
		Timestamp: in.Timestamp,
	}
	conv, err = p.store.AppendMessage(ctx, conv.ID, msg)
	if err != nil {
		return nil, err
	}

	p.registry.RecordReceived(in.ChannelID)
	metrics.MessagesReceivedTotal.WithLabelValues(string(ch.Kind)).Inc()

	p.events.Publish(model.Event{
		Type:           model.EventMessageReceived,
		At:             p.now(),
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		ChannelID:      in.ChannelID,
		Channel:        ch.Kind,
	})

	if conv.AssignedAgentID == "" && !conv.Status.Terminal() {
		convID := conv.ID
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.assigner.Assign(context.Background(), convID)
		}()
	}

	if in.Sender.Kind == model.SenderCustomer {
		p.wg.Add(1)
		go func() {
			defer p.wg.Done()
			p.classifyAndReact(conv.ID, msg)
		}()
	}

	return msg, nil
}

func (p *Pipeline) resolveConversation(ctx context.Context, in InboundMessage, kind model.ChannelKind) (*model.Conversation, error) {
	if in.ConversationID != "" {
		return p.store.Find(ctx, in.ConversationID)
	}
	if conv, err := p.store.FindOpenByCustomer(ctx, in.CustomerID, in.ChannelID); err == nil {
		return conv, nil
	}
	return p.store.Create(ctx, in.CustomerID, in.ChannelID, kind, nil)
}

func (p *Pipeline) applyReceipt(ctx context.Context, in InboundMessage) error {
	conv, err := p.store.Find(ctx, in.ConversationID)
	if err != nil {
		return err
	}
	changed, err := p.store.AdvanceMessageStatus(ctx, conv.ID, in.Receipt.MessageID, in.Receipt.Status)
	if err != nil {
		return err
	}
	if changed {
		p.events.Publish(model.Event{
			Type:           model.EventMessageStatusChanged,
			At:             p.now(),
			ConversationID: conv.ID,
			MessageID:      in.Receipt.MessageID,
			Channel:        conv.Channel,
			Status:         string(in.Receipt.Status),
		})
	}
	return nil
}

// classifyAndReact runs off the receive critical path: classification,
// escalation and the optional auto-response.
func (p *Pipeline) classifyAndReact(conversationID string, msg *model.Message) {
	ctx := context.Background()

	cls, err := p.classifier.Classify(ctx, msg.Text())
	if err != nil {
		// The timeout wrapper already degrades to neutral; any other
		// classifier failure is absorbed the same way.
		cls = classify.Neutral()
	}

	if _, err := p.store.Update(ctx, conversationID, func(c *model.Conversation) error {
		switch cls.Sentiment.Polarity {
		case classify.PolarityPositive:
			c.Score += cls.Sentiment.Intensity
		case classify.PolarityNegative:
			c.Score -= cls.Sentiment.Intensity
		}
		return nil
	}); err != nil {
		p.logger.Warn("score update failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}

	if p.escalator.Evaluate(ctx, conversationID, cls) {
		return
	}

	p.autoRespond(ctx, conversationID)
}

func (p *Pipeline) autoRespond(ctx context.Context, conversationID string) {
	conv, err := p.store.Find(ctx, conversationID)
	if err != nil || conv.Status.Terminal() {
		return
	}

	automation, ok := p.registry.Automation(conv.ChannelID)
	if !ok || !automation.AutoReply {
		return
	}

	var reply string
	switch {
	case !automation.BusinessHours.Contains(p.now()):
		reply = automation.OutOfHoursText
	case automation.AIHandoffEnabled && p.responder != nil:
		history, err := p.store.Messages(ctx, conversationID)
		if err != nil {
			return
		}
		reply, err = p.responder.Reply(ctx, conv, history)
		if err != nil {
			p.logger.Warn("auto-response generation failed",
				zap.String("conversation_id", conversationID),
				zap.Error(err),
			)
			return
		}
	case conv.MessageCount <= 1:
		reply = automation.WelcomeText
	}

	if reply == "" {
		return
	}

	if _, err := p.Send(ctx, conversationID, model.TextContent{Body: reply}, model.Sender{Kind: model.SenderBot, Name: "Assistant"}); err != nil {
		p.logger.Warn("auto-response send failed",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
	}
}

// Send constructs and dispatches an outbound message. The adapter call runs
// asynchronously so no conversation lock is held across network I/O; the
// returned message is in status sending.
func (p *Pipeline) Send(ctx context.Context, conversationID string, content model.Content, sender model.Sender) (*model.Message, error) {
	conv, err := p.store.Find(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv.Status == model.ConversationClosed {
		return nil, store.ErrConversationClosed
	}

	adapter, err := p.registry.AdapterFor(conv.ChannelID)
	if err != nil {
		return nil, err
	}

	msg := &model.Message{
		Sender:  sender,
		Content: content,
		Channel: conv.Channel,
		Kind:    kindFor("", content),
		Status:  model.MessageSending,
	}
	if _, err := p.store.AppendMessage(ctx, conversationID, msg); err != nil {
		return nil, err
	}

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.dispatch(conv, msg, adapter)
	}()

	return msg, nil
}

// dispatch delivers one message with bounded exponential backoff on
// transient errors, then records the terminal status.
func (p *Pipeline) dispatch(conv *model.Conversation, msg *model.Message, adapter channel.Adapter) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.SendTimeout)
	defer cancel()

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = p.cfg.SendInitialInterval
	policy := backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(p.cfg.SendMaxAttempts-1)),
		ctx,
	)

	err := backoff.Retry(func() error {
		_, sendErr := adapter.Send(ctx, msg)
		if sendErr == nil {
			metrics.RecordAdapterSend(string(msg.Channel), "ok")
			return nil
		}
		metrics.RecordAdapterSend(string(msg.Channel), "error")
		if channel.IsTransient(sendErr) {
			return sendErr
		}
		return backoff.Permanent(sendErr)
	}, policy)

	recordCtx := context.Background()
	if err != nil {
		p.logger.Error("message dispatch failed",
			zap.String("conversation_id", conv.ID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
		if _, serr := p.store.AdvanceMessageStatus(recordCtx, conv.ID, msg.ID, model.MessageFailed); serr != nil {
			p.logger.Warn("failed status update failed", zap.Error(serr))
		}
		p.registry.RecordSend(conv.ChannelID, false)
		metrics.MessagesSentTotal.WithLabelValues(string(msg.Channel), "failed").Inc()
		p.events.Publish(model.Event{
			Type:           model.EventMessageFailed,
			At:             p.now(),
			ConversationID: conv.ID,
			MessageID:      msg.ID,
			ChannelID:      conv.ChannelID,
			Channel:        msg.Channel,
			Reason:         err.Error(),
		})
		p.escalator.RecordSendFailure(recordCtx, conv.ID)
		return
	}

	if _, serr := p.store.AdvanceMessageStatus(recordCtx, conv.ID, msg.ID, model.MessageSent); serr != nil {
		p.logger.Warn("sent status update failed", zap.Error(serr))
	}
	p.registry.RecordSend(conv.ChannelID, true)
	metrics.MessagesSentTotal.WithLabelValues(string(msg.Channel), "sent").Inc()
	p.events.Publish(model.Event{
		Type:           model.EventMessageSent,
		At:             p.now(),
		ConversationID: conv.ID,
		MessageID:      msg.ID,
		ChannelID:      conv.ChannelID,
		Channel:        msg.Channel,
		Status:         string(model.MessageSent),
	})
}

// Drain waits for in-flight asynchronous work, up to the context deadline.
func (p *Pipeline) Drain(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func kindFor(declared model.MessageKind, content model.Content) model.MessageKind {
	if declared != "" {
		return declared
	}
	switch c := content.(type) {
	case model.TextContent:
		return model.KindText
	case model.AttachmentContent:
		switch {
		case strings.HasPrefix(c.MimeType, "image/"):
			return model.KindImage
		case strings.HasPrefix(c.MimeType, "audio/"):
			return model.KindAudio
		case strings.HasPrefix(c.MimeType, "video/"):
			return model.KindVideo
		default:
			return model.KindDocument
		}
	case model.TemplateContent:
		return model.KindTemplate
	case model.InteractiveContent:
		return model.KindInteractive
	case model.LocationContent:
		return model.KindLocation
	}
	return model.KindText
}
