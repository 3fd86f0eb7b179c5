package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// SenderKind identifies who produced a message.
type SenderKind string

const (
	SenderCustomer SenderKind = "customer"
	SenderAgent    SenderKind = "agent"
	SenderBot      SenderKind = "bot"
	SenderSystem   SenderKind = "system"
)

// Sender is the originator of a message.
type Sender struct {
	Kind SenderKind `json:"kind"`
	ID   string     `json:"id,omitempty"`
	Name string     `json:"name,omitempty"`
}

// MessageKind is the media type of a message.
type MessageKind string

const (
	KindText        MessageKind = "text"
	KindImage       MessageKind = "image"
	KindAudio       MessageKind = "audio"
	KindVideo       MessageKind = "video"
	KindDocument    MessageKind = "document"
	KindLocation    MessageKind = "location"
	KindTemplate    MessageKind = "template"
	KindInteractive MessageKind = "interactive"
)

// MessageStatus is the delivery state of a message.
type MessageStatus string

const (
	MessageEnqueued  MessageStatus = "enqueued"
	MessageSending   MessageStatus = "sending"
	MessageSent      MessageStatus = "sent"
	MessageDelivered MessageStatus = "delivered"
	MessageRead      MessageStatus = "read"
	MessageFailed    MessageStatus = "failed"
)

var messageStatusRank = map[MessageStatus]int{
	MessageEnqueued:  0,
	MessageSending:   1,
	MessageSent:      2,
	MessageDelivered: 3,
	MessageRead:      4,
}

// Rank orders delivery states for monotonicity checks. failed has no rank.
func (s MessageStatus) Rank() int {
	return messageStatusRank[s]
}

// CanAdvance reports whether a message may move from its current status to the
// given one. Equal or earlier states are stale receipts, not advances.
func CanAdvance(from, to MessageStatus) bool {
	if from == MessageFailed {
		return false
	}
	if to == MessageFailed {
		return from == MessageEnqueued || from == MessageSending
	}
	return to.Rank() > from.Rank()
}

// ContentType tags the variants of message content.
type ContentType string

const (
	ContentText        ContentType = "text"
	ContentAttachment  ContentType = "attachment"
	ContentTemplate    ContentType = "template"
	ContentInteractive ContentType = "interactive"
	ContentLocation    ContentType = "location"
)

// Content is the closed set of message payload variants. Consumers switch on
// the concrete type instead of null-checking optional fields.
type Content interface {
	ContentType() ContentType
}

// TextContent is plain text.
type TextContent struct {
	Body string `json:"body"`
}

func (TextContent) ContentType() ContentType { return ContentText }

// AttachmentContent references uploaded media.
type AttachmentContent struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	Caption  string `json:"caption,omitempty"`
}

func (AttachmentContent) ContentType() ContentType { return ContentAttachment }

// TemplateContent references a pre-approved channel template.
type TemplateContent struct {
	Name   string            `json:"name"`
	Params map[string]string `json:"params,omitempty"`
}

func (TemplateContent) ContentType() ContentType { return ContentTemplate }

// InteractiveContent is a prompt with reply buttons.
type InteractiveContent struct {
	Prompt  string   `json:"prompt"`
	Buttons []string `json:"buttons"`
}

func (InteractiveContent) ContentType() ContentType { return ContentInteractive }

// LocationContent is a geographic point.
type LocationContent struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Label     string  `json:"label,omitempty"`
}

func (LocationContent) ContentType() ContentType { return ContentLocation }

type contentEnvelope struct {
	Type ContentType     `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MarshalContent encodes a content variant with its type tag.
func MarshalContent(c Content) (json.RawMessage, error) {
	if c == nil {
		return json.RawMessage("null"), nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return json.Marshal(contentEnvelope{Type: c.ContentType(), Data: data})
}

// UnmarshalContent decodes a tagged content envelope.
func UnmarshalContent(raw json.RawMessage) (Content, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	var env contentEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}
	var c Content
	switch env.Type {
	case ContentText:
		c = &TextContent{}
	case ContentAttachment:
		c = &AttachmentContent{}
	case ContentTemplate:
		c = &TemplateContent{}
	case ContentInteractive:
		c = &InteractiveContent{}
	case ContentLocation:
		c = &LocationContent{}
	default:
		return nil, fmt.Errorf("unknown content type %q", env.Type)
	}
	if err := json.Unmarshal(env.Data, c); err != nil {
		return nil, err
	}
	switch v := c.(type) {
	case *TextContent:
		return *v, nil
	case *AttachmentContent:
		return *v, nil
	case *TemplateContent:
		return *v, nil
	case *InteractiveContent:
		return *v, nil
	case *LocationContent:
		return *v, nil
	}
	return c, nil
}

// Message is one unit of content within a conversation.
type Message struct {
	ID             string        `json:"id"`
	ConversationID string        `json:"conversation_id"`
	Sender         Sender        `json:"sender"`
	Content        Content       `json:"-"`
	Channel        ChannelKind   `json:"channel"`
	Kind           MessageKind   `json:"kind"`
	Status         MessageStatus `json:"status"`
	Timestamp      time.Time     `json:"timestamp"`
	Read           bool          `json:"read"`
	Delivered      bool          `json:"delivered"`
}

// Text returns the text body when the content is textual, else "".
func (m *Message) Text() string {
	if t, ok := m.Content.(TextContent); ok {
		return t.Body
	}
	return ""
}

type messageJSON struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversation_id"`
	Sender         Sender          `json:"sender"`
	Content        json.RawMessage `json:"content"`
	Channel        ChannelKind     `json:"channel"`
	Kind           MessageKind     `json:"kind"`
	Status         MessageStatus   `json:"status"`
	Timestamp      time.Time       `json:"timestamp"`
	Read           bool            `json:"read"`
	Delivered      bool            `json:"delivered"`
}

// MarshalJSON encodes the message with its tagged content envelope.
func (m Message) MarshalJSON() ([]byte, error) {
	content, err := MarshalContent(m.Content)
	if err != nil {
		return nil, err
	}
	return json.Marshal(messageJSON{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		Sender:         m.Sender,
		Content:        content,
		Channel:        m.Channel,
		Kind:           m.Kind,
		Status:         m.Status,
		Timestamp:      m.Timestamp,
		Read:           m.Read,
		Delivered:      m.Delivered,
	})
}

// UnmarshalJSON decodes the message and its tagged content envelope.
func (m *Message) UnmarshalJSON(data []byte) error {
	var mj messageJSON
	if err := json.Unmarshal(data, &mj); err != nil {
		return err
	}
	content, err := UnmarshalContent(mj.Content)
	if err != nil {
		return err
	}
	*m = Message{
		ID:             mj.ID,
		ConversationID: mj.ConversationID,
		Sender:         mj.Sender,
		Content:        content,
		Channel:        mj.Channel,
		Kind:           mj.Kind,
		Status:         mj.Status,
		Timestamp:      mj.Timestamp,
		Read:           mj.Read,
		Delivered:      mj.Delivered,
	}
	return nil
}
