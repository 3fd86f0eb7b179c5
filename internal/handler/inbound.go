package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/engine"
	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/internal/pipeline"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

// InboundHandler receives normalized webhook deliveries from channel
// providers.
type InboundHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewInboundHandler creates a new inbound handler.
func NewInboundHandler(eng *engine.Engine, log *logger.Logger) *InboundHandler {
	return &InboundHandler{
		engine: eng,
		logger: log,
	}
}

// InboundRequest is the body of POST /api/v1/inbound/{channelID}. kind is
// "message" (default) or "receipt".
type InboundRequest struct {
	Kind              string          `json:"kind,omitempty"`
	ConversationID    string          `json:"conversation_id,omitempty"`
	CustomerID        string          `json:"customer_id,omitempty"`
	ProviderMessageID string          `json:"provider_message_id,omitempty"`
	Sender            model.Sender    `json:"sender"`
	Content           json.RawMessage `json:"content,omitempty"`
	Text              string          `json:"text,omitempty"`
	Timestamp         time.Time       `json:"timestamp,omitempty"`

	// Receipt fields, used when kind is "receipt".
	MessageID string              `json:"message_id,omitempty"`
	Status    model.MessageStatus `json:"status,omitempty"`
}

// Receive handles POST /api/v1/inbound/{channelID}
func (h *InboundHandler) Receive(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	channelID := chi.URLParam(r, "channelID")

	var req InboundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	in := pipeline.InboundMessage{
		ChannelID:      channelID,
		ConversationID: req.ConversationID,
		CustomerID:     req.CustomerID,
		ProviderID:     req.ProviderMessageID,
		Sender:         req.Sender,
		Timestamp:      req.Timestamp,
	}

	if req.Kind == "receipt" {
		in.Receipt = &pipeline.Receipt{
			MessageID: req.MessageID,
			Status:    req.Status,
		}
	} else {
		if in.Sender.Kind == "" {
			in.Sender.Kind = model.SenderCustomer
		}
		switch {
		case len(req.Content) > 0:
			content, err := model.UnmarshalContent(req.Content)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid content: "+err.Error())
				return
			}
			in.Content = content
		case req.Text != "":
			in.Content = model.TextContent{Body: req.Text}
		default:
			writeError(w, http.StatusBadRequest, "content is required")
			return
		}
	}

	msg, err := h.engine.Pipeline().Receive(ctx, in)
	if err != nil {
		if errors.Is(err, pipeline.ErrDuplicateDelivery) {
			// Redeliveries are acknowledged so the provider stops retrying.
			writeJSON(w, http.StatusOK, map[string]string{"status": "duplicate"})
			return
		}
		h.logger.Warn("inbound rejected",
			zap.String("channel_id", channelID),
			zap.Error(err),
		)
		writeDomainError(w, err)
		return
	}

	if msg == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
		return
	}
	writeJSON(w, http.StatusAccepted, msg)
}
