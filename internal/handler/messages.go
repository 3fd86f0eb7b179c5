package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/engine"
	"github.com/omnidesk/conversation-engine/internal/middleware"
	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(eng *engine.Engine, log *logger.Logger) *MessageHandler {
	return &MessageHandler{
		engine: eng,
		logger: log,
	}
}

// SendMessageRequest is the body of POST /api/v1/conversations/{id}/messages.
// Either text or a tagged content envelope must be set.
type SendMessageRequest struct {
	Text    string          `json:"text,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`
}

// Send handles POST /api/v1/conversations/{id}/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var content model.Content
	switch {
	case len(req.Content) > 0:
		c, err := model.UnmarshalContent(req.Content)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid content: "+err.Error())
			return
		}
		content = c
	default:
		if err := middleware.ValidateMessageBody(req.Text); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		content = model.TextContent{Body: req.Text}
	}

	sender := model.Sender{
		Kind: model.SenderAgent,
		ID:   middleware.GetUserID(ctx),
	}

	msg, err := h.engine.Pipeline().Send(ctx, conversationID, content, sender)
	if err != nil {
		h.logger.Warn("send rejected",
			zap.String("conversation_id", conversationID),
			zap.Error(err),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, msg)
}

// List handles GET /api/v1/conversations/{id}/messages
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateConversationID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	msgs, err := h.engine.Store().Messages(ctx, conversationID)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"messages": msgs,
		"total":    len(msgs),
	})
}
