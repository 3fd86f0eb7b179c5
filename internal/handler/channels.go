package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/channel"
	"github.com/omnidesk/conversation-engine/internal/engine"
	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

// AdapterFactory builds the outbound adapter for a newly registered
// channel.
type AdapterFactory func(ch model.Channel) (channel.Adapter, error)

// ChannelHandler handles channel configuration endpoints.
type ChannelHandler struct {
	engine   *engine.Engine
	adapters AdapterFactory
	logger   *logger.Logger
}

// NewChannelHandler creates a new channel handler.
func NewChannelHandler(eng *engine.Engine, adapters AdapterFactory, log *logger.Logger) *ChannelHandler {
	return &ChannelHandler{
		engine:   eng,
		adapters: adapters,
		logger:   log,
	}
}

// RegisterChannelRequest is the body of POST /api/v1/channels.
type RegisterChannelRequest struct {
	model.Channel
	Token string `json:"token,omitempty"`
}

// Register handles POST /api/v1/channels
func (h *ChannelHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterChannelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ch := req.Channel
	ch.Token = req.Token

	adapter, err := h.adapters(ch)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.engine.Registry().Register(ch, adapter); err != nil {
		writeDomainError(w, err)
		return
	}

	registered, err := h.engine.Registry().Get(ch.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, registered)
}

// List handles GET /api/v1/channels
func (h *ChannelHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"channels": h.engine.Registry().List(),
	})
}

// Get handles GET /api/v1/channels/{id}
func (h *ChannelHandler) Get(w http.ResponseWriter, r *http.Request) {
	ch, err := h.engine.Registry().Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}

// Reconnect handles POST /api/v1/channels/{id}/reconnect
func (h *ChannelHandler) Reconnect(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "id")

	if err := h.engine.Registry().Reconnect(r.Context(), channelID); err != nil {
		h.logger.Warn("reconnect failed", zap.String("channel_id", channelID), zap.Error(err))
		writeDomainError(w, err)
		return
	}

	ch, err := h.engine.Registry().Get(channelID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ch)
}
