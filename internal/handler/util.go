package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/omnidesk/conversation-engine/internal/agentpool"
	"github.com/omnidesk/conversation-engine/internal/channel"
	"github.com/omnidesk/conversation-engine/internal/escalate"
	"github.com/omnidesk/conversation-engine/internal/store"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeDomainError maps domain errors onto HTTP statuses.
func writeDomainError(w http.ResponseWriter, err error) {
	var illegal *store.IllegalTransitionError
	var invalidCfg *channel.InvalidChannelConfigError

	switch {
	case errors.Is(err, store.ErrConversationNotFound),
		errors.Is(err, store.ErrMessageNotFound),
		errors.Is(err, channel.ErrChannelNotFound),
		errors.Is(err, agentpool.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrConversationClosed),
		errors.Is(err, channel.ErrChannelDisabled),
		errors.Is(err, escalate.ErrTerminalConversation):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &illegal):
		writeError(w, http.StatusConflict, err.Error())
	case errors.As(err, &invalidCfg),
		errors.Is(err, agentpool.ErrInvalidAgentStatus):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
