package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/omnidesk/conversation-engine/internal/engine"
	"github.com/omnidesk/conversation-engine/internal/model"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

// AgentHandler handles agent roster endpoints.
type AgentHandler struct {
	engine          *engine.Engine
	defaultCapacity int
	logger          *logger.Logger
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(eng *engine.Engine, defaultCapacity int, log *logger.Logger) *AgentHandler {
	return &AgentHandler{
		engine:          eng,
		defaultCapacity: defaultCapacity,
		logger:          log,
	}
}

// List handles GET /api/v1/agents
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": h.engine.Pool().List(),
	})
}

// Register handles POST /api/v1/agents
func (h *AgentHandler) Register(w http.ResponseWriter, r *http.Request) {
	var agent model.Agent
	if err := json.NewDecoder(r.Body).Decode(&agent); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if agent.ID == "" {
		writeError(w, http.StatusBadRequest, "agent id is required")
		return
	}
	if agent.Status == "" {
		agent.Status = model.AgentOffline
	}
	if agent.Capacity == 0 {
		agent.Capacity = h.defaultCapacity
	}

	if err := h.engine.RegisterAgent(r.Context(), agent); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, agent)
}

// SetStatusRequest is the body of PUT /api/v1/agents/{id}/status.
type SetStatusRequest struct {
	Status model.AgentStatus `json:"status"`
}

// SetStatus handles PUT /api/v1/agents/{id}/status
func (h *AgentHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	agentID := chi.URLParam(r, "id")

	var req SetStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	agent, err := h.engine.SetAgentStatus(r.Context(), agentID, req.Status)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, agent)
}
