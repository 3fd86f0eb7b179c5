package handler

import (
	"net/http"
	"time"

	"github.com/omnidesk/conversation-engine/internal/engine"
	"github.com/omnidesk/conversation-engine/pkg/logger"
)

// StatsHandler handles the communication stats endpoint.
type StatsHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewStatsHandler creates a new stats handler.
func NewStatsHandler(eng *engine.Engine, log *logger.Logger) *StatsHandler {
	return &StatsHandler{
		engine: eng,
		logger: log,
	}
}

// Get handles GET /api/v1/stats?period=24h
func (h *StatsHandler) Get(w http.ResponseWriter, r *http.Request) {
	var period time.Duration
	if p := r.URL.Query().Get("period"); p != "" {
		parsed, err := time.ParseDuration(p)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "invalid period")
			return
		}
		period = parsed
	}

	writeJSON(w, http.StatusOK, h.engine.GetStats(r.Context(), period))
}
