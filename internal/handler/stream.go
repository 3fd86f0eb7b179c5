package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/omnidesk/conversation-engine/internal/bus"
	"github.com/omnidesk/conversation-engine/internal/engine"
	"github.com/omnidesk/conversation-engine/internal/middleware"
	"github.com/omnidesk/conversation-engine/pkg/logger"
	"github.com/omnidesk/conversation-engine/pkg/metrics"
)

// StreamHandler serves the live event feed over SSE.
type StreamHandler struct {
	engine    *engine.Engine
	queueSize int
	logger    *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(eng *engine.Engine, queueSize int, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		engine:    eng,
		queueSize: queueSize,
		logger:    log,
	}
}

// Events handles GET /api/v1/events
// Supports ?conversation_id=X to filter to one conversation.
func (h *StreamHandler) Events(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	conversationID := r.URL.Query().Get("conversation_id")

	if conversationID != "" {
		if err := middleware.ValidateConversationID(conversationID); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		if _, err := h.engine.Store().Find(ctx, conversationID); err != nil {
			writeDomainError(w, err)
			return
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.SSEConnectionsActive.Inc()
	defer metrics.SSEConnectionsActive.Dec()

	events, cancel := h.engine.Events().Subscribe(
		"sse:"+middleware.GetCorrelationID(ctx),
		h.queueSize,
		bus.DropOldest,
	)
	defer cancel()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_id": conversationID,
	})

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			h.logger.Info("SSE client disconnected",
				zap.String("conversation_id", conversationID),
			)
			return

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]interface{}{
				"timestamp": time.Now(),
			})

		case ev, open := <-events:
			if !open {
				return
			}
			if conversationID != "" && ev.ConversationID != conversationID {
				continue
			}
			sendSSEEvent(w, flusher, string(ev.Type), ev)
		}
	}
}

// sendSSEEvent writes a single SSE event frame.
func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) {
	payload, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}
