package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/omadligroup/ai-agent-api/internal/middleware"
	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/pkg/metrics"
)

const streamHeartbeatInterval = 15 * time.Second

// StreamMessage handles POST /api/v1/chat/stream. The assistant
// response is delivered as SSE frames typed delta, sources, complete and
// error.
func (h *ChatHandler) StreamMessage(w http.ResponseWriter, r *http.Request) {
	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	chunks, err := h.chatService.StreamMessage(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	heartbeat := time.NewTicker(streamHeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			h.logger.Debug("stream client disconnected",
				zap.String("correlation_id", middleware.GetCorrelationID(r.Context())))
			return
		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", map[string]int64{"ts": time.Now().Unix()})
		case chunk, open := <-chunks:
			if !open {
				return
			}
			sendSSEEvent(w, flusher, chunk.Type, chunk)
		}
	}
}
