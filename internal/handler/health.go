package handler

import (
	"net/http"
	"time"

	natsclient "github.com/omadligroup/ai-agent-api/internal/nats"
	"github.com/omadligroup/ai-agent-api/internal/scheduler"
	"github.com/omadligroup/ai-agent-api/internal/store"
)

// HealthHandler handles health check endpoints.
type HealthHandler struct {
	db         *store.Database
	natsClient *natsclient.Client
	sched      *scheduler.Scheduler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(db *store.Database, natsClient *natsclient.Client, sched *scheduler.Scheduler) *HealthHandler {
	return &HealthHandler{
		db:         db,
		natsClient: natsClient,
		sched:      sched,
	}
}

// Health handles GET /health
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
	})
}

// Ready handles GET /ready
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	if err := h.db.Ping(); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "database unavailable",
		})
		return
	}
	if h.natsClient == nil || !h.natsClient.IsConnected() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "not ready",
			"reason": "NATS not connected",
		})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status": "ready",
	})
}

// Scheduler handles GET /api/v1/analytics/scheduler, reporting the
// background job registry.
func (h *HealthHandler) Scheduler(w http.ResponseWriter, r *http.Request) {
	jobs := 0
	if h.sched != nil {
		jobs = h.sched.Jobs()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"running": h.sched != nil,
		"jobs":    jobs,
	})
}

var processStart = time.Now()

// System handles GET /api/v1/analytics/health, a deeper check than the
// unauthenticated probes.
func (h *HealthHandler) System(w http.ResponseWriter, r *http.Request) {
	dbOK := h.db.Ping() == nil
	natsOK := h.natsClient != nil && h.natsClient.IsConnected()

	errorsLastHour := 0
	if dbOK {
		if summary, err := h.db.ErrorSummary(time.Now()); err == nil {
			errorsLastHour = summary.LastHour
		}
	}

	status := "healthy"
	code := http.StatusOK
	if !dbOK {
		status = "unhealthy"
		code = http.StatusServiceUnavailable
	} else if !natsOK {
		status = "degraded"
	}

	writeJSON(w, code, map[string]any{
		"status":           status,
		"database":         dbOK,
		"nats":             natsOK,
		"errors_last_hour": errorsLastHour,
		"uptime_seconds":   int(time.Since(processStart).Seconds()),
	})
}
