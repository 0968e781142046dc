package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/omadligroup/ai-agent-api/internal/middleware"
	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/service"
	"github.com/omadligroup/ai-agent-api/internal/store"
	"github.com/omadligroup/ai-agent-api/pkg/logger"
)

// AnalyticsHandler handles event tracking, dashboards, reports and error
// logging endpoints.
type AnalyticsHandler struct {
	analyticsService *service.AnalyticsService
	logger           *logger.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(analyticsService *service.AnalyticsService, log *logger.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		analyticsService: analyticsService,
		logger:           log,
	}
}

// Track handles POST /api/v1/analytics/events/track
func (h *AnalyticsHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req model.TrackEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	event, err := h.analyticsService.Track(
		r.Context(),
		middleware.GetUserID(r.Context()),
		middleware.GetSessionID(r.Context()),
		r.RemoteAddr,
		r.UserAgent(),
		&req,
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, event)
}

// Events handles GET /api/v1/analytics/events (admin only)
func (h *AnalyticsHandler) Events(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	f := store.EventFilter{
		EventType: model.EventType(r.URL.Query().Get("event_type")),
		UserID:    r.URL.Query().Get("user_id"),
		Limit:     limit,
		Offset:    offset,
	}
	if v := r.URL.Query().Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "since must be RFC3339")
			return
		}
		f.Since = &t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "until must be RFC3339")
			return
		}
		f.Until = &t
	}

	events, total, err := h.analyticsService.Events(r.Context(), f)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if events == nil {
		events = []model.AnalyticsEvent{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"events": events,
		"total":  total,
	})
}

// Activity handles GET /api/v1/analytics/activity
func (h *AnalyticsHandler) Activity(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")
	for _, d := range []string{startDate, endDate} {
		if d == "" {
			continue
		}
		if err := middleware.ValidateDate(d); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	activity, err := h.analyticsService.Activity(r.Context(), middleware.GetUserID(r.Context()), startDate, endDate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if activity == nil {
		activity = []model.UserActivity{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"activity": activity})
}

// Dashboard handles GET /api/v1/analytics/dashboard (admin only)
func (h *AnalyticsHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	counts, err := h.analyticsService.Dashboard(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, counts)
}

// SystemMetrics handles GET /api/v1/analytics/metrics (admin only)
func (h *AnalyticsHandler) SystemMetrics(w http.ResponseWriter, r *http.Request) {
	startDate := r.URL.Query().Get("start_date")
	endDate := r.URL.Query().Get("end_date")
	for _, d := range []string{startDate, endDate} {
		if d == "" {
			continue
		}
		if err := middleware.ValidateDate(d); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	rows, err := h.analyticsService.SystemMetrics(r.Context(), startDate, endDate)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if rows == nil {
		rows = []model.SystemMetrics{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"metrics": rows})
}

// CreateReport handles POST /api/v1/analytics/reports
func (h *AnalyticsHandler) CreateReport(w http.ResponseWriter, r *http.Request) {
	var req model.CreateReportRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	report, err := h.analyticsService.CreateReport(r.Context(), middleware.GetUserID(r.Context()), &req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, report)
}

// Reports handles GET /api/v1/analytics/reports. Admins see every
// report, everyone else only their own.
func (h *AnalyticsHandler) Reports(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)

	var (
		reports []model.Report
		err     error
	)
	if middleware.GetRole(r.Context()) == model.RoleAdmin {
		reports, err = h.analyticsService.AllReports(r.Context(), limit, offset)
	} else {
		reports, err = h.analyticsService.Reports(r.Context(), middleware.GetUserID(r.Context()), limit, offset)
	}
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if reports == nil {
		reports = []model.Report{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"reports": reports})
}

// Report handles GET /api/v1/analytics/reports/{id}
func (h *AnalyticsHandler) Report(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.analyticsService.Report(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// DownloadReport handles GET /api/v1/analytics/reports/{id}/download
func (h *AnalyticsHandler) DownloadReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.analyticsService.Report(r.Context(), middleware.GetUserID(r.Context()), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if report.Status != model.ReportCompleted || report.FilePath == "" {
		writeError(w, http.StatusConflict, "report is not ready")
		return
	}

	f, err := os.Open(report.FilePath)
	if err != nil {
		writeError(w, http.StatusNotFound, "report artifact missing")
		return
	}
	defer f.Close()

	contentType := "application/json"
	if report.Format == model.FormatCSV {
		contentType = "text/csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filepath.Base(report.FilePath)))
	http.ServeContent(w, r, filepath.Base(report.FilePath), report.CreatedAt, f)
}

// DeleteReport handles DELETE /api/v1/analytics/reports/{id}
func (h *AnalyticsHandler) DeleteReport(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.analyticsService.DeleteReport(r.Context(), middleware.GetUserID(r.Context()), id); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "report deleted"})
}

// LogError handles POST /api/v1/analytics/errors/log
func (h *AnalyticsHandler) LogError(w http.ResponseWriter, r *http.Request) {
	var req model.LogErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	entry, err := h.analyticsService.LogError(
		r.Context(),
		middleware.GetUserID(r.Context()),
		r.RemoteAddr,
		r.UserAgent(),
		&req,
	)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ErrorLogs handles GET /api/v1/analytics/errors (admin only)
func (h *AnalyticsHandler) ErrorLogs(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	level := model.ErrorLevel(r.URL.Query().Get("level"))
	unresolvedOnly := r.URL.Query().Get("unresolved") == "true"

	logs, err := h.analyticsService.ErrorLogs(r.Context(), level, unresolvedOnly, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	if logs == nil {
		logs = []model.ErrorLog{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"errors": logs})
}

// ResolveError handles POST /api/v1/analytics/errors/{id}/resolve (admin only)
func (h *AnalyticsHandler) ResolveError(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.ResolveErrorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.analyticsService.ResolveError(r.Context(), id, middleware.GetUserID(r.Context()), req.Notes); err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "error resolved"})
}

// ActivityStats handles GET /api/v1/analytics/activity/stats
func (h *AnalyticsHandler) ActivityStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analyticsService.ActivityStats(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// GenerateMetrics handles POST /api/v1/analytics/metrics/generate (admin only)
func (h *AnalyticsHandler) GenerateMetrics(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC()
	if s := r.URL.Query().Get("date"); s != "" {
		parsed, err := time.Parse("2006-01-02", s)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	m, err := h.analyticsService.GenerateMetrics(r.Context(), day)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

// GetErrorLog handles GET /api/v1/analytics/errors/{id} (admin only)
func (h *AnalyticsHandler) GetErrorLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	entry, err := h.analyticsService.ErrorLogEntry(r.Context(), id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

// ErrorStats handles GET /api/v1/analytics/errors/stats (admin only)
func (h *AnalyticsHandler) ErrorStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analyticsService.ErrorStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// SubscriptionStats handles GET /api/v1/analytics/subscription-stats (admin only)
func (h *AnalyticsHandler) SubscriptionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analyticsService.SubscriptionStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// PaymentStats handles GET /api/v1/analytics/payment-stats (admin only)
func (h *AnalyticsHandler) PaymentStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analyticsService.PaymentStats(r.Context())
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UsersListStats handles GET /api/v1/analytics/users-list-stats (admin only)
func (h *AnalyticsHandler) UsersListStats(w http.ResponseWriter, r *http.Request) {
	limit, offset := pagination(r)
	stats, err := h.analyticsService.UsersListStats(r.Context(), limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// UserDashboard handles GET /api/v1/analytics/user-dashboard-stats
func (h *AnalyticsHandler) UserDashboard(w http.ResponseWriter, r *http.Request) {
	stats, err := h.analyticsService.UserDashboard(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}
