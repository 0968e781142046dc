package service

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/store"
	"github.com/omadligroup/ai-agent-api/pkg/logger"
	"github.com/omadligroup/ai-agent-api/pkg/metrics"
)

// AnalyticsService handles event tracking, reporting and error logs.
type AnalyticsService struct {
	db          *store.Database
	events      EventPublisher
	logger      *logger.Logger
	reportsRoot string
}

// NewAnalyticsService creates a new analytics service.
func NewAnalyticsService(db *store.Database, events EventPublisher, log *logger.Logger, reportsRoot string) *AnalyticsService {
	return &AnalyticsService{
		db:          db,
		events:      events,
		logger:      log,
		reportsRoot: reportsRoot,
	}
}

// Track records a product event. Events flow through the JetStream
// pipeline when available and fall back to direct inserts otherwise.
func (s *AnalyticsService) Track(ctx context.Context, userID, sessionID, ipAddress, userAgent string, req *model.TrackEventRequest) (*model.AnalyticsEvent, error) {
	if !model.ValidEventType(req.EventType) {
		return nil, fmt.Errorf("%w: unknown event type %q", ErrInvalidInput, req.EventType)
	}
	if req.EventName == "" {
		return nil, fmt.Errorf("%w: event name required", ErrInvalidInput)
	}

	event := &model.AnalyticsEvent{
		EventType:        req.EventType,
		EventName:        req.EventName,
		EventDescription: req.EventDescription,
		SessionID:        sessionID,
		IPAddress:        ipAddress,
		UserAgent:        userAgent,
		Properties:       req.Properties,
		CreatedAt:        time.Now().UTC(),
	}
	if userID != "" {
		event.UserID = &userID
	}

	if s.events != nil {
		if _, err := s.events.PublishEvent(ctx, event); err == nil {
			return event, nil
		} else {
			s.logger.Warn("event pipeline unavailable, inserting directly", zap.Error(err))
		}
	}
	if err := s.db.InsertEvent(event); err != nil {
		return nil, err
	}
	return event, nil
}

// Events is the admin event listing.
func (s *AnalyticsService) Events(ctx context.Context, f store.EventFilter) ([]model.AnalyticsEvent, int, error) {
	events, total, err := s.db.ListEvents(f)
	if err != nil {
		return nil, 0, err
	}
	if events == nil {
		events = []model.AnalyticsEvent{}
	}
	return events, total, nil
}

// Activity returns the user's daily activity rollups.
func (s *AnalyticsService) Activity(ctx context.Context, userID, startDate, endDate string) ([]model.UserActivity, error) {
	activities, err := s.db.ListUserActivity(userID, startDate, endDate)
	if err != nil {
		return nil, err
	}
	if activities == nil {
		activities = []model.UserActivity{}
	}
	return activities, nil
}

// Dashboard computes the admin dashboard summary.
func (s *AnalyticsService) Dashboard(ctx context.Context) (*store.DashboardCounts, error) {
	return s.db.DashboardSummary(time.Now())
}

// SystemMetrics returns daily platform snapshots in a date range.
func (s *AnalyticsService) SystemMetrics(ctx context.Context, startDate, endDate string) ([]model.SystemMetrics, error) {
	rows, err := s.db.ListSystemMetrics(startDate, endDate)
	if err != nil {
		return nil, err
	}
	if rows == nil {
		rows = []model.SystemMetrics{}
	}
	return rows, nil
}

// CreateReport registers a report and generates it in the background.
func (s *AnalyticsService) CreateReport(ctx context.Context, userID string, req *model.CreateReportRequest) (*model.Report, error) {
	if req.Name == "" {
		return nil, fmt.Errorf("%w: report name required", ErrInvalidInput)
	}
	switch req.ReportType {
	case model.ReportUserActivity, model.ReportSystemPerformance, model.ReportRevenue,
		model.ReportContentUsage, model.ReportErrorAnalysis, model.ReportCustom:
	default:
		return nil, fmt.Errorf("%w: unknown report type %q", ErrInvalidInput, req.ReportType)
	}

	report := &model.Report{
		Name:        req.Name,
		Description: req.Description,
		ReportType:  req.ReportType,
		Format:      req.Format,
		StartDate:   req.StartDate,
		EndDate:     req.EndDate,
		Filters:     req.Filters,
		RequestedBy: userID,
	}
	if err := s.db.CreateReport(report); err != nil {
		return nil, err
	}

	// Generation runs detached from the request context so a client
	// disconnect does not abort it.
	go s.generate(context.Background(), report)
	return report, nil
}

// Report fetches one report with its generation state.
func (s *AnalyticsService) Report(ctx context.Context, userID, reportID string) (*model.Report, error) {
	report, err := s.db.GetReport(reportID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return report, nil
}

// Reports lists the user's reports.
func (s *AnalyticsService) Reports(ctx context.Context, userID string, limit, offset int) ([]model.Report, error) {
	reports, err := s.db.ListReports(userID, limit, offset)
	if err != nil {
		return nil, err
	}
	if reports == nil {
		reports = []model.Report{}
	}
	return reports, nil
}

// DeleteReport removes a report and its artifact.
func (s *AnalyticsService) DeleteReport(ctx context.Context, userID, reportID string) error {
	path, err := s.db.DeleteReport(reportID, userID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	if path != "" {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			s.logger.Warn("failed to remove report artifact", zap.String("path", path), zap.Error(err))
		}
	}
	return nil
}

func (s *AnalyticsService) generate(ctx context.Context, report *model.Report) {
	if err := s.db.UpdateReportProgress(report.ID, model.ReportGenerating, 10); err != nil {
		s.logger.Error("failed to mark report generating", zap.Error(err))
	}

	data, err := s.buildReportData(report)
	if err != nil {
		s.logger.Error("report generation failed",
			zap.String("report_id", report.ID), zap.Error(err))
		s.db.FailReport(report.ID, err.Error())
		metrics.ReportsGenerated.WithLabelValues(string(report.ReportType), "failed").Inc()
		return
	}

	s.db.UpdateReportProgress(report.ID, model.ReportGenerating, 70)

	filePath, fileSize, err := s.writeArtifact(report, data)
	if err != nil {
		s.db.FailReport(report.ID, err.Error())
		metrics.ReportsGenerated.WithLabelValues(string(report.ReportType), "failed").Inc()
		return
	}

	if err := s.db.CompleteReport(report.ID, data, filePath, &fileSize); err != nil {
		s.logger.Error("failed to complete report", zap.Error(err))
		return
	}
	metrics.ReportsGenerated.WithLabelValues(string(report.ReportType), "completed").Inc()
	s.logger.Info("report generated",
		zap.String("report_id", report.ID),
		zap.String("report_type", string(report.ReportType)))
}

func (s *AnalyticsService) buildReportData(report *model.Report) (map[string]any, error) {
	switch report.ReportType {
	case model.ReportUserActivity:
		activities, err := s.db.ListUserActivity(report.RequestedBy, report.StartDate, report.EndDate)
		if err != nil {
			return nil, err
		}
		return map[string]any{"activities": activities, "total_days": len(activities)}, nil

	case model.ReportSystemPerformance:
		rows, err := s.db.ListSystemMetrics(report.StartDate, report.EndDate)
		if err != nil {
			return nil, err
		}
		return map[string]any{"daily_metrics": rows, "total_days": len(rows)}, nil

	case model.ReportRevenue:
		payments, err := s.db.ListPayments(report.RequestedBy, 1000)
		if err != nil {
			return nil, err
		}
		var total float64
		for _, p := range payments {
			if p.Status == model.PaymentCompleted {
				total += p.Amount
			}
		}
		return map[string]any{"payments": payments, "total_revenue": total}, nil

	case model.ReportContentUsage:
		stats, err := s.db.FileStats(report.RequestedBy)
		if err != nil {
			return nil, err
		}
		chat, err := s.db.ConversationStats(report.RequestedBy, time.Now())
		if err != nil {
			return nil, err
		}
		return map[string]any{"files": stats, "chat": chat}, nil

	case model.ReportErrorAnalysis:
		logs, err := s.db.ListErrorLogs("", false, 1000, 0)
		if err != nil {
			return nil, err
		}
		byLevel := map[string]int{}
		unresolved := 0
		for _, l := range logs {
			byLevel[string(l.Level)]++
			if !l.IsResolved {
				unresolved++
			}
		}
		return map[string]any{
			"total_errors": len(logs),
			"by_level":     byLevel,
			"unresolved":   unresolved,
		}, nil

	default: // custom
		return map[string]any{"filters": report.Filters}, nil
	}
}

// writeArtifact serializes the report payload to disk as JSON or CSV.
func (s *AnalyticsService) writeArtifact(report *model.Report, data map[string]any) (string, int64, error) {
	if err := os.MkdirAll(s.reportsRoot, 0o755); err != nil {
		return "", 0, fmt.Errorf("failed to create reports directory: %w", err)
	}

	ext := "json"
	if report.Format == model.FormatCSV {
		ext = "csv"
	}
	path := filepath.Join(s.reportsRoot, fmt.Sprintf("%s.%s", report.ID, ext))

	f, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("failed to create report file: %w", err)
	}
	defer f.Close()

	if report.Format == model.FormatCSV {
		if err := writeCSV(f, data); err != nil {
			return "", 0, err
		}
	} else {
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		if err := enc.Encode(data); err != nil {
			return "", 0, fmt.Errorf("failed to encode report: %w", err)
		}
	}

	info, err := f.Stat()
	if err != nil {
		return "", 0, err
	}
	return path, info.Size(), nil
}

// writeCSV flattens the top level of the payload into key/value rows.
// Nested structures are embedded as JSON strings.
func writeCSV(f *os.File, data map[string]any) error {
	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{"key", "value"}); err != nil {
		return err
	}
	for key, value := range data {
		var cell string
		switch v := value.(type) {
		case string:
			cell = v
		case int:
			cell = strconv.Itoa(v)
		case float64:
			cell = strconv.FormatFloat(v, 'f', -1, 64)
		default:
			raw, err := json.Marshal(v)
			if err != nil {
				return err
			}
			cell = string(raw)
		}
		if err := w.Write([]string{key, cell}); err != nil {
			return err
		}
	}
	return w.Error()
}

// LogError records an application error.
func (s *AnalyticsService) LogError(ctx context.Context, userID, ipAddress, userAgent string, req *model.LogErrorRequest) (*model.ErrorLog, error) {
	if req.Message == "" {
		return nil, fmt.Errorf("%w: error message required", ErrInvalidInput)
	}
	switch req.Level {
	case model.LevelDebug, model.LevelInfo, model.LevelWarning, model.LevelError, model.LevelCritical:
	case "":
		req.Level = model.LevelError
	default:
		return nil, fmt.Errorf("%w: unknown error level %q", ErrInvalidInput, req.Level)
	}

	entry := &model.ErrorLog{
		Level:         req.Level,
		Message:       req.Message,
		ExceptionType: req.ExceptionType,
		StackTrace:    req.StackTrace,
		URL:           req.URL,
		Method:        req.Method,
		IPAddress:     ipAddress,
		UserAgent:     userAgent,
		Context:       req.Context,
	}
	if userID != "" {
		entry.UserID = &userID
	}
	if err := s.db.InsertErrorLog(entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// ErrorLogs lists recorded errors.
func (s *AnalyticsService) ErrorLogs(ctx context.Context, level model.ErrorLevel, unresolvedOnly bool, limit, offset int) ([]model.ErrorLog, error) {
	logs, err := s.db.ListErrorLogs(level, unresolvedOnly, limit, offset)
	if err != nil {
		return nil, err
	}
	if logs == nil {
		logs = []model.ErrorLog{}
	}
	return logs, nil
}

// ResolveError marks an error log resolved.
func (s *AnalyticsService) ResolveError(ctx context.Context, errorID, resolvedBy, notes string) error {
	if err := s.db.ResolveErrorLog(errorID, resolvedBy, notes); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

// ActivityStats rolls the user's activity into 7 and 30 day windows.
func (s *AnalyticsService) ActivityStats(ctx context.Context, userID string) (*store.ActivityStatsCounts, error) {
	return s.db.ActivityStats(userID, time.Now())
}

// GenerateMetrics computes and stores the platform snapshot for a day.
func (s *AnalyticsService) GenerateMetrics(ctx context.Context, day time.Time) (*model.SystemMetrics, error) {
	counts, err := s.db.CollectSnapshot(day)
	if err != nil {
		return nil, err
	}
	m := &model.SystemMetrics{
		Date:               day.UTC().Format("2006-01-02"),
		TotalUsers:         counts.TotalUsers,
		ActiveUsers:        counts.ActiveUsers,
		NewUsers:           counts.NewUsers,
		PremiumUsers:       counts.PremiumUsers,
		TotalConversations: counts.TotalConversations,
		TotalMessages:      counts.TotalMessages,
		TotalFiles:         counts.TotalFiles,
		TotalStorageUsed:   counts.TotalStorageUsed,
		AvgResponseTime:    counts.AvgResponseTime,
		TotalAPICalls:      counts.TotalAPICalls,
		TotalRevenue:       counts.TotalRevenue,
		UptimePercentage:   100,
	}
	if err := s.db.UpsertSystemMetrics(m); err != nil {
		return nil, err
	}
	s.logger.Info("metrics snapshot stored on demand", zap.String("date", m.Date))
	return m, nil
}

// ErrorLogEntry fetches one error log.
func (s *AnalyticsService) ErrorLogEntry(ctx context.Context, errorID string) (*model.ErrorLog, error) {
	entry, err := s.db.GetErrorLog(errorID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return entry, nil
}

// ErrorStats summarizes the error log for admins.
func (s *AnalyticsService) ErrorStats(ctx context.Context) (*store.ErrorStatsCounts, error) {
	return s.db.ErrorSummary(time.Now())
}

// SubscriptionStats breaks users down by plan and status.
func (s *AnalyticsService) SubscriptionStats(ctx context.Context) (*store.SubscriptionCounts, error) {
	return s.db.SubscriptionSummary()
}

// PaymentStats summarizes recorded revenue.
func (s *AnalyticsService) PaymentStats(ctx context.Context) (*store.PaymentCounts, error) {
	return s.db.PaymentSummary(time.Now())
}

// UserDashboard combines a user's totals with their recent activity.
func (s *AnalyticsService) UserDashboard(ctx context.Context, userID string) (map[string]any, error) {
	stats, err := s.db.UserStats(userID, time.Now())
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	activity, err := s.db.ActivityStats(userID, time.Now())
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"stats":    stats,
		"activity": activity,
	}, nil
}

// AllReports lists every report, for admins.
func (s *AnalyticsService) AllReports(ctx context.Context, limit, offset int) ([]model.Report, error) {
	reports, err := s.db.ListAllReports(limit, offset)
	if err != nil {
		return nil, err
	}
	if reports == nil {
		reports = []model.Report{}
	}
	return reports, nil
}

// UsersListStats lists every user with usage counters, for admins.
func (s *AnalyticsService) UsersListStats(ctx context.Context, limit, offset int) (map[string]any, error) {
	users, total, err := s.db.UsersListStats(limit, offset)
	if err != nil {
		return nil, err
	}
	if users == nil {
		users = []store.UserListStatsRow{}
	}
	return map[string]any{
		"users": users,
		"total": total,
	}, nil
}
