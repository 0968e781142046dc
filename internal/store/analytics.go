package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/omadligroup/ai-agent-api/internal/model"
)

// InsertEvent persists one analytics event.
func (d *Database) InsertEvent(e *model.AnalyticsEvent) error {
	if e.ID == "" {
		e.ID = uuid.Must(uuid.NewV7()).String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := d.db.Exec(`
		INSERT INTO analytics_events (id, event_type, event_name, event_description,
			user_id, session_id, ip_address, user_agent, properties, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EventType, e.EventName, e.EventDescription, e.UserID, e.SessionID,
		e.IPAddress, e.UserAgent, marshalJSON(e.Properties, "{}"),
		marshalJSON(e.Metadata, "{}"), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert event: %w", err)
	}
	return nil
}

// EventFilter narrows event listings.
type EventFilter struct {
	EventType model.EventType
	UserID    string
	Since     *time.Time
	Until     *time.Time
	Limit     int
	Offset    int
}

// ListEvents returns events matching the filter, newest first.
func (d *Database) ListEvents(f EventFilter) ([]model.AnalyticsEvent, int, error) {
	where := "1=1"
	var args []any

	if f.EventType != "" {
		where += " AND event_type = ?"
		args = append(args, f.EventType)
	}
	if f.UserID != "" {
		where += " AND user_id = ?"
		args = append(args, f.UserID)
	}
	if f.Since != nil {
		where += " AND created_at >= ?"
		args = append(args, f.Since.UTC())
	}
	if f.Until != nil {
		where += " AND created_at < ?"
		args = append(args, f.Until.UTC())
	}

	var total int
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM analytics_events WHERE `+where, args...).
		Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count events: %w", err)
	}

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, f.Offset)

	rows, err := d.db.Query(`
		SELECT id, event_type, event_name, event_description, user_id, session_id,
			ip_address, user_agent, properties, metadata, created_at
		FROM analytics_events WHERE `+where+`
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list events: %w", err)
	}
	defer rows.Close()

	var events []model.AnalyticsEvent
	for rows.Next() {
		var e model.AnalyticsEvent
		var props, meta string
		if err := rows.Scan(&e.ID, &e.EventType, &e.EventName, &e.EventDescription,
			&e.UserID, &e.SessionID, &e.IPAddress, &e.UserAgent, &props, &meta,
			&e.CreatedAt); err != nil {
			return nil, 0, err
		}
		e.Properties = unmarshalMap(props)
		e.Metadata = unmarshalMap(meta)
		events = append(events, e)
	}
	return events, total, rows.Err()
}

// BumpUserActivity increments a daily rollup counter for the user,
// creating the day's row on first use. Column must be one of the known
// counters.
func (d *Database) BumpUserActivity(userID, date, column string, delta int) error {
	switch column {
	case "login_count", "chat_messages_sent", "files_uploaded",
		"files_downloaded", "pages_visited", "api_calls_made",
		"total_session_time", "active_time":
	default:
		return fmt.Errorf("unknown activity counter %q", column)
	}

	now := time.Now().UTC()
	_, err := d.db.Exec(`
		INSERT INTO user_activities (id, user_id, date, `+column+`, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, date) DO UPDATE SET
			`+column+` = `+column+` + excluded.`+column+`,
			updated_at = excluded.updated_at`,
		uuid.Must(uuid.NewV7()).String(), userID, date, delta, now, now)
	if err != nil {
		return fmt.Errorf("failed to bump user activity: %w", err)
	}
	return nil
}

// ListUserActivity returns a user's daily rollups in a date range,
// newest first. Dates are YYYY-MM-DD.
func (d *Database) ListUserActivity(userID, startDate, endDate string) ([]model.UserActivity, error) {
	rows, err := d.db.Query(`
		SELECT id, user_id, date, login_count, chat_messages_sent, files_uploaded,
			files_downloaded, pages_visited, api_calls_made, total_session_time,
			active_time, features_used, created_at, updated_at
		FROM user_activities
		WHERE user_id = ? AND date >= ? AND date <= ?
		ORDER BY date DESC`, userID, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list user activity: %w", err)
	}
	defer rows.Close()

	var activities []model.UserActivity
	for rows.Next() {
		var a model.UserActivity
		var features string
		if err := rows.Scan(&a.ID, &a.UserID, &a.Date, &a.LoginCount,
			&a.ChatMessagesSent, &a.FilesUploaded, &a.FilesDownloaded,
			&a.PagesVisited, &a.APICallsMade, &a.TotalSessionTime, &a.ActiveTime,
			&features, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		a.FeaturesUsed = unmarshalStrings(features)
		activities = append(activities, a)
	}
	return activities, rows.Err()
}

// UpsertSystemMetrics writes the daily platform snapshot, replacing any
// existing row for the same date.
func (d *Database) UpsertSystemMetrics(m *model.SystemMetrics) error {
	if m.ID == "" {
		m.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	m.UpdatedAt = now
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	_, err := d.db.Exec(`
		INSERT INTO system_metrics (id, date, total_users, active_users, new_users,
			premium_users, total_conversations, total_messages, total_files,
			total_storage_used, avg_response_time, total_api_calls, error_rate,
			total_revenue, new_subscriptions, cancelled_subscriptions,
			uptime_percentage, custom_metrics, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date) DO UPDATE SET
			total_users = excluded.total_users,
			active_users = excluded.active_users,
			new_users = excluded.new_users,
			premium_users = excluded.premium_users,
			total_conversations = excluded.total_conversations,
			total_messages = excluded.total_messages,
			total_files = excluded.total_files,
			total_storage_used = excluded.total_storage_used,
			avg_response_time = excluded.avg_response_time,
			total_api_calls = excluded.total_api_calls,
			error_rate = excluded.error_rate,
			total_revenue = excluded.total_revenue,
			new_subscriptions = excluded.new_subscriptions,
			cancelled_subscriptions = excluded.cancelled_subscriptions,
			uptime_percentage = excluded.uptime_percentage,
			custom_metrics = excluded.custom_metrics,
			updated_at = excluded.updated_at`,
		m.ID, m.Date, m.TotalUsers, m.ActiveUsers, m.NewUsers, m.PremiumUsers,
		m.TotalConversations, m.TotalMessages, m.TotalFiles, m.TotalStorageUsed,
		m.AvgResponseTime, m.TotalAPICalls, m.ErrorRate, m.TotalRevenue,
		m.NewSubscriptions, m.CancelledSubscriptions, m.UptimePercentage,
		marshalJSON(m.CustomMetrics, "{}"), m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert system metrics: %w", err)
	}
	return nil
}

// ListSystemMetrics returns daily snapshots in a date range, newest first.
func (d *Database) ListSystemMetrics(startDate, endDate string) ([]model.SystemMetrics, error) {
	rows, err := d.db.Query(`
		SELECT id, date, total_users, active_users, new_users, premium_users,
			total_conversations, total_messages, total_files, total_storage_used,
			avg_response_time, total_api_calls, error_rate, total_revenue,
			new_subscriptions, cancelled_subscriptions, uptime_percentage,
			custom_metrics, created_at, updated_at
		FROM system_metrics WHERE date >= ? AND date <= ?
		ORDER BY date DESC`, startDate, endDate)
	if err != nil {
		return nil, fmt.Errorf("failed to list system metrics: %w", err)
	}
	defer rows.Close()

	var metrics []model.SystemMetrics
	for rows.Next() {
		var m model.SystemMetrics
		var custom string
		if err := rows.Scan(&m.ID, &m.Date, &m.TotalUsers, &m.ActiveUsers,
			&m.NewUsers, &m.PremiumUsers, &m.TotalConversations, &m.TotalMessages,
			&m.TotalFiles, &m.TotalStorageUsed, &m.AvgResponseTime, &m.TotalAPICalls,
			&m.ErrorRate, &m.TotalRevenue, &m.NewSubscriptions,
			&m.CancelledSubscriptions, &m.UptimePercentage, &custom,
			&m.CreatedAt, &m.UpdatedAt); err != nil {
			return nil, err
		}
		m.CustomMetrics = unmarshalMap(custom)
		metrics = append(metrics, m)
	}
	return metrics, rows.Err()
}

// SnapshotCounts collects the aggregates used for the daily metrics job.
type SnapshotCounts struct {
	TotalUsers         int
	ActiveUsers        int
	NewUsers           int
	PremiumUsers       int
	TotalConversations int
	TotalMessages      int
	TotalFiles         int
	TotalStorageUsed   int64
	AvgResponseTime    float64
	TotalAPICalls      int
	TotalRevenue       float64
}

// CollectSnapshot computes platform wide counters for one day.
func (d *Database) CollectSnapshot(day time.Time) (*SnapshotCounts, error) {
	dayStart := time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.AddDate(0, 0, 1)

	var s SnapshotCounts
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&s.TotalUsers); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM users WHERE last_activity >= ?`,
		dayStart).Scan(&s.ActiveUsers); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM users WHERE created_at >= ? AND created_at < ?`,
		dayStart, dayEnd).Scan(&s.NewUsers); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COUNT(*) FROM users
		WHERE subscription_type IN ('premium', 'lifetime') AND subscription_status = 'active'`).
		Scan(&s.PremiumUsers); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM conversations`).Scan(&s.TotalConversations); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM chat_messages`).Scan(&s.TotalMessages); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COUNT(*), COALESCE(SUM(file_size), 0) FROM files WHERE deleted_at IS NULL`).
		Scan(&s.TotalFiles, &s.TotalStorageUsed); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COALESCE(AVG(response_time_ms), 0) FROM chat_messages
		WHERE message_type = 'assistant' AND response_time_ms IS NOT NULL
		  AND created_at >= ? AND created_at < ?`, dayStart, dayEnd).
		Scan(&s.AvgResponseTime); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COUNT(*) FROM analytics_events
		WHERE event_type = 'api_call' AND created_at >= ? AND created_at < ?`,
		dayStart, dayEnd).Scan(&s.TotalAPICalls); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COALESCE(SUM(amount), 0) FROM payment_records
		WHERE status = 'completed' AND created_at >= ? AND created_at < ?`,
		dayStart, dayEnd).Scan(&s.TotalRevenue); err != nil {
		return nil, err
	}
	return &s, nil
}

const reportColumns = `id, name, description, report_type, report_format, start_date,
	end_date, filters, parameters, status, progress, data, file_path, file_size,
	error_message, requested_by, created_at, updated_at, completed_at`

func scanReport(row interface{ Scan(...any) error }) (*model.Report, error) {
	var r model.Report
	var filters, params, data string
	err := row.Scan(&r.ID, &r.Name, &r.Description, &r.ReportType, &r.Format,
		&r.StartDate, &r.EndDate, &filters, &params, &r.Status, &r.Progress,
		&data, &r.FilePath, &r.FileSize, &r.ErrorMessage, &r.RequestedBy,
		&r.CreatedAt, &r.UpdatedAt, &r.CompletedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, err
	}
	r.Filters = unmarshalMap(filters)
	r.Parameters = unmarshalMap(params)
	r.Data = unmarshalMap(data)
	return &r, nil
}

// CreateReport inserts a pending report.
func (d *Database) CreateReport(r *model.Report) error {
	if r.ID == "" {
		r.ID = uuid.Must(uuid.NewV7()).String()
	}
	now := time.Now().UTC()
	r.CreatedAt = now
	r.UpdatedAt = now
	if r.Status == "" {
		r.Status = model.ReportPending
	}
	if r.Format == "" {
		r.Format = model.FormatJSON
	}
	_, err := d.db.Exec(`
		INSERT INTO reports (id, name, description, report_type, report_format,
			start_date, end_date, filters, parameters, status, progress, data,
			file_path, error_message, requested_by, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, '{}', '', '', ?, ?, ?)`,
		r.ID, r.Name, r.Description, r.ReportType, r.Format, r.StartDate,
		r.EndDate, marshalJSON(r.Filters, "{}"), marshalJSON(r.Parameters, "{}"),
		r.Status, r.RequestedBy, r.CreatedAt, r.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	return nil
}

// GetReport fetches a report requested by the user.
func (d *Database) GetReport(id, userID string) (*model.Report, error) {
	row := d.db.QueryRow(`SELECT `+reportColumns+
		` FROM reports WHERE id = ? AND requested_by = ?`, id, userID)
	return scanReport(row)
}

// ListReports returns the user's reports, newest first.
func (d *Database) ListReports(userID string, limit, offset int) ([]model.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`SELECT `+reportColumns+` FROM reports
		WHERE requested_by = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// UpdateReportProgress sets generation status and progress percentage.
func (d *Database) UpdateReportProgress(id string, status model.ReportStatus, progress int) error {
	_, err := d.db.Exec(`
		UPDATE reports SET status = ?, progress = ?, updated_at = ? WHERE id = ?`,
		status, progress, time.Now().UTC(), id)
	return err
}

// CompleteReport records a finished report with its payload and artifact.
func (d *Database) CompleteReport(id string, data map[string]any, filePath string, fileSize *int64) error {
	now := time.Now().UTC()
	_, err := d.db.Exec(`
		UPDATE reports SET status = 'completed', progress = 100, data = ?,
			file_path = ?, file_size = ?, completed_at = ?, updated_at = ?
		WHERE id = ?`,
		marshalJSON(data, "{}"), filePath, fileSize, now, now, id)
	return err
}

// FailReport records a failed report generation.
func (d *Database) FailReport(id, errMsg string) error {
	_, err := d.db.Exec(`
		UPDATE reports SET status = 'failed', error_message = ?, updated_at = ?
		WHERE id = ?`, errMsg, time.Now().UTC(), id)
	return err
}

// DeleteReport removes a report owned by the user and returns its
// artifact path for cleanup.
func (d *Database) DeleteReport(id, userID string) (string, error) {
	var path string
	err := d.db.QueryRow(`SELECT file_path FROM reports WHERE id = ? AND requested_by = ?`,
		id, userID).Scan(&path)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", ErrNotFound
		}
		return "", err
	}
	if _, err := d.db.Exec(`DELETE FROM reports WHERE id = ?`, id); err != nil {
		return "", fmt.Errorf("failed to delete report: %w", err)
	}
	return path, nil
}

// CreatePayment inserts a payment record.
func (d *Database) CreatePayment(p *model.PaymentRecord) error {
	if p.ID == "" {
		p.ID = uuid.Must(uuid.NewV7()).String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
	}
	if p.Currency == "" {
		p.Currency = "USD"
	}
	_, err := d.db.Exec(`
		INSERT INTO payment_records (id, user_id, amount, currency, payment_type,
			status, subscription_type, subscription_duration_days, transaction_id,
			gateway, gateway_response, created_at, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.UserID, p.Amount, p.Currency, p.PaymentType, p.Status,
		p.SubscriptionType, p.SubscriptionDurationDays, p.TransactionID,
		p.Gateway, marshalJSON(p.GatewayResponse, "{}"), p.CreatedAt, p.ProcessedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// ListPayments returns a user's payment records, newest first.
func (d *Database) ListPayments(userID string, limit int) ([]model.PaymentRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`
		SELECT id, user_id, amount, currency, payment_type, status,
			subscription_type, subscription_duration_days, transaction_id,
			gateway, gateway_response, created_at, processed_at
		FROM payment_records WHERE user_id = ?
		ORDER BY created_at DESC LIMIT ?`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list payments: %w", err)
	}
	defer rows.Close()

	var payments []model.PaymentRecord
	for rows.Next() {
		var p model.PaymentRecord
		var gateway string
		if err := rows.Scan(&p.ID, &p.UserID, &p.Amount, &p.Currency,
			&p.PaymentType, &p.Status, &p.SubscriptionType,
			&p.SubscriptionDurationDays, &p.TransactionID, &p.Gateway, &gateway,
			&p.CreatedAt, &p.ProcessedAt); err != nil {
			return nil, err
		}
		p.GatewayResponse = unmarshalMap(gateway)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// InsertErrorLog records one application error.
func (d *Database) InsertErrorLog(e *model.ErrorLog) error {
	if e.ID == "" {
		e.ID = uuid.Must(uuid.NewV7()).String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	_, err := d.db.Exec(`
		INSERT INTO error_logs (id, level, message, exception_type, stack_trace,
			url, method, user_id, ip_address, user_agent, context, is_resolved, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`,
		e.ID, e.Level, e.Message, e.ExceptionType, e.StackTrace, e.URL, e.Method,
		e.UserID, e.IPAddress, e.UserAgent, marshalJSON(e.Context, "{}"), e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert error log: %w", err)
	}
	return nil
}

// ListErrorLogs returns error logs, optionally filtered by level and
// resolution state, newest first.
func (d *Database) ListErrorLogs(level model.ErrorLevel, unresolvedOnly bool, limit, offset int) ([]model.ErrorLog, error) {
	where := "1=1"
	var args []any
	if level != "" {
		where += " AND level = ?"
		args = append(args, level)
	}
	if unresolvedOnly {
		where += " AND is_resolved = 0"
	}
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, offset)

	rows, err := d.db.Query(`
		SELECT id, level, message, exception_type, stack_trace, url, method,
			user_id, ip_address, user_agent, context, is_resolved, resolved_at,
			resolved_by, resolution_notes, created_at
		FROM error_logs WHERE `+where+`
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list error logs: %w", err)
	}
	defer rows.Close()

	var logs []model.ErrorLog
	for rows.Next() {
		var e model.ErrorLog
		var ctx string
		var resolved int
		if err := rows.Scan(&e.ID, &e.Level, &e.Message, &e.ExceptionType,
			&e.StackTrace, &e.URL, &e.Method, &e.UserID, &e.IPAddress,
			&e.UserAgent, &ctx, &resolved, &e.ResolvedAt, &e.ResolvedBy,
			&e.ResolutionNotes, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Context = unmarshalMap(ctx)
		e.IsResolved = resolved != 0
		logs = append(logs, e)
	}
	return logs, rows.Err()
}

// ResolveErrorLog marks an error log resolved.
func (d *Database) ResolveErrorLog(id, resolvedBy, notes string) error {
	res, err := d.db.Exec(`
		UPDATE error_logs SET is_resolved = 1, resolved_at = ?, resolved_by = ?,
			resolution_notes = ?
		WHERE id = ? AND is_resolved = 0`,
		time.Now().UTC(), resolvedBy, notes, id)
	if err != nil {
		return fmt.Errorf("failed to resolve error log: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// PurgeOldEvents removes analytics events older than the retention
// window and returns the number deleted.
func (d *Database) PurgeOldEvents(before time.Time) (int64, error) {
	res, err := d.db.Exec(`DELETE FROM analytics_events WHERE created_at < ?`,
		before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to purge events: %w", err)
	}
	return res.RowsAffected()
}

// DashboardCounts is the admin dashboard summary.
type DashboardCounts struct {
	TotalUsers       int     `json:"total_users"`
	ActiveToday      int     `json:"active_today"`
	NewThisWeek      int     `json:"new_this_week"`
	PremiumUsers     int     `json:"premium_users"`
	MessagesToday    int     `json:"messages_today"`
	UploadsToday     int     `json:"uploads_today"`
	EventsToday      int     `json:"events_today"`
	UnresolvedErrors int     `json:"unresolved_errors"`
	RevenueThisMonth float64 `json:"revenue_this_month"`
}

// DashboardSummary computes live admin dashboard counters.
func (d *Database) DashboardSummary(now time.Time) (*DashboardCounts, error) {
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	weekAgo := now.AddDate(0, 0, -7).UTC()
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	var c DashboardCounts
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM users`).Scan(&c.TotalUsers); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM users WHERE last_activity >= ?`,
		dayStart).Scan(&c.ActiveToday); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM users WHERE created_at >= ?`,
		weekAgo).Scan(&c.NewThisWeek); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COUNT(*) FROM users
		WHERE subscription_type IN ('premium', 'lifetime') AND subscription_status = 'active'`).
		Scan(&c.PremiumUsers); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM chat_messages WHERE created_at >= ?`,
		dayStart).Scan(&c.MessagesToday); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COUNT(*) FROM files WHERE created_at >= ? AND deleted_at IS NULL`,
		dayStart).Scan(&c.UploadsToday); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM analytics_events WHERE created_at >= ?`,
		dayStart).Scan(&c.EventsToday); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`SELECT COUNT(*) FROM error_logs WHERE is_resolved = 0`).
		Scan(&c.UnresolvedErrors); err != nil {
		return nil, err
	}
	if err := d.db.QueryRow(`
		SELECT COALESCE(SUM(amount), 0) FROM payment_records
		WHERE status = 'completed' AND created_at >= ?`, monthStart).
		Scan(&c.RevenueThisMonth); err != nil {
		return nil, err
	}
	return &c, nil
}

// ListAllReports returns reports across all users, for admins.
func (d *Database) ListAllReports(limit, offset int) ([]model.Report, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := d.db.Query(`SELECT `+reportColumns+` FROM reports
		ORDER BY created_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list reports: %w", err)
	}
	defer rows.Close()

	var reports []model.Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		reports = append(reports, *r)
	}
	return reports, rows.Err()
}

// GetErrorLog fetches one error log entry.
func (d *Database) GetErrorLog(id string) (*model.ErrorLog, error) {
	var e model.ErrorLog
	var ctx string
	var resolved int
	err := d.db.QueryRow(`
		SELECT id, level, message, exception_type, stack_trace, url, method,
			user_id, ip_address, user_agent, context, is_resolved, resolved_at,
			resolved_by, resolution_notes, created_at
		FROM error_logs WHERE id = ?`, id).Scan(
		&e.ID, &e.Level, &e.Message, &e.ExceptionType, &e.StackTrace, &e.URL,
		&e.Method, &e.UserID, &e.IPAddress, &e.UserAgent, &ctx, &resolved,
		&e.ResolvedAt, &e.ResolvedBy, &e.ResolutionNotes, &e.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get error log: %w", err)
	}
	e.Context = unmarshalMap(ctx)
	e.IsResolved = resolved != 0
	return &e, nil
}

// ErrorStatsCounts summarizes the error log for admins.
type ErrorStatsCounts struct {
	Total          int                      `json:"total"`
	Unresolved     int                      `json:"unresolved"`
	LastHour       int                      `json:"last_hour"`
	ResolutionRate float64                  `json:"resolution_rate"`
	ByLevel        map[model.ErrorLevel]int `json:"by_level"`
}

// ErrorSummary aggregates error log counts.
func (d *Database) ErrorSummary(now time.Time) (*ErrorStatsCounts, error) {
	s := &ErrorStatsCounts{ByLevel: make(map[model.ErrorLevel]int)}

	var resolved int
	if err := d.db.QueryRow(`
		SELECT COUNT(*),
			COALESCE(SUM(is_resolved), 0),
			COALESCE(SUM(CASE WHEN created_at > ? THEN 1 ELSE 0 END), 0)
		FROM error_logs`, now.UTC().Add(-time.Hour)).
		Scan(&s.Total, &resolved, &s.LastHour); err != nil {
		return nil, err
	}
	s.Unresolved = s.Total - resolved
	if s.Total > 0 {
		s.ResolutionRate = float64(resolved) / float64(s.Total)
	}

	rows, err := d.db.Query(`SELECT level, COUNT(*) FROM error_logs GROUP BY level`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate error levels: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var level model.ErrorLevel
		var count int
		if err := rows.Scan(&level, &count); err != nil {
			return nil, err
		}
		s.ByLevel[level] = count
	}
	return s, rows.Err()
}

// ActivityStatsCounts rolls a user's activity into ranges.
type ActivityStatsCounts struct {
	MessagesLast7Days  int `json:"messages_last_7_days"`
	MessagesLast30Days int `json:"messages_last_30_days"`
	LoginsLast7Days    int `json:"logins_last_7_days"`
	LoginsLast30Days   int `json:"logins_last_30_days"`
	UploadsLast30Days  int `json:"uploads_last_30_days"`
	ActiveDaysLast30   int `json:"active_days_last_30"`
	CurrentStreakDays  int `json:"current_streak_days"`
}

// ActivityStats aggregates a user's daily rollups over 7 and 30 day
// windows and computes the consecutive-day streak ending today.
func (d *Database) ActivityStats(userID string, now time.Time) (*ActivityStatsCounts, error) {
	var s ActivityStatsCounts
	day := now.UTC()
	sevenDays := day.AddDate(0, 0, -7).Format("2006-01-02")
	thirtyDays := day.AddDate(0, 0, -30).Format("2006-01-02")

	if err := d.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN date >= ? THEN chat_messages_sent ELSE 0 END), 0),
			COALESCE(SUM(chat_messages_sent), 0),
			COALESCE(SUM(CASE WHEN date >= ? THEN login_count ELSE 0 END), 0),
			COALESCE(SUM(login_count), 0),
			COALESCE(SUM(files_uploaded), 0),
			COUNT(*)
		FROM user_activities WHERE user_id = ? AND date >= ?`,
		sevenDays, sevenDays, userID, thirtyDays).Scan(
		&s.MessagesLast7Days, &s.MessagesLast30Days,
		&s.LoginsLast7Days, &s.LoginsLast30Days,
		&s.UploadsLast30Days, &s.ActiveDaysLast30); err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT date FROM user_activities WHERE user_id = ? ORDER BY date DESC LIMIT 366`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list activity dates: %w", err)
	}
	defer rows.Close()

	expect := day.Format("2006-01-02")
	yesterday := day.AddDate(0, 0, -1).Format("2006-01-02")
	for rows.Next() {
		var date string
		if err := rows.Scan(&date); err != nil {
			return nil, err
		}
		// A streak may start yesterday if today has no activity yet.
		if s.CurrentStreakDays == 0 && date == yesterday {
			expect = yesterday
		}
		if date != expect {
			break
		}
		s.CurrentStreakDays++
		t, _ := time.Parse("2006-01-02", expect)
		expect = t.AddDate(0, 0, -1).Format("2006-01-02")
	}
	return &s, rows.Err()
}

// SubscriptionCounts breaks users down by plan and status.
type SubscriptionCounts struct {
	ByType   map[model.SubscriptionType]int   `json:"by_type"`
	ByStatus map[model.SubscriptionStatus]int `json:"by_status"`
	Total    int                              `json:"total"`
}

// SubscriptionSummary aggregates subscription distribution.
func (d *Database) SubscriptionSummary() (*SubscriptionCounts, error) {
	s := &SubscriptionCounts{
		ByType:   make(map[model.SubscriptionType]int),
		ByStatus: make(map[model.SubscriptionStatus]int),
	}

	rows, err := d.db.Query(`
		SELECT subscription_type, subscription_status, COUNT(*)
		FROM users GROUP BY subscription_type, subscription_status`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate subscriptions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var st model.SubscriptionType
		var status model.SubscriptionStatus
		var count int
		if err := rows.Scan(&st, &status, &count); err != nil {
			return nil, err
		}
		s.ByType[st] += count
		s.ByStatus[status] += count
		s.Total += count
	}
	return s, rows.Err()
}

// PaymentCounts summarizes completed payments.
type PaymentCounts struct {
	TotalRevenue      float64            `json:"total_revenue"`
	RevenueThisMonth  float64            `json:"revenue_this_month"`
	CompletedPayments int                `json:"completed_payments"`
	RevenueByPlan     map[string]float64 `json:"revenue_by_plan"`
}

// PaymentSummary aggregates payment records.
func (d *Database) PaymentSummary(now time.Time) (*PaymentCounts, error) {
	s := &PaymentCounts{RevenueByPlan: make(map[string]float64)}
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)

	if err := d.db.QueryRow(`
		SELECT COALESCE(SUM(amount), 0), COUNT(*),
			COALESCE(SUM(CASE WHEN created_at >= ? THEN amount ELSE 0 END), 0)
		FROM payment_records WHERE status = 'completed'`, monthStart).
		Scan(&s.TotalRevenue, &s.CompletedPayments, &s.RevenueThisMonth); err != nil {
		return nil, err
	}

	rows, err := d.db.Query(`
		SELECT subscription_type, COALESCE(SUM(amount), 0)
		FROM payment_records WHERE status = 'completed' AND subscription_type != ''
		GROUP BY subscription_type`)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate revenue: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var plan string
		var amount float64
		if err := rows.Scan(&plan, &amount); err != nil {
			return nil, err
		}
		s.RevenueByPlan[plan] = amount
	}
	return s, rows.Err()
}
