package model

import (
	"time"
)

// EventType classifies analytics events.
type EventType string

const (
	EventUserLogin           EventType = "user_login"
	EventUserLogout          EventType = "user_logout"
	EventUserRegister        EventType = "user_register"
	EventChatMessage         EventType = "chat_message"
	EventFileUpload          EventType = "file_upload"
	EventFileDownload        EventType = "file_download"
	EventFileShare           EventType = "file_share"
	EventSubscriptionUpgrade EventType = "subscription_upgrade"
	EventSubscriptionCancel  EventType = "subscription_cancel"
	EventPageView            EventType = "page_view"
	EventAPICall             EventType = "api_call"
	EventErrorOccurred       EventType = "error_occurred"
	EventFeatureUsed         EventType = "feature_used"
)

// ValidEventType reports whether t is a known event type.
func ValidEventType(t EventType) bool {
	switch t {
	case EventUserLogin, EventUserLogout, EventUserRegister, EventChatMessage,
		EventFileUpload, EventFileDownload, EventFileShare,
		EventSubscriptionUpgrade, EventSubscriptionCancel, EventPageView,
		EventAPICall, EventErrorOccurred, EventFeatureUsed:
		return true
	}
	return false
}

// AnalyticsEvent is one tracked product event.
type AnalyticsEvent struct {
	ID               string         `json:"id"`
	EventType        EventType      `json:"event_type"`
	EventName        string         `json:"event_name"`
	EventDescription string         `json:"event_description,omitempty"`
	UserID           *string        `json:"user_id,omitempty"`
	SessionID        string         `json:"session_id,omitempty"`
	IPAddress        string         `json:"ip_address,omitempty"`
	UserAgent        string         `json:"user_agent,omitempty"`
	Properties       map[string]any `json:"properties,omitempty"`
	Metadata         map[string]any `json:"metadata,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
}

// TrackEventRequest is the client request to record an event.
type TrackEventRequest struct {
	EventType        EventType      `json:"event_type"`
	EventName        string         `json:"event_name"`
	EventDescription string         `json:"event_description,omitempty"`
	Properties       map[string]any `json:"properties,omitempty"`
}

// UserActivity is the per-day rollup of a user's actions.
type UserActivity struct {
	ID               string    `json:"id"`
	UserID           string    `json:"user_id"`
	Date             string    `json:"date"`
	LoginCount       int       `json:"login_count"`
	ChatMessagesSent int       `json:"chat_messages_sent"`
	FilesUploaded    int       `json:"files_uploaded"`
	FilesDownloaded  int       `json:"files_downloaded"`
	PagesVisited     int       `json:"pages_visited"`
	APICallsMade     int       `json:"api_calls_made"`
	TotalSessionTime int       `json:"total_session_time"`
	ActiveTime       int       `json:"active_time"`
	FeaturesUsed     []string  `json:"features_used"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SystemMetrics is the per-day platform snapshot.
type SystemMetrics struct {
	ID   string `json:"id"`
	Date string `json:"date"`

	TotalUsers   int `json:"total_users"`
	ActiveUsers  int `json:"active_users"`
	NewUsers     int `json:"new_users"`
	PremiumUsers int `json:"premium_users"`

	TotalConversations int   `json:"total_conversations"`
	TotalMessages      int   `json:"total_messages"`
	TotalFiles         int   `json:"total_files"`
	TotalStorageUsed   int64 `json:"total_storage_used"`

	AvgResponseTime float64 `json:"avg_response_time"`
	TotalAPICalls   int     `json:"total_api_calls"`
	ErrorRate       float64 `json:"error_rate"`

	TotalRevenue           float64 `json:"total_revenue"`
	NewSubscriptions       int     `json:"new_subscriptions"`
	CancelledSubscriptions int     `json:"cancelled_subscriptions"`

	UptimePercentage float64 `json:"uptime_percentage"`

	CustomMetrics map[string]any `json:"custom_metrics,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ReportType classifies generated reports.
type ReportType string

const (
	ReportUserActivity      ReportType = "user_activity"
	ReportSystemPerformance ReportType = "system_performance"
	ReportRevenue           ReportType = "revenue"
	ReportContentUsage      ReportType = "content_usage"
	ReportErrorAnalysis     ReportType = "error_analysis"
	ReportCustom            ReportType = "custom"
)

// ReportFormat is the output format of a report.
type ReportFormat string

const (
	FormatJSON ReportFormat = "json"
	FormatCSV  ReportFormat = "csv"
)

// ReportStatus is the generation state of a report.
type ReportStatus string

const (
	ReportPending    ReportStatus = "pending"
	ReportGenerating ReportStatus = "generating"
	ReportCompleted  ReportStatus = "completed"
	ReportFailed     ReportStatus = "failed"
)

// Report is a generated analytics report.
type Report struct {
	ID          string       `json:"id"`
	Name        string       `json:"name"`
	Description string       `json:"description,omitempty"`
	ReportType  ReportType   `json:"report_type"`
	Format      ReportFormat `json:"report_format"`

	StartDate  string         `json:"start_date"`
	EndDate    string         `json:"end_date"`
	Filters    map[string]any `json:"filters,omitempty"`
	Parameters map[string]any `json:"parameters,omitempty"`

	Status   ReportStatus `json:"status"`
	Progress int          `json:"progress"`

	Data     map[string]any `json:"data,omitempty"`
	FilePath string         `json:"file_path,omitempty"`
	FileSize *int64         `json:"file_size,omitempty"`

	ErrorMessage string `json:"error_message,omitempty"`
	RequestedBy  string `json:"requested_by"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// CreateReportRequest requests asynchronous report generation.
type CreateReportRequest struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	ReportType  ReportType     `json:"report_type"`
	Format      ReportFormat   `json:"report_format"`
	StartDate   string         `json:"start_date"`
	EndDate     string         `json:"end_date"`
	Filters     map[string]any `json:"filters,omitempty"`
}

// PaymentType classifies payment records.
type PaymentType string

const (
	PaymentSubscription PaymentType = "subscription"
	PaymentUpgrade      PaymentType = "upgrade"
	PaymentRenewal      PaymentType = "renewal"
	PaymentLifetime     PaymentType = "lifetime"
)

// PaymentStatus is the state of a payment record.
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
	PaymentRefunded  PaymentStatus = "refunded"
	PaymentCancelled PaymentStatus = "cancelled"
)

// PaymentRecord is a bookkeeping entry for a subscription transaction.
type PaymentRecord struct {
	ID       string  `json:"id"`
	UserID   string  `json:"user_id"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`

	PaymentType PaymentType   `json:"payment_type"`
	Status      PaymentStatus `json:"status"`

	SubscriptionType         string `json:"subscription_type,omitempty"`
	SubscriptionDurationDays *int   `json:"subscription_duration_days,omitempty"`

	TransactionID   string         `json:"transaction_id"`
	Gateway         string         `json:"gateway,omitempty"`
	GatewayResponse map[string]any `json:"gateway_response,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// ErrorLevel classifies error log entries.
type ErrorLevel string

const (
	LevelDebug    ErrorLevel = "debug"
	LevelInfo     ErrorLevel = "info"
	LevelWarning  ErrorLevel = "warning"
	LevelError    ErrorLevel = "error"
	LevelCritical ErrorLevel = "critical"
)

// ErrorLog records one application error.
type ErrorLog struct {
	ID            string         `json:"id"`
	Level         ErrorLevel     `json:"level"`
	Message       string         `json:"message"`
	ExceptionType string         `json:"exception_type,omitempty"`
	StackTrace    string         `json:"stack_trace,omitempty"`
	URL           string         `json:"url,omitempty"`
	Method        string         `json:"method,omitempty"`
	UserID        *string        `json:"user_id,omitempty"`
	IPAddress     string         `json:"ip_address,omitempty"`
	UserAgent     string         `json:"user_agent,omitempty"`
	Context       map[string]any `json:"context,omitempty"`

	IsResolved      bool       `json:"is_resolved"`
	ResolvedAt      *time.Time `json:"resolved_at,omitempty"`
	ResolvedBy      *string    `json:"resolved_by,omitempty"`
	ResolutionNotes string     `json:"resolution_notes,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// LogErrorRequest records an application error from a client.
type LogErrorRequest struct {
	Level         ErrorLevel     `json:"level"`
	Message       string         `json:"message"`
	ExceptionType string         `json:"exception_type,omitempty"`
	StackTrace    string         `json:"stack_trace,omitempty"`
	URL           string         `json:"url,omitempty"`
	Method        string         `json:"method,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// ResolveErrorRequest marks an error log as resolved.
type ResolveErrorRequest struct {
	Notes string `json:"notes,omitempty"`
}
