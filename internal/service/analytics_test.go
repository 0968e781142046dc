package service

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/store"
)

// failingPublisher simulates a down event pipeline.
type failingPublisher struct{}

func (failingPublisher) PublishEvent(context.Context, *model.AnalyticsEvent) (uint64, error) {
	return 0, errors.New("no responders available")
}

func newAnalyticsService(t *testing.T, events EventPublisher) (*AnalyticsService, *store.Database, string) {
	t.Helper()
	db := testStore(t)
	svc := NewAnalyticsService(db, events, testLogger(t), t.TempDir())
	userID := createTestUser(t, db, "alice")
	return svc, db, userID
}

func TestTrackPublishes(t *testing.T) {
	pub := &capturePublisher{}
	svc, db, userID := newAnalyticsService(t, pub)

	event, err := svc.Track(context.Background(), userID, "sess-1", "127.0.0.1", "go-test", &model.TrackEventRequest{
		EventType:  model.EventPageView,
		EventName:  "dashboard_viewed",
		Properties: map[string]any{"path": "/dashboard"},
	})
	require.NoError(t, err)
	require.NotNil(t, event.UserID)
	assert.Equal(t, userID, *event.UserID)
	assert.Len(t, pub.events, 1)

	// Published events must not also be inserted directly.
	events, total, err := db.ListEvents(store.EventFilter{})
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, events)
}

func TestTrackFallsBackToDirectInsert(t *testing.T) {
	svc, db, userID := newAnalyticsService(t, failingPublisher{})

	_, err := svc.Track(context.Background(), userID, "", "", "", &model.TrackEventRequest{
		EventType: model.EventPageView,
		EventName: "dashboard_viewed",
	})
	require.NoError(t, err)

	_, total, err := db.ListEvents(store.EventFilter{})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestTrackValidation(t *testing.T) {
	svc, _, userID := newAnalyticsService(t, nil)

	_, err := svc.Track(context.Background(), userID, "", "", "", &model.TrackEventRequest{
		EventType: "made_up",
		EventName: "x",
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.Track(context.Background(), userID, "", "", "", &model.TrackEventRequest{
		EventType: model.EventPageView,
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func waitForReport(t *testing.T, svc *AnalyticsService, userID, reportID string) *model.Report {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		report, err := svc.Report(context.Background(), userID, reportID)
		require.NoError(t, err)
		if report.Status == model.ReportCompleted || report.Status == model.ReportFailed {
			return report
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("report generation did not finish")
	return nil
}

func TestReportLifecycle(t *testing.T) {
	svc, _, userID := newAnalyticsService(t, nil)

	report, err := svc.CreateReport(context.Background(), userID, &model.CreateReportRequest{
		Name:       "weekly usage",
		ReportType: model.ReportUserActivity,
		Format:     model.FormatJSON,
		StartDate:  "2026-08-01",
		EndDate:    "2026-08-29",
	})
	require.NoError(t, err)
	require.NotEmpty(t, report.ID)

	done := waitForReport(t, svc, userID, report.ID)
	require.Equal(t, model.ReportCompleted, done.Status)
	assert.NotEmpty(t, done.FilePath)
	_, err = os.Stat(done.FilePath)
	require.NoError(t, err)

	reports, err := svc.Reports(context.Background(), userID, 10, 0)
	require.NoError(t, err)
	require.Len(t, reports, 1)

	require.NoError(t, svc.DeleteReport(context.Background(), userID, report.ID))
	_, err = os.Stat(done.FilePath)
	require.True(t, os.IsNotExist(err))
	_, err = svc.Report(context.Background(), userID, report.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestCreateReportValidation(t *testing.T) {
	svc, _, userID := newAnalyticsService(t, nil)

	_, err := svc.CreateReport(context.Background(), userID, &model.CreateReportRequest{
		ReportType: model.ReportUserActivity,
	})
	require.ErrorIs(t, err, ErrInvalidInput)

	_, err = svc.CreateReport(context.Background(), userID, &model.CreateReportRequest{
		Name:       "bad",
		ReportType: "astrology",
	})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestReportsAreScopedToRequester(t *testing.T) {
	svc, db, userID := newAnalyticsService(t, nil)
	otherID := createTestUser(t, db, "bob")

	report, err := svc.CreateReport(context.Background(), userID, &model.CreateReportRequest{
		Name:       "mine",
		ReportType: model.ReportUserActivity,
		Format:     model.FormatCSV,
	})
	require.NoError(t, err)
	waitForReport(t, svc, userID, report.ID)

	_, err = svc.Report(context.Background(), otherID, report.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestErrorLogFlow(t *testing.T) {
	svc, _, userID := newAnalyticsService(t, nil)

	entry, err := svc.LogError(context.Background(), userID, "10.0.0.1", "go-test", &model.LogErrorRequest{
		Message:       "template render failed",
		ExceptionType: "TemplateError",
		URL:           "/dashboard",
		Method:        "GET",
	})
	require.NoError(t, err)
	// Level defaults to error when omitted.
	assert.Equal(t, model.LevelError, entry.Level)

	_, err = svc.LogError(context.Background(), "", "", "", &model.LogErrorRequest{Message: "x", Level: "loud"})
	require.ErrorIs(t, err, ErrInvalidInput)
	_, err = svc.LogError(context.Background(), "", "", "", &model.LogErrorRequest{Level: model.LevelInfo})
	require.ErrorIs(t, err, ErrInvalidInput)

	logs, err := svc.ErrorLogs(context.Background(), "", true, 10, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)

	require.NoError(t, svc.ResolveError(context.Background(), entry.ID, userID, "fixed in deploy 42"))
	logs, err = svc.ErrorLogs(context.Background(), "", true, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.ErrorIs(t, svc.ResolveError(context.Background(), "00000000-0000-7000-8000-000000000000", userID, ""), ErrNotFound)
}

func TestActivityStats(t *testing.T) {
	svc, db, userID := newAnalyticsService(t, failingPublisher{})
	ctx := context.Background()

	today := time.Now().UTC().Format("2006-01-02")
	yesterday := time.Now().UTC().AddDate(0, 0, -1).Format("2006-01-02")
	require.NoError(t, db.BumpUserActivity(userID, today, "chat_messages_sent", 3))
	require.NoError(t, db.BumpUserActivity(userID, yesterday, "login_count", 1))

	stats, err := svc.ActivityStats(ctx, userID)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.MessagesLast7Days)
	assert.Equal(t, 1, stats.LoginsLast30Days)
	assert.Equal(t, 2, stats.ActiveDaysLast30)
	assert.Equal(t, 2, stats.CurrentStreakDays)
}

func TestGenerateMetrics(t *testing.T) {
	svc, _, _ := newAnalyticsService(t, failingPublisher{})
	ctx := context.Background()

	m, err := svc.GenerateMetrics(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, time.Now().UTC().Format("2006-01-02"), m.Date)
	assert.Equal(t, 1, m.TotalUsers)
	assert.EqualValues(t, 100, m.UptimePercentage)

	// Regenerating the same day upserts rather than duplicating.
	again, err := svc.GenerateMetrics(ctx, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, m.Date, again.Date)
}

func TestUsersListStats(t *testing.T) {
	svc, db, _ := newAnalyticsService(t, failingPublisher{})
	createTestUser(t, db, "bob")

	out, err := svc.UsersListStats(context.Background(), 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, out["total"])
	assert.Len(t, out["users"], 2)
}

func TestErrorStats(t *testing.T) {
	svc, _, userID := newAnalyticsService(t, failingPublisher{})
	ctx := context.Background()

	first, err := svc.LogError(ctx, userID, "127.0.0.1", "test", &model.LogErrorRequest{
		Level: model.LevelError, Message: "boom",
	})
	require.NoError(t, err)
	_, err = svc.LogError(ctx, userID, "127.0.0.1", "test", &model.LogErrorRequest{
		Level: model.LevelWarning, Message: "creak",
	})
	require.NoError(t, err)
	require.NoError(t, svc.ResolveError(ctx, first.ID, userID, "restarted"))

	stats, err := svc.ErrorStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Total)
	assert.Equal(t, 1, stats.Unresolved)
	assert.Equal(t, 2, stats.LastHour)
	assert.InDelta(t, 0.5, stats.ResolutionRate, 1e-9)
	assert.Equal(t, 1, stats.ByLevel[model.LevelError])

	entry, err := svc.ErrorLogEntry(ctx, first.ID)
	require.NoError(t, err)
	assert.True(t, entry.IsResolved)
	_, err = svc.ErrorLogEntry(ctx, "missing")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSubscriptionAndPaymentStats(t *testing.T) {
	svc, db, userID := newAnalyticsService(t, failingPublisher{})
	ctx := context.Background()

	require.NoError(t, db.CreatePayment(&model.PaymentRecord{
		UserID:           userID,
		Amount:           19.99,
		Currency:         "USD",
		PaymentType:      model.PaymentUpgrade,
		Status:           model.PaymentCompleted,
		SubscriptionType: string(model.SubscriptionPremium),
		TransactionID:    "txn-1",
	}))

	subs, err := svc.SubscriptionStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, subs.Total)
	assert.Equal(t, 1, subs.ByType[model.SubscriptionFree])

	pay, err := svc.PaymentStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pay.CompletedPayments)
	assert.InDelta(t, 19.99, pay.TotalRevenue, 1e-9)
	assert.InDelta(t, 19.99, pay.RevenueByPlan[string(model.SubscriptionPremium)], 1e-9)
}

func TestUserDashboard(t *testing.T) {
	svc, db, userID := newAnalyticsService(t, failingPublisher{})

	today := time.Now().UTC().Format("2006-01-02")
	require.NoError(t, db.BumpUserActivity(userID, today, "chat_messages_sent", 2))

	out, err := svc.UserDashboard(context.Background(), userID)
	require.NoError(t, err)
	require.Contains(t, out, "stats")
	activity, ok := out["activity"].(*store.ActivityStatsCounts)
	require.True(t, ok)
	assert.Equal(t, 2, activity.MessagesLast7Days)
}
