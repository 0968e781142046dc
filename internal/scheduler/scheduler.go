// Package scheduler runs recurring maintenance jobs.
package scheduler

import (
	"time"

	"github.com/go-co-op/gocron"
	"go.uber.org/zap"

	"github.com/omadligroup/ai-agent-api/internal/model"
	"github.com/omadligroup/ai-agent-api/internal/store"
	"github.com/omadligroup/ai-agent-api/pkg/logger"
)

// Scheduler owns the background job schedule.
type Scheduler struct {
	cron          *gocron.Scheduler
	db            *store.Database
	logger        *logger.Logger
	retentionDays int
}

// New builds the scheduler with its job set registered but not started.
func New(db *store.Database, log *logger.Logger, retentionDays int) (*Scheduler, error) {
	s := &Scheduler{
		cron:          gocron.NewScheduler(time.UTC),
		db:            db,
		logger:        log,
		retentionDays: retentionDays,
	}

	// Daily platform snapshot shortly after midnight, once yesterday's
	// data is complete.
	if _, err := s.cron.Every(1).Day().At("00:05").Do(s.snapshotMetrics); err != nil {
		return nil, err
	}
	// Analytics retention cleanup.
	if _, err := s.cron.Every(1).Day().At("02:00").Do(s.purgeOldEvents); err != nil {
		return nil, err
	}
	// Subscription expiry sweep.
	if _, err := s.cron.Every(1).Hour().Do(s.expireSubscriptions); err != nil {
		return nil, err
	}

	return s, nil
}

// Start runs the schedule in the background.
func (s *Scheduler) Start() {
	s.cron.StartAsync()
	s.logger.Info("scheduler started", zap.Int("jobs", len(s.cron.Jobs())))
}

// Stop halts the schedule, waiting for running jobs.
func (s *Scheduler) Stop() {
	s.cron.Stop()
}

// Jobs returns the registered job count, for health reporting.
func (s *Scheduler) Jobs() int {
	return len(s.cron.Jobs())
}

// snapshotMetrics writes yesterday's platform snapshot.
func (s *Scheduler) snapshotMetrics() {
	day := time.Now().UTC().AddDate(0, 0, -1)
	counts, err := s.db.CollectSnapshot(day)
	if err != nil {
		s.logger.Error("metrics snapshot failed", zap.Error(err))
		return
	}

	m := &model.SystemMetrics{
		Date:               day.Format("2006-01-02"),
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
		s.logger.Error("failed to store metrics snapshot", zap.Error(err))
		return
	}
	s.logger.Info("daily metrics snapshot stored", zap.String("date", m.Date))
}

// purgeOldEvents deletes analytics events past the retention window.
func (s *Scheduler) purgeOldEvents() {
	cutoff := time.Now().UTC().AddDate(0, 0, -s.retentionDays)
	deleted, err := s.db.PurgeOldEvents(cutoff)
	if err != nil {
		s.logger.Error("event retention cleanup failed", zap.Error(err))
		return
	}
	if deleted > 0 {
		s.logger.Info("purged old analytics events", zap.Int64("deleted", deleted))
	}
}

// expireSubscriptions flips lapsed subscriptions to expired.
func (s *Scheduler) expireSubscriptions() {
	affected, err := s.db.ExpireSubscriptions(time.Now())
	if err != nil {
		s.logger.Error("subscription expiry sweep failed", zap.Error(err))
		return
	}
	if affected > 0 {
		s.logger.Info("expired lapsed subscriptions", zap.Int64("users", affected))
	}
}
