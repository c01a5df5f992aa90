// Package jobs runs the periodic inventory alert and log retention tasks.
package jobs

import (
	"context"
	"fmt"
	"time"

	"medshop/internal/activity"
	"medshop/internal/config"
	"medshop/internal/metrics"
	"medshop/internal/reports"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

const jobTimeout = 2 * time.Minute

var cronParser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

type Scheduler struct {
	cron     *cron.Cron
	cfg      config.JobsConfig
	reports  *reports.Service
	activity *activity.Logger
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

// New registers the alert job and, when retention is configured, the purge job.
func New(cfg config.JobsConfig, rep *reports.Service, act *activity.Logger, m *metrics.Metrics, log *zap.Logger) (*Scheduler, error) {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Scheduler{
		cron:     cron.New(cron.WithLocation(time.UTC), cron.WithParser(cronParser)),
		cfg:      cfg,
		reports:  rep,
		activity: act,
		metrics:  m,
		log:      log.Named("jobs"),
		now:      time.Now,
	}

	schedule := cfg.AlertSchedule
	if schedule == "" {
		schedule = "@daily"
	}
	if _, err := s.cron.AddFunc(schedule, s.run("inventory_alert", func(ctx context.Context) error {
		_, err := s.CheckStock(ctx)
		return err
	})); err != nil {
		return nil, fmt.Errorf("jobs: schedule %q: %w", schedule, err)
	}

	if cfg.RetentionDays > 0 {
		if _, err := s.cron.AddFunc("@daily", s.run("purge_activity", func(ctx context.Context) error {
			_, err := s.PurgeActivity(ctx)
			return err
		})); err != nil {
			return nil, fmt.Errorf("jobs: schedule purge: %w", err)
		}
	}
	return s, nil
}

func (s *Scheduler) Start() {
	s.cron.Start()
	s.log.Info("Scheduler started", zap.Int("jobs", len(s.cron.Entries())))
}

// Stop waits for running jobs to finish or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) {
	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.log.Warn("Scheduler stop timed out")
	}
}

func (s *Scheduler) run(name string, fn func(ctx context.Context) error) func() {
	return func() {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("Job panicked", zap.String("job", name), zap.Any("panic", r))
			}
		}()
		ctx, cancel := context.WithTimeout(context.Background(), jobTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			s.log.Error("Job failed", zap.String("job", name), zap.Error(err))
		}
	}
}

// CheckStock refreshes the stock alert gauges and records an inventory_alert
// activity entry when anything is flagged.
func (s *Scheduler) CheckStock(ctx context.Context) (*reports.StockAlerts, error) {
	alerts, err := s.reports.Alerts(ctx)
	if err != nil {
		return nil, err
	}

	s.metrics.SetStockAlerts(metrics.AlertExpired, int(alerts.Expired))
	s.metrics.SetStockAlerts(metrics.AlertLowStock, int(alerts.LowStock))
	s.metrics.SetStockAlerts(metrics.AlertExpiringSoon, int(alerts.ExpiringSoon))

	if !alerts.Flagged() {
		s.log.Info("Inventory check passed")
		return alerts, nil
	}

	s.log.Warn("Inventory needs attention",
		zap.Int64("expired", alerts.Expired),
		zap.Int64("low_stock", alerts.LowStock),
		zap.Int64("expiring_soon", alerts.ExpiringSoon))
	s.activity.Log(ctx, activity.Entry{
		Action: activity.ActionInventoryAlert,
		Details: fmt.Sprintf("%d expired, %d low stock, %d expiring within %d days",
			alerts.Expired, alerts.LowStock, alerts.ExpiringSoon, alerts.ExpiringDays),
		Metadata: map[string]any{
			"expired":       alerts.Expired,
			"low_stock":     alerts.LowStock,
			"expiring_soon": alerts.ExpiringSoon,
		},
	})
	return alerts, nil
}

// PurgeActivity drops activity entries older than the retention window. It
// does nothing when RetentionDays is not positive.
func (s *Scheduler) PurgeActivity(ctx context.Context) (int64, error) {
	if s.cfg.RetentionDays <= 0 {
		return 0, nil
	}
	before := s.now().AddDate(0, 0, -s.cfg.RetentionDays)
	n, err := s.activity.Purge(ctx, before)
	if err != nil {
		return 0, err
	}
	s.log.Info("Activity log purged", zap.Int64("deleted", n), zap.Time("before", before))
	return n, nil
}
