package jobs

import (
	"context"
	"testing"
	"time"

	"medshop/internal/activity"
	"medshop/internal/config"
	"medshop/internal/metrics"
	"medshop/internal/models"
	"medshop/internal/reports"
	"medshop/internal/testutil"

	"github.com/prometheus/client_golang/prometheus"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func TestNewRejectsBadSchedule(t *testing.T) {
	_, err := New(config.JobsConfig{AlertSchedule: "every so often"}, nil, nil, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestNewRegistersJobs(t *testing.T) {
	s, err := New(config.JobsConfig{AlertSchedule: "0 */6 * * *"}, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 1)

	s, err = New(config.JobsConfig{RetentionDays: 90}, nil, nil, nil, nil)
	require.NoError(t, err)
	assert.Len(t, s.cron.Entries(), 2)
}

func TestCheckStock(t *testing.T) {
	pool := testutil.NewPool(t)
	act := activity.NewLogger(pool, zap.NewNop())
	m := metrics.New(prometheus.NewRegistry())
	s, err := New(config.JobsConfig{ExpiringDays: 30}, reports.NewService(pool, 30), act, m, zap.NewNop())
	require.NoError(t, err)
	ctx := context.Background()

	alerts, err := s.CheckStock(ctx)
	require.NoError(t, err)
	assert.False(t, alerts.Flagged())

	logs, err := act.List(ctx, activity.Filter{Action: activity.ActionInventoryAlert})
	require.NoError(t, err)
	assert.Empty(t, logs)

	require.NoError(t, pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&models.Product{
			Name:        "Eye Drops",
			Quantity:    1,
			MinQuantity: 5,
			Price:       decimal.NewFromInt(4),
			ExpiryDate:  datatypes.Date(time.Now().UTC().AddDate(0, 0, -1)),
		}).Error
	}))

	alerts, err = s.CheckStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), alerts.Expired)
	assert.Equal(t, int64(1), alerts.LowStock)
	assert.Equal(t, 1.0, prom.ToFloat64(m.StockAlerts.WithLabelValues(metrics.AlertExpired)))

	logs, err = act.List(ctx, activity.Filter{Action: activity.ActionInventoryAlert})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Nil(t, logs[0].UserID)
	assert.Contains(t, logs[0].Details, "1 expired, 1 low stock")
}

func TestPurgeActivity(t *testing.T) {
	pool := testutil.NewPool(t)
	act := activity.NewLogger(pool, zap.NewNop())
	ctx := context.Background()

	act.Log(ctx, activity.Entry{Action: activity.ActionLogin})

	s, err := New(config.JobsConfig{}, nil, act, nil, nil)
	require.NoError(t, err)
	n, err := s.PurgeActivity(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "retention disabled")

	s.cfg.RetentionDays = 7
	s.now = func() time.Time { return time.Now().AddDate(0, 0, 8) }
	n, err = s.PurgeActivity(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
