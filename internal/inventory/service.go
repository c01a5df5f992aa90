// Package inventory manages products and the suppliers they come from.
package inventory

import (
	"time"

	"medshop/internal/activity"
	"medshop/internal/database"

	"go.uber.org/zap"
)

// Product list filters.
const (
	FilterAll       = "all"
	FilterExpired   = "expired"
	FilterLowStock  = "low_stock"
	FilterScheduled = "scheduled"
)

const (
	searchLimit = 10
	dateLayout  = "2006-01-02"
)

type Service struct {
	pool     *database.Pool
	activity *activity.Logger
	log      *zap.Logger
	now      func() time.Time
}

func NewService(pool *database.Pool, act *activity.Logger, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{pool: pool, activity: act, log: log.Named("inventory"), now: time.Now}
}
