// Package activity keeps the append-only audit trail of user actions.
package activity

import (
	"context"
	"fmt"
	"time"

	"medshop/internal/database"
	"medshop/internal/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	ActionLogin                  = "login"
	ActionLogout                 = "logout"
	ActionUserCreated            = "user_created"
	ActionUserUpdated            = "user_updated"
	ActionUserDeleted            = "user_deleted"
	ActionPasswordChanged        = "password_changed"
	ActionPasswordResetRequested = "password_reset_requested"
	ActionPasswordReset          = "password_reset"
	ActionProductCreated         = "product_created"
	ActionProductUpdated         = "product_updated"
	ActionProductDeleted         = "product_deleted"
	ActionSupplierCreated        = "supplier_created"
	ActionSupplierUpdated        = "supplier_updated"
	ActionSupplierDeleted        = "supplier_deleted"
	ActionBillCreated            = "bill_created"
	ActionBillDeleted            = "bill_deleted"
	ActionInventoryAlert         = "inventory_alert"
)

type Entry struct {
	UserID   *uint
	Action   string
	Details  string
	Metadata map[string]any
}

type Filter struct {
	UserID *uint
	Action string
	Limit  int
	Offset int
}

type Logger struct {
	pool *database.Pool
	log  *zap.Logger
	now  func() time.Time
}

func NewLogger(pool *database.Pool, log *zap.Logger) *Logger {
	if log == nil {
		log = zap.NewNop()
	}
	return &Logger{pool: pool, log: log.Named("activity"), now: time.Now}
}

// Log writes e on its own transaction. Failures are logged and swallowed so
// that auditing never fails the action being audited.
func (l *Logger) Log(ctx context.Context, e Entry) {
	err := l.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return l.Record(tx, e)
	})
	if err != nil {
		l.log.Error("Failed to record activity",
			zap.String("action", e.Action),
			zap.Uintp("user_id", e.UserID),
			zap.Error(err))
	}
}

// Record writes e inside the caller's transaction.
func (l *Logger) Record(tx *gorm.DB, e Entry) error {
	row := models.ActivityLog{
		UserID:    e.UserID,
		Action:    e.Action,
		Details:   e.Details,
		Timestamp: l.now().UTC(),
	}
	if len(e.Metadata) > 0 {
		row.Metadata = datatypes.JSONMap(e.Metadata)
	}
	if err := tx.Create(&row).Error; err != nil {
		return fmt.Errorf("activity: insert %s: %w", e.Action, err)
	}
	return nil
}

// List returns entries newest first.
func (l *Logger) List(ctx context.Context, f Filter) ([]models.ActivityLog, error) {
	if f.Limit <= 0 || f.Limit > 500 {
		f.Limit = 100
	}
	var logs []models.ActivityLog
	err := l.pool.WithTx(ctx, func(tx *gorm.DB) error {
		q := tx.Model(&models.ActivityLog{})
		if f.UserID != nil {
			q = q.Where("user_id = ?", *f.UserID)
		}
		if f.Action != "" {
			q = q.Where("action = ?", f.Action)
		}
		return q.Order("timestamp desc, id desc").Limit(f.Limit).Offset(f.Offset).Find(&logs).Error
	})
	if err != nil {
		return nil, fmt.Errorf("activity: list: %w", err)
	}
	return logs, nil
}

// Purge deletes entries older than before and returns how many went.
func (l *Logger) Purge(ctx context.Context, before time.Time) (int64, error) {
	var n int64
	err := l.pool.WithTx(ctx, func(tx *gorm.DB) error {
		res := tx.Where("timestamp < ?", before.UTC()).Delete(&models.ActivityLog{})
		n = res.RowsAffected
		return res.Error
	})
	if err != nil {
		return 0, fmt.Errorf("activity: purge: %w", err)
	}
	return n, nil
}
