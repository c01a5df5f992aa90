// Package testutil opens throwaway sqlite databases for package tests.
package testutil

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"medshop/internal/config"
	"medshop/internal/database"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

var AdminSeed = database.AdminSeed{
	Username: "admin",
	Email:    "admin@example.com",
	Password: "admin123",
}

// OpenDB opens an empty file-backed sqlite database in t's temp dir.
func OpenDB(t testing.TB) *gorm.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "medshop.db")
	cfg := config.DatabaseConfig{
		Driver:         "sqlite",
		DSN:            fmt.Sprintf("file:%s?_foreign_keys=1&_busy_timeout=10000&_txlock=immediate", path),
		PoolSize:       5,
		MaxOverflow:    10,
		ConnectRetries: 1,
		LogLevel:       "silent",
	}
	db, err := database.Open(cfg, zap.NewNop())
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return db
}

// NewPool returns a pool over OpenDB with the schema initialised and the
// default admin seeded.
func NewPool(t testing.TB) *database.Pool {
	t.Helper()
	return NewPoolWith(t, database.PoolOptions{Size: 5, AcquireTimeout: 2 * time.Second})
}

func NewPoolWith(t testing.TB, opts database.PoolOptions) *database.Pool {
	t.Helper()
	db := OpenDB(t)
	ctx := context.Background()

	pool, err := database.NewPool(ctx, db, opts)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.InitSchema(ctx, pool, AdminSeed, zap.NewNop()))
	return pool
}
