//go:build integration

package database_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"medshop/internal/activity"
	"medshop/internal/apperr"
	"medshop/internal/auth"
	"medshop/internal/billing"
	"medshop/internal/config"
	"medshop/internal/database"
	"medshop/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var seed = database.AdminSeed{Username: "admin", Email: "admin@example.com", Password: "admin123"}

// setupPostgres starts a PostgreSQL container and returns a pool with the schema in place.
func setupPostgres(t *testing.T) *database.Pool {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("medshop"),
		postgres.WithUsername("medshop"),
		postgres.WithPassword("medshop"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("Failed to terminate container: %v", err)
		}
	})

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := database.Connect(ctx, config.DatabaseConfig{
		Driver:         "postgres",
		DSN:            dsn,
		PoolSize:       4,
		MaxOverflow:    8,
		AcquireTimeout: 2 * time.Second,
		ConnectRetries: 5,
		LogLevel:       "silent",
	}, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = pool.Shutdown() })

	require.NoError(t, database.InitSchema(ctx, pool, seed, zap.NewNop()))
	return pool
}

func TestPostgresSchemaIsIdempotent(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()

	require.NoError(t, database.InitSchema(ctx, pool, seed, zap.NewNop()))

	var admins int64
	require.NoError(t, pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error
	}))
	assert.EqualValues(t, 1, admins)
}

func TestPostgresConcurrentPurchaseOfLastUnits(t *testing.T) {
	pool := setupPostgres(t)
	ctx := context.Background()
	svc := billing.NewService(pool, activity.NewLogger(pool, zap.NewNop()), nil, zap.NewNop())
	cashier := auth.Principal{UserID: 1, Username: "admin", Role: models.RoleAdmin}

	product := models.Product{
		Name:        "Amoxicillin 250mg",
		Quantity:    3,
		MinQuantity: models.DefaultMinQuantity,
		Price:       decimal.RequireFromString("12.50"),
		ExpiryDate:  datatypes.Date(time.Now().AddDate(1, 0, 0)),
	}
	require.NoError(t, pool.WithTx(ctx, func(tx *gorm.DB) error { return tx.Create(&product).Error }))

	const buyers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		rejected  int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.CreateBill(ctx, cashier, billing.CreateBillInput{
				CustomerName:  "Walk-in",
				PaymentMethod: "cash",
				Items:         []billing.LineInput{{ProductID: product.ID, Quantity: 1}},
			})
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				succeeded++
				return
			}
			assert.ErrorIs(t, err, billing.ErrInsufficientStock)
			assert.Equal(t, apperr.KindBusinessRule, apperr.KindOf(err))
			rejected++
		}()
	}
	wg.Wait()

	assert.Equal(t, 3, succeeded)
	assert.Equal(t, buyers-3, rejected)

	var left models.Product
	require.NoError(t, pool.WithTx(ctx, func(tx *gorm.DB) error { return tx.First(&left, product.ID).Error }))
	assert.Equal(t, 0, left.Quantity)
}
