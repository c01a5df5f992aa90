package billing_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"medshop/internal/activity"
	"medshop/internal/apperr"
	"medshop/internal/auth"
	"medshop/internal/billing"
	"medshop/internal/database"
	"medshop/internal/metrics"
	"medshop/internal/models"
	"medshop/internal/testutil"
	"medshop/internal/validation"

	"github.com/prometheus/client_golang/prometheus"
	prom "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var cashier = auth.Principal{UserID: 1, Username: "admin", Role: models.RoleAdmin}

type fixture struct {
	svc      *billing.Service
	pool     *database.Pool
	activity *activity.Logger
	metrics  *metrics.Metrics
}

func setup(t *testing.T) fixture {
	t.Helper()
	pool := testutil.NewPool(t)
	act := activity.NewLogger(pool, zap.NewNop())
	m := metrics.New(prometheus.NewRegistry())
	return fixture{
		svc:      billing.NewService(pool, act, m, zap.NewNop()),
		pool:     pool,
		activity: act,
		metrics:  m,
	}
}

func (f fixture) seedProduct(t *testing.T, name string, qty int, price string, expiry time.Time) models.Product {
	t.Helper()
	p := models.Product{
		Name:        name,
		Quantity:    qty,
		MinQuantity: models.DefaultMinQuantity,
		Price:       decimal.RequireFromString(price),
		ExpiryDate:  datatypes.Date(expiry),
	}
	require.NoError(t, f.pool.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(&p).Error
	}))
	return p
}

func (f fixture) quantity(t *testing.T, id uint) int {
	t.Helper()
	var p models.Product
	require.NoError(t, f.pool.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.First(&p, id).Error
	}))
	return p.Quantity
}

func (f fixture) billCount(t *testing.T) (bills, items int64) {
	t.Helper()
	require.NoError(t, f.pool.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Model(&models.Bill{}).Count(&bills).Error; err != nil {
			return err
		}
		return tx.Model(&models.BillItem{}).Count(&items).Error
	}))
	return bills, items
}

var nextYear = time.Now().UTC().AddDate(1, 0, 0)

func input(items ...billing.LineInput) billing.CreateBillInput {
	return billing.CreateBillInput{
		CustomerName:  "Jane Doe",
		CustomerPhone: "555-0101",
		PaymentMethod: models.PaymentCash,
		Items:         items,
	}
}

func TestCreateBill(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.seedProduct(t, "Paracetamol", 10, "5.00", nextYear)

	bill, err := f.svc.CreateBill(ctx, cashier, input(billing.LineInput{ProductID: p.ID, Quantity: 3}))
	require.NoError(t, err)
	assert.Equal(t, "15.00", bill.TotalAmount.StringFixed(2))
	assert.Equal(t, 7, f.quantity(t, p.ID))

	got, err := f.svc.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, "15.00", got.TotalAmount.StringFixed(2))
	require.Len(t, got.Items, 1)
	assert.Equal(t, "Paracetamol", got.Items[0].ProductName)
	assert.Equal(t, "5.00", got.Items[0].UnitPrice.StringFixed(2))
	require.NotNil(t, got.Creator)
	assert.Equal(t, "admin", got.Creator.Username)

	logs, err := f.activity.List(ctx, activity.Filter{Action: activity.ActionBillCreated})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, 1.0, prom.ToFloat64(f.metrics.BillsCreatedTotal))
	assert.Equal(t, 15.0, prom.ToFloat64(f.metrics.BillAmountTotal))
}

func TestCreateBillSnapshotsPrice(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.seedProduct(t, "Insulin", 5, "20.00", nextYear)

	bill, err := f.svc.CreateBill(ctx, cashier, input(billing.LineInput{ProductID: p.ID, Quantity: 1}))
	require.NoError(t, err)

	require.NoError(t, f.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Model(&models.Product{}).Where("id = ?", p.ID).Update("price", decimal.RequireFromString("25.00")).Error
	}))

	got, err := f.svc.GetBill(ctx, bill.ID)
	require.NoError(t, err)
	assert.Equal(t, "20.00", got.Items[0].UnitPrice.StringFixed(2))
}

func TestCreateBillIsAllOrNothing(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	plenty := f.seedProduct(t, "Vitamin C", 10, "2.00", nextYear)
	scarce := f.seedProduct(t, "Antibiotic", 1, "9.00", nextYear)
	expired := f.seedProduct(t, "Old Syrup", 10, "4.00", time.Now().UTC().AddDate(0, 0, -2))

	tests := []struct {
		name   string
		items  []billing.LineInput
		target error
		kind   apperr.Kind
	}{
		{
			name:   "insufficient stock on a later line",
			items:  []billing.LineInput{{ProductID: plenty.ID, Quantity: 2}, {ProductID: scarce.ID, Quantity: 2}},
			target: billing.ErrInsufficientStock,
			kind:   apperr.KindBusinessRule,
		},
		{
			name:   "unknown product",
			items:  []billing.LineInput{{ProductID: plenty.ID, Quantity: 2}, {ProductID: 9999, Quantity: 1}},
			target: billing.ErrProductNotFound,
			kind:   apperr.KindNotFound,
		},
		{
			name:   "expired product",
			items:  []billing.LineInput{{ProductID: plenty.ID, Quantity: 1}, {ProductID: expired.ID, Quantity: 1}},
			target: billing.ErrProductExpired,
			kind:   apperr.KindBusinessRule,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateBill(ctx, cashier, input(tt.items...))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.target)
			assert.Equal(t, tt.kind, apperr.KindOf(err))

			assert.Equal(t, 10, f.quantity(t, plenty.ID))
			assert.Equal(t, 1, f.quantity(t, scarce.ID))
			bills, items := f.billCount(t)
			assert.Zero(t, bills)
			assert.Zero(t, items)
		})
	}
}

func TestCreateBillValidation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.seedProduct(t, "Aspirin", 10, "1.00", nextYear)

	_, err := f.svc.CreateBill(ctx, cashier, input())
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))

	bad := input(billing.LineInput{ProductID: p.ID, Quantity: 0})
	bad.PaymentMethod = "cheque"
	bad.CustomerName = " "
	bad.CustomerEmail = "nope"
	_, err = f.svc.CreateBill(ctx, cashier, bad)
	fields, ok := validation.Fields(err)
	require.True(t, ok)
	assert.Contains(t, fields, "payment_method")
	assert.Contains(t, fields, "customer_name")
	assert.Contains(t, fields, "customer_email")
	assert.Contains(t, fields, "quantity")

	assert.Equal(t, 10, f.quantity(t, p.ID))
}

func TestConcurrentPurchaseOfLastUnit(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.seedProduct(t, "Rare Drug", 1, "100.00", nextYear)

	const buyers = 4
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		successes int
		failures  []error
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.CreateBill(ctx, cashier, input(billing.LineInput{ProductID: p.ID, Quantity: 1}))
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				successes++
				return
			}
			failures = append(failures, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	for _, err := range failures {
		assert.ErrorIs(t, err, billing.ErrInsufficientStock)
	}
	assert.Equal(t, 0, f.quantity(t, p.ID))
	bills, _ := f.billCount(t)
	assert.Equal(t, int64(1), bills)
}

func TestDeleteBillRestoresStock(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	a := f.seedProduct(t, "Gauze", 10, "1.50", nextYear)
	b := f.seedProduct(t, "Tape", 5, "0.75", nextYear)

	bill, err := f.svc.CreateBill(ctx, cashier, input(
		billing.LineInput{ProductID: a.ID, Quantity: 4},
		billing.LineInput{ProductID: b.ID, Quantity: 5},
	))
	require.NoError(t, err)
	assert.Equal(t, "9.75", bill.TotalAmount.StringFixed(2))
	assert.Equal(t, 0, f.quantity(t, b.ID))

	require.NoError(t, f.svc.DeleteBill(ctx, cashier, bill.ID))
	assert.Equal(t, 10, f.quantity(t, a.ID))
	assert.Equal(t, 5, f.quantity(t, b.ID))

	bills, items := f.billCount(t)
	assert.Zero(t, bills)
	assert.Zero(t, items)

	assert.ErrorIs(t, f.svc.DeleteBill(ctx, cashier, bill.ID), billing.ErrBillNotFound)
	_, err = f.svc.GetBill(ctx, bill.ID)
	assert.ErrorIs(t, err, billing.ErrBillNotFound)
}

func TestListBillsByFilter(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	p := f.seedProduct(t, "Cough Drops", 50, "1.00", nextYear)

	for i := 0; i < 3; i++ {
		_, err := f.svc.CreateBill(ctx, cashier, input(billing.LineInput{ProductID: p.ID, Quantity: 1}))
		require.NoError(t, err)
	}

	all, err := f.svc.ListBills(ctx, billing.DateFilter{Kind: billing.FilterAll})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Greater(t, all[0].ID, all[2].ID, "newest first")
	assert.Len(t, all[0].Items, 1)

	today, err := f.svc.ListBills(ctx, billing.DateFilter{Kind: billing.FilterToday})
	require.NoError(t, err)
	assert.Len(t, today, 3)

	yesterday, err := f.svc.ListBills(ctx, billing.DateFilter{Kind: billing.FilterYesterday})
	require.NoError(t, err)
	assert.Empty(t, yesterday)
}
