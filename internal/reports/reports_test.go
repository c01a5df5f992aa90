package reports_test

import (
	"context"
	"testing"
	"time"

	"medshop/internal/database"
	"medshop/internal/models"
	"medshop/internal/reports"
	"medshop/internal/testutil"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

func seed(t *testing.T, pool *database.Pool, fn func(tx *gorm.DB) error) {
	t.Helper()
	require.NoError(t, pool.WithTx(context.Background(), fn))
}

func money(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func expiry(days int) datatypes.Date {
	return datatypes.Date(time.Now().UTC().AddDate(0, 0, days))
}

func TestDashboard(t *testing.T) {
	pool := testutil.NewPool(t)
	svc := reports.NewService(pool, 30)
	now := time.Now().UTC()

	seed(t, pool, func(tx *gorm.DB) error {
		products := []models.Product{
			{Name: "Fresh", Quantity: 50, MinQuantity: 10, Price: money("1.00"), ExpiryDate: expiry(365)},
			{Name: "Low", Quantity: 2, MinQuantity: 10, Price: money("1.00"), ExpiryDate: expiry(365)},
			{Name: "Expired", Quantity: 20, MinQuantity: 10, Price: money("1.00"), ExpiryDate: expiry(-3)},
			{Name: "Soon", Quantity: 20, MinQuantity: 10, Price: money("1.00"), ExpiryDate: expiry(10), IsScheduled: true, ScheduleType: models.ScheduleH},
		}
		if err := tx.Create(&products).Error; err != nil {
			return err
		}
		bills := []models.Bill{
			{CustomerName: "A", PaymentMethod: models.PaymentCash, TotalAmount: money("10.00"), BillDate: now},
			{CustomerName: "B", PaymentMethod: models.PaymentUPI, TotalAmount: money("5.50"), BillDate: now},
			{CustomerName: "C", PaymentMethod: models.PaymentCash, TotalAmount: money("2.50"), BillDate: now},
			{CustomerName: "Old", PaymentMethod: models.PaymentCard, TotalAmount: money("99.00"), BillDate: now.AddDate(0, 0, -3)},
		}
		return tx.Create(&bills).Error
	})

	stats, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(4), stats.TotalProducts)
	assert.Equal(t, int64(1), stats.LowStock)
	assert.Equal(t, int64(1), stats.Expired)
	assert.Equal(t, int64(1), stats.ExpiringSoon)
	assert.Equal(t, int64(1), stats.Scheduled)
	assert.Equal(t, int64(3), stats.TodayBills)
	assert.Equal(t, "18.00", stats.TodaySales.StringFixed(2))
	assert.Equal(t, "12.50", stats.PaymentMethods[models.PaymentCash].StringFixed(2))
	assert.Equal(t, "0.00", stats.PaymentMethods[models.PaymentCard].StringFixed(2))
	assert.Len(t, stats.RecentBills, 4)

	alerts, err := svc.Alerts(context.Background())
	require.NoError(t, err)
	assert.True(t, alerts.Flagged())
	assert.Equal(t, stats.StockAlerts, *alerts)
}

func TestAlertsOnEmptyShop(t *testing.T) {
	svc := reports.NewService(testutil.NewPool(t), 0)
	alerts, err := svc.Alerts(context.Background())
	require.NoError(t, err)
	assert.False(t, alerts.Flagged())
	assert.Equal(t, 30, alerts.ExpiringDays)
}

func TestSalesAndTopSelling(t *testing.T) {
	pool := testutil.NewPool(t)
	svc := reports.NewService(pool, 30)
	now := time.Now().UTC()

	var product models.Product
	seed(t, pool, func(tx *gorm.DB) error {
		product = models.Product{Name: "Syrup", Quantity: 100, MinQuantity: 10, Price: money("3.00"), ExpiryDate: expiry(100)}
		if err := tx.Create(&product).Error; err != nil {
			return err
		}
		bills := []models.Bill{
			{CustomerName: "A", PaymentMethod: models.PaymentCash, TotalAmount: money("9.00"), BillDate: now,
				Items: []models.BillItem{{ProductID: product.ID, ProductName: "Syrup", Quantity: 3, UnitPrice: money("3.00")}}},
			{CustomerName: "B", PaymentMethod: models.PaymentCash, TotalAmount: money("8.00"), BillDate: now,
				Items: []models.BillItem{
					{ProductID: product.ID, ProductName: "Syrup", Quantity: 2, UnitPrice: money("3.00")},
					{ProductID: product.ID, ProductName: "Syrup (old label)", Quantity: 1, UnitPrice: money("2.00")},
				}},
			{CustomerName: "Last month", PaymentMethod: models.PaymentCard, TotalAmount: money("30.00"), BillDate: now.AddDate(0, -2, 0),
				Items: []models.BillItem{{ProductID: product.ID, ProductName: "Syrup", Quantity: 10, UnitPrice: money("3.00")}}},
		}
		return tx.Create(&bills).Error
	})

	from := models.Today(now)
	to := from.AddDate(0, 0, 1)

	sales, err := svc.Sales(context.Background(), from, to)
	require.NoError(t, err)
	assert.Equal(t, int64(2), sales.TotalBills)
	assert.Equal(t, "17.00", sales.TotalRevenue.StringFixed(2))

	top, err := svc.TopSelling(context.Background(), from, to, 5)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "Syrup", top[0].ProductName)
	assert.Equal(t, int64(5), top[0].Sold)
	assert.Equal(t, "15.00", top[0].Revenue.StringFixed(2))
}

func TestStockValuation(t *testing.T) {
	pool := testutil.NewPool(t)
	svc := reports.NewService(pool, 30)

	seed(t, pool, func(tx *gorm.DB) error {
		sup := models.Supplier{Name: "Acme Pharma"}
		if err := tx.Create(&sup).Error; err != nil {
			return err
		}
		products := []models.Product{
			{Name: "A", Quantity: 4, MinQuantity: 1, Price: money("2.50"), ExpiryDate: expiry(50), SupplierID: &sup.ID},
			{Name: "B", Quantity: 1, MinQuantity: 1, Price: money("10.00"), ExpiryDate: expiry(50), SupplierID: &sup.ID},
			{Name: "C", Quantity: 3, MinQuantity: 1, Price: money("1.00"), ExpiryDate: expiry(50)},
		}
		return tx.Create(&products).Error
	})

	v, err := svc.StockValuation(context.Background())
	require.NoError(t, err)
	require.Len(t, v.Suppliers, 2)
	assert.Equal(t, "Acme Pharma", v.Suppliers[0].Supplier)
	assert.Equal(t, "20.00", v.Suppliers[0].Subtotal.StringFixed(2))
	assert.Len(t, v.Suppliers[0].Items, 2)
	assert.Equal(t, "No Supplier", v.Suppliers[1].Supplier)
	assert.Equal(t, "23.00", v.GrandTotal.StringFixed(2))
}
