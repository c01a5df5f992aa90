// Package reports computes read-only figures for the dashboard, the admin
// reports and the assistant.
package reports

import (
	"context"
	"fmt"
	"sort"
	"time"

	"medshop/internal/database"
	"medshop/internal/models"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const noSupplier = "No Supplier"

type Service struct {
	pool         *database.Pool
	expiringDays int
	now          func() time.Time
}

// NewService builds the reports service. expiringDays is the window used for
// the expiring-soon count.
func NewService(pool *database.Pool, expiringDays int) *Service {
	if expiringDays <= 0 {
		expiringDays = 30
	}
	return &Service{pool: pool, expiringDays: expiringDays, now: time.Now}
}

// StockAlerts counts products needing attention.
type StockAlerts struct {
	TotalProducts int64 `json:"total_products"`
	LowStock      int64 `json:"low_stock"`
	Expired       int64 `json:"expired"`
	ExpiringSoon  int64 `json:"expiring_soon"`
	Scheduled     int64 `json:"scheduled"`
	ExpiringDays  int   `json:"expiring_days"`
}

// Flagged reports whether any product is expired, low or about to expire.
func (a StockAlerts) Flagged() bool {
	return a.Expired > 0 || a.LowStock > 0 || a.ExpiringSoon > 0
}

type DashboardStats struct {
	StockAlerts
	TodaySales     decimal.Decimal            `json:"today_sales"`
	TodayBills     int64                      `json:"today_bills"`
	PaymentMethods map[string]decimal.Decimal `json:"payment_methods"`
	RecentBills    []models.Bill              `json:"recent_bills"`
}

// Alerts returns the current stock alert counts.
func (s *Service) Alerts(ctx context.Context) (*StockAlerts, error) {
	var a StockAlerts
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return s.countAlerts(tx, &a)
	})
	if err != nil {
		return nil, fmt.Errorf("reports: alerts: %w", err)
	}
	return &a, nil
}

func (s *Service) countAlerts(tx *gorm.DB, a *StockAlerts) error {
	today := models.Today(s.now())
	products := func() *gorm.DB { return tx.Model(&models.Product{}) }

	a.ExpiringDays = s.expiringDays
	if err := products().Count(&a.TotalProducts).Error; err != nil {
		return err
	}
	if err := products().Where("quantity <= min_quantity").Count(&a.LowStock).Error; err != nil {
		return err
	}
	if err := products().Where("expiry_date < ?", today).Count(&a.Expired).Error; err != nil {
		return err
	}
	if err := products().Where("expiry_date >= ? AND expiry_date <= ?", today, today.AddDate(0, 0, s.expiringDays)).
		Count(&a.ExpiringSoon).Error; err != nil {
		return err
	}
	return products().Where("is_scheduled = ?", true).Count(&a.Scheduled).Error
}

// Dashboard gathers the stock alert counts and today's takings.
func (s *Service) Dashboard(ctx context.Context) (*DashboardStats, error) {
	today := models.Today(s.now())
	tomorrow := today.AddDate(0, 0, 1)

	stats := DashboardStats{
		TodaySales: decimal.Zero,
		PaymentMethods: map[string]decimal.Decimal{
			models.PaymentCash: decimal.Zero,
			models.PaymentCard: decimal.Zero,
			models.PaymentUPI:  decimal.Zero,
		},
	}

	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.countAlerts(tx, &stats.StockAlerts); err != nil {
			return err
		}

		var split []struct {
			PaymentMethod string
			Total         decimal.Decimal
			Bills         int64
		}
		err := tx.Model(&models.Bill{}).
			Select("payment_method, COALESCE(SUM(total_amount), 0) AS total, COUNT(*) AS bills").
			Where("bill_date >= ? AND bill_date < ?", today, tomorrow).
			Group("payment_method").
			Scan(&split).Error
		if err != nil {
			return err
		}
		for _, row := range split {
			stats.PaymentMethods[row.PaymentMethod] = row.Total
			stats.TodaySales = stats.TodaySales.Add(row.Total)
			stats.TodayBills += row.Bills
		}

		return tx.Preload("Creator").Order("bill_date desc, id desc").Limit(5).Find(&stats.RecentBills).Error
	})
	if err != nil {
		return nil, fmt.Errorf("reports: dashboard: %w", err)
	}
	return &stats, nil
}

type SalesSummary struct {
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	TotalRevenue decimal.Decimal `json:"total_revenue"`
	TotalBills   int64           `json:"total_bills"`
}

// Sales sums bills dated in [from, to).
func (s *Service) Sales(ctx context.Context, from, to time.Time) (*SalesSummary, error) {
	res := SalesSummary{From: from, To: to}
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		q := func() *gorm.DB {
			return tx.Model(&models.Bill{}).Where("bill_date >= ? AND bill_date < ?", from.UTC(), to.UTC())
		}
		if err := q().Select("COALESCE(SUM(total_amount), 0)").Scan(&res.TotalRevenue).Error; err != nil {
			return err
		}
		return q().Count(&res.TotalBills).Error
	})
	if err != nil {
		return nil, fmt.Errorf("reports: sales: %w", err)
	}
	return &res, nil
}

type TopProduct struct {
	ProductName string          `json:"product_name"`
	Sold        int64           `json:"sold"`
	Revenue     decimal.Decimal `json:"revenue"`
}

// TopSelling ranks products by units sold in [from, to).
func (s *Service) TopSelling(ctx context.Context, from, to time.Time, limit int) ([]TopProduct, error) {
	if limit <= 0 {
		limit = 5
	}
	top := []TopProduct{}
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Table("bill_items").
			Select("bill_items.product_name AS product_name, SUM(bill_items.quantity) AS sold, "+
				"SUM(bill_items.quantity * bill_items.unit_price) AS revenue").
			Joins("JOIN bills ON bills.id = bill_items.bill_id").
			Where("bills.bill_date >= ? AND bills.bill_date < ?", from.UTC(), to.UTC()).
			Group("bill_items.product_name").
			Order("sold desc, product_name").
			Limit(limit).
			Scan(&top).Error
	})
	if err != nil {
		return nil, fmt.Errorf("reports: top selling: %w", err)
	}
	return top, nil
}

type ValuationItem struct {
	ProductID uint            `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Total     decimal.Decimal `json:"total"`
}

type SupplierGroup struct {
	Supplier string          `json:"supplier"`
	Items    []ValuationItem `json:"items"`
	Subtotal decimal.Decimal `json:"subtotal"`
}

type Valuation struct {
	Suppliers  []SupplierGroup `json:"suppliers"`
	GrandTotal decimal.Decimal `json:"grand_total"`
}

// StockValuation prices every product on hand, grouped by supplier name.
func (s *Service) StockValuation(ctx context.Context) (*Valuation, error) {
	var products []models.Product
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Preload("Supplier").Order("name").Find(&products).Error
	})
	if err != nil {
		return nil, fmt.Errorf("reports: valuation: %w", err)
	}

	res := Valuation{Suppliers: []SupplierGroup{}, GrandTotal: decimal.Zero}
	groups := make(map[string]*SupplierGroup)
	for _, p := range products {
		name := noSupplier
		if p.Supplier != nil {
			name = p.Supplier.Name
		}
		g, ok := groups[name]
		if !ok {
			g = &SupplierGroup{Supplier: name, Items: []ValuationItem{}, Subtotal: decimal.Zero}
			groups[name] = g
		}
		total := p.Price.Mul(decimal.NewFromInt(int64(p.Quantity)))
		g.Items = append(g.Items, ValuationItem{
			ProductID: p.ID,
			Name:      p.Name,
			Quantity:  p.Quantity,
			Price:     p.Price,
			Total:     total,
		})
		g.Subtotal = g.Subtotal.Add(total)
		res.GrandTotal = res.GrandTotal.Add(total)
	}

	for _, g := range groups {
		res.Suppliers = append(res.Suppliers, *g)
	}
	sort.Slice(res.Suppliers, func(i, j int) bool { return res.Suppliers[i].Supplier < res.Suppliers[j].Supplier })
	return &res, nil
}
