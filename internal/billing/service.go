// Package billing records sales. A bill and every stock decrement it causes
// commit together or not at all.
package billing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medshop/internal/activity"
	"medshop/internal/apperr"
	"medshop/internal/auth"
	"medshop/internal/database"
	"medshop/internal/metrics"
	"medshop/internal/models"
	"medshop/internal/validation"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrBillNotFound      = apperr.NotFound("bill not found")
	ErrProductNotFound   = errors.New("product not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrProductExpired    = errors.New("product expired")
)

type LineInput struct {
	ProductID uint `json:"product_id" validate:"required"`
	Quantity  int  `json:"quantity" validate:"gt=0"`
}

type CreateBillInput struct {
	CustomerName  string      `json:"customer_name" validate:"required,max=100"`
	CustomerPhone string      `json:"customer_phone" validate:"max=20"`
	CustomerEmail string      `json:"customer_email" validate:"omitempty,email,max=120"`
	PaymentMethod string      `json:"payment_method" validate:"required,oneof=cash card upi"`
	Items         []LineInput `json:"items" validate:"required,min=1,dive"`
}

type Service struct {
	pool     *database.Pool
	activity *activity.Logger
	metrics  *metrics.Metrics
	log      *zap.Logger
	now      func() time.Time
}

func NewService(pool *database.Pool, act *activity.Logger, m *metrics.Metrics, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{pool: pool, activity: act, metrics: m, log: log.Named("billing"), now: time.Now}
}

// CreateBill records a sale. Each line locks its product row, rejects expired
// stock and decrements the quantity only if enough remains. Any failing line
// rolls back the whole bill.
func (s *Service) CreateBill(ctx context.Context, actor auth.Principal, in CreateBillInput) (*models.Bill, error) {
	if err := actor.Require(models.RoleStaff); err != nil {
		return nil, err
	}
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerEmail = strings.TrimSpace(in.CustomerEmail)
	if len(in.Items) == 0 {
		return nil, apperr.Validation("at least one item is required")
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	now := s.now()
	bill := models.Bill{
		CustomerName:  in.CustomerName,
		CustomerPhone: strings.TrimSpace(in.CustomerPhone),
		CustomerEmail: in.CustomerEmail,
		TotalAmount:   decimal.Zero,
		BillDate:      now.UTC(),
		PaymentMethod: in.PaymentMethod,
		CreatedBy:     actor.ID(),
	}

	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Omit(clause.Associations).Create(&bill).Error; err != nil {
			return fmt.Errorf("insert bill: %w", err)
		}

		total := decimal.Zero
		for _, line := range in.Items {
			item, err := s.addLine(tx, bill.ID, line, now)
			if err != nil {
				return err
			}
			total = total.Add(item.LineTotal())
			bill.Items = append(bill.Items, *item)
		}

		bill.TotalAmount = total
		return tx.Model(&models.Bill{}).Where("id = ?", bill.ID).UpdateColumn("total_amount", total).Error
	})
	if err != nil {
		s.log.Warn("Bill rejected", zap.String("customer", in.CustomerName), zap.Error(err))
		return nil, err
	}

	s.log.Info("Bill created",
		zap.Uint("bill_id", bill.ID),
		zap.String("total", bill.TotalAmount.StringFixed(2)),
		zap.Int("items", len(bill.Items)))
	s.metrics.BillCreated(bill.TotalAmount)
	s.activity.Log(ctx, activity.Entry{
		UserID:  actor.ID(),
		Action:  activity.ActionBillCreated,
		Details: fmt.Sprintf("Created bill #%d", bill.ID),
		Metadata: map[string]any{
			"bill_id": bill.ID,
			"total":   bill.TotalAmount.StringFixed(2),
		},
	})
	return &bill, nil
}

func (s *Service) addLine(tx *gorm.DB, billID uint, line LineInput, now time.Time) (*models.BillItem, error) {
	if line.Quantity <= 0 {
		return nil, apperr.Validation("quantity must be greater than 0")
	}

	var product models.Product
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&product, line.ProductID).Error; err != nil {
		if database.IsNotFound(err) {
			return nil, apperr.Wrap(apperr.KindNotFound, fmt.Sprintf("product %d not found", line.ProductID), ErrProductNotFound)
		}
		return nil, err
	}
	if product.IsExpired(now) {
		return nil, apperr.Wrap(apperr.KindBusinessRule, fmt.Sprintf("%s is expired", product.Name), ErrProductExpired)
	}

	res := tx.Model(&models.Product{}).
		Where("id = ? AND quantity >= ?", product.ID, line.Quantity).
		UpdateColumn("quantity", gorm.Expr("quantity - ?", line.Quantity))
	if res.Error != nil {
		return nil, fmt.Errorf("decrement stock for product %d: %w", product.ID, res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, apperr.Wrap(apperr.KindBusinessRule, "insufficient stock for "+product.Name, ErrInsufficientStock)
	}

	item := models.BillItem{
		BillID:       billID,
		ProductID:    product.ID,
		ProductName:  product.Name,
		Quantity:     line.Quantity,
		UnitPrice:    product.Price,
		IsScheduled:  product.IsScheduled,
		ScheduleType: product.ScheduleType,
	}
	if err := tx.Omit(clause.Associations).Create(&item).Error; err != nil {
		return nil, fmt.Errorf("insert bill item: %w", err)
	}
	return &item, nil
}

func (s *Service) GetBill(ctx context.Context, id uint) (*models.Bill, error) {
	var bill models.Bill
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Preload("Items", orderByID).Preload("Creator").First(&bill, id).Error
	})
	if database.IsNotFound(err) {
		return nil, ErrBillNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("billing: get bill %d: %w", id, err)
	}
	return &bill, nil
}

// ListBills returns bills in the filter's range, newest first, with items and creator.
func (s *Service) ListBills(ctx context.Context, f DateFilter) ([]models.Bill, error) {
	bills := []models.Bill{}
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		q := tx.Preload("Items", orderByID).Preload("Creator")
		if from, to, ok := f.Range(s.now()); ok {
			q = q.Where("bill_date >= ? AND bill_date < ?", from, to)
		}
		return q.Order("bill_date desc, id desc").Find(&bills).Error
	})
	if err != nil {
		return nil, fmt.Errorf("billing: list bills: %w", err)
	}
	return bills, nil
}

// DeleteBill removes a bill and puts its quantities back on the shelf.
func (s *Service) DeleteBill(ctx context.Context, actor auth.Principal, id uint) error {
	if err := actor.Require(models.RoleStaff); err != nil {
		return err
	}

	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		var bill models.Bill
		if err := tx.Preload("Items").First(&bill, id).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrBillNotFound
			}
			return err
		}
		for _, item := range bill.Items {
			err := tx.Model(&models.Product{}).
				Where("id = ?", item.ProductID).
				UpdateColumn("quantity", gorm.Expr("quantity + ?", item.Quantity)).Error
			if err != nil {
				return fmt.Errorf("restore stock for product %d: %w", item.ProductID, err)
			}
		}
		if err := tx.Where("bill_id = ?", id).Delete(&models.BillItem{}).Error; err != nil {
			return err
		}
		return tx.Delete(&models.Bill{}, id).Error
	})
	if err != nil {
		return err
	}

	s.activity.Log(ctx, activity.Entry{
		UserID:  actor.ID(),
		Action:  activity.ActionBillDeleted,
		Details: fmt.Sprintf("Deleted bill #%d", id),
	})
	return nil
}

func orderByID(db *gorm.DB) *gorm.DB { return db.Order("id") }
