package inventory

import (
	"context"
	"fmt"
	"strings"
	"time"

	"medshop/internal/activity"
	"medshop/internal/apperr"
	"medshop/internal/auth"
	"medshop/internal/database"
	"medshop/internal/models"
	"medshop/internal/validation"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	ErrProductNotFound  = apperr.NotFound("product not found")
	ErrProductInUse     = apperr.Conflict("product is referenced by existing bills")
	ErrNegativePrice    = apperr.Validation("price must not be negative")
	ErrPriceTooLarge    = apperr.Validation("price must be at most 99999999.99")
	ErrSupplierNotFound = apperr.NotFound("supplier not found")
	ErrScheduleRequired = apperr.Validation("schedule type is required for scheduled products")
)

// maxPrice is the largest value a decimal(10,2) column holds.
var maxPrice = decimal.RequireFromString("99999999.99")

// ProductInput is the create/update payload. ExpiryDate is YYYY-MM-DD.
// A nil MinQuantity keeps the stored threshold on update.
type ProductInput struct {
	Name         string          `json:"name" validate:"required,max=100"`
	Description  string          `json:"description"`
	Quantity     int             `json:"quantity" validate:"gte=0"`
	MinQuantity  *int            `json:"min_quantity" validate:"omitempty,gte=0"`
	Price        decimal.Decimal `json:"price"`
	ExpiryDate   string          `json:"expiry_date" validate:"required,datetime=2006-01-02"`
	SupplierID   *uint           `json:"supplier_id"`
	IsScheduled  bool            `json:"is_scheduled"`
	ScheduleType string          `json:"schedule_type" validate:"omitempty,oneof=H H1"`
}

func (in *ProductInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	if !in.IsScheduled {
		in.ScheduleType = ""
	}
	if in.SupplierID != nil && *in.SupplierID == 0 {
		in.SupplierID = nil
	}
	if err := validation.Struct(in); err != nil {
		return err
	}
	if in.Price.IsNegative() {
		return ErrNegativePrice
	}
	if in.Price.Round(2).GreaterThan(maxPrice) {
		return ErrPriceTooLarge
	}
	if in.IsScheduled && in.ScheduleType == "" {
		return ErrScheduleRequired
	}
	return nil
}

func (in ProductInput) apply(p *models.Product) {
	expiry, _ := time.Parse(dateLayout, in.ExpiryDate)
	p.Name = in.Name
	p.Description = in.Description
	p.Quantity = in.Quantity
	switch {
	case in.MinQuantity != nil:
		p.MinQuantity = *in.MinQuantity
	case p.ID == 0:
		p.MinQuantity = models.DefaultMinQuantity
	}
	p.Price = in.Price.Round(2)
	p.ExpiryDate = datatypes.Date(expiry)
	p.SupplierID = in.SupplierID
	p.Supplier = nil
	p.IsScheduled = in.IsScheduled
	p.ScheduleType = in.ScheduleType
}

// ListProducts returns products ordered by name with their supplier loaded.
// Unknown filters behave like FilterAll.
func (s *Service) ListProducts(ctx context.Context, filter string) ([]models.Product, error) {
	today := models.Today(s.now())
	var products []models.Product
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		q := tx.Preload("Supplier")
		switch filter {
		case FilterExpired:
			q = q.Where("expiry_date < ?", today)
		case FilterLowStock:
			q = q.Where("quantity <= min_quantity")
		case FilterScheduled:
			q = q.Where("is_scheduled = ?", true)
		}
		return q.Order("name").Find(&products).Error
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: list products: %w", err)
	}
	return products, nil
}

// SearchProducts finds sellable products for a bill line: in stock, not
// expired, name or description containing q.
func (s *Service) SearchProducts(ctx context.Context, q string) ([]models.Product, error) {
	q = strings.TrimSpace(q)
	products := []models.Product{}
	if q == "" {
		return products, nil
	}
	like := "%" + strings.ToLower(q) + "%"
	today := models.Today(s.now())
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Where("(LOWER(name) LIKE ? OR LOWER(description) LIKE ?)", like, like).
			Where("quantity > 0").
			Where("expiry_date >= ?", today).
			Order("name").
			Limit(searchLimit).
			Find(&products).Error
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: search %q: %w", q, err)
	}
	return products, nil
}

// ExpiringWithin lists unexpired products whose expiry falls in the next days.
func (s *Service) ExpiringWithin(ctx context.Context, days int) ([]models.Product, error) {
	today := models.Today(s.now())
	var products []models.Product
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Where("expiry_date >= ? AND expiry_date <= ?", today, today.AddDate(0, 0, days)).
			Order("expiry_date, name").
			Find(&products).Error
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: expiring products: %w", err)
	}
	return products, nil
}

func (s *Service) GetProduct(ctx context.Context, id uint) (*models.Product, error) {
	var p models.Product
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Preload("Supplier").First(&p, id).Error
	})
	if database.IsNotFound(err) {
		return nil, ErrProductNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: get product %d: %w", id, err)
	}
	return &p, nil
}

func (s *Service) CreateProduct(ctx context.Context, actor auth.Principal, in ProductInput) (*models.Product, error) {
	if err := actor.Require(models.RoleStaff); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var p models.Product
	in.apply(&p)
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		if err := supplierExists(tx, p.SupplierID); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Create(&p).Error
	})
	if err != nil {
		return nil, err
	}

	s.activity.Log(ctx, activity.Entry{
		UserID:  actor.ID(),
		Action:  activity.ActionProductCreated,
		Details: "Added product: " + p.Name,
	})
	return &p, nil
}

func (s *Service) UpdateProduct(ctx context.Context, actor auth.Principal, id uint, in ProductInput) (*models.Product, error) {
	if err := actor.Require(models.RoleStaff); err != nil {
		return nil, err
	}
	if err := in.normalize(); err != nil {
		return nil, err
	}

	var p models.Product
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrProductNotFound
			}
			return err
		}
		in.apply(&p)
		if err := supplierExists(tx, p.SupplierID); err != nil {
			return err
		}
		return tx.Omit(clause.Associations).Save(&p).Error
	})
	if err != nil {
		return nil, err
	}

	s.activity.Log(ctx, activity.Entry{
		UserID:  actor.ID(),
		Action:  activity.ActionProductUpdated,
		Details: "Updated product: " + p.Name,
	})
	return &p, nil
}

// DeleteProduct removes a product that no bill refers to.
func (s *Service) DeleteProduct(ctx context.Context, actor auth.Principal, id uint) error {
	if err := actor.Require(models.RoleStaff); err != nil {
		return err
	}

	var p models.Product
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrProductNotFound
			}
			return err
		}
		var refs int64
		if err := tx.Model(&models.BillItem{}).Where("product_id = ?", id).Count(&refs).Error; err != nil {
			return err
		}
		if refs > 0 {
			return ErrProductInUse
		}
		if err := tx.Delete(&models.Product{}, id).Error; err != nil {
			if database.IsForeignKeyViolation(err) {
				return ErrProductInUse
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.log.Info("Product deleted", zap.Uint("product_id", id), zap.String("name", p.Name))
	s.activity.Log(ctx, activity.Entry{
		UserID:  actor.ID(),
		Action:  activity.ActionProductDeleted,
		Details: "Deleted product: " + p.Name,
	})
	return nil
}

func supplierExists(tx *gorm.DB, id *uint) error {
	if id == nil {
		return nil
	}
	var n int64
	if err := tx.Model(&models.Supplier{}).Where("id = ?", *id).Count(&n).Error; err != nil {
		return err
	}
	if n == 0 {
		return ErrSupplierNotFound
	}
	return nil
}
