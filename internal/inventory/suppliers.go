package inventory

import (
	"context"
	"fmt"
	"strings"

	"medshop/internal/activity"
	"medshop/internal/apperr"
	"medshop/internal/auth"
	"medshop/internal/database"
	"medshop/internal/models"
	"medshop/internal/validation"

	"gorm.io/gorm"
)

var ErrSupplierInUse = apperr.Conflict("cannot delete supplier with associated products")

type SupplierInput struct {
	Name          string `json:"name" validate:"required,max=100"`
	ContactPerson string `json:"contact_person" validate:"max=100"`
	Phone         string `json:"phone" validate:"max=20"`
	Email         string `json:"email" validate:"omitempty,email,max=120"`
	Address       string `json:"address"`
}

func (in SupplierInput) apply(sup *models.Supplier) {
	sup.Name = strings.TrimSpace(in.Name)
	sup.ContactPerson = strings.TrimSpace(in.ContactPerson)
	sup.Phone = strings.TrimSpace(in.Phone)
	sup.Email = strings.TrimSpace(in.Email)
	sup.Address = in.Address
}

func (s *Service) ListSuppliers(ctx context.Context) ([]models.Supplier, error) {
	var suppliers []models.Supplier
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Order("name").Find(&suppliers).Error
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: list suppliers: %w", err)
	}
	return suppliers, nil
}

func (s *Service) GetSupplier(ctx context.Context, id uint) (*models.Supplier, error) {
	var sup models.Supplier
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.First(&sup, id).Error
	})
	if database.IsNotFound(err) {
		return nil, ErrSupplierNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("inventory: get supplier %d: %w", id, err)
	}
	return &sup, nil
}

func (s *Service) CreateSupplier(ctx context.Context, actor auth.Principal, in SupplierInput) (*models.Supplier, error) {
	if err := actor.Require(models.RoleStaff); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var sup models.Supplier
	in.apply(&sup)
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&sup).Error
	})
	if err != nil {
		return nil, fmt.Errorf("inventory: create supplier: %w", err)
	}

	s.activity.Log(ctx, activity.Entry{
		UserID:  actor.ID(),
		Action:  activity.ActionSupplierCreated,
		Details: "Added supplier: " + sup.Name,
	})
	return &sup, nil
}

func (s *Service) UpdateSupplier(ctx context.Context, actor auth.Principal, id uint, in SupplierInput) (*models.Supplier, error) {
	if err := actor.Require(models.RoleStaff); err != nil {
		return nil, err
	}
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var sup models.Supplier
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&sup, id).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrSupplierNotFound
			}
			return err
		}
		in.apply(&sup)
		return tx.Save(&sup).Error
	})
	if err != nil {
		return nil, err
	}

	s.activity.Log(ctx, activity.Entry{
		UserID:  actor.ID(),
		Action:  activity.ActionSupplierUpdated,
		Details: "Updated supplier: " + sup.Name,
	})
	return &sup, nil
}

// DeleteSupplier removes a supplier no product points at.
func (s *Service) DeleteSupplier(ctx context.Context, actor auth.Principal, id uint) error {
	if err := actor.Require(models.RoleStaff); err != nil {
		return err
	}

	var sup models.Supplier
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&sup, id).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrSupplierNotFound
			}
			return err
		}
		var n int64
		if err := tx.Model(&models.Product{}).Where("supplier_id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n > 0 {
			return ErrSupplierInUse
		}
		if err := tx.Delete(&models.Supplier{}, id).Error; err != nil {
			if database.IsForeignKeyViolation(err) {
				return ErrSupplierInUse
			}
			return err
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.activity.Log(ctx, activity.Entry{
		UserID:  actor.ID(),
		Action:  activity.ActionSupplierDeleted,
		Details: "Deleted supplier: " + sup.Name,
	})
	return nil
}
