package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"medshop/internal/models"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// AdminSeed is the bootstrap administrator created when no admin exists.
type AdminSeed struct {
	Username string
	Email    string
	Password string
}

// InitSchema creates every missing table in foreign-key order, adds columns
// introduced since the table was created, then makes sure an admin exists.
// Safe to run on every start.
func InitSchema(ctx context.Context, pool *Pool, seed AdminSeed, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}

	err := pool.WithTx(ctx, func(tx *gorm.DB) error {
		m := tx.Migrator()
		for _, model := range models.SchemaOrder() {
			if m.HasTable(model) {
				if err := addMissingColumns(tx, model); err != nil {
					return err
				}
				continue
			}
			if err := m.CreateTable(model); err != nil {
				if isAlreadyExists(err) {
					log.Debug("Table already exists", zap.String("model", fmt.Sprintf("%T", model)))
					continue
				}
				return fmt.Errorf("create table for %T: %w", model, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("database: init schema: %w", err)
	}
	log.Info("Database schema synced")

	return SeedAdmin(ctx, pool, seed, log)
}

func addMissingColumns(tx *gorm.DB, model interface{}) error {
	stmt := &gorm.Statement{DB: tx}
	if err := stmt.Parse(model); err != nil {
		return fmt.Errorf("parse %T: %w", model, err)
	}
	m := tx.Migrator()
	for _, dbName := range stmt.Schema.DBNames {
		if m.HasColumn(model, dbName) {
			continue
		}
		field := stmt.Schema.FieldsByDBName[dbName]
		if err := m.AddColumn(model, field.Name); err != nil {
			return fmt.Errorf("add column %s.%s: %w", stmt.Schema.Table, dbName, err)
		}
	}
	return nil
}

// SeedAdmin inserts the default administrator when no admin-role user exists.
func SeedAdmin(ctx context.Context, pool *Pool, seed AdminSeed, log *zap.Logger) error {
	if log == nil {
		log = zap.NewNop()
	}
	return pool.WithTx(ctx, func(tx *gorm.DB) error {
		var admins int64
		if err := tx.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error; err != nil {
			return fmt.Errorf("database: count admins: %w", err)
		}
		if admins > 0 {
			return nil
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(seed.Password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("database: hash admin password: %w", err)
		}
		admin := models.User{
			Username:     seed.Username,
			Email:        seed.Email,
			PasswordHash: string(hash),
			Role:         models.RoleAdmin,
		}
		if err := tx.Create(&admin).Error; err != nil {
			return fmt.Errorf("database: create default admin: %w", err)
		}

		log.Warn("Created default admin account, change its password before production use",
			zap.String("username", seed.Username),
			zap.String("email", seed.Email))
		return nil
	})
}

func isAlreadyExists(err error) bool {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == 1050
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "42P07"
	}
	// sqlite reports "table x already exists" without a distinct code
	return strings.Contains(strings.ToLower(err.Error()), "already exists")
}
