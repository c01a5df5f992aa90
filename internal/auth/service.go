package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"medshop/internal/activity"
	"medshop/internal/apperr"
	"medshop/internal/database"
	"medshop/internal/mailer"
	"medshop/internal/models"
	"medshop/internal/validation"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLength = 6

var (
	ErrInvalidCredentials = apperr.Unauthorized("invalid username or password")
	ErrUsernameTaken      = apperr.Conflict("username already exists")
	ErrEmailTaken         = apperr.Conflict("email already registered")
	ErrUserNotFound       = apperr.NotFound("user not found")
	ErrFieldsRequired     = apperr.Validation("all fields are required")
	ErrPasswordMismatch   = apperr.Validation("new passwords do not match")
	ErrPasswordTooShort   = apperr.Validation(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	ErrWrongPassword      = apperr.Validation("current password is incorrect")
	ErrCannotDeleteAdmin  = apperr.Conflict("cannot delete admin user")
	ErrLastAdmin          = apperr.Conflict("cannot demote the last admin")
	ErrInvalidResetToken  = apperr.Validation("invalid or expired reset token")
	ErrAccountGone        = apperr.Unauthorized("account no longer exists")
)

type RegisterInput struct {
	Username string `json:"username" validate:"required,min=3,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=6"`
	Role     string `json:"role" validate:"omitempty,oneof=admin staff"`
}

type UpdateUserInput struct {
	Username string `json:"username" validate:"required,min=3,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Role     string `json:"role" validate:"required,oneof=admin staff"`
}

type ChangePasswordInput struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type ResetPasswordInput struct {
	Token           string `json:"token"`
	NewPassword     string `json:"new_password"`
	ConfirmPassword string `json:"confirm_password"`
}

type LoginResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	Principal Principal `json:"user"`
}

type Options struct {
	BaseURL  string
	HashCost int
}

type Service struct {
	pool     *database.Pool
	issuer   *TokenIssuer
	activity *activity.Logger
	mailer   mailer.Mailer
	log      *zap.Logger
	opts     Options
	now      func() time.Time
}

func NewService(pool *database.Pool, issuer *TokenIssuer, act *activity.Logger, m mailer.Mailer, log *zap.Logger, opts Options) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if opts.HashCost == 0 {
		opts.HashCost = bcrypt.DefaultCost
	}
	return &Service{
		pool:     pool,
		issuer:   issuer,
		activity: act,
		mailer:   m,
		log:      log.Named("auth"),
		opts:     opts,
		now:      time.Now,
	}
}

func (s *Service) Issuer() *TokenIssuer { return s.issuer }

// Login verifies the credentials, stamps last_login and returns a session token.
func (s *Service) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	var user models.User
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Where("username = ?", username).First(&user).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrInvalidCredentials
			}
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)) != nil {
			return ErrInvalidCredentials
		}
		now := s.now().UTC()
		user.LastLogin = &now
		return tx.Model(&models.User{}).Where("id = ?", user.ID).UpdateColumn("last_login", now).Error
	})
	if err != nil {
		return nil, err
	}

	token, expires, err := s.issuer.GenerateToken(user)
	if err != nil {
		return nil, err
	}

	s.activity.Log(ctx, activity.Entry{UserID: &user.ID, Action: activity.ActionLogin})
	return &LoginResult{Token: token, ExpiresAt: expires, Principal: PrincipalFromUser(user)}, nil
}

// Authenticate validates a session token and reloads its user, so a role
// change or deletion applies to tokens issued before it.
func (s *Service) Authenticate(ctx context.Context, tokenString string) (Principal, error) {
	p, err := s.issuer.Authenticate(ctx, tokenString)
	if err != nil {
		return Principal{}, err
	}
	user, err := s.GetUser(ctx, p.UserID)
	if errors.Is(err, ErrUserNotFound) {
		return Principal{}, ErrAccountGone
	}
	if err != nil {
		return Principal{}, err
	}
	return PrincipalFromUser(*user), nil
}

// Logout only records the event. Session tokens are stateless and expire on their own.
func (s *Service) Logout(ctx context.Context, actor Principal) {
	s.activity.Log(ctx, activity.Entry{UserID: actor.ID(), Action: activity.ActionLogout})
}

func (s *Service) Profile(ctx context.Context, actor Principal) (*models.User, error) {
	return s.GetUser(ctx, actor.UserID)
}

func (s *Service) GetUser(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.First(&user, id).Error
	})
	if database.IsNotFound(err) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("auth: get user %d: %w", id, err)
	}
	return &user, nil
}

// Register creates a user account. Admin only.
func (s *Service) Register(ctx context.Context, actor Principal, in RegisterInput) (*models.User, error) {
	if err := actor.Require(models.RoleAdmin); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}
	if in.Role == "" {
		in.Role = models.RoleStaff
	}

	hash, err := s.hash(in.Password)
	if err != nil {
		return nil, err
	}

	user := models.User{Username: in.Username, Email: in.Email, PasswordHash: hash, Role: in.Role}
	err = s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		if err := ensureUnique(tx, 0, in.Username, in.Email); err != nil {
			return err
		}
		if err := tx.Create(&user).Error; err != nil {
			if database.IsDuplicate(err) {
				return ErrUsernameTaken
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.activity.Log(ctx, activity.Entry{
		UserID:  actor.ID(),
		Action:  activity.ActionUserCreated,
		Details: "Created user: " + user.Username,
	})
	return &user, nil
}

func (s *Service) ChangePassword(ctx context.Context, actor Principal, in ChangePasswordInput) error {
	if in.CurrentPassword == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
		return ErrFieldsRequired
	}
	if in.NewPassword != in.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if len(in.NewPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, actor.UserID).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}
		if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(in.CurrentPassword)) != nil {
			return ErrWrongPassword
		}
		return s.setPassword(tx, user.ID, in.NewPassword)
	})
	if err != nil {
		return err
	}

	s.activity.Log(ctx, activity.Entry{UserID: actor.ID(), Action: activity.ActionPasswordChanged})
	return nil
}

// RequestPasswordReset emails a signed reset link. Unknown addresses get the
// same outcome as known ones so accounts cannot be enumerated.
func (s *Service) RequestPasswordReset(ctx context.Context, email string) error {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return apperr.Validation("email is required")
	}

	var user models.User
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Where("email = ?", email).First(&user).Error
	})
	if database.IsNotFound(err) {
		s.log.Info("Password reset requested for unknown email", zap.String("email", email))
		return nil
	}
	if err != nil {
		return fmt.Errorf("auth: lookup %s: %w", email, err)
	}

	token, err := s.issuer.GenerateResetToken(user)
	if err != nil {
		return err
	}

	body := fmt.Sprintf("A password reset was requested for %s.\n\n"+
		"Reset your password here: %s/reset-password?token=%s\n\n"+
		"The link expires in %s. If you did not request it, ignore this email.\n",
		user.Username, strings.TrimRight(s.opts.BaseURL, "/"), token, s.issuer.resetTTL)
	if err := s.mailer.Send(ctx, mailer.Message{To: user.Email, Subject: "Password Reset", Body: body}); err != nil {
		return fmt.Errorf("auth: send reset email: %w", err)
	}

	s.activity.Log(ctx, activity.Entry{UserID: &user.ID, Action: activity.ActionPasswordResetRequested})
	return nil
}

// ResetPassword sets a new password using a token from RequestPasswordReset.
// The token dies with the old password hash, so it works once.
func (s *Service) ResetPassword(ctx context.Context, in ResetPasswordInput) error {
	if in.Token == "" || in.NewPassword == "" || in.ConfirmPassword == "" {
		return ErrFieldsRequired
	}
	if in.NewPassword != in.ConfirmPassword {
		return ErrPasswordMismatch
	}
	if len(in.NewPassword) < minPasswordLength {
		return ErrPasswordTooShort
	}

	userID, claims, err := s.issuer.ParseResetToken(in.Token)
	if err != nil {
		return ErrInvalidResetToken
	}

	err = s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, userID).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrInvalidResetToken
			}
			return err
		}
		if !claims.MatchesPassword(user) {
			return ErrInvalidResetToken
		}
		return s.setPassword(tx, user.ID, in.NewPassword)
	})
	if err != nil {
		return err
	}

	s.activity.Log(ctx, activity.Entry{UserID: &userID, Action: activity.ActionPasswordReset})
	return nil
}

func (s *Service) ListUsers(ctx context.Context, actor Principal) ([]models.User, error) {
	if err := actor.Require(models.RoleAdmin); err != nil {
		return nil, err
	}
	var users []models.User
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Order("created_at desc, id desc").Find(&users).Error
	})
	if err != nil {
		return nil, fmt.Errorf("auth: list users: %w", err)
	}
	return users, nil
}

// UpdateUser changes name, email and role. The last admin cannot be demoted.
func (s *Service) UpdateUser(ctx context.Context, actor Principal, id uint, in UpdateUserInput) (*models.User, error) {
	if err := actor.Require(models.RoleAdmin); err != nil {
		return nil, err
	}
	in.Username = strings.TrimSpace(in.Username)
	in.Email = strings.TrimSpace(strings.ToLower(in.Email))
	if err := validation.Struct(in); err != nil {
		return nil, err
	}

	var user models.User
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.First(&user, id).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}
		if err := ensureUnique(tx, id, in.Username, in.Email); err != nil {
			return err
		}
		if user.IsAdmin() && in.Role != models.RoleAdmin {
			var admins int64
			if err := tx.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&admins).Error; err != nil {
				return err
			}
			if admins <= 1 {
				return ErrLastAdmin
			}
		}
		user.Username, user.Email, user.Role = in.Username, in.Email, in.Role
		return tx.Model(&models.User{}).Where("id = ?", id).Updates(map[string]interface{}{
			"username": in.Username,
			"email":    in.Email,
			"role":     in.Role,
		}).Error
	})
	if err != nil {
		return nil, err
	}

	s.activity.Log(ctx, activity.Entry{
		UserID:  actor.ID(),
		Action:  activity.ActionUserUpdated,
		Details: "Updated user: " + user.Username,
	})
	return &user, nil
}

// DeleteUser removes a staff account and its activity history. Bills keep
// their record with the creator cleared.
func (s *Service) DeleteUser(ctx context.Context, actor Principal, id uint) error {
	if err := actor.Require(models.RoleAdmin); err != nil {
		return err
	}
	err := s.pool.WithTx(ctx, func(tx *gorm.DB) error {
		var user models.User
		if err := tx.First(&user, id).Error; err != nil {
			if database.IsNotFound(err) {
				return ErrUserNotFound
			}
			return err
		}
		if user.IsAdmin() {
			return ErrCannotDeleteAdmin
		}
		if err := tx.Where("user_id = ?", id).Delete(&models.ActivityLog{}).Error; err != nil {
			return err
		}
		if err := tx.Model(&models.Bill{}).Where("created_by = ?", id).Update("created_by", nil).Error; err != nil {
			return err
		}
		return tx.Delete(&models.User{}, id).Error
	})
	if err != nil {
		return err
	}

	s.activity.Log(ctx, activity.Entry{
		UserID:  actor.ID(),
		Action:  activity.ActionUserDeleted,
		Details: fmt.Sprintf("Deleted user ID: %d", id),
	})
	return nil
}

func (s *Service) hash(password string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.HashCost)
	if err != nil {
		return "", fmt.Errorf("auth: hash password: %w", err)
	}
	return string(b), nil
}

func (s *Service) setPassword(tx *gorm.DB, userID uint, password string) error {
	hash, err := s.hash(password)
	if err != nil {
		return err
	}
	return tx.Model(&models.User{}).Where("id = ?", userID).Update("password_hash", hash).Error
}

// ensureUnique checks username and email against every user except exceptID.
func ensureUnique(tx *gorm.DB, exceptID uint, username, email string) error {
	var n int64
	if err := tx.Model(&models.User{}).Where("username = ? AND id <> ?", username, exceptID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrUsernameTaken
	}
	if err := tx.Model(&models.User{}).Where("email = ? AND id <> ?", email, exceptID).Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrEmailTaken
	}
	return nil
}
