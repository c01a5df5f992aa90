package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"

	"medshop/internal/apperr"
	"medshop/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

const (
	purposeSession       = "session"
	purposePasswordReset = "password_reset"
)

var (
	ErrInvalidToken = errors.New("invalid or expired token")
	ErrWrongPurpose = errors.New("token not valid for this purpose")
)

// Claims defines what is inside a session token
type Claims struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Purpose  string `json:"purpose"`
	jwt.RegisteredClaims
}

// ResetClaims is a password-reset token. Fingerprint pins it to the password
// hash it was issued against, so it stops working once the password changes.
type ResetClaims struct {
	Purpose     string `json:"purpose"`
	Fingerprint string `json:"fp"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	key        []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
	now        func() time.Time
}

func NewTokenIssuer(secret string, sessionTTL, resetTTL time.Duration) *TokenIssuer {
	return &TokenIssuer{
		key:        []byte(secret),
		sessionTTL: sessionTTL,
		resetTTL:   resetTTL,
		now:        time.Now,
	}
}

// GenerateToken creates a signed session JWT for a user
func (i *TokenIssuer) GenerateToken(user models.User) (string, time.Time, error) {
	expires := i.now().Add(i.sessionTTL)
	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		Purpose:  purposeSession,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(i.now()),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: sign token: %w", err)
	}
	return signed, expires, nil
}

// ValidateToken checks if a session token is forged or expired
func (i *TokenIssuer) ValidateToken(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc, i.parserOptions()...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.Purpose != purposeSession {
		return nil, ErrWrongPurpose
	}
	return claims, nil
}

// Authenticate resolves a session token from its claims alone. Service.Authenticate
// also checks the account against the database.
func (i *TokenIssuer) Authenticate(_ context.Context, tokenString string) (Principal, error) {
	claims, err := i.ValidateToken(tokenString)
	if err != nil {
		return Principal{}, apperr.Wrap(apperr.KindUnauthorized, "invalid or expired token", err)
	}
	return PrincipalFromClaims(claims), nil
}

// GenerateResetToken issues a short-lived password reset token for user.
func (i *TokenIssuer) GenerateResetToken(user models.User) (string, error) {
	claims := &ResetClaims{
		Purpose:     purposePasswordReset,
		Fingerprint: passwordFingerprint(user.PasswordHash),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatUint(uint64(user.ID), 10),
			IssuedAt:  jwt.NewNumericDate(i.now()),
			ExpiresAt: jwt.NewNumericDate(i.now().Add(i.resetTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.key)
	if err != nil {
		return "", fmt.Errorf("auth: sign reset token: %w", err)
	}
	return signed, nil
}

// ParseResetToken verifies signature, expiry and purpose and returns the user id it names.
func (i *TokenIssuer) ParseResetToken(tokenString string) (uint, *ResetClaims, error) {
	claims := &ResetClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, i.keyFunc, i.parserOptions()...)
	if err != nil || !token.Valid {
		return 0, nil, ErrInvalidToken
	}
	if claims.Purpose != purposePasswordReset {
		return 0, nil, ErrWrongPurpose
	}
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0, nil, ErrInvalidToken
	}
	return uint(id), claims, nil
}

// MatchesPassword reports whether the token was issued against the user's current password.
func (c *ResetClaims) MatchesPassword(user models.User) bool {
	return c.Fingerprint == passwordFingerprint(user.PasswordHash)
}

func (i *TokenIssuer) keyFunc(token *jwt.Token) (interface{}, error) {
	if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
		return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
	}
	return i.key, nil
}

func (i *TokenIssuer) parserOptions() []jwt.ParserOption {
	return []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(i.now),
		jwt.WithExpirationRequired(),
	}
}

func passwordFingerprint(hash string) string {
	sum := sha256.Sum256([]byte(hash))
	return hex.EncodeToString(sum[:8])
}
