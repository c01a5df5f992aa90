package middleware

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"medshop/internal/apperr"
	"medshop/internal/auth"
	"medshop/internal/logger"
	"medshop/internal/models"
	"medshop/internal/validation"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() { gin.SetMode(gin.TestMode) }

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestAuthMiddleware(t *testing.T) {
	issuer := auth.NewTokenIssuer("secret", time.Hour, time.Minute)
	staffToken, _, err := issuer.GenerateToken(models.User{ID: 2, Username: "clerk", Role: models.RoleStaff})
	require.NoError(t, err)
	adminToken, _, err := issuer.GenerateToken(models.User{ID: 1, Username: "admin", Role: models.RoleAdmin})
	require.NoError(t, err)
	resetToken, err := issuer.GenerateResetToken(models.User{ID: 2, PasswordHash: "x"})
	require.NoError(t, err)

	r := gin.New()
	r.Use(ErrorHandler())
	api := r.Group("/api", AuthMiddleware(issuer))
	api.GET("/me", func(c *gin.Context) { c.JSON(http.StatusOK, Principal(c)) })
	api.GET("/admin", RequireRole(models.RoleAdmin), func(c *gin.Context) { c.Status(http.StatusNoContent) })

	tests := []struct {
		name   string
		path   string
		header string
		status int
	}{
		{"no header", "/api/me", "", http.StatusUnauthorized},
		{"not bearer", "/api/me", "Token " + staffToken, http.StatusUnauthorized},
		{"garbage", "/api/me", "Bearer abc", http.StatusUnauthorized},
		{"reset token is not a session", "/api/me", "Bearer " + resetToken, http.StatusUnauthorized},
		{"staff ok", "/api/me", "Bearer " + staffToken, http.StatusOK},
		{"staff on admin route", "/api/admin", "Bearer " + staffToken, http.StatusForbidden},
		{"admin on admin route", "/api/admin", "Bearer " + adminToken, http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}

	req := httptest.NewRequest(http.MethodGet, "/api/me", nil)
	req.Header.Set("Authorization", "Bearer "+staffToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	body := decode(t, w)
	assert.Equal(t, "clerk", body["username"])
	assert.Equal(t, float64(2), body["user_id"])
}

func TestErrorHandler(t *testing.T) {
	type input struct {
		Name string `json:"name" validate:"required"`
	}

	r := gin.New()
	r.Use(ErrorHandler())
	r.GET("/conflict", func(c *gin.Context) { _ = c.Error(apperr.Conflict("username already exists")) })
	r.GET("/internal", func(c *gin.Context) { _ = c.Error(errors.New("dial tcp 10.0.0.5:3306: connection refused")) })
	r.GET("/invalid", func(c *gin.Context) { _ = c.Error(validation.Struct(input{})) })
	r.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })

	tests := []struct {
		path   string
		status int
		msg    string
	}{
		{"/conflict", http.StatusConflict, "username already exists"},
		{"/internal", http.StatusInternalServerError, apperr.GenericMessage},
		{"/invalid", http.StatusUnprocessableEntity, "validation failed"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			w := httptest.NewRecorder()
			r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, tt.path, nil))
			assert.Equal(t, tt.status, w.Code)
			body := decode(t, w)
			assert.Equal(t, tt.msg, body["error"])
			if tt.status == http.StatusUnprocessableEntity {
				assert.Equal(t, map[string]any{"name": "is required"}, body["fields"])
			}
		})
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ok", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestID(t *testing.T) {
	r := gin.New()
	r.Use(RequestID())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, c.GetString(logger.RequestIDKey)) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := w.Header().Get(logger.RequestIDKey)
	assert.Len(t, generated, 36)
	assert.Equal(t, generated, w.Body.String())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(logger.RequestIDKey, "abc-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get(logger.RequestIDKey))
}

func TestRateLimit(t *testing.T) {
	r := gin.New()
	r.POST("/login", RateLimit(3), func(c *gin.Context) { c.Status(http.StatusOK) })

	send := func(ip string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = ip + ":5000"
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		return w
	}

	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusOK, send("10.0.0.1").Code)
	}
	w := send("10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "20", w.Header().Get("Retry-After"))

	assert.Equal(t, http.StatusOK, send("10.0.0.2").Code, "limits are per client")
}
