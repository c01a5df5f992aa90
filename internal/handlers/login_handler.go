package handlers

import (
	"net/http"

	"medshop/internal/auth"
	"medshop/internal/middleware"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// --- POST: /auth/login ---
func (h *Handler) Login(c *gin.Context) {
	var input LoginRequest
	if !bindJSON(c, &input) {
		return
	}

	res, err := h.Auth.Login(c.Request.Context(), input.Username, input.Password)
	h.Metrics.AuthAttempt(err == nil)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// --- POST: /api/auth/logout ---
func (h *Handler) Logout(c *gin.Context) {
	h.Auth.Logout(c.Request.Context(), middleware.Principal(c))
	c.JSON(http.StatusOK, gin.H{"message": "You have been logged out."})
}

// --- POST: /auth/forgot-password ---
// Always answers the same way so callers cannot tell which emails exist.
func (h *Handler) ForgotPassword(c *gin.Context) {
	var input ForgotPasswordRequest
	if !bindJSON(c, &input) {
		return
	}
	if err := h.Auth.RequestPasswordReset(c.Request.Context(), input.Email); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "If that email is registered, a reset link has been sent."})
}

// --- POST: /auth/reset-password ---
func (h *Handler) ResetPassword(c *gin.Context) {
	var input auth.ResetPasswordInput
	if !bindJSON(c, &input) {
		return
	}
	if err := h.Auth.ResetPassword(c.Request.Context(), input); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Your password has been reset. Please log in."})
}

// --- GET: /api/profile ---
func (h *Handler) Profile(c *gin.Context) {
	user, err := h.Auth.Profile(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// --- POST: /api/profile/password ---
func (h *Handler) ChangePassword(c *gin.Context) {
	var input auth.ChangePasswordInput
	if !bindJSON(c, &input) {
		return
	}
	if err := h.Auth.ChangePassword(c.Request.Context(), middleware.Principal(c), input); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully."})
}

// --- GET: /api/users ---
func (h *Handler) ListUsers(c *gin.Context) {
	users, err := h.Auth.ListUsers(c.Request.Context(), middleware.Principal(c))
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, users)
}

// --- POST: /api/users ---
func (h *Handler) CreateUser(c *gin.Context) {
	var input auth.RegisterInput
	if !bindJSON(c, &input) {
		return
	}
	user, err := h.Auth.Register(c.Request.Context(), middleware.Principal(c), input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, user)
}

// --- PUT: /api/users/:id ---
func (h *Handler) UpdateUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	var input auth.UpdateUserInput
	if !bindJSON(c, &input) {
		return
	}
	user, err := h.Auth.UpdateUser(c.Request.Context(), middleware.Principal(c), id, input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, user)
}

// --- DELETE: /api/users/:id ---
func (h *Handler) DeleteUser(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.Auth.DeleteUser(c.Request.Context(), middleware.Principal(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "User deleted successfully"})
}
