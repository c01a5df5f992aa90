// Package server assembles the gin engine: global middleware, the public
// auth endpoints and the role-gated API groups.
package server

import (
	"time"

	"medshop/internal/config"
	"medshop/internal/handlers"
	"medshop/internal/logger"
	"medshop/internal/metrics"
	"medshop/internal/middleware"
	"medshop/internal/models"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type Deps struct {
	Config   *config.Config
	Handler  *handlers.Handler
	Logger   *zap.Logger
	Gatherer prometheus.Gatherer
}

func New(d Deps) *gin.Engine {
	cfg := d.Config
	h := d.Handler

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(logger.Middleware(d.Logger))
	r.Use(h.Metrics.Middleware())
	r.Use(middleware.ErrorHandler())
	r.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.CORSOrigins,
		AllowMethods:     []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", logger.RequestIDKey},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition", logger.RequestIDKey},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	r.GET("/health", h.Health)
	if cfg.Metrics.Enabled && d.Gatherer != nil {
		r.GET(cfg.Metrics.Path, gin.WrapH(metrics.Handler(d.Gatherer)))
	}

	// --- PUBLIC AUTH ROUTES ---
	public := r.Group("/auth")
	public.Use(middleware.RateLimit(cfg.Server.LoginRatePerMinute))
	{
		public.POST("/login", h.Login)
		public.POST("/forgot-password", h.ForgotPassword)
		public.POST("/reset-password", h.ResetPassword)
	}

	// --- PROTECTED ROUTES ---
	api := r.Group("/api")
	api.Use(middleware.AuthMiddleware(h.Auth))
	{
		// STAFF & ADMIN
		api.POST("/auth/logout", h.Logout)
		api.GET("/profile", h.Profile)
		api.POST("/profile/password", h.ChangePassword)
		api.GET("/dashboard", h.GetDashboard)

		api.GET("/products", h.GetProducts)
		api.GET("/products/search", h.SearchProducts)
		api.GET("/products/:id", h.GetProduct)
		api.POST("/products", h.AddProduct)
		api.PUT("/products/:id", h.UpdateProduct)
		api.DELETE("/products/:id", h.DeleteProduct)

		api.GET("/suppliers", h.GetSuppliers)
		api.GET("/suppliers/:id", h.GetSupplier)
		api.POST("/suppliers", h.AddSupplier)
		api.PUT("/suppliers/:id", h.UpdateSupplier)
		api.DELETE("/suppliers/:id", h.DeleteSupplier)

		api.GET("/bills", h.GetBills)
		api.POST("/bills", h.CreateBill)
		api.GET("/bills/export", h.ExportBills)
		api.GET("/bills/:id", h.GetBill)
		api.GET("/bills/:id/export", h.ExportBill)
		api.DELETE("/bills/:id", h.DeleteBill)

		// ADMIN ONLY
		admin := api.Group("")
		admin.Use(middleware.RequireRole(models.RoleAdmin))
		{
			admin.GET("/users", h.ListUsers)
			admin.POST("/users", h.CreateUser)
			admin.PUT("/users/:id", h.UpdateUser)
			admin.DELETE("/users/:id", h.DeleteUser)

			admin.GET("/activity", h.GetActivity)
			admin.GET("/reports/sales", h.GetSalesReport)
			admin.GET("/reports/valuation", h.GetStockValuation)
			admin.POST("/ask", h.AskAI)
		}
	}

	return r
}
