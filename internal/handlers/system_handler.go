package handlers

import (
	"context"
	"net/http"
	"time"

	"medshop/internal/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const healthTimeout = 3 * time.Second

// --- GET: /health ---
// Pings the database beside the pool. A fully checked-out pool is reported
// in "pool" but is not an outage, requests still spill over.
func (h *Handler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	status, code := "ok", http.StatusOK
	if err := h.Pool.Ping(ctx); err != nil {
		logger.FromContext(c).Warn("Health check failed", zap.Error(err))
		status, code = "unavailable", http.StatusServiceUnavailable
	}

	c.JSON(code, gin.H{
		"status": status,
		"time":   time.Now().UTC(),
		"pool":   h.Pool.Stats(),
	})
}
