// Package handlers exposes the shop services over HTTP. Handlers bind the
// request, call a service with the caller's Principal and hand failures to
// the error middleware with c.Error.
package handlers

import (
	"strconv"

	"medshop/internal/activity"
	"medshop/internal/ai"
	"medshop/internal/apperr"
	"medshop/internal/auth"
	"medshop/internal/billing"
	"medshop/internal/database"
	"medshop/internal/inventory"
	"medshop/internal/metrics"
	"medshop/internal/reports"

	"github.com/gin-gonic/gin"
)

type Handler struct {
	Auth      *auth.Service
	Inventory *inventory.Service
	Billing   *billing.Service
	Reports   *reports.Service
	Activity  *activity.Logger
	Assistant *ai.Assistant
	Pool      *database.Pool
	Metrics   *metrics.Metrics
}

func idParam(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		_ = c.Error(apperr.Validation("invalid id"))
		return 0, false
	}
	return uint(id), true
}

func bindJSON(c *gin.Context, dst interface{}) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		_ = c.Error(apperr.Wrap(apperr.KindValidation, "invalid request body", err))
		return false
	}
	return true
}
