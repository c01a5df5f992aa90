package handlers

import (
	"net/http"
	"strconv"
	"time"

	"medshop/internal/activity"
	"medshop/internal/reports"

	"github.com/gin-gonic/gin"
)

// SalesReport is the payload of the admin sales report.
type SalesReport struct {
	Summary    *reports.SalesSummary `json:"summary"`
	TopSelling []reports.TopProduct  `json:"top_selling"`
}

// --- GET: /api/dashboard ---
func (h *Handler) GetDashboard(c *gin.Context) {
	stats, err := h.Reports.Dashboard(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// --- GET: /api/reports/sales?filter=&start_date=&end_date= ---
func (h *Handler) GetSalesReport(c *gin.Context) {
	f, ok := dateFilter(c)
	if !ok {
		return
	}
	from, to, bounded := f.Range(time.Now())
	if !bounded {
		from, to = time.Unix(0, 0).UTC(), time.Now().UTC().AddDate(1, 0, 0)
	}

	ctx := c.Request.Context()
	summary, err := h.Reports.Sales(ctx, from, to)
	if err != nil {
		_ = c.Error(err)
		return
	}
	top, err := h.Reports.TopSelling(ctx, from, to, 5)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, SalesReport{Summary: summary, TopSelling: top})
}

// --- GET: /api/reports/valuation ---
// Total monetary value of the stock on hand, grouped by supplier.
func (h *Handler) GetStockValuation(c *gin.Context) {
	valuation, err := h.Reports.StockValuation(c.Request.Context())
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, valuation)
}

// --- GET: /api/activity?user_id=&action=&limit=&offset= ---
func (h *Handler) GetActivity(c *gin.Context) {
	f := activity.Filter{Action: c.Query("action")}
	if v, err := strconv.ParseUint(c.Query("user_id"), 10, 64); err == nil {
		id := uint(v)
		f.UserID = &id
	}
	f.Limit, _ = strconv.Atoi(c.Query("limit"))
	f.Offset, _ = strconv.Atoi(c.Query("offset"))
	if f.Offset < 0 {
		f.Offset = 0
	}

	logs, err := h.Activity.List(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, logs)
}
