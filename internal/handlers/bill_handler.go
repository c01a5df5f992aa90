package handlers

import (
	"bytes"
	"fmt"
	"net/http"

	"medshop/internal/billing"
	"medshop/internal/middleware"
	"medshop/internal/models"

	"github.com/gin-gonic/gin"
)

func dateFilter(c *gin.Context) (billing.DateFilter, bool) {
	f, err := billing.ParseDateFilter(c.Query("filter"), c.Query("start_date"), c.Query("end_date"))
	if err != nil {
		_ = c.Error(err)
		return billing.DateFilter{}, false
	}
	return f, true
}

// --- POST: /api/bills ---
func (h *Handler) CreateBill(c *gin.Context) {
	var input billing.CreateBillInput
	if !bindJSON(c, &input) {
		return
	}
	bill, err := h.Billing.CreateBill(c.Request.Context(), middleware.Principal(c), input)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message": "Bill created successfully!",
		"bill":    bill,
	})
}

// --- GET: /api/bills?filter=&start_date=&end_date= ---
func (h *Handler) GetBills(c *gin.Context) {
	f, ok := dateFilter(c)
	if !ok {
		return
	}
	bills, err := h.Billing.ListBills(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, bills)
}

// --- GET: /api/bills/:id ---
func (h *Handler) GetBill(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	bill, err := h.Billing.GetBill(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, bill)
}

// --- DELETE: /api/bills/:id ---
func (h *Handler) DeleteBill(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := h.Billing.DeleteBill(c.Request.Context(), middleware.Principal(c), id); err != nil {
		_ = c.Error(err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Bill deleted and stock restored"})
}

// --- GET: /api/bills/:id/export?format=xlsx|csv ---
func (h *Handler) ExportBill(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	format, err := billing.ParseFormat(c.Query("format"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	bill, err := h.Billing.GetBill(c.Request.Context(), id)
	if err != nil {
		_ = c.Error(err)
		return
	}
	h.sendExport(c, format, billing.BillFileName(id, format), []models.Bill{*bill}, fmt.Sprintf("Bill #%d", id))
}

// --- GET: /api/bills/export?filter=&start_date=&end_date=&format= ---
func (h *Handler) ExportBills(c *gin.Context) {
	f, ok := dateFilter(c)
	if !ok {
		return
	}
	format, err := billing.ParseFormat(c.Query("format"))
	if err != nil {
		_ = c.Error(err)
		return
	}
	bills, err := h.Billing.ListBills(c.Request.Context(), f)
	if err != nil {
		_ = c.Error(err)
		return
	}
	if len(bills) == 0 {
		_ = c.Error(billing.ErrNoBillsForFilter)
		return
	}
	h.sendExport(c, format, billing.BatchFileName(f, format), bills, "Bills: "+f.Label())
}

// sendExport renders into memory first so a failure can still be reported as JSON.
func (h *Handler) sendExport(c *gin.Context, format, filename string, bills []models.Bill, title string) {
	var buf bytes.Buffer
	if err := billing.Write(&buf, format, bills, title); err != nil {
		_ = c.Error(err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, billing.ContentType(format), buf.Bytes())
}
