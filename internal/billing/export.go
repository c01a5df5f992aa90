package billing

import (
	"fmt"
	"io"
	"strings"

	"medshop/internal/apperr"
	"medshop/internal/models"

	"github.com/gocarina/gocsv"
	"github.com/xuri/excelize/v2"
)

// Export formats.
const (
	FormatXLSX = "xlsx"
	FormatCSV  = "csv"
)

var ErrNoBillsForFilter = apperr.NotFound("No bills found for the selected filter.")

const (
	billsSheet = "Bills"
	itemsSheet = "Items"
)

// ExportRow is one bill line as written to CSV.
type ExportRow struct {
	BillID        uint   `csv:"bill_id"`
	BillDate      string `csv:"bill_date"`
	CustomerName  string `csv:"customer_name"`
	CustomerPhone string `csv:"customer_phone"`
	PaymentMethod string `csv:"payment_method"`
	ProductName   string `csv:"product_name"`
	Schedule      string `csv:"schedule"`
	Quantity      int    `csv:"quantity"`
	UnitPrice     string `csv:"unit_price"`
	LineTotal     string `csv:"line_total"`
	BillTotal     string `csv:"bill_total"`
}

// ParseFormat defaults to xlsx.
func ParseFormat(s string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatCSV:
		return FormatCSV, nil
	default:
		return "", apperr.Validation(fmt.Sprintf("unsupported export format %q", s))
	}
}

func ContentType(format string) string {
	if format == FormatCSV {
		return "text/csv"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

func BillFileName(id uint, format string) string {
	return fmt.Sprintf("bill_%d.%s", id, format)
}

func BatchFileName(f DateFilter, format string) string {
	return fmt.Sprintf("bills_%s.%s", f.Label(), format)
}

// Write dispatches to WriteXLSX or WriteCSV.
func Write(w io.Writer, format string, bills []models.Bill, title string) error {
	if format == FormatCSV {
		return WriteCSV(w, bills)
	}
	return WriteXLSX(w, bills, title)
}

// WriteXLSX writes a workbook with one row per bill on "Bills" and one row
// per line item on "Items".
func WriteXLSX(w io.Writer, bills []models.Bill, title string) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", billsSheet); err != nil {
		return err
	}
	if _, err := f.NewSheet(itemsSheet); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	if err := f.SetCellValue(billsSheet, "A1", title); err != nil {
		return err
	}
	billHeader := []interface{}{"Bill #", "Date", "Customer", "Phone", "Email", "Payment", "Created By", "Items", "Total"}
	if err := writeRow(f, billsSheet, 3, billHeader); err != nil {
		return err
	}
	itemHeader := []interface{}{"Bill #", "Product", "Schedule", "Quantity", "Unit Price", "Line Total"}
	if err := writeRow(f, itemsSheet, 1, itemHeader); err != nil {
		return err
	}
	if err := f.SetRowStyle(billsSheet, 1, 3, bold); err != nil {
		return err
	}
	if err := f.SetRowStyle(itemsSheet, 1, 1, bold); err != nil {
		return err
	}

	billRow, itemRow := 4, 2
	for _, b := range bills {
		creator := ""
		if b.Creator != nil {
			creator = b.Creator.Username
		}
		err := writeRow(f, billsSheet, billRow, []interface{}{
			b.ID,
			b.BillDate.Format("2006-01-02 15:04"),
			b.CustomerName,
			b.CustomerPhone,
			b.CustomerEmail,
			strings.ToUpper(b.PaymentMethod),
			creator,
			len(b.Items),
			b.TotalAmount.InexactFloat64(),
		})
		if err != nil {
			return err
		}
		billRow++

		for _, it := range b.Items {
			err := writeRow(f, itemsSheet, itemRow, []interface{}{
				b.ID,
				it.ProductName,
				it.ScheduleType,
				it.Quantity,
				it.UnitPrice.InexactFloat64(),
				it.LineTotal().InexactFloat64(),
			})
			if err != nil {
				return err
			}
			itemRow++
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("billing: write xlsx: %w", err)
	}
	return nil
}

func writeRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}

// WriteCSV writes one row per line item.
func WriteCSV(w io.Writer, bills []models.Bill) error {
	rows := make([]*ExportRow, 0, len(bills))
	for _, b := range bills {
		for _, it := range b.Items {
			rows = append(rows, &ExportRow{
				BillID:        b.ID,
				BillDate:      b.BillDate.Format("2006-01-02 15:04"),
				CustomerName:  b.CustomerName,
				CustomerPhone: b.CustomerPhone,
				PaymentMethod: b.PaymentMethod,
				ProductName:   it.ProductName,
				Schedule:      it.ScheduleType,
				Quantity:      it.Quantity,
				UnitPrice:     it.UnitPrice.StringFixed(2),
				LineTotal:     it.LineTotal().StringFixed(2),
				BillTotal:     b.TotalAmount.StringFixed(2),
			})
		}
	}
	if err := gocsv.Marshal(rows, w); err != nil {
		return fmt.Errorf("billing: write csv: %w", err)
	}
	return nil
}
