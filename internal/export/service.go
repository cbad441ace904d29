package export

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/billbox-app/invoice-ocr/internal/common"
	"github.com/billbox-app/invoice-ocr/internal/repository"
)

// Service is a tiny façade over the invoice repository that produces
// XLSX bytes for exports.
type Service struct {
	invoices repository.InvoiceRepository
	logger   *slog.Logger
}

func NewService(invoices repository.InvoiceRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{invoices: invoices, logger: logger}
}

// ExportInvoicesXLSX returns an XLSX workbook (as bytes) for the given
// processed-at window.
// If only from is provided -> from..today (inclusive).
// If only to is provided   -> beginning..to (inclusive).
// If neither is provided   -> all invoices.
func (s *Service) ExportInvoicesXLSX(ctx context.Context, from, to *time.Time) ([]byte, error) {
	start := time.Now()

	// Normalize dates (date-only, UTC)
	var fromDate, toDate *time.Time
	if from != nil {
		f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
		fromDate = &f
	}
	if to != nil {
		t := time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}
	if fromDate != nil && toDate == nil {
		today := time.Now().UTC()
		t := time.Date(today.Year(), today.Month(), today.Day(), 23, 59, 59, 0, time.UTC)
		toDate = &t
	}

	invoices, err := s.invoices.List(ctx, fromDate, toDate)
	if err != nil {
		return nil, common.NewAppError("EXPORT_QUERY", "could not list invoices for export", err)
	}

	f := excelize.NewFile()
	const sheet = "Invoices"
	if index, _ := f.GetSheetIndex(sheet); index == -1 {
		_, err := f.NewSheet(sheet)
		if err != nil {
			return nil, err
		}
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	headers := []string{
		"Processed Date",
		"Vendor",
		"Amount",
		"Currency",
		"Due Date",
		"Status",
		"OCR Confidence",
		"Overall Confidence",
		"Source Path",
		"Error",
	}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
	}

	row := 2
	for _, inv := range invoices {
		write := func(col int, v any) {
			cell, _ := excelize.CoordinatesToCellName(col, row)
			_ = f.SetCellValue(sheet, cell, v)
		}

		if !inv.ProcessedAt.IsZero() {
			write(1, inv.ProcessedAt.Format("2006-01-02"))
		} else {
			write(1, "")
		}
		write(2, inv.VendorName)
		if inv.Amount != nil {
			write(3, inv.Amount.StringFixed(2))
		} else {
			write(3, "")
		}
		write(4, inv.CurrencyCode)
		if inv.DueDate != nil {
			write(5, inv.DueDate.Format("2006-01-02"))
		} else {
			write(5, "")
		}
		write(6, string(inv.Status))
		write(7, fmt.Sprintf("%.1f", inv.OCRConfidence))
		write(8, fmt.Sprintf("%.2f", inv.OverallConfidence))
		write(9, inv.SourcePath)
		write(10, truncate(inv.ErrorMessage, 140))

		row++
	}

	// Widen a few columns
	_ = f.SetColWidth(sheet, "A", "A", 14) // processed date
	_ = f.SetColWidth(sheet, "B", "B", 28) // vendor
	_ = f.SetColWidth(sheet, "C", "E", 14) // amount, currency, due date
	_ = f.SetColWidth(sheet, "F", "H", 12) // status, confidences
	_ = f.SetColWidth(sheet, "I", "I", 60) // path
	_ = f.SetColWidth(sheet, "J", "J", 48) // error

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, common.NewAppError("EXPORT_WRITE", "could not serialize workbook", err)
	}

	s.logger.Info("export.xlsx.ok",
		"rows", len(invoices),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
