package entity

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/billbox-app/invoice-ocr/constants"
	"github.com/billbox-app/invoice-ocr/internal/pipeline"
)

// Invoice represents a processed invoice record for transfer between
// layers and for persistence.
type Invoice struct {
	ID                uuid.UUID              `json:"id"`
	SourcePath        string                 `json:"source_path"`
	Status            constants.RecordStatus `json:"status"`
	VendorName        string                 `json:"vendor_name,omitempty"`
	Amount            *decimal.Decimal       `json:"amount,omitempty"`
	CurrencyCode      string                 `json:"currency_code"`
	DueDate           *time.Time             `json:"due_date,omitempty"`
	OCRConfidence     float64                `json:"ocr_confidence"`
	OverallConfidence float64                `json:"overall_confidence"`
	ErrorMessage      string                 `json:"error_message,omitempty"`
	ProcessedAt       time.Time              `json:"processed_at"`
	CreatedAt         time.Time              `json:"created_at"`
}

// FromRecord flattens a terminal pipeline record into a persistable
// invoice.
func FromRecord(rec *pipeline.InvoiceRecord) *Invoice {
	inv := &Invoice{
		ID:                rec.ID,
		SourcePath:        rec.SourcePath,
		Status:            rec.Status,
		VendorName:        rec.Fields.Vendor,
		Amount:            rec.Fields.Amount,
		CurrencyCode:      constants.DefaultCurrency,
		DueDate:           rec.Fields.DueDate,
		OCRConfidence:     rec.OCR.Confidence,
		OverallConfidence: rec.Fields.ConfidenceScores[constants.FieldOverall],
		ErrorMessage:      rec.ErrorMessage,
		ProcessedAt:       rec.ProcessedAt,
	}
	return inv
}
