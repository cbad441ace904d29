// Package pipeline sequences OCR, field extraction, and validation into
// a single record per document, and renders records into the API shape.
package pipeline

import (
	"context"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/billbox-app/invoice-ocr/constants"
	"github.com/billbox-app/invoice-ocr/internal/common"
	"github.com/billbox-app/invoice-ocr/internal/extract"
	"github.com/billbox-app/invoice-ocr/internal/ocr"
	"github.com/billbox-app/invoice-ocr/internal/preprocess"
)

// Config assembles the per-stage settings plus the orchestrator's own
// policy knobs. Callers construct explicit instances; there is no
// process-wide default.
type Config struct {
	OCR        ocr.Config
	Extraction extract.Config

	// MinOCRConfidence is advisory: confidences below it log a warning
	// but never block extraction.
	MinOCRConfidence float64

	RequireAmount  bool
	RequireDueDate bool
	RequireVendor  bool
}

// DefaultConfig is the everyday policy: require an amount, warn below
// 30% OCR confidence.
func DefaultConfig() Config {
	return Config{
		OCR:              ocr.DefaultConfig(),
		Extraction:       extract.DefaultConfig(),
		MinOCRConfidence: 30,
		RequireAmount:    true,
	}
}

// StrictConfig additionally requires a due date and narrows the
// extraction windows.
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.Extraction = extract.StrictConfig()
	cfg.MinOCRConfidence = 50
	cfg.RequireDueDate = true
	return cfg
}

// LenientConfig requires nothing and widens the extraction windows.
func LenientConfig() Config {
	cfg := DefaultConfig()
	cfg.Extraction = extract.LenientConfig()
	cfg.MinOCRConfidence = 0
	cfg.RequireAmount = false
	return cfg
}

// InvoiceRecord is the terminal outcome for one document. Success means
// OCR succeeded and validation accumulated zero errors; a failed record
// always carries a non-empty ErrorMessage.
type InvoiceRecord struct {
	ID         uuid.UUID              `json:"id"`
	SourcePath string                 `json:"source_path,omitempty"`
	Status     constants.RecordStatus `json:"status"`
	Success    bool                   `json:"success"`

	OCR    ocr.Result     `json:"ocr"`
	Fields extract.Fields `json:"fields"`

	ValidationErrors []string      `json:"validation_errors,omitempty"`
	ErrorMessage     string        `json:"error_message,omitempty"`
	ProcessingTime   time.Duration `json:"processing_time"`
	ProcessedAt      time.Time     `json:"processed_at"`
}

// Processor is the orchestrator. One instance is safe for concurrent
// use: its configuration and the extractor's pattern tables are
// read-only after construction.
type Processor struct {
	cfg       Config
	engine    *ocr.Engine
	extractor extract.FieldExtractor
	logger    *slog.Logger
	now       func() time.Time
}

// NewProcessor wires the stages. The native preprocessing service may be
// nil, which disables the chain's middle tier.
func NewProcessor(cfg Config, native preprocess.Service, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	now := cfg.Extraction.Now
	if now == nil {
		now = time.Now
	}
	return &Processor{
		cfg:       cfg,
		engine:    ocr.NewEngine(cfg.OCR, native, logger),
		extractor: extract.NewExtractor(cfg.Extraction, logger),
		logger:    logger,
		now:       now,
	}
}

// WithEngine swaps the OCR engine; used by tests.
func (p *Processor) WithEngine(engine *ocr.Engine) *Processor {
	p.engine = engine
	return p
}

// ProcessImage runs the full pipeline on an in-memory image.
func (p *Processor) ProcessImage(ctx context.Context, img image.Image) *InvoiceRecord {
	start := time.Now()
	return p.finish(ctx, "", start, p.engine.ExtractText(ctx, img))
}

// ProcessFile runs the full pipeline on an image file on disk.
func (p *Processor) ProcessFile(ctx context.Context, path string) *InvoiceRecord {
	start := time.Now()
	rec := p.finish(ctx, path, start, p.engine.ProcessImageFile(ctx, path))
	return rec
}

// ProcessBatch processes each path independently and in input order. One
// item's failure never prevents the rest; every input yields a record.
func (p *Processor) ProcessBatch(ctx context.Context, paths []string) []*InvoiceRecord {
	records := make([]*InvoiceRecord, len(paths))
	for i, path := range paths {
		itemCtx := common.WithSourceInfo(ctx, fmt.Sprintf("batch[%d] %s", i, path))
		records[i] = p.ProcessFile(itemCtx, path)
		p.logger.Info("pipeline.batch.item",
			"index", i,
			"path", path,
			"success", records[i].Success,
		)
	}
	return records
}

// finish carries a started run from the OCR result through extraction
// and validation to a terminal record.
func (p *Processor) finish(ctx context.Context, path string, start time.Time, ocrRes ocr.Result) *InvoiceRecord {
	rec := &InvoiceRecord{
		ID:         uuid.New(),
		SourcePath: path,
		OCR:        ocrRes,
	}

	logger := p.logger
	if reqID := common.RequestIDFromContext(ctx); reqID != "" {
		logger = logger.With("request_id", reqID)
	}
	if src := common.SourceInfoFromContext(ctx); src != "unknown" {
		logger = logger.With("source", src)
	}

	if !ocrRes.Success {
		logger.Error("pipeline.ocr.failed", "path", path, "error", ocrRes.ErrorMessage)
		return p.terminate(rec, start, fmt.Sprintf("OCR failed: %s", ocrRes.ErrorMessage))
	}
	if ocrRes.Confidence < p.cfg.MinOCRConfidence {
		logger.Warn("pipeline.ocr.low_confidence",
			"path", path,
			"confidence", ocrRes.Confidence,
			"minimum", p.cfg.MinOCRConfidence,
		)
	}

	// Safe cancellation checkpoint between OCR and extraction.
	if err := ctx.Err(); err != nil {
		return p.terminate(rec, start, fmt.Sprintf("canceled before extraction: %v", err))
	}

	rec.Fields = p.extractor.Extract(ocrRes.Text)

	// And between extraction and validation.
	if err := ctx.Err(); err != nil {
		return p.terminate(rec, start, fmt.Sprintf("canceled before validation: %v", err))
	}

	rec.ValidationErrors = p.validate(rec.Fields)
	if len(rec.ValidationErrors) > 0 {
		v := common.NewValidator()
		for _, msg := range rec.ValidationErrors {
			v.Add(msg)
		}
		return p.terminate(rec, start, v.ErrorMessage())
	}

	rec.Success = true
	rec.Status = constants.RecordStatusProcessed
	rec.ProcessingTime = time.Since(start)
	rec.ProcessedAt = time.Now()
	logger.Info("pipeline.ok",
		"path", path,
		"ocr_confidence", ocrRes.Confidence,
		"overall_confidence", rec.Fields.ConfidenceScores[constants.FieldOverall],
		"elapsed_ms", rec.ProcessingTime.Milliseconds(),
	)
	return rec
}

func (p *Processor) terminate(rec *InvoiceRecord, start time.Time, errMsg string) *InvoiceRecord {
	rec.Success = false
	rec.Status = constants.RecordStatusFailed
	rec.ErrorMessage = errMsg
	rec.ProcessingTime = time.Since(start)
	rec.ProcessedAt = time.Now()
	return rec
}

// validate applies the required-fields policy plus the range checks that
// remain meaningful after extraction.
func (p *Processor) validate(fields extract.Fields) []string {
	v := common.NewValidator()

	if p.cfg.RequireAmount && fields.Amount == nil {
		v.Add("required field amount is missing")
	}
	if p.cfg.RequireDueDate && fields.DueDate == nil {
		v.Add("required field due date is missing")
	}
	if p.cfg.RequireVendor && fields.Vendor == "" {
		v.Add("required field vendor is missing")
	}

	if fields.Amount != nil && fields.Amount.Sign() <= 0 {
		v.Addf("amount must be positive, got %s", fields.Amount)
	}
	if fields.DueDate != nil {
		now := p.now()
		earliest := now.AddDate(0, 0, -p.cfg.Extraction.MaxDaysPast)
		latest := now.AddDate(0, 0, p.cfg.Extraction.MaxDaysFuture)
		if fields.DueDate.Before(earliest) || fields.DueDate.After(latest) {
			v.Addf("due date %s is outside the accepted window", fields.DueDate.Format("2006-01-02"))
		}
	}

	return v.Errors()
}
