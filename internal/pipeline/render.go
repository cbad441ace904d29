package pipeline

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/billbox-app/invoice-ocr/constants"
	"github.com/billbox-app/invoice-ocr/internal/common"
)

// APIPayload is the flattened, API-ready rendering of an InvoiceRecord.
type APIPayload struct {
	Success  bool            `json:"success"`
	Data     PayloadData     `json:"data"`
	Metadata PayloadMetadata `json:"metadata"`
	Error    *string         `json:"error"`
}

type PayloadData struct {
	Amount   *float64 `json:"amount"`
	DueDate  *string  `json:"due_date"` // ISO-8601 date
	Vendor   *string  `json:"vendor"`
	Currency string   `json:"currency"`
}

type PayloadMetadata struct {
	OCRConfidence        float64            `json:"ocr_confidence"`
	ExtractionConfidence map[string]float64 `json:"extraction_confidence"`
	ProcessingTimeMS     int64              `json:"processing_time_ms"`
	TextLength           int                `json:"text_length"`
	ExtractionNotes      []string           `json:"extraction_notes"`
}

// Render flattens a record into the API shape. Absent fields render as
// explicit nulls rather than being omitted.
func Render(rec *InvoiceRecord) APIPayload {
	payload := APIPayload{
		Success: rec.Success,
		Data: PayloadData{
			Currency: constants.DefaultCurrency,
		},
		Metadata: PayloadMetadata{
			OCRConfidence:        rec.OCR.Confidence,
			ExtractionConfidence: rec.Fields.ConfidenceScores,
			ProcessingTimeMS:     rec.ProcessingTime.Milliseconds(),
			TextLength:           len(rec.OCR.Text),
			ExtractionNotes:      rec.Fields.Notes,
		},
	}
	if payload.Metadata.ExtractionConfidence == nil {
		payload.Metadata.ExtractionConfidence = map[string]float64{}
	}
	if payload.Metadata.ExtractionNotes == nil {
		payload.Metadata.ExtractionNotes = []string{}
	}

	if rec.Fields.Amount != nil {
		amount, _ := rec.Fields.Amount.Float64()
		payload.Data.Amount = &amount
	}
	if rec.Fields.DueDate != nil {
		due := rec.Fields.DueDate.Format("2006-01-02")
		payload.Data.DueDate = &due
	}
	if rec.Fields.Vendor != "" {
		vendor := rec.Fields.Vendor
		payload.Data.Vendor = &vendor
	}
	if rec.ErrorMessage != "" {
		msg := rec.ErrorMessage
		payload.Error = &msg
	}
	return payload
}

// BuildPayloadJSONSchema returns a JSON-Schema (draft 2020-12 subset) for
// the API payload as a generic map.
func BuildPayloadJSONSchema() map[string]any {
	confidenceProp := map[string]any{"type": "number", "minimum": 0.0, "maximum": 1.0}

	return map[string]any{
		"type":                 "object",
		"additionalProperties": false,
		"required":             []string{"success", "data", "metadata", "error"},
		"properties": map[string]any{
			"success": map[string]any{"type": "boolean"},
			"data": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required":             []string{"amount", "due_date", "vendor", "currency"},
				"properties": map[string]any{
					"amount":   map[string]any{"type": []string{"number", "null"}, "exclusiveMinimum": 0.0},
					"due_date": map[string]any{"type": []string{"string", "null"}, "pattern": `^\d{4}-\d{2}-\d{2}$`},
					"vendor":   map[string]any{"type": []string{"string", "null"}, "minLength": 1},
					"currency": map[string]any{"type": "string", "minLength": 3, "maxLength": 3},
				},
			},
			"metadata": map[string]any{
				"type":                 "object",
				"additionalProperties": false,
				"required": []string{
					"ocr_confidence", "extraction_confidence",
					"processing_time_ms", "text_length", "extraction_notes",
				},
				"properties": map[string]any{
					"ocr_confidence": map[string]any{"type": "number", "minimum": 0.0, "maximum": 100.0},
					"extraction_confidence": map[string]any{
						"type":                 "object",
						"additionalProperties": confidenceProp,
					},
					"processing_time_ms": map[string]any{"type": "integer", "minimum": 0},
					"text_length":        map[string]any{"type": "integer", "minimum": 0},
					"extraction_notes":   map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
				},
			},
			"error": map[string]any{"type": []string{"string", "null"}, "minLength": 1},
		},
	}
}

// ValidatePayloadJSON validates serialized payload bytes against the
// payload schema.
func ValidatePayloadJSON(data []byte) error {
	b, err := json.Marshal(BuildPayloadJSONSchema())
	if err != nil {
		return fmt.Errorf("marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("payload.json", bytes.NewReader(b)); err != nil {
		return fmt.Errorf("add schema: %w", err)
	}
	schema, err := compiler.Compile("payload.json")
	if err != nil {
		return fmt.Errorf("compile schema: %w", err)
	}
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("unmarshal payload: %w", err)
	}
	if err := schema.Validate(v); err != nil {
		return fmt.Errorf("%w: payload does not match schema: %w", common.ErrValidation, err)
	}
	return nil
}
