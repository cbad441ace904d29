package extract

import (
	"time"

	"github.com/shopspring/decimal"
)

// FieldExtractor turns raw OCR text into typed invoice fields. The concrete
// implementation is rule-based; the interface exists so the orchestrator can
// be tested against a stub.
type FieldExtractor interface {
	Extract(text string) Fields
}

// Fields is the structured outcome of one extraction run. Values are
// optional; ConfidenceScores always carries the three field scores plus
// "overall", with unset fields defaulting to 0.
type Fields struct {
	Amount  *decimal.Decimal
	DueDate *time.Time
	Vendor  string

	// ConfidenceScores maps field name -> score in [0,1].
	ConfidenceScores map[string]float64
	// RawMatches maps field name -> every candidate substring considered,
	// accepted or not, for audit.
	RawMatches map[string][]string
	// Notes is the ordered, human-readable extraction event log.
	Notes []string
}
