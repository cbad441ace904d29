// Package extract recovers typed invoice fields (amount, due date, vendor)
// from noisy OCR text using priority-ranked pattern tables. Patterns are
// ordered, declarative data: list position is the rank, rank 0 carries the
// highest base confidence, and field-specific boosts are additive on top.
package extract

import (
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/billbox-app/invoice-ocr/constants"
)

// Config holds extraction settings. Constructed once per extractor and
// read-only afterwards, so one extractor is safe to share across
// concurrent runs.
type Config struct {
	// Amount extraction
	CurrencySymbols []string
	AmountKeywords  []string
	MaxAmount       decimal.Decimal

	// Due date extraction
	DateLayouts   []string
	MaxDaysPast   int
	MaxDaysFuture int

	// Vendor extraction. ExcludeVendorWords is a case-insensitive
	// substring test; BlacklistVendorWords is an exact-match test.
	VendorKeywords       []string
	ExcludeVendorWords   []string
	BlacklistVendorWords []string
	MaxVendorLength      int

	// Confidence shaping. The asymmetry between the step sizes and boosts
	// is inherited behavior; keep it tunable rather than baked in.
	AmountRankStep    float64
	DateRankStep      float64
	DateKeywordBoost  float64
	VendorRankStep    float64
	VendorHeaderBoost float64

	// Now is the clock used for the due-date validity window. Nil means
	// time.Now; tests inject a fixed instant.
	Now func() time.Time
}

// DefaultConfig returns the stock extraction configuration.
func DefaultConfig() Config {
	return Config{
		CurrencySymbols: []string{"$", "USD", "EUR", "GBP", "€", "£"},
		AmountKeywords: []string{
			"grand total", "amount due", "total due", "invoice total",
			"final amount", "net amount", "gross amount", "subtotal",
			"total", "amount", "balance", "due", "sum",
		},
		MaxAmount:     decimal.NewFromInt(1_000_000),
		DateLayouts:   defaultDateLayouts(),
		MaxDaysPast:   30,
		MaxDaysFuture: 365,
		VendorKeywords: []string{
			"invoice from", "bill from", "billed by", "from", "vendor",
			"supplier", "company",
		},
		ExcludeVendorWords: []string{
			"customer", "client", "bill to", "ship to", "invoice",
			"receipt", "total", "amount", "date", "due", "tax",
		},
		BlacklistVendorWords: []string{
			"total", "amount", "invoice", "bill", "receipt", "payment",
		},
		MaxVendorLength:   100,
		AmountRankStep:    0.2,
		DateRankStep:      0.15,
		DateKeywordBoost:  0.2,
		VendorRankStep:    0.2,
		VendorHeaderBoost: 0.3,
	}
}

// StrictConfig narrows the acceptance windows for high-assurance callers.
func StrictConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxAmount = decimal.NewFromInt(50_000)
	cfg.MaxDaysFuture = 90
	return cfg
}

// LenientConfig widens them for exploratory ingestion.
func LenientConfig() Config {
	cfg := DefaultConfig()
	cfg.MaxAmount = decimal.NewFromInt(5_000_000)
	cfg.MaxDaysFuture = 730
	cfg.MaxVendorLength = 200
	return cfg
}

// withDefaults fills only the zero-valued lists and limits from
// DefaultConfig so a partial custom Config keeps its deliberate overrides.
// The confidence-shaping knobs are left alone: a zero step or boost is a
// meaningful setting, not an omission.
func withDefaults(cfg Config) Config {
	def := DefaultConfig()
	if len(cfg.CurrencySymbols) == 0 {
		cfg.CurrencySymbols = def.CurrencySymbols
	}
	if len(cfg.AmountKeywords) == 0 {
		cfg.AmountKeywords = def.AmountKeywords
	}
	if cfg.MaxAmount.IsZero() {
		cfg.MaxAmount = def.MaxAmount
	}
	if len(cfg.DateLayouts) == 0 {
		cfg.DateLayouts = def.DateLayouts
	}
	if cfg.MaxDaysPast == 0 {
		cfg.MaxDaysPast = def.MaxDaysPast
	}
	if cfg.MaxDaysFuture == 0 {
		cfg.MaxDaysFuture = def.MaxDaysFuture
	}
	if len(cfg.VendorKeywords) == 0 {
		cfg.VendorKeywords = def.VendorKeywords
	}
	if len(cfg.ExcludeVendorWords) == 0 {
		cfg.ExcludeVendorWords = def.ExcludeVendorWords
	}
	if len(cfg.BlacklistVendorWords) == 0 {
		cfg.BlacklistVendorWords = def.BlacklistVendorWords
	}
	if cfg.MaxVendorLength == 0 {
		cfg.MaxVendorLength = def.MaxVendorLength
	}
	return cfg
}

func defaultDateLayouts() []string {
	return []string{
		"01/02/2006", "02/01/2006", "2006-01-02", "2006/01/02",
		"01-02-2006", "02-01-2006", "January 2, 2006", "2 January 2006",
		"Jan 2, 2006", "2 Jan 2006", "01/02/06", "02/01/06",
	}
}

// candidate is one accepted or attempted match for a field.
type candidate struct {
	amount     decimal.Decimal
	date       time.Time
	vendor     string
	confidence float64
	raw        string
}

// Extractor applies the compiled pattern tables. Safe for concurrent use.
type Extractor struct {
	cfg    Config
	tables patternTables
	now    func() time.Time
	logger *slog.Logger
}

// NewExtractor compiles the pattern tables once up front. Unset list and
// limit fields are filled from DefaultConfig; everything the caller did
// set is kept as given.
func NewExtractor(cfg Config, logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = withDefaults(cfg)
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Extractor{
		cfg:    cfg,
		tables: compileTables(cfg),
		now:    now,
		logger: logger,
	}
}

// Extract recovers the three fields from raw OCR text. It never fails:
// empty input yields an all-empty result with a single note, and an
// internal panic during one field's extraction is recorded as a note
// without aborting the others.
func (e *Extractor) Extract(text string) Fields {
	result := Fields{
		ConfidenceScores: map[string]float64{},
		RawMatches:       map[string][]string{},
	}

	if !hasContent(text) {
		result.Notes = append(result.Notes, "Empty or whitespace-only text provided")
		e.finalizeConfidence(&result)
		return result
	}

	cleaned := cleanText(text)

	e.runField(&result, constants.FieldAmount, func() { e.extractAmount(cleaned, &result) })
	e.runField(&result, constants.FieldDueDate, func() { e.extractDueDate(cleaned, &result) })
	e.runField(&result, constants.FieldVendor, func() { e.extractVendor(cleaned, &result) })

	e.finalizeConfidence(&result)
	return result
}

// ExtractBatch processes multiple texts independently.
func (e *Extractor) ExtractBatch(texts []string) []Fields {
	results := make([]Fields, 0, len(texts))
	for i, text := range texts {
		result := e.Extract(text)
		result.Notes = append(result.Notes, fmt.Sprintf("Processed batch item %d", i))
		results = append(results, result)
	}
	return results
}

// runField isolates a single field's extraction so a panic degrades into
// an extraction note instead of failing the whole call.
func (e *Extractor) runField(result *Fields, field string, run func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("field extraction panicked", "field", field, "panic", r)
			result.Notes = append(result.Notes, fmt.Sprintf("Error extracting %s: %v", field, r))
		}
	}()
	run()
}

// finalizeConfidence defaults unset fields to 0 and computes the overall
// average over the three individual scores.
func (e *Extractor) finalizeConfidence(result *Fields) {
	var total float64
	for _, field := range constants.ExtractedFieldNames {
		total += result.ConfidenceScores[field]
		if _, ok := result.ConfidenceScores[field]; !ok {
			result.ConfidenceScores[field] = 0
		}
	}
	result.ConfidenceScores[constants.FieldOverall] = total / 3.0
}

// selectBest sorts candidates by confidence descending (stable, so pattern
// order breaks ties) and returns the winner.
func selectBest(cands []candidate) candidate {
	sort.SliceStable(cands, func(i, j int) bool {
		return cands[i].confidence > cands[j].confidence
	})
	return cands[0]
}

// rankConfidence is the monotonically decreasing base confidence for a
// pattern at the given rank.
func rankConfidence(rank int, step float64) float64 {
	c := 1.0 - float64(rank)*step
	if c < 0 {
		return 0
	}
	return c
}
