package extract

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/billbox-app/invoice-ocr/constants"
)

// extractAmount runs the ranked amount table over the text, validates
// every capture, and keeps the highest-confidence survivor.
func (e *Extractor) extractAmount(text string, result *Fields) {
	var cands []candidate

	for rank, p := range e.tables.amounts {
		base := rankConfidence(rank, e.cfg.AmountRankStep)
		for _, m := range p.re.FindAllStringSubmatch(text, -1) {
			raw := m[1]
			recordMatch(result, constants.FieldAmount, p.name, m[0])

			amt, ok := e.parseAmount(raw)
			if !ok {
				continue
			}
			cands = append(cands, candidate{
				amount:     amt,
				confidence: base,
				raw:        raw,
			})
		}
	}

	if len(cands) == 0 {
		result.Notes = append(result.Notes, "No valid amount found")
		return
	}

	best := selectBest(cands)
	amt := best.amount
	result.Amount = &amt
	result.ConfidenceScores[constants.FieldAmount] = best.confidence
	result.Notes = append(result.Notes,
		fmt.Sprintf("Selected amount %s with confidence %.2f", amt.StringFixed(2), best.confidence))
}

// parseAmount converts a captured money string to a decimal: strip
// everything but digits and the decimal point, reject more than one
// point, and apply the sanity bounds (strictly positive, at most
// MaxAmount).
func (e *Extractor) parseAmount(raw string) (decimal.Decimal, bool) {
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	normalized := b.String()
	if normalized == "" || strings.Count(normalized, ".") > 1 {
		return decimal.Zero, false
	}

	amt, err := decimal.NewFromString(normalized)
	if err != nil {
		return decimal.Zero, false
	}
	if amt.LessThanOrEqual(decimal.Zero) || amt.GreaterThan(e.cfg.MaxAmount) {
		return decimal.Zero, false
	}
	return amt, true
}
